package store

import (
	"fmt"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	var v map[string]int
	ok, err := Load(filepath.Join(t.TempDir(), "missing.json"), &v)
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if ok {
		t.Error("ok should be false for a missing file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	in := map[string]float64{"2026-08-30": 12.5, "2026-08-29": 7.25}
	if err := Save(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}

	var out map[string]float64
	ok, err := Load(path, &out)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(out) != 2 || out["2026-08-30"] != 12.5 {
		t.Errorf("round trip mismatch: %v", out)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := Save(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	if err := Save(path, map[string]int{"b": 2}); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	var out map[string]int
	if _, err := Load(path, &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, stale := out["a"]; stale {
		t.Error("old document content survived overwrite")
	}
	if out["b"] != 2 {
		t.Errorf("out = %v", out)
	}
}

func TestTrimDateKeys(t *testing.T) {
	m := map[string]int{}
	for i := 0; i < 95; i++ {
		m[fmt.Sprintf("2026-%02d-%02d", i/28+1, i%28+1)] = i
	}

	TrimDateKeys(m, 90)
	if len(m) != 90 {
		t.Fatalf("len = %d, want 90", len(m))
	}
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("2026-%02d-%02d", i/28+1, i%28+1)
		if _, ok := m[key]; ok {
			t.Errorf("oldest key %s should have been evicted", key)
		}
	}
}

func TestTrimDateKeysUnderCap(t *testing.T) {
	m := map[string]int{"2026-08-30": 1}
	TrimDateKeys(m, 90)
	if len(m) != 1 {
		t.Errorf("len = %d, want 1", len(m))
	}
}
