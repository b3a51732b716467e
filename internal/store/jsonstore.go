// Package store persists small JSON documents with full-file rewrites.
// Write frequency is at most once per poll cycle and every document is
// bounded by a rolling cap, so read-modify-write is cheap and an append log
// would be overkill.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Load reads the JSON document at path into v. A missing file is not an
// error; v is left at its zero value and ok is false.
func Load(path string, v interface{}) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// Save writes v to path atomically: marshal, write a sibling temp file, then
// rename over the target so a crash mid-write never leaves a torn document.
func Save(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// TrimDateKeys deletes the oldest ISO-date keys of m beyond keep. Keys sort
// lexicographically, which for YYYY-MM-DD is chronological.
func TrimDateKeys[V any](m map[string]V, keep int) {
	if len(m) <= keep {
		return
	}
	dates := make([]string, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	for _, old := range dates[keep:] {
		delete(m, old)
	}
}
