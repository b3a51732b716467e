package poller

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"deye-monitor/internal/inverter"
	"deye-monitor/internal/link"
	"deye-monitor/internal/store"
)

func TestCacheRestoredWithinMaxAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	snap := inverter.Snapshot{
		Timestamp:  time.Now().Add(-30 * time.Second),
		BatterySOC: 85,
		LoadPower:  1200,
	}
	if err := store.Save(path, snap); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	p := New(Config{CachePath: path, MaxAge: 5 * time.Minute})
	got, ok := p.Latest()
	if !ok {
		t.Fatal("cache should have been restored")
	}
	if got.BatterySOC != 85 || got.LoadPower != 1200 {
		t.Errorf("restored snapshot = %+v", got)
	}
}

func TestStaleCacheIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	snap := inverter.Snapshot{
		Timestamp:  time.Now().Add(-10 * time.Minute),
		BatterySOC: 85,
	}
	if err := store.Save(path, snap); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	p := New(Config{CachePath: path, MaxAge: 5 * time.Minute})
	if _, ok := p.Latest(); ok {
		t.Error("stale cache should not be served as live data")
	}
}

func TestLatestEmptyWithoutCache(t *testing.T) {
	p := New(Config{})
	if _, ok := p.Latest(); ok {
		t.Error("Latest should report no data before the first cycle")
	}
}

type failingTransport struct{ connected bool }

func (f *failingTransport) Connect() error    { f.connected = true; return nil }
func (f *failingTransport) Disconnect() error { f.connected = false; return nil }
func (f *failingTransport) Connected() bool   { return f.connected }
func (f *failingTransport) ReadRegister(addr uint16) (uint16, error) {
	return 0, errors.New("timeout")
}

func TestFailedCycleStillSwapsCache(t *testing.T) {
	// A failed cycle replaces the cache so consumers see the failure instead
	// of silently stale data.
	l := link.New(&failingTransport{})
	p := New(Config{Reader: inverter.NewReader(l, inverter.DefaultCapabilities())})

	var seen []inverter.Snapshot
	p.OnSnapshot(func(s inverter.Snapshot) { seen = append(seen, s) })
	p.poll()

	got, ok := p.Latest()
	if !ok || got.Err == "" {
		t.Errorf("error snapshot should be visible, got %+v ok=%v", got, ok)
	}
	if len(seen) != 1 || seen[0].Err == "" {
		t.Errorf("consumers should receive the failed snapshot too")
	}
	if cycles, failures := p.Counts(); cycles != 1 || failures != 1 {
		t.Errorf("Counts() = %d, %d; want 1, 1", cycles, failures)
	}
}
