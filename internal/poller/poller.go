// Package poller runs the low-frequency full read cycle and owns the
// latest-snapshot cache.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"deye-monitor/internal/inverter"
	"deye-monitor/internal/store"
)

// Consumer receives each fresh snapshot after the cache swap. Consumers run
// on the poll goroutine and must not block for long.
type Consumer func(inverter.Snapshot)

// Poller performs one full register cycle per interval, atomically replaces
// the cached snapshot, persists it best-effort, and fans it out to the
// derived-stats recorders and publishers.
type Poller struct {
	reader    *inverter.Reader
	smoothed  inverter.SmoothedSource
	interval  time.Duration
	cachePath string
	maxAge    time.Duration

	cycles   atomic.Uint64
	failures atomic.Uint64

	mu        sync.RWMutex
	latest    *inverter.Snapshot
	consumers []Consumer
}

type Config struct {
	Reader    *inverter.Reader
	Smoothed  inverter.SmoothedSource
	Interval  time.Duration
	CachePath string
	MaxAge    time.Duration
}

func New(cfg Config) *Poller {
	p := &Poller{
		reader:    cfg.Reader,
		smoothed:  cfg.Smoothed,
		interval:  cfg.Interval,
		cachePath: cfg.CachePath,
		maxAge:    cfg.MaxAge,
	}
	if p.interval <= 0 {
		p.interval = time.Minute
	}
	if p.maxAge <= 0 {
		p.maxAge = 5 * time.Minute
	}
	p.loadCache()
	return p
}

// loadCache restores the persisted snapshot if it is young enough to still
// pass as live. A stale cache is worse than none: a consumer cannot tell
// "5 minutes old" from "current".
func (p *Poller) loadCache() {
	if p.cachePath == "" {
		return
	}
	var snap inverter.Snapshot
	ok, err := store.Load(p.cachePath, &snap)
	if err != nil {
		logrus.Warnf("snapshot cache: %v", err)
		return
	}
	if !ok {
		return
	}
	age := time.Since(snap.Timestamp)
	if age < p.maxAge {
		p.latest = &snap
		logrus.Infof("loaded snapshot cache (%.0fs old)", age.Seconds())
	} else {
		logrus.Infof("snapshot cache too old (%.0fs), ignoring", age.Seconds())
	}
}

// OnSnapshot registers a consumer. Register everything before Start.
func (p *Poller) OnSnapshot(c Consumer) {
	p.consumers = append(p.consumers, c)
}

// Start polls until ctx is cancelled. The running cycle always completes;
// cancellation only prevents the next one.
func (p *Poller) Start(ctx context.Context) {
	logrus.Infof("snapshot poller started, interval %s", p.interval)
	p.poll()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("snapshot poller stopped")
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	snap := p.reader.ReadSnapshot(p.smoothed)
	p.cycles.Add(1)
	if snap.Err != "" {
		p.failures.Add(1)
		logrus.Warnf("poll cycle failed: %s", snap.Err)
	}

	p.mu.Lock()
	p.latest = &snap
	p.mu.Unlock()

	// Persistence never blocks the cache swap above and never kills the
	// loop; the in-memory cache stays authoritative.
	if p.cachePath != "" {
		if err := store.Save(p.cachePath, snap); err != nil {
			logrus.Warnf("snapshot cache: %v", err)
		}
	}

	for _, c := range p.consumers {
		c(snap)
	}
}

// Latest returns a copy of the cached snapshot. ok is false before the first
// cycle completes and no fresh-enough cache was restored.
func (p *Poller) Latest() (inverter.Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return inverter.Snapshot{}, false
	}
	return *p.latest, true
}

// Counts reports completed poll cycles and how many of them failed.
func (p *Poller) Counts() (cycles, failures uint64) {
	return p.cycles.Load(), p.failures.Load()
}
