package stats

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"deye-monitor/internal/store"
)

const generatorDays = 90

// GeneratorSession is one continuous run, clock times local. End is empty
// while the session is open.
type GeneratorSession struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// GeneratorDay aggregates one calendar day. A session that crosses midnight
// is credited entirely to the day it started on.
type GeneratorDay struct {
	RuntimeSeconds float64            `json:"runtime_seconds"`
	Sessions       []GeneratorSession `json:"sessions"`
}

// GeneratorRecorder tracks generator runtime, edge-triggered on power>0.
type GeneratorRecorder struct {
	mu   sync.Mutex
	path string
	now  func() time.Time

	running      bool
	sessionStart time.Time
	sessionDay   string
}

func NewGeneratorRecorder(path string) *GeneratorRecorder {
	r := &GeneratorRecorder{path: path, now: time.Now}
	r.closeDangling()
	return r
}

// closeDangling ends any session left open by a crash. The downtime is
// unknown, so no runtime is credited for it.
func (r *GeneratorRecorder) closeDangling() {
	days := r.load()
	dirty := false
	for date, day := range days {
		for i := range day.Sessions {
			if day.Sessions[i].End == "" {
				logrus.Warnf("generator: closing dangling session from %s %s", date, day.Sessions[i].Start)
				day.Sessions[i].End = day.Sessions[i].Start
				dirty = true
			}
		}
	}
	if dirty {
		r.save(days)
	}
}

// Record ingests one generator power sample. An off→on transition opens a
// session; on→off closes it and credits the elapsed time to the day the
// session started.
func (r *GeneratorRecorder) Record(powerW int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	on := powerW > 0
	if on == r.running {
		return
	}
	now := r.now()
	days := r.load()

	if on {
		today := now.Format(dateLayout)
		day := days[today]
		if day == nil {
			day = &GeneratorDay{}
			days[today] = day
		}
		day.Sessions = append(day.Sessions, GeneratorSession{Start: now.Format("15:04:05")})
		r.sessionStart = now
		r.sessionDay = today
	} else {
		day := days[r.sessionDay]
		if day != nil && len(day.Sessions) > 0 && day.Sessions[len(day.Sessions)-1].End == "" {
			day.Sessions[len(day.Sessions)-1].End = now.Format("15:04:05")
			day.RuntimeSeconds += now.Sub(r.sessionStart).Seconds()
		}
	}
	r.running = on

	store.TrimDateKeys(days, generatorDays)
	r.save(days)
}

// Running reports whether a session is currently open.
func (r *GeneratorRecorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RuntimeToday returns today's closed-session runtime in seconds, plus the
// elapsed time of an open session.
func (r *GeneratorRecorder) RuntimeToday() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	days := r.load()
	var total float64
	if day := days[now.Format(dateLayout)]; day != nil {
		total = day.RuntimeSeconds
	}
	if r.running {
		total += now.Sub(r.sessionStart).Seconds()
	}
	return total
}

// RuntimeMonth returns the closed-session runtime in seconds for the current
// calendar month, plus any open session.
func (r *GeneratorRecorder) RuntimeMonth() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	prefix := now.Format("2006-01-")
	days := r.load()
	var total float64
	for date, day := range days {
		if len(date) >= len(prefix) && date[:len(prefix)] == prefix {
			total += day.RuntimeSeconds
		}
	}
	if r.running {
		total += now.Sub(r.sessionStart).Seconds()
	}
	return total
}

// Days returns all recorded days keyed by ISO date.
func (r *GeneratorRecorder) Days() map[string]GeneratorDay {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := map[string]GeneratorDay{}
	for date, day := range r.load() {
		out[date] = *day
	}
	return out
}

func (r *GeneratorRecorder) load() map[string]*GeneratorDay {
	days := map[string]*GeneratorDay{}
	if _, err := store.Load(r.path, &days); err != nil {
		logrus.Warnf("generator stats: %v", err)
	}
	return days
}

func (r *GeneratorRecorder) save(days map[string]*GeneratorDay) {
	if err := store.Save(r.path, days); err != nil {
		logrus.Warnf("generator stats: %v", err)
	}
}
