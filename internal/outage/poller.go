package outage

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State classifies the current moment against today's schedule.
type State string

const (
	// StateUnknown means no fetch has ever succeeded. Absence of data is
	// never reported as absence of outages.
	StateUnknown  State = "unknown"
	StateClear    State = "clear"
	StateActive   State = "active"
	StateUpcoming State = "upcoming"
)

// Interval is a window resolved onto the calendar.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Status is the classified schedule at one moment.
type Status struct {
	State            State
	Start, End       time.Time  // active window bounds
	RemainingMinutes int        // active only
	Upcoming         []Interval // upcoming only, soonest first
	// ElectricityResumedAt is when the current powered stretch began: the
	// end of the most recent past window, or midnight if none ended yet.
	ElectricityResumedAt time.Time
}

// Poller refreshes today's window list from a Provider and classifies the
// current moment against it.
type Poller struct {
	provider Provider
	interval time.Duration

	mu          sync.Mutex
	windows     []Window
	lastUpdated time.Time

	stop chan struct{}
	done chan struct{}
}

func NewPoller(p Provider, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{provider: p, interval: interval}
}

// Start launches the refresh loop.
func (p *Poller) Start() {
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run()
}

func (p *Poller) Stop() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
}

func (p *Poller) run() {
	defer close(p.done)
	for {
		p.refresh()
		select {
		case <-p.stop:
			return
		case <-time.After(p.interval):
		}
	}
}

func (p *Poller) refresh() {
	windows, err := p.provider.FetchWindows()
	if err != nil {
		logrus.Warnf("outage schedule fetch failed: %v", err)
		return
	}
	p.mu.Lock()
	p.windows = windows
	p.lastUpdated = time.Now()
	p.mu.Unlock()
	logrus.Debugf("outage schedule updated: %d windows", len(windows))
}

// SetWindows replaces the schedule directly. Used by tests and by configs
// that push a schedule instead of polling one.
func (p *Poller) SetWindows(windows []Window, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.windows = windows
	p.lastUpdated = at
}

// Status classifies the current moment.
func (p *Poller) Status() Status {
	return p.StatusAt(time.Now())
}

// StatusAt classifies now against the fetched schedule. Windows are assumed
// non-overlapping.
func (p *Poller) StatusAt(now time.Time) Status {
	p.mu.Lock()
	windows := make([]Window, len(p.windows))
	copy(windows, p.windows)
	updated := p.lastUpdated
	p.mu.Unlock()

	if updated.IsZero() {
		return Status{State: StateUnknown}
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var active *Interval
	var upcoming []Interval
	resumedAt := midnight

	for _, w := range windows {
		iv := resolve(w, midnight)
		switch {
		case !now.Before(iv.Start) && now.Before(iv.End):
			ivCopy := iv
			active = &ivCopy
		case now.Before(iv.Start):
			upcoming = append(upcoming, iv)
		case !iv.End.After(now) && iv.End.After(resumedAt):
			resumedAt = iv.End
		}
	}

	if active != nil {
		return Status{
			State:            StateActive,
			Start:            active.Start,
			End:              active.End,
			RemainingMinutes: int(active.End.Sub(now).Minutes()),
		}
	}
	if len(upcoming) > 0 {
		sortIntervals(upcoming)
		return Status{
			State:                StateUpcoming,
			Upcoming:             upcoming,
			ElectricityResumedAt: resumedAt,
		}
	}
	return Status{State: StateClear}
}

// resolve places a time-of-day window on the calendar day starting at
// midnight. Hour 24 maps to midnight of the next day.
func resolve(w Window, midnight time.Time) Interval {
	start := midnight.Add(time.Duration(w.StartHour)*time.Hour + time.Duration(w.StartMin)*time.Minute)
	var end time.Time
	if w.EndHour == 24 {
		end = midnight.AddDate(0, 0, 1)
	} else {
		end = midnight.Add(time.Duration(w.EndHour)*time.Hour + time.Duration(w.EndMin)*time.Minute)
	}
	return Interval{Start: start, End: end}
}

func sortIntervals(ivs []Interval) {
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start.Before(ivs[j].Start) })
}
