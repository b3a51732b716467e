// Package stats accumulates derived statistics from snapshot samples, each
// backed by a bounded rolling JSON document.
package stats

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"deye-monitor/internal/store"
)

const (
	phaseStatsDays   = 30
	phaseHistoryDays = 7
	historySpacing   = 30 * time.Second

	// A gap this long means a restart or outage; integrating power across
	// it would book a huge phantom energy spike.
	maxAccumInterval = 6 * time.Minute
)

const dateLayout = "2006-01-02"

// PhaseDay is one calendar day of per-phase accumulation.
type PhaseDay struct {
	L1Wh    float64 `json:"l1_wh"`
	L2Wh    float64 `json:"l2_wh"`
	L3Wh    float64 `json:"l3_wh"`
	Samples int     `json:"samples"`
	L1Max   int     `json:"l1_max"`
	L2Max   int     `json:"l2_max"`
	L3Max   int     `json:"l3_max"`
}

// HistoryPoint is one charting sample, recorded at most every 30 seconds.
type HistoryPoint struct {
	Time string `json:"time"`
	L1   int    `json:"l1"`
	L2   int    `json:"l2"`
	L3   int    `json:"l3"`
}

// PhaseRecorder integrates per-phase load power into daily Wh totals and a
// lower-resolution time series for charts.
type PhaseRecorder struct {
	mu          sync.Mutex
	statsPath   string
	historyPath string
	lastSample  time.Time
	lastHistory time.Time
	now         func() time.Time
}

func NewPhaseRecorder(statsPath, historyPath string) *PhaseRecorder {
	return &PhaseRecorder{
		statsPath:   statsPath,
		historyPath: historyPath,
		now:         time.Now,
	}
}

// Record ingests one three-phase load sample. Energy accumulates only when
// the elapsed interval is plausible; max power and sample count update
// regardless.
func (r *PhaseRecorder) Record(l1, l2, l3 int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	today := now.Format(dateLayout)

	days := map[string]*PhaseDay{}
	if _, err := store.Load(r.statsPath, &days); err != nil {
		logrus.Warnf("phase stats: %v", err)
	}
	day := days[today]
	if day == nil {
		day = &PhaseDay{}
		days[today] = day
	}

	if !r.lastSample.IsZero() {
		elapsed := now.Sub(r.lastSample)
		if elapsed < maxAccumInterval {
			hours := elapsed.Hours()
			day.L1Wh += float64(l1) * hours
			day.L2Wh += float64(l2) * hours
			day.L3Wh += float64(l3) * hours
		}
	}
	day.L1Max = max(day.L1Max, l1)
	day.L2Max = max(day.L2Max, l2)
	day.L3Max = max(day.L3Max, l3)
	day.Samples++
	r.lastSample = now

	store.TrimDateKeys(days, phaseStatsDays)
	if err := store.Save(r.statsPath, days); err != nil {
		logrus.Warnf("phase stats: %v", err)
	}

	if r.lastHistory.IsZero() || now.Sub(r.lastHistory) >= historySpacing {
		r.appendHistory(now, l1, l2, l3)
		r.lastHistory = now
	}
}

func (r *PhaseRecorder) appendHistory(now time.Time, l1, l2, l3 int) {
	history := map[string][]HistoryPoint{}
	if _, err := store.Load(r.historyPath, &history); err != nil {
		logrus.Warnf("phase history: %v", err)
	}
	today := now.Format(dateLayout)
	history[today] = append(history[today], HistoryPoint{
		Time: now.Format("15:04:05"),
		L1:   l1, L2: l2, L3: l3,
	})
	store.TrimDateKeys(history, phaseHistoryDays)
	if err := store.Save(r.historyPath, history); err != nil {
		logrus.Warnf("phase history: %v", err)
	}
}

// Days returns all recorded daily totals keyed by ISO date.
func (r *PhaseRecorder) Days() map[string]PhaseDay {
	r.mu.Lock()
	defer r.mu.Unlock()

	days := map[string]PhaseDay{}
	if _, err := store.Load(r.statsPath, &days); err != nil {
		logrus.Warnf("phase stats: %v", err)
	}
	return days
}

// History returns the chart points for one date and the list of dates with
// data.
func (r *PhaseRecorder) History(date string) ([]HistoryPoint, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := map[string][]HistoryPoint{}
	if _, err := store.Load(r.historyPath, &history); err != nil {
		logrus.Warnf("phase history: %v", err)
	}
	dates := make([]string, 0, len(history))
	for d := range history {
		dates = append(dates, d)
	}
	sortDatesDesc(dates)
	return history[date], dates
}

// Clear wipes both documents.
func (r *PhaseRecorder) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := store.Save(r.statsPath, map[string]PhaseDay{}); err != nil {
		return err
	}
	return store.Save(r.historyPath, map[string][]HistoryPoint{})
}
