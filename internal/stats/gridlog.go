package stats

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"deye-monitor/internal/store"
)

const gridLogDays = 90

// GridImportLog records the device-reported cumulative daily grid import,
// one overwrite-on-write entry per calendar day. The device resets the
// counter at midnight, so each write simply replaces the day's value.
type GridImportLog struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewGridImportLog(path string) *GridImportLog {
	return &GridImportLog{path: path, now: time.Now}
}

// Record stores today's cumulative import reading in kWh.
func (g *GridImportLog) Record(dailyKWh float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	log := map[string]float64{}
	if _, err := store.Load(g.path, &log); err != nil {
		logrus.Warnf("grid import log: %v", err)
	}
	log[g.now().Format(dateLayout)] = dailyKWh
	store.TrimDateKeys(log, gridLogDays)
	if err := store.Save(g.path, log); err != nil {
		logrus.Warnf("grid import log: %v", err)
	}
}

// All returns every recorded day keyed by ISO date.
func (g *GridImportLog) All() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	log := map[string]float64{}
	if _, err := store.Load(g.path, &log); err != nil {
		logrus.Warnf("grid import log: %v", err)
	}
	return log
}

// MonthTotal sums the daily entries for one month. first and last are the
// earliest and latest recorded dates within the month, empty when no data.
func (g *GridImportLog) MonthTotal(year int, month time.Month) (total float64, days int, first, last string) {
	log := g.All()
	prefix := fmt.Sprintf("%04d-%02d-", year, month)

	var dates []string
	for day, kwh := range log {
		if len(day) >= len(prefix) && day[:len(prefix)] == prefix {
			dates = append(dates, day)
			total += kwh
		}
	}
	if len(dates) == 0 {
		return 0, 0, "", ""
	}
	sort.Strings(dates)
	return total, len(dates), dates[0], dates[len(dates)-1]
}

func sortDatesDesc(dates []string) {
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
}
