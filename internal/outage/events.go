package outage

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"deye-monitor/internal/store"
)

const maxEvents = 100

// Event is one observed grid transition. An "end" event retroactively fills
// Duration and EndTimestamp on the most recent unclosed "start".
type Event struct {
	ID           int     `json:"id"`
	Type         string  `json:"type"` // "start" or "end"
	Timestamp    string  `json:"timestamp"`
	Voltage      float64 `json:"voltage"`
	Duration     float64 `json:"duration,omitempty"` // seconds
	EndTimestamp string  `json:"end_timestamp,omitempty"`
}

// EventLog is the capped on-disk history of observed outages.
type EventLog struct {
	mu   sync.Mutex
	path string
}

func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Append records an event and persists the log.
func (l *EventLog) Append(eventType string, ts time.Time, voltage float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.load()
	event := Event{
		ID:        len(events) + 1,
		Type:      eventType,
		Timestamp: ts.Format(time.RFC3339),
		Voltage:   voltage,
	}

	if eventType == "end" {
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].Type == "start" && events[i].Duration == 0 && events[i].EndTimestamp == "" {
				if start, err := time.Parse(time.RFC3339, events[i].Timestamp); err == nil {
					events[i].Duration = ts.Sub(start).Seconds()
					events[i].EndTimestamp = event.Timestamp
				}
				break
			}
		}
	}

	events = append(events, event)
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	return store.Save(l.path, events)
}

// All returns the recorded events, oldest first.
func (l *EventLog) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Clear empties the log.
func (l *EventLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return store.Save(l.path, []Event{})
}

func (l *EventLog) load() []Event {
	var events []Event
	if _, err := store.Load(l.path, &events); err != nil {
		logrus.Warnf("outage events: %v", err)
	}
	return events
}
