// Package monitor decides when to notify: grid-loss and restoration with
// strict continuous debounce, and battery-low with hysteresis.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"deye-monitor/internal/inverter"
	"deye-monitor/internal/outage"
	"deye-monitor/internal/store"
)

const (
	gridDownVoltage = 50.0

	// A candidate transition must hold continuously before it is acted on.
	// Any single opposing reading resets the timer.
	downDebounce = 120 * time.Second
	upDebounce   = 60 * time.Second

	batteryLowSOC = 30

	// Battery voltage below this is a sensor glitch; the whole check cycle
	// is skipped so glitched data can neither set nor clear any state.
	glitchVoltage = 10.0
)

// EventType names a notification-worthy condition.
type EventType string

const (
	EventGridDown     EventType = "grid_down"
	EventGridRestored EventType = "grid_restored"
	EventBatteryLow   EventType = "battery_low"
)

// Event is the structured content handed to the notification sink. Rendering
// it into user-facing text is the sink's job.
type Event struct {
	Type        EventType
	At          time.Time
	SOC         int
	LoadW       int
	GridVoltage float64
	HasBattery  bool
	Schedule    *outage.Status   // nil when no schedule is configured
	Survival    *outage.Estimate // grid-down with battery only
}

// Notifier consumes events. Implementations must not block the monitor loop
// beyond their own bounded retries.
type Notifier interface {
	Notify(Event)
}

// State is the persisted debounce/notification state, so a restart neither
// re-fires nor forgets an in-flight debounce window.
type State struct {
	GridConfirmedDown  bool       `json:"grid_confirmed_down"`
	BatteryLowNotified bool       `json:"battery_low_notified"`
	GridDownSince      *time.Time `json:"grid_down_since,omitempty"`
	GridUpSince        *time.Time `json:"grid_up_since,omitempty"`
	LastUpdateID       int        `json:"last_update_id"`
}

// Monitor periodically reads the inverter and drives the notification state
// machines.
type Monitor struct {
	reader      *inverter.Reader
	smoothed    inverter.SmoothedSource
	schedule    *outage.Poller // may be nil
	events      *outage.EventLog
	notifier    Notifier
	capacityKWh float64
	interval    time.Duration
	statePath   string

	mu    sync.Mutex
	state State
}

type Config struct {
	Reader      *inverter.Reader
	Smoothed    inverter.SmoothedSource
	Schedule    *outage.Poller
	Events      *outage.EventLog
	Notifier    Notifier
	CapacityKWh float64
	Interval    time.Duration
	StatePath   string
}

func New(cfg Config) *Monitor {
	m := &Monitor{
		reader:      cfg.Reader,
		smoothed:    cfg.Smoothed,
		schedule:    cfg.Schedule,
		events:      cfg.Events,
		notifier:    cfg.Notifier,
		capacityKWh: cfg.CapacityKWh,
		interval:    cfg.Interval,
		statePath:   cfg.StatePath,
	}
	if m.interval <= 0 {
		m.interval = 2 * time.Minute
	}
	if m.capacityKWh <= 0 {
		m.capacityKWh = 16
	}
	m.loadState()
	return m
}

func (m *Monitor) loadState() {
	if m.statePath == "" {
		return
	}
	if _, err := store.Load(m.statePath, &m.state); err != nil {
		logrus.Warnf("monitor state: %v", err)
	}
}

func (m *Monitor) saveState() {
	if m.statePath == "" {
		return
	}
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if err := store.Save(m.statePath, state); err != nil {
		logrus.Warnf("monitor state: %v", err)
	}
}

// SetNotifier installs the notification sink. The transport is constructed
// after the monitor because it needs the monitor as its update cursor.
func (m *Monitor) SetNotifier(n Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

// LastUpdateID exposes the persisted transport cursor for the command
// poller.
func (m *Monitor) LastUpdateID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastUpdateID
}

// SetLastUpdateID advances the transport cursor and persists it.
func (m *Monitor) SetLastUpdateID(id int) {
	m.mu.Lock()
	m.state.LastUpdateID = id
	m.mu.Unlock()
	m.saveState()
}

// Start runs check cycles until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	logrus.Infof("monitor started, interval %s", m.interval)
	m.Check(time.Now())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("monitor stopped")
			return
		case <-ticker.C:
			m.Check(time.Now())
		}
	}
}

// Check reads the inverter once and advances both state machines. Exposed
// with an explicit clock for tests.
func (m *Monitor) Check(now time.Time) {
	snap := m.reader.ReadSnapshot(m.smoothed)
	if snap.Err != "" {
		logrus.Debugf("monitor: skipping cycle, read failed: %s", snap.Err)
		return
	}
	m.Evaluate(snap, now)
	m.saveState()
}

// Evaluate advances the state machines on one snapshot.
func (m *Monitor) Evaluate(snap inverter.Snapshot, now time.Time) {
	caps := m.reader.Capabilities()

	if caps.HasBattery {
		if snap.BatteryVoltage < glitchVoltage {
			logrus.Warnf("monitor: battery voltage %.1fV looks like a glitch, skipping cycle", snap.BatteryVoltage)
			return
		}
		m.checkBattery(snap, now)
	}
	m.checkGrid(snap, caps.HasBattery, now)
}

func (m *Monitor) checkBattery(snap inverter.Snapshot, now time.Time) {
	m.mu.Lock()
	notified := m.state.BatteryLowNotified
	fire := false
	if snap.BatterySOC < batteryLowSOC && !notified {
		m.state.BatteryLowNotified = true
		fire = true
	} else if snap.BatterySOC >= batteryLowSOC && notified {
		// Re-arm only after SOC has recovered past the threshold.
		m.state.BatteryLowNotified = false
	}
	m.mu.Unlock()

	if fire {
		logrus.Infof("monitor: battery low (SOC=%d%%)", snap.BatterySOC)
		m.notify(Event{
			Type:        EventBatteryLow,
			At:          now,
			SOC:         snap.BatterySOC,
			LoadW:       snap.LoadPower,
			GridVoltage: snap.GridVoltage,
			HasBattery:  true,
		})
	}
}

func (m *Monitor) checkGrid(snap inverter.Snapshot, hasBattery bool, now time.Time) {
	gridDown := snap.GridVoltage < gridDownVoltage

	m.mu.Lock()
	var fire *EventType
	if gridDown {
		m.state.GridUpSince = nil
		if m.state.GridDownSince == nil {
			t := now
			m.state.GridDownSince = &t
		} else if !m.state.GridConfirmedDown && now.Sub(*m.state.GridDownSince) >= downDebounce {
			m.state.GridConfirmedDown = true
			ev := EventGridDown
			fire = &ev
		}
	} else {
		m.state.GridDownSince = nil
		if m.state.GridConfirmedDown {
			if m.state.GridUpSince == nil {
				t := now
				m.state.GridUpSince = &t
			} else if now.Sub(*m.state.GridUpSince) >= upDebounce {
				m.state.GridConfirmedDown = false
				m.state.GridUpSince = nil
				ev := EventGridRestored
				fire = &ev
			}
		}
	}
	m.mu.Unlock()

	if fire == nil {
		return
	}

	event := Event{
		Type:        *fire,
		At:          now,
		SOC:         snap.BatterySOC,
		LoadW:       snap.LoadPower,
		GridVoltage: snap.GridVoltage,
		HasBattery:  hasBattery,
	}
	if m.schedule != nil {
		status := m.schedule.StatusAt(now)
		event.Schedule = &status
	}

	switch *fire {
	case EventGridDown:
		logrus.Infof("monitor: grid confirmed down (voltage=%.1fV)", snap.GridVoltage)
		if event.Schedule != nil {
			if window, ok := event.Schedule.SurvivalWindow(now); ok {
				var est outage.Estimate
				if hasBattery {
					est = outage.EstimateSurvival(snap.BatterySOC, snap.LoadPower,
						window, m.capacityKWh)
				} else {
					est = outage.NoBatteryEstimate()
				}
				event.Survival = &est
			}
		}
		m.recordEvent("start", now, snap.GridVoltage)
	case EventGridRestored:
		logrus.Infof("monitor: grid restored (voltage=%.1fV)", snap.GridVoltage)
		m.recordEvent("end", now, snap.GridVoltage)
	}
	m.notify(event)
}

func (m *Monitor) recordEvent(eventType string, now time.Time, voltage float64) {
	if m.events == nil {
		return
	}
	if err := m.events.Append(eventType, now, voltage); err != nil {
		logrus.Warnf("monitor: record outage event: %v", err)
	}
}

func (m *Monitor) notify(e Event) {
	m.mu.Lock()
	n := m.notifier
	m.mu.Unlock()
	if n != nil {
		n.Notify(e)
	}
}

// StateSnapshot returns a copy of the persisted state, for diagnostics.
func (m *Monitor) StateSnapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
