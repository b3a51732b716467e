package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"deye-monitor/internal/inverter"
	"deye-monitor/internal/monitor"
	"deye-monitor/internal/outage"
)

func TestRenderGridDownWithSchedule(t *testing.T) {
	now := time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC)
	text := Render(monitor.Event{
		Type:        monitor.EventGridDown,
		At:          now,
		SOC:         80,
		LoadW:       500,
		GridVoltage: 12.3,
		HasBattery:  true,
		Schedule: &outage.Status{
			State:            outage.StateActive,
			End:              now.Add(time.Hour),
			RemainingMinutes: 60,
		},
		Survival: &outage.Estimate{
			Verdict:      outage.VerdictOK,
			NeededKWh:    0.5,
			AvailableKWh: 12.8,
		},
	})

	assert.Contains(t, text, "Grid power lost (12.3 V)")
	assert.Contains(t, text, "80% at 500 W load")
	assert.Contains(t, text, "60 min remaining")
	assert.Contains(t, text, "Battery check: OK")
}

func TestRenderGridDownNoSchedule(t *testing.T) {
	text := Render(monitor.Event{
		Type:        monitor.EventGridDown,
		GridVoltage: 0,
		HasBattery:  false,
	})
	assert.Contains(t, text, "Grid power lost")
	assert.NotContains(t, text, "Running on battery")
	assert.NotContains(t, text, "Scheduled outage")
}

func TestRenderGridRestored(t *testing.T) {
	text := Render(monitor.Event{
		Type:        monitor.EventGridRestored,
		GridVoltage: 231.5,
		SOC:         64,
		HasBattery:  true,
	})
	assert.Contains(t, text, "Grid power restored (231.5 V)")
	assert.Contains(t, text, "Battery: 64%")
}

func TestRenderBatteryLow(t *testing.T) {
	text := Render(monitor.Event{
		Type:  monitor.EventBatteryLow,
		SOC:   28,
		LoadW: 750,
	})
	assert.Contains(t, text, "Battery low: 28%")
	assert.Contains(t, text, "750 W")
}

func TestRenderSurvivalVerdicts(t *testing.T) {
	assert.Contains(t, renderSurvival(outage.Estimate{Verdict: outage.VerdictTight}), "reduce load")
	assert.Contains(t, renderSurvival(outage.Estimate{Verdict: outage.VerdictCritical}), "CRITICAL")
	assert.Equal(t, "No battery installed", renderSurvival(outage.Estimate{Verdict: outage.VerdictNoBattery}))
}

func TestRenderScheduleUpcoming(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	text := renderSchedule(outage.Status{
		State: outage.StateUpcoming,
		Upcoming: []outage.Interval{
			{Start: now.Add(4 * time.Hour), End: now.Add(6 * time.Hour)},
		},
	}, now)
	assert.Contains(t, text, "next outage 14:00–16:00")
}

type fixedSnapshots struct {
	snap inverter.Snapshot
}

func (f fixedSnapshots) Latest() (inverter.Snapshot, bool) { return f.snap, true }

func TestOutageReplyEstimatesUpcomingWindow(t *testing.T) {
	sched := outage.NewPoller(&outage.StaticProvider{}, 0)
	sched.SetWindows([]outage.Window{{StartHour: 14, EndHour: 18}},
		time.Date(2026, 8, 30, 0, 1, 0, 0, time.Local))
	tg := &Telegram{
		schedule:    sched,
		snapshots:   fixedSnapshots{inverter.Snapshot{BatterySOC: 80, LoadPower: 500}},
		hasBattery:  true,
		capacityKWh: 16,
	}

	// Pin the clock inside the day the windows were resolved for.
	reply := tg.outageReplyAt(time.Date(2026, 8, 30, 10, 0, 0, 0, time.Local))
	assert.Contains(t, reply, "next outage 14:00–18:00")
	assert.Contains(t, reply, "Battery check: OK")
	assert.Contains(t, reply, "2.0 kWh needed")
}

func TestOutageReplyNoBattery(t *testing.T) {
	sched := outage.NewPoller(&outage.StaticProvider{}, 0)
	sched.SetWindows([]outage.Window{{StartHour: 14, EndHour: 18}},
		time.Date(2026, 8, 30, 0, 1, 0, 0, time.Local))
	tg := &Telegram{
		schedule:  sched,
		snapshots: fixedSnapshots{inverter.Snapshot{}},
	}

	reply := tg.outageReplyAt(time.Date(2026, 8, 30, 10, 0, 0, 0, time.Local))
	assert.Contains(t, reply, "No battery installed")
}
