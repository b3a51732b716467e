package outage

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 8, 30, hour, min, 0, 0, time.UTC)
}

func TestStatusUnknownBeforeFirstFetch(t *testing.T) {
	p := NewPoller(&StaticProvider{}, 0)
	status := p.StatusAt(at(12, 0))
	if status.State != StateUnknown {
		t.Errorf("state = %s, want unknown", status.State)
	}
}

func TestStatusClearWithEmptySchedule(t *testing.T) {
	p := NewPoller(&StaticProvider{}, 0)
	p.SetWindows(nil, at(0, 1))
	status := p.StatusAt(at(12, 0))
	if status.State != StateClear {
		t.Errorf("state = %s, want clear", status.State)
	}
}

func TestStatusActiveInsideWindow(t *testing.T) {
	p := NewPoller(&StaticProvider{}, 0)
	p.SetWindows([]Window{{StartHour: 22, EndHour: 24}}, at(0, 1))

	status := p.StatusAt(at(23, 0))
	if status.State != StateActive {
		t.Fatalf("state = %s, want active", status.State)
	}
	if status.RemainingMinutes != 60 {
		t.Errorf("remaining = %d min, want 60", status.RemainingMinutes)
	}
	if !status.End.Equal(at(0, 0).AddDate(0, 0, 1)) {
		t.Errorf("end = %v, want next-day midnight", status.End)
	}
}

func TestStatusWindowBoundsHalfOpen(t *testing.T) {
	p := NewPoller(&StaticProvider{}, 0)
	p.SetWindows([]Window{{StartHour: 10, EndHour: 12}}, at(0, 1))

	if s := p.StatusAt(at(10, 0)); s.State != StateActive {
		t.Errorf("start instant = %s, want active (inclusive)", s.State)
	}
	if s := p.StatusAt(at(12, 0)); s.State == StateActive {
		t.Errorf("end instant = %s, want not active (exclusive)", s.State)
	}
}

func TestStatusUpcomingSortedWithResumedAt(t *testing.T) {
	p := NewPoller(&StaticProvider{}, 0)
	p.SetWindows([]Window{
		{StartHour: 18, EndHour: 20},
		{StartHour: 6, EndHour: 8},
		{StartHour: 14, EndHour: 16},
	}, at(0, 1))

	status := p.StatusAt(at(10, 0))
	if status.State != StateUpcoming {
		t.Fatalf("state = %s, want upcoming", status.State)
	}
	if len(status.Upcoming) != 2 {
		t.Fatalf("upcoming count = %d, want 2", len(status.Upcoming))
	}
	if !status.Upcoming[0].Start.Equal(at(14, 0)) {
		t.Errorf("first upcoming = %v, want 14:00", status.Upcoming[0].Start)
	}
	// Power came back when the 06:00-08:00 window ended.
	if !status.ElectricityResumedAt.Equal(at(8, 0)) {
		t.Errorf("resumedAt = %v, want 08:00", status.ElectricityResumedAt)
	}
}

func TestStatusResumedAtDefaultsToMidnight(t *testing.T) {
	p := NewPoller(&StaticProvider{}, 0)
	p.SetWindows([]Window{{StartHour: 18, EndHour: 20}}, at(0, 1))

	status := p.StatusAt(at(10, 0))
	if status.State != StateUpcoming {
		t.Fatalf("state = %s, want upcoming", status.State)
	}
	if !status.ElectricityResumedAt.Equal(at(0, 0)) {
		t.Errorf("resumedAt = %v, want midnight", status.ElectricityResumedAt)
	}
}

func TestFetchFailureKeepsOldSchedule(t *testing.T) {
	p := NewPoller(&StaticProvider{}, 0)
	p.SetWindows([]Window{{StartHour: 10, EndHour: 12}}, at(0, 1))

	// A refresh that fails must not flip the state back to unknown.
	status := p.StatusAt(at(11, 0))
	if status.State != StateActive {
		t.Errorf("state = %s, want active from retained schedule", status.State)
	}
}

func TestEstimateSurvival(t *testing.T) {
	// 90% of 16 kWh against 500 W for 4 h: 14.4 available vs 2.0 needed.
	est := EstimateSurvival(90, 500, 4*time.Hour, 16)
	if est.Verdict != VerdictOK {
		t.Errorf("verdict = %s, want ok", est.Verdict)
	}
	if est.NeededKWh != 2.0 {
		t.Errorf("needed = %v, want 2.0", est.NeededKWh)
	}
	if est.AvailableKWh != 14.4 {
		t.Errorf("available = %v, want 14.4", est.AvailableKWh)
	}
}

func TestEstimateSurvivalTightAndCritical(t *testing.T) {
	// 2.4 kWh available vs 3 kWh needed: ratio 0.8, tight.
	est := EstimateSurvival(15, 1000, 3*time.Hour, 16)
	if est.Verdict != VerdictTight {
		t.Errorf("verdict = %s, want tight", est.Verdict)
	}

	// 0.8 kWh available vs 3 kWh needed: critical.
	est = EstimateSurvival(5, 1000, 3*time.Hour, 16)
	if est.Verdict != VerdictCritical {
		t.Errorf("verdict = %s, want critical", est.Verdict)
	}
}

func TestEstimateSurvivalZeroLoad(t *testing.T) {
	est := EstimateSurvival(50, 0, 4*time.Hour, 16)
	if est.Verdict != VerdictOK {
		t.Errorf("verdict = %s, want ok for zero load", est.Verdict)
	}
}

func TestSurvivalWindow(t *testing.T) {
	p := NewPoller(&StaticProvider{}, 0)
	p.SetWindows([]Window{{StartHour: 14, EndHour: 17}}, at(0, 1))

	// Inside the window: the remainder.
	d, ok := p.StatusAt(at(15, 0)).SurvivalWindow(at(15, 0))
	if !ok || d != 2*time.Hour {
		t.Errorf("active window = %v ok=%v, want 2h", d, ok)
	}

	// Before the window: its full span.
	d, ok = p.StatusAt(at(10, 0)).SurvivalWindow(at(10, 0))
	if !ok || d != 3*time.Hour {
		t.Errorf("upcoming window = %v ok=%v, want 3h", d, ok)
	}

	// After the last window there is nothing left to cover.
	if _, ok := p.StatusAt(at(20, 0)).SurvivalWindow(at(20, 0)); ok {
		t.Error("no window should remain after the schedule is exhausted")
	}
}

func TestSurvivalWindowClearSchedule(t *testing.T) {
	p := NewPoller(&StaticProvider{}, 0)
	p.SetWindows(nil, at(0, 1))
	if _, ok := p.StatusAt(at(12, 0)).SurvivalWindow(at(12, 0)); ok {
		t.Error("clear schedule has no survival window")
	}
}

func TestNoBatteryEstimate(t *testing.T) {
	est := NoBatteryEstimate()
	if est.Verdict != VerdictNoBattery {
		t.Errorf("verdict = %s, want no-battery", est.Verdict)
	}
}
