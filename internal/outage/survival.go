package outage

import "time"

// Verdict grades whether the battery covers an upcoming window.
type Verdict string

const (
	VerdictOK        Verdict = "ok"       // available ≥ 1.1× needed
	VerdictTight     Verdict = "tight"    // available ≥ 0.7× needed
	VerdictCritical  Verdict = "critical" // anything less
	VerdictNoBattery Verdict = "no-battery"
)

// Estimate is a survival calculation for one upcoming window.
type Estimate struct {
	Verdict      Verdict `json:"verdict"`
	NeededKWh    float64 `json:"needed_kwh"`
	AvailableKWh float64 `json:"available_kwh"`
}

// SurvivalWindow picks the span the battery must cover: the remainder of an
// active window, or the full length of the nearest upcoming one. ok is false
// when the schedule has nothing to estimate against.
func (s Status) SurvivalWindow(now time.Time) (time.Duration, bool) {
	switch s.State {
	case StateActive:
		return s.End.Sub(now), true
	case StateUpcoming:
		if len(s.Upcoming) > 0 {
			next := s.Upcoming[0]
			return next.End.Sub(next.Start), true
		}
	}
	return 0, false
}

// NoBatteryEstimate is the fixed verdict for systems without storage.
func NoBatteryEstimate() Estimate {
	return Estimate{Verdict: VerdictNoBattery}
}

// EstimateSurvival compares the energy the current load draws over the
// window against what the battery holds at its current state of charge.
func EstimateSurvival(socPct, loadW int, duration time.Duration, capacityKWh float64) Estimate {
	e := Estimate{
		NeededKWh:    float64(loadW) / 1000 * duration.Hours(),
		AvailableKWh: capacityKWh * float64(socPct) / 100,
	}
	switch {
	case e.NeededKWh <= 0 || e.AvailableKWh >= e.NeededKWh*1.1:
		e.Verdict = VerdictOK
	case e.AvailableKWh >= e.NeededKWh*0.7:
		e.Verdict = VerdictTight
	default:
		e.Verdict = VerdictCritical
	}
	return e
}
