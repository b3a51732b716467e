// Package notify renders monitor events into messages and delivers them.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"deye-monitor/internal/monitor"
	"deye-monitor/internal/outage"
)

// LogNotifier writes events to the log. It is the fallback sink when no
// transport is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(e monitor.Event) {
	logrus.Infof("notification: %s", strings.ReplaceAll(Render(e), "\n", " | "))
}

// Render formats an event as user-facing text.
func Render(e monitor.Event) string {
	var b strings.Builder
	switch e.Type {
	case monitor.EventGridDown:
		fmt.Fprintf(&b, "⚡ Grid power lost (%.1f V)", e.GridVoltage)
		if e.HasBattery {
			fmt.Fprintf(&b, "\nRunning on battery: %d%% at %d W load", e.SOC, e.LoadW)
		}
		if e.Schedule != nil {
			b.WriteString("\n")
			b.WriteString(renderSchedule(*e.Schedule, e.At))
		}
		if e.Survival != nil {
			b.WriteString("\n")
			b.WriteString(renderSurvival(*e.Survival))
		}
	case monitor.EventGridRestored:
		fmt.Fprintf(&b, "✅ Grid power restored (%.1f V)", e.GridVoltage)
		if e.HasBattery {
			fmt.Fprintf(&b, "\nBattery: %d%%", e.SOC)
		}
	case monitor.EventBatteryLow:
		fmt.Fprintf(&b, "🔋 Battery low: %d%% (load %d W)", e.SOC, e.LoadW)
	default:
		fmt.Fprintf(&b, "event: %s", e.Type)
	}
	return b.String()
}

func renderSchedule(s outage.Status, now time.Time) string {
	switch s.State {
	case outage.StateActive:
		return fmt.Sprintf("Scheduled outage until %s (%d min remaining)",
			s.End.Format("15:04"), s.RemainingMinutes)
	case outage.StateUpcoming:
		if len(s.Upcoming) > 0 {
			next := s.Upcoming[0]
			return fmt.Sprintf("Not in a scheduled window; next outage %s–%s",
				next.Start.Format("15:04"), next.End.Format("15:04"))
		}
		return "Not in a scheduled window"
	case outage.StateClear:
		return "No outages scheduled today"
	default:
		return "Outage schedule unknown"
	}
}

func renderSurvival(est outage.Estimate) string {
	switch est.Verdict {
	case outage.VerdictOK:
		return fmt.Sprintf("Battery check: OK (%.1f kWh available, %.1f kWh needed)",
			est.AvailableKWh, est.NeededKWh)
	case outage.VerdictTight:
		return fmt.Sprintf("Battery check: tight, reduce load (%.1f kWh available, %.1f kWh needed)",
			est.AvailableKWh, est.NeededKWh)
	case outage.VerdictCritical:
		return fmt.Sprintf("Battery check: CRITICAL, will not last (%.1f kWh available, %.1f kWh needed)",
			est.AvailableKWh, est.NeededKWh)
	case outage.VerdictNoBattery:
		return "No battery installed"
	}
	return ""
}
