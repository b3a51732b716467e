package inverter

import (
	"time"

	"deye-monitor/internal/link"
	"deye-monitor/internal/registers"
)

// SmoothedSource supplies de-noised battery values from the background
// sampler. A false second return means "no valid samples yet"; the reader
// then falls back to the raw single-shot register value.
type SmoothedSource interface {
	Voltage() (float64, bool)
	SOC() (int, bool)
}

// Reader executes full register read cycles for one detected configuration.
type Reader struct {
	link  *link.Link
	regs  registers.Map
	caps  Capabilities
	curve []registers.CurvePoint
}

func NewReader(l *link.Link, caps Capabilities) *Reader {
	return &Reader{
		link:  l,
		regs:  registers.ForFamily(caps.Family()),
		caps:  caps,
		curve: registers.LiFePO4_16S,
	}
}

func (r *Reader) Capabilities() Capabilities {
	return r.caps
}

// ReadSnapshot performs one full multi-register cycle under the link lock.
// On a read failure the snapshot's Err field is set and whatever fields were
// assigned before the failure are kept; the link reconnects next cycle.
func (r *Reader) ReadSnapshot(smoothed SmoothedSource) Snapshot {
	snap := Snapshot{Timestamp: time.Now()}

	err := r.link.Session(func(read link.ReadFunc) error {
		return r.fill(&snap, read, smoothed)
	})
	if err != nil {
		snap.Err = err.Error()
	}
	return snap
}

func (r *Reader) fill(snap *Snapshot, read link.ReadFunc, smoothed SmoothedSource) error {
	pv1, err := read(r.regs.PV1Power)
	if err != nil {
		return err
	}
	snap.PV1Power = int(pv1)

	if r.caps.PVStrings >= 2 {
		pv2, err := read(r.regs.PV2Power)
		if err != nil {
			return err
		}
		snap.PV2Power = int(pv2)
	}
	snap.PVTotalPower = snap.PV1Power + snap.PV2Power

	if r.caps.HasBattery {
		if err := r.fillBattery(snap, read, smoothed); err != nil {
			return err
		}
	} else {
		snap.BatteryStatus = "N/A"
	}

	gridV, err := read(r.regs.GridVoltage)
	if err != nil {
		return err
	}
	snap.GridVoltage = float64(gridV) / 10

	gridP, err := read(r.regs.GridPower)
	if err != nil {
		return err
	}
	snap.GridPower = registers.ToSigned16(gridP)
	switch {
	case snap.GridPower > 0:
		snap.GridStatus = "Importing"
	case snap.GridPower < 0:
		snap.GridStatus = "Exporting"
	default:
		snap.GridStatus = "Idle"
	}

	loadP, err := read(r.regs.LoadPower)
	if err != nil {
		return err
	}
	snap.LoadPower = int(loadP)

	if r.caps.HasGenerator {
		genP, err := read(r.regs.GeneratorPower)
		if err != nil {
			return err
		}
		snap.GeneratorPower = int(genP)
	}

	dcT, err := read(r.regs.DCTemp)
	if err != nil {
		return err
	}
	snap.DCTemp = (float64(dcT) - 1000) / 10

	hsT, err := read(r.regs.HeatsinkTemp)
	if err != nil {
		return err
	}
	snap.HeatsinkTemp = (float64(hsT) - 1000) / 10

	dailyPV, err := read(r.regs.DailyPV)
	if err != nil {
		return err
	}
	snap.DailyPV = float64(dailyPV) / 10

	dailyImport, err := read(r.regs.DailyGridImport)
	if err != nil {
		return err
	}
	snap.DailyGridImport = float64(dailyImport) / 10

	dailyExport, err := read(r.regs.DailyGridExport)
	if err != nil {
		return err
	}
	snap.DailyGridExport = float64(dailyExport) / 10

	dailyLoad, err := read(r.regs.DailyLoad)
	if err != nil {
		return err
	}
	snap.DailyLoad = float64(dailyLoad) / 10

	if r.caps.Phases == 3 && r.regs.HasPhaseRegisters {
		if err := r.fillPhases(snap, read); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) fillBattery(snap *Snapshot, read link.ReadFunc, smoothed SmoothedSource) error {
	rawV, err := read(r.regs.BatteryVoltage)
	if err != nil {
		return err
	}
	snap.BatteryVoltage = float64(rawV) / 100

	rawC, err := read(r.regs.BatteryCurrent)
	if err != nil {
		return err
	}
	// The register reports charge as positive; flip so positive means
	// charging from the consumer's point of view is preserved downstream.
	snap.BatteryCurrent = -float64(registers.ToSigned16(rawC)) / 100

	// Prefer de-noised sampler values over the single-shot reading.
	snap.BatterySOC = registers.VoltageToSOC(snap.BatteryVoltage, r.curve)
	if smoothed != nil {
		if v, ok := smoothed.Voltage(); ok {
			snap.BatteryVoltage = v
			if soc, ok := smoothed.SOC(); ok {
				snap.BatterySOC = soc
			} else {
				snap.BatterySOC = registers.VoltageToSOC(v, r.curve)
			}
		}
	}

	rawSOC, err := read(r.regs.BatterySOC)
	if err != nil {
		return err
	}
	snap.BatterySOCRaw = int(rawSOC)

	snap.BatteryPower = int(snap.BatteryVoltage * snap.BatteryCurrent)
	switch {
	case snap.BatteryCurrent > 0:
		snap.BatteryStatus = "Charging"
	case snap.BatteryCurrent < 0:
		snap.BatteryStatus = "Discharging"
	default:
		snap.BatteryStatus = "Idle"
	}
	return nil
}

func (r *Reader) fillPhases(snap *Snapshot, read link.ReadFunc) error {
	l1, err := read(r.regs.LoadL1)
	if err != nil {
		return err
	}
	snap.LoadL1 = int(l1)

	l2, err := read(r.regs.LoadL2)
	if err != nil {
		return err
	}
	snap.LoadL2 = int(l2)

	l3, err := read(r.regs.LoadL3)
	if err != nil {
		return err
	}
	snap.LoadL3 = int(l3)

	v1, err := read(r.regs.VoltageL1)
	if err != nil {
		return err
	}
	snap.VoltageL1 = float64(v1) / 10

	v2, err := read(r.regs.VoltageL2)
	if err != nil {
		return err
	}
	snap.VoltageL2 = float64(v2) / 10

	v3, err := read(r.regs.VoltageL3)
	if err != nil {
		return err
	}
	snap.VoltageL3 = float64(v3) / 10
	return nil
}
