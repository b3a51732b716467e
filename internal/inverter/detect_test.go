package inverter

import (
	"testing"

	"deye-monitor/internal/link"
	"deye-monitor/internal/registers"
)

func init() {
	detectSpacing = 0
}

func TestDetectConcludesNoBattery(t *testing.T) {
	// Every register reads 0 successfully: single phase, no battery, no
	// generator. A readable 0 V battery is conclusive absence, not a probe
	// failure.
	tr := &fakeTransport{values: map[uint16]uint16{}}
	caps := Detect(link.New(tr))

	if caps.HasBattery {
		t.Error("successful 0 V reads should conclude no battery")
	}
	if caps.Phases != 1 {
		t.Errorf("phases = %d, want 1", caps.Phases)
	}
	if caps.HasGenerator {
		t.Error("0 W generator should conclude no generator")
	}
	if caps.PVStrings != 2 {
		t.Errorf("pv strings = %d, want the default 2 on all-zero PV2", caps.PVStrings)
	}
}

func TestDetectDefaultsBatteryWhenReadsFail(t *testing.T) {
	regs := registers.ForFamily(registers.FamilySinglePhaseHybrid)
	fail := regs.BatteryVoltage
	tr := &fakeTransport{values: map[uint16]uint16{}, failAddr: &fail}

	caps := Detect(link.New(tr))
	if !caps.HasBattery {
		t.Error("battery should default to present when no voltage read succeeds")
	}
}

func TestDetectFindsBattery(t *testing.T) {
	regs := registers.ForFamily(registers.FamilySinglePhaseHybrid)
	tr := &fakeTransport{values: map[uint16]uint16{
		regs.BatteryVoltage: 5250, // 52.50 V
	}}

	caps := Detect(link.New(tr))
	if !caps.HasBattery {
		t.Error("52.5 V should detect a battery")
	}
}

func TestDetectThreePhase(t *testing.T) {
	regs := registers.ForFamily(registers.FamilyThreePhase)
	tr := &fakeTransport{values: map[uint16]uint16{
		regs.VoltageL2: 2320,
		regs.VoltageL3: 2330,
	}}

	caps := Detect(link.New(tr))
	if caps.Phases != 3 {
		t.Errorf("phases = %d, want 3 with live L2/L3", caps.Phases)
	}
}
