package inverter

import (
	"errors"
	"testing"

	"deye-monitor/internal/link"
	"deye-monitor/internal/registers"
)

type fakeTransport struct {
	values    map[uint16]uint16
	failAddr  *uint16
	connected bool
}

func (f *fakeTransport) Connect() error    { f.connected = true; return nil }
func (f *fakeTransport) Disconnect() error { f.connected = false; return nil }
func (f *fakeTransport) Connected() bool   { return f.connected }
func (f *fakeTransport) ReadRegister(addr uint16) (uint16, error) {
	if f.failAddr != nil && addr == *f.failAddr {
		return 0, errors.New("timeout")
	}
	return f.values[addr], nil
}

func threePhaseFixture() *fakeTransport {
	regs := registers.ForFamily(registers.FamilyThreePhase)
	return &fakeTransport{values: map[uint16]uint16{
		regs.PV1Power:        1500,
		regs.PV2Power:        800,
		regs.BatteryVoltage:  5250,  // 52.50 V
		regs.BatteryCurrent:  65036, // -5.00 A on the wire, charging
		regs.BatterySOC:      81,
		regs.GridVoltage:     2350, // 235.0 V
		regs.GridPower:       65136, // -400 W, exporting
		regs.LoadPower:       1900,
		regs.DCTemp:          1250, // 25.0 C
		regs.HeatsinkTemp:    1385, // 38.5 C
		regs.DailyPV:         124,  // 12.4 kWh
		regs.DailyGridImport: 31,
		regs.DailyGridExport: 8,
		regs.DailyLoad:       96,
		regs.LoadL1:          700,
		regs.LoadL2:          600,
		regs.LoadL3:          600,
		regs.VoltageL1:       2310,
		regs.VoltageL2:       2320,
		regs.VoltageL3:       2330,
	}}
}

func TestReadSnapshotThreePhase(t *testing.T) {
	tr := threePhaseFixture()
	r := NewReader(link.New(tr), DefaultCapabilities())

	snap := r.ReadSnapshot(nil)
	if snap.Err != "" {
		t.Fatalf("snapshot error: %s", snap.Err)
	}

	if snap.PVTotalPower != 2300 {
		t.Errorf("pv total = %d, want 2300", snap.PVTotalPower)
	}
	if snap.BatteryVoltage != 52.5 {
		t.Errorf("battery voltage = %v, want 52.5", snap.BatteryVoltage)
	}
	if snap.BatteryCurrent != 5.0 {
		t.Errorf("battery current = %v, want 5.0", snap.BatteryCurrent)
	}
	if snap.BatteryStatus != "Charging" {
		t.Errorf("battery status = %s, want Charging", snap.BatteryStatus)
	}
	if snap.BatterySOCRaw != 81 {
		t.Errorf("raw SOC = %d, want 81", snap.BatterySOCRaw)
	}
	// 52.50 V sits between the 80% and 90% curve anchors.
	if snap.BatterySOC < 80 || snap.BatterySOC > 90 {
		t.Errorf("curve SOC = %d, want within [80,90]", snap.BatterySOC)
	}
	if snap.GridVoltage != 235.0 {
		t.Errorf("grid voltage = %v, want 235.0", snap.GridVoltage)
	}
	if snap.GridPower != -400 || snap.GridStatus != "Exporting" {
		t.Errorf("grid = %d %s, want -400 Exporting", snap.GridPower, snap.GridStatus)
	}
	if snap.DCTemp != 25.0 || snap.HeatsinkTemp != 38.5 {
		t.Errorf("temps = %v/%v, want 25.0/38.5", snap.DCTemp, snap.HeatsinkTemp)
	}
	if snap.DailyPV != 12.4 {
		t.Errorf("daily pv = %v, want 12.4", snap.DailyPV)
	}
	if snap.LoadL1 != 700 || snap.VoltageL3 != 233.0 {
		t.Errorf("phases = %d/%v", snap.LoadL1, snap.VoltageL3)
	}
}

type fixedSmoothed struct {
	voltage float64
	soc     int
}

func (f fixedSmoothed) Voltage() (float64, bool) { return f.voltage, true }
func (f fixedSmoothed) SOC() (int, bool)         { return f.soc, true }

func TestReadSnapshotPrefersSmoothedBattery(t *testing.T) {
	tr := threePhaseFixture()
	r := NewReader(link.New(tr), DefaultCapabilities())

	snap := r.ReadSnapshot(fixedSmoothed{voltage: 53.0, soc: 84})
	if snap.Err != "" {
		t.Fatalf("snapshot error: %s", snap.Err)
	}
	if snap.BatteryVoltage != 53.0 {
		t.Errorf("battery voltage = %v, want smoothed 53.0", snap.BatteryVoltage)
	}
	if snap.BatterySOC != 84 {
		t.Errorf("battery SOC = %d, want smoothed 84", snap.BatterySOC)
	}
}

func TestReadSnapshotNoBattery(t *testing.T) {
	tr := threePhaseFixture()
	caps := DefaultCapabilities()
	caps.HasBattery = false
	r := NewReader(link.New(tr), caps)

	snap := r.ReadSnapshot(nil)
	if snap.Err != "" {
		t.Fatalf("snapshot error: %s", snap.Err)
	}
	if snap.BatteryStatus != "N/A" {
		t.Errorf("battery status = %s, want N/A", snap.BatteryStatus)
	}
	if snap.BatteryVoltage != 0 || snap.BatterySOC != 0 {
		t.Error("battery fields should stay zero without a battery")
	}
}

func TestReadSnapshotErrorDisconnects(t *testing.T) {
	tr := threePhaseFixture()
	regs := registers.ForFamily(registers.FamilyThreePhase)
	fail := regs.GridVoltage
	tr.failAddr = &fail

	r := NewReader(link.New(tr), DefaultCapabilities())
	snap := r.ReadSnapshot(nil)

	if snap.Err == "" {
		t.Fatal("expected snapshot error")
	}
	if tr.connected {
		t.Error("link should disconnect after a failed cycle")
	}
	// Fields read before the failure are kept.
	if snap.PVTotalPower != 2300 {
		t.Errorf("pv total = %d, want 2300 from partial cycle", snap.PVTotalPower)
	}
}

func TestCapabilitiesFamily(t *testing.T) {
	caps := Capabilities{Phases: 3}
	if caps.Family() != registers.FamilyThreePhase {
		t.Error("3 phases should map to the three-phase family")
	}
	caps.Phases = 1
	if caps.Family() != registers.FamilySinglePhaseHybrid {
		t.Error("1 phase should map to the single-phase-hybrid family")
	}
}
