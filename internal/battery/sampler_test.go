package battery

import (
	"testing"

	"deye-monitor/internal/link"
	"deye-monitor/internal/registers"
)

type fakeTransport struct {
	values    map[uint16]uint16
	connected bool
}

func (f *fakeTransport) Connect() error    { f.connected = true; return nil }
func (f *fakeTransport) Disconnect() error { f.connected = false; return nil }
func (f *fakeTransport) Connected() bool   { return f.connected }
func (f *fakeTransport) ReadRegister(addr uint16) (uint16, error) {
	return f.values[addr], nil
}

func TestRingBufferEvictsOldest(t *testing.T) {
	b := newRingBuffer(3)
	for _, v := range []float64{1, 2, 3, 4} {
		b.push(v)
	}
	mean, ok := b.mean()
	if !ok {
		t.Fatal("mean should be available")
	}
	if mean != 3 {
		t.Errorf("mean = %v, want 3 (oldest evicted)", mean)
	}
}

func TestRingBufferMedian(t *testing.T) {
	b := newRingBuffer(6)
	for _, v := range []float64{20, 25, 30} {
		b.push(v)
	}
	m, ok := b.median()
	if !ok || m != 25 {
		t.Errorf("median = %v, %v, want 25", m, ok)
	}

	b.push(100)
	m, _ = b.median()
	if m != 27.5 {
		t.Errorf("even median = %v, want 27.5", m)
	}
}

func TestRingBufferEmpty(t *testing.T) {
	b := newRingBuffer(6)
	if _, ok := b.mean(); ok {
		t.Error("empty mean should report no data")
	}
	if _, ok := b.median(); ok {
		t.Error("empty median should report no data")
	}
}

func TestSamplerAcceptsPlausibleReadings(t *testing.T) {
	regs := registers.ForFamily(registers.FamilyThreePhase)
	tr := &fakeTransport{values: map[uint16]uint16{
		regs.BatteryVoltage: 5250, // 52.50 V
		regs.BatterySOC:     78,
	}}
	l := link.New(tr)
	s := NewSampler(l, regs, 0, 0)

	s.sample()

	v, ok := s.Voltage()
	if !ok || v != 52.5 {
		t.Errorf("Voltage = %v, %v, want 52.5", v, ok)
	}
	soc, ok := s.SOC()
	if !ok || soc != 78 {
		t.Errorf("SOC = %v, %v, want 78", soc, ok)
	}
}

func TestSamplerRejectsImplausibleReadings(t *testing.T) {
	regs := registers.ForFamily(registers.FamilyThreePhase)
	tr := &fakeTransport{values: map[uint16]uint16{
		regs.BatteryVoltage: 100, // 1.00 V, sensor glitch
		regs.BatterySOC:     255,
	}}
	l := link.New(tr)
	s := NewSampler(l, regs, 0, 0)

	s.sample()

	if _, ok := s.Voltage(); ok {
		t.Error("implausible voltage should not enter the buffer")
	}
	if _, ok := s.SOC(); ok {
		t.Error("implausible SOC should not enter the buffer")
	}
}

func TestSamplerSmoothsSpikes(t *testing.T) {
	regs := registers.ForFamily(registers.FamilyThreePhase)
	tr := &fakeTransport{values: map[uint16]uint16{}}
	l := link.New(tr)
	s := NewSampler(l, regs, 0, 0)

	for _, soc := range []uint16{70, 71, 20, 72, 71, 70} {
		tr.values[regs.BatteryVoltage] = 5200
		tr.values[regs.BatterySOC] = soc
		s.sample()
	}

	soc, ok := s.SOC()
	if !ok {
		t.Fatal("SOC should be available")
	}
	if soc != 70 {
		t.Errorf("median SOC = %d, want 70 (spike shed)", soc)
	}
}
