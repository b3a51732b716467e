package inverter

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"deye-monitor/internal/link"
	"deye-monitor/internal/registers"
)

const detectSamples = 3

var detectSpacing = 2 * time.Second

// Detect probes diagnostic registers to infer the inverter's configuration.
// Each probe takes detectSamples readings spaced detectSpacing apart and ORs
// the results: transient glitches can lose a reading but any positive sample
// wins. Individual read failures count as a zero reading, never an abort.
//
// Biases on inconclusive probes: battery defaults to present only when every
// voltage read failed (a successful 0 V read is conclusive absence), PV2
// defaults to present (PV2 reads zero at night; hiding a real string would
// silently drop data), generator defaults to absent (a phantom generator
// would pollute runtime stats).
func Detect(l *link.Link) Capabilities {
	threePhaseRegs := registers.ForFamily(registers.FamilyThreePhase)

	// Stage 1: phase count via the three-phase map's L2/L3 voltages.
	phases3 := false
	probe(l, "phases", func(read link.ReadFunc) error {
		v2, ok2 := readOrZero(read, threePhaseRegs.VoltageL2)
		v3, ok3 := readOrZero(read, threePhaseRegs.VoltageL3)
		if float64(v2)/10 > 50 || float64(v3)/10 > 50 {
			phases3 = true
		}
		return sampleErr(ok2 && ok3)
	})

	// Stage 2: battery and second PV string, via the map stage 1 implies.
	regs := threePhaseRegs
	if !phases3 {
		regs = registers.ForFamily(registers.FamilySinglePhaseHybrid)
	}
	hasBattery := false
	batteryRead := false
	pv2 := false
	probe(l, "battery/pv2", func(read link.ReadFunc) error {
		bv, okB := readOrZero(read, regs.BatteryVoltage)
		if okB {
			batteryRead = true
		}
		if float64(bv)/100 > 10 {
			hasBattery = true
		}
		pw, okP := readOrZero(read, regs.PV2Power)
		if pw > 0 {
			pv2 = true
		}
		return sampleErr(okB && okP)
	})
	if !hasBattery && !batteryRead {
		logrus.Warn("detect: no battery voltage read succeeded, assuming battery present")
		hasBattery = true
	}
	if !pv2 {
		logrus.Warn("detect: PV2 power was 0 in all samples (unreliable at night), defaulting to 2 strings")
		pv2 = true
	}

	// Stage 3: generator power at the family-specific address.
	hasGenerator := false
	probe(l, "generator", func(read link.ReadFunc) error {
		gw, ok := readOrZero(read, regs.GeneratorPower)
		if gw > 0 {
			hasGenerator = true
		}
		return sampleErr(ok)
	})

	caps := Capabilities{
		Phases:       1,
		HasBattery:   hasBattery,
		PVStrings:    1,
		HasGenerator: hasGenerator,
	}
	if phases3 {
		caps.Phases = 3
	}
	if pv2 {
		caps.PVStrings = 2
	}
	logrus.Infof("detect: phases=%d battery=%v pv_strings=%d generator=%v",
		caps.Phases, caps.HasBattery, caps.PVStrings, caps.HasGenerator)
	return caps
}

// errSample makes Session drop the connection after a sample with failed
// reads, so the next sample starts from a fresh one.
var errSample = errors.New("sample had failed reads")

func sampleErr(allOK bool) error {
	if allOK {
		return nil
	}
	return errSample
}

func probe(l *link.Link, name string, sample func(read link.ReadFunc) error) {
	for i := 0; i < detectSamples; i++ {
		if err := l.Session(sample); err != nil {
			logrus.Warnf("detect: %s sample %d failed: %v", name, i+1, err)
		}
		if i < detectSamples-1 {
			time.Sleep(detectSpacing)
		}
	}
}

func readOrZero(read link.ReadFunc, addr uint16) (uint16, bool) {
	v, err := read(addr)
	if err != nil {
		logrus.Debugf("detect: read of register %d failed: %v", addr, err)
		return 0, false
	}
	return v, true
}
