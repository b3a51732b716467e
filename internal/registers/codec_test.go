package registers

import "testing"

func TestToSigned16(t *testing.T) {
	cases := []struct {
		raw  uint16
		want int
	}{
		{0, 0},
		{1, 1},
		{32767, 32767},
		{32768, -32768},
		{65535, -1},
		{65436, -100},
	}
	for _, c := range cases {
		if got := ToSigned16(c.raw); got != c.want {
			t.Errorf("ToSigned16(%d) = %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestVoltageToSOCAnchors(t *testing.T) {
	cases := []struct {
		voltage float64
		want    int
	}{
		{57.6, 100},
		{56.0, 99},
		{53.2, 80},
		{52.0, 50},
		{50.4, 17},
		{48.0, 0},
	}
	for _, c := range cases {
		if got := VoltageToSOC(c.voltage, LiFePO4_16S); got != c.want {
			t.Errorf("VoltageToSOC(%.1f) = %d, want %d", c.voltage, got, c.want)
		}
	}
}

func TestVoltageToSOCClamps(t *testing.T) {
	if got := VoltageToSOC(60.0, LiFePO4_16S); got != 100 {
		t.Errorf("above curve = %d, want 100", got)
	}
	if got := VoltageToSOC(40.0, LiFePO4_16S); got != 0 {
		t.Errorf("below curve = %d, want 0", got)
	}
}

func TestVoltageToSOCInterpolates(t *testing.T) {
	// Halfway between 52.0 (50%) and 52.4 (60%)
	if got := VoltageToSOC(52.2, LiFePO4_16S); got != 55 {
		t.Errorf("VoltageToSOC(52.2) = %d, want 55", got)
	}
	// Between 50.4 (17%) and 51.2 (30%); floored, never rounded up
	got := VoltageToSOC(50.8, LiFePO4_16S)
	if got != 23 {
		t.Errorf("VoltageToSOC(50.8) = %d, want 23", got)
	}
}

func TestFamilyMapsDiffer(t *testing.T) {
	three := ForFamily(FamilyThreePhase)
	single := ForFamily(FamilySinglePhaseHybrid)

	if three.BatteryVoltage == single.BatteryVoltage {
		t.Error("families should not share battery voltage registers")
	}
	if !three.HasPhaseRegisters {
		t.Error("three-phase map should expose phase registers")
	}
	if single.HasPhaseRegisters {
		t.Error("single-phase map should not expose phase registers")
	}
}

func TestParseFamily(t *testing.T) {
	if f, err := ParseFamily("three-phase"); err != nil || f != FamilyThreePhase {
		t.Errorf("ParseFamily(three-phase) = %v, %v", f, err)
	}
	if f, err := ParseFamily("single-phase-hybrid"); err != nil || f != FamilySinglePhaseHybrid {
		t.Errorf("ParseFamily(single-phase-hybrid) = %v, %v", f, err)
	}
	if _, err := ParseFamily("bogus"); err == nil {
		t.Error("ParseFamily(bogus) should fail")
	}
}
