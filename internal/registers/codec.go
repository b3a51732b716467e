package registers

// ToSigned16 interprets a raw 16-bit register value as two's-complement.
func ToSigned16(raw uint16) int {
	if raw >= 32768 {
		return int(raw) - 65536
	}
	return int(raw)
}

// CurvePoint is one anchor of a battery discharge curve: pack voltage
// mapped to state of charge in percent. Curves are ordered by descending
// voltage.
type CurvePoint struct {
	Voltage float64
	SOC     int
}

// LiFePO4_16S is the discharge curve for a 16-cell LiFePO4 pack
// (51.2V nominal, 57.6V full, 48.0V empty).
var LiFePO4_16S = []CurvePoint{
	{57.6, 100}, {56.0, 99}, {54.4, 95}, {53.6, 90},
	{53.2, 80}, {52.8, 70}, {52.4, 60}, {52.0, 50},
	{51.6, 40}, {51.2, 30}, {50.4, 17}, {48.0, 0},
}

// VoltageToSOC converts a battery voltage to state of charge by piecewise
// linear interpolation over curve. Voltages above the first anchor clamp to
// 100, below the last anchor to 0. The result is floored to a whole percent.
func VoltageToSOC(voltage float64, curve []CurvePoint) int {
	if len(curve) == 0 {
		return 0
	}
	if voltage >= curve[0].Voltage {
		return 100
	}
	if voltage <= curve[len(curve)-1].Voltage {
		return 0
	}
	for i := 0; i < len(curve)-1; i++ {
		high := curve[i]
		low := curve[i+1]
		if voltage >= low.Voltage {
			ratio := (voltage - low.Voltage) / (high.Voltage - low.Voltage)
			return low.SOC + int(ratio*float64(high.SOC-low.SOC))
		}
	}
	return 0
}
