package registers

import "fmt"

// Family identifies the vendor register layout. The two firmware families
// share the Solarman transport but use disjoint address spaces; mixing them
// yields plausible-looking garbage, so the family is fixed at startup.
type Family string

const (
	FamilyThreePhase        Family = "three-phase"
	FamilySinglePhaseHybrid Family = "single-phase-hybrid"
)

// ParseFamily maps a configuration string to a Family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "", "three-phase", "3p":
		return FamilyThreePhase, nil
	case "single-phase-hybrid", "single-phase", "1p", "sunsynk":
		return FamilySinglePhaseHybrid, nil
	}
	return "", fmt.Errorf("unknown register family %q", s)
}

// Map holds the register addresses for one family. Scaling rules are applied
// by the reader; addresses here are raw holding-register offsets.
type Map struct {
	PV1Power uint16
	PV2Power uint16

	BatteryVoltage uint16 // centivolt
	BatteryCurrent uint16 // signed centiamp, charge negative on the wire
	BatterySOC     uint16 // percent

	GridVoltage uint16 // decivolt
	GridPower   uint16 // signed watt

	LoadPower uint16

	// Per-phase registers, three-phase family only.
	LoadL1, LoadL2, LoadL3          uint16
	VoltageL1, VoltageL2, VoltageL3 uint16
	HasPhaseRegisters               bool

	DCTemp       uint16 // (raw-1000)/10 degC
	HeatsinkTemp uint16

	DailyPV         uint16 // deci-kWh
	DailyGridImport uint16
	DailyGridExport uint16
	DailyLoad       uint16

	GeneratorPower uint16
}

var threePhaseMap = Map{
	PV1Power: 514,
	PV2Power: 515,

	BatteryVoltage: 587,
	BatteryCurrent: 586,
	BatterySOC:     588,

	GridVoltage: 598,
	GridPower:   607,

	LoadPower: 653,

	LoadL1: 650, LoadL2: 651, LoadL3: 652,
	VoltageL1: 644, VoltageL2: 645, VoltageL3: 646,
	HasPhaseRegisters: true,

	DCTemp:       540,
	HeatsinkTemp: 541,

	DailyPV:         502,
	DailyGridImport: 520,
	DailyGridExport: 521,
	DailyLoad:       526,

	GeneratorPower: 667,
}

var singlePhaseHybridMap = Map{
	PV1Power: 186,
	PV2Power: 187,

	BatteryVoltage: 183,
	BatteryCurrent: 191,
	BatterySOC:     184,

	GridVoltage: 150,
	GridPower:   169,

	LoadPower: 178,

	HasPhaseRegisters: false,

	DCTemp:       90,
	HeatsinkTemp: 91,

	DailyPV:         108,
	DailyGridImport: 76,
	DailyGridExport: 77,
	DailyLoad:       84,

	GeneratorPower: 166,
}

// ForFamily returns the register map for a family. The maps are value copies;
// callers cannot mutate the package tables.
func ForFamily(f Family) Map {
	if f == FamilySinglePhaseHybrid {
		return singlePhaseHybridMap
	}
	return threePhaseMap
}
