package inverter

import (
	"time"

	"deye-monitor/internal/registers"
)

// Capabilities describes what the connected inverter actually has attached.
// Built once at startup from config or auto-detection, then treated as
// immutable; changing it requires a restart.
type Capabilities struct {
	Phases       int  `json:"phases"` // 1 or 3
	HasBattery   bool `json:"has_battery"`
	PVStrings    int  `json:"pv_strings"` // 1 or 2
	HasGenerator bool `json:"has_generator"`
}

// DefaultCapabilities is the fallback when detection fails outright: assume
// the richer system so monitored features are not silently disabled.
func DefaultCapabilities() Capabilities {
	return Capabilities{Phases: 3, HasBattery: true, PVStrings: 2, HasGenerator: false}
}

// Family maps the phase count onto the register family.
func (c Capabilities) Family() registers.Family {
	if c.Phases == 3 {
		return registers.FamilyThreePhase
	}
	return registers.FamilySinglePhaseHybrid
}

// Snapshot is one complete read cycle. The output shape is the same for every
// family; subsystems the inverter does not have read as zero. A non-empty Err
// means the cycle aborted partway and only the fields assigned before the
// failure are meaningful.
type Snapshot struct {
	Timestamp time.Time `json:"last_updated"`

	PV1Power     int `json:"pv1_power"`
	PV2Power     int `json:"pv2_power"`
	PVTotalPower int `json:"pv_total_power"`

	BatteryVoltage float64 `json:"battery_voltage"`
	BatteryCurrent float64 `json:"battery_current"`
	BatteryPower   int     `json:"battery_power"`
	BatterySOC     int     `json:"battery_soc"`
	BatterySOCRaw  int     `json:"battery_soc_raw"`
	BatteryStatus  string  `json:"battery_status"`

	GridVoltage float64 `json:"grid_voltage"`
	GridPower   int     `json:"grid_power"`
	GridStatus  string  `json:"grid_status"`

	LoadPower int `json:"load_power"`

	LoadL1    int     `json:"load_l1,omitempty"`
	LoadL2    int     `json:"load_l2,omitempty"`
	LoadL3    int     `json:"load_l3,omitempty"`
	VoltageL1 float64 `json:"voltage_l1,omitempty"`
	VoltageL2 float64 `json:"voltage_l2,omitempty"`
	VoltageL3 float64 `json:"voltage_l3,omitempty"`

	GeneratorPower int `json:"gen_power"`

	DCTemp       float64 `json:"dc_temp"`
	HeatsinkTemp float64 `json:"heatsink_temp"`

	DailyPV         float64 `json:"daily_pv"`
	DailyGridImport float64 `json:"daily_grid_import"`
	DailyGridExport float64 `json:"daily_grid_export"`
	DailyLoad       float64 `json:"daily_load"`

	Err string `json:"error,omitempty"`
}
