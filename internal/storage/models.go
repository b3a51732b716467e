package storage

import (
	"time"

	"gorm.io/gorm"
)

type InverterReading struct {
	gorm.Model
	Timestamp time.Time `gorm:"index" json:"timestamp"`

	// PV
	PV1Power     int `json:"pv1_power_w"`
	PV2Power     int `json:"pv2_power_w"`
	PVTotalPower int `json:"pv_total_power_w"`

	// Battery
	BatteryVoltage float64 `json:"battery_voltage_v"`
	BatteryCurrent float64 `json:"battery_current_a"`
	BatteryPower   int     `json:"battery_power_w"`
	BatterySOC     int     `json:"battery_soc_pct"`
	BatteryStatus  string  `json:"battery_status"`

	// Grid
	GridVoltage float64 `json:"grid_voltage_v"`
	GridPower   int     `json:"grid_power_w"`
	GridStatus  string  `json:"grid_status"`

	// Load
	LoadPower int `json:"load_power_w"`
	LoadL1    int `json:"load_l1_w"`
	LoadL2    int `json:"load_l2_w"`
	LoadL3    int `json:"load_l3_w"`

	// Generator
	GeneratorPower int `json:"gen_power_w"`

	// Temperature
	DCTemp       float64 `json:"dc_temp_c"`
	HeatsinkTemp float64 `json:"heatsink_temp_c"`

	// Device daily counters
	DailyPV         float64 `json:"daily_pv_kwh"`
	DailyGridImport float64 `json:"daily_grid_import_kwh"`
	DailyGridExport float64 `json:"daily_grid_export_kwh"`
	DailyLoad       float64 `json:"daily_load_kwh"`
}

type DailyStats struct {
	Date           time.Time `json:"date"`
	MaxLoad        int       `json:"max_load_w"`
	PVEnergy       float64   `json:"pv_energy_kwh"`
	GridImport     float64   `json:"grid_import_kwh"`
	AvgTemperature float64   `json:"avg_temperature_c"`
	ReadingsCount  int64     `json:"readings_count"`
}
