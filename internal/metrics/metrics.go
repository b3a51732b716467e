// Package metrics exposes the latest inverter snapshot as Prometheus
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"deye-monitor/internal/inverter"
)

// SnapshotSource supplies the cached snapshot to scrape from.
type SnapshotSource interface {
	Latest() (inverter.Snapshot, bool)
}

// CycleCounter is implemented by sources that track poll outcomes.
type CycleCounter interface {
	Counts() (cycles, failures uint64)
}

type Collector struct {
	source SnapshotSource

	pvPower        *prometheus.Desc
	batteryVoltage *prometheus.Desc
	batteryPower   *prometheus.Desc
	batterySOC     *prometheus.Desc
	gridVoltage    *prometheus.Desc
	gridPower      *prometheus.Desc
	loadPower      *prometheus.Desc
	phaseLoad      *prometheus.Desc
	phaseVoltage   *prometheus.Desc
	genPower       *prometheus.Desc
	heatsinkTemp   *prometheus.Desc
	dcTemp         *prometheus.Desc
	dailyPV        *prometheus.Desc
	dailyImport    *prometheus.Desc
	dailyExport    *prometheus.Desc
	dailyLoad      *prometheus.Desc
	up             *prometheus.Desc
	pollCycles     *prometheus.Desc
	pollFailures   *prometheus.Desc
}

func NewCollector(source SnapshotSource) *Collector {
	return &Collector{
		source: source,

		pvPower:        prometheus.NewDesc("deye_pv_power_watts", "Total PV input power", []string{"string"}, nil),
		batteryVoltage: prometheus.NewDesc("deye_battery_voltage_volts", "Battery voltage", nil, nil),
		batteryPower:   prometheus.NewDesc("deye_battery_power_watts", "Battery power, positive while charging", nil, nil),
		batterySOC:     prometheus.NewDesc("deye_battery_soc_percent", "Battery state of charge", nil, nil),
		gridVoltage:    prometheus.NewDesc("deye_grid_voltage_volts", "Grid voltage", nil, nil),
		gridPower:      prometheus.NewDesc("deye_grid_power_watts", "Grid power, positive while importing", nil, nil),
		loadPower:      prometheus.NewDesc("deye_load_power_watts", "Total load power", nil, nil),
		phaseLoad:      prometheus.NewDesc("deye_phase_load_watts", "Per-phase load power", []string{"phase"}, nil),
		phaseVoltage:   prometheus.NewDesc("deye_phase_voltage_volts", "Per-phase voltage", []string{"phase"}, nil),
		genPower:       prometheus.NewDesc("deye_generator_power_watts", "Generator input power", nil, nil),
		heatsinkTemp:   prometheus.NewDesc("deye_heatsink_temperature_celsius", "Heatsink temperature", nil, nil),
		dcTemp:         prometheus.NewDesc("deye_dc_temperature_celsius", "DC side temperature", nil, nil),
		dailyPV:        prometheus.NewDesc("deye_daily_pv_kwh", "PV production today", nil, nil),
		dailyImport:    prometheus.NewDesc("deye_daily_grid_import_kwh", "Grid import today", nil, nil),
		dailyExport:    prometheus.NewDesc("deye_daily_grid_export_kwh", "Grid export today", nil, nil),
		dailyLoad:      prometheus.NewDesc("deye_daily_load_kwh", "Load consumption today", nil, nil),
		up:             prometheus.NewDesc("deye_up", "1 when the last read cycle succeeded", nil, nil),
		pollCycles:     prometheus.NewDesc("deye_poll_cycles_total", "Completed poll cycles", nil, nil),
		pollFailures:   prometheus.NewDesc("deye_poll_failures_total", "Poll cycles that ended in a read error", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pvPower
	ch <- c.batteryVoltage
	ch <- c.batteryPower
	ch <- c.batterySOC
	ch <- c.gridVoltage
	ch <- c.gridPower
	ch <- c.loadPower
	ch <- c.phaseLoad
	ch <- c.phaseVoltage
	ch <- c.genPower
	ch <- c.heatsinkTemp
	ch <- c.dcTemp
	ch <- c.dailyPV
	ch <- c.dailyImport
	ch <- c.dailyExport
	ch <- c.dailyLoad
	ch <- c.up
	ch <- c.pollCycles
	ch <- c.pollFailures
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if cc, ok := c.source.(CycleCounter); ok {
		cycles, failures := cc.Counts()
		ch <- prometheus.MustNewConstMetric(c.pollCycles, prometheus.CounterValue, float64(cycles))
		ch <- prometheus.MustNewConstMetric(c.pollFailures, prometheus.CounterValue, float64(failures))
	}

	snap, ok := c.source.Latest()
	if !ok || snap.Err != "" {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	ch <- prometheus.MustNewConstMetric(c.pvPower, prometheus.GaugeValue, float64(snap.PV1Power), "1")
	ch <- prometheus.MustNewConstMetric(c.pvPower, prometheus.GaugeValue, float64(snap.PV2Power), "2")
	ch <- prometheus.MustNewConstMetric(c.batteryVoltage, prometheus.GaugeValue, snap.BatteryVoltage)
	ch <- prometheus.MustNewConstMetric(c.batteryPower, prometheus.GaugeValue, float64(snap.BatteryPower))
	ch <- prometheus.MustNewConstMetric(c.batterySOC, prometheus.GaugeValue, float64(snap.BatterySOC))
	ch <- prometheus.MustNewConstMetric(c.gridVoltage, prometheus.GaugeValue, snap.GridVoltage)
	ch <- prometheus.MustNewConstMetric(c.gridPower, prometheus.GaugeValue, float64(snap.GridPower))
	ch <- prometheus.MustNewConstMetric(c.loadPower, prometheus.GaugeValue, float64(snap.LoadPower))
	ch <- prometheus.MustNewConstMetric(c.genPower, prometheus.GaugeValue, float64(snap.GeneratorPower))
	ch <- prometheus.MustNewConstMetric(c.heatsinkTemp, prometheus.GaugeValue, snap.HeatsinkTemp)
	ch <- prometheus.MustNewConstMetric(c.dcTemp, prometheus.GaugeValue, snap.DCTemp)
	ch <- prometheus.MustNewConstMetric(c.dailyPV, prometheus.GaugeValue, snap.DailyPV)
	ch <- prometheus.MustNewConstMetric(c.dailyImport, prometheus.GaugeValue, snap.DailyGridImport)
	ch <- prometheus.MustNewConstMetric(c.dailyExport, prometheus.GaugeValue, snap.DailyGridExport)
	ch <- prometheus.MustNewConstMetric(c.dailyLoad, prometheus.GaugeValue, snap.DailyLoad)

	if snap.VoltageL1 > 0 || snap.VoltageL2 > 0 || snap.VoltageL3 > 0 {
		ch <- prometheus.MustNewConstMetric(c.phaseLoad, prometheus.GaugeValue, float64(snap.LoadL1), "l1")
		ch <- prometheus.MustNewConstMetric(c.phaseLoad, prometheus.GaugeValue, float64(snap.LoadL2), "l2")
		ch <- prometheus.MustNewConstMetric(c.phaseLoad, prometheus.GaugeValue, float64(snap.LoadL3), "l3")
		ch <- prometheus.MustNewConstMetric(c.phaseVoltage, prometheus.GaugeValue, snap.VoltageL1, "l1")
		ch <- prometheus.MustNewConstMetric(c.phaseVoltage, prometheus.GaugeValue, snap.VoltageL2, "l2")
		ch <- prometheus.MustNewConstMetric(c.phaseVoltage, prometheus.GaugeValue, snap.VoltageL3, "l3")
	}
}
