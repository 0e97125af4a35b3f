package metrics

import (
	"github.com/berfenger/bmsgateway/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bmsgateway"

type gauge struct {
	desc  *prometheus.Desc
	value func(p *domain.BatteryPack) float64
}

// PackCollector exposes the last known state of every pack. Packs that
// never completed a cycle are skipped.
type PackCollector struct {
	storage *domain.EnergyStorage
	units   []string

	gauges  []gauge
	alarm   *prometheus.Desc
	updated *prometheus.Desc
}

func packDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pack", name), help, []string{"unit"}, nil)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func NewPackCollector(storage *domain.EnergyStorage, units []string) *PackCollector {
	return &PackCollector{
		storage: storage,
		units:   units,
		gauges: []gauge{
			{packDesc("soc_percent", "Pack state of charge in percent"), func(p *domain.BatteryPack) float64 { return float64(p.PackSOC) / 10 }},
			{packDesc("soh_percent", "Pack state of health in percent"), func(p *domain.BatteryPack) float64 { return float64(p.PackSOH) / 10 }},
			{packDesc("voltage_volts", "Pack voltage"), func(p *domain.BatteryPack) float64 { return float64(p.PackVoltage) / 10 }},
			{packDesc("current_amperes", "Pack current, positive while charging"), func(p *domain.BatteryPack) float64 { return float64(p.PackCurrent) / 10 }},
			{packDesc("temperature_max_celsius", "Highest cell temperature"), func(p *domain.BatteryPack) float64 { return float64(p.TempMax) / 10 }},
			{packDesc("temperature_min_celsius", "Lowest cell temperature"), func(p *domain.BatteryPack) float64 { return float64(p.TempMin) / 10 }},
			{packDesc("cell_voltage_max_volts", "Highest cell voltage"), func(p *domain.BatteryPack) float64 { return float64(p.MaxCellmV) / 1000 }},
			{packDesc("cell_voltage_min_volts", "Lowest cell voltage"), func(p *domain.BatteryPack) float64 { return float64(p.MinCellmV) / 1000 }},
			{packDesc("cell_voltage_diff_millivolts", "Difference between highest and lowest cell"), func(p *domain.BatteryPack) float64 { return float64(p.CellDiffmV) }},
			{packDesc("remaining_capacity_ah", "Remaining capacity"), func(p *domain.BatteryPack) float64 { return float64(p.RemainingCapacitymAh) / 1000 }},
			{packDesc("rated_capacity_ah", "Rated capacity"), func(p *domain.BatteryPack) float64 { return float64(p.RatedCapacitymAh) / 1000 }},
			{packDesc("charge_current_limit_amperes", "Maximum charge current"), func(p *domain.BatteryPack) float64 { return float64(p.MaxPackChargeCurrent) / 10 }},
			{packDesc("discharge_current_limit_amperes", "Maximum discharge current"), func(p *domain.BatteryPack) float64 { return float64(p.MaxPackDischargeCurrent) / 10 }},
			{packDesc("cycles", "Charge cycles reported by the BMS"), func(p *domain.BatteryPack) float64 { return float64(p.BMSCycles) }},
			{packDesc("charge_mos", "Charge MOSFET enabled"), func(p *domain.BatteryPack) float64 { return boolValue(p.ChargeMOSState) }},
			{packDesc("discharge_mos", "Discharge MOSFET enabled"), func(p *domain.BatteryPack) float64 { return boolValue(p.DischargeMOSState) }},
			{packDesc("balancing", "Cell balancing active"), func(p *domain.BatteryPack) float64 { return boolValue(p.CellBalanceActive) }},
		},
		alarm: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pack", "alarm_level"),
			"Active alarm level, 1 warning and 2 alarm", []string{"unit", "alarm"}, nil),
		updated: packDesc("updated_timestamp_seconds", "Time of the last successful cycle"),
	}
}

func (c *PackCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
	ch <- c.alarm
	ch <- c.updated
}

func (c *PackCollector) Collect(ch chan<- prometheus.Metric) {
	for i, p := range c.storage.Snapshots() {
		if i >= len(c.units) || p.UpdatedAt.IsZero() {
			continue
		}
		unit := c.units[i]
		for _, g := range c.gauges {
			ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, g.value(&p), unit)
		}
		for alarm, level := range p.Alarms {
			if level == domain.ALARM_LEVEL_NONE {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.alarm, prometheus.GaugeValue, float64(level), unit, alarm.String())
		}
		ch <- prometheus.MustNewConstMetric(c.updated, prometheus.GaugeValue, float64(p.UpdatedAt.Unix()), unit)
	}
}

var _ prometheus.Collector = (*PackCollector)(nil)
