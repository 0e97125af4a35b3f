package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

var (
	ErrCellIndex = errors.New("cell index out of range")
	ErrPackIndex = errors.New("pack index out of range")
)

// MaxCells bounds the cell and temperature sensor counts a decoder may learn.
const MaxCells = 256

type ChargeState string

const (
	CHARGE_STATE_IDLE      ChargeState = "idle"
	CHARGE_STATE_CHARGE    ChargeState = "charge"
	CHARGE_STATE_DISCHARGE ChargeState = "discharge"
	CHARGE_STATE_SLEEP     ChargeState = "sleep"
)

// BatteryPack is the normalized state of one pack.
//
// Units: voltages in 0.1V, currents in 0.1A (positive while charging),
// SOC/SOH in 0.1%, cell voltages in mV, temperatures in 0.1°C, capacities in mAh.
type BatteryPack struct {
	RatedCapacitymAh     int `json:"rated_capacity_mah"`
	RatedCellmV          int `json:"rated_cell_mv"`
	RemainingCapacitymAh int `json:"remaining_capacity_mah"`

	MaxPackVoltageLimit     int `json:"max_pack_voltage_limit"`
	MinPackVoltageLimit     int `json:"min_pack_voltage_limit"`
	MaxPackChargeCurrent    int `json:"max_pack_charge_current"`
	MaxPackDischargeCurrent int `json:"max_pack_discharge_current"`

	PackVoltage int `json:"pack_voltage"`
	PackCurrent int `json:"pack_current"`
	PackSOC     int `json:"pack_soc"`
	PackSOH     int `json:"pack_soh"`

	MaxCellmV   int `json:"max_cell_mv"`
	MaxCellVNum int `json:"max_cell_v_num"`
	MinCellmV   int `json:"min_cell_mv"`
	MinCellVNum int `json:"min_cell_v_num"`
	CellDiffmV  int `json:"cell_diff_mv"`

	TempMax        int `json:"temp_max"`
	TempMaxCellNum int `json:"temp_max_cell_num"`
	TempMin        int `json:"temp_min"`
	TempMinCellNum int `json:"temp_min_cell_num"`
	TempAverage    int `json:"temp_average"`

	BMSCycles         int         `json:"bms_cycles"`
	ChargeState       ChargeState `json:"charge_state"`
	ChargeMOSState    bool        `json:"charge_mos_state"`
	DischargeMOSState bool        `json:"discharge_mos_state"`
	ForceCharge       bool        `json:"force_charge"`
	CellBalanceActive bool        `json:"cell_balance_active"`

	NumberOfCells    int    `json:"number_of_cells"`
	NumOfTempSensors int    `json:"num_of_temp_sensors"`
	CellVmV          []int  `json:"cell_vmv"`
	CellTemperature  []int  `json:"cell_temperature"`
	CellBalanceState []bool `json:"cell_balance_state"`

	ManufacturerCode string `json:"manufacturer_code,omitempty"`
	HardwareVersion  string `json:"hardware_version,omitempty"`
	SoftwareVersion  string `json:"software_version,omitempty"`

	Alarms    map[Alarm]AlarmLevel `json:"alarms"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func NewBatteryPack() *BatteryPack {
	return &BatteryPack{
		ChargeState: CHARGE_STATE_IDLE,
		Alarms:      make(map[Alarm]AlarmLevel),
	}
}

// SetNumberOfCells grows the cell sequences to hold n cells. Learned values are kept.
func (p *BatteryPack) SetNumberOfCells(n int) error {
	if n < 0 || n > MaxCells {
		return fmt.Errorf("%w: %d cells", ErrCellIndex, n)
	}
	p.NumberOfCells = n
	if len(p.CellVmV) < n {
		p.CellVmV = append(p.CellVmV, make([]int, n-len(p.CellVmV))...)
	}
	if len(p.CellBalanceState) < n {
		p.CellBalanceState = append(p.CellBalanceState, make([]bool, n-len(p.CellBalanceState))...)
	}
	return nil
}

func (p *BatteryPack) SetNumOfTempSensors(n int) error {
	if n < 0 || n > MaxCells {
		return fmt.Errorf("%w: %d temperature sensors", ErrCellIndex, n)
	}
	p.NumOfTempSensors = n
	if len(p.CellTemperature) < n {
		p.CellTemperature = append(p.CellTemperature, make([]int, n-len(p.CellTemperature))...)
	}
	return nil
}

// SetCellVoltage writes cell i, which must be below the learned cell count.
func (p *BatteryPack) SetCellVoltage(i, mV int) error {
	if i < 0 || i >= p.NumberOfCells || i >= len(p.CellVmV) {
		return fmt.Errorf("%w: cell %d of %d", ErrCellIndex, i, p.NumberOfCells)
	}
	p.CellVmV[i] = mV
	return nil
}

func (p *BatteryPack) SetCellTemperature(i, temp int) error {
	if i < 0 || i >= p.NumOfTempSensors || i >= len(p.CellTemperature) {
		return fmt.Errorf("%w: temperature sensor %d of %d", ErrCellIndex, i, p.NumOfTempSensors)
	}
	p.CellTemperature[i] = temp
	return nil
}

func (p *BatteryPack) SetCellBalance(i int, active bool) error {
	if i < 0 || i >= p.NumberOfCells || i >= len(p.CellBalanceState) {
		return fmt.Errorf("%w: balance cell %d of %d", ErrCellIndex, i, p.NumberOfCells)
	}
	p.CellBalanceState[i] = active
	return nil
}

// UpdateCellStatistics derives min/max cell voltage and difference from the cell sequence.
func (p *BatteryPack) UpdateCellStatistics() {
	if p.NumberOfCells == 0 {
		return
	}
	cells := p.CellVmV[:p.NumberOfCells]
	p.MinCellVNum, p.MaxCellVNum = 0, 0
	for i, v := range cells {
		if v < cells[p.MinCellVNum] {
			p.MinCellVNum = i
		}
		if v > cells[p.MaxCellVNum] {
			p.MaxCellVNum = i
		}
	}
	p.MinCellmV = cells[p.MinCellVNum]
	p.MaxCellmV = cells[p.MaxCellVNum]
	p.CellDiffmV = p.MaxCellmV - p.MinCellmV
}

// UpdateTemperatureStatistics derives min/max/average temperature from the sensor sequence.
func (p *BatteryPack) UpdateTemperatureStatistics() {
	if p.NumOfTempSensors == 0 {
		return
	}
	temps := p.CellTemperature[:p.NumOfTempSensors]
	p.TempMinCellNum, p.TempMaxCellNum = 0, 0
	sum := 0
	for i, v := range temps {
		sum += v
		if v < temps[p.TempMinCellNum] {
			p.TempMinCellNum = i
		}
		if v > temps[p.TempMaxCellNum] {
			p.TempMaxCellNum = i
		}
	}
	p.TempMin = temps[p.TempMinCellNum]
	p.TempMax = temps[p.TempMaxCellNum]
	p.TempAverage = sum / len(temps)
}

func (p *BatteryPack) SetAlarm(a Alarm, level AlarmLevel) {
	if p.Alarms == nil {
		p.Alarms = make(map[Alarm]AlarmLevel)
	}
	p.Alarms[a] = level
}

// Alarm returns the level of a, NONE if it was never set.
func (p *BatteryPack) Alarm(a Alarm) AlarmLevel {
	return p.Alarms[a]
}

// ClearAlarms resets every alarm kind to NONE.
func (p *BatteryPack) ClearAlarms() {
	clear(p.Alarms)
}

// HighestAlarmLevel returns the most severe level over all alarm kinds.
func (p *BatteryPack) HighestAlarmLevel() AlarmLevel {
	level := ALARM_LEVEL_NONE
	for _, l := range p.Alarms {
		level = max(level, l)
	}
	return level
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p *BatteryPack) Clone() BatteryPack {
	c := *p
	c.CellVmV = slices.Clone(p.CellVmV)
	c.CellTemperature = slices.Clone(p.CellTemperature)
	c.CellBalanceState = slices.Clone(p.CellBalanceState)
	c.Alarms = maps.Clone(p.Alarms)
	if c.Alarms == nil {
		c.Alarms = make(map[Alarm]AlarmLevel)
	}
	return c
}
