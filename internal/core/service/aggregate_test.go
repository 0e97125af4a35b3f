package service

import (
	"testing"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func testPacks() []domain.BatteryPack {
	now := time.Now()
	a := domain.NewBatteryPack().Clone()
	a.UpdatedAt = now
	a.PackVoltage = 520
	a.PackCurrent = 100
	a.PackSOC = 800
	a.PackSOH = 990
	a.MaxPackVoltageLimit = 568
	a.MinPackVoltageLimit = 440
	a.MaxPackChargeCurrent = 500
	a.MaxPackDischargeCurrent = 1000
	a.MaxCellmV, a.MaxCellVNum = 3350, 3
	a.MinCellmV, a.MinCellVNum = 3300, 7
	a.TempMax, a.TempMin, a.TempAverage = 250, 200, 220
	a.ChargeMOSState, a.DischargeMOSState = true, true
	a.ManufacturerCode = "PYLON"
	a.SetAlarm(domain.ALARM_CELL_VOLTAGE_HIGH, domain.ALARM_LEVEL_WARNING)

	b := domain.NewBatteryPack().Clone()
	b.UpdatedAt = now
	b.PackVoltage = 530
	b.PackCurrent = -40
	b.PackSOC = 600
	b.PackSOH = 970
	b.MaxPackVoltageLimit = 560
	b.MinPackVoltageLimit = 450
	b.MaxPackChargeCurrent = 400
	b.MaxPackDischargeCurrent = 800
	b.MaxCellmV, b.MaxCellVNum = 3400, 1
	b.MinCellmV, b.MinCellVNum = 3310, 2
	b.TempMax, b.TempMin, b.TempAverage = 240, 180, 200
	b.ChargeMOSState, b.DischargeMOSState = true, false
	b.ManufacturerCode = "OTHER"
	b.SetAlarm(domain.ALARM_CELL_VOLTAGE_HIGH, domain.ALARM_LEVEL_ALARM)

	// never polled
	c := domain.NewBatteryPack().Clone()
	c.PackVoltage = 9999

	return []domain.BatteryPack{a, b, c}
}

func TestAggregate(t *testing.T) {
	agg := Aggregate(testPacks(), domain.SOC_MODE_AVERAGE)

	assert.Equal(t, 2, agg.Packs)
	assert.Equal(t, 60, agg.PackCurrent)
	assert.Equal(t, 525, agg.PackVoltage)
	assert.Equal(t, 700, agg.PackSOC)
	assert.Equal(t, 980, agg.PackSOH)
	assert.Equal(t, 560, agg.MaxPackVoltageLimit)
	assert.Equal(t, 450, agg.MinPackVoltageLimit)
	assert.Equal(t, 900, agg.MaxPackChargeCurrent)
	assert.Equal(t, 1800, agg.MaxPackDischargeCurrent)

	assert.Equal(t, 3400, agg.MaxCellmV)
	assert.Equal(t, 1, agg.MaxCellVPack)
	assert.Equal(t, 1, agg.MaxCellVNum)
	assert.Equal(t, 3300, agg.MinCellmV)
	assert.Equal(t, 0, agg.MinCellVPack)
	assert.Equal(t, 7, agg.MinCellVNum)
	assert.Equal(t, 100, agg.CellDiffmV)
	assert.Equal(t, 250, agg.TempMax)
	assert.Equal(t, 180, agg.TempMin)
	assert.Equal(t, 1, agg.TempMinPack)
	assert.Equal(t, 210, agg.TempAverage)

	assert.True(t, agg.ChargeMOSState)
	assert.False(t, agg.DischargeMOSState)
	assert.Equal(t, "PYLON", agg.ManufacturerCode)
	assert.Equal(t, domain.ALARM_LEVEL_ALARM, agg.Alarm(domain.ALARM_CELL_VOLTAGE_HIGH))
	assert.Equal(t, domain.CHARGE_STATE_CHARGE, agg.ChargeState)
}

func TestAggregateSOCModes(t *testing.T) {
	assert.Equal(t, 800, Aggregate(testPacks(), domain.SOC_MODE_FIRST).PackSOC)
	assert.Equal(t, 600, Aggregate(testPacks(), domain.SOC_MODE_MIN).PackSOC)
}

func TestAggregateEmpty(t *testing.T) {
	agg := Aggregate(nil, domain.SOC_MODE_AVERAGE)
	assert.Equal(t, 0, agg.Packs)
	assert.Equal(t, domain.ALARM_LEVEL_NONE, agg.HighestAlarmLevel())
}

func TestAggregateSkipsPacksWithoutCellExtremes(t *testing.T) {
	// a CAN broadcast BMS reports no per cell data
	noCells := domain.NewBatteryPack().Clone()
	noCells.UpdatedAt = time.Now()
	noCells.PackVoltage = 525

	agg := Aggregate(append([]domain.BatteryPack{noCells}, testPacks()...), domain.SOC_MODE_AVERAGE)
	assert.Equal(t, 3, agg.Packs)
	assert.Equal(t, 3300, agg.MinCellmV)
	assert.Equal(t, 1, agg.MinCellVPack)
	assert.Equal(t, 3400, agg.MaxCellmV)
	assert.Equal(t, 2, agg.MaxCellVPack)
	assert.Equal(t, 100, agg.CellDiffmV)

	only := Aggregate([]domain.BatteryPack{noCells}, domain.SOC_MODE_AVERAGE)
	assert.Equal(t, 0, only.MinCellmV)
	assert.Equal(t, 0, only.CellDiffmV)
}
