package service

import (
	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
)

// Aggregate combines the packs that completed at least one cycle into the
// logical battery presented to an inverter. Pack numbers in the result
// refer to positions in packs.
func Aggregate(packs []domain.BatteryPack, mode domain.SOCMode) domain.Aggregate {
	agg := domain.Aggregate{
		BatteryPack: *domain.NewBatteryPack(),
	}

	first, cellsSeen := true, false
	var voltageSum, socSum, sohSum, tempSum int
	alarms := make([]map[domain.Alarm]domain.AlarmLevel, 0, len(packs))
	for i := range packs {
		p := &packs[i]
		if p.UpdatedAt.IsZero() {
			continue
		}
		agg.Packs++
		alarms = append(alarms, p.Alarms)

		agg.PackCurrent += p.PackCurrent
		agg.MaxPackChargeCurrent += p.MaxPackChargeCurrent
		agg.MaxPackDischargeCurrent += p.MaxPackDischargeCurrent
		agg.RatedCapacitymAh += p.RatedCapacitymAh
		agg.RemainingCapacitymAh += p.RemainingCapacitymAh
		voltageSum += p.PackVoltage
		socSum += p.PackSOC
		sohSum += p.PackSOH
		tempSum += p.TempAverage

		if p.MaxPackVoltageLimit > 0 && (agg.MaxPackVoltageLimit == 0 || p.MaxPackVoltageLimit < agg.MaxPackVoltageLimit) {
			agg.MaxPackVoltageLimit = p.MaxPackVoltageLimit
		}
		if p.MinPackVoltageLimit > agg.MinPackVoltageLimit {
			agg.MinPackVoltageLimit = p.MinPackVoltageLimit
		}
		agg.BMSCycles = max(agg.BMSCycles, p.BMSCycles)
		agg.ForceCharge = agg.ForceCharge || p.ForceCharge
		agg.CellBalanceActive = agg.CellBalanceActive || p.CellBalanceActive
		if p.UpdatedAt.After(agg.UpdatedAt) {
			agg.UpdatedAt = p.UpdatedAt
		}

		// packs without cell extremes must not pull the global minimum to zero
		if p.MinCellmV > 0 && p.MaxCellmV > 0 {
			if !cellsSeen || p.MaxCellmV > agg.MaxCellmV {
				agg.MaxCellmV, agg.MaxCellVNum, agg.MaxCellVPack = p.MaxCellmV, p.MaxCellVNum, i
			}
			if !cellsSeen || p.MinCellmV < agg.MinCellmV {
				agg.MinCellmV, agg.MinCellVNum, agg.MinCellVPack = p.MinCellmV, p.MinCellVNum, i
			}
			cellsSeen = true
		}

		if first {
			first = false
			agg.ChargeMOSState = p.ChargeMOSState
			agg.DischargeMOSState = p.DischargeMOSState
			agg.NumberOfCells = p.NumberOfCells
			agg.NumOfTempSensors = p.NumOfTempSensors
			agg.RatedCellmV = p.RatedCellmV
			agg.ManufacturerCode = p.ManufacturerCode
			agg.HardwareVersion = p.HardwareVersion
			agg.SoftwareVersion = p.SoftwareVersion
			agg.PackSOC = p.PackSOC
			agg.PackSOH = p.PackSOH

			agg.TempMax, agg.TempMaxCellNum, agg.TempMaxPack = p.TempMax, p.TempMaxCellNum, i
			agg.TempMin, agg.TempMinCellNum, agg.TempMinPack = p.TempMin, p.TempMinCellNum, i
			continue
		}

		agg.ChargeMOSState = agg.ChargeMOSState && p.ChargeMOSState
		agg.DischargeMOSState = agg.DischargeMOSState && p.DischargeMOSState
		if mode == domain.SOC_MODE_MIN {
			agg.PackSOC = min(agg.PackSOC, p.PackSOC)
			agg.PackSOH = min(agg.PackSOH, p.PackSOH)
		}
		if p.TempMax > agg.TempMax {
			agg.TempMax, agg.TempMaxCellNum, agg.TempMaxPack = p.TempMax, p.TempMaxCellNum, i
		}
		if p.TempMin < agg.TempMin {
			agg.TempMin, agg.TempMinCellNum, agg.TempMinPack = p.TempMin, p.TempMinCellNum, i
		}
	}
	if agg.Packs == 0 {
		return agg
	}

	agg.PackVoltage = voltageSum / agg.Packs
	agg.TempAverage = tempSum / agg.Packs
	if mode == domain.SOC_MODE_AVERAGE || mode == "" {
		agg.PackSOC = socSum / agg.Packs
		agg.PackSOH = sohSum / agg.Packs
	}
	agg.CellDiffmV = agg.MaxCellmV - agg.MinCellmV
	agg.Alarms = alarm.Merge(alarms...)

	switch {
	case agg.PackCurrent > 0:
		agg.ChargeState = domain.CHARGE_STATE_CHARGE
	case agg.PackCurrent < 0:
		agg.ChargeState = domain.CHARGE_STATE_DISCHARGE
	default:
		agg.ChargeState = domain.CHARGE_STATE_IDLE
	}
	return agg
}
