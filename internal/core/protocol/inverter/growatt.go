package inverter

import (
	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
	"github.com/carlmjohnson/versioninfo"
)

const growattManufacturer = "BMSGW"

// Growatt high voltage frames, big-endian.
var (
	gwChargeVoltage    = codec.U16BE(0)
	gwChargeCurrent    = codec.U16BE(2)
	gwDischargeCurrent = codec.U16BE(4)

	gwProtection = codec.U32BE(0)
	gwWarning    = codec.U32BE(4)

	gwVoltage     = codec.U16BE(0)
	gwCurrent     = codec.S16BE(2)
	gwTemperature = codec.S16BE(4)
	gwSOC         = codec.U8(6).Scaled(10, 1)
	gwSOH         = codec.U8(7).Scaled(10, 1)

	gwRemaining        = codec.U16BE(0).Scaled(10, 1) // 0.01Ah
	gwFullCapacity     = codec.U16BE(2).Scaled(10, 1)
	gwCycles           = codec.U16BE(4)
	gwDischargeVoltage = codec.U16BE(6)

	gwMaxCell = codec.U16BE(0)
	gwMinCell = codec.U16BE(2)
	gwMaxTemp = codec.S16BE(0)
	gwMinTemp = codec.S16BE(2)

	gwPacks = codec.U8(0)
	gwCells = codec.U16BE(1)
)

var gwAlarmBits = []alarm.Bit{
	{Pos: 0, Alarm: domain.ALARM_CELL_VOLTAGE_HIGH},
	{Pos: 1, Alarm: domain.ALARM_CELL_VOLTAGE_LOW},
	{Pos: 2, Alarm: domain.ALARM_PACK_VOLTAGE_HIGH},
	{Pos: 3, Alarm: domain.ALARM_PACK_VOLTAGE_LOW},
	{Pos: 4, Alarm: domain.ALARM_CHARGE_CURRENT_HIGH},
	{Pos: 5, Alarm: domain.ALARM_DISCHARGE_CURRENT_HIGH},
	{Pos: 6, Alarm: domain.ALARM_CHARGE_TEMPERATURE_HIGH},
	{Pos: 7, Alarm: domain.ALARM_CHARGE_TEMPERATURE_LOW},
	{Pos: 8, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_HIGH},
	{Pos: 9, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_LOW},
	{Pos: 10, Alarm: domain.ALARM_CELL_VOLTAGE_DIFFERENCE_HIGH},
	{Pos: 11, Alarm: domain.ALARM_TEMPERATURE_SENSOR_DIFFERENCE_HIGH},
	{Pos: 12, Alarm: domain.ALARM_FAILURE_SHORT_CIRCUIT_PROTECTION},
	{Pos: 13, Alarm: domain.ALARM_FAILURE_COMMUNICATION_INTERNAL},
	{Pos: 14, Alarm: domain.ALARM_SOC_LOW},
	{Pos: 15, Alarm: domain.ALARM_FAILURE_OTHER},
}

var (
	gwWarnings    = alarm.Warnings(gwAlarmBits...)
	gwProtections = alarm.Protections(gwAlarmBits...)
)

func GrowattHVCAN() port.InverterProtocol {
	return port.InverterProtocol{
		Name:      GROWATT_HV_CAN,
		Transport: port.TRANSPORT_CAN,
		Frames:    growattFrames,
	}
}

func growattFrames(agg *domain.Aggregate) ([][]byte, error) {
	var e encoder
	e.can(0x3110).
		put(gwChargeVoltage, agg.MaxPackVoltageLimit).
		put(gwChargeCurrent, agg.MaxPackChargeCurrent).
		put(gwDischargeCurrent, agg.MaxPackDischargeCurrent).
		set(6, flag(agg.ChargeMOSState, 0)|flag(agg.DischargeMOSState, 1)|flag(agg.ForceCharge, 2))
	e.can(0x3120).
		put(gwProtection, int(gwProtections.Encode(agg.Alarms))).
		put(gwWarning, int(gwWarnings.Encode(agg.Alarms)))
	e.can(0x3130).
		put(gwVoltage, agg.PackVoltage).
		put(gwCurrent, agg.PackCurrent).
		put(gwTemperature, agg.TempAverage).
		put(gwSOC, agg.PackSOC).
		put(gwSOH, agg.PackSOH)
	e.can(0x3140).
		put(gwRemaining, agg.RemainingCapacitymAh).
		put(gwFullCapacity, agg.RatedCapacitymAh).
		put(gwCycles, agg.BMSCycles).
		put(gwDischargeVoltage, agg.MinPackVoltageLimit)
	e.can(0x3150).
		put(gwMaxCell, agg.MaxCellmV).
		put(gwMinCell, agg.MinCellmV).
		set(4, byte(agg.MaxCellVNum+1)).
		set(5, byte(agg.MinCellVNum+1)).
		set(6, byte(agg.MaxCellVPack+1)).
		set(7, byte(agg.MinCellVPack+1))
	e.can(0x3160).
		put(gwMaxTemp, agg.TempMax).
		put(gwMinTemp, agg.TempMin).
		set(4, byte(agg.TempMaxCellNum+1)).
		set(5, byte(agg.TempMinCellNum+1)).
		set(6, byte(agg.TempMaxPack+1)).
		set(7, byte(agg.TempMinPack+1))
	e.can(0x3170).
		put(gwPacks, agg.Packs).
		put(gwCells, agg.NumberOfCells).
		set(3, chargeState(agg))
	e.can(0x3180).str(0, codec.MaxCANData, manufacturer(agg, growattManufacturer))
	e.can(0x3190).str(0, codec.MaxCANData, agg.HardwareVersion)
	e.can(0x3200).str(0, codec.MaxCANData, versioninfo.Short())
	return e.result()
}
