package inverter

import (
	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

// Pylon high voltage CAN. The inverter polls 0x4200, byte 0 selects the
// ensemble data (0x00) or the system equipment data (0x02).
const (
	pylonHVRequestID = 0x4200

	pylonHVEnsemble = 0x00
	pylonHVSystem   = 0x02

	pylonHVForbidden = 0xAA
)

var (
	hvVoltage     = codec.U16LE(0)
	hvCurrent     = codec.U16LE(2).WithZero(30000)
	hvTemperature = codec.U16LE(4).WithZero(1000)
	hvSOC         = codec.U8(6).Scaled(10, 1)
	hvSOH         = codec.U8(7).Scaled(10, 1)

	hvChargeVoltage    = codec.U16LE(0)
	hvDischargeVoltage = codec.U16LE(2)
	hvChargeCurrent    = codec.U16LE(4).WithZero(30000)
	// sent negative, discharge flows out of the battery
	hvDischargeCurrent = codec.U16LE(6).WithZero(30000)

	hvMaxCell    = codec.U16LE(0)
	hvMinCell    = codec.U16LE(2)
	hvMaxCellNum = codec.U16LE(4)
	hvMinCellNum = codec.U16LE(6)

	hvMaxTemp    = codec.U16LE(0).WithZero(1000)
	hvMinTemp    = codec.U16LE(2).WithZero(1000)
	hvMaxTempNum = codec.U16LE(4)
	hvMinTempNum = codec.U16LE(6)

	hvCycles     = codec.U16LE(1)
	hvAlarm      = codec.U16LE(4)
	hvProtection = codec.U16LE(6)

	hvPacks       = codec.U16LE(0)
	hvCellsPerMod = codec.U8(3)
	hvCapacityAh  = codec.U16LE(6).Scaled(1000, 1)
)

var pylonHVAlarmBits = []alarm.Bit{
	{Pos: 0, Alarm: domain.ALARM_CELL_VOLTAGE_LOW},
	{Pos: 1, Alarm: domain.ALARM_CELL_VOLTAGE_HIGH},
	{Pos: 2, Alarm: domain.ALARM_PACK_VOLTAGE_LOW},
	{Pos: 3, Alarm: domain.ALARM_PACK_VOLTAGE_HIGH},
	{Pos: 4, Alarm: domain.ALARM_CHARGE_TEMPERATURE_LOW},
	{Pos: 5, Alarm: domain.ALARM_CHARGE_TEMPERATURE_HIGH},
	{Pos: 6, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_LOW},
	{Pos: 7, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_HIGH},
	{Pos: 8, Alarm: domain.ALARM_CHARGE_CURRENT_HIGH},
	{Pos: 9, Alarm: domain.ALARM_DISCHARGE_CURRENT_HIGH},
}

var (
	pylonHVWarnings    = alarm.Warnings(pylonHVAlarmBits...)
	pylonHVProtections = alarm.Protections(pylonHVAlarmBits...)
)

func PylonHVCAN() port.InverterProtocol {
	return port.InverterProtocol{
		Name:      PYLON_HV_CAN,
		Transport: port.TRANSPORT_CAN,
		Respond:   pylonHVRespond,
	}
}

// pylonHVRespond answers one inverter poll. Frames with another id or an
// unknown selector are not for us.
func pylonHVRespond(request []byte, agg *domain.Aggregate) ([][]byte, port.FrameResult, error) {
	f, err := codec.ParseCANFrame(request)
	if err != nil || f.ID != pylonHVRequestID {
		return nil, port.FRAME_INVALID, nil
	}
	switch f.Padded()[0] {
	case pylonHVEnsemble:
		frames, err := pylonHVEnsembleFrames(agg)
		return frames, port.FRAME_DONE, err
	case pylonHVSystem:
		frames, err := pylonHVSystemFrames(agg)
		return frames, port.FRAME_DONE, err
	}
	return nil, port.FRAME_INVALID, nil
}

func pylonHVEnsembleFrames(agg *domain.Aggregate) ([][]byte, error) {
	var e encoder
	e.can(0x4210).
		put(hvVoltage, agg.PackVoltage).
		put(hvCurrent, agg.PackCurrent).
		put(hvTemperature, agg.TempAverage).
		put(hvSOC, agg.PackSOC).
		put(hvSOH, agg.PackSOH)
	e.can(0x4220).
		put(hvChargeVoltage, agg.MaxPackVoltageLimit).
		put(hvDischargeVoltage, agg.MinPackVoltageLimit).
		put(hvChargeCurrent, agg.MaxPackChargeCurrent).
		put(hvDischargeCurrent, -agg.MaxPackDischargeCurrent)
	e.can(0x4230).
		put(hvMaxCell, agg.MaxCellmV).
		put(hvMinCell, agg.MinCellmV).
		put(hvMaxCellNum, agg.MaxCellVNum+1).
		put(hvMinCellNum, agg.MinCellVNum+1)
	e.can(0x4240).
		put(hvMaxTemp, agg.TempMax).
		put(hvMinTemp, agg.TempMin).
		put(hvMaxTempNum, agg.TempMaxCellNum+1).
		put(hvMinTempNum, agg.TempMinCellNum+1)
	e.can(0x4250).
		set(0, chargeState(agg)).
		put(hvCycles, agg.BMSCycles).
		put(hvAlarm, int(pylonHVWarnings.Encode(agg.Alarms))).
		put(hvProtection, int(pylonHVProtections.Encode(agg.Alarms)))
	e.can(0x4260).
		put(hvMaxCell, agg.MaxCellmV).
		put(hvMinCell, agg.MinCellmV).
		put(hvMaxCellNum, agg.MaxCellVPack+1).
		put(hvMinCellNum, agg.MinCellVPack+1)
	e.can(0x4270).
		put(hvMaxTemp, agg.TempMax).
		put(hvMinTemp, agg.TempMin).
		put(hvMaxTempNum, agg.TempMaxPack+1).
		put(hvMinTempNum, agg.TempMinPack+1)
	forbid := e.can(0x4280)
	if !agg.ChargeMOSState {
		forbid.set(0, pylonHVForbidden)
	}
	if !agg.DischargeMOSState {
		forbid.set(1, pylonHVForbidden)
	}
	e.can(0x4290)
	return e.result()
}

func pylonHVSystemFrames(agg *domain.Aggregate) ([][]byte, error) {
	var e encoder
	major, minor := softwareVersion()
	e.can(0x7310).
		set(0, 0x01).
		set(2, 0x01).
		set(4, byte(major)).
		set(5, byte(minor))
	cellsPerPack := 0
	if agg.Packs > 0 {
		cellsPerPack = agg.NumberOfCells / agg.Packs
	}
	e.can(0x7320).
		put(hvPacks, agg.Packs).
		set(2, byte(agg.Packs)).
		put(hvCellsPerMod, cellsPerPack).
		put(hvCapacityAh, agg.RatedCapacitymAh)
	name := codec.SplitString(manufacturer(agg, pylonManufacturer), codec.MaxCANData, 2)
	for i, chunk := range name {
		e.can(uint32(0x7330 + i*0x10)).str(0, codec.MaxCANData, chunk)
	}
	return e.result()
}
