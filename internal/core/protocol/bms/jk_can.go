package bms

import (
	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

// JK CAN broadcast ids for address 1. Unit n broadcasts on id + n - 1.
const (
	jkCANStatus      = 0x02F4
	jkCANCellVoltage = 0x04F4
	jkCANTemperature = 0x05F4
	jkCANAlarms      = 0x07F4
)

var (
	jkVoltage = codec.U16LE(0)
	jkCurrent = codec.U16LE(2).WithZero(4000)
	jkSOC     = codec.U8(4).Scaled(10, 1)

	jkMaxCellmV  = codec.U16LE(0)
	jkMaxCellNum = codec.U8(2)
	jkMinCellmV  = codec.U16LE(3)
	jkMinCellNum = codec.U8(5)

	jkTempMax    = codec.U8(0).WithZero(50).Scaled(10, 1)
	jkTempMaxNum = codec.U8(1)
	jkTempMin    = codec.U8(2).WithZero(50).Scaled(10, 1)
	jkTempMinNum = codec.U8(3)
	jkTempAvg    = codec.U8(4).WithZero(50).Scaled(10, 1)
)

// 0x07F4 carries a 2-bit level per kind.
var jkCANLevels = alarm.Leveled{
	{Pos: 0, Alarm: domain.ALARM_CELL_VOLTAGE_HIGH},
	{Pos: 2, Alarm: domain.ALARM_CELL_VOLTAGE_LOW},
	{Pos: 4, Alarm: domain.ALARM_PACK_VOLTAGE_HIGH},
	{Pos: 6, Alarm: domain.ALARM_PACK_VOLTAGE_LOW},
	{Pos: 8, Alarm: domain.ALARM_CELL_VOLTAGE_DIFFERENCE_HIGH},
	{Pos: 10, Alarm: domain.ALARM_DISCHARGE_CURRENT_HIGH},
	{Pos: 12, Alarm: domain.ALARM_CHARGE_CURRENT_HIGH},
	{Pos: 14, Alarm: domain.ALARM_CELL_TEMPERATURE_HIGH},
	{Pos: 16, Alarm: domain.ALARM_CELL_TEMPERATURE_LOW},
	{Pos: 18, Alarm: domain.ALARM_TEMPERATURE_SENSOR_DIFFERENCE_HIGH},
	{Pos: 20, Alarm: domain.ALARM_SOC_LOW},
	{Pos: 26, Alarm: domain.ALARM_FAILURE_COMMUNICATION_EXTERNAL},
	{Pos: 28, Alarm: domain.ALARM_FAILURE_COMMUNICATION_INTERNAL},
}

func JKCAN() port.BMSProtocol {
	return port.BMSProtocol{
		Name:      JK_CAN,
		Transport: port.TRANSPORT_CAN,
		Commands: []port.BMSCommand{
			collectAddressed("broadcast", jkAddressOffset, map[uint32]payloadDecoder{
				jkCANStatus:      jkDecodeStatus,
				jkCANCellVoltage: jkDecodeCellVoltage,
				jkCANTemperature: jkDecodeTemperature,
				jkCANAlarms:      jkDecodeAlarms,
			}),
		},
	}
}

func jkAddressOffset(address int) uint32 {
	return uint32(max(0, address-1))
}

func jkDecodeStatus(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	pack.PackVoltage = f.get(jkVoltage)
	pack.PackCurrent = f.get(jkCurrent)
	pack.PackSOC = f.get(jkSOC)
	updateChargeState(pack)
	return f.err()
}

func jkDecodeCellVoltage(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	pack.MaxCellmV = f.get(jkMaxCellmV)
	pack.MaxCellVNum = f.get(jkMaxCellNum)
	pack.MinCellmV = f.get(jkMinCellmV)
	pack.MinCellVNum = f.get(jkMinCellNum)
	pack.CellDiffmV = pack.MaxCellmV - pack.MinCellmV
	return f.err()
}

func jkDecodeTemperature(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	pack.TempMax = f.get(jkTempMax)
	pack.TempMaxCellNum = f.get(jkTempMaxNum)
	pack.TempMin = f.get(jkTempMin)
	pack.TempMinCellNum = f.get(jkTempMinNum)
	pack.TempAverage = f.get(jkTempAvg)
	return f.err()
}

func jkDecodeAlarms(data []byte, pack *domain.BatteryPack) error {
	jkCANLevels.Apply(pack, bitsLE(data[0:4]))
	return nil
}
