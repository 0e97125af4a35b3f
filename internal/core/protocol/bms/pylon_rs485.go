package bms

import (
	"encoding/binary"
	"fmt"

	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

// Pylon system protocol over RS485, shared with the inverter link.
const (
	PylonRS485Version = 0x35

	PylonRS485SystemInfo   = 0x60
	PylonRS485SystemAnalog = 0x61
	PylonRS485SystemAlarm  = 0x62

	// NAME(10) MANUFACTURER(20) SW_MAJOR SW_MINOR
	PylonInfoLength = 32
	// see pylonDecodeAnalog for the field order
	PylonAnalogLength = 29
	// WARNING(2) PROTECTION(2)
	PylonAlarmLength = 4
)

// PylonRS485AlarmBits is the bit layout of the 16-bit warning and protection
// words of command 0x62.
var PylonRS485AlarmBits = []alarm.Bit{
	{Pos: 0, Alarm: domain.ALARM_CELL_VOLTAGE_HIGH},
	{Pos: 1, Alarm: domain.ALARM_CELL_VOLTAGE_LOW},
	{Pos: 2, Alarm: domain.ALARM_PACK_VOLTAGE_HIGH},
	{Pos: 3, Alarm: domain.ALARM_PACK_VOLTAGE_LOW},
	{Pos: 4, Alarm: domain.ALARM_CHARGE_TEMPERATURE_HIGH},
	{Pos: 5, Alarm: domain.ALARM_CHARGE_TEMPERATURE_LOW},
	{Pos: 6, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_HIGH},
	{Pos: 7, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_LOW},
	{Pos: 8, Alarm: domain.ALARM_CHARGE_CURRENT_HIGH},
	{Pos: 9, Alarm: domain.ALARM_DISCHARGE_CURRENT_HIGH},
	{Pos: 10, Alarm: domain.ALARM_CHARGE_MODULE_TEMPERATURE_HIGH},
	{Pos: 11, Alarm: domain.ALARM_FAILURE_COMMUNICATION_INTERNAL},
	{Pos: 12, Alarm: domain.ALARM_CELL_VOLTAGE_DIFFERENCE_HIGH},
	{Pos: 13, Alarm: domain.ALARM_FAILURE_SHORT_CIRCUIT_PROTECTION},
}

var (
	pylonRS485Warnings    = alarm.Warnings(PylonRS485AlarmBits...)
	pylonRS485Protections = alarm.Protections(PylonRS485AlarmBits...)
)

func PylonRS485() port.BMSProtocol {
	return port.BMSProtocol{
		Name:      PYLON_RS485,
		Transport: port.TRANSPORT_SERIAL,
		Framing:   codec.SplitASCII,
		Commands: []port.BMSCommand{
			asciiCommand("system_info", PylonRS485Version, PylonRS485SystemInfo, nil, pylonDecodeInfo),
			asciiCommand("system_analog", PylonRS485Version, PylonRS485SystemAnalog, nil, pylonDecodeAnalog),
			asciiCommand("system_alarm", PylonRS485Version, PylonRS485SystemAlarm, nil, pylonDecodeAlarm),
		},
	}
}

func pylonDecodeInfo(info []byte, pack *domain.BatteryPack) error {
	if err := requireLength(info, PylonInfoLength); err != nil {
		return err
	}
	c := codec.NewCursor(info)
	pack.HardwareVersion = c.String(10)
	pack.ManufacturerCode = c.String(20)
	major, minor := c.U8(), c.U8()
	pack.SoftwareVersion = fmt.Sprintf("%d.%d", major, minor)
	return c.Err()
}

// pylonDecodeAnalog reads VOLTAGE(mV) CURRENT(10mA) SOC(%) AVG_CYCLES
// MAX_CYCLES AVG_SOH(%) MIN_SOH(%) MAX_CELL(mV) MAX_CELL_NO MIN_CELL(mV)
// MIN_CELL_NO AVG_TEMP(0.1K) MAX_TEMP MAX_TEMP_NO MIN_TEMP MIN_TEMP_NO.
func pylonDecodeAnalog(info []byte, pack *domain.BatteryPack) error {
	if err := requireLength(info, PylonAnalogLength); err != nil {
		return err
	}
	c := codec.NewCursor(info)
	pack.PackVoltage = c.U16() / 100
	pack.PackCurrent = c.S16() / 10
	pack.PackSOC = c.U8() * 10
	c.Skip(2)
	pack.BMSCycles = c.U16()
	pack.PackSOH = c.U8() * 10
	c.Skip(1)
	pack.MaxCellmV = c.U16()
	pack.MaxCellVNum = c.U16()
	pack.MinCellmV = c.U16()
	pack.MinCellVNum = c.U16()
	pack.CellDiffmV = pack.MaxCellmV - pack.MinCellmV
	pack.TempAverage = kelvin(c.U16())
	pack.TempMax = kelvin(c.U16())
	pack.TempMaxCellNum = c.U16()
	pack.TempMin = kelvin(c.U16())
	pack.TempMinCellNum = c.U16()
	updateChargeState(pack)
	return c.Err()
}

func pylonDecodeAlarm(info []byte, pack *domain.BatteryPack) error {
	if err := requireLength(info, PylonAlarmLength); err != nil {
		return err
	}
	alarm.Normalize(pack,
		alarm.Step{Table: pylonRS485Warnings, Value: uint64(binary.BigEndian.Uint16(info[0:2]))},
		alarm.Step{Table: pylonRS485Protections, Value: uint64(binary.BigEndian.Uint16(info[2:4]))},
	)
	return nil
}
