package inverter

import (
	"encoding/binary"

	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

const smaManufacturer = "BMSGW"

var (
	smaSOC      = codec.U16LE(0).Scaled(10, 1)
	smaSOH      = codec.U16LE(2).Scaled(10, 1)
	smaSOCHiRes = codec.U16LE(4).Scaled(1, 10) // 0.01%

	smaBatteryType = codec.U16LE(0)
	smaVersion     = codec.U16LE(2)
	smaCapacityAh  = codec.U16LE(4).Scaled(1000, 1)
)

// 0x35A: bytes 0-3 alarms, bytes 4-7 warnings, two bits per kind. The pair
// at position 0 is the general flag.
var smaPairs = alarm.Pairs{
	{Pos: 2, Alarm: domain.ALARM_PACK_VOLTAGE_HIGH},
	{Pos: 4, Alarm: domain.ALARM_PACK_VOLTAGE_LOW},
	{Pos: 6, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_HIGH},
	{Pos: 8, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_LOW},
	{Pos: 10, Alarm: domain.ALARM_CHARGE_TEMPERATURE_HIGH},
	{Pos: 12, Alarm: domain.ALARM_CHARGE_TEMPERATURE_LOW},
	{Pos: 14, Alarm: domain.ALARM_DISCHARGE_CURRENT_HIGH},
	{Pos: 16, Alarm: domain.ALARM_CHARGE_CURRENT_HIGH},
	{Pos: 18, Alarm: domain.ALARM_FAILURE_CHARGE_BREAKER},
	{Pos: 20, Alarm: domain.ALARM_FAILURE_SHORT_CIRCUIT_PROTECTION},
	{Pos: 22, Alarm: domain.ALARM_FAILURE_COMMUNICATION_INTERNAL},
	{Pos: 24, Alarm: domain.ALARM_CELL_VOLTAGE_DIFFERENCE_HIGH},
}

func SMASunnyIslandCAN() port.InverterProtocol {
	return port.InverterProtocol{
		Name:      SMA_SI_CAN,
		Transport: port.TRANSPORT_CAN,
		Frames:    smaFrames,
	}
}

func smaAlarmWord(agg *domain.Aggregate, level domain.AlarmLevel) uint32 {
	v := smaPairs.Encode(agg.Alarms, level)
	if agg.HighestAlarmLevel() >= level {
		v |= 0x1
	} else {
		v |= 0x2
	}
	return uint32(v)
}

func smaFrames(agg *domain.Aggregate) ([][]byte, error) {
	var e encoder
	lvLimits(&e, agg)
	e.can(0x355).
		put(smaSOC, agg.PackSOC).
		put(smaSOH, agg.PackSOH).
		put(smaSOCHiRes, agg.PackSOC)
	lvValues(&e, agg)

	alarms := e.can(0x35A)
	binary.LittleEndian.PutUint32(alarms.b[0:4], smaAlarmWord(agg, domain.ALARM_LEVEL_ALARM))
	binary.LittleEndian.PutUint32(alarms.b[4:8], smaAlarmWord(agg, domain.ALARM_LEVEL_WARNING))

	lvRequestFlags(&e, agg)
	e.can(0x35E).str(0, codec.MaxCANData, manufacturer(agg, smaManufacturer))
	major, minor := softwareVersion()
	e.can(0x35F).
		put(smaBatteryType, 0).
		put(smaVersion, major<<8|minor).
		put(smaCapacityAh, agg.RatedCapacitymAh)
	return e.result()
}
