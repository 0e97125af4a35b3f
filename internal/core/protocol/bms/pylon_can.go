package bms

import (
	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

// Pylon low voltage CAN broadcast. The BMS sends every id about once per
// second, payload fields are big-endian with the pack voltage in 0.1V and the
// current in 0.01A. Frames the gateway sends to inverters on the same ids use
// the little-endian inverter layout of the inverter package.
const (
	pylonCANLimits  = 0x351
	pylonCANSOC     = 0x355
	pylonCANValues  = 0x356
	pylonCANAlarms  = 0x359
	pylonCANRequest = 0x35C
	pylonCANMaker   = 0x35E
)

var (
	pylonChargeVoltage    = codec.U16BE(0)
	pylonChargeCurrent    = codec.S16BE(2)
	pylonDischargeCurrent = codec.S16BE(4)
	pylonDischargeVoltage = codec.U16BE(6)

	pylonSOC = codec.U16BE(0).Scaled(10, 1)
	pylonSOH = codec.U16BE(2).Scaled(10, 1)

	pylonVoltage     = codec.S16BE(0)
	pylonCurrent     = codec.S16BE(2).Scaled(1, 10) // 0.01A on the wire
	pylonTemperature = codec.S16BE(4)
)

var (
	pylonWarnings = alarm.Warnings(PylonCANAlarmBits...)
	pylonProtects = alarm.Protections(PylonCANAlarmBits...)
)

// PylonCANAlarmBits is the bit layout of one 16-bit group of frame 0x359.
// Bytes 0-1 carry protections, bytes 2-3 warnings.
var PylonCANAlarmBits = []alarm.Bit{
	{Pos: 1, Alarm: domain.ALARM_PACK_VOLTAGE_HIGH},
	{Pos: 2, Alarm: domain.ALARM_PACK_VOLTAGE_LOW},
	{Pos: 3, Alarm: domain.ALARM_CELL_TEMPERATURE_HIGH},
	{Pos: 4, Alarm: domain.ALARM_CELL_TEMPERATURE_LOW},
	{Pos: 7, Alarm: domain.ALARM_DISCHARGE_CURRENT_HIGH},
	{Pos: 8, Alarm: domain.ALARM_CHARGE_CURRENT_HIGH},
	{Pos: 11, Alarm: domain.ALARM_FAILURE_COMMUNICATION_INTERNAL},
}

func PylonCAN() port.BMSProtocol {
	return port.BMSProtocol{
		Name:      PYLON_CAN,
		Transport: port.TRANSPORT_CAN,
		Commands: []port.BMSCommand{
			collect("broadcast", map[uint32]payloadDecoder{
				pylonCANLimits:  pylonDecodeLimits,
				pylonCANSOC:     pylonDecodeSOC,
				pylonCANValues:  pylonDecodeValues,
				pylonCANAlarms:  pylonDecodeAlarms,
				pylonCANRequest: pylonDecodeRequest,
				pylonCANMaker:   pylonDecodeManufacturer,
			}),
		},
	}
}

func pylonDecodeLimits(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	pack.MaxPackVoltageLimit = f.get(pylonChargeVoltage)
	pack.MaxPackChargeCurrent = f.get(pylonChargeCurrent)
	pack.MaxPackDischargeCurrent = f.get(pylonDischargeCurrent)
	pack.MinPackVoltageLimit = f.get(pylonDischargeVoltage)
	return f.err()
}

func pylonDecodeSOC(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	pack.PackSOC = f.get(pylonSOC)
	pack.PackSOH = f.get(pylonSOH)
	return f.err()
}

func pylonDecodeValues(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	pack.PackVoltage = f.get(pylonVoltage)
	pack.PackCurrent = f.get(pylonCurrent)
	pack.TempAverage = f.get(pylonTemperature)
	updateChargeState(pack)
	return f.err()
}

func pylonDecodeAlarms(data []byte, pack *domain.BatteryPack) error {
	protection := bitsLE(data[0:2])
	warning := bitsLE(data[2:4])
	alarm.Normalize(pack,
		alarm.Step{Table: pylonWarnings, Value: warning},
		alarm.Step{Table: pylonProtects, Value: protection},
	)
	return nil
}

func pylonDecodeRequest(data []byte, pack *domain.BatteryPack) error {
	pack.ChargeMOSState = data[0]&(1<<7) != 0
	pack.DischargeMOSState = data[0]&(1<<6) != 0
	pack.ForceCharge = data[0]&(1<<5) != 0
	return nil
}

func pylonDecodeManufacturer(data []byte, pack *domain.BatteryPack) error {
	s, err := codec.GetString(data, 0, codec.MaxCANData)
	if err != nil {
		return err
	}
	pack.ManufacturerCode = s
	return nil
}
