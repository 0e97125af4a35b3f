package bms

import (
	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

const (
	seplosVersion = 0x20

	seplosAnalog     = 0x42
	seplosAlarm      = 0x44
	seplosParameters = 0x47

	// DATAFLAG CELL_HIGH CELL_LOW CELL_UNDER CHG_T_HIGH CHG_T_LOW CHG_I
	// PACK_HIGH PACK_LOW PACK_UNDER DSG_T_HIGH DSG_T_LOW DSG_I
	seplosParametersLength = 1 + 12*2
	// CURRENT VOLTAGE REMAINING CUSTOM FULL SOC RATED CYCLES SOH PORT_VOLTAGE
	seplosAnalogTail = 2 + 2 + 2 + 1 + 2 + 2 + 2 + 2 + 2 + 2
	// EVENT1-6 ONOFF EQ1 EQ2 SYSTEM DISC1 DISC2 EVENT7 EVENT8
	seplosAlarmTail = 6 + 1 + 2 + 1 + 2 + 2
)

// Seplos alarm events 2-6 as one value, event 2 in bits 0-7. Even positions
// are warnings, odd positions the matching protection, except the power
// temperature pair which the BMS reports the other way round.
var (
	seplosWarnings = alarm.Warnings(
		alarm.Bit{Pos: 0, Alarm: domain.ALARM_CELL_VOLTAGE_HIGH},
		alarm.Bit{Pos: 2, Alarm: domain.ALARM_CELL_VOLTAGE_LOW},
		alarm.Bit{Pos: 4, Alarm: domain.ALARM_PACK_VOLTAGE_HIGH},
		alarm.Bit{Pos: 6, Alarm: domain.ALARM_PACK_VOLTAGE_LOW},
		alarm.Bit{Pos: 8, Alarm: domain.ALARM_CHARGE_TEMPERATURE_HIGH},
		alarm.Bit{Pos: 10, Alarm: domain.ALARM_CHARGE_TEMPERATURE_LOW},
		alarm.Bit{Pos: 12, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_HIGH},
		alarm.Bit{Pos: 14, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_LOW},
		alarm.Bit{Pos: 16, Alarm: domain.ALARM_PACK_TEMPERATURE_HIGH},
		alarm.Bit{Pos: 18, Alarm: domain.ALARM_PACK_TEMPERATURE_LOW},
		alarm.Bit{Pos: 21, Alarm: domain.ALARM_DISCHARGE_MODULE_TEMPERATURE_HIGH},
		alarm.Bit{Pos: 24, Alarm: domain.ALARM_CHARGE_CURRENT_HIGH},
		alarm.Bit{Pos: 26, Alarm: domain.ALARM_DISCHARGE_CURRENT_HIGH},
		alarm.Bit{Pos: 34, Alarm: domain.ALARM_SOC_LOW},
	)
	seplosProtections = alarm.Protections(
		alarm.Bit{Pos: 1, Alarm: domain.ALARM_CELL_VOLTAGE_HIGH},
		alarm.Bit{Pos: 3, Alarm: domain.ALARM_CELL_VOLTAGE_LOW},
		alarm.Bit{Pos: 5, Alarm: domain.ALARM_PACK_VOLTAGE_HIGH},
		alarm.Bit{Pos: 7, Alarm: domain.ALARM_PACK_VOLTAGE_LOW},
		alarm.Bit{Pos: 9, Alarm: domain.ALARM_CHARGE_TEMPERATURE_HIGH},
		alarm.Bit{Pos: 11, Alarm: domain.ALARM_CHARGE_TEMPERATURE_LOW},
		alarm.Bit{Pos: 13, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_HIGH},
		alarm.Bit{Pos: 15, Alarm: domain.ALARM_DISCHARGE_TEMPERATURE_LOW},
		alarm.Bit{Pos: 17, Alarm: domain.ALARM_PACK_TEMPERATURE_HIGH},
		alarm.Bit{Pos: 19, Alarm: domain.ALARM_PACK_TEMPERATURE_LOW},
		alarm.Bit{Pos: 20, Alarm: domain.ALARM_DISCHARGE_MODULE_TEMPERATURE_HIGH},
		alarm.Bit{Pos: 25, Alarm: domain.ALARM_CHARGE_CURRENT_HIGH},
		alarm.Bit{Pos: 27, Alarm: domain.ALARM_DISCHARGE_CURRENT_HIGH},
		alarm.Bit{Pos: 35, Alarm: domain.ALARM_SOC_LOW},
	)
	// protection only kinds of events 5 and 6
	seplosProtectionOnly = alarm.Alarms(
		alarm.Bit{Pos: 29, Alarm: domain.ALARM_FAILURE_SHORT_CIRCUIT_PROTECTION},
		alarm.Bit{Pos: 32, Alarm: domain.ALARM_CHARGE_VOLTAGE_HIGH},
	)
	// event 1 in bits 0-7, event 8 in bits 8-15
	seplosFaults = alarm.Alarms(
		alarm.Bit{Pos: 0, Alarm: domain.ALARM_FAILURE_SENSOR_CELL_VOLTAGE},
		alarm.Bit{Pos: 1, Alarm: domain.ALARM_FAILURE_SENSOR_PACK_TEMPERATURE},
		alarm.Bit{Pos: 2, Alarm: domain.ALARM_FAILURE_SENSOR_PACK_CURRENT},
		alarm.Bit{Pos: 3, Alarm: domain.ALARM_FAILURE_OTHER},
		alarm.Bit{Pos: 5, Alarm: domain.ALARM_FAILURE_CHARGE_BREAKER},
		alarm.Bit{Pos: 6, Alarm: domain.ALARM_FAILURE_DISCHARGE_BREAKER},
		alarm.Bit{Pos: 8, Alarm: domain.ALARM_FAILURE_EEPROM},
		alarm.Bit{Pos: 9, Alarm: domain.ALARM_FAILURE_CLOCK_MODULE},
	)
)

// seplosApplyAlarms evaluates the event groups in warning, protection, fault order.
func seplosApplyAlarms(pack *domain.BatteryPack, events, faults uint64) {
	alarm.Normalize(pack,
		alarm.Step{Table: seplosWarnings, Value: events},
		alarm.Step{Table: seplosProtections, Value: events},
		alarm.Step{Table: seplosProtectionOnly, Value: events},
		alarm.Step{Table: seplosFaults, Value: faults},
	)
}

func SeplosRS485() port.BMSProtocol {
	return port.BMSProtocol{
		Name:      SEPLOS_RS485,
		Transport: port.TRANSPORT_SERIAL,
		Framing:   codec.SplitASCII,
		Commands: []port.BMSCommand{
			asciiCommand("parameters", seplosVersion, seplosParameters, addressInfo, seplosDecodeParameters),
			asciiCommand("analog", seplosVersion, seplosAnalog, addressInfo, seplosDecodeAnalog),
			asciiCommand("alarm", seplosVersion, seplosAlarm, addressInfo, seplosDecodeAlarm),
		},
	}
}

func seplosDecodeParameters(info []byte, pack *domain.BatteryPack) error {
	if err := requireLength(info, seplosParametersLength); err != nil {
		return err
	}
	c := codec.NewCursor(info)
	// dataflag and the cell voltage and charge temperature limits
	c.Skip(1 + 2*5)
	pack.MaxPackChargeCurrent = c.U16() / 10
	pack.MaxPackVoltageLimit = c.U16() / 10
	pack.MinPackVoltageLimit = c.U16() / 10
	c.Skip(2 * 3)
	pack.MaxPackDischargeCurrent = c.U16() / 10
	return c.Err()
}

func seplosDecodeAnalog(info []byte, pack *domain.BatteryPack) error {
	var errs fields
	c := codec.NewCursor(info)
	c.Skip(2)
	cells := c.U8()
	if c.Err() == nil {
		errs.add(pack.SetNumberOfCells(cells))
	}
	for i := 0; i < cells; i++ {
		v := c.U16()
		if c.Err() == nil {
			errs.add(pack.SetCellVoltage(i, v))
		}
	}
	temps := c.U8()
	if c.Err() == nil {
		errs.add(pack.SetNumOfTempSensors(temps))
	}
	for i := 0; i < temps; i++ {
		v := c.U16()
		if c.Err() == nil {
			errs.add(pack.SetCellTemperature(i, kelvin(v)))
		}
	}
	if err := c.Err(); err != nil {
		errs.add(err)
		return errs.err()
	}
	if c.Remaining() < seplosAnalogTail {
		errs.add(requireLength(info, len(info)-c.Remaining()+seplosAnalogTail))
		return errs.err()
	}

	pack.PackCurrent = c.S16() / 10
	pack.PackVoltage = c.U16() / 10
	pack.RemainingCapacitymAh = c.U16() * 10
	// custom field count and full capacity
	c.Skip(1 + 2)
	pack.PackSOC = c.U16()
	pack.RatedCapacitymAh = c.U16() * 10
	pack.BMSCycles = c.U16()
	pack.PackSOH = c.U16()
	c.Skip(2)
	errs.add(c.Err())

	pack.UpdateCellStatistics()
	pack.UpdateTemperatureStatistics()
	updateChargeState(pack)
	return errs.err()
}

func seplosDecodeAlarm(info []byte, pack *domain.BatteryPack) error {
	c := codec.NewCursor(info)
	c.Skip(2)
	c.Skip(c.U8())
	c.Skip(c.U8())
	// charge current, total voltage, discharge current, custom count
	c.Skip(4)
	if err := c.Err(); err != nil {
		return err
	}
	if c.Remaining() < seplosAlarmTail {
		return requireLength(info, len(info)-c.Remaining()+seplosAlarmTail)
	}
	tail := info[len(info)-c.Remaining():]
	event1, events := tail[0], bitsLE(tail[1:6])
	onOff := tail[6]
	balance := bitsLE(tail[7:9])
	event8 := tail[13]

	var errs fields
	pack.DischargeMOSState = onOff&(1<<0) != 0
	pack.ChargeMOSState = onOff&(1<<1) != 0
	pack.CellBalanceActive = balance != 0
	for i := 0; i < pack.NumberOfCells && i < 16; i++ {
		errs.add(pack.SetCellBalance(i, balance&(1<<i) != 0))
	}
	seplosApplyAlarms(pack, events, uint64(event1)|uint64(event8)<<8)
	return errs.err()
}
