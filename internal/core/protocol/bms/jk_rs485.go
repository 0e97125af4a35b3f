package bms

import (
	"encoding/binary"

	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

const (
	jkReadAll   = 0x06
	jkSourcePC  = 0x03
	jkTempProbe = 2
	// cell voltage records are CELL_NO(1) mV(2)
	jkCellRecord = 3
	// currents above this bit are charge currents
	jkChargeFlag = 0x8000
)

var jkWarnings = alarm.Warnings(
	alarm.Bit{Pos: 0, Alarm: domain.ALARM_SOC_LOW},
	alarm.Bit{Pos: 1, Alarm: domain.ALARM_DISCHARGE_MODULE_TEMPERATURE_HIGH},
	alarm.Bit{Pos: 2, Alarm: domain.ALARM_CHARGE_VOLTAGE_HIGH},
	alarm.Bit{Pos: 3, Alarm: domain.ALARM_DISCHARGE_VOLTAGE_LOW},
	alarm.Bit{Pos: 4, Alarm: domain.ALARM_CELL_TEMPERATURE_HIGH},
	alarm.Bit{Pos: 5, Alarm: domain.ALARM_CHARGE_CURRENT_HIGH},
	alarm.Bit{Pos: 6, Alarm: domain.ALARM_DISCHARGE_CURRENT_HIGH},
	alarm.Bit{Pos: 7, Alarm: domain.ALARM_CELL_VOLTAGE_DIFFERENCE_HIGH},
	alarm.Bit{Pos: 8, Alarm: domain.ALARM_ENCASING_TEMPERATURE_HIGH},
	alarm.Bit{Pos: 9, Alarm: domain.ALARM_CELL_TEMPERATURE_LOW},
	alarm.Bit{Pos: 10, Alarm: domain.ALARM_CELL_VOLTAGE_HIGH},
	alarm.Bit{Pos: 11, Alarm: domain.ALARM_CELL_VOLTAGE_LOW},
)

func JKRS485() port.BMSProtocol {
	return port.BMSProtocol{
		Name:      JK_RS485,
		Transport: port.TRANSPORT_SERIAL,
		Framing:   codec.SplitTagged,
		Commands: []port.BMSCommand{{
			Name:    "read_all",
			Request: jkReadAllRequest,
			Handle:  jkHandleReadAll,
		}},
	}
}

func jkReadAllRequest(int) []byte {
	return codec.TaggedFrame{
		Command: jkReadAll,
		Source:  jkSourcePC,
		Fields:  []codec.TagValue{{Tag: 0x00}},
	}.Encode()
}

func jkHandleReadAll(frame []byte, ex *port.Exchange) (port.FrameResult, error) {
	tf, err := codec.DecodeTaggedFrame(frame, codec.JKTagLengths)
	if err != nil || tf.Command != jkReadAll {
		return port.FRAME_INVALID, nil
	}
	return port.FRAME_DONE, jkDecode(tf, ex.Pack)
}

// jkTemperature decodes the probe encoding: values above 100 are negative degrees.
func jkTemperature(v int) int {
	if v > 100 {
		return -(v - 100) * 10
	}
	return v * 10
}

func jkDecode(tf codec.TaggedFrame, pack *domain.BatteryPack) error {
	var errs fields
	actualAh := -1
	errs.add(pack.SetNumOfTempSensors(jkTempProbe))

	for _, tv := range tf.Fields {
		f := fields{b: tv.Value}
		switch tv.Tag {
		case codec.JKTagCellVoltages:
			f.add(jkDecodeCells(tv.Value, pack))
		case codec.JKTagBoxTemperature:
			f.add(pack.SetCellTemperature(0, jkTemperature(f.get(codec.U16BE(0)))))
		case codec.JKTagBatteryTemperature:
			f.add(pack.SetCellTemperature(1, jkTemperature(f.get(codec.U16BE(0)))))
		case codec.JKTagTotalVoltage:
			pack.PackVoltage = f.get(codec.U16BE(0).Scaled(1, 10))
		case codec.JKTagCurrent:
			raw := f.get(codec.U16BE(0))
			current := (raw &^ jkChargeFlag) / 10
			if raw&jkChargeFlag == 0 {
				current = -current
			}
			pack.PackCurrent = current
		case codec.JKTagSOC:
			pack.PackSOC = f.get(codec.U8(0).Scaled(10, 1))
		case codec.JKTagCycles:
			pack.BMSCycles = f.get(codec.U16BE(0))
		case codec.JKTagWarnings:
			jkWarnings.Apply(pack, uint64(f.get(codec.U16BE(0))))
		case codec.JKTagStatus:
			pack.ChargeMOSState = f.bit(1, 0)
			pack.DischargeMOSState = f.bit(1, 1)
			pack.CellBalanceActive = f.bit(1, 2)
		case codec.JKTagPackOVP:
			pack.MaxPackVoltageLimit = f.get(codec.U16BE(0).Scaled(1, 10))
		case codec.JKTagPackUVP:
			pack.MinPackVoltageLimit = f.get(codec.U16BE(0).Scaled(1, 10))
		case codec.JKTagDischargeOCP:
			pack.MaxPackDischargeCurrent = f.get(codec.U16BE(0).Scaled(10, 1))
		case codec.JKTagChargeOCP:
			pack.MaxPackChargeCurrent = f.get(codec.U16BE(0).Scaled(10, 1))
		case codec.JKTagCapacitySetting:
			pack.RatedCapacitymAh = f.get(codec.U32BE(0).Scaled(1000, 1))
		case codec.JKTagActualCapacity:
			actualAh = f.get(codec.U32BE(0))
		case codec.JKTagSoftwareVersion:
			pack.SoftwareVersion = text(tv.Value)
		case codec.JKTagManufacturer:
			pack.ManufacturerCode = text(tv.Value)
		}
		errs.add(f.err())
	}

	if actualAh >= 0 {
		pack.RemainingCapacitymAh = actualAh * 1000 * pack.PackSOC / 1000
	}
	pack.UpdateCellStatistics()
	pack.UpdateTemperatureStatistics()
	updateChargeState(pack)
	return errs.err()
}

func jkDecodeCells(b []byte, pack *domain.BatteryPack) error {
	if len(b) == 0 {
		return codec.ErrFieldRange
	}
	records := b[1:]
	var errs fields
	errs.add(pack.SetNumberOfCells(len(records) / jkCellRecord))
	for len(records) >= jkCellRecord {
		no := int(records[0])
		errs.add(pack.SetCellVoltage(no-1, int(binary.BigEndian.Uint16(records[1:3]))))
		records = records[jkCellRecord:]
	}
	return errs.err()
}
