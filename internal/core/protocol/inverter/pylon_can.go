package inverter

import (
	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/internal/core/protocol/bms"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

const pylonManufacturer = "PYLON"

// Low voltage Pylon frames as expected by inverters, little-endian with the
// pack voltage in 0.01V and the current in 0.1A. This differs from what the
// Pylon BMS decoder reads on the same ids.
var (
	lvChargeVoltage    = codec.U16LE(0)
	lvChargeCurrent    = codec.S16LE(2)
	lvDischargeCurrent = codec.S16LE(4)
	lvDischargeVoltage = codec.U16LE(6)

	lvSOC = codec.U16LE(0).Scaled(10, 1)
	lvSOH = codec.U16LE(2).Scaled(10, 1)

	lvVoltage     = codec.S16LE(0).Scaled(1, 10) // 0.01V on the wire
	lvCurrent     = codec.S16LE(2)
	lvTemperature = codec.S16LE(4)

	lvProtection = codec.U16LE(0)
	lvWarning    = codec.U16LE(2)
	lvModules    = codec.U8(4)
)

var (
	pylonWarnings    = alarm.Warnings(bms.PylonCANAlarmBits...)
	pylonProtections = alarm.Protections(bms.PylonCANAlarmBits...)
)

func PylonCAN() port.InverterProtocol {
	return port.InverterProtocol{
		Name:      PYLON_CAN,
		Transport: port.TRANSPORT_CAN,
		Frames:    pylonLVFrames,
	}
}

// DeyeCAN is the Pylon low voltage protocol under the name Deye inverters list it.
func DeyeCAN() port.InverterProtocol {
	p := PylonCAN()
	p.Name = DEYE_CAN
	return p
}

// lvLimits writes frame 0x351, shared by the low voltage CAN protocols.
func lvLimits(e *encoder, agg *domain.Aggregate) {
	e.can(0x351).
		put(lvChargeVoltage, agg.MaxPackVoltageLimit).
		put(lvChargeCurrent, agg.MaxPackChargeCurrent).
		put(lvDischargeCurrent, agg.MaxPackDischargeCurrent).
		put(lvDischargeVoltage, agg.MinPackVoltageLimit)
}

func lvValues(e *encoder, agg *domain.Aggregate) {
	e.can(0x356).
		put(lvVoltage, agg.PackVoltage).
		put(lvCurrent, agg.PackCurrent).
		put(lvTemperature, agg.TempAverage)
}

// lvRequestFlags writes frame 0x35C: bit 7 charge enable, bit 6 discharge
// enable, bit 5 force charge.
func lvRequestFlags(e *encoder, agg *domain.Aggregate) {
	e.can(0x35C).set(0, flag(agg.ChargeMOSState, 7)|flag(agg.DischargeMOSState, 6)|flag(agg.ForceCharge, 5))
}

func pylonLVFrames(agg *domain.Aggregate) ([][]byte, error) {
	var e encoder
	lvLimits(&e, agg)
	e.can(0x355).
		put(lvSOC, agg.PackSOC).
		put(lvSOH, agg.PackSOH)
	lvValues(&e, agg)
	e.can(0x359).
		put(lvProtection, int(pylonProtections.Encode(agg.Alarms))).
		put(lvWarning, int(pylonWarnings.Encode(agg.Alarms))).
		put(lvModules, agg.Packs).
		set(5, 'P').
		set(6, 'N')
	lvRequestFlags(&e, agg)
	e.can(0x35E).str(0, codec.MaxCANData, pylonManufacturer)
	return e.result()
}
