package bms

import (
	"fmt"

	"github.com/berfenger/bmsgateway/internal/core/alarm"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

// Daly uses the same 8-byte payloads on CAN and on the 13-byte serial frame.
const (
	dalyHostAddress = 0x40
	dalyCANPriority = 0x18000000

	dalyCellsPerFrame = 3
	dalyTempsPerFrame = 7
	// balance bitmap covers 48 cells
	dalyMaxBalanceCells = 48
)

var (
	dalyVoltage = codec.U16BE(0)
	dalyCurrent = codec.U16BE(4).WithZero(30000)
	dalySOC     = codec.U16BE(6)

	dalyMaxCellmV   = codec.U16BE(0)
	dalyMaxCellNum  = codec.U8(2)
	dalyMinCellmV   = codec.U16BE(3)
	dalyMinCellNum  = codec.U8(5)
	dalyTempMax     = codec.U8(0).WithZero(40).Scaled(10, 1)
	dalyTempMaxNum  = codec.U8(1)
	dalyTempMin     = codec.U8(2).WithZero(40).Scaled(10, 1)
	dalyTempMinNum  = codec.U8(3)
	dalyState       = codec.U8(0)
	dalyRemaining   = codec.U32BE(4)
	dalyCells       = codec.U8(0)
	dalyTempSensors = codec.U8(1)
	dalyCycles      = codec.U16BE(5)
	dalyFrameNo     = codec.U8(0)
)

// 0x98 bytes 0-3 carry a level 1 and a level 2 bit per kind, level 1 in the
// even position.
var dalyLevelKinds = []domain.Alarm{
	domain.ALARM_CELL_VOLTAGE_HIGH,
	domain.ALARM_CELL_VOLTAGE_LOW,
	domain.ALARM_PACK_VOLTAGE_HIGH,
	domain.ALARM_PACK_VOLTAGE_LOW,
	domain.ALARM_CHARGE_TEMPERATURE_HIGH,
	domain.ALARM_CHARGE_TEMPERATURE_LOW,
	domain.ALARM_DISCHARGE_TEMPERATURE_HIGH,
	domain.ALARM_DISCHARGE_TEMPERATURE_LOW,
	domain.ALARM_CHARGE_CURRENT_HIGH,
	domain.ALARM_DISCHARGE_CURRENT_HIGH,
	domain.ALARM_SOC_HIGH,
	domain.ALARM_SOC_LOW,
	domain.ALARM_CELL_VOLTAGE_DIFFERENCE_HIGH,
	domain.ALARM_TEMPERATURE_SENSOR_DIFFERENCE_HIGH,
}

var dalyWarnings, dalyProtections = func() (alarm.Table, alarm.Table) {
	var l1, l2 []alarm.Bit
	for i, kind := range dalyLevelKinds {
		l1 = append(l1, alarm.Bit{Pos: uint(2 * i), Alarm: kind})
		l2 = append(l2, alarm.Bit{Pos: uint(2*i + 1), Alarm: kind})
	}
	return alarm.Warnings(l1...), alarm.Protections(l2...)
}()

// 0x98 bytes 4-6 are hardware faults without a warning tier.
var dalyFaults = alarm.Alarms(
	alarm.Bit{Pos: 32, Alarm: domain.ALARM_CHARGE_MODULE_TEMPERATURE_HIGH},
	alarm.Bit{Pos: 33, Alarm: domain.ALARM_DISCHARGE_MODULE_TEMPERATURE_HIGH},
	alarm.Bit{Pos: 34, Alarm: domain.ALARM_FAILURE_SENSOR_CHARGE_MODULE_TEMPERATURE},
	alarm.Bit{Pos: 35, Alarm: domain.ALARM_FAILURE_SENSOR_DISCHARGE_MODULE_TEMPERATURE},
	alarm.Bit{Pos: 38, Alarm: domain.ALARM_FAILURE_CHARGE_BREAKER},
	alarm.Bit{Pos: 39, Alarm: domain.ALARM_FAILURE_DISCHARGE_BREAKER},
	alarm.Bit{Pos: 40, Alarm: domain.ALARM_FAILURE_SENSOR_CELL_VOLTAGE},
	alarm.Bit{Pos: 42, Alarm: domain.ALARM_FAILURE_SENSOR_PACK_TEMPERATURE},
	alarm.Bit{Pos: 43, Alarm: domain.ALARM_FAILURE_EEPROM},
	alarm.Bit{Pos: 44, Alarm: domain.ALARM_FAILURE_CLOCK_MODULE},
	alarm.Bit{Pos: 45, Alarm: domain.ALARM_FAILURE_OTHER},
	alarm.Bit{Pos: 46, Alarm: domain.ALARM_FAILURE_COMMUNICATION_EXTERNAL},
	alarm.Bit{Pos: 47, Alarm: domain.ALARM_FAILURE_COMMUNICATION_INTERNAL},
	alarm.Bit{Pos: 48, Alarm: domain.ALARM_FAILURE_SENSOR_PACK_CURRENT},
	alarm.Bit{Pos: 49, Alarm: domain.ALARM_FAILURE_SENSOR_PACK_VOLTAGE},
	alarm.Bit{Pos: 50, Alarm: domain.ALARM_FAILURE_SHORT_CIRCUIT_PROTECTION},
)

// dalyHandler decodes one response payload and reports whether the command expects more frames.
type dalyHandler func(data []byte, ex *port.Exchange) (port.FrameResult, error)

type dalyCommand struct {
	code   byte
	name   string
	handle dalyHandler
}

var dalyCommands = []dalyCommand{
	{code: 0x90, name: "soc", handle: single(dalyDecodeSOC)},
	{code: 0x91, name: "cell_voltage_range", handle: single(dalyDecodeCellRange)},
	{code: 0x92, name: "temperature_range", handle: single(dalyDecodeTempRange)},
	{code: 0x93, name: "mos_status", handle: single(dalyDecodeMOS)},
	{code: 0x94, name: "status", handle: single(dalyDecodeStatus)},
	{code: 0x95, name: "cell_voltages", handle: dalyDecodeCellVoltages},
	{code: 0x96, name: "cell_temperatures", handle: dalyDecodeCellTemperatures},
	{code: 0x97, name: "cell_balance", handle: single(dalyDecodeBalance)},
	{code: 0x98, name: "failures", handle: single(dalyDecodeFailures)},
}

func single(decode payloadDecoder) dalyHandler {
	return func(data []byte, ex *port.Exchange) (port.FrameResult, error) {
		return port.FRAME_DONE, decode(data, ex.Pack)
	}
}

func dalyCANRequestID(code byte, address int) uint32 {
	return dalyCANPriority | uint32(code)<<16 | uint32(address&0xFF)<<8 | dalyHostAddress
}

func dalyCANResponseID(code byte, address int) uint32 {
	return dalyCANPriority | uint32(code)<<16 | dalyHostAddress<<8 | uint32(address&0xFF)
}

func DalyCAN() port.BMSProtocol {
	commands := make([]port.BMSCommand, len(dalyCommands))
	for i, c := range dalyCommands {
		commands[i] = port.BMSCommand{
			Name: c.name,
			Request: func(address int) []byte {
				return codec.NewCANFrame(dalyCANRequestID(c.code, address), codec.MaxCANData).Bytes()
			},
			Handle: func(frame []byte, ex *port.Exchange) (port.FrameResult, error) {
				cf, err := codec.ParseCANFrame(frame)
				if err != nil || cf.ID != dalyCANResponseID(c.code, ex.Address) {
					return port.FRAME_INVALID, nil
				}
				return c.handle(cf.Padded(), ex)
			},
		}
	}
	return port.BMSProtocol{Name: DALY_CAN, Transport: port.TRANSPORT_CAN, Commands: commands}
}

func DalyRS485() port.BMSProtocol {
	commands := make([]port.BMSCommand, len(dalyCommands))
	for i, c := range dalyCommands {
		commands[i] = port.BMSCommand{
			Name: c.name,
			Request: func(int) []byte {
				return codec.FixedFrame{Address: dalyHostAddress, Command: c.code}.Bytes()
			},
			Handle: func(frame []byte, ex *port.Exchange) (port.FrameResult, error) {
				ff, err := codec.ParseFixedFrame(frame)
				if err != nil || ff.Command != c.code || int(ff.Address) != ex.Address {
					return port.FRAME_INVALID, nil
				}
				return c.handle(ff.Data[:], ex)
			},
		}
	}
	return port.BMSProtocol{
		Name:      DALY_RS485,
		Transport: port.TRANSPORT_SERIAL,
		Framing:   codec.SplitFixed,
		Commands:  commands,
	}
}

func dalyDecodeSOC(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	pack.PackVoltage = f.get(dalyVoltage)
	pack.PackCurrent = f.get(dalyCurrent)
	pack.PackSOC = f.get(dalySOC)
	return f.err()
}

func dalyDecodeCellRange(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	pack.MaxCellmV = f.get(dalyMaxCellmV)
	pack.MaxCellVNum = max(0, f.get(dalyMaxCellNum)-1)
	pack.MinCellmV = f.get(dalyMinCellmV)
	pack.MinCellVNum = max(0, f.get(dalyMinCellNum)-1)
	pack.CellDiffmV = pack.MaxCellmV - pack.MinCellmV
	return f.err()
}

func dalyDecodeTempRange(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	pack.TempMax = f.get(dalyTempMax)
	pack.TempMaxCellNum = max(0, f.get(dalyTempMaxNum)-1)
	pack.TempMin = f.get(dalyTempMin)
	pack.TempMinCellNum = max(0, f.get(dalyTempMinNum)-1)
	return f.err()
}

func dalyDecodeMOS(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	switch f.get(dalyState) {
	case 1:
		pack.ChargeState = domain.CHARGE_STATE_CHARGE
	case 2:
		pack.ChargeState = domain.CHARGE_STATE_DISCHARGE
	default:
		pack.ChargeState = domain.CHARGE_STATE_IDLE
	}
	pack.ChargeMOSState = f.bit(1, 0)
	pack.DischargeMOSState = f.bit(2, 0)
	pack.RemainingCapacitymAh = f.get(dalyRemaining)
	return f.err()
}

func dalyDecodeStatus(data []byte, pack *domain.BatteryPack) error {
	f := fields{b: data}
	f.add(pack.SetNumberOfCells(f.get(dalyCells)))
	f.add(pack.SetNumOfTempSensors(f.get(dalyTempSensors)))
	pack.BMSCycles = f.get(dalyCycles)
	return f.err()
}

// dalyFrames handles the numbered multi-frame responses. Each frame starts
// with its 1-based frame number followed by perFrame values.
func dalyFrames(count func(*domain.BatteryPack) int, perFrame int, width int, set func(p *domain.BatteryPack, i int, data []byte) error) dalyHandler {
	return func(data []byte, ex *port.Exchange) (port.FrameResult, error) {
		f := fields{b: data}
		no := f.get(dalyFrameNo)
		n := count(ex.Pack)
		expected := expectedFrames(n, perFrame)
		if no < 1 || no > expected {
			f.add(fmt.Errorf("%w: frame %d of %d", domain.ErrCellIndex, no, expected))
		} else {
			for k := 0; k < perFrame; k++ {
				i := (no-1)*perFrame + k
				if i >= n {
					break
				}
				off := 1 + k*width
				f.add(set(ex.Pack, i, data[off:off+width]))
			}
		}
		if ex.Mark(uint32(no)) >= expected || ex.Frames+1 >= expected {
			return port.FRAME_DONE, f.err()
		}
		return port.FRAME_MORE, f.err()
	}
}

var dalyDecodeCellVoltages = dalyFrames(
	func(p *domain.BatteryPack) int { return p.NumberOfCells },
	dalyCellsPerFrame, 2,
	func(p *domain.BatteryPack, i int, b []byte) error {
		return p.SetCellVoltage(i, int(b[0])<<8|int(b[1]))
	},
)

var dalyDecodeCellTemperatures = dalyFrames(
	func(p *domain.BatteryPack) int { return p.NumOfTempSensors },
	dalyTempsPerFrame, 1,
	func(p *domain.BatteryPack, i int, b []byte) error {
		return p.SetCellTemperature(i, (int(b[0])-40)*10)
	},
)

func dalyDecodeBalance(data []byte, pack *domain.BatteryPack) error {
	bits := bitsLE(data[0:6])
	active := false
	var errs fields
	for i := 0; i < pack.NumberOfCells && i < dalyMaxBalanceCells; i++ {
		on := bits&(1<<i) != 0
		active = active || on
		errs.add(pack.SetCellBalance(i, on))
	}
	pack.CellBalanceActive = active
	return errs.err()
}

func dalyDecodeFailures(data []byte, pack *domain.BatteryPack) error {
	levels := bitsLE(data[0:4])
	faults := bitsLE(data[0:7])
	alarm.Normalize(pack,
		alarm.Step{Table: dalyWarnings, Value: levels},
		alarm.Step{Table: dalyProtections, Value: levels},
		alarm.Step{Table: dalyFaults, Value: faults},
	)
	return nil
}
