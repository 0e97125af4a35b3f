package bms

import (
	"fmt"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

// Seplos Modbus register blocks. The unit id is the pack address.
const (
	seplosPIA      = 0x1000
	seplosPIACount = 18
	seplosPIB      = 0x1100
	seplosPIBCount = 26
	seplosPIC      = 0x1200
	seplosPICCount = 144

	seplosModbusCells = 16
	seplosModbusTemps = 4

	// PIC bit offsets
	seplosPICBalance   = 0
	seplosPICEvents    = 64
	seplosPICFaults    = 104
	seplosPICOnOff     = 112
	seplosPICStorage   = 120
	seplosPICEventBits = 40
)

func SeplosModbus() port.BMSProtocol {
	return port.BMSProtocol{
		Name:      SEPLOS_MODBUS,
		Transport: port.TRANSPORT_MODBUS,
		Commands: []port.BMSCommand{
			modbusCommand("pack_info_a", codec.FuncReadInputRegisters, seplosPIA, seplosPIACount, seplosDecodePIA),
			modbusCommand("pack_info_b", codec.FuncReadInputRegisters, seplosPIB, seplosPIBCount, seplosDecodePIB),
			modbusCommand("pack_info_c", codec.FuncReadCoils, seplosPIC, seplosPICCount, seplosDecodePIC),
		},
	}
}

// modbusCommand reads one block. Exception responses and responses for a
// different unit, function or block are invalid.
func modbusCommand(name string, function byte, address, count uint16, decode func(codec.ModbusResponse, *domain.BatteryPack) error) port.BMSCommand {
	size := int(count)
	if function == codec.FuncReadHoldingRegisters || function == codec.FuncReadInputRegisters {
		size *= 2
	}
	return port.BMSCommand{
		Name: name,
		Request: func(unit int) []byte {
			return codec.ModbusRequest{Function: function, Address: address, Count: count, UnitID: byte(unit)}.Bytes()
		},
		Handle: func(frame []byte, ex *port.Exchange) (port.FrameResult, error) {
			resp, err := codec.ParseModbusResponse(frame)
			if err != nil || resp.Function != function || int(resp.UnitID) != ex.Address || resp.Address != address {
				return port.FRAME_INVALID, nil
			}
			if len(resp.Data) != size {
				return port.FRAME_DONE, fmt.Errorf("%w: %s %d bytes, want %d", codec.ErrFieldRange, name, len(resp.Data), size)
			}
			return port.FRAME_DONE, decode(resp, ex.Pack)
		},
	}
}

// registers reads consecutive registers, collecting range errors.
type registers struct {
	resp codec.ModbusResponse
	errs fields
}

func (r *registers) u16(i int) int {
	v, err := r.resp.Register(i)
	r.errs.add(err)
	return int(v)
}

func (r *registers) s16(i int) int {
	return int(int16(r.u16(i)))
}

func seplosDecodePIA(resp codec.ModbusResponse, pack *domain.BatteryPack) error {
	r := registers{resp: resp}
	pack.PackVoltage = r.u16(0) / 10
	pack.PackCurrent = r.s16(1) / 10
	pack.RemainingCapacitymAh = r.u16(2) * 10
	pack.RatedCapacitymAh = r.u16(3) * 10
	pack.PackSOC = r.u16(5)
	pack.PackSOH = r.u16(6)
	pack.BMSCycles = r.u16(7)
	pack.TempAverage = kelvin(r.u16(9))
	pack.MaxPackDischargeCurrent = r.u16(15) * 10
	pack.MaxPackChargeCurrent = r.u16(16) * 10
	updateChargeState(pack)
	return r.errs.err()
}

func seplosDecodePIB(resp codec.ModbusResponse, pack *domain.BatteryPack) error {
	r := registers{resp: resp}
	r.errs.add(pack.SetNumberOfCells(seplosModbusCells))
	r.errs.add(pack.SetNumOfTempSensors(seplosModbusTemps))
	for i := 0; i < seplosModbusCells; i++ {
		r.errs.add(pack.SetCellVoltage(i, r.u16(i)))
	}
	for i := 0; i < seplosModbusTemps; i++ {
		r.errs.add(pack.SetCellTemperature(i, kelvin(r.u16(seplosModbusCells+i))))
	}
	pack.UpdateCellStatistics()
	pack.UpdateTemperatureStatistics()
	return r.errs.err()
}

// seplosDecodePIC maps the coil block onto the RS485 event layout.
func seplosDecodePIC(resp codec.ModbusResponse, pack *domain.BatteryPack) error {
	bits := func(from, n int) uint64 {
		var v uint64
		for i := 0; i < n; i++ {
			if resp.Bit(from + i) {
				v |= 1 << i
			}
		}
		return v
	}

	var errs fields
	balance := bits(seplosPICBalance, seplosModbusCells)
	pack.CellBalanceActive = balance != 0
	for i := 0; i < pack.NumberOfCells && i < seplosModbusCells; i++ {
		errs.add(pack.SetCellBalance(i, balance&(1<<i) != 0))
	}
	onOff := bits(seplosPICOnOff, 2)
	pack.DischargeMOSState = onOff&(1<<0) != 0
	pack.ChargeMOSState = onOff&(1<<1) != 0

	faults := bits(seplosPICFaults, 8) | bits(seplosPICStorage, 2)<<8
	seplosApplyAlarms(pack, bits(seplosPICEvents, seplosPICEventBits), faults)
	return errs.err()
}
