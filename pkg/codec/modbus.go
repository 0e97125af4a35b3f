package codec

import (
	"encoding/binary"
	"fmt"
)

// Modbus function codes understood by the synthetic buffers.
const (
	FuncReadCoils            = 0x01
	FuncReadDiscreteInputs   = 0x02
	FuncReadHoldingRegisters = 0x03
	FuncReadInputRegisters   = 0x04
	FuncWriteRegisters       = 0x10
)

// ModbusRequest is the internal request buffer handed to a Modbus port:
// FC ADDR(2) COUNT(2) UNIT.
type ModbusRequest struct {
	Function byte
	Address  uint16
	Count    uint16
	UnitID   byte
	// Values is only used by FuncWriteRegisters
	Values []uint16
}

func (r ModbusRequest) Bytes() []byte {
	b := []byte{r.Function, 0, 0, 0, 0, r.UnitID}
	binary.BigEndian.PutUint16(b[1:3], r.Address)
	binary.BigEndian.PutUint16(b[3:5], r.Count)
	for _, v := range r.Values {
		b = binary.BigEndian.AppendUint16(b, v)
	}
	return b
}

func ParseModbusRequest(b []byte) (ModbusRequest, error) {
	if len(b) < 6 {
		return ModbusRequest{}, ErrShortFrame
	}
	r := ModbusRequest{
		Function: b[0],
		Address:  binary.BigEndian.Uint16(b[1:3]),
		Count:    binary.BigEndian.Uint16(b[3:5]),
		UnitID:   b[5],
	}
	rest := b[6:]
	if len(rest)%2 != 0 {
		return ModbusRequest{}, fmt.Errorf("%w: odd register payload", ErrFraming)
	}
	for i := 0; i < len(rest); i += 2 {
		r.Values = append(r.Values, binary.BigEndian.Uint16(rest[i:]))
	}
	return r, nil
}

// ModbusResponse is the internal response buffer: FC UNIT ADDR(2) N DATA[N].
// Register data is big-endian, bit data is one byte per bit.
type ModbusResponse struct {
	Function byte
	UnitID   byte
	Address  uint16
	Data     []byte
}

// MaxModbusResponseData is the largest payload the one byte count can carry.
const MaxModbusResponseData = 0xFF

func (r ModbusResponse) Bytes() ([]byte, error) {
	if len(r.Data) > MaxModbusResponseData {
		return nil, fmt.Errorf("%w: %d data bytes, at most %d", ErrFrameTooLong, len(r.Data), MaxModbusResponseData)
	}
	b := []byte{r.Function, r.UnitID, 0, 0, byte(len(r.Data))}
	binary.BigEndian.PutUint16(b[2:4], r.Address)
	return append(b, r.Data...), nil
}

func ParseModbusResponse(b []byte) (ModbusResponse, error) {
	if len(b) < 5 {
		return ModbusResponse{}, ErrShortFrame
	}
	n := int(b[4])
	if len(b) != 5+n {
		return ModbusResponse{}, fmt.Errorf("%w: byte count %d, payload %d", ErrFraming, n, len(b)-5)
	}
	data := make([]byte, n)
	copy(data, b[5:])
	return ModbusResponse{
		Function: b[0],
		UnitID:   b[1],
		Address:  binary.BigEndian.Uint16(b[2:4]),
		Data:     data,
	}, nil
}

// RegistersToBytes flattens register values into the big-endian response payload.
func RegistersToBytes(regs []uint16) []byte {
	b := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		b = binary.BigEndian.AppendUint16(b, r)
	}
	return b
}

func BitsToBytes(bits []bool) []byte {
	b := make([]byte, len(bits))
	for i, v := range bits {
		if v {
			b[i] = 1
		}
	}
	return b
}

// Register returns register i of the response payload.
func (r ModbusResponse) Register(i int) (uint16, error) {
	if i < 0 || 2*i+2 > len(r.Data) {
		return 0, fmt.Errorf("%w: register %d of %d", ErrFieldRange, i, len(r.Data)/2)
	}
	return binary.BigEndian.Uint16(r.Data[2*i:]), nil
}

func (r ModbusResponse) Bit(i int) bool {
	return i >= 0 && i < len(r.Data) && r.Data[i] != 0
}
