package codec

import (
	"encoding/binary"
	"fmt"
)

const (
	MaxCANData = 8
	// CANIDMask keeps the 29 identifier bits of an extended frame id.
	CANIDMask = 0x1FFFFFFF
)

// CANFrame is a CAN message as carried through a Port: a 4-byte big-endian
// identifier followed by up to 8 payload bytes.
type CANFrame struct {
	ID   uint32
	Data []byte
}

func NewCANFrame(id uint32, length int) CANFrame {
	return CANFrame{ID: id & CANIDMask, Data: make([]byte, min(length, MaxCANData))}
}

func (f CANFrame) Bytes() []byte {
	b := make([]byte, 4, 4+len(f.Data))
	binary.BigEndian.PutUint32(b, f.ID&CANIDMask)
	return append(b, f.Data...)
}

func ParseCANFrame(b []byte) (CANFrame, error) {
	if len(b) < 4 {
		return CANFrame{}, ErrShortFrame
	}
	if len(b) > 4+MaxCANData {
		return CANFrame{}, fmt.Errorf("%w: %d payload bytes", ErrFraming, len(b)-4)
	}
	data := make([]byte, len(b)-4)
	copy(data, b[4:])
	return CANFrame{ID: binary.BigEndian.Uint32(b) & CANIDMask, Data: data}, nil
}

// Padded returns the payload extended to 8 bytes so fixed offsets never fall outside it.
func (f CANFrame) Padded() []byte {
	if len(f.Data) >= MaxCANData {
		return f.Data
	}
	p := make([]byte, MaxCANData)
	copy(p, f.Data)
	return p
}

func (f CANFrame) String() string {
	return fmt.Sprintf("%#x [% X]", f.ID, f.Data)
}
