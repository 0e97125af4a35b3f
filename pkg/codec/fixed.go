package codec

import "fmt"

const (
	FixedFrameStart  = 0xA5
	FixedFrameLength = 13
	fixedDataLength  = 8
)

// FixedFrame is the 13-byte serial frame: START ADDR CMD LEN(8) DATA[8] SUM.
type FixedFrame struct {
	Address byte
	Command byte
	Data    [8]byte
}

func (f FixedFrame) Bytes() []byte {
	b := make([]byte, FixedFrameLength)
	b[0] = FixedFrameStart
	b[1] = f.Address
	b[2] = f.Command
	b[3] = fixedDataLength
	copy(b[4:12], f.Data[:])
	b[12] = sum8(b[:12])
	return b
}

func ParseFixedFrame(b []byte) (FixedFrame, error) {
	if len(b) < FixedFrameLength {
		return FixedFrame{}, ErrShortFrame
	}
	if b[0] != FixedFrameStart || b[3] != fixedDataLength {
		return FixedFrame{}, fmt.Errorf("%w: start %#x len %d", ErrFraming, b[0], b[3])
	}
	if sum8(b[:12]) != b[12] {
		return FixedFrame{}, ErrChecksum
	}
	f := FixedFrame{Address: b[1], Command: b[2]}
	copy(f.Data[:], b[4:12])
	return f, nil
}

func sum8(b []byte) byte {
	var s byte
	for _, v := range b {
		s += v
	}
	return s
}
