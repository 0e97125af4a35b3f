package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Field describes one numeric value inside a payload. Decoded values are
// (raw - Zero) * Mul / Div, encoding applies the inverse and clamps to the
// width of the field.
type Field struct {
	Offset int
	Width  int
	Order  binary.ByteOrder
	Signed bool
	Zero   int64
	Mul    int64
	Div    int64
}

func U8(offset int) Field {
	return Field{Offset: offset, Width: 1, Order: binary.BigEndian}
}

func S8(offset int) Field {
	return Field{Offset: offset, Width: 1, Order: binary.BigEndian, Signed: true}
}

func U16BE(offset int) Field {
	return Field{Offset: offset, Width: 2, Order: binary.BigEndian}
}

func S16BE(offset int) Field {
	return Field{Offset: offset, Width: 2, Order: binary.BigEndian, Signed: true}
}

func U16LE(offset int) Field {
	return Field{Offset: offset, Width: 2, Order: binary.LittleEndian}
}

func S16LE(offset int) Field {
	return Field{Offset: offset, Width: 2, Order: binary.LittleEndian, Signed: true}
}

func U32BE(offset int) Field {
	return Field{Offset: offset, Width: 4, Order: binary.BigEndian}
}

func U32LE(offset int) Field {
	return Field{Offset: offset, Width: 4, Order: binary.LittleEndian}
}

// Scaled returns a copy of the field converting wire units to model units by mul/div.
func (f Field) Scaled(mul, div int64) Field {
	f.Mul = mul
	f.Div = div
	return f
}

// WithZero returns a copy of the field with a zero offset subtracted after reading.
func (f Field) WithZero(zero int64) Field {
	f.Zero = zero
	return f
}

func (f Field) mul() int64 {
	if f.Mul == 0 {
		return 1
	}
	return f.Mul
}

func (f Field) div() int64 {
	if f.Div == 0 {
		return 1
	}
	return f.Div
}

func (f Field) check(b []byte) error {
	if f.Offset < 0 || f.Offset+f.Width > len(b) {
		return fmt.Errorf("%w: offset %d width %d len %d", ErrFieldRange, f.Offset, f.Width, len(b))
	}
	return nil
}

// Raw reads the unscaled wire value, sign extended when the field is signed.
func (f Field) Raw(b []byte) (int64, error) {
	if err := f.check(b); err != nil {
		return 0, err
	}
	p := b[f.Offset : f.Offset+f.Width]
	switch f.Width {
	case 1:
		if f.Signed {
			return int64(int8(p[0])), nil
		}
		return int64(p[0]), nil
	case 2:
		v := f.Order.Uint16(p)
		if f.Signed {
			return int64(int16(v)), nil
		}
		return int64(v), nil
	case 4:
		v := f.Order.Uint32(p)
		if f.Signed {
			return int64(int32(v)), nil
		}
		return int64(v), nil
	}
	return 0, fmt.Errorf("%w: unsupported width %d", ErrFieldRange, f.Width)
}

// Get reads the field and converts it to model units.
func (f Field) Get(b []byte) (int, error) {
	raw, err := f.Raw(b)
	if err != nil {
		return 0, err
	}
	return int((raw - f.Zero) * f.mul() / f.div()), nil
}

// Put converts v from model units and writes it, clamping to the field range.
func (f Field) Put(b []byte, v int) error {
	if err := f.check(b); err != nil {
		return err
	}
	raw := int64(v)*f.div()/f.mul() + f.Zero
	lo, hi := f.limits()
	raw = max(lo, min(hi, raw))
	p := b[f.Offset : f.Offset+f.Width]
	switch f.Width {
	case 1:
		p[0] = byte(raw)
	case 2:
		f.Order.PutUint16(p, uint16(raw))
	case 4:
		f.Order.PutUint32(p, uint32(raw))
	default:
		return fmt.Errorf("%w: unsupported width %d", ErrFieldRange, f.Width)
	}
	return nil
}

func (f Field) limits() (int64, int64) {
	bits := uint(f.Width * 8)
	if f.Signed {
		return -(1 << (bits - 1)), (1 << (bits - 1)) - 1
	}
	if bits >= 32 {
		return 0, math.MaxUint32
	}
	return 0, (1 << bits) - 1
}

// PutString writes s into b[offset:offset+width], truncating or padding with NUL.
func PutString(b []byte, offset, width int, s string) error {
	if offset < 0 || offset+width > len(b) {
		return fmt.Errorf("%w: string offset %d width %d len %d", ErrFieldRange, offset, width, len(b))
	}
	dst := b[offset : offset+width]
	n := copy(dst, s)
	clear(dst[n:])
	return nil
}

// GetString reads a NUL/space padded string field.
func GetString(b []byte, offset, width int) (string, error) {
	if offset < 0 || offset+width > len(b) {
		return "", fmt.Errorf("%w: string offset %d width %d len %d", ErrFieldRange, offset, width, len(b))
	}
	s := b[offset : offset+width]
	if i := bytes.IndexByte(s, 0x00); i >= 0 {
		s = s[:i]
	}
	return string(bytes.TrimRight(s, " ")), nil
}

// SplitString cuts s into consecutive chunks of width bytes, padding the last one.
// It always returns at least one chunk.
func SplitString(s string, width, maxChunks int) []string {
	var chunks []string
	for len(s) > 0 && len(chunks) < maxChunks {
		n := min(width, len(s))
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	if len(chunks) == 0 {
		chunks = append(chunks, "")
	}
	return chunks
}
