package codec

import (
	"encoding/binary"
	"errors"
)

// Cursor reads consecutive big-endian fields. The first error sticks and
// later reads return zero.
type Cursor struct {
	b   []byte
	off int
	err error
}

func NewCursor(b []byte) *Cursor {
	return &Cursor{b: b}
}

func (c *Cursor) read(f Field) int {
	if c.err != nil {
		return 0
	}
	f.Offset = c.off
	v, err := f.Get(c.b)
	if err != nil {
		c.err = err
		return 0
	}
	c.off += f.Width
	return v
}

func (c *Cursor) U8() int {
	return c.read(U8(0))
}

func (c *Cursor) U16() int {
	return c.read(U16BE(0))
}

func (c *Cursor) S16() int {
	return c.read(S16BE(0))
}

func (c *Cursor) U32() int {
	return c.read(U32BE(0))
}

// String reads a fixed width padded string.
func (c *Cursor) String(width int) string {
	if c.err != nil {
		return ""
	}
	s, err := GetString(c.b, c.off, width)
	if err != nil {
		c.err = err
		return ""
	}
	c.off += width
	return s
}

func (c *Cursor) Skip(n int) {
	if c.err != nil {
		return
	}
	if c.off+n > len(c.b) {
		c.err = ErrFieldRange
		return
	}
	c.off += n
}

func (c *Cursor) Remaining() int {
	return len(c.b) - c.off
}

func (c *Cursor) Err() error {
	return c.err
}

// Builder appends big-endian fields, clamping values to the field width.
type Builder struct {
	b   []byte
	err error
}

func (b *Builder) U8(v int) *Builder {
	b.b = append(b.b, byte(max(0, min(0xFF, v))))
	return b
}

func (b *Builder) U16(v int) *Builder {
	b.b = binary.BigEndian.AppendUint16(b.b, uint16(max(0, min(0xFFFF, v))))
	return b
}

func (b *Builder) S16(v int) *Builder {
	b.b = binary.BigEndian.AppendUint16(b.b, uint16(int16(max(-0x8000, min(0x7FFF, v)))))
	return b
}

func (b *Builder) U32(v int) *Builder {
	b.b = binary.BigEndian.AppendUint32(b.b, uint32(max(0, v)))
	return b
}

func (b *Builder) String(width int, s string) *Builder {
	start := len(b.b)
	b.b = append(b.b, make([]byte, width)...)
	if err := PutString(b.b, start, width, s); err != nil {
		b.err = errors.Join(b.err, err)
	}
	return b
}

func (b *Builder) Bytes() []byte {
	return b.b
}

func (b *Builder) Err() error {
	return b.err
}
