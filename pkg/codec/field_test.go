package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldEndianness(t *testing.T) {
	b := []byte{0x12, 0x34, 0xFF, 0xF6}

	v, err := U16BE(0).Get(b)
	require.NoError(t, err)
	assert.Equal(t, 0x1234, v)

	v, err = U16LE(0).Get(b)
	require.NoError(t, err)
	assert.Equal(t, 0x3412, v)

	v, err = S16BE(2).Get(b)
	require.NoError(t, err)
	assert.Equal(t, -10, v)

	_, err = U32BE(1).Get(b)
	assert.ErrorIs(t, err, ErrFieldRange)
}

func TestFieldZeroOffset(t *testing.T) {
	// current in 0.1A with a 30000 offset
	f := U16BE(0).WithZero(30000)
	b := make([]byte, 2)
	require.NoError(t, f.Put(b, -125))
	assert.Equal(t, []byte{0x74, 0xB3}, b)

	v, err := f.Get(b)
	require.NoError(t, err)
	assert.Equal(t, -125, v)
}

func TestFieldScaleAndClamp(t *testing.T) {
	// wire unit 0.01V, model unit 0.1V
	f := U16LE(0).Scaled(1, 10)
	b := make([]byte, 2)
	require.NoError(t, f.Put(b, 532))
	assert.Equal(t, []byte{0xC8, 0x14}, b)

	v, err := f.Get(b)
	require.NoError(t, err)
	assert.Equal(t, 532, v)

	require.NoError(t, U8(0).Put(b, 300))
	assert.Equal(t, byte(0xFF), b[0])
	require.NoError(t, S8(0).Put(b, -300))
	assert.Equal(t, byte(0x80), b[0])
}

func TestStrings(t *testing.T) {
	b := make([]byte, 8)
	require.NoError(t, PutString(b, 0, 8, "PYLON"))
	assert.Equal(t, []byte{'P', 'Y', 'L', 'O', 'N', 0, 0, 0}, b)

	s, err := GetString(b, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, "PYLON", s)

	assert.Equal(t, []string{"ABCDEFGH", "IJ"}, SplitString("ABCDEFGHIJ", 8, 4))
	assert.Equal(t, []string{"ABCDEFGH"}, SplitString("ABCDEFGHIJ", 8, 1))
	assert.Equal(t, []string{""}, SplitString("", 8, 2))
}

func TestCANFrame(t *testing.T) {
	f := NewCANFrame(0x18900140, 8)
	f.Data[0] = 0xAA
	raw := f.Bytes()
	assert.Equal(t, []byte{0x18, 0x90, 0x01, 0x40, 0xAA, 0, 0, 0, 0, 0, 0, 0}, raw)

	got, err := ParseCANFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	short, err := ParseCANFrame([]byte{0x00, 0x00, 0x03, 0x56, 0x01})
	require.NoError(t, err)
	assert.Len(t, short.Padded(), 8)

	_, err = ParseCANFrame(make([]byte, 13))
	assert.ErrorIs(t, err, ErrFraming)
}

func TestFixedFrame(t *testing.T) {
	f := FixedFrame{Address: 0x40, Command: 0x90}
	raw := f.Bytes()
	assert.Equal(t, byte(0x7D), raw[12])

	got, err := ParseFixedFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	raw[5] = 1
	_, err = ParseFixedFrame(raw)
	assert.ErrorIs(t, err, ErrChecksum)
}
