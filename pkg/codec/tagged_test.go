package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jkReadAll = []byte{
	0x4E, 0x57, 0x00, 0x13, 0x00, 0x00, 0x00, 0x00, 0x06, 0x03, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x68, 0x00, 0x00, 0x01, 0x29,
}

func TestTaggedReadAllRequest(t *testing.T) {
	f := TaggedFrame{Command: 0x06, Source: 0x03, Fields: []TagValue{{Tag: 0x00}}}
	assert.Equal(t, jkReadAll, f.Encode())

	got, err := DecodeTaggedFrame(jkReadAll, func(tag byte, rest []byte) (int, bool) { return 0, tag == 0 })
	require.NoError(t, err)
	assert.Equal(t, byte(0x06), got.Command)
	assert.Len(t, got.Fields, 1)
}

func TestTaggedResponseDecode(t *testing.T) {
	require := require.New(t)

	f := TaggedFrame{
		Command:   0x06,
		Source:    0x00,
		Transport: 0x01,
		Fields: []TagValue{
			{Tag: JKTagCellVoltages, Value: []byte{6, 0x01, 0x0C, 0xE4, 0x02, 0x0C, 0xE6}},
			{Tag: JKTagTotalVoltage, Value: []byte{0x0A, 0x28}},
			{Tag: JKTagSOC, Value: []byte{87}},
			{Tag: 0x01, Value: []byte{0xFF, 0xFF}},
			{Tag: JKTagCycles, Value: []byte{0x00, 0x10}},
		},
		RecordNo: 1,
	}
	got, err := DecodeTaggedFrame(f.Encode(), JKTagLengths)
	require.NoError(err)

	// the unknown tag 0x01 ends the data section
	require.Len(got.Fields, 3)
	v, ok := got.Field(JKTagSOC)
	require.True(ok)
	require.Equal([]byte{87}, v)
	_, ok = got.Field(JKTagCycles)
	require.False(ok)
	require.Equal(uint32(1), got.RecordNo)
}

func TestTaggedErrors(t *testing.T) {
	_, err := DecodeTaggedFrame(jkReadAll[:10], JKTagLengths)
	assert.ErrorIs(t, err, ErrShortFrame)

	bad := append([]byte(nil), jkReadAll...)
	bad[len(bad)-1]++
	_, err = DecodeTaggedFrame(bad, JKTagLengths)
	assert.ErrorIs(t, err, ErrChecksum)

	bad = append([]byte(nil), jkReadAll...)
	bad[3] = 0x20
	_, err = DecodeTaggedFrame(bad, JKTagLengths)
	assert.ErrorIs(t, err, ErrFraming)
}
