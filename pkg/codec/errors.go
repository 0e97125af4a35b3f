// Package codec holds the stateless frame codecs shared by the BMS and inverter
// protocol implementations: fixed binary frames (CAN and 13-byte serial),
// ASCII-hex checksummed frames, tagged byte streams and synthetic Modbus buffers.
package codec

import "errors"

var (
	ErrShortFrame     = errors.New("codec: frame too short")
	ErrFraming        = errors.New("codec: invalid frame delimiters")
	ErrChecksum       = errors.New("codec: checksum mismatch")
	ErrLengthChecksum = errors.New("codec: length checksum mismatch")
	ErrFieldRange     = errors.New("codec: field out of frame bounds")
	ErrFrameTooLong   = errors.New("codec: frame too long")
)
