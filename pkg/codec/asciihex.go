package codec

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	ASCIIStart = '~'
	ASCIIEnd   = '\r'

	// header is VER ADR CID1 CID2 LENGTH, all as hex characters
	asciiHeaderChars = 12
	asciiMinLength   = 1 + asciiHeaderChars + 4 + 1
	maxLengthID      = 0x0FFF
)

// Return codes carried in CID2 of a response.
const (
	RTNOk                = 0x00
	RTNVersionError      = 0x01
	RTNChecksumError     = 0x02
	RTNLengthError       = 0x03
	RTNCID2Invalid       = 0x04
	RTNCommandFormat     = 0x05
	RTNInvalidData       = 0x06
	RTNAddressError      = 0x90
	RTNCommunicationFail = 0x91
)

// ASCIIFrame is one frame of the ASCII-hex protocol family. Info holds the
// logical bytes, each transmitted as two hex characters.
type ASCIIFrame struct {
	Version byte
	Address byte
	CID1    byte
	CID2    byte
	Info    []byte
}

// ASCIIChecksum sums the characters between START and the checksum field,
// takes the sum modulo 65535, inverts it and adds one.
func ASCIIChecksum(body []byte) uint16 {
	var sum uint32
	for _, c := range body {
		sum += uint32(c)
	}
	sum %= 65535
	return uint16(^sum + 1)
}

// LengthChecksum returns the 4-bit checksum of a 12-bit LENID.
func LengthChecksum(lengthID int) uint16 {
	l := uint16(lengthID) & maxLengthID
	sum := (l & 0xF) + ((l >> 4) & 0xF) + ((l >> 8) & 0xF)
	return (^(sum % 16) + 1) & 0xF
}

// LengthWord packs LENID with its checksum in the top nibble.
func LengthWord(lengthID int) uint16 {
	return LengthChecksum(lengthID)<<12 | uint16(lengthID)&maxLengthID
}

// ParseLengthWord validates the length checksum and returns LENID.
func ParseLengthWord(word uint16) (int, error) {
	lengthID := int(word & maxLengthID)
	if word>>12 != LengthChecksum(lengthID) {
		return 0, fmt.Errorf("%w: word %04X", ErrLengthChecksum, word)
	}
	return lengthID, nil
}

func (f ASCIIFrame) Encode() []byte {
	info := appendHexUpper(nil, f.Info...)
	b := make([]byte, 0, asciiMinLength+len(info))
	b = append(b, ASCIIStart)
	b = appendHexUpper(b, f.Version, f.Address, f.CID1, f.CID2)
	word := LengthWord(len(info))
	b = appendHexUpper(b, byte(word>>8), byte(word))
	b = append(b, info...)
	chk := ASCIIChecksum(b[1:])
	b = appendHexUpper(b, byte(chk>>8), byte(chk))
	return append(b, ASCIIEnd)
}

// DecodeASCIIFrame validates delimiters, length checksum and frame checksum.
// Nothing is decoded from a frame failing any of them.
func DecodeASCIIFrame(raw []byte) (ASCIIFrame, error) {
	if len(raw) < asciiMinLength {
		return ASCIIFrame{}, ErrShortFrame
	}
	if raw[0] != ASCIIStart || raw[len(raw)-1] != ASCIIEnd {
		return ASCIIFrame{}, ErrFraming
	}
	body := raw[1 : len(raw)-5]
	chk, err := strconv.ParseUint(string(raw[len(raw)-5:len(raw)-1]), 16, 16)
	if err != nil {
		return ASCIIFrame{}, fmt.Errorf("%w: %v", ErrFraming, err)
	}

	header := make([]byte, asciiHeaderChars/2)
	if _, err := hex.Decode(header, body[:asciiHeaderChars]); err != nil {
		return ASCIIFrame{}, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	lengthID, err := ParseLengthWord(uint16(header[4])<<8 | uint16(header[5]))
	if err != nil {
		return ASCIIFrame{}, err
	}
	infoChars := body[asciiHeaderChars:]
	if lengthID != len(infoChars) || lengthID%2 != 0 {
		return ASCIIFrame{}, fmt.Errorf("%w: LENID %d, %d info characters", ErrFraming, lengthID, len(infoChars))
	}
	if uint16(chk) != ASCIIChecksum(body) {
		return ASCIIFrame{}, fmt.Errorf("%w: got %04X want %04X", ErrChecksum, chk, ASCIIChecksum(body))
	}

	info := make([]byte, lengthID/2)
	if _, err := hex.Decode(info, infoChars); err != nil {
		return ASCIIFrame{}, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	return ASCIIFrame{
		Version: header[0],
		Address: header[1],
		CID1:    header[2],
		CID2:    header[3],
		Info:    info,
	}, nil
}

const hexDigits = "0123456789ABCDEF"

func appendHexUpper(dst []byte, v ...byte) []byte {
	for _, b := range v {
		dst = append(dst, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	return dst
}
