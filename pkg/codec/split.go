package codec

import (
	"bytes"
	"encoding/binary"
)

// Split functions follow bufio.SplitFunc semantics and are used by byte
// stream ports to cut frames. Garbage before a start marker is skipped.

func SplitASCII(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.IndexByte(data, ASCIIStart)
	if start < 0 {
		return len(data), nil, nil
	}
	end := bytes.IndexByte(data[start:], ASCIIEnd)
	if end < 0 {
		return start, nil, nil
	}
	return start + end + 1, data[start : start+end+1], nil
}

func SplitFixed(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.IndexByte(data, FixedFrameStart)
	if start < 0 {
		return len(data), nil, nil
	}
	if len(data)-start < FixedFrameLength {
		return start, nil, nil
	}
	return start + FixedFrameLength, data[start : start+FixedFrameLength], nil
}

func SplitTagged(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, []byte{TaggedStart0, TaggedStart1})
	if start < 0 {
		// keep a trailing first start byte, the second one may follow
		if len(data) > 0 && data[len(data)-1] == TaggedStart0 {
			return len(data) - 1, nil, nil
		}
		return len(data), nil, nil
	}
	if len(data)-start < 4 {
		return start, nil, nil
	}
	total := int(binary.BigEndian.Uint16(data[start+2:])) + 2
	if total < TaggedMinLength {
		// not a frame, resync after the start marker
		return start + 1, nil, nil
	}
	if len(data)-start < total {
		return start, nil, nil
	}
	return start + total, data[start : start+total], nil
}
