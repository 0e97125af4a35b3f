package bms

import (
	"fmt"

	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

// CID1 of battery data commands in the ASCII-hex family.
const asciiCID1Battery = 0x46

// asciiCommand builds a request/response command of the ASCII-hex family.
// A response is accepted only with the unit address, the battery CID1 and
// return code 0.
func asciiCommand(name string, version, cid2 byte, info func(address int) []byte, decode payloadDecoder) port.BMSCommand {
	return port.BMSCommand{
		Name: name,
		Request: func(address int) []byte {
			f := codec.ASCIIFrame{Version: version, Address: byte(address), CID1: asciiCID1Battery, CID2: cid2}
			if info != nil {
				f.Info = info(address)
			}
			return f.Encode()
		},
		Handle: func(frame []byte, ex *port.Exchange) (port.FrameResult, error) {
			af, err := codec.DecodeASCIIFrame(frame)
			if err != nil || int(af.Address) != ex.Address || af.CID1 != asciiCID1Battery || af.CID2 != codec.RTNOk {
				return port.FRAME_INVALID, nil
			}
			return port.FRAME_DONE, decode(af.Info, ex.Pack)
		},
	}
}

// addressInfo is the INFO of commands addressing one pack of a group.
func addressInfo(address int) []byte {
	return []byte{byte(address)}
}

// kelvin converts 0.1K to 0.1°C.
func kelvin(v int) int {
	return v - kelvinOffset
}

func requireLength(info []byte, n int) error {
	if len(info) < n {
		return fmt.Errorf("%w: %d info bytes, need %d", codec.ErrFieldRange, len(info), n)
	}
	return nil
}
