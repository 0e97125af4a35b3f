package bms

import (
	"errors"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/pkg/codec"
)

const (
	// 0.1K to 0.1°C
	kelvinOffset = 2731
	// listen only commands give up after this many frames per expected id
	collectRounds = 4
)

// fields reads codec fields from one payload and collects the errors.
type fields struct {
	b    []byte
	errs []error
}

func (f *fields) get(field codec.Field) int {
	v, err := field.Get(f.b)
	if err != nil {
		f.errs = append(f.errs, err)
	}
	return v
}

func (f *fields) bit(offset int, bit uint) bool {
	if offset >= len(f.b) {
		f.errs = append(f.errs, codec.ErrFieldRange)
		return false
	}
	return f.b[offset]&(1<<bit) != 0
}

func (f *fields) add(err error) {
	if err != nil {
		f.errs = append(f.errs, err)
	}
}

func (f *fields) err() error {
	return errors.Join(f.errs...)
}

// bitsLE packs payload bytes into one value, byte i at bits 8i..8i+7.
func bitsLE(b []byte) uint64 {
	var v uint64
	for i := 0; i < len(b) && i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// payloadDecoder decodes one response payload into the pack.
type payloadDecoder func(data []byte, pack *domain.BatteryPack) error

// collect builds a listen only command accepting a fixed set of broadcast
// ids. It completes once every id was seen, or after collectRounds frames
// per id when some id never shows up.
func collect(name string, decoders map[uint32]payloadDecoder) port.BMSCommand {
	return collectAddressed(name, nil, decoders)
}

// collectAddressed is collect for vendors adding the unit address to the
// broadcast ids. offset returns the amount to subtract before lookup.
func collectAddressed(name string, offset func(address int) uint32, decoders map[uint32]payloadDecoder) port.BMSCommand {
	return port.BMSCommand{
		Name: name,
		Handle: func(frame []byte, ex *port.Exchange) (port.FrameResult, error) {
			cf, err := codec.ParseCANFrame(frame)
			if err != nil {
				return port.FRAME_INVALID, nil
			}
			id := cf.ID
			if offset != nil {
				id -= offset(ex.Address)
			}
			decode, ok := decoders[id]
			if !ok {
				return port.FRAME_INVALID, nil
			}
			err = decode(cf.Padded(), ex.Pack)
			if ex.Mark(id) == len(decoders) || ex.Frames+1 >= collectRounds*len(decoders) {
				return port.FRAME_DONE, err
			}
			return port.FRAME_MORE, err
		},
	}
}

// expectedFrames is the number of frames needed to carry n values at perFrame each.
func expectedFrames(n, perFrame int) int {
	return max(1, (n+perFrame-1)/perFrame)
}

func updateChargeState(pack *domain.BatteryPack) {
	switch {
	case pack.PackCurrent > 0:
		pack.ChargeState = domain.CHARGE_STATE_CHARGE
	case pack.PackCurrent < 0:
		pack.ChargeState = domain.CHARGE_STATE_DISCHARGE
	default:
		pack.ChargeState = domain.CHARGE_STATE_IDLE
	}
}

// text decodes a padded string value.
func text(b []byte) string {
	s, _ := codec.GetString(b, 0, len(b))
	return s
}
