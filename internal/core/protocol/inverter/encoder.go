package inverter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/pkg/codec"
	"github.com/carlmjohnson/versioninfo"
)

// encoder collects CAN frames and the field errors of one encode pass.
// Values outside a field range are clamped by the codec.
type encoder struct {
	frames []*payload
	errs   []error
}

type payload struct {
	id  uint32
	b   []byte
	enc *encoder
}

// can starts a new 8-byte frame.
func (e *encoder) can(id uint32) *payload {
	p := &payload{id: id, b: make([]byte, codec.MaxCANData), enc: e}
	e.frames = append(e.frames, p)
	return p
}

func (p *payload) put(f codec.Field, v int) *payload {
	if err := f.Put(p.b, v); err != nil {
		p.enc.errs = append(p.enc.errs, fmt.Errorf("%#x: %w", p.id, err))
	}
	return p
}

func (p *payload) str(offset, width int, s string) *payload {
	if err := codec.PutString(p.b, offset, width, s); err != nil {
		p.enc.errs = append(p.enc.errs, fmt.Errorf("%#x: %w", p.id, err))
	}
	return p
}

func (p *payload) set(offset int, v byte) *payload {
	p.b[offset] = v
	return p
}

func (e *encoder) result() ([][]byte, error) {
	out := make([][]byte, len(e.frames))
	for i, p := range e.frames {
		out[i] = codec.CANFrame{ID: p.id, Data: p.b}.Bytes()
	}
	return out, errors.Join(e.errs...)
}

func flag(b bool, bit uint) byte {
	if b {
		return 1 << bit
	}
	return 0
}

// softwareVersion returns the gateway release as major and minor numbers.
// Development builds report 0.0.
func softwareVersion() (major, minor int) {
	_, _ = fmt.Sscanf(strings.TrimPrefix(versioninfo.Version, "v"), "%d.%d", &major, &minor)
	return major, minor
}

func manufacturer(agg *domain.Aggregate, fallback string) string {
	if agg.ManufacturerCode != "" {
		return agg.ManufacturerCode
	}
	return fallback
}

func chargeState(agg *domain.Aggregate) byte {
	switch agg.ChargeState {
	case domain.CHARGE_STATE_SLEEP:
		return 0
	case domain.CHARGE_STATE_CHARGE:
		return 1
	case domain.CHARGE_STATE_DISCHARGE:
		return 2
	}
	return 3
}
