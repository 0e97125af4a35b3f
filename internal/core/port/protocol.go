package port

import (
	"bufio"

	"github.com/berfenger/bmsgateway/internal/core/domain"
)

// FrameResult tells the engine what to do with a received frame.
type FrameResult int

const (
	// FRAME_INVALID failed checksum, address or command validation.
	FRAME_INVALID FrameResult = iota
	// FRAME_MORE was accepted, the command expects more frames.
	FRAME_MORE
	// FRAME_DONE was accepted and completes the command.
	FRAME_DONE
)

// Exchange is the per command state handed to decoders.
type Exchange struct {
	Address int
	Pack    *domain.BatteryPack
	// Frames counts the frames accepted for the current command.
	Frames int
	seen   map[uint32]struct{}
}

func NewExchange(address int, pack *domain.BatteryPack) *Exchange {
	return &Exchange{Address: address, Pack: pack}
}

// Reset prepares the exchange for the next command.
func (e *Exchange) Reset() {
	e.Frames = 0
	clear(e.seen)
}

// Mark records a frame key and returns how many distinct keys were seen.
func (e *Exchange) Mark(key uint32) int {
	if e.seen == nil {
		e.seen = make(map[uint32]struct{})
	}
	e.seen[key] = struct{}{}
	return len(e.seen)
}

// BMSCommand is one step of a BMS command sequence.
type BMSCommand struct {
	Name string
	// Request builds the frame to send. Nil for listen only commands.
	Request func(address int) []byte
	// Handle validates a received frame and decodes it into ex.Pack. The
	// error reports field decode problems and never aborts the cycle.
	Handle func(frame []byte, ex *Exchange) (FrameResult, error)
}

// BMSProtocol is the static description of one BMS vendor protocol.
type BMSProtocol struct {
	Name      string
	Transport Transport
	Framing   bufio.SplitFunc
	Commands  []BMSCommand
}

// InverterProtocol is the static description of one inverter vendor protocol.
// Push protocols send Frames every cycle, request driven ones answer with Respond.
type InverterProtocol struct {
	Name      string
	Transport Transport
	Framing   bufio.SplitFunc
	Frames    func(agg *domain.Aggregate) ([][]byte, error)
	Respond   func(request []byte, agg *domain.Aggregate) ([][]byte, FrameResult, error)
}

func (p InverterProtocol) RequestDriven() bool {
	return p.Respond != nil
}
