package service

import (
	"errors"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"go.uber.org/zap"
)

const (
	// MaxNoData consecutive empty receives abort a cycle with NoData.
	MaxNoData = 10
	// MaxInvalid consecutive rejected frames abort a cycle with TooManyInvalid.
	MaxInvalid = 10
)

var (
	ErrNoData         = errors.New("no data available")
	ErrTooManyInvalid = errors.New("too many invalid frames")
)

// CycleResult is returned by every poll and serve cycle.
type CycleResult struct {
	Outcome       domain.CycleOutcome
	CorrelationID string
	Err           error
	Duration      time.Duration
}

func (r CycleResult) Event(unit string, kind domain.UnitKind) domain.CycleCompletedEvent {
	return domain.CycleCompletedEvent{
		Unit:          unit,
		Kind:          kind,
		CorrelationID: r.CorrelationID,
		Outcome:       r.Outcome,
		Err:           r.Err,
		Duration:      r.Duration,
	}
}

func logOutcome(logger *zap.Logger, r CycleResult) {
	fields := []zap.Field{
		zap.Stringer("outcome", r.Outcome),
		zap.Duration("duration", r.Duration),
	}
	switch r.Outcome {
	case domain.CYCLE_SUCCESS:
		logger.Debug("cycle completed", fields...)
	case domain.CYCLE_NO_DATA, domain.CYCLE_TOO_MANY_INVALID:
		logger.Warn("cycle aborted", append(fields, zap.Error(r.Err))...)
	default:
		logger.Error("cycle failed", append(fields, zap.Error(r.Err))...)
	}
}

// receiver drives the consecutive miss and rejection counters of one exchange.
type receiver struct {
	port    port.Port
	delay   time.Duration
	sleep   func(time.Duration)
	onFrame func([]byte) []byte
	noData  int
	invalid int
}

// next returns the next frame, ErrNoData after MaxNoData misses or the port error.
func (r *receiver) next() ([]byte, error) {
	for {
		frame, err := r.port.ReceiveFrame()
		if err != nil {
			return nil, err
		}
		if frame == nil {
			r.noData++
			if r.noData >= MaxNoData {
				return nil, ErrNoData
			}
			r.sleep(r.delay)
			continue
		}
		r.noData = 0
		if r.onFrame != nil {
			frame = r.onFrame(frame)
		}
		return frame, nil
	}
}

// reject counts an invalid frame and flushes the port at MaxInvalid.
func (r *receiver) reject() error {
	r.invalid++
	if r.invalid >= MaxInvalid {
		if err := r.port.ClearBuffers(); err != nil {
			return err
		}
		return ErrTooManyInvalid
	}
	return nil
}

func (r *receiver) accept() {
	r.invalid = 0
}

func outcomeOf(err error) domain.CycleOutcome {
	switch {
	case err == nil:
		return domain.CYCLE_SUCCESS
	case errors.Is(err, ErrNoData):
		return domain.CYCLE_NO_DATA
	case errors.Is(err, ErrTooManyInvalid):
		return domain.CYCLE_TOO_MANY_INVALID
	}
	return domain.CYCLE_FATAL_IO
}

// reopen resynchronizes a port after a NoData abort.
func reopen(p port.Port, logger *zap.Logger) {
	if err := p.Close(); err != nil {
		logger.Warn("close port", zap.String("locator", p.Locator()), zap.Error(err))
	}
	if err := p.Open(); err != nil {
		logger.Warn("reopen port", zap.String("locator", p.Locator()), zap.Error(err))
	}
}
