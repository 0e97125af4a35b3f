package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServeUnit is the configuration of one inverter link.
type ServeUnit struct {
	Name    string
	Locator string
	// Delay is the backoff after an empty receive while waiting for a request.
	Delay    time.Duration
	SOCMode  domain.SOCMode
	Protocol port.InverterProtocol
	Plugins  []port.InverterPlugin
}

// ServeEngine aggregates the storage and sends it to one inverter, either
// pushed every cycle or in reply to inverter requests.
type ServeEngine struct {
	unit     ServeUnit
	registry *PortRegistry
	storage  *domain.EnergyStorage
	Sleep    func(time.Duration)
	logger   *zap.Logger
}

func NewServeEngine(unit ServeUnit, registry *PortRegistry, storage *domain.EnergyStorage, logger *zap.Logger) *ServeEngine {
	return &ServeEngine{
		unit:     unit,
		registry: registry,
		storage:  storage,
		Sleep:    time.Sleep,
		logger:   logger.With(zap.String("unit", unit.Name), zap.String("vendor", unit.Protocol.Name)),
	}
}

func (e *ServeEngine) Unit() ServeUnit {
	return e.unit
}

// Aggregate builds the plugin adjusted aggregate that would be encoded now.
func (e *ServeEngine) Aggregate() domain.Aggregate {
	agg := Aggregate(e.storage.Snapshots(), e.unit.SOCMode)
	for _, plugin := range e.unit.Plugins {
		plugin.ManipulatePack(e.unit.Name, &agg)
	}
	return agg
}

func (e *ServeEngine) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	id := uuid.NewString()
	logger := e.logger.With(zap.String("cycle", id))

	err := e.run(ctx, logger)
	result := CycleResult{
		Outcome:       outcomeOf(err),
		CorrelationID: id,
		Err:           err,
		Duration:      time.Since(start),
	}
	logOutcome(logger, result)
	return result
}

func (e *ServeEngine) run(ctx context.Context, logger *zap.Logger) error {
	p, err := e.registry.Allocate(ctx, e.unit.Locator)
	if err != nil {
		return err
	}
	defer e.registry.Free(e.unit.Locator)

	if !p.IsOpen() {
		if err := p.Open(); err != nil {
			return fmt.Errorf("open %s: %w", p.Locator(), err)
		}
	}

	agg := e.Aggregate()
	if !e.unit.Protocol.RequestDriven() {
		// push links never read, drop whatever the inverter sent since the last cycle
		if err := p.ClearBuffers(); err != nil {
			return fmt.Errorf("clear %s: %w", p.Locator(), err)
		}
		frames, err := e.unit.Protocol.Frames(&agg)
		if err != nil {
			logger.Warn("field encode", zap.Error(err))
		}
		return e.send(p, frames)
	}

	// buffers are not cleared here, a pending inverter request is answered
	rx := &receiver{port: p, delay: e.unit.Delay, sleep: e.Sleep, onFrame: e.onReceive}
	for {
		frame, err := rx.next()
		if errors.Is(err, ErrNoData) {
			reopen(p, logger)
		}
		if err != nil {
			return err
		}

		responses, result, err := e.unit.Protocol.Respond(frame, &agg)
		if err != nil {
			logger.Warn("field encode", zap.Error(err))
		}
		if result == port.FRAME_INVALID {
			if err := rx.reject(); err != nil {
				return err
			}
			continue
		}
		rx.accept()
		if err := e.send(p, responses); err != nil {
			return err
		}
		if result == port.FRAME_DONE {
			return nil
		}
	}
}

func (e *ServeEngine) send(p port.Port, frames [][]byte) error {
	for _, frame := range frames {
		for _, plugin := range e.unit.Plugins {
			frame = plugin.OnSend(e.unit.Name, frame)
		}
		if err := p.SendFrame(frame); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return nil
}

func (e *ServeEngine) onReceive(frame []byte) []byte {
	for _, plugin := range e.unit.Plugins {
		frame = plugin.OnReceive(e.unit.Name, frame)
	}
	return frame
}
