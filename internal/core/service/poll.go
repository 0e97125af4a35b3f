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

// PollUnit is the configuration of one BMS unit.
type PollUnit struct {
	Name      string
	Address   int
	PackIndex int
	Locator   string
	// Delay is the backoff after an empty receive.
	Delay    time.Duration
	Protocol port.BMSProtocol
	Plugins  []port.BMSPlugin
}

// PollEngine runs the command sequence of one BMS unit. Cycles of one
// engine must not overlap.
type PollEngine struct {
	unit     PollUnit
	registry *PortRegistry
	storage  *domain.EnergyStorage
	// OnSuccess receives a copy of the pack after every successful cycle.
	OnSuccess func(domain.BatteryPack)
	Sleep     func(time.Duration)
	logger    *zap.Logger
}

func NewPollEngine(unit PollUnit, registry *PortRegistry, storage *domain.EnergyStorage, logger *zap.Logger) *PollEngine {
	return &PollEngine{
		unit:     unit,
		registry: registry,
		storage:  storage,
		Sleep:    time.Sleep,
		logger:   logger.With(zap.String("unit", unit.Name), zap.String("vendor", unit.Protocol.Name)),
	}
}

func (e *PollEngine) Unit() PollUnit {
	return e.unit
}

func (e *PollEngine) RunCycle(ctx context.Context) CycleResult {
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

func (e *PollEngine) run(ctx context.Context, logger *zap.Logger) error {
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
	if err := p.ClearBuffers(); err != nil {
		return fmt.Errorf("clear %s: %w", p.Locator(), err)
	}

	for _, plugin := range e.unit.Plugins {
		plugin.BeforeCycle(e.unit.Name)
	}

	rx := &receiver{port: p, delay: e.unit.Delay, sleep: e.Sleep, onFrame: e.onReceive}
	ex := port.NewExchange(e.unit.Address, nil)
	for _, cmd := range e.unit.Protocol.Commands {
		err := e.runCommand(p, rx, ex, cmd, logger)
		if errors.Is(err, ErrNoData) {
			reopen(p, logger)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Name, err)
		}
	}

	var pack domain.BatteryPack
	err = e.storage.Update(e.unit.PackIndex, func(bp *domain.BatteryPack) error {
		for _, plugin := range e.unit.Plugins {
			plugin.AfterCycle(e.unit.Name, bp)
		}
		bp.UpdatedAt = time.Now()
		pack = bp.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	if e.OnSuccess != nil {
		e.OnSuccess(pack)
	}
	return nil
}

func (e *PollEngine) runCommand(p port.Port, rx *receiver, ex *port.Exchange, cmd port.BMSCommand, logger *zap.Logger) error {
	ex.Reset()
	rx.noData, rx.invalid = 0, 0
	if cmd.Request != nil {
		frame := cmd.Request(e.unit.Address)
		for _, plugin := range e.unit.Plugins {
			frame = plugin.OnSend(e.unit.Name, frame)
		}
		if err := p.SendFrame(frame); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	for {
		frame, err := rx.next()
		if err != nil {
			return err
		}

		var result port.FrameResult
		var decodeErr error
		err = e.storage.Update(e.unit.PackIndex, func(bp *domain.BatteryPack) error {
			ex.Pack = bp
			result, decodeErr = cmd.Handle(frame, ex)
			ex.Pack = nil
			return nil
		})
		if err != nil {
			return err
		}
		if decodeErr != nil {
			logger.Warn("field decode", zap.String("command", cmd.Name), zap.Error(decodeErr))
		}

		switch result {
		case port.FRAME_INVALID:
			logger.Debug("invalid frame", zap.String("command", cmd.Name), zap.Binary("frame", frame))
			if err := rx.reject(); err != nil {
				return err
			}
		case port.FRAME_MORE:
			ex.Frames++
			rx.accept()
		case port.FRAME_DONE:
			return nil
		}
	}
}

func (e *PollEngine) onReceive(frame []byte) []byte {
	for _, plugin := range e.unit.Plugins {
		frame = plugin.OnReceive(e.unit.Name, frame)
	}
	return frame
}
