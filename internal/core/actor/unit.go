package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/service"
	. "github.com/berfenger/bmsgateway/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// MaxConsecutiveFailures failed cycles in a row mark a unit unhealthy.
const MaxConsecutiveFailures = 3

// CycleRunner is one poll or serve engine.
type CycleRunner interface {
	RunCycle(ctx context.Context) service.CycleResult
}

// UnitActor runs the cycles of one BMS or inverter unit on a fixed interval.
// Cycles never overlap, ticks arriving while a cycle runs are dropped.
type UnitActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	cancelTick  scheduler.CancelFunc
	runCtx      context.Context
	cancelRun   context.CancelFunc
	runner      CycleRunner
	interval    time.Duration
	eventStream *eventstream.EventStream
	health      domain.UnitHealth

	logger *zap.Logger
}

type unitTick struct {
}

type cycleDone struct {
	result service.CycleResult
}

func NewUnitActor(name string, kind domain.UnitKind, interval time.Duration, runner CycleRunner, eventStream *eventstream.EventStream, logger *zap.Logger) *UnitActor {
	act := &UnitActor{
		runner:      runner,
		interval:    interval,
		eventStream: eventStream,
		health: domain.UnitHealth{
			Unit:    name,
			Kind:    kind,
			Healthy: true,
		},
		logger: ActorLogger(string(kind)+"-"+name, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(unitIdleState{actor: act})
	return act
}

func (state *UnitActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (state *UnitActor) start(ctx actor.Context) {
	state.logger.Debug("unit started", zap.Duration("interval", state.interval))
	state.runCtx, state.cancelRun = context.WithCancel(context.Background())
	state.scheduler = scheduler.NewTimerScheduler(ctx)
	state.cancelTick = state.scheduler.SendRepeatedly(0, state.interval, ctx.Self(), unitTick{})
}

func (state *UnitActor) stop() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	if state.cancelRun != nil {
		state.cancelRun()
	}
}

func (state *UnitActor) respondHealth(ctx actor.Context, msg any) bool {
	switch msg.(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.health.Unit,
			Healthy: state.health.Healthy,
			State:   state.StateName(),
		})
	case domain.GetUnitHealthRequest:
		ctx.Respond(domain.GetUnitHealthResponse{
			Units: []domain.UnitHealth{state.health},
		})
	default:
		return false
	}
	return true
}

func (state *UnitActor) completed(result service.CycleResult) {
	h := &state.health
	h.LastOutcome = result.Outcome
	h.LastCycleDuration = result.Duration
	if result.Outcome == domain.CYCLE_SUCCESS {
		h.ConsecutiveFailures = 0
		h.LastSuccess = time.Now()
	} else {
		h.ConsecutiveFailures++
	}
	wasHealthy := h.Healthy
	h.Healthy = h.ConsecutiveFailures < MaxConsecutiveFailures
	if wasHealthy && !h.Healthy {
		state.logger.Error("unit unhealthy", zap.Int("failures", h.ConsecutiveFailures), zap.Error(result.Err))
	} else if !wasHealthy && h.Healthy {
		state.logger.Info("unit recovered")
	}
	state.eventStream.Publish(result.Event(h.Unit, h.Kind))
}

// Idle state

type unitIdleState struct {
	ActorState
	actor *UnitActor
}

func (state unitIdleState) Name() string {
	return "idle"
}

func (state unitIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.start(ctx)
	case *actor.Stopping:
		state.actor.stop()
	case *actor.Restarting:
		state.actor.stop()
	case unitTick:
		runner, runCtx := state.actor.runner, state.actor.runCtx
		NewBackgroundTaskNoError(ctx, func() *cycleDone {
			return &cycleDone{result: runner.RunCycle(runCtx)}
		}).Recover(func(err error) cycleDone {
			return cycleDone{result: service.CycleResult{Outcome: domain.CYCLE_FATAL_IO, Err: err}}
		}).PipeTo(ctx.Self())
		state.actor.BecomeStacked(unitRunningState{actor: state.actor})
	default:
		if !state.actor.respondHealth(ctx, msg) {
			state.actor.logger.Debug("unit@idle ignored", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// Running state

type unitRunningState struct {
	ActorState
	actor *UnitActor
}

func (state unitRunningState) Name() string {
	return "running"
}

func (state unitRunningState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case unitTick:
		state.actor.logger.Debug("unit@running tick dropped")
	case cycleDone:
		state.actor.completed(msg.result)
		state.actor.UnbecomeStacked()
	case *actor.Stopping:
		state.actor.stop()
	case *actor.Restarting:
		state.actor.stop()
	default:
		if !state.actor.respondHealth(ctx, msg) {
			state.actor.logger.Debug("unit@running ignored", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}
