package actor

import (
	"context"
	"fmt"
	"time"

	adactor "github.com/berfenger/bmsgateway/internal/adapter/actor"
	"github.com/berfenger/bmsgateway/internal/config"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/service"
	. "github.com/berfenger/bmsgateway/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const childHealthTimeout = 500 * time.Millisecond

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// UnitSpec describes one BMS or inverter unit supervised by the master.
type UnitSpec struct {
	Name     string
	Kind     domain.UnitKind
	Interval time.Duration
	Runner   CycleRunner
}

func (u UnitSpec) actorName() string {
	if u.Kind == domain.UNIT_KIND_INVERTER {
		return domain.ACTOR_PREFIX_INVERTER + u.Name
	}
	return domain.ACTOR_PREFIX_BMS + u.Name
}

type MasterActor struct {
	behavior actor.Behavior
	stash    *Stash

	units             []UnitSpec
	unitActors        []*actor.PID
	mqttActor         *actor.PID
	mqttActorProvider MQTTActorProvider
	storage           *domain.EnergyStorage
	bmsUnits          []string
	eventStream       *eventstream.EventStream
	monitor           config.MonitorConfig
	scheduler         quartz.Scheduler
	cancelScheduler   context.CancelFunc

	currentHealthCheck healthCheckResult
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected  int
	received  int
	healthy   bool
	units     []domain.UnitHealth
	detailed  bool
	respondTo *actor.PID
}

func NewMasterActor(units []UnitSpec, storage *domain.EnergyStorage, bmsUnits []string, eventStream *eventstream.EventStream,
	monitor config.MonitorConfig, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		units:             units,
		mqttActorProvider: mqttActorProvider,
		storage:           storage,
		bmsUnits:          bmsUnits,
		eventStream:       eventStream,
		monitor:           monitor,
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		for _, unit := range state.units {
			pid, err := state.startUnitActor(ctx, unit)
			if err != nil {
				panic(err)
			}
			state.unitActors = append(state.unitActors, pid)
		}

		if err := state.startWatchdog(ctx); err != nil {
			panic(err)
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(ctx.Sender(), false, len(state.unitActors)+1)
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, childHealthTimeout), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		for i, pid := range state.unitActors {
			unit := state.units[i]
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, childHealthTimeout), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      unit.Name,
					Healthy: false,
				}
			})
		}
		ctx.SetReceiveTimeout(1 * time.Second)
		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetUnitHealthRequest:
		state.logger.Debug("master@default GetUnitHealthRequest")
		replyTo := ForRequest(msg).ReplyTo(ctx)
		if len(state.unitActors) == 0 {
			ctx.Send(replyTo, domain.GetUnitHealthResponse{})
			return
		}
		state.currentHealthCheck.reset(replyTo, true, len(state.unitActors))
		for i, pid := range state.unitActors {
			unit := state.units[i]
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.GetUnitHealthRequest{}, childHealthTimeout), func(err error) any {
				return domain.GetUnitHealthResponse{
					Units: []domain.UnitHealth{{Unit: unit.Name, Kind: unit.Kind, Healthy: false}},
				}
			})
		}
		ctx.SetReceiveTimeout(1 * time.Second)
		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.GetStorageSnapshotRequest:
		ForRequest(msg).Respond(ctx, domain.GetStorageSnapshotResponse{
			Snapshot: service.Snapshot(state.storage, state.bmsUnits),
		})
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("child", msg.Who.Id))
	case *actor.Stopping:
		state.stopWatchdog()
	default:
		state.logger.Debug("master@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// children that did not answer count as unhealthy
		state.finishHealthCheck(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.received++
		state.currentHealthCheck.healthy = state.currentHealthCheck.healthy && msg.Healthy
		state.checkHealthDone(ctx)
	case domain.GetUnitHealthResponse:
		state.currentHealthCheck.received++
		state.currentHealthCheck.units = append(state.currentHealthCheck.units, msg.Units...)
		state.checkHealthDone(ctx)
	case *actor.Stopping:
		state.stopWatchdog()
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) checkHealthDone(ctx actor.Context) {
	if state.currentHealthCheck.received >= state.currentHealthCheck.expected {
		state.finishHealthCheck(ctx)
	} else {
		ctx.SetReceiveTimeout(1 * time.Second)
	}
}

func (state *MasterActor) finishHealthCheck(ctx actor.Context) {
	ctx.CancelReceiveTimeout()
	state.currentHealthCheck.respond(ctx, state.units)
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *MasterActor) startUnitActor(ctx actor.Context, unit UnitSpec) (*actor.PID, error) {
	decider := func(reason interface{}) actor.Directive {
		state.logger.Warn("restarting unit actor", zap.String("unit", unit.Name), zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(10, 10*time.Second, decider)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewUnitActor(unit.Name, unit.Kind, unit.Interval, unit.Runner, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(props, unit.actorName())
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterActor) startWatchdog(ctx actor.Context) error {
	if state.monitor.WatchdogIntervalSeconds == 0 {
		return nil
	}
	sched := quartz.NewStdScheduler()
	schedCtx, cancel := context.WithCancel(context.Background())
	sched.Start(schedCtx)

	job := newWatchdogJob(ctx.ActorSystem().Root, ctx.Self(), state.eventStream, state.logger)
	interval := time.Duration(state.monitor.WatchdogIntervalSeconds) * time.Second
	if err := sched.ScheduleJob(quartz.NewJobDetail(job, quartz.NewJobKey("watchdog")), quartz.NewSimpleTrigger(interval)); err != nil {
		cancel()
		sched.Stop()
		return err
	}
	state.scheduler = sched
	state.cancelScheduler = cancel
	return nil
}

func (state *MasterActor) stopWatchdog() {
	if state.scheduler != nil {
		state.scheduler.Stop()
		state.cancelScheduler()
		state.scheduler = nil
	}
}

func (state *healthCheckResult) reset(respondTo *actor.PID, detailed bool, expected int) {
	state.expected = expected
	state.received = 0
	state.healthy = true
	state.units = nil
	state.detailed = detailed
	state.respondTo = respondTo
}

func (state *healthCheckResult) respond(ctx actor.Context, units []UnitSpec) {
	if state.respondTo == nil {
		return
	}
	if state.detailed {
		// fill in units that did not answer in time
		for _, u := range units {
			found := false
			for _, h := range state.units {
				if h.Unit == u.Name && h.Kind == u.Kind {
					found = true
					break
				}
			}
			if !found {
				state.units = append(state.units, domain.UnitHealth{Unit: u.Name, Kind: u.Kind, Healthy: false})
			}
		}
		ctx.Send(state.respondTo, domain.GetUnitHealthResponse{Units: state.units})
		return
	}
	ctx.Send(state.respondTo, domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.healthy && state.received >= state.expected,
	})
}
