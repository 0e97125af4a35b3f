package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/service"
	"github.com/berfenger/bmsgateway/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	outcome  atomic.Int32
	calls    atomic.Int32
	running  atomic.Int32
	overlaps atomic.Int32
	delay    time.Duration
	panics   bool
}

func (r *fakeRunner) RunCycle(ctx context.Context) service.CycleResult {
	r.calls.Add(1)
	if r.running.Add(1) > 1 {
		r.overlaps.Add(1)
	}
	defer r.running.Add(-1)
	if r.panics {
		panic("port exploded")
	}
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
	}
	outcome := domain.CycleOutcome(r.outcome.Load())
	var err error
	if outcome != domain.CYCLE_SUCCESS {
		err = errors.New(outcome.String())
	}
	return service.CycleResult{Outcome: outcome, Err: err, Duration: r.delay}
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.CycleCompletedEvent
}

func (l *eventLog) subscribe(es *eventstream.EventStream) {
	es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.CycleCompletedEvent); ok {
			l.mu.Lock()
			l.events = append(l.events, e)
			l.mu.Unlock()
		}
	})
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func unitHealth(t *testing.T, root *actor.RootContext, pid *actor.PID) domain.UnitHealth {
	res, err := root.RequestFuture(pid, domain.GetUnitHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	units := res.(domain.GetUnitHealthResponse).Units
	require.Len(t, units, 1)
	return units[0]
}

func TestUnitActorRunsCycles(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	events := &eventLog{}
	events.subscribe(es)

	runner := &fakeRunner{delay: 5 * time.Millisecond}
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewUnitActor("pack1", domain.UNIT_KIND_BMS, 20*time.Millisecond, runner, es, logger)
	}))
	defer as.Root.Stop(pid)

	require.Eventually(t, func() bool { return events.len() >= 3 }, 2*time.Second, 10*time.Millisecond)

	h := unitHealth(t, as.Root, pid)
	assert.True(t, h.Healthy)
	assert.Equal(t, "pack1", h.Unit)
	assert.Equal(t, domain.CYCLE_SUCCESS, h.LastOutcome)
	assert.False(t, h.LastSuccess.IsZero())

	events.mu.Lock()
	assert.Equal(t, domain.UNIT_KIND_BMS, events.events[0].Kind)
	events.mu.Unlock()
}

func TestUnitActorBecomesUnhealthyAndRecovers(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	runner := &fakeRunner{delay: time.Millisecond}
	runner.outcome.Store(int32(domain.CYCLE_NO_DATA))
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewUnitActor("inv", domain.UNIT_KIND_INVERTER, 10*time.Millisecond, runner, &eventstream.EventStream{}, logger)
	}))
	defer as.Root.Stop(pid)

	require.Eventually(t, func() bool {
		return !unitHealth(t, as.Root, pid).Healthy
	}, 2*time.Second, 10*time.Millisecond)
	h := unitHealth(t, as.Root, pid)
	assert.GreaterOrEqual(t, h.ConsecutiveFailures, MaxConsecutiveFailures)
	assert.Equal(t, domain.CYCLE_NO_DATA, h.LastOutcome)

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.False(t, res.(domain.ActorHealthResponse).Healthy)

	runner.outcome.Store(int32(domain.CYCLE_SUCCESS))
	require.Eventually(t, func() bool {
		return unitHealth(t, as.Root, pid).Healthy
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnitActorNeverOverlapsCycles(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	runner := &fakeRunner{delay: 50 * time.Millisecond}
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewUnitActor("slow", domain.UNIT_KIND_BMS, 5*time.Millisecond, runner, &eventstream.EventStream{}, logger)
	}))

	require.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, as.Root.StopFuture(pid).Wait())
	assert.Zero(t, runner.overlaps.Load())
}

func TestUnitActorRecoversPanickingCycle(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	runner := &fakeRunner{panics: true}
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewUnitActor("boom", domain.UNIT_KIND_BMS, 10*time.Millisecond, runner, &eventstream.EventStream{}, logger)
	}))
	defer as.Root.Stop(pid)

	require.Eventually(t, func() bool {
		return unitHealth(t, as.Root, pid).LastOutcome == domain.CYCLE_FATAL_IO
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, runner.calls.Load(), int32(1))
}
