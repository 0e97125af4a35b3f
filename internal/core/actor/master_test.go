package actor

import (
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/bmsgateway/internal/adapter/actor"
	"github.com/berfenger/bmsgateway/internal/config"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/util"
	"github.com/berfenger/bmsgateway/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnMaster(t *testing.T, as *actor.ActorSystem, units []UnitSpec, storage *domain.EnergyStorage,
	es *eventstream.EventStream, monitor config.MonitorConfig, logger *zap.Logger) *actor.PID {
	cfg := util.LoadTestConfig()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterActor(units, storage, []string{"pack1"}, es, monitor, func(*eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	return pid
}

func TestMasterActorHealth(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	good := &fakeRunner{delay: time.Millisecond}
	bad := &fakeRunner{delay: time.Millisecond}
	bad.outcome.Store(int32(domain.CYCLE_FATAL_IO))
	units := []UnitSpec{
		{Name: "pack1", Kind: domain.UNIT_KIND_BMS, Interval: 10 * time.Millisecond, Runner: good},
		{Name: "inverter", Kind: domain.UNIT_KIND_INVERTER, Interval: 10 * time.Millisecond, Runner: bad},
	}
	pid := spawnMaster(t, as, units, domain.NewEnergyStorage(1), &eventstream.EventStream{}, config.MonitorConfig{}, logger)
	defer as.Root.Stop(pid)

	require.Eventually(t, func() bool {
		res, err := as.Root.RequestFuture(pid, domain.GetUnitHealthRequest{}, 2*time.Second).Result()
		if err != nil {
			return false
		}
		for _, u := range res.(domain.GetUnitHealthResponse).Units {
			if u.Unit == "inverter" && !u.Healthy {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	res, err := as.Root.RequestFuture(pid, domain.GetUnitHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	health := res.(domain.GetUnitHealthResponse).Units
	require.Len(t, health, 2)
	for _, u := range health {
		if u.Unit == "pack1" {
			assert.True(t, u.Healthy)
			assert.Equal(t, domain.UNIT_KIND_BMS, u.Kind)
		}
	}

	res, err = as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	master := res.(domain.ActorHealthResponse)
	assert.Equal(t, domain.ACTOR_ID_MASTER, master.Id)
	assert.False(t, master.Healthy, "one failing unit makes the gateway unhealthy")

	bad.outcome.Store(int32(domain.CYCLE_SUCCESS))
	require.Eventually(t, func() bool {
		res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
		return err == nil && res.(domain.ActorHealthResponse).Healthy
	}, 3*time.Second, 20*time.Millisecond)
}

func TestMasterActorStorageSnapshot(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	storage := domain.NewEnergyStorage(1)
	require.NoError(t, storage.Update(0, func(p *domain.BatteryPack) error {
		p.PackSOC = 420
		return nil
	}))
	pid := spawnMaster(t, as, nil, storage, &eventstream.EventStream{}, config.MonitorConfig{}, logger)
	defer as.Root.Stop(pid)

	res, err := as.Root.RequestFuture(pid, domain.GetStorageSnapshotRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	snap := res.(domain.GetStorageSnapshotResponse).Snapshot
	assert.Equal(t, []string{"pack1"}, snap.Units)
	require.Len(t, snap.Packs, 1)
	assert.Equal(t, 420, snap.Packs[0].PackSOC)

	res, err = as.Root.RequestFuture(pid, domain.GetUnitHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	assert.Empty(t, res.(domain.GetUnitHealthResponse).Units)
}

func TestWatchdogPublishesBridgeState(t *testing.T) {
	es := &eventstream.EventStream{}
	var mu sync.Mutex
	var states []bool
	es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.BridgeStateUpdateEvent); ok {
			mu.Lock()
			states = append(states, e.Online)
			mu.Unlock()
		}
	})

	job := newWatchdogJob(nil, nil, es, zap.NewNop())
	job.check([]domain.UnitHealth{{Unit: "pack1", Kind: domain.UNIT_KIND_BMS, Healthy: true}})
	job.check([]domain.UnitHealth{{Unit: "pack1", Kind: domain.UNIT_KIND_BMS, Healthy: true}})
	job.check([]domain.UnitHealth{
		{Unit: "pack1", Kind: domain.UNIT_KIND_BMS, Healthy: false},
		{Unit: "inverter", Kind: domain.UNIT_KIND_INVERTER, Healthy: true},
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, states)
}

func TestMasterWatchdogPublishesBridgeState(t *testing.T) {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	es := &eventstream.EventStream{}
	online := make(chan bool, 4)
	es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.BridgeStateUpdateEvent); ok {
			online <- e.Online
		}
	})

	units := []UnitSpec{{Name: "pack1", Kind: domain.UNIT_KIND_BMS, Interval: 10 * time.Millisecond, Runner: &fakeRunner{}}}
	pid := spawnMaster(t, as, units, domain.NewEnergyStorage(1), es, config.MonitorConfig{WatchdogIntervalSeconds: 1}, logger)
	defer as.Root.Stop(pid)

	select {
	case v := <-online:
		assert.True(t, v)
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not publish the bridge state")
	}
}
