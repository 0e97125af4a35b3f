package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/bmsgateway/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// watchdogJob periodically asks the master for unit health, logs stale
// units and publishes the bridge availability when it changes.
// The bridge is online while at least one BMS unit is healthy.
type watchdogJob struct {
	root        *actor.RootContext
	master      *actor.PID
	eventStream *eventstream.EventStream
	logger      *zap.Logger

	mu     sync.Mutex
	online *bool
}

func newWatchdogJob(root *actor.RootContext, master *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *watchdogJob {
	return &watchdogJob{
		root:        root,
		master:      master,
		eventStream: eventStream,
		logger:      logger.With(zap.String("job", "watchdog")),
	}
}

func (j *watchdogJob) Description() string {
	return "unit health watchdog"
}

func (j *watchdogJob) Execute(_ context.Context) error {
	res, err := j.root.RequestFuture(j.master, domain.GetUnitHealthRequest{}, 3*time.Second).Result()
	if err != nil {
		j.logger.Warn("watchdog: master did not answer", zap.Error(err))
		return err
	}
	resp, ok := res.(domain.GetUnitHealthResponse)
	if !ok {
		return fmt.Errorf("watchdog: unexpected response %T", res)
	}
	j.check(resp.Units)
	return nil
}

func (j *watchdogJob) check(units []domain.UnitHealth) {
	online := false
	for _, u := range units {
		if !u.Healthy {
			j.logger.Warn("watchdog: unit unhealthy",
				zap.String("unit", u.Unit),
				zap.String("kind", string(u.Kind)),
				zap.Stringer("last_outcome", u.LastOutcome),
				zap.Int("failures", u.ConsecutiveFailures),
				zap.Time("last_success", u.LastSuccess))
		} else if u.Kind == domain.UNIT_KIND_BMS {
			online = true
		}
	}

	j.mu.Lock()
	changed := j.online == nil || *j.online != online
	j.online = &online
	j.mu.Unlock()

	if changed {
		j.logger.Info("watchdog: bridge state", zap.Bool("online", online))
		j.eventStream.Publish(domain.BridgeStateUpdateEvent{Online: online})
	}
}
