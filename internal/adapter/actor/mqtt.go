package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/bmsgateway/internal/config"
	"github.com/berfenger/bmsgateway/internal/core/domain"
	"github.com/berfenger/bmsgateway/internal/core/port"
	"github.com/berfenger/bmsgateway/internal/mqtt"
	"github.com/berfenger/bmsgateway/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// SnapshotSource returns the current view of every pack.
type SnapshotSource func() domain.StorageSnapshot

// ClientFactory builds the broker client. onLost is called from paho goroutines.
type ClientFactory func(cfg *config.Config, onLost func(error)) *mqtt.MQTTClient

type MQTTActor struct {
	config        *config.Config
	behavior      actor.Behavior
	stash         *actorutil.Stash
	client        *mqtt.MQTTClient
	sink          port.TelemetrySink
	clientFactory ClientFactory
	eventStream   *eventstream.EventStream
	subscription  *eventstream.Subscription
	snapshots     SnapshotSource
	publishing    bool
	dirty         bool
	logger        *zap.Logger
}

type MQTTConnected struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type snapshotPublished struct {
	Error error
}

func NewMQTTActor(config *config.Config, eventStream *eventstream.EventStream, snapshots SnapshotSource, logger *zap.Logger) *MQTTActor {
	return newMQTTActor(config, eventStream, snapshots, defaultClientFactory, logger)
}

func newMQTTActor(config *config.Config, eventStream *eventstream.EventStream, snapshots SnapshotSource,
	factory ClientFactory, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:        config,
		behavior:      actor.NewBehavior(),
		stash:         &actorutil.Stash{},
		clientFactory: factory,
		eventStream:   eventStream,
		snapshots:     snapshots,
		logger:        actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func defaultClientFactory(cfg *config.Config, onLost func(error)) *mqtt.MQTTClient {
	return mqtt.CreateMQTTClient(cfg, mqtt.OptsFromConfig(cfg), nil, func(_ pahomqtt.Client, err error) {
		onLost(err)
	})
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.client = state.clientFactory(state.config, func(err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})
		encode, err := mqtt.NewEncoder(state.config.MQTT.PayloadFormat)
		if err != nil {
			panic(err)
		}
		state.sink = mqtt.NewSnapshotPublisher(state.client, encode)

		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)
		if state.config.MQTT.HADiscoveryEnable {
			if err := state.publishHomeAssistantDiscovery(); err != nil {
				state.logger.Error("mqtt@starting ha discovery error", zap.Error(err))
			}
		}

		// forward domain events to self
		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.subscription = state.eventStream.SubscribeWithPredicate(func(evt any) {
			root.Send(self, evt)
		}, func(evt any) bool {
			switch evt.(type) {
			case domain.PackUpdatedEvent, domain.BridgeStateUpdateEvent:
				return true
			}
			return false
		})

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: false,
			State:   "connecting",
		})
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		healthState := "idle"
		if state.publishing {
			healthState = "publishing"
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   healthState,
		})
	case domain.PackUpdatedEvent:
		// coalesce updates arriving while a snapshot is in flight
		if state.publishing {
			state.dirty = true
			return
		}
		state.publishSnapshot(ctx)
	case snapshotPublished:
		state.publishing = false
		if msg.Error != nil {
			state.logger.Warn("mqtt@default snapshot publish failed", zap.Error(msg.Error))
		}
		if state.dirty {
			state.dirty = false
			state.publishSnapshot(ctx)
		}
	case domain.BridgeStateUpdateEvent:
		payload := mqtt.MQTT_PAYLOAD_OFFLINE
		if msg.Online {
			payload = mqtt.MQTT_PAYLOAD_ONLINE
		}
		state.logger.Debug("mqtt@default bridge state", zap.String("state", payload))
		state.client.Publish(state.client.BridgeStateTopic(), payload, 0, true, func(err error) {
			if err != nil {
				state.logger.Warn("mqtt@default bridge state publish failed", zap.Error(err))
			}
		}, publishTimeout)
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.String("topic", msg.Topic))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case MQTTConnectionLost:
		// stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) publishSnapshot(ctx actor.Context) {
	snapshot := state.snapshots()
	sink := state.sink
	state.publishing = true
	actorutil.NewBackgroundTaskNoError(ctx, func() *snapshotPublished {
		pctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		return &snapshotPublished{Error: sink.Publish(pctx, snapshot)}
	}).Recover(func(err error) snapshotPublished {
		return snapshotPublished{Error: err}
	}).PipeTo(ctx.Self())
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic string, payload []byte, retain bool, replyTo *actor.PID) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.client.Publish(topic, payload, 1, retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err})
	}, publishTimeout)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: msg.Error,
				},
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) publishHomeAssistantDiscovery() error {
	version := versioninfo.Short()
	topic, bridge := mqtt.BridgeStateToHADiscoveryMessage(state.client, version)
	payload, err := json.Marshal(bridge)
	if err != nil {
		return err
	}
	state.client.Publish(topic, payload, 0, true, func(error) {}, 1*time.Second)
	for _, bms := range state.config.BMS {
		for _, sensor := range mqtt.PackSensors(bms.Name, version) {
			payload, err := json.Marshal(mqtt.PackSensorToHADiscoveryMessage(state.client, sensor))
			if err != nil {
				return err
			}
			state.client.Publish(mqtt.HADiscoverySensorTopic(state.config.MQTT.HADiscoveryTopic, sensor), payload, 0, true, func(error) {}, 1*time.Second)
		}
	}
	return nil
}

func (state *MQTTActor) stop() {
	if state.subscription != nil {
		state.eventStream.Unsubscribe(state.subscription)
		state.subscription = nil
	}
	if state.client != nil {
		state.logger.Debug("mqtt: disconnect")
		state.client.Publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
		state.client.Disconnect(500 * time.Millisecond)
		state.client = nil
	}
}

// NewTestMQTTActor answers requests without a broker. It is used when MQTT is disabled.
func NewTestMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "disabled",
		})
	case domain.PublishMessageRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishMessageResponse{})
	}
}
