package domain

import "time"

const (
	ACTOR_ID_MASTER = "master"
	ACTOR_ID_MQTT   = "mqtt"

	ACTOR_PREFIX_BMS      = "bms-"
	ACTOR_PREFIX_INVERTER = "inverter-"
)

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload []byte
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type GetStorageSnapshotRequest struct {
	ActorRequestMixIn
}

type GetStorageSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot StorageSnapshot
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// UnitHealth is reported by BMS and inverter unit actors.
type UnitHealth struct {
	Unit                string        `json:"unit"`
	Kind                UnitKind      `json:"kind"`
	Healthy             bool          `json:"healthy"`
	LastOutcome         CycleOutcome  `json:"last_outcome"`
	LastSuccess         time.Time     `json:"last_success"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastCycleDuration   time.Duration `json:"last_cycle_duration"`
}

type GetUnitHealthRequest struct {
	ActorRequestMixIn
}

type GetUnitHealthResponse struct {
	ActorResponseMixIn
	Units []UnitHealth
}
