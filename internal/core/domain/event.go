package domain

import (
	"fmt"
	"time"
)

type UnitKind string

const (
	UNIT_KIND_BMS      UnitKind = "bms"
	UNIT_KIND_INVERTER UnitKind = "inverter"
)

// CycleOutcome is the result of one poll or serve cycle.
type CycleOutcome int

const (
	CYCLE_SUCCESS CycleOutcome = iota
	CYCLE_NO_DATA
	CYCLE_TOO_MANY_INVALID
	CYCLE_FATAL_IO
)

func (o CycleOutcome) String() string {
	switch o {
	case CYCLE_SUCCESS:
		return "success"
	case CYCLE_NO_DATA:
		return "no_data"
	case CYCLE_TOO_MANY_INVALID:
		return "too_many_invalid"
	case CYCLE_FATAL_IO:
		return "fatal_io"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

func (o CycleOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// CycleCompletedEvent is published on the event stream after every cycle.
type CycleCompletedEvent struct {
	Unit          string
	Kind          UnitKind
	CorrelationID string
	Outcome       CycleOutcome
	Err           error
	Duration      time.Duration
}

// PackUpdatedEvent is published after a successful BMS cycle.
type PackUpdatedEvent struct {
	Unit      string
	PackIndex int
	Pack      BatteryPack
}

// BridgeStateUpdateEvent reports the gateway availability to telemetry sinks.
type BridgeStateUpdateEvent struct {
	Online bool
}
