package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates drives an actor behavior from named states and keeps the
// stack of state names for health reporting.
type ActorWithStates struct {
	Behavior actor.Behavior
	names    []string
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func (s *ActorWithStates) Become(state ActorState) {
	s.Behavior.Become(state.Receive)
	s.names = []string{state.Name()}
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.Behavior.BecomeStacked(state.Receive)
	s.names = append(s.names, state.Name())
}

func (s *ActorWithStates) UnbecomeStacked() {
	s.Behavior.UnbecomeStacked()
	if len(s.names) > 1 {
		s.names = s.names[:len(s.names)-1]
	}
}

// StateName returns the name of the active state.
func (s *ActorWithStates) StateName() string {
	if len(s.names) == 0 {
		return ""
	}
	return s.names[len(s.names)-1]
}
