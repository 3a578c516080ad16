package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStateEnter EventType = "state_enter"
	EventStateExit  EventType = "state_exit"
	EventGenerate   EventType = "generate"
	EventStepClosed EventType = "step_closed"
	EventRunEnd     EventType = "run_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
}

// StateEvent represents entry into or exit from a state machine node.
type StateEvent struct {
	EventBase
	Path    string `json:"path"`
	Trigger string `json:"trigger"`
}

// GenerateEvent reports a single completion attempt made by the dispatcher.
type GenerateEvent struct {
	EventBase
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// StepEvent reports a closed step.
type StepEvent struct {
	EventBase
	Step *Step `json:"step"`
}

// RunEvent reports the end of a run.
type RunEvent struct {
	EventBase
	Status RunStatus `json:"status"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any field may be nil.
type LifecycleHooks struct {
	OnStateEnter func(context.Context, *StateEvent)
	OnStateExit  func(context.Context, *StateEvent)
	OnGenerate   func(context.Context, *GenerateEvent)
	OnStepClosed func(context.Context, *StepEvent)
	OnRunEnd     func(context.Context, *RunEvent)
}

// Merge returns hooks that fire h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStateEnter: chain(h.OnStateEnter, other.OnStateEnter),
		OnStateExit:  chain(h.OnStateExit, other.OnStateExit),
		OnGenerate:   chain(h.OnGenerate, other.OnGenerate),
		OnStepClosed: chain(h.OnStepClosed, other.OnStepClosed),
		OnRunEnd:     chain(h.OnRunEnd, other.OnRunEnd),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
