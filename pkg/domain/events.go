package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStageEnter         EventType = "stage_enter"
	EventStageLeave         EventType = "stage_leave"
	EventDecision           EventType = "decision"
	EventTransitionRejected EventType = "transition_rejected"
	EventUpstreamFailure    EventType = "upstream_failure"
	EventTurnComplete       EventType = "turn_complete"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
}

// StageEvent represents entry into or exit from a stage.
type StageEvent struct {
	EventBase
	StageID   string    `json:"stage_id"`
	StageType StageType `json:"stage_type"`
}

// DecisionEvent describes a decider call and how its proposal was handled.
type DecisionEvent struct {
	EventBase
	StageID    string        `json:"stage_id"`
	Proposed   string        `json:"proposed,omitempty"`
	Accepted   string        `json:"accepted,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// TurnEvent summarizes a completed turn.
type TurnEvent struct {
	EventBase
	StageID  string        `json:"stage_id"`
	Status   TurnStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any field may be nil.
type LifecycleHooks struct {
	OnStageEnter         func(context.Context, *StageEvent)
	OnStageLeave         func(context.Context, *StageEvent)
	OnDecision           func(context.Context, *DecisionEvent)
	OnTransitionRejected func(context.Context, *DecisionEvent)
	OnUpstreamFailure    func(context.Context, *DecisionEvent)
	OnTurnComplete       func(context.Context, *TurnEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStageEnter:         chain(h.OnStageEnter, other.OnStageEnter),
		OnStageLeave:         chain(h.OnStageLeave, other.OnStageLeave),
		OnDecision:           chain(h.OnDecision, other.OnDecision),
		OnTransitionRejected: chain(h.OnTransitionRejected, other.OnTransitionRejected),
		OnUpstreamFailure:    chain(h.OnUpstreamFailure, other.OnUpstreamFailure),
		OnTurnComplete:       chain(h.OnTurnComplete, other.OnTurnComplete),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
