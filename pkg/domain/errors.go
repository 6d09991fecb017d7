package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfig marks a malformed or inconsistent stage configuration.
	ErrConfig = errors.New("invalid stage configuration")

	// ErrGraph marks a graph invariant violated at runtime.
	ErrGraph = errors.New("stage graph invariant violated")

	// ErrResolution is returned when a stage id or name cannot be resolved.
	ErrResolution = errors.New("stage not resolved")

	// ErrTransitionRejected marks a proposed next stage outside the allowed edges.
	ErrTransitionRejected = errors.New("transition rejected")

	// ErrUpstream marks a failed decider call.
	ErrUpstream = errors.New("upstream decision failed")

	// ErrSessionNotFound is returned when a conversation id cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a conversation whose id is taken.
	ErrSessionExists = errors.New("session already exists")

	// ErrConversationEnded is returned when input is submitted to an ended conversation.
	ErrConversationEnded = errors.New("conversation has ended")
)

// ConfigError aggregates every problem found while loading a stage graph.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%v: %s", ErrConfig, e.Problems[0])
	}
	return fmt.Sprintf("%v: found %d problems:\n- %s", ErrConfig, len(e.Problems), strings.Join(e.Problems, "\n- "))
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// GraphError is a fatal invariant violation, e.g. a missing START stage.
type GraphError struct {
	Reason string
}

func (e *GraphError) Error() string { return fmt.Sprintf("%v: %s", ErrGraph, e.Reason) }

func (e *GraphError) Unwrap() error { return ErrGraph }

// ResolutionError is non-fatal: the lookup is logged and treated as a no-op.
type ResolutionError struct {
	Identifier string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%v: no stage matches %q", ErrResolution, e.Identifier)
}

func (e *ResolutionError) Unwrap() error { return ErrResolution }

// TransitionRejected records a decider proposal that was replaced by Substitute.
type TransitionRejected struct {
	From       string
	Proposed   string
	Substitute string
}

func (e *TransitionRejected) Error() string {
	return fmt.Sprintf("%v: %q is not reachable from %q, using %q", ErrTransitionRejected, e.Proposed, e.From, e.Substitute)
}

func (e *TransitionRejected) Unwrap() error { return ErrTransitionRejected }

// UpstreamFailure wraps the cause of a failed decider call.
type UpstreamFailure struct {
	StageID string
	Err     error
}

func (e *UpstreamFailure) Error() string {
	return fmt.Sprintf("%v at stage %q: %v", ErrUpstream, e.StageID, e.Err)
}

func (e *UpstreamFailure) Unwrap() []error { return []error{ErrUpstream, e.Err} }
