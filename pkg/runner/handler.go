package runner

import (
	"context"

	"github.com/aretw0/stageflow/pkg/domain"
)

// Turn is what the runner shows the user after each conversational turn.
type Turn struct {
	ConversationID string            `json:"conversation_id"`
	StageID        string            `json:"stage_id"`
	Status         domain.TurnStatus `json:"status"`
	Reply          string            `json:"reply"`
	Error          string            `json:"error,omitempty"`
}

// TurnFromSession extracts the user-facing part of a session after a turn.
func TurnFromSession(sess *domain.ConversationSession) Turn {
	return Turn{
		ConversationID: sess.ConversationID,
		StageID:        sess.ActiveStageID,
		Status:         sess.Status,
		Reply:          sess.LastAssistantMessage(),
		Error:          sess.LastError,
	}
}

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents the assistant reply of a turn.
	Output(ctx context.Context, turn Turn) error

	// Input reads the next user utterance.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message to the user (e.g. status updates).
	// This is distinct from content rendering.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms a reply before it is printed, e.g. markdown to ANSI.
type ContentRenderer func(string) (string, error)
