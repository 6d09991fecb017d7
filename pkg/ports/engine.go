package ports

import (
	"context"

	"github.com/aretw0/stageflow/pkg/domain"
)

// ConversationEngine is the surface used by transport adapters (HTTP, MCP).
// Every method that touches a conversation is serialized per conversation ID.
type ConversationEngine interface {
	// StartConversation creates and stores a session at the START stage.
	StartConversation(ctx context.Context, conversationID string) (*domain.ConversationSession, error)

	// CreateConversation is like StartConversation but fails with
	// domain.ErrSessionExists instead of returning an existing session.
	CreateConversation(ctx context.Context, conversationID string) (*domain.ConversationSession, error)

	// Converse submits user input and advances one turn.
	Converse(ctx context.Context, conversationID, text string) (*domain.ConversationSession, error)

	// ApplyDecision advances one turn with an externally made decision.
	ApplyDecision(ctx context.Context, conversationID, text string, decision domain.Decision) (*domain.ConversationSession, error)

	// Session returns the stored session.
	Session(ctx context.Context, conversationID string) (*domain.ConversationSession, error)

	// EndConversation drops the session and its active-stage mapping.
	EndConversation(ctx context.Context, conversationID string) error

	// Stages returns the augmented graph in declaration order.
	Stages() []domain.Stage

	// RenderPrompt returns the prompt of a stage resolved by id, name or id prefix.
	RenderPrompt(idOrName string) (string, error)
}
