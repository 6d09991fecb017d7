package ports

import (
	"context"

	"github.com/aretw0/stageflow/pkg/domain"
)

// SessionStore keeps conversation sessions between turns.
// Implementations shipped with stageflow are in-memory only.
type SessionStore interface {
	// Save persists the session for a given conversation ID.
	Save(ctx context.Context, conversationID string, sess *domain.ConversationSession) error

	// Load retrieves the session for a given conversation ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, conversationID string) (*domain.ConversationSession, error)

	// Delete removes the session for a given conversation ID.
	Delete(ctx context.Context, conversationID string) error

	// List returns the IDs of stored conversations.
	List(ctx context.Context) ([]string, error)
}
