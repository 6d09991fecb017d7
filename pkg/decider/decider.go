package decider

import (
	"context"
	"errors"
	"sync"

	"github.com/aretw0/stageflow/pkg/domain"
)

// Func adapts an ordinary function to ports.Decider.
type Func func(ctx context.Context, req domain.DecisionRequest) (domain.Decision, error)

// Decide calls f.
func (f Func) Decide(ctx context.Context, req domain.DecisionRequest) (domain.Decision, error) {
	return f(ctx, req)
}

// ErrScriptExhausted is returned once every scripted reply has been used.
var ErrScriptExhausted = errors.New("decider script exhausted")

// Scripted replays raw model replies in order, parsing each with ParseDecision.
// It is safe for concurrent use; replies are shared across conversations.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	next    int
}

// NewScripted creates a decider that returns the given raw replies in order.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Decide parses the next reply.
func (s *Scripted) Decide(ctx context.Context, _ domain.DecisionRequest) (domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return domain.Decision{}, err
	}

	s.mu.Lock()
	if s.next >= len(s.replies) {
		s.mu.Unlock()
		return domain.Decision{}, ErrScriptExhausted
	}
	raw := s.replies[s.next]
	s.next++
	s.mu.Unlock()

	return ParseDecision(raw)
}

// Remaining returns how many replies are left.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies) - s.next
}
