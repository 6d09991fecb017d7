package ports

import (
	"context"

	"github.com/aretw0/stageflow/pkg/domain"
)

// Decider chooses the assistant reply and the next stage for a turn.
// It is typically backed by an LLM. Implementations must honour ctx cancellation;
// any error is treated by the engine as an upstream failure.
type Decider interface {
	Decide(ctx context.Context, req domain.DecisionRequest) (domain.Decision, error)
}
