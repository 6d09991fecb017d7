package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/stageflow/internal/runtime"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/stretchr/testify/require"
)

// demoStages is the graph s0 -> [s1], s1 -> [s2, farewell], with s2 as a dead end.
func demoStages() []domain.Stage {
	return []domain.Stage{
		{
			ID: "s0", Name: "Greeting", Type: domain.StageStart,
			PromptText: "Greet the user.",
			NextStages: []domain.NextStage{{TargetStageID: "s1", Condition: "the user greets back"}},
		},
		{
			ID: "s1", Name: "Qualify", Type: domain.StageNormal,
			PromptText: "Ask what {customer} needs.",
			NextStages: []domain.NextStage{
				{TargetStageID: "s2", Condition: "the user describes a need"},
				{TargetStageID: "farewell", Condition: "the user has no need"},
			},
		},
		{
			ID: "s2", Name: "Offer", Type: domain.StageNormal,
			PromptText: "Make an offer.",
		},
		{
			ID: "farewell", Name: "Farewell", Type: domain.StageEnd,
			PromptText: "Goodbye {customer}!",
		},
	}
}

func newManager(t *testing.T, stages []domain.Stage, opts ...runtime.ManagerOption) *runtime.StageManager {
	t.Helper()
	g, err := runtime.NewGraph(stages)
	require.NoError(t, err)
	return runtime.NewStageManager(g, opts...)
}

// scriptedDecider replays a fixed list of decisions and counts calls.
type scriptedDecider struct {
	mu        sync.Mutex
	decisions []domain.Decision
	errs      []error
	requests  []domain.DecisionRequest
}

func (d *scriptedDecider) Decide(ctx context.Context, req domain.DecisionRequest) (domain.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := len(d.requests)
	d.requests = append(d.requests, req)
	if i < len(d.errs) && d.errs[i] != nil {
		return domain.Decision{}, d.errs[i]
	}
	if i >= len(d.decisions) {
		return domain.Decision{}, errors.New("script exhausted")
	}
	return d.decisions[i], nil
}

func (d *scriptedDecider) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

// blockingDecider waits until the context is done.
type blockingDecider struct{}

func (blockingDecider) Decide(ctx context.Context, _ domain.DecisionRequest) (domain.Decision, error) {
	<-ctx.Done()
	return domain.Decision{}, ctx.Err()
}
