package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/stageflow/pkg/domain"
)

// Loader implements ports.StageLoader over records held in memory.
type Loader struct {
	stages []domain.Stage
}

// NewLoader creates a loader returning copies of the given stages in order.
func NewLoader(stages ...domain.Stage) *Loader {
	cp := make([]domain.Stage, len(stages))
	for i, s := range stages {
		cp[i] = s.Clone()
	}
	return &Loader{stages: cp}
}

// NewFromJSON decodes a JSON array of stage records, in the shape of a
// stage_config.json file. This improves DX for tests.
func NewFromJSON(raw string) (*Loader, error) {
	var stages []domain.Stage
	if err := json.Unmarshal([]byte(raw), &stages); err != nil {
		return nil, fmt.Errorf("failed to decode stages: %w", err)
	}
	return NewLoader(stages...), nil
}

// LoadStages returns copies of the configured stages in declaration order.
func (l *Loader) LoadStages(ctx context.Context) ([]domain.Stage, error) {
	out := make([]domain.Stage, len(l.stages))
	for i, s := range l.stages {
		out[i] = s.Clone()
	}
	return out, nil
}
