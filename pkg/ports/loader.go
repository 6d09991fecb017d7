package ports

import (
	"context"

	"github.com/aretw0/stageflow/pkg/domain"
)

// StageLoader defines how the engine retrieves stage definitions.
// This allows the configuration source (Loam, JSON/YAML file, Memory) to be decoupled.
type StageLoader interface {
	// LoadStages returns every stage record in declaration order.
	// Records are returned as configured; GLOBAL augmentation and validation
	// happen when the graph is built.
	LoadStages(ctx context.Context) ([]domain.Stage, error)
}
