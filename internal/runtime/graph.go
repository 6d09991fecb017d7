package runtime

import (
	"github.com/aretw0/stageflow/internal/validator"
	"github.com/aretw0/stageflow/pkg/domain"
)

// Graph is the validated, immutable stage graph.
// It is safe for concurrent reads without locking.
type Graph struct {
	stages   []domain.Stage
	index    map[string]int
	start    int
	farewell int // -1 when the graph declares no END stage
	globals  []string
	warnings []string
}

// NewGraph copies the given stages, attaches GLOBAL stages to every other stage
// and validates the result. It returns a *domain.ConfigError describing every
// problem when the configuration is inconsistent.
func NewGraph(stages []domain.Stage) (*Graph, error) {
	augmented := augmentGlobals(stages)

	report := validator.ValidateStages(augmented)
	if err := report.Err(); err != nil {
		return nil, err
	}

	g := &Graph{
		stages:   augmented,
		index:    make(map[string]int, len(augmented)),
		start:    -1,
		farewell: -1,
		warnings: report.Warnings,
	}
	for i, s := range augmented {
		g.index[s.ID] = i
		switch s.Type {
		case domain.StageStart:
			g.start = i
		case domain.StageEnd:
			if g.farewell < 0 {
				g.farewell = i
			}
		case domain.StageGlobal:
			g.globals = append(g.globals, s.ID)
		}
	}
	return g, nil
}

// augmentGlobals returns a deep copy of stages where every non-GLOBAL stage
// gains one synthetic edge per GLOBAL stage, using the GLOBAL stage's
// InCondition as the edge condition. The input is never modified, so building
// a graph twice from the same records yields the same edges.
func augmentGlobals(stages []domain.Stage) []domain.Stage {
	out := make([]domain.Stage, len(stages))
	var globals []domain.Stage
	for i, s := range stages {
		c := s.Clone()
		// Unknown types are kept as-is so validation reports them.
		if t, err := domain.ParseStageType(string(c.Type)); err == nil {
			c.Type = t
		}
		if c.Type == domain.StageGlobal {
			globals = append(globals, c)
		}
		out[i] = c
	}

	for i := range out {
		c := out[i]
		if c.NextStages == nil {
			c.NextStages = []domain.NextStage{}
		}
		if c.Type != domain.StageGlobal {
			for _, gs := range globals {
				if gs.ID == c.ID {
					continue
				}
				c.NextStages = append(c.NextStages, domain.NextStage{
					TargetStageID: gs.ID,
					Condition:     gs.InCondition,
					Synthetic:     true,
				})
			}
		}
		out[i] = c
	}
	return out
}

// Stage returns a copy of the stage with the given id.
func (g *Graph) Stage(id string) (domain.Stage, bool) {
	i, ok := g.index[id]
	if !ok {
		return domain.Stage{}, false
	}
	return g.stages[i].Clone(), true
}

// Has reports whether a stage id exists.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Stages returns copies of all stages in declaration order.
func (g *Graph) Stages() []domain.Stage {
	out := make([]domain.Stage, len(g.stages))
	for i, s := range g.stages {
		out[i] = s.Clone()
	}
	return out
}

// Start returns the START stage.
func (g *Graph) Start() (domain.Stage, bool) {
	if g.start < 0 {
		return domain.Stage{}, false
	}
	return g.stages[g.start].Clone(), true
}

// Farewell returns the first END stage in declaration order.
func (g *Graph) Farewell() (domain.Stage, bool) {
	if g.farewell < 0 {
		return domain.Stage{}, false
	}
	return g.stages[g.farewell].Clone(), true
}

// Globals returns the ids of GLOBAL stages in declaration order.
func (g *Graph) Globals() []string {
	return append([]string(nil), g.globals...)
}

// Warnings returns the non-fatal findings of load-time validation.
func (g *Graph) Warnings() []string {
	return append([]string(nil), g.warnings...)
}

// Len returns the number of stages.
func (g *Graph) Len() int { return len(g.stages) }

// each iterates stages in declaration order without copying.
func (g *Graph) each(fn func(s *domain.Stage) bool) {
	for i := range g.stages {
		if !fn(&g.stages[i]) {
			return
		}
	}
}
