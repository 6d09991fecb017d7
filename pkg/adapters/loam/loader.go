package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/stageflow/pkg/domain"
)

// Loader adapts a Loam repository to ports.StageLoader.
// Every document in the repository is one stage.
type Loader struct {
	Repo *loam.TypedRepository[StageMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[StageMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a read-only, strict Loam repository rooted at dir.
func Open(dir string) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stage directory: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[StageMetadata](repo)), nil
}

type ordered struct {
	order int
	stage domain.Stage
}

// LoadStages implements ports.StageLoader. Stages are sorted by their "order"
// key and then by id, so the result does not depend on directory listing order.
func (l *Loader) LoadStages(ctx context.Context) ([]domain.Stage, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string, len(docs))
	items := make([]ordered, 0, len(docs))
	var problems []string

	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existingPath, ok := seen[id]; ok {
			problems = append(problems, fmt.Sprintf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID))
			continue
		}
		seen[id] = doc.ID

		items = append(items, ordered{
			order: doc.Data.Order,
			stage: toStage(id, doc.Data, doc.Content),
		})
	}
	if len(problems) > 0 {
		return nil, &domain.ConfigError{Problems: problems}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].order != items[j].order {
			return items[i].order < items[j].order
		}
		return items[i].stage.ID < items[j].stage.ID
	})

	stages := make([]domain.Stage, len(items))
	for i, it := range items {
		stages[i] = it.stage
	}
	return stages, nil
}

func toStage(id string, meta StageMetadata, body string) domain.Stage {
	prompt := meta.Prompt
	if prompt == "" {
		prompt = strings.TrimSpace(body)
	}

	inCondition := meta.InCondition
	if inCondition == "" {
		inCondition = meta.InConditionCamel
	}

	var edges []domain.NextStage
	for _, e := range append(append([]StageEdge(nil), meta.Next...), meta.NextCamel...) {
		to := e.To
		if to == "" {
			to = e.NextStageID
		}
		edges = append(edges, domain.NextStage{
			TargetStageID: trimExtension(to),
			Condition:     e.Condition,
		})
	}

	return domain.Stage{
		ID:          id,
		Name:        meta.Name,
		Type:        domain.StageType(meta.Type),
		PromptText:  prompt,
		NextStages:  edges,
		InCondition: inCondition,
	}
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
