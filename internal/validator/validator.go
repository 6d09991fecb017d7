package validator

import (
	"fmt"

	"github.com/aretw0/stageflow/pkg/domain"
)

// Report collects the outcome of a graph validation.
// Problems are fatal; Warnings are informational.
type Report struct {
	Problems []string
	Warnings []string
}

// Err returns a *domain.ConfigError when the report holds problems.
func (r Report) Err() error {
	if len(r.Problems) == 0 {
		return nil
	}
	return &domain.ConfigError{Problems: r.Problems}
}

// ValidateStages checks a stage list for structural consistency and crawls it
// from the START stage to report unreachable stages.
// Edges are checked as given, so callers validate after GLOBAL augmentation.
func ValidateStages(stages []domain.Stage) Report {
	var report Report

	ids := make(map[string]bool, len(stages))
	var starts []string
	hasEnd := false

	for i, s := range stages {
		if s.ID == "" {
			report.Problems = append(report.Problems, fmt.Sprintf("stage #%d has an empty id", i))
			continue
		}
		if ids[s.ID] {
			report.Problems = append(report.Problems, fmt.Sprintf("duplicate stage id '%s'", s.ID))
		}
		ids[s.ID] = true

		if !s.Type.Valid() {
			report.Problems = append(report.Problems, fmt.Sprintf("stage '%s' has unknown type '%s'", s.ID, s.Type))
		}
		switch s.Type {
		case domain.StageStart:
			starts = append(starts, s.ID)
		case domain.StageEnd:
			hasEnd = true
		}
	}

	switch len(starts) {
	case 0:
		report.Problems = append(report.Problems, "no stage has type START")
	case 1:
	default:
		report.Problems = append(report.Problems, fmt.Sprintf("expected exactly one START stage, found %d: %v", len(starts), starts))
	}

	for _, s := range stages {
		for _, next := range s.NextStages {
			if next.TargetStageID == "" {
				report.Problems = append(report.Problems, fmt.Sprintf("stage '%s' has an edge with an empty target", s.ID))
				continue
			}
			if !ids[next.TargetStageID] {
				report.Problems = append(report.Problems, fmt.Sprintf("stage '%s' points to missing stage '%s'", s.ID, next.TargetStageID))
			}
		}
	}

	if !hasEnd {
		report.Warnings = append(report.Warnings, "no END stage declared; failures will end conversations in place")
	}

	if len(report.Problems) == 0 {
		report.Warnings = append(report.Warnings, unreachable(stages, starts[0])...)
	}

	return report
}

// unreachable crawls edges breadth-first from the start stage.
func unreachable(stages []domain.Stage, startID string) []string {
	byID := make(map[string]domain.Stage, len(stages))
	for _, s := range stages {
		byID[s.ID] = s
	}

	visited := map[string]bool{startID: true}
	queue := []string{startID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range byID[current].NextStages {
			if !visited[next.TargetStageID] {
				visited[next.TargetStageID] = true
				queue = append(queue, next.TargetStageID)
			}
		}
	}

	var warnings []string
	for _, s := range stages {
		if !visited[s.ID] {
			warnings = append(warnings, fmt.Sprintf("stage '%s' is unreachable from START", s.ID))
		}
	}
	return warnings
}
