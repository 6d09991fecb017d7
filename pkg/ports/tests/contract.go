package tests

import (
	"context"
	"testing"

	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/ports"
)

// StageLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.StageLoader.
// want lists the expected stages in declaration order.
func StageLoaderContractTest(t *testing.T, loader ports.StageLoader, want []domain.Stage) {
	t.Helper()

	t.Run("LoadStages_Order", func(t *testing.T) {
		got, err := loader.LoadStages(context.Background())
		if err != nil {
			t.Fatalf("unexpected error loading stages: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d stages, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i].ID != want[i].ID {
				t.Errorf("stage #%d: got id %q, want %q", i, got[i].ID, want[i].ID)
			}
			if got[i].Type != want[i].Type {
				t.Errorf("stage %s: got type %q, want %q", want[i].ID, got[i].Type, want[i].Type)
			}
		}
	})

	t.Run("LoadStages_Edges", func(t *testing.T) {
		got, err := loader.LoadStages(context.Background())
		if err != nil {
			t.Fatalf("unexpected error loading stages: %v", err)
		}
		for i := range want {
			if i >= len(got) {
				break
			}
			if len(got[i].NextStages) != len(want[i].NextStages) {
				t.Errorf("stage %s: expected %d edges, got %d", want[i].ID, len(want[i].NextStages), len(got[i].NextStages))
				continue
			}
			for j, edge := range want[i].NextStages {
				if got[i].NextStages[j].TargetStageID != edge.TargetStageID {
					t.Errorf("stage %s edge #%d: got %q, want %q", want[i].ID, j, got[i].NextStages[j].TargetStageID, edge.TargetStageID)
				}
			}
		}
	})

	t.Run("LoadStages_NotAugmented", func(t *testing.T) {
		got, err := loader.LoadStages(context.Background())
		if err != nil {
			t.Fatalf("unexpected error loading stages: %v", err)
		}
		for _, s := range got {
			for _, edge := range s.NextStages {
				if edge.Synthetic {
					t.Errorf("stage %s: loader must not add synthetic edges", s.ID)
				}
			}
		}
	})
}
