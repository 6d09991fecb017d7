package runtime_test

import (
	"sync"
	"testing"

	"github.com/aretw0/stageflow/internal/runtime"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageManager_ActiveStage(t *testing.T) {
	m := newManager(t, demoStages())

	stage, err := m.GetActiveStage("c1")
	require.NoError(t, err)
	assert.Equal(t, "s0", stage.ID)

	require.NoError(t, m.SetActiveStage("c1", "s1"))
	stage, err = m.GetActiveStage("c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", stage.ID, "initialization happens only once")

	t.Run("Idempotent Set", func(t *testing.T) {
		require.NoError(t, m.SetActiveStage("c1", "s2"))
		require.NoError(t, m.SetActiveStage("c1", "s2"))
		stage, _ := m.GetActiveStage("c1")
		assert.Equal(t, "s2", stage.ID)
	})

	t.Run("Unknown Identifier Is A No-Op", func(t *testing.T) {
		err := m.SetActiveStage("c1", "does-not-exist")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrResolution)

		stage, _ := m.GetActiveStage("c1")
		assert.Equal(t, "s2", stage.ID)
	})

	t.Run("Conversations Are Independent", func(t *testing.T) {
		stage, _ := m.GetActiveStage("c2")
		assert.Equal(t, "s0", stage.ID)
		assert.Equal(t, 2, m.Conversations())

		m.Forget("c2")
		assert.Equal(t, 1, m.Conversations())
	})
}

func TestStageManager_ConcurrentInit(t *testing.T) {
	m := newManager(t, demoStages())

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.GetActiveStage("shared")
			_ = m.SetActiveStage("shared", "s1")
		}()
	}
	wg.Wait()

	stage, err := m.GetActiveStage("shared")
	require.NoError(t, err)
	assert.Equal(t, "s1", stage.ID)
	assert.Equal(t, 1, m.Conversations())
}

func TestStageManager_Resolve(t *testing.T) {
	stages := demoStages()
	stages = append(stages, domain.Stage{ID: "s1_alt", Name: "Qualify", Type: domain.StageNormal, PromptText: "Alt."})
	stages[0].NextStages = append(stages[0].NextStages, domain.NextStage{TargetStageID: "s1_alt"})
	m := newManager(t, stages)

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "s2", want: "s2", ok: true},
		{in: "Offer", want: "s2", ok: true},
		{in: "Qualify", want: "s1", ok: true},
		{in: "fare", want: "farewell", ok: true},
		{in: "s1_", want: "s1_alt", ok: true},
		{in: "", ok: false},
		{in: "zzz", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			stage, ok := m.Resolve(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, stage.ID)
			}
		})
	}
}

func TestStageManager_StartAndEnd(t *testing.T) {
	m := newManager(t, demoStages())

	start, err := m.GetStartStage()
	require.NoError(t, err)
	assert.Equal(t, "s0", start.ID)

	end, err := m.GetEndStage()
	require.NoError(t, err)
	assert.Equal(t, "farewell", end.ID)

	stages := demoStages()[:3]
	stages[1].NextStages = stages[1].NextStages[:1]
	noEnd := newManager(t, stages)
	_, err = noEnd.GetEndStage()
	assert.ErrorIs(t, err, domain.ErrGraph)
}

func TestStageManager_Prompts(t *testing.T) {
	m := newManager(t, demoStages(), runtime.WithVariables(map[string]any{"customer": "Ada"}))

	first, err := m.RenderStagePrompt("s1")
	require.NoError(t, err)
	assert.Contains(t, first, "Ask what Ada needs.")

	again, err := m.RenderStagePrompt("s1")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	t.Run("Variables Invalidate The Cache", func(t *testing.T) {
		m.SetVariables(map[string]any{"customer": "Grace"})
		text, err := m.RenderStagePrompt("s1")
		require.NoError(t, err)
		assert.Contains(t, text, "Ask what Grace needs.")
		assert.Equal(t, map[string]any{"customer": "Grace"}, m.Variables())
	})

	t.Run("By Name", func(t *testing.T) {
		text, ok := m.StagePromptByName("Offer")
		require.True(t, ok)
		assert.Contains(t, text, "## Stage ID: s2")

		_, ok = m.StagePromptByName("Nope")
		assert.False(t, ok)
	})

	t.Run("For Conversation", func(t *testing.T) {
		text, err := m.ResolvePromptForConversation("fresh")
		require.NoError(t, err)
		assert.Contains(t, text, "## Stage ID: s0")
	})

	t.Run("Unknown Stage", func(t *testing.T) {
		_, err := m.RenderStagePrompt("ghost")
		assert.ErrorIs(t, err, domain.ErrResolution)
	})
}
