package stageflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/stageflow"
	"github.com/aretw0/stageflow/internal/testutils"
	"github.com/aretw0/stageflow/pkg/decider"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoStages() []domain.Stage {
	return []domain.Stage{
		{
			ID: "s0", Name: "Greeting", Type: domain.StageStart,
			PromptText: "Greet {customer}.",
			NextStages: []domain.NextStage{{TargetStageID: "s1", Condition: "the user greets back"}},
		},
		{
			ID: "s1", Name: "Qualify", Type: domain.StageNormal,
			PromptText: "Ask what the user needs.",
			NextStages: []domain.NextStage{{TargetStageID: "s2", Condition: "the user describes a need"}},
		},
		{
			ID: "s2", Name: "Offer", PromptText: "Make an offer.",
			NextStages: []domain.NextStage{{TargetStageID: "farewell", Condition: "the user is done"}},
		},
		{ID: "help", Name: "Help", Type: domain.StageGlobal, InCondition: "the user asks for help", PromptText: "Explain the process."},
		{ID: "farewell", Name: "Farewell", Type: domain.StageEnd, PromptText: "Goodbye {customer}!"},
	}
}

func newEngine(t *testing.T, d ports.Decider, opts ...stageflow.Option) *stageflow.Engine {
	t.Helper()
	opts = append([]stageflow.Option{
		stageflow.WithStages(demoStages()...),
		stageflow.WithDecider(d),
		stageflow.WithVariables(map[string]any{"customer": "Ada"}),
	}, opts...)
	eng, err := stageflow.New("", opts...)
	require.NoError(t, err)
	return eng
}

func TestEngine_Converse(t *testing.T) {
	d := decider.NewScripted(
		`{"response": "Hi Ada, what do you need?", "next_stage": "s1", "confidence": 0.9}`,
		"```json\n{\"response\": \"Here is an offer.\", \"next_stage\": \"s2\"}\n```",
		`{"response": "Bye!", "next_stage": "farewell", "confidence": 1}`,
	)
	eng := newEngine(t, d)
	ctx := context.Background()

	sess, err := eng.Converse(ctx, "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ActiveStageID)
	assert.Equal(t, domain.StatusContinue, sess.Status)

	sess, err = eng.Converse(ctx, "c1", "I need a plan")
	require.NoError(t, err)
	assert.Equal(t, "s2", sess.ActiveStageID)

	sess, err = eng.Converse(ctx, "c1", "thanks, bye")
	require.NoError(t, err)
	assert.Equal(t, "farewell", sess.ActiveStageID)
	assert.True(t, sess.Ended())
	assert.Len(t, sess.Messages, 6)

	_, err = eng.Converse(ctx, "c1", "hello?")
	assert.ErrorIs(t, err, domain.ErrConversationEnded)
	assert.Zero(t, d.Remaining())

	stored, err := eng.Session(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, sess.Messages, stored.Messages)
}

func TestEngine_RejectedTransition(t *testing.T) {
	eng := newEngine(t, decider.NewScripted(
		`{"response": "ok", "next_stage": "bogus_stage"}`,
		`{"response": "ok", "next_stage": "s2"}`,
		`{"response": "ok", "next_stage": "bogus_stage"}`,
	))
	ctx := context.Background()

	sess, err := eng.Converse(ctx, "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ActiveStageID, "replaced by the first declared next stage")
	assert.Equal(t, "ok", sess.LastAssistantMessage())

	sess, err = eng.Converse(ctx, "c1", "I need a plan")
	require.NoError(t, err)
	require.Equal(t, "s2", sess.ActiveStageID)

	sess, err = eng.Converse(ctx, "c1", "hmm")
	require.NoError(t, err)
	assert.Equal(t, "farewell", sess.ActiveStageID)
	assert.True(t, sess.Ended())
}

func TestEngine_ExitFromAnyStage(t *testing.T) {
	eng := newEngine(t, decider.NewKeyword())

	sess, err := eng.Converse(context.Background(), "c1", "bye")
	require.NoError(t, err)
	assert.Equal(t, "farewell", sess.ActiveStageID, "s0 has no farewell edge but the end stage is always reachable")
	assert.Equal(t, domain.StatusEnded, sess.Status)
	assert.Empty(t, sess.LastError)
}

func TestEngine_CreateConversation(t *testing.T) {
	eng := newEngine(t, decider.NewKeyword())
	ctx := context.Background()

	sess, err := eng.CreateConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s0", sess.ActiveStageID)

	_, err = eng.CreateConversation(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrSessionExists)

	again, err := eng.StartConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, sess.ConversationID, again.ConversationID)
}

func TestEngine_UpstreamFailure(t *testing.T) {
	eng := newEngine(t, decider.NewScripted(`not json at all`), stageflow.WithApology("Sorry!"))

	sess, err := eng.Converse(context.Background(), "c1", "hello")
	require.NoError(t, err)
	assert.True(t, sess.Ended())
	assert.Equal(t, "Sorry!", sess.LastAssistantMessage())
	assert.NotEmpty(t, sess.LastError)
}

func TestEngine_EmptyInputEnds(t *testing.T) {
	d := decider.NewScripted(`{"response": "unused", "next_stage": "s1"}`)
	eng := newEngine(t, d)

	sess, err := eng.Converse(context.Background(), "c1", "   ")
	require.NoError(t, err)
	assert.True(t, sess.Ended())
	assert.Equal(t, "s0", sess.ActiveStageID)
	assert.Equal(t, 1, d.Remaining(), "the decider is not called")
}

func TestEngine_ApplyDecision(t *testing.T) {
	eng := newEngine(t, nil)

	sess, err := eng.ApplyDecision(context.Background(), "c1", "I need help", domain.Decision{
		Response: "Let me explain.", NextStage: "Help", Confidence: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "help", sess.ActiveStageID, "GLOBAL stages are reachable by name")
}

func TestEngine_StartAndEndConversation(t *testing.T) {
	eng := newEngine(t, decider.NewScripted(`{"response": "Hi", "next_stage": "s1"}`))
	ctx := context.Background()

	sess, err := eng.StartConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s0", sess.ActiveStageID)

	_, err = eng.Converse(ctx, "c1", "hello")
	require.NoError(t, err)

	again, err := eng.StartConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", again.ActiveStageID, "starting an existing conversation is a no-op")

	require.NoError(t, eng.EndConversation(ctx, "c1"))
	_, err = eng.Session(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	stage, err := eng.ActiveStage("c1")
	require.NoError(t, err)
	assert.Equal(t, "s0", stage.ID, "a forgotten conversation restarts at START")
}

func TestEngine_PromptsAndStages(t *testing.T) {
	eng := newEngine(t, nil, stageflow.WithPersona("You are a sales assistant."))

	prompt, err := eng.RenderPrompt("Greeting")
	require.NoError(t, err)
	assert.Contains(t, prompt, "You are a sales assistant.")
	assert.Contains(t, prompt, "Greet Ada.")

	_, err = eng.RenderPrompt("nope")
	assert.ErrorIs(t, err, domain.ErrResolution)

	eng.SetVariables(map[string]any{"customer": "Grace"})
	prompt, err = eng.RenderPrompt("s0")
	require.NoError(t, err)
	assert.Contains(t, prompt, "Greet Grace.")

	stages := eng.Stages()
	require.Len(t, stages, 5)
	assert.Len(t, stages[0].NextStages, 2, "GLOBAL edge added to START")
	assert.True(t, stages[0].NextStages[1].Synthetic)
	assert.Empty(t, eng.Warnings())
}

func TestEngine_ConfigError(t *testing.T) {
	_, err := stageflow.New("", stageflow.WithStages(
		domain.Stage{ID: "a", Type: domain.StageNormal},
		domain.Stage{ID: "a", Type: "BOGUS"},
	))
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.GreaterOrEqual(t, len(cfgErr.Problems), 2)

	_, err = stageflow.New("")
	assert.Error(t, err, "a loader or a directory is required")
}

func TestEngine_ConcurrentTurnsAreSerialized(t *testing.T) {
	replies := make([]string, 20)
	for i := range replies {
		replies[i] = `{"response": "still here", "next_stage": "s0"}`
	}
	eng := newEngine(t, decider.NewScripted(replies...))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < len(replies); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Converse(ctx, "shared", "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := eng.Session(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 2*len(replies))
}

func TestEngine_Hooks(t *testing.T) {
	var mu sync.Mutex
	var turns []domain.TurnStatus
	hooks := domain.LifecycleHooks{
		OnTurnComplete: func(_ context.Context, ev *domain.TurnEvent) {
			mu.Lock()
			defer mu.Unlock()
			turns = append(turns, ev.Status)
		},
	}
	eng := newEngine(t, decider.NewScripted(`{"response": "Hi", "next_stage": "s1"}`), stageflow.WithLifecycleHooks(hooks))

	_, err := eng.Converse(context.Background(), "c1", "hello")
	require.NoError(t, err)
	assert.Equal(t, []domain.TurnStatus{domain.StatusContinue}, turns)
}

func TestEngine_Timeout(t *testing.T) {
	slow := decider.Func(func(ctx context.Context, _ domain.DecisionRequest) (domain.Decision, error) {
		<-ctx.Done()
		return domain.Decision{}, ctx.Err()
	})
	eng, err := stageflow.New("",
		stageflow.WithStages(demoStages()...),
		stageflow.WithDecider(slow),
		stageflow.WithTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	sess, err := eng.Converse(context.Background(), "c1", "hello")
	require.NoError(t, err)
	assert.True(t, sess.Ended())
	assert.Equal(t, "farewell", sess.ActiveStageID)
	assert.Contains(t, sess.LastError, context.DeadlineExceeded.Error())
}

func TestNew_LoamDirectory(t *testing.T) {
	dir, _ := testutils.SetupStageRepo(t, map[string]string{
		"start.md": `---
type: START
name: Start
order: 1
next_stages:
  - to: end
    condition: the user is done
---
Welcome the user.`,
		"end.md": `---
type: END
name: End
order: 2
---
Bye.`,
	})

	eng, err := stageflow.New(dir, stageflow.WithDecider(decider.NewKeyword()))
	require.NoError(t, err)
	assert.Len(t, eng.Stages(), 2)

	sess, err := eng.Converse(context.Background(), "c1", "I am done, bye")
	require.NoError(t, err)
	assert.Equal(t, "end", sess.ActiveStageID)
	assert.True(t, sess.Ended())
}
