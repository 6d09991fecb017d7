package runner_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine ends the conversation on the word "bye" and echoes everything else.
type fakeEngine struct {
	mu       sync.Mutex
	sessions map[string]*domain.ConversationSession
	inputs   []string
	failWith error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{sessions: map[string]*domain.ConversationSession{}}
}

func (f *fakeEngine) StartConversation(_ context.Context, id string) (*domain.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := domain.NewSession(id, "s0")
	f.sessions[id] = s
	return s.Snapshot(), nil
}

func (f *fakeEngine) CreateConversation(ctx context.Context, id string) (*domain.ConversationSession, error) {
	if _, err := f.Session(ctx, id); err == nil {
		return nil, domain.ErrSessionExists
	}
	return f.StartConversation(ctx, id)
}

func (f *fakeEngine) Converse(_ context.Context, id, text string) (*domain.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.Ended() {
		return nil, domain.ErrConversationEnded
	}
	if f.failWith != nil {
		s.Status = domain.StatusError
		return s.Snapshot(), f.failWith
	}
	f.inputs = append(f.inputs, text)
	s.Append(domain.RoleUser, text)
	if text == "bye" || text == "" {
		s.ActiveStageID = "farewell"
		s.Status = domain.StatusEnded
		s.Append(domain.RoleAssistant, "Goodbye!")
	} else {
		s.ActiveStageID = "s1"
		s.Status = domain.StatusAwaitingInput
		s.Append(domain.RoleAssistant, "You said "+text)
	}
	return s.Snapshot(), nil
}

func (f *fakeEngine) ApplyDecision(ctx context.Context, id, text string, _ domain.Decision) (*domain.ConversationSession, error) {
	return f.Converse(ctx, id, text)
}

func (f *fakeEngine) Session(_ context.Context, id string) (*domain.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s.Snapshot(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (f *fakeEngine) EndConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeEngine) Stages() []domain.Stage { return nil }

func (f *fakeEngine) RenderPrompt(string) (string, error) { return "", nil }

func TestRunner_TextConversationEnds(t *testing.T) {
	engine := newFakeEngine()
	var out bytes.Buffer
	handler := runner.NewTextHandler(strings.NewReader("hello\nbye\nignored\n"), &out)

	r := runner.NewRunner(runner.WithInputHandler(handler), runner.WithConversationID("c1"))
	sess, err := r.Run(context.Background(), engine)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusEnded, sess.Status)
	assert.Equal(t, []string{"hello", "bye"}, engine.inputs)
	assert.Contains(t, out.String(), "You said hello")
	assert.Contains(t, out.String(), "Goodbye!")
	assert.Contains(t, out.String(), "[System] Conversation ended.")
}

func TestRunner_EOFStopsWithoutEnding(t *testing.T) {
	engine := newFakeEngine()
	handler := runner.NewTextHandler(strings.NewReader("hello\n"), &bytes.Buffer{})

	sess, err := runner.NewRunner(runner.WithInputHandler(handler)).Run(context.Background(), engine)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingInput, sess.Status)
	assert.NotEmpty(t, sess.ConversationID, "a conversation id is generated")
}

func TestRunner_ExitWord(t *testing.T) {
	engine := newFakeEngine()
	handler := runner.NewTextHandler(strings.NewReader("/quit\nhello\n"), &bytes.Buffer{})

	_, err := runner.NewRunner(runner.WithInputHandler(handler)).Run(context.Background(), engine)
	require.NoError(t, err)
	assert.Empty(t, engine.inputs, "exit words never reach the engine")
}

func TestRunner_ResumesExistingConversation(t *testing.T) {
	engine := newFakeEngine()
	ctx := context.Background()
	_, err := engine.StartConversation(ctx, "c1")
	require.NoError(t, err)
	_, err = engine.Converse(ctx, "c1", "first")
	require.NoError(t, err)

	handler := runner.NewTextHandler(strings.NewReader("second\n"), &bytes.Buffer{})
	sess, err := runner.NewRunner(runner.WithInputHandler(handler), runner.WithConversationID("c1")).Run(ctx, engine)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 4)
}

func TestRunner_AlreadyEnded(t *testing.T) {
	engine := newFakeEngine()
	ctx := context.Background()
	_, _ = engine.StartConversation(ctx, "c1")
	_, _ = engine.Converse(ctx, "c1", "bye")

	var out bytes.Buffer
	handler := runner.NewTextHandler(strings.NewReader("hello\n"), &out)
	sess, err := runner.NewRunner(runner.WithInputHandler(handler), runner.WithConversationID("c1")).Run(ctx, engine)
	require.NoError(t, err)
	assert.True(t, sess.Ended())
	assert.Contains(t, out.String(), "already ended")
}

func TestRunner_TurnError(t *testing.T) {
	engine := newFakeEngine()
	engine.failWith = &domain.GraphError{Reason: "no START stage"}
	handler := runner.NewTextHandler(strings.NewReader("hello\n"), &bytes.Buffer{})

	sess, err := runner.NewRunner(runner.WithInputHandler(handler)).Run(context.Background(), engine)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGraph)
	assert.Equal(t, domain.StatusError, sess.Status)
}

func TestRunner_ContextCancelled(t *testing.T) {
	engine := newFakeEngine()
	pr, pw := ioPipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	handler := runner.NewTextHandler(pr, &syncWriter{w: &out})

	done := make(chan error, 1)
	go func() {
		_, err := runner.NewRunner(runner.WithInputHandler(handler)).Run(ctx, engine)
		done <- err
	}()
	cancel()
	assert.NoError(t, <-done)
}

func TestRunner_JSONHandler(t *testing.T) {
	engine := newFakeEngine()
	var out bytes.Buffer
	in := strings.NewReader("\"hello\"\n{\"text\": \"bye\"}\n")

	sess, err := runner.NewRunner(
		runner.WithInputHandler(runner.NewJSONHandler(in, &out)),
		runner.WithConversationID("json-1"),
	).Run(context.Background(), engine)
	require.NoError(t, err)
	assert.True(t, sess.Ended())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"type":"turn","turn":{"conversation_id":"json-1","stage_id":"s1","status":"AWAITING_INPUT","reply":"You said hello"}}`, lines[0])
	assert.Contains(t, lines[1], `"status":"ENDED"`)
	assert.JSONEq(t, `{"type":"system","message":"Conversation ended."}`, lines[2])
}

func TestTextHandler_RejectsOversizedInput(t *testing.T) {
	big := strings.Repeat("a", runner.DefaultMaxInputSize+1)
	var out bytes.Buffer
	handler := runner.NewTextHandler(strings.NewReader(big+"\nok\n"), &out)

	got, err := handler.Input(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Contains(t, out.String(), "Please try again")
}

func TestTextHandler_OutputRendererAndLabel(t *testing.T) {
	var out bytes.Buffer
	handler := runner.NewTextHandler(strings.NewReader(""), &out,
		runner.WithTextHandlerRenderer(func(s string) (string, error) { return strings.ToUpper(s), nil }),
		runner.WithStageLabel(true),
	)
	require.NoError(t, handler.Output(context.Background(), runner.Turn{StageID: "s1", Reply: "hi"}))
	assert.Equal(t, "[s1] HI\n", out.String())

	out.Reset()
	handler.Renderer = func(string) (string, error) { return "", errors.New("boom") }
	require.NoError(t, handler.Output(context.Background(), runner.Turn{Reply: "raw"}))
	assert.Contains(t, out.String(), "raw")
}

func TestSignalManager_FollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	sm := runner.NewSignalManager(parent)
	defer sm.Stop()

	require.NoError(t, sm.Context().Err())
	cancel()
	<-sm.Context().Done()
	assert.ErrorIs(t, sm.Context().Err(), context.Canceled)
}

func TestSignalManager_StopIsIdempotent(t *testing.T) {
	sm := runner.NewSignalManager(nil)
	sm.Stop()
	sm.Stop()
	assert.Error(t, sm.Context().Err())
}

func TestRunner_SignalsStopOnCancel(t *testing.T) {
	engine := newFakeEngine()
	pr, pw := ioPipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	handler := runner.NewTextHandler(pr, &syncWriter{w: &out})

	done := make(chan error, 1)
	go func() {
		_, err := runner.NewRunner(runner.WithInputHandler(handler), runner.WithSignals(true)).Run(ctx, engine)
		done <- err
	}()
	cancel()
	assert.NoError(t, <-done)
}
