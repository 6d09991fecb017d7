package stageflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/stageflow/internal/logging"
	"github.com/aretw0/stageflow/internal/runtime"
	loamAdapter "github.com/aretw0/stageflow/pkg/adapters/loam"
	"github.com/aretw0/stageflow/pkg/adapters/memory"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/ports"
	"github.com/aretw0/stageflow/pkg/session"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the high-level entry point for the stageflow library.
// It loads a stage graph once, owns the per-conversation stage mapping and
// serializes turns per conversation.
type Engine struct {
	loader  ports.StageLoader
	decider ports.Decider
	store   ports.SessionStore
	locker  ports.DistributedLocker
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	tracer  trace.TracerProvider

	vars         map[string]any
	persona      string
	interpolator runtime.Interpolator
	timeout      *time.Duration
	apology      string

	graph        *runtime.Graph
	orchestrator *runtime.Orchestrator
	sessions     *session.Manager

	Name string
}

// Ensure Engine implements ports.ConversationEngine
var _ ports.ConversationEngine = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a custom StageLoader, bypassing the default Loam initialization.
func WithLoader(l ports.StageLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithStages is shorthand for an in-memory loader over the given records.
func WithStages(stages ...domain.Stage) Option {
	return func(e *Engine) {
		e.loader = memory.NewLoader(stages...)
	}
}

// WithDecider sets the collaborator that picks the reply and next stage.
// Without one every turn fails gracefully with the apology.
func WithDecider(d ports.Decider) Option {
	return func(e *Engine) {
		e.decider = d
	}
}

// WithStore replaces the in-memory session store.
func WithStore(store ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker adds a distributed lock around every conversation turn.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracerProvider sets the provider used for decide spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp
	}
}

// WithVariables sets the values substituted into {name} placeholders.
func WithVariables(vars map[string]any) Option {
	return func(e *Engine) {
		e.vars = vars
	}
}

// WithPersona prepends a fixed preamble to every rendered prompt.
func WithPersona(persona string) Option {
	return func(e *Engine) {
		e.persona = persona
	}
}

// WithInterpolator replaces the lenient {name} substitution.
func WithInterpolator(interp runtime.Interpolator) Option {
	return func(e *Engine) {
		e.interpolator = interp
	}
}

// WithTimeout bounds each decider call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = &d
	}
}

// WithApology sets the reply used when the decider fails.
func WithApology(text string) Option {
	return func(e *Engine) {
		e.apology = text
	}
}

// New initializes a new Engine.
// By default, it reads a Loam stage directory at the given path.
// If WithLoader or WithStages is provided, dir can be empty and Loam is skipped.
// A malformed graph is reported as a *domain.ConfigError.
func New(dir string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.loader == nil {
		if dir == "" {
			return nil, fmt.Errorf("dir is required when no custom loader is provided")
		}
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)

		loader, err := loamAdapter.Open(absPath)
		if err != nil {
			return nil, err
		}
		eng.loader = loader
	} else if dir != "" {
		eng.Name = filepath.Base(dir)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("graph", eng.Name)
	}

	stages, err := eng.loader.LoadStages(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}
	eng.graph, err = runtime.NewGraph(stages)
	if err != nil {
		return nil, err
	}
	for _, w := range eng.graph.Warnings() {
		eng.logger.Warn("Stage graph warning", "warning", w)
	}

	manager := runtime.NewStageManager(eng.graph,
		runtime.WithManagerLogger(eng.logger),
		runtime.WithPersona(eng.persona),
		runtime.WithVariables(eng.vars),
		runtime.WithInterpolator(eng.interpolator),
	)

	orchOpts := []runtime.OrchestratorOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithApology(eng.apology),
		runtime.WithTracerProvider(eng.tracer),
	}
	if eng.timeout != nil {
		orchOpts = append(orchOpts, runtime.WithTurnTimeout(*eng.timeout))
	}
	eng.orchestrator = runtime.NewOrchestrator(manager, eng.decider, orchOpts...)

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	eng.sessions = session.NewManager(eng.store,
		session.WithLocker(eng.locker),
		session.WithLogger(eng.logger),
	)

	eng.logger.Debug("Engine ready", "stages", eng.graph.Len(), "globals", len(eng.graph.Globals()))
	return eng, nil
}

// InitConversation creates a session at the START stage without storing it.
func (e *Engine) InitConversation(ctx context.Context, conversationID string) (*domain.ConversationSession, error) {
	return e.orchestrator.InitConversation(ctx, conversationID)
}

// SubmitUserInput queues text for the next AdvanceTurn on a caller-owned session.
func (e *Engine) SubmitUserInput(sess *domain.ConversationSession, text string) *domain.ConversationSession {
	return e.orchestrator.SubmitUserInput(sess, text)
}

// AdvanceTurn runs one turn on a caller-owned session. The caller serializes
// turns of the same conversation.
func (e *Engine) AdvanceTurn(ctx context.Context, sess *domain.ConversationSession) (*domain.ConversationSession, error) {
	return e.orchestrator.AdvanceTurn(ctx, sess)
}

// StartConversation creates and stores a session at the START stage.
// An existing session with the same id is returned unchanged.
func (e *Engine) StartConversation(ctx context.Context, conversationID string) (*domain.ConversationSession, error) {
	return e.sessions.LoadOrStart(ctx, conversationID, func(ctx context.Context) (*domain.ConversationSession, error) {
		return e.orchestrator.InitConversation(ctx, conversationID)
	})
}

// CreateConversation is StartConversation for callers that must not reuse an
// id. It returns domain.ErrSessionExists when the conversation is stored.
func (e *Engine) CreateConversation(ctx context.Context, conversationID string) (*domain.ConversationSession, error) {
	return e.sessions.Create(ctx, conversationID, func(ctx context.Context) (*domain.ConversationSession, error) {
		return e.orchestrator.InitConversation(ctx, conversationID)
	})
}

// Converse submits text and advances one turn under the conversation lock.
// Unknown conversations are started first. Input to an ended conversation
// returns domain.ErrConversationEnded.
func (e *Engine) Converse(ctx context.Context, conversationID, text string) (*domain.ConversationSession, error) {
	return e.step(ctx, conversationID, func(ctx context.Context, sess *domain.ConversationSession) (*domain.ConversationSession, error) {
		return e.orchestrator.AdvanceTurn(ctx, e.orchestrator.SubmitUserInput(sess, text))
	})
}

// ApplyDecision advances one turn with a decision made by the caller.
func (e *Engine) ApplyDecision(ctx context.Context, conversationID, text string, decision domain.Decision) (*domain.ConversationSession, error) {
	return e.step(ctx, conversationID, func(ctx context.Context, sess *domain.ConversationSession) (*domain.ConversationSession, error) {
		return e.orchestrator.ApplyDecision(ctx, e.orchestrator.SubmitUserInput(sess, text), decision)
	})
}

func (e *Engine) step(ctx context.Context, conversationID string, fn session.UpdateFunc) (*domain.ConversationSession, error) {
	if _, err := e.StartConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return e.sessions.Update(ctx, conversationID, func(ctx context.Context, sess *domain.ConversationSession) (*domain.ConversationSession, error) {
		if sess.Ended() {
			return nil, domain.ErrConversationEnded
		}
		return fn(ctx, sess)
	})
}

// Session returns the stored session.
func (e *Engine) Session(ctx context.Context, conversationID string) (*domain.ConversationSession, error) {
	return e.sessions.Load(ctx, conversationID)
}

// EndConversation drops the session and its active-stage mapping.
func (e *Engine) EndConversation(ctx context.Context, conversationID string) error {
	err := e.sessions.Delete(ctx, conversationID)
	e.orchestrator.Manager().Forget(conversationID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	return err
}

// Stages returns the augmented graph in declaration order.
func (e *Engine) Stages() []domain.Stage {
	return e.graph.Stages()
}

// FindStage resolves a stage by id, name or id prefix.
func (e *Engine) FindStage(idOrName string) (domain.Stage, bool) {
	return e.orchestrator.Manager().Resolve(idOrName)
}

// RenderPrompt returns the prompt of a stage resolved by id, name or id prefix.
func (e *Engine) RenderPrompt(idOrName string) (string, error) {
	stage, ok := e.orchestrator.Manager().Resolve(idOrName)
	if !ok {
		return "", &domain.ResolutionError{Identifier: idOrName}
	}
	return e.orchestrator.Manager().RenderStagePrompt(stage.ID)
}

// ActiveStage returns the active stage of a conversation.
func (e *Engine) ActiveStage(conversationID string) (domain.Stage, error) {
	return e.orchestrator.Manager().GetActiveStage(conversationID)
}

// SetVariables replaces the substitution variables and invalidates cached prompts.
func (e *Engine) SetVariables(vars map[string]any) {
	e.orchestrator.Manager().SetVariables(vars)
}

// Warnings returns non-fatal findings of graph validation.
func (e *Engine) Warnings() []string {
	return e.graph.Warnings()
}

// Sessions returns the per-conversation session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}
