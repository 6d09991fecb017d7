package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/stageflow/internal/logging"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTurnTimeout bounds a single decider call.
	DefaultTurnTimeout = 30 * time.Second

	// DefaultApology is appended when the decider fails.
	DefaultApology = "I'm sorry, something went wrong on my side and I can't continue this conversation right now. Please try again later."

	tracerName = "github.com/aretw0/stageflow"
)

// Orchestrator drives one conversation turn at a time: render the active stage,
// ask the decider, validate its proposal against the graph and apply it.
// It does not serialize turns; callers hold a per-conversation lock.
type Orchestrator struct {
	manager *StageManager
	decider ports.Decider
	timeout time.Duration
	apology string
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	tracer  trace.Tracer
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithTurnTimeout bounds each decider call. Zero or negative disables the bound.
func WithTurnTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithApology sets the message appended when the decider fails.
func WithApology(text string) OrchestratorOption {
	return func(o *Orchestrator) {
		if text != "" {
			o.apology = text
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) OrchestratorOption {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracerProvider sets the provider used for decide spans.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) OrchestratorOption {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewOrchestrator creates an orchestrator. A nil decider makes every turn fail
// gracefully with the apology path.
func NewOrchestrator(manager *StageManager, decider ports.Decider, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		manager: manager,
		decider: decider,
		timeout: DefaultTurnTimeout,
		apology: DefaultApology,
		logger:  logging.NewNop(),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Manager returns the stage manager driven by this orchestrator.
func (o *Orchestrator) Manager() *StageManager { return o.manager }

// InitConversation creates a session positioned at the START stage.
// An empty id is replaced by a random UUID.
func (o *Orchestrator) InitConversation(ctx context.Context, conversationID string) (*domain.ConversationSession, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	stage, err := o.manager.GetActiveStage(conversationID)
	if err != nil {
		return nil, err
	}
	sess := domain.NewSession(conversationID, stage.ID)
	o.emitStage(ctx, o.hooks.OnStageEnter, domain.EventStageEnter, conversationID, stage)
	return sess, nil
}

// SubmitUserInput queues text for the next turn. Ended sessions are returned unchanged.
func (o *Orchestrator) SubmitUserInput(sess *domain.ConversationSession, text string) *domain.ConversationSession {
	next := sess.Snapshot()
	if next.Ended() {
		return next
	}
	next.PendingUserInput = text
	next.Status = domain.StatusAwaitingInput
	next.UpdatedAt = time.Now()
	return next
}

// AdvanceTurn runs one turn using the configured decider.
// Recoverable failures never surface as errors: they end the conversation with
// an apology. Only graph invariant violations are returned.
func (o *Orchestrator) AdvanceTurn(ctx context.Context, sess *domain.ConversationSession) (*domain.ConversationSession, error) {
	return o.turn(ctx, sess, o.decide)
}

// ApplyDecision runs one turn with a decision made outside the engine, e.g. by
// an agent connected over MCP.
func (o *Orchestrator) ApplyDecision(ctx context.Context, sess *domain.ConversationSession, decision domain.Decision) (*domain.ConversationSession, error) {
	return o.turn(ctx, sess, func(context.Context, domain.DecisionRequest) (domain.Decision, error) {
		return decision, nil
	})
}

type decideFunc func(context.Context, domain.DecisionRequest) (domain.Decision, error)

func (o *Orchestrator) turn(ctx context.Context, sess *domain.ConversationSession, decide decideFunc) (*domain.ConversationSession, error) {
	started := time.Now()
	next := sess.Snapshot()
	if next.Ended() {
		return next, nil
	}

	logger := o.logger.With("conversation_id", next.ConversationID)

	input := strings.TrimSpace(next.PendingUserInput)
	next.PendingUserInput = ""
	next.LastError = ""
	if input == "" {
		logger.Info("Empty input, ending conversation")
		next.Status = domain.StatusEnded
		o.complete(ctx, next, started)
		return next, nil
	}

	if next.ActiveStageID != "" {
		o.manager.Attach(next.ConversationID, next.ActiveStageID)
	}
	stage, err := o.manager.GetActiveStage(next.ConversationID)
	if err != nil {
		return o.fatal(ctx, next, started, err)
	}

	next.Append(domain.RoleUser, input)
	next.Status = domain.StatusProcessing

	if stage.IsTerminal() {
		next.Append(domain.RoleAssistant, o.manager.ClosingText(stage))
		next.ActiveStageID = stage.ID
		next.Status = domain.StatusEnded
		logger.Info("Conversation at end stage", "stage", stage.ID)
		o.complete(ctx, next, started)
		return next, nil
	}

	prompt, err := o.manager.RenderStagePrompt(stage.ID)
	if err != nil {
		return o.fatal(ctx, next, started, &domain.GraphError{Reason: err.Error()})
	}

	req := domain.DecisionRequest{
		ConversationID: next.ConversationID,
		StageID:        stage.ID,
		Prompt:         prompt,
		History:        append([]domain.Message(nil), next.Messages...),
		Options:        o.options(stage),
	}
	if farewell, ok := o.manager.Graph().Farewell(); ok {
		req.EndStageID = farewell.ID
	}

	decideStart := time.Now()
	decision, err := o.callDecider(ctx, decide, req)
	event := &domain.DecisionEvent{
		EventBase:  o.base(domain.EventDecision, next.ConversationID),
		StageID:    stage.ID,
		Proposed:   decision.NextStage,
		Confidence: decision.Confidence,
		Duration:   time.Since(decideStart),
	}
	if err != nil {
		failure := &domain.UpstreamFailure{StageID: stage.ID, Err: err}
		event.Type = domain.EventUpstreamFailure
		event.Err = failure
		if o.hooks.OnUpstreamFailure != nil {
			o.hooks.OnUpstreamFailure(ctx, event)
		}
		logger.Warn("Decider failed, ending conversation", "stage", stage.ID, "err", err)
		return o.fail(ctx, next, stage, failure, started)
	}

	target, rejection := o.validateTransition(stage, decision.NextStage)
	event.Accepted = target
	if rejection != nil {
		event.Type = domain.EventTransitionRejected
		event.Err = rejection
		if o.hooks.OnTransitionRejected != nil {
			o.hooks.OnTransitionRejected(ctx, event)
		}
		logger.Warn("Transition rejected", "from", stage.ID, "proposed", decision.NextStage, "to", target)
	} else if o.hooks.OnDecision != nil {
		o.hooks.OnDecision(ctx, event)
	}

	next.Append(domain.RoleAssistant, decision.Response)
	if err := o.manager.SetActiveStage(next.ConversationID, target); err != nil {
		return o.fatal(ctx, next, started, &domain.GraphError{Reason: fmt.Sprintf("validated target %q did not resolve", target)})
	}

	entered, err := o.manager.GetActiveStage(next.ConversationID)
	if err != nil {
		return o.fatal(ctx, next, started, err)
	}
	o.move(ctx, next, stage, entered)

	if entered.IsTerminal() {
		next.Status = domain.StatusEnded
	} else {
		next.Status = domain.StatusContinue
	}
	logger.Info("Turn complete", "from", stage.ID, "to", entered.ID, "status", next.Status)
	o.complete(ctx, next, started)
	return next, nil
}

func (o *Orchestrator) decide(ctx context.Context, req domain.DecisionRequest) (domain.Decision, error) {
	if o.decider == nil {
		return domain.Decision{}, errors.New("no decider configured")
	}
	return o.decider.Decide(ctx, req)
}

func (o *Orchestrator) options(stage domain.Stage) []domain.StageOption {
	opts := make([]domain.StageOption, 0, len(stage.NextStages))
	for _, edge := range stage.NextStages {
		target, ok := o.manager.Graph().Stage(edge.TargetStageID)
		if !ok {
			continue
		}
		opts = append(opts, domain.StageOption{
			ID:        target.ID,
			Name:      target.Name,
			Condition: edge.Condition,
			Prompt:    o.manager.ClosingText(target),
		})
	}
	return opts
}

// callDecider applies the turn timeout and traces the call.
func (o *Orchestrator) callDecider(ctx context.Context, decide decideFunc, req domain.DecisionRequest) (domain.Decision, error) {
	ctx, span := o.tracer.Start(ctx, "stageflow.decide", trace.WithAttributes(
		attribute.String("stageflow.conversation_id", req.ConversationID),
		attribute.String("stageflow.stage_id", req.StageID),
	))
	defer span.End()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	decision, err := decide(ctx, req)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		decision = decision.Normalize()
		err = decision.Validate()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return decision, err
	}

	span.SetAttributes(
		attribute.String("stageflow.next_stage", decision.NextStage),
		attribute.Float64("stageflow.confidence", decision.Confidence),
	)
	return decision, nil
}

// validateTransition accepts a proposal that names an allowed target (by id or
// exact name), the current stage or the farewell stage, which every prompt
// offers as the way out. Anything else is replaced by the first
// declared next stage, then the farewell stage, then the current stage, so the
// active pointer never dangles.
func (o *Orchestrator) validateTransition(stage domain.Stage, proposed string) (string, *domain.TransitionRejected) {
	proposed = strings.TrimSpace(proposed)
	graph := o.manager.Graph()

	if proposed == stage.ID {
		return stage.ID, nil
	}
	if farewell, ok := graph.Farewell(); ok && proposed == farewell.ID {
		return farewell.ID, nil
	}
	for _, edge := range stage.NextStages {
		if edge.TargetStageID == proposed {
			return edge.TargetStageID, nil
		}
	}
	if proposed != "" {
		for _, edge := range stage.NextStages {
			if target, ok := graph.Stage(edge.TargetStageID); ok && target.Name == proposed {
				return target.ID, nil
			}
		}
	}

	substitute := stage.ID
	if len(stage.NextStages) > 0 {
		substitute = stage.NextStages[0].TargetStageID
	} else if farewell, ok := graph.Farewell(); ok {
		substitute = farewell.ID
	}
	if !graph.Has(substitute) {
		if farewell, ok := graph.Farewell(); ok {
			substitute = farewell.ID
		} else {
			substitute = stage.ID
		}
	}

	return substitute, &domain.TransitionRejected{From: stage.ID, Proposed: proposed, Substitute: substitute}
}

// fail applies the upstream failure path: apology, farewell stage, ENDED.
func (o *Orchestrator) fail(ctx context.Context, next *domain.ConversationSession, from domain.Stage, failure *domain.UpstreamFailure, started time.Time) (*domain.ConversationSession, error) {
	next.Append(domain.RoleAssistant, o.apology)
	next.LastError = failure.Error()

	to := from
	if farewell, ok := o.manager.Graph().Farewell(); ok {
		if err := o.manager.SetActiveStage(next.ConversationID, farewell.ID); err == nil {
			to = farewell
		}
	}
	o.move(ctx, next, from, to)

	next.Status = domain.StatusEnded
	o.complete(ctx, next, started)
	return next, nil
}

func (o *Orchestrator) fatal(ctx context.Context, next *domain.ConversationSession, started time.Time, err error) (*domain.ConversationSession, error) {
	o.logger.Error("Turn aborted", "conversation_id", next.ConversationID, "err", err)
	next.Status = domain.StatusError
	next.LastError = err.Error()
	o.complete(ctx, next, started)
	return next, err
}

func (o *Orchestrator) move(ctx context.Context, next *domain.ConversationSession, from, to domain.Stage) {
	next.ActiveStageID = to.ID
	if from.ID == to.ID {
		return
	}
	o.emitStage(ctx, o.hooks.OnStageLeave, domain.EventStageLeave, next.ConversationID, from)
	o.emitStage(ctx, o.hooks.OnStageEnter, domain.EventStageEnter, next.ConversationID, to)
}

func (o *Orchestrator) emitStage(ctx context.Context, hook func(context.Context, *domain.StageEvent), typ domain.EventType, conversationID string, stage domain.Stage) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.StageEvent{
		EventBase: o.base(typ, conversationID),
		StageID:   stage.ID,
		StageType: stage.Type,
	})
}

func (o *Orchestrator) complete(ctx context.Context, next *domain.ConversationSession, started time.Time) {
	next.UpdatedAt = time.Now()
	if o.hooks.OnTurnComplete == nil {
		return
	}
	o.hooks.OnTurnComplete(ctx, &domain.TurnEvent{
		EventBase: o.base(domain.EventTurnComplete, next.ConversationID),
		StageID:   next.ActiveStageID,
		Status:    next.Status,
		Duration:  time.Since(started),
	})
}

func (o *Orchestrator) base(typ domain.EventType, conversationID string) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: typ, ConversationID: conversationID}
}
