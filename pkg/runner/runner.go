package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/stageflow/internal/logging"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/ports"
	"github.com/google/uuid"
)

// Runner drives a conversation turn by turn through an IOHandler.
type Runner struct {
	// Handler is the strategy for IO. Defaults to a TextHandler on Stdin/Stdout.
	Handler IOHandler

	// Logger is used for internal debug logging.
	Logger *slog.Logger

	// ConversationID is resumed when it exists and started otherwise.
	ConversationID string

	// Renderer is applied by the default text handler.
	Renderer ContentRenderer

	// ExitWords stop the loop locally. They never reach the engine.
	ExitWords []string

	// Signals makes Run stop on SIGINT and SIGTERM.
	Signals bool
}

// NewRunner creates a Runner with the given options.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Logger:    logging.NewNop(),
		ExitWords: []string{"/exit", "/quit"},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Run executes the conversation loop until the conversation ends, input is
// exhausted or ctx is cancelled. It returns the last stored session.
func (r *Runner) Run(ctx context.Context, engine ports.ConversationEngine) (*domain.ConversationSession, error) {
	handler := r.resolveHandler()

	if r.Signals {
		signals := NewSignalManager(ctx)
		defer signals.Stop()
		ctx = signals.Context()
	}

	sess, err := r.resolveSession(ctx, engine)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("Runner started", "conversation_id", sess.ConversationID, "stage_id", sess.ActiveStageID)

	if sess.Ended() {
		_ = handler.SystemOutput(ctx, "Conversation already ended.")
		return sess, nil
	}

	for {
		text, err := handler.Input(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.Logger.Debug("Runner input: EOF", "conversation_id", sess.ConversationID)
				return sess, nil
			}
			if ctx.Err() != nil {
				_ = handler.SystemOutput(context.Background(), "Interrupted.")
				return sess, nil
			}
			return sess, fmt.Errorf("input error: %w", err)
		}

		if r.isExitWord(text) {
			return sess, nil
		}

		next, err := engine.Converse(ctx, sess.ConversationID, text)
		if err != nil {
			if errors.Is(err, domain.ErrConversationEnded) {
				_ = handler.SystemOutput(ctx, "Conversation already ended.")
				return sess, nil
			}
			if next != nil {
				sess = next
			}
			return sess, fmt.Errorf("turn failed: %w", err)
		}
		sess = next

		if err := handler.Output(ctx, TurnFromSession(sess)); err != nil {
			return sess, fmt.Errorf("output error: %w", err)
		}

		if sess.Ended() {
			_ = handler.SystemOutput(ctx, "Conversation ended.")
			return sess, nil
		}
	}
}

func (r *Runner) resolveSession(ctx context.Context, engine ports.ConversationEngine) (*domain.ConversationSession, error) {
	if r.ConversationID == "" {
		r.ConversationID = uuid.NewString()
	}

	sess, err := engine.Session(ctx, r.ConversationID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	sess, err = engine.StartConversation(ctx, r.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to start conversation: %w", err)
	}
	return sess, nil
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	// Memoize to prevent creating new pumps on subsequent Run() calls
	r.Handler = NewTextHandler(os.Stdin, os.Stdout, WithTextHandlerRenderer(r.Renderer))
	return r.Handler
}

func (r *Runner) isExitWord(text string) bool {
	for _, w := range r.ExitWords {
		if strings.EqualFold(text, w) {
			return true
		}
	}
	return false
}
