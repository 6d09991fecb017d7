package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/ports"
	"github.com/aretw0/stageflow/pkg/runner"
)

// ChatOptions configures RunChat.
type ChatOptions struct {
	In             io.Reader
	Out            io.Writer
	JSON           bool
	ConversationID string
	Renderer       runner.ContentRenderer
	ShowStage      bool
	Signals        bool
	Logger         *slog.Logger
}

// NewIOHandler picks the NDJSON handler for piped sessions and the text
// handler otherwise.
func NewIOHandler(opts ChatOptions) runner.IOHandler {
	if opts.JSON {
		return runner.NewJSONHandler(opts.In, opts.Out)
	}
	return runner.NewTextHandler(opts.In, opts.Out,
		runner.WithTextHandlerRenderer(opts.Renderer),
		runner.WithStageLabel(opts.ShowStage),
	)
}

// RunChat runs one conversation against engine until it ends or input runs out.
func RunChat(ctx context.Context, engine ports.ConversationEngine, opts ChatOptions) (*domain.ConversationSession, error) {
	r := runner.NewRunner(
		runner.WithLogger(opts.Logger),
		runner.WithInputHandler(NewIOHandler(opts)),
		runner.WithConversationID(opts.ConversationID),
		runner.WithSignals(opts.Signals),
	)
	return r.Run(ctx, engine)
}
