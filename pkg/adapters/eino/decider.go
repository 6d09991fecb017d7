// Package eino implements ports.Decider on top of an Eino chat model.
package eino

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/stageflow/internal/logging"
	"github.com/aretw0/stageflow/pkg/decider"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvBaseURL = "OPENAI_BASE_URL"
	EnvModel   = "OPENAI_MODEL"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

// ErrNoAPIKey is returned by NewOpenAI when no key is available.
var ErrNoAPIKey = errors.New("missing OpenAI API key (set " + EnvAPIKey + ")")

// Config describes an OpenAI-compatible endpoint.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// ConfigFromEnv reads the OPENAI_* variables.
func ConfigFromEnv() Config {
	return Config{
		APIKey:  os.Getenv(EnvAPIKey),
		BaseURL: os.Getenv(EnvBaseURL),
		Model:   os.Getenv(EnvModel),
	}
}

// Decider asks a chat model for the next turn. The rendered stage prompt is
// sent as the system message, followed by the conversation history.
type Decider struct {
	model       model.BaseChatModel
	logger      *slog.Logger
	temperature *float32
}

// Option configures a Decider.
type Option func(*Decider)

// WithLogger sets the logger used for raw model replies at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decider) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTemperature sets the sampling temperature of every call.
func WithTemperature(t float32) Option {
	return func(d *Decider) {
		d.temperature = &t
	}
}

// New wraps any Eino chat model.
func New(m model.BaseChatModel, opts ...Option) *Decider {
	d := &Decider{model: m, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewOpenAI builds a Decider backed by an OpenAI-compatible endpoint.
func NewOpenAI(ctx context.Context, cfg Config, opts ...Option) (*Decider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	config := &openai.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	}
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.MaxTokens > 0 {
		config.MaxTokens = &cfg.MaxTokens
	}

	chatModel, err := openai.NewChatModel(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return New(chatModel, opts...), nil
}

// Decide implements ports.Decider.
func (d *Decider) Decide(ctx context.Context, req domain.DecisionRequest) (domain.Decision, error) {
	var opts []model.Option
	if d.temperature != nil {
		opts = append(opts, model.WithTemperature(*d.temperature))
	}

	resp, err := d.model.Generate(ctx, Messages(req), opts...)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("chat model: %w", err)
	}
	if resp == nil {
		return domain.Decision{}, errors.New("chat model returned no message")
	}

	d.logger.Debug("Model reply", "conversation_id", req.ConversationID, "stage", req.StageID, "content", resp.Content)
	return decider.ParseDecision(resp.Content)
}

// Messages converts a request into the chat transcript sent to the model.
func Messages(req domain.DecisionRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.History)+1)
	msgs = append(msgs, schema.SystemMessage(req.Prompt))
	for _, m := range req.History {
		switch m.Role {
		case domain.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Text))
		case domain.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Text, nil))
		}
	}
	return msgs
}
