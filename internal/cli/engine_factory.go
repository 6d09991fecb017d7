package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/stageflow"
	"github.com/aretw0/stageflow/pkg/adapters/eino"
	"github.com/aretw0/stageflow/pkg/adapters/file"
	"github.com/aretw0/stageflow/pkg/decider"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/observability"
	"github.com/aretw0/stageflow/pkg/ports"
)

// EngineOptions carries the flags shared by every command that builds an engine.
type EngineOptions struct {
	Dir     string
	Config  string
	Debug   bool
	Timeout time.Duration
	Vars    []string
	Persona string
	Decider ports.Decider
	Locker  ports.DistributedLocker
	Hooks   []domain.LifecycleHooks
}

// NewEngine initializes an engine with standard CLI conventions.
// A --config file (JSON or YAML) wins over the loam directory in --dir.
func NewEngine(opts EngineOptions, logger *slog.Logger) (*stageflow.Engine, error) {
	vars, err := ParseVars(opts.Vars)
	if err != nil {
		return nil, err
	}

	engineOpts := []stageflow.Option{
		stageflow.WithLogger(logger),
		stageflow.WithVariables(vars),
		stageflow.WithPersona(opts.Persona),
		stageflow.WithDecider(opts.Decider),
	}
	if opts.Debug {
		engineOpts = append(engineOpts, stageflow.WithLifecycleHooks(observability.LogHooks(logger)))
	}
	for _, h := range opts.Hooks {
		engineOpts = append(engineOpts, stageflow.WithLifecycleHooks(h))
	}
	if opts.Timeout > 0 {
		engineOpts = append(engineOpts, stageflow.WithTimeout(opts.Timeout))
	}
	if opts.Locker != nil {
		engineOpts = append(engineOpts, stageflow.WithLocker(opts.Locker))
	}

	dir := opts.Dir
	if opts.Config != "" {
		loader, err := file.New(opts.Config)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, stageflow.WithLoader(loader))
		dir = ""
	}

	engine, err := stageflow.New(dir, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, nil
}

// ParseVars turns repeated k=v flags into prompt variables.
func ParseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q (want key=value)", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// DeciderOptions selects the decider used by chat.
type DeciderOptions struct {
	Model   string
	BaseURL string
	Offline bool
}

// NewDecider returns the eino decider when an OpenAI key is configured, and the
// offline keyword decider otherwise. The second value names the choice.
func NewDecider(ctx context.Context, opts DeciderOptions, logger *slog.Logger) (ports.Decider, string, error) {
	cfg := eino.ConfigFromEnv()
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	if opts.Offline || cfg.APIKey == "" {
		return decider.NewKeyword(), "keyword", nil
	}

	d, err := eino.NewOpenAI(ctx, cfg, eino.WithLogger(logger))
	if err != nil {
		return nil, "", err
	}
	return d, "openai", nil
}
