package runtime

import (
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/aretw0/stageflow/internal/logging"
	"github.com/aretw0/stageflow/pkg/domain"
)

// StageManager owns a stage graph and the conversation-id to active-stage map.
// Each instance is independent, so several graphs can coexist in one process.
type StageManager struct {
	graph      *Graph
	formulator *Formulator
	cache      *PromptCache
	logger     *slog.Logger

	mu     sync.RWMutex
	active map[string]string

	varsMu sync.RWMutex
	vars   map[string]any
}

// ManagerOption configures a StageManager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	logger       *slog.Logger
	persona      string
	vars         map[string]any
	interpolator Interpolator
}

// WithManagerLogger sets the logger used for resolution warnings.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithPersona prepends a fixed preamble to every rendered prompt.
func WithPersona(persona string) ManagerOption {
	return func(c *managerConfig) {
		c.persona = persona
	}
}

// WithVariables sets the initial substitution variables.
func WithVariables(vars map[string]any) ManagerOption {
	return func(c *managerConfig) {
		c.vars = vars
	}
}

// WithInterpolator replaces the lenient {name} substitution.
func WithInterpolator(interp Interpolator) ManagerOption {
	return func(c *managerConfig) {
		c.interpolator = interp
	}
}

// NewStageManager creates a manager over a validated graph.
func NewStageManager(graph *Graph, opts ...ManagerOption) *StageManager {
	cfg := managerConfig{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNop()
	}

	return &StageManager{
		graph:      graph,
		formulator: NewFormulator(graph, cfg.persona, cfg.interpolator),
		cache:      NewPromptCache(),
		logger:     cfg.logger,
		active:     make(map[string]string),
		vars:       maps.Clone(cfg.vars),
	}
}

// Graph returns the underlying immutable graph.
func (m *StageManager) Graph() *Graph { return m.graph }

// GetStartStage returns the unique START stage.
func (m *StageManager) GetStartStage() (domain.Stage, error) {
	start, ok := m.graph.Start()
	if !ok {
		return domain.Stage{}, &domain.GraphError{Reason: "start stage not found"}
	}
	return start, nil
}

// GetEndStage returns the first END stage in declaration order.
func (m *StageManager) GetEndStage() (domain.Stage, error) {
	end, ok := m.graph.Farewell()
	if !ok {
		return domain.Stage{}, &domain.GraphError{Reason: "end stage not found"}
	}
	return end, nil
}

// GetActiveStage returns the active stage of a conversation. An unseen
// conversation is initialized to the START stage on the first call.
func (m *StageManager) GetActiveStage(conversationID string) (domain.Stage, error) {
	m.mu.RLock()
	id, ok := m.active[conversationID]
	m.mu.RUnlock()
	if ok {
		if stage, found := m.graph.Stage(id); found {
			return stage, nil
		}
	}

	start, err := m.GetStartStage()
	if err != nil {
		return domain.Stage{}, err
	}

	m.mu.Lock()
	// Another caller may have initialized it in the meantime; first call wins.
	if existing, ok := m.active[conversationID]; ok && m.graph.Has(existing) {
		m.mu.Unlock()
		stage, _ := m.graph.Stage(existing)
		return stage, nil
	}
	m.active[conversationID] = start.ID
	m.mu.Unlock()

	m.logger.Info("Conversation initialized", "conversation_id", conversationID, "stage", start.ID)
	return start, nil
}

// SetActiveStage moves a conversation to the stage matching idOrName.
// Resolution tries an exact id, then an exact name, then an id prefix.
// When nothing matches the mapping is left unchanged and a *domain.ResolutionError
// is returned; callers may treat it as a logged no-op.
func (m *StageManager) SetActiveStage(conversationID, idOrName string) error {
	stage, ok := m.Resolve(idOrName)
	if !ok {
		m.logger.Warn("Stage not found", "conversation_id", conversationID, "identifier", idOrName)
		return &domain.ResolutionError{Identifier: idOrName}
	}

	m.mu.Lock()
	m.active[conversationID] = stage.ID
	m.mu.Unlock()

	m.logger.Debug("Active stage set", "conversation_id", conversationID, "stage", stage.ID, "name", stage.Name)
	return nil
}

// Attach seeds the mapping for a resumed conversation when none exists.
func (m *StageManager) Attach(conversationID, stageID string) {
	if !m.graph.Has(stageID) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[conversationID]; !ok {
		m.active[conversationID] = stageID
	}
}

// Forget drops the mapping of a conversation.
func (m *StageManager) Forget(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, conversationID)
}

// Conversations returns the number of tracked conversations.
func (m *StageManager) Conversations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Resolve looks a stage up by exact id, exact name or id prefix.
func (m *StageManager) Resolve(idOrName string) (domain.Stage, bool) {
	if idOrName == "" {
		return domain.Stage{}, false
	}
	if stage, ok := m.graph.Stage(idOrName); ok {
		return stage, true
	}
	return m.FindStageByName(idOrName)
}

// FindStageByName matches an exact name first, then an id prefix.
// The first match in declaration order wins.
func (m *StageManager) FindStageByName(name string) (domain.Stage, bool) {
	if name == "" {
		return domain.Stage{}, false
	}

	var found *domain.Stage
	m.graph.each(func(s *domain.Stage) bool {
		if s.Name == name {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		m.graph.each(func(s *domain.Stage) bool {
			if strings.HasPrefix(s.ID, name) {
				found = s
				return false
			}
			return true
		})
	}
	if found == nil {
		return domain.Stage{}, false
	}
	return found.Clone(), true
}

// RenderStagePrompt returns the rendered prompt of a stage, using the cache.
func (m *StageManager) RenderStagePrompt(stageID string) (string, error) {
	stage, ok := m.graph.Stage(stageID)
	if !ok {
		return "", &domain.ResolutionError{Identifier: stageID}
	}
	return m.render(stage), nil
}

// StagePromptByName renders the stage found by FindStageByName.
func (m *StageManager) StagePromptByName(name string) (string, bool) {
	stage, ok := m.FindStageByName(name)
	if !ok {
		return "", false
	}
	return m.render(stage), true
}

// ResolvePromptForConversation renders the prompt of the conversation's active stage.
func (m *StageManager) ResolvePromptForConversation(conversationID string) (string, error) {
	stage, err := m.GetActiveStage(conversationID)
	if err != nil {
		return "", err
	}
	return m.render(stage), nil
}

// ClosingText returns the substituted prompt text of a stage.
func (m *StageManager) ClosingText(stage domain.Stage) string {
	vars, _ := m.snapshotVars()
	return m.formulator.ClosingText(stage, vars)
}

// SetVariables replaces the substitution variables and invalidates cached prompts.
func (m *StageManager) SetVariables(vars map[string]any) {
	m.varsMu.Lock()
	defer m.varsMu.Unlock()
	m.vars = maps.Clone(vars)
	m.cache.Invalidate()
}

// Variables returns a copy of the substitution variables.
func (m *StageManager) Variables() map[string]any {
	vars, _ := m.snapshotVars()
	return vars
}

func (m *StageManager) snapshotVars() (map[string]any, uint64) {
	m.varsMu.RLock()
	defer m.varsMu.RUnlock()
	return maps.Clone(m.vars), m.cache.Generation()
}

func (m *StageManager) render(stage domain.Stage) string {
	vars, gen := m.snapshotVars()
	if text, ok := m.cache.Get(stage.ID, gen); ok {
		return text
	}
	text := m.formulator.Render(stage, vars)
	m.cache.Put(stage.ID, gen, text)
	return text
}
