package domain

import (
	"fmt"
	"strings"
)

// StageType defines the role a stage plays in the conversation graph.
type StageType string

const (
	StageStart  StageType = "START"  // Entry point, exactly one per graph
	StageNormal StageType = "NORMAL" // Regular dialogue phase
	StageEnd    StageType = "END"    // Terminal, outgoing edges are never evaluated
	StageGlobal StageType = "GLOBAL" // Implicitly reachable from every other stage
)

// ParseStageType normalizes a configured type name.
// An empty value defaults to NORMAL.
func ParseStageType(raw string) (StageType, error) {
	t := StageType(strings.ToUpper(strings.TrimSpace(raw)))
	if t == "" {
		return StageNormal, nil
	}
	if !t.Valid() {
		return "", fmt.Errorf("unknown stage type %q", raw)
	}
	return t, nil
}

// Valid reports whether t is one of the known stage types.
func (t StageType) Valid() bool {
	switch t {
	case StageStart, StageNormal, StageEnd, StageGlobal:
		return true
	}
	return false
}

// NextStage is a directed edge to another stage.
// Condition is advisory text for the decider; it is never evaluated by the engine.
type NextStage struct {
	TargetStageID string `json:"nextStageId" yaml:"nextStageId" mapstructure:"nextStageId"`
	Condition     string `json:"condition,omitempty" yaml:"condition,omitempty" mapstructure:"condition"`

	// Synthetic marks edges added by GLOBAL augmentation.
	Synthetic bool `json:"synthetic,omitempty" yaml:"-" mapstructure:"-"`
}

// Stage is a node in the conversation graph.
type Stage struct {
	ID         string      `json:"id" yaml:"id" mapstructure:"id"`
	Name       string      `json:"name" yaml:"name" mapstructure:"name"`
	Type       StageType   `json:"type" yaml:"type" mapstructure:"type"`
	PromptText string      `json:"prompt" yaml:"prompt" mapstructure:"prompt"`
	NextStages []NextStage `json:"nextStages" yaml:"nextStages" mapstructure:"nextStages"`

	// InCondition is used as the edge condition when a GLOBAL stage
	// is attached to every other stage.
	InCondition string `json:"inCondition,omitempty" yaml:"inCondition,omitempty" mapstructure:"inCondition"`
}

// IsTerminal reports whether reaching this stage ends the conversation.
func (s Stage) IsTerminal() bool {
	return s.Type == StageEnd
}

// Clone returns a copy that shares no slices with s.
func (s Stage) Clone() Stage {
	c := s
	if s.NextStages != nil {
		c.NextStages = make([]NextStage, len(s.NextStages))
		copy(c.NextStages, s.NextStages)
	}
	return c
}

// Label returns the name when set, otherwise the id.
func (s Stage) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
