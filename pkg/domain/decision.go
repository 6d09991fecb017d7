package domain

import (
	"errors"
	"math"
	"strings"
)

// DefaultConfidence is assumed when a decider omits the confidence field.
const DefaultConfidence = 1.0

// Decision is the structured output of a decider for one turn.
type Decision struct {
	Response   string  `json:"response" mapstructure:"response"`
	NextStage  string  `json:"next_stage" mapstructure:"next_stage"`
	Confidence float64 `json:"confidence" mapstructure:"confidence"`
}

// Validate checks the shape of the decision.
func (d Decision) Validate() error {
	if strings.TrimSpace(d.Response) == "" {
		return errors.New("decision has an empty response")
	}
	return nil
}

// Normalize maps the confidence into [0,1]. Values in (1,100] are read as
// percentages; anything else out of range is clamped. NaN becomes
// DefaultConfidence.
func (d Decision) Normalize() Decision {
	c := d.Confidence
	switch {
	case math.IsNaN(c):
		c = DefaultConfidence
	case c > 1 && c <= 100:
		c /= 100
	case c > 100:
		c = 1
	case c < 0:
		c = 0
	}
	d.Confidence = c
	return d
}

// StageOption is an outgoing edge of the active stage, resolved against the graph.
type StageOption struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Condition string `json:"condition,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

// DecisionRequest carries everything a decider needs to choose the next stage.
type DecisionRequest struct {
	ConversationID string
	StageID        string

	// Prompt is the fully rendered instruction text of the active stage.
	Prompt  string
	History []Message

	// Options lists the allowed targets in declaration order.
	Options []StageOption

	// EndStageID is the farewell stage, or "" when the graph has none.
	EndStageID string
}

// LastUserMessage returns the most recent user utterance in the history, or "".
func (r DecisionRequest) LastUserMessage() string {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == RoleUser {
			return r.History[i].Text
		}
	}
	return ""
}
