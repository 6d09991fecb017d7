package decider

import (
	"context"
	"strings"
	"unicode"

	"github.com/aretw0/stageflow/pkg/domain"
)

var defaultExitWords = []string{"bye", "goodbye", "quit", "exit", "stop"}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "user": {}, "wants": {}, "asks": {}, "that": {}, "this": {},
}

// Keyword is an offline decider. It scores every option by how many words of
// its condition (and name) appear in the last user message and moves to the
// best one. Exit words jump to the end stage. With no match it stays put.
type Keyword struct {
	// ExitWords override the default exit vocabulary when set.
	ExitWords []string

	// StayReply is used when no option matches.
	StayReply string
}

// NewKeyword creates a keyword decider with default settings.
func NewKeyword() *Keyword {
	return &Keyword{StayReply: "Could you tell me a bit more?"}
}

// Decide implements ports.Decider.
func (k *Keyword) Decide(ctx context.Context, req domain.DecisionRequest) (domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return domain.Decision{}, err
	}

	words := tokenize(req.LastUserMessage())

	exit := k.ExitWords
	if len(exit) == 0 {
		exit = defaultExitWords
	}
	if req.EndStageID != "" && containsAny(words, exit) {
		return domain.Decision{Response: "Goodbye!", NextStage: req.EndStageID, Confidence: 1}, nil
	}

	best, bestScore := -1, 0
	for i, opt := range req.Options {
		score := overlap(words, tokenize(opt.Condition+" "+opt.Name))
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		reply := k.StayReply
		if reply == "" {
			reply = "Could you tell me a bit more?"
		}
		return domain.Decision{Response: reply, NextStage: req.StageID, Confidence: 0.5}, nil
	}

	opt := req.Options[best]
	reply := opt.Prompt
	if reply == "" {
		reply = "Let's continue with " + labelOf(opt) + "."
	}
	return domain.Decision{Response: reply, NextStage: opt.ID, Confidence: 0.75}, nil
}

func labelOf(opt domain.StageOption) string {
	if opt.Name != "" {
		return opt.Name
	}
	return opt.ID
}

// tokenize lowercases s and keeps content words longer than two letters.
func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if _, stop := stopWords[w]; stop || len(w) <= 2 {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range b {
		if _, ok := a[w]; ok {
			n++
		}
	}
	return n
}

func containsAny(words map[string]struct{}, candidates []string) bool {
	for _, c := range candidates {
		if _, ok := words[c]; ok {
			return true
		}
	}
	return false
}
