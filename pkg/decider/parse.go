package decider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// ErrNoJSON is returned when a model reply holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

// ParseDecision extracts a Decision from raw model output. Code fences and
// surrounding prose are tolerated. Loose typing is accepted, so a confidence of
// "0.8" parses like 0.8, and 85 is read as 85%. A missing confidence defaults
// to domain.DefaultConfidence.
func ParseDecision(raw string) (domain.Decision, error) {
	body := extractJSON(stripFences(raw))
	if body == "" {
		return domain.Decision{}, ErrNoJSON
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return domain.Decision{}, fmt.Errorf("malformed decision JSON: %w", err)
	}

	d := domain.Decision{Confidence: domain.DefaultConfidence}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return domain.Decision{}, err
	}
	if err := dec.Decode(fields); err != nil {
		return domain.Decision{}, fmt.Errorf("malformed decision fields: %w", err)
	}

	d.NextStage = strings.TrimSpace(d.NextStage)
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return domain.Decision{}, err
	}
	return d, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSON returns the first brace-balanced object in s, skipping braces
// inside string literals. It returns "" when none is found.
func extractJSON(s string) string {
	start, depth := -1, 0
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
