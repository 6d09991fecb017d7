// Package file loads stage graphs from a single JSON or YAML document.
//
// The document is either a list of stage records or an object with a
// "stages" list:
//
//	[
//	  {"id": "s0", "name": "Greeting", "type": "START", "prompt": "...",
//	   "nextStages": [{"nextStageId": "s1", "condition": "..."}]}
//	]
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/stageflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a stage document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported stage config extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}

type document struct {
	Stages []domain.Stage `json:"stages" yaml:"stages"`
}

// Loader reads stages from a file on every LoadStages call.
type Loader struct {
	path string
}

// New creates a loader for a .json, .yaml or .yml file.
func New(path string) (*Loader, error) {
	if _, err := FormatFromPath(path); err != nil {
		return nil, err
	}
	return &Loader{path: path}, nil
}

// Path returns the configured file path.
func (l *Loader) Path() string { return l.path }

// LoadStages implements ports.StageLoader.
func (l *Loader) LoadStages(ctx context.Context) ([]domain.Stage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage config: %w", err)
	}
	format, _ := FormatFromPath(l.path)
	stages, err := Decode(raw, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	return stages, nil
}

// Decode parses a stage document. Malformed input is reported as a
// *domain.ConfigError.
func Decode(raw []byte, format Format) ([]domain.Stage, error) {
	var (
		stages []domain.Stage
		err    error
	)
	switch format {
	case FormatJSON:
		stages, err = decodeJSON(raw)
	case FormatYAML:
		stages, err = decodeYAML(raw)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, &domain.ConfigError{Problems: []string{err.Error()}}
	}

	for i := range stages {
		stages[i].NextStages = stripSynthetic(stages[i].NextStages)
	}
	return stages, nil
}

func decodeJSON(raw []byte) ([]domain.Stage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("malformed JSON: %w", err)
		}
		return doc.Stages, nil
	}
	var stages []domain.Stage
	if err := json.Unmarshal(trimmed, &stages); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	return stages, nil
}

func decodeYAML(raw []byte) ([]domain.Stage, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("malformed YAML: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.MappingNode {
		var doc document
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("malformed YAML: %w", err)
		}
		return doc.Stages, nil
	}
	var stages []domain.Stage
	if err := root.Decode(&stages); err != nil {
		return nil, fmt.Errorf("malformed YAML: %w", err)
	}
	return stages, nil
}

// stripSynthetic drops edges flagged as synthetic, so a dumped graph can be
// loaded again without doubling GLOBAL edges.
func stripSynthetic(edges []domain.NextStage) []domain.NextStage {
	if edges == nil {
		return nil
	}
	out := edges[:0]
	for _, e := range edges {
		if !e.Synthetic {
			out = append(out, e)
		}
	}
	return out
}
