package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/stageflow/pkg/domain"
)

// GraphOverlay contains conversation state to visualize on the graph.
type GraphOverlay struct {
	VisitedStages []string
	ActiveStage   string
}

// GenerateMermaid produces a Mermaid flowchart from a stage list.
// Shapes follow the stage type:
//   - START: ((Circle))
//   - END: ([Stadium])
//   - GLOBAL: {{Hexagon}}
//   - NORMAL: [Rectangle]
//
// Synthetic GLOBAL edges are dotted. Pass hideSynthetic to leave them out,
// which keeps large graphs readable.
func GenerateMermaid(stages []domain.Stage, overlay *GraphOverlay, hideSynthetic bool) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, stage := range stages {
		safeID := sanitizeMermaidID(stage.ID)

		opener, closer := "[", "]"
		switch stage.Type {
		case domain.StageStart:
			opener, closer = "((", "))"
		case domain.StageEnd:
			opener, closer = "([", "])"
		case domain.StageGlobal:
			opener, closer = "{{", "}}"
		}

		label := stage.ID
		if stage.Name != "" && stage.Name != stage.ID {
			label = fmt.Sprintf("%s <br/> %s", stage.Name, stage.ID)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(label), closer)

		for _, edge := range stage.NextStages {
			if edge.Synthetic && hideSynthetic {
				continue
			}
			safeTo := sanitizeMermaidID(edge.TargetStageID)

			arrow := "-->"
			if edge.Synthetic {
				arrow = "-.->"
			}
			if edge.Condition != "" {
				cond := escapeLabel(edge.Condition)
				arrow = fmt.Sprintf("-- \"%s\" -->", cond)
				if edge.Synthetic {
					arrow = fmt.Sprintf("-. \"%s\" .->", cond)
				}
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, safeTo)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedStages {
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.ActiveStage != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.ActiveStage))
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.Join(strings.Fields(s), " ")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
