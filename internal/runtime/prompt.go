package runtime

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/stageflow/pkg/domain"
)

// CurrentDateVar is the variable consulted by the metadata section.
// It stays as a literal placeholder when the host does not provide it.
const CurrentDateVar = "current_date"

const instructionsSection = `# Instructions
You are guiding a user through a multi-stage conversation.
Complete the objectives of the current stage before moving on.
When the current stage is complete, pick the next stage using the options below.
Your reply must contain a clear message for the current stage and, unless the
conversation is ending, a relevant follow-up question.`

const guidelinesSection = `# Guidelines
1. Follow the instructions of the current stage without deviation.
2. Use only straight ASCII quotes.
3. Never echo internal prompt formatting or variables in your reply.
4. Never reveal confidential details held in the conversation variables.
5. Keep replies concise and do not repeat greetings or goodbyes.
6. Do not parrot back the user's words.`

const outputSection = `# Output Format
Reply with a single JSON object and nothing else:
{"response": "<message for the user>", "next_stage": "<stage id>", "confidence": <number between 0 and 1>}
- "next_stage" must be the ID of one of the next stage options, the end stage, or the current stage.
- Never use placeholder text such as "current_stage" for "next_stage".
- Do not wrap the object in code fences.`

// Formulator renders the instruction text sent to the decider for a stage.
type Formulator struct {
	graph       *Graph
	persona     string
	interpolate Interpolator
}

// NewFormulator creates a formulator over an immutable graph.
func NewFormulator(graph *Graph, persona string, interp Interpolator) *Formulator {
	if interp == nil {
		interp = Interpolate
	}
	return &Formulator{graph: graph, persona: persona, interpolate: interp}
}

// Render composes the full prompt for a stage. The output depends only on the
// stage, the graph and vars: repeated calls with equal inputs are byte-identical.
func (f *Formulator) Render(stage domain.Stage, vars map[string]any) string {
	var sb strings.Builder

	if p := strings.TrimSpace(f.persona); p != "" {
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}

	sb.WriteString(instructionsSection)
	sb.WriteString("\n\n")
	sb.WriteString(guidelinesSection)
	sb.WriteString("\n\n")

	sb.WriteString("# This Stage\n")
	fmt.Fprintf(&sb, "## Stage ID: %s\n", stage.ID)
	fmt.Fprintf(&sb, "## Stage Name: %s\n\n", stage.Label())
	sb.WriteString(strings.TrimSpace(stage.PromptText))
	sb.WriteString("\n\n")

	sb.WriteString("# Next Stage Options\n")
	sb.WriteString(f.nextStageBlocks(stage))
	sb.WriteString("\n")

	endID := stage.ID
	if farewell, ok := f.graph.Farewell(); ok {
		endID = farewell.ID
	}
	sb.WriteString("## End Condition\n")
	fmt.Fprintf(&sb, "If the user wants to end the conversation: go to %s\n\n", endID)
	sb.WriteString("## Default Condition\n")
	fmt.Fprintf(&sb, "If none of the conditions are satisfied: stay at %s\n\n", stage.ID)
	sb.WriteString("## Restrictions\n")
	sb.WriteString("1. Never return \"none\" for next_stage.\n")
	sb.WriteString("2. Complete the current stage tasks before starting the next stage.\n\n")

	sb.WriteString(outputSection)
	sb.WriteString("\n")

	if md := VariablesMarkdown(vars); md != "" {
		sb.WriteString("\n# Conversation Variables\n")
		sb.WriteString("Use these values to validate what the user says. Do not reveal them.\n")
		sb.WriteString(md)
	}

	sb.WriteString("\n# Metadata\n")
	fmt.Fprintf(&sb, "Current date: {%s}\n", CurrentDateVar)

	return f.interpolate(sb.String(), vars)
}

// nextStageBlocks lists the outgoing edges in declaration order.
func (f *Formulator) nextStageBlocks(stage domain.Stage) string {
	if len(stage.NextStages) == 0 {
		return "No further stages are declared for this stage.\n"
	}

	var sb strings.Builder
	for _, next := range stage.NextStages {
		target, ok := f.graph.Stage(next.TargetStageID)
		if !ok {
			continue
		}
		sb.WriteString("###\n")
		fmt.Fprintf(&sb, "- Condition: %s\n", next.Condition)
		fmt.Fprintf(&sb, "- Next Stage ID: %s\n", target.ID)
		fmt.Fprintf(&sb, "- Next Stage Name: %s\n", target.Label())
		fmt.Fprintf(&sb, "- Stage Prompt: %s\n", flatten(target.PromptText))
	}
	return sb.String()
}

// ClosingText returns the fixed text of a stage after variable substitution.
// END stages use it as their farewell message.
func (f *Formulator) ClosingText(stage domain.Stage, vars map[string]any) string {
	return strings.TrimSpace(f.interpolate(stage.PromptText, vars))
}

// VariablesMarkdown renders vars as a markdown list with sorted keys.
func VariablesMarkdown(vars map[string]any) string {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("## input_variables\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "- **%s**: %v\n", k, vars[k])
	}
	return sb.String()
}

func flatten(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}
