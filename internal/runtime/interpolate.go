package runtime

import (
	"fmt"
	"regexp"
)

// Interpolator substitutes variables into rendered prompt text.
type Interpolator func(text string, vars map[string]any) string

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Interpolate replaces {name} placeholders with values from vars.
// Placeholders without a matching variable are kept verbatim, so a stage can be
// rendered before every variable is known. Braces that do not wrap a plain
// identifier (JSON examples, for instance) are left untouched.
func Interpolate(text string, vars map[string]any) string {
	if len(vars) == 0 || text == "" {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := vars[key]
		if !ok {
			return m
		}
		return fmt.Sprint(v)
	})
}
