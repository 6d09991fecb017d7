package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the stageflow banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`     _                    __ _`, "#818cf8"},
		{` ___| |_ __ _  __ _  ___ / _| | _____      __`, "#a78bfa"},
		{`/ __| __/ _' |/ _' |/ _ \ |_| |/ _ \ \ /\ / /`, "#c084fc"},
		{`\__ \ || (_| | (_| |  __/  _| | (_) \ V  V /`, "#e879f9"},
		{`|___/\__\__,_|\__, |\___|_| |_|\___/ \_/\_/`, "#f472b6"},
		{`              |___/`, "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, termenv.String("  v"+v).Faint())
	}
	fmt.Fprintln(w)
}
