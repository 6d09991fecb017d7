package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3\n")
	assert.Contains(t, buf.String(), "v1.2.3")
}

func TestNewRenderer(t *testing.T) {
	render := NewRenderer()
	out, err := render("**bold** text")
	require.NoError(t, err)
	assert.Contains(t, out, "bold")
	assert.Contains(t, out, "text")
}
