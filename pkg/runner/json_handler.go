package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
)

// jsonEvent is one line written by JSONHandler.
type jsonEvent struct {
	Type    string `json:"type"`
	Turn    *Turn  `json:"turn,omitempty"`
	Message string `json:"message,omitempty"`
}

// jsonInput is the object form accepted by JSONHandler.Input.
type jsonInput struct {
	Text string `json:"text"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader  *bufio.Reader
	Encoder *json.Encoder

	mu sync.Mutex
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) emit(ev jsonEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(ev)
}

func (h *JSONHandler) Output(ctx context.Context, turn Turn) error {
	return h.emit(jsonEvent{Type: "turn", Turn: &turn})
}

// Input reads one line. A line may be a JSON string, an object with a
// "text" field, or plain text.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	line, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	line = strings.TrimSpace(line)

	text := line
	var quoted string
	var obj jsonInput
	switch {
	case json.Unmarshal([]byte(line), &quoted) == nil:
		text = quoted
	case strings.HasPrefix(line, "{") && json.Unmarshal([]byte(line), &obj) == nil:
		text = obj.Text
	}

	return SanitizeInput(strings.TrimSpace(text))
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.emit(jsonEvent{Type: "system", Message: msg})
}
