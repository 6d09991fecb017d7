package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/stageflow"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/ports"
	"github.com/aretw0/stageflow/pkg/runner"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Server exposes a ports.ConversationEngine over HTTP.
type Server struct {
	Engine  ports.ConversationEngine
	Streams *StreamManager

	logger  *slog.Logger
	metrics http.Handler
	version string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion overrides the version reported by GET /info.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// TurnRequest is the body of POST /conversations/{id}/turns.
// When Decision is set the decider is bypassed.
type TurnRequest struct {
	Text     string           `json:"text"`
	Decision *domain.Decision `json:"decision,omitempty"`
}

// StartRequest is the optional body of POST /conversations.
type StartRequest struct {
	ConversationID string `json:"conversation_id"`
}

// TurnEvent is pushed to SSE subscribers after each turn.
type TurnEvent struct {
	ConversationID  string            `json:"conversation_id"`
	PreviousStageID string            `json:"previous_stage_id"`
	StageID         string            `json:"stage_id"`
	Status          domain.TurnStatus `json:"status"`
	Reply           string            `json:"reply"`
	Error           string            `json:"error,omitempty"`

	// Changed lists "stage", "status" and "reply" as they apply.
	Changed []string `json:"changed"`
}

// NewServer creates a Server for the engine.
func NewServer(engine ports.ConversationEngine, opts ...Option) *Server {
	s := &Server{
		Engine:  engine,
		logger:  slog.Default(),
		version: stageflow.Version,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine ports.ConversationEngine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Get("/stages", s.ListStages)
	r.Get("/stages/{stage}/prompt", s.GetPrompt)

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", s.StartConversation)
		r.Get("/{id}", s.GetConversation)
		r.Delete("/{id}", s.EndConversation)
		r.Post("/{id}/turns", s.SubmitTurn)
		r.Get("/{id}/events", s.SubscribeEvents)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":     "stageflow-http",
		"version": strings.TrimSpace(s.version),
		"stages":  len(s.Engine.Stages()),
	})
}

// ListStages handles the GET /stages request.
func (s *Server) ListStages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Stages())
}

// GetPrompt handles the GET /stages/{stage}/prompt request.
func (s *Server) GetPrompt(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "stage")
	prompt, err := s.Engine.RenderPrompt(ref)
	if err != nil {
		s.writeError(w, "RenderPrompt", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"stage": ref, "prompt": prompt})
}

// StartConversation handles the POST /conversations request.
func (s *Server) StartConversation(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			s.logger.Warn("StartConversation: Invalid request body", "err", err)
			return
		}
	}
	if body.ConversationID == "" {
		body.ConversationID = uuid.NewString()
	}

	sess, err := s.Engine.CreateConversation(r.Context(), body.ConversationID)
	if err != nil {
		s.writeError(w, "StartConversation", err)
		return
	}
	s.logger.Info("Conversation started", "conversation_id", sess.ConversationID, "stage_id", sess.ActiveStageID)
	s.writeJSON(w, http.StatusCreated, sess)
}

// GetConversation handles the GET /conversations/{id} request.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Engine.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "GetConversation", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// EndConversation handles the DELETE /conversations/{id} request.
func (s *Server) EndConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Engine.Session(r.Context(), id); err != nil {
		s.writeError(w, "EndConversation", err)
		return
	}
	if err := s.Engine.EndConversation(r.Context(), id); err != nil {
		s.writeError(w, "EndConversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitTurn handles the POST /conversations/{id}/turns request.
func (s *Server) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("SubmitTurn: Invalid request body", "err", err)
		return
	}

	text, err := runner.SanitizeInput(strings.TrimSpace(body.Text))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("SubmitTurn: Input rejected", "err", err, "size", len(body.Text))
		return
	}

	before, err := s.Engine.Session(r.Context(), id)
	if err != nil {
		s.writeError(w, "SubmitTurn", err)
		return
	}

	var sess *domain.ConversationSession
	if body.Decision != nil {
		sess, err = s.Engine.ApplyDecision(r.Context(), id, text, *body.Decision)
	} else {
		sess, err = s.Engine.Converse(r.Context(), id, text)
	}
	if err != nil {
		s.writeError(w, "SubmitTurn", err)
		return
	}

	s.broadcast(before, sess)
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) broadcast(before, after *domain.ConversationSession) {
	ev := TurnEvent{
		ConversationID:  after.ConversationID,
		PreviousStageID: before.ActiveStageID,
		StageID:         after.ActiveStageID,
		Status:          after.Status,
		Reply:           after.LastAssistantMessage(),
		Error:           after.LastError,
		Changed:         []string{},
	}
	if before.ActiveStageID != after.ActiveStageID {
		ev.Changed = append(ev.Changed, "stage")
	}
	if before.Status != after.Status {
		ev.Changed = append(ev.Changed, "status")
	}
	if ev.Reply != "" {
		ev.Changed = append(ev.Changed, "reply")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("Failed to encode turn event", "err", err)
		return
	}
	s.Streams.Broadcast(after.ConversationID, string(payload))
}

// SubscribeEvents handles the GET /conversations/{id}/events request (SSE).
// The optional watch query parameter keeps only events whose Changed list
// intersects it, e.g. watch=stage,status.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.Engine.Session(r.Context(), id); err != nil {
		s.writeError(w, "SubscribeEvents", err)
		return
	}

	var watch []string
	if raw := r.URL.Query().Get("watch"); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			watch = append(watch, strings.TrimSpace(field))
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()
	s.logger.Info("SSE: Subscribing to conversation", "conversation_id", id)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "conversation_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watch) > 0 && !matchesWatch(msg, watch) {
				continue
			}
			fmt.Fprintf(w, "event: turn\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func matchesWatch(msg string, watch []string) bool {
	var ev TurnEvent
	if err := json.Unmarshal([]byte(msg), &ev); err != nil {
		return true
	}
	for _, field := range watch {
		for _, changed := range ev.Changed {
			if field == changed {
				return true
			}
		}
	}
	return false
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrResolution):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConversationEnded), errors.Is(err, domain.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, runner.ErrInputTooLarge), errors.Is(err, runner.ErrInvalidUTF8):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err, "status", code)
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
