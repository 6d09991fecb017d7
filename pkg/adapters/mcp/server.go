package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/stageflow"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/ports"
	"github.com/aretw0/stageflow/pkg/runner"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const stagesURI = "stageflow://stages"

// StagesResponse lists the augmented stage graph.
type StagesResponse struct {
	Stages []domain.Stage `json:"stages" jsonschema_description:"Stages in declaration order, GLOBAL edges included"`
}

// PromptResponse carries a rendered stage prompt.
type PromptResponse struct {
	Stage  string `json:"stage" jsonschema_description:"The stage reference that was resolved"`
	Prompt string `json:"prompt" jsonschema_description:"The fully rendered instruction prompt"`
}

// TurnResponse aligns with the HTTP adapter and provides a unified structure across adapters.
type TurnResponse struct {
	ConversationID string            `json:"conversation_id" jsonschema_description:"The conversation identifier"`
	StageID        string            `json:"stage_id" jsonschema_description:"The active stage after the call"`
	Status         domain.TurnStatus `json:"status" jsonschema_description:"AWAITING_INPUT, CONTINUE, ENDED or ERROR"`
	Reply          string            `json:"reply,omitempty" jsonschema_description:"The assistant reply of the turn"`
	Prompt         string            `json:"prompt,omitempty" jsonschema_description:"The rendered prompt of the active stage, when the conversation continues"`
	Options        []string          `json:"options,omitempty" jsonschema_description:"Stage ids reachable from the active stage"`
}

// Server wraps a conversation engine and exposes it as an MCP Server.
// An agent connected over MCP acts as the decider: it reads the prompt and
// options of the active stage and submits its own reply and next stage.
type Server struct {
	engine    ports.ConversationEngine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.ConversationEngine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("stageflow-mcp", strings.TrimSpace(stageflow.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and shuts it down
// when ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Baggage, Sentry-Trace")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_stages",
		mcp.WithDescription("List every stage of the conversation graph with its allowed next stages."),
		mcp.WithOutputSchema[StagesResponse](),
	), mcp.NewStructuredToolHandler(s.handleListStages))

	s.mcpServer.AddTool(mcp.NewTool("render_prompt",
		mcp.WithDescription("Render the instruction prompt of a stage."),
		mcp.WithString("stage", mcp.Required(), mcp.Description("Stage id, exact name or id prefix")),
		mcp.WithOutputSchema[PromptResponse](),
	), mcp.NewStructuredToolHandler(s.handleRenderPrompt))

	s.mcpServer.AddTool(mcp.NewTool("start_conversation",
		mcp.WithDescription("Start a conversation at the START stage and return its prompt."),
		mcp.WithString("conversation_id", mcp.Description("Conversation id (optional, generated when omitted)")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleStartConversation))

	s.mcpServer.AddTool(mcp.NewTool("submit_turn",
		mcp.WithDescription("Submit the user's utterance together with your reply and the next stage you chose."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation id")),
		mcp.WithString("input", mcp.Required(), mcp.Description("What the user said")),
		mcp.WithString("response", mcp.Required(), mcp.Description("Your reply to the user")),
		mcp.WithString("next_stage", mcp.Required(), mcp.Description("One of the options of the active stage, or its own id to stay")),
		mcp.WithNumber("confidence", mcp.Description("Confidence in [0,1], defaults to 1")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleSubmitTurn))
}

func (s *Server) handleListStages(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StagesResponse, error) {
	return StagesResponse{Stages: s.engine.Stages()}, nil
}

func (s *Server) handleRenderPrompt(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (PromptResponse, error) {
	ref, _ := args["stage"].(string)
	prompt, err := s.engine.RenderPrompt(ref)
	if err != nil {
		return PromptResponse{}, err
	}
	return PromptResponse{Stage: ref, Prompt: prompt}, nil
}

func (s *Server) handleStartConversation(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	id, _ := args["conversation_id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	sess, err := s.engine.StartConversation(ctx, id)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return s.turnResponse(sess), nil
}

func (s *Server) handleSubmitTurn(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TurnResponse, error) {
	id, _ := args["conversation_id"].(string)
	input, _ := args["input"].(string)

	decision := domain.Decision{Confidence: domain.DefaultConfidence}
	decision.Response, _ = args["response"].(string)
	decision.NextStage, _ = args["next_stage"].(string)
	if c, ok := args["confidence"].(float64); ok {
		decision.Confidence = c
	}

	clean, err := runner.SanitizeInput(strings.TrimSpace(input))
	if err != nil {
		s.logger.Warn("MCP SubmitTurn: Input rejected", "err", err, "size", len(input))
		return TurnResponse{}, fmt.Errorf("input rejected: %w", err)
	}

	if _, err := s.engine.Session(ctx, id); err != nil {
		return TurnResponse{}, fmt.Errorf("unknown conversation %q: %w", id, err)
	}

	sess, err := s.engine.ApplyDecision(ctx, id, clean, decision)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("turn failed: %w", err)
	}
	return s.turnResponse(sess), nil
}

func (s *Server) turnResponse(sess *domain.ConversationSession) TurnResponse {
	resp := TurnResponse{
		ConversationID: sess.ConversationID,
		StageID:        sess.ActiveStageID,
		Status:         sess.Status,
		Reply:          sess.LastAssistantMessage(),
	}
	if sess.Ended() {
		return resp
	}

	if prompt, err := s.engine.RenderPrompt(sess.ActiveStageID); err == nil {
		resp.Prompt = prompt
	} else {
		s.logger.Error("MCP: Render failed", "stage_id", sess.ActiveStageID, "err", err)
	}
	for _, stage := range s.engine.Stages() {
		if stage.ID != sess.ActiveStageID {
			continue
		}
		for _, edge := range stage.NextStages {
			resp.Options = append(resp.Options, edge.TargetStageID)
		}
	}
	return resp
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(stagesURI, "Stage Graph",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.engine.Stages())
		if err != nil {
			return nil, fmt.Errorf("failed to encode stages: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      stagesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
