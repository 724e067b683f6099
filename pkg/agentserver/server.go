package agentserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harun/radbridge/pkg/a2a"
	"github.com/harun/radbridge/pkg/llm"
	"github.com/harun/radbridge/pkg/memory"
	"github.com/rs/zerolog"
)

const (
	protocolVersion = "0.3.0"
	shutdownTimeout = 5 * time.Second
	chatSkillID     = "chat"
)

// Config configures an agent server
type Config struct {
	Name         string
	Description  string
	Version      string
	Model        llm.Model
	Provider     string
	Tools        []Tool
	Memory       *memory.Manager
	SystemPrompt string
	MaxSteps     int
	Logger       zerolog.Logger
}

// Server is the in-process agent server
type Server struct {
	cfg    Config
	store  *TaskStore
	skill  *ChatSkill
	memory *memory.Manager
	router *chi.Mux
	logger zerolog.Logger
}

// New creates an agent server
func New(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("agent name is required")
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Memory == nil {
		cfg.Memory = memory.NewManager(memory.Config{Logger: cfg.Logger})
	}

	tools := append([]Tool{}, cfg.Tools...)
	tools = append(tools, MemoryTools(cfg.Memory)...)

	skill, err := NewChatSkill(ChatSkillConfig{
		Model:        cfg.Model,
		Provider:     cfg.Provider,
		Tools:        tools,
		SystemPrompt: cfg.SystemPrompt,
		MaxSteps:     cfg.MaxSteps,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		store:  NewTaskStore(),
		skill:  skill,
		memory: cfg.Memory,
		logger: cfg.Logger.With().Str("component", "agentserver").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(a2a.AgentCardPath, s.handleCard)
	r.Post("/", s.handleRPC)
	s.router = r

	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Memory returns the memory manager the agent uses
func (s *Server) Memory() *memory.Manager {
	return s.memory
}

// Tasks returns the task store
func (s *Server) Tasks() *TaskStore {
	return s.store
}

// Serve listens on addr until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Str("agent", s.cfg.Name).Msg("Agent server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.store.CancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("agent server shutdown: %w", err)
	}

	s.logger.Info().Msg("Agent server stopped")
	return nil
}

// Card returns the agent card advertised at baseURL
func (s *Server) Card(baseURL string) a2a.AgentCard {
	return a2a.AgentCard{
		Name:               s.cfg.Name,
		Description:        s.cfg.Description,
		URL:                baseURL,
		Version:            s.cfg.Version,
		ProtocolVersion:    protocolVersion,
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills: []a2a.AgentSkill{{
			ID:          chatSkillID,
			Name:        "Chat",
			Description: "General conversation using the tools provided by the front-end.",
			Tags:        []string{"chat"},
		}},
	}
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Card("http://"+r.Host))
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req a2a.JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, a2a.NewErrorResponse(nil, a2a.ErrCodeParseError, "parse error: "+err.Error()))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, a2a.NewErrorResponse(req.ID, a2a.ErrCodeInvalidRequest, "invalid request"))
		return
	}

	switch req.Method {
	case a2a.MethodSendMessage:
		writeJSON(w, s.handleSend(r.Context(), req))
	case a2a.MethodStreamMessage:
		s.handleStream(w, r, req)
	case a2a.MethodGetTask:
		writeJSON(w, s.handleGetTask(req))
	case a2a.MethodListTasks:
		writeJSON(w, s.handleListTasks(req))
	case a2a.MethodCancelTask:
		writeJSON(w, s.handleCancelTask(req))
	default:
		writeJSON(w, a2a.NewErrorResponse(req.ID, a2a.ErrCodeMethodNotFound, "method not found: "+req.Method))
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func taskErrorResponse(id interface{}, err error) *a2a.JSONRPCResponse {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return a2a.NewErrorResponse(id, a2a.ErrCodeTaskNotFound, err.Error())
	case errors.Is(err, ErrTaskBusy), errors.Is(err, ErrTaskTerminal):
		return a2a.NewErrorResponse(id, a2a.ErrCodeNotCancelable, err.Error())
	default:
		return a2a.NewErrorResponse(id, a2a.ErrCodeInternal, err.Error())
	}
}
