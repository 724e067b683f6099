package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harun/radbridge/internal/observability"
	"github.com/harun/radbridge/internal/tracing"
	"github.com/harun/radbridge/pkg/a2a"
	"github.com/harun/radbridge/pkg/agentserver"
	"github.com/harun/radbridge/pkg/llm"
	"github.com/harun/radbridge/pkg/memory"
	"github.com/rs/zerolog"
)

const defaultAgentName = "radbridge-agent"

// InitRequest describes the agent the front-end wants
type InitRequest struct {
	Name         string           `json:"name,omitempty"`
	Description  string           `json:"description,omitempty"`
	Model        llm.Config       `json:"model"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	SystemPrompt string           `json:"systemPrompt,omitempty"`
	MaxSteps     int              `json:"maxSteps,omitempty"`
}

// ChatRequest is one user message for the agent
type ChatRequest struct {
	Message   string `json:"message"`
	ContextID string `json:"contextId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
}

func (r ChatRequest) params() (a2a.MessageSendParams, error) {
	if strings.TrimSpace(r.Message) == "" {
		return a2a.MessageSendParams{}, errors.New("message is required")
	}
	return a2a.MessageSendParams{Message: a2a.NewUserMessage(r.Message, r.ContextID, r.TaskID)}, nil
}

// DefaultChatTimeout bounds a blocking chat, including every tool call the
// agent makes while answering it
const DefaultChatTimeout = 10 * time.Minute

// ServiceConfig configures a Service
type ServiceConfig struct {
	// Notifier delivers tool requests to the front-end
	Notifier Notifier
	// Sink receives streamed chat events
	Sink EventSink
	// Supervisor configures agent startup; its Logger is replaced by Logger
	Supervisor SupervisorConfig
	// ToolTimeout bounds each front-end tool call; see ToolCallConfig
	ToolTimeout time.Duration
	// ChatTimeout bounds one blocking Chat; zero selects DefaultChatTimeout
	// and a negative value disables the bound
	ChatTimeout time.Duration
	// NewModel builds the model for InitAgent; defaults to llm.New
	NewModel llm.Factory
	Logger   zerolog.Logger
}

// Service is the bridge between the front-end and the agent of one session
type Service struct {
	session    *SessionState
	tools      *ToolCallBridge
	supervisor *Supervisor
	relay      *StreamRelay
	sink        EventSink
	newModel    llm.Factory
	chatTimeout time.Duration
	logger      zerolog.Logger

	// serializes InitAgent and Shutdown
	lifecycle sync.Mutex
}

// NewService creates a service with an empty session
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Sink == nil {
		return nil, errors.New("event sink is required")
	}
	if cfg.NewModel == nil {
		cfg.NewModel = llm.New
	}
	cfg.Supervisor.Logger = cfg.Logger

	session := NewSessionState()
	tools, err := NewToolCallBridge(ToolCallConfig{
		Table:    session.Table(),
		Notifier: cfg.Notifier,
		Timeout:  cfg.ToolTimeout,
		Logger:   cfg.Logger.With().Str("component", "tool_bridge").Logger(),
	})
	if err != nil {
		return nil, err
	}

	chatTimeout := cfg.ChatTimeout
	if chatTimeout == 0 {
		chatTimeout = DefaultChatTimeout
	}

	return &Service{
		session:     session,
		tools:       tools,
		supervisor:  NewSupervisor(cfg.Supervisor),
		relay:       NewStreamRelay(cfg.Logger),
		sink:        cfg.Sink,
		newModel:    cfg.NewModel,
		chatTimeout: chatTimeout,
		logger:      cfg.Logger.With().Str("component", "bridge").Logger(),
	}, nil
}

// Session returns the session state
func (s *Service) Session() *SessionState {
	return s.session
}

// InitAgent starts an agent for req and installs it, replacing any agent
// already running. The returned card describes the new agent.
func (s *Service) InitAgent(ctx context.Context, req InitRequest) (*a2a.AgentCard, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	logger := tracing.LoggerFromContext(ctx, s.logger)

	name := req.Name
	if name == "" {
		name = defaultAgentName
	}

	tools := make([]agentserver.Tool, 0, len(req.Tools))
	for _, def := range req.Tools {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		tools = append(tools, NewFrontendTool(def, s.tools))
	}

	if err := req.Model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	model, err := s.newModel(req.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	mem := memory.NewManager(memory.Config{Logger: s.logger})
	srv, err := agentserver.New(agentserver.Config{
		Name:         name,
		Description:  req.Description,
		Model:        model,
		Provider:     string(req.Model.Provider),
		Tools:        tools,
		Memory:       mem,
		SystemPrompt: req.SystemPrompt,
		MaxSteps:     req.MaxSteps,
		Logger:       s.logger,
	})
	if err != nil {
		return nil, err
	}

	if s.session.Initialized() {
		logger.Info().Msg("Replacing running agent")
		if err := s.session.Teardown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Previous agent did not stop cleanly")
		}
	}

	handle, err := s.supervisor.Start(ctx, srv)
	if err != nil {
		observability.RecordSessionAudit(ctx, "init", name, "failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	if err := s.session.Install(handle, mem); err != nil {
		_ = handle.Close(context.Background())
		return nil, err
	}

	observability.RecordSessionAudit(ctx, "init", name, "success", map[string]interface{}{
		"provider": string(req.Model.Provider),
		"model":    req.Model.Model,
		"tools":    len(tools),
		"base_url": handle.BaseURL,
	})
	logger.Info().
		Str("agent", name).
		Str("provider", string(req.Model.Provider)).
		Int("tools", len(tools)).
		Msg("Agent initialized")

	return handle.Card, nil
}

// Chat sends a message and waits for the finished task, for at most the
// configured chat timeout
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*a2a.Task, error) {
	params, err := req.params()
	if err != nil {
		return nil, err
	}
	handle, err := s.session.Handle()
	if err != nil {
		return nil, err
	}

	if s.chatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.chatTimeout)
		defer cancel()
	}

	task, err := handle.Client.SendMessage(ctx, params)
	if err != nil {
		return nil, &TransportError{Op: "send message", Err: err}
	}
	return task, nil
}

// StreamChat starts relaying the agent's events for req to the event sink
// and returns without waiting for them
func (s *Service) StreamChat(ctx context.Context, req ChatRequest) (*StreamSession, error) {
	params, err := req.params()
	if err != nil {
		return nil, err
	}
	handle, err := s.session.Handle()
	if err != nil {
		return nil, err
	}
	return s.relay.Relay(ctx, handle.Client, params, s.sink)
}

// SubmitToolOutput delivers the front-end's result for requestID
func (s *Service) SubmitToolOutput(ctx context.Context, requestID string, result interface{}, isError bool) error {
	return s.tools.Fulfill(ctx, requestID, OutcomeFromSubmission(result, isError))
}

// SearchMemory searches the agent memory. Non-positive limit selects the
// default.
func (s *Service) SearchMemory(ctx context.Context, query string, limit int, minScore float64) ([]memory.SearchResult, error) {
	mem, err := s.session.Memory()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = memory.DefaultSearchLimit
	}
	return mem.Search(ctx, query, &memory.SearchOptions{Limit: limit, MinScore: minScore})
}

// SaveMemory stores text in the agent memory and returns its id
func (s *Service) SaveMemory(ctx context.Context, text string, metadata map[string]interface{}) (string, error) {
	mem, err := s.session.Memory()
	if err != nil {
		return "", err
	}
	return mem.Add(ctx, memory.Content{Text: text, Source: "frontend", Metadata: metadata})
}

// DeleteMemory removes a memory entry and reports whether it existed
func (s *Service) DeleteMemory(ctx context.Context, id string) (bool, error) {
	mem, err := s.session.Memory()
	if err != nil {
		return false, err
	}
	return mem.Delete(ctx, id)
}

// ListTasks lists the agent's tasks, optionally only those of contextID
func (s *Service) ListTasks(ctx context.Context, contextID string) ([]a2a.Task, error) {
	handle, err := s.session.Handle()
	if err != nil {
		return nil, err
	}
	tasks, err := handle.Client.ListTasks(ctx, a2a.ListTasksParams{ContextID: contextID})
	if err != nil {
		return nil, &TransportError{Op: "list tasks", Err: err}
	}
	return tasks, nil
}

// GetTask returns one task, trimming its history to historyLength when set
func (s *Service) GetTask(ctx context.Context, taskID string, historyLength *int) (*a2a.Task, error) {
	handle, err := s.session.Handle()
	if err != nil {
		return nil, err
	}
	task, err := handle.Client.GetTask(ctx, a2a.TaskQueryParams{ID: taskID, HistoryLength: historyLength})
	if err != nil {
		return nil, &TransportError{Op: "get task", Err: err}
	}
	return task, nil
}

// CancelTask stops a running task
func (s *Service) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	handle, err := s.session.Handle()
	if err != nil {
		return nil, err
	}
	task, err := handle.Client.CancelTask(ctx, a2a.TaskIDParams{ID: taskID})
	if err != nil {
		return nil, &TransportError{Op: "cancel task", Err: err}
	}
	return task, nil
}

// Shutdown stops every stream and the running agent
func (s *Service) Shutdown(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.relay.Close()
	if err := s.session.Teardown(ctx); err != nil {
		return fmt.Errorf("agent shutdown: %w", err)
	}
	s.logger.Info().Msg("Bridge shut down")
	return nil
}
