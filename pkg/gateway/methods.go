package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/harun/radbridge/pkg/a2a"
	"github.com/harun/radbridge/pkg/bridge"
)

// RPC method names
const (
	MethodAgentInit     = "agent.init"
	MethodChatSend      = "chat.send"
	MethodChatStream    = "chat.stream"
	MethodToolsSubmit   = "tools.submit_output"
	MethodMemorySearch  = "memory.search"
	MethodMemorySave    = "memory.save"
	MethodMemoryDelete  = "memory.delete"
	MethodTasksList     = "tasks.list"
	MethodTasksGet      = "tasks.get"
	MethodTasksCancel   = "tasks.cancel"
	MethodGatewayPing   = "gateway.ping"
	MethodGatewayStatus = "gateway.status"
)

// SubmitToolOutputParams is the front-end's answer to a tool request
type SubmitToolOutputParams struct {
	RequestID string      `json:"requestId"`
	Result    interface{} `json:"result"`
	IsError   bool        `json:"isError,omitempty"`
}

// MemorySearchParams selects memory entries
type MemorySearchParams struct {
	Query    string  `json:"query"`
	Limit    int     `json:"limit,omitempty"`
	MinScore float64 `json:"minScore,omitempty"`
}

// MemorySaveParams stores one memory entry
type MemorySaveParams struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MemoryDeleteParams names the entry to remove
type MemoryDeleteParams struct {
	ID string `json:"id"`
}

// TasksListParams filters tasks by conversation
type TasksListParams struct {
	ContextID string `json:"contextId,omitempty"`
}

// TaskParams names one task
type TaskParams struct {
	TaskID        string `json:"taskId"`
	HistoryLength *int   `json:"historyLength,omitempty"`
}

func (s *Server) registerBridgeMethods() {
	methods := map[string]RequestHandler{
		MethodAgentInit:     s.handleAgentInit,
		MethodChatSend:      s.handleChatSend,
		MethodChatStream:    s.handleChatStream,
		MethodToolsSubmit:   s.handleToolsSubmit,
		MethodMemorySearch:  s.handleMemorySearch,
		MethodMemorySave:    s.handleMemorySave,
		MethodMemoryDelete:  s.handleMemoryDelete,
		MethodTasksList:     s.handleTasksList,
		MethodTasksGet:      s.handleTasksGet,
		MethodTasksCancel:   s.handleTasksCancel,
		MethodGatewayPing:   s.handlePing,
		MethodGatewayStatus: s.handleStatus,
	}
	for name, handler := range methods {
		_ = s.router.RegisterMethod(name, handler)
	}
}

func (s *Server) handleAgentInit(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var req bridge.InitRequest
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	card, err := s.service.InitAgent(ctx, req)
	if err != nil {
		return nil, bridgeError(err)
	}
	return card, nil
}

func (s *Server) handleChatSend(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var req bridge.ChatRequest
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	task, err := s.service.Chat(ctx, req)
	if err != nil {
		return nil, bridgeError(err)
	}
	return task, nil
}

func (s *Server) handleChatStream(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var req bridge.ChatRequest
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	sess, err := s.service.StreamChat(ctx, req)
	if err != nil {
		return nil, bridgeError(err)
	}
	return map[string]interface{}{"streamId": sess.ID}, nil
}

func (s *Server) handleToolsSubmit(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params SubmitToolOutputParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.RequestID == "" {
		return nil, invalidParams("requestId is required")
	}
	if err := s.service.SubmitToolOutput(ctx, params.RequestID, params.Result, params.IsError); err != nil {
		return nil, bridgeError(err)
	}
	return map[string]interface{}{"accepted": true}, nil
}

func (s *Server) handleMemorySearch(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params MemorySearchParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	results, err := s.service.SearchMemory(ctx, params.Query, params.Limit, params.MinScore)
	if err != nil {
		return nil, bridgeError(err)
	}
	return map[string]interface{}{"results": results}, nil
}

func (s *Server) handleMemorySave(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params MemorySaveParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.Text) == "" {
		return nil, invalidParams("text is required")
	}
	id, err := s.service.SaveMemory(ctx, params.Text, params.Metadata)
	if err != nil {
		return nil, bridgeError(err)
	}
	return map[string]interface{}{"id": id}, nil
}

func (s *Server) handleMemoryDelete(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params MemoryDeleteParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, invalidParams("id is required")
	}
	deleted, err := s.service.DeleteMemory(ctx, params.ID)
	if err != nil {
		return nil, bridgeError(err)
	}
	return map[string]interface{}{"deleted": deleted}, nil
}

func (s *Server) handleTasksList(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params TasksListParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	tasks, err := s.service.ListTasks(ctx, params.ContextID)
	if err != nil {
		return nil, bridgeError(err)
	}
	if tasks == nil {
		tasks = []a2a.Task{}
	}
	return map[string]interface{}{"tasks": tasks}, nil
}

func (s *Server) handleTasksGet(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params TaskParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.TaskID == "" {
		return nil, invalidParams("taskId is required")
	}
	task, err := s.service.GetTask(ctx, params.TaskID, params.HistoryLength)
	if err != nil {
		return nil, bridgeError(err)
	}
	return task, nil
}

func (s *Server) handleTasksCancel(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params TaskParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.TaskID == "" {
		return nil, invalidParams("taskId is required")
	}
	task, err := s.service.CancelTask(ctx, params.TaskID)
	if err != nil {
		return nil, bridgeError(err)
	}
	return task, nil
}

func (s *Server) handlePing(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"pong": true,
		"time": time.Now().UnixMilli(),
	}, nil
}

func (s *Server) handleStatus(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	session := s.service.Session()
	status := map[string]interface{}{
		"initialized":  session.Initialized(),
		"pendingTools": session.Table().Len(),
		"clients":      s.clients.Len(),
	}
	if handle, err := session.Handle(); err == nil {
		status["agentUrl"] = handle.BaseURL
		status["agent"] = handle.Card.Name
	}
	return status, nil
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &RPCError{Code: InvalidParams, Message: "Invalid params", Data: err.Error()}
	}
	return nil
}

func invalidParams(message string) *RPCError {
	return &RPCError{Code: InvalidParams, Message: message}
}

// bridgeError maps bridge failures onto RPC error codes
func bridgeError(err error) error {
	var startupErr *bridge.StartupError
	var a2aErr *a2a.JSONRPCError

	switch {
	case errors.Is(err, bridge.ErrRequestNotFound):
		return &RPCError{Code: RequestNotFound, Message: "RequestNotFound"}
	case errors.Is(err, bridge.ErrNotInitialized):
		return &RPCError{Code: NotInitialized, Message: err.Error()}
	case errors.As(err, &startupErr):
		return &RPCError{
			Code:    StartupFailed,
			Message: err.Error(),
			Data:    map[string]interface{}{"kind": startupErr.Kind, "attempts": startupErr.Attempts},
		}
	case errors.As(err, &a2aErr):
		switch a2aErr.Code {
		case a2a.ErrCodeTaskNotFound, a2a.ErrCodeNotCancelable, a2a.ErrCodeInvalidParams:
			return &RPCError{Code: InvalidParams, Message: a2aErr.Message}
		}
		return &RPCError{Code: InternalError, Message: err.Error()}
	case isTransport(err):
		return &RPCError{Code: InternalError, Message: err.Error()}
	default:
		// anything else is input the bridge rejected
		return &RPCError{Code: InvalidParams, Message: err.Error()}
	}
}

func isTransport(err error) bool {
	var transportErr *bridge.TransportError
	return errors.As(err, &transportErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
