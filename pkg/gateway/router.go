package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/radbridge/internal/observability"
)

// RPCRouter dispatches JSON-RPC requests to registered handlers
type RPCRouter struct {
	mu      sync.RWMutex
	methods map[string]RequestHandler
	replay  *replayCache
}

// NewRPCRouter creates an empty router
func NewRPCRouter() *RPCRouter {
	return &RPCRouter{
		methods: make(map[string]RequestHandler),
		replay:  newReplayCache(defaultReplayTTL),
	}
}

// RegisterMethod binds handler to name, replacing any earlier binding
func (r *RPCRouter) RegisterMethod(name string, handler RequestHandler) error {
	switch {
	case name == "":
		return fmt.Errorf("method name cannot be empty")
	case handler == nil:
		return fmt.Errorf("handler for %s cannot be nil", name)
	}

	r.mu.Lock()
	r.methods[name] = handler
	r.mu.Unlock()
	return nil
}

// HasMethod reports whether name is registered
func (r *RPCRouter) HasMethod(name string) bool {
	_, ok := r.handler(name)
	return ok
}

// GetMethods returns the registered method names, sorted
func (r *RPCRouter) GetMethods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *RPCRouter) handler(name string) (RequestHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.methods[name]
	return h, ok
}

// ParseRequest decodes one frame. An id and a method are required; a
// missing jsonrpc version defaults to 2.0.
func (r *RPCRouter) ParseRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}
	if req.ID == "" {
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	}
	if req.Method == "" {
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	}
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	return &req, nil
}

// RouteRequest runs the handler for req. A repeat of a successful request
// with the same idempotency key is answered from the replay cache.
func (r *RPCRouter) RouteRequest(ctx context.Context, req *RPCRequest) *RPCResponse {
	if req == nil {
		return errorResponse("", &RPCError{Code: InvalidRequest, Message: "invalid request"})
	}

	key := replayKey(req.Method, req.IdempotencyKey)
	if key != "" {
		if resp, ok := r.replay.lookup(key, req.ID); ok {
			return resp
		}
	}

	handler, ok := r.handler(req.Method)
	if !ok {
		return errorResponse(req.ID, &RPCError{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		})
	}

	start := time.Now()
	result, err := handler(ctx, req.Params)
	observability.RecordRPCRequest(req.Method, time.Since(start), err == nil)
	if err != nil {
		return errorResponse(req.ID, asRPCError(err))
	}

	resp := &RPCResponse{ID: req.ID, JSONRPC: "2.0", Result: result}
	if key != "" {
		r.replay.store(key, *resp)
	}
	return resp
}

func asRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &RPCError{Code: InternalError, Message: err.Error()}
}

func errorResponse(id string, rpcErr *RPCError) *RPCResponse {
	return &RPCResponse{ID: id, JSONRPC: "2.0", Error: rpcErr}
}
