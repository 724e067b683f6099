package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SessionIDKey is the context key for the agent session ID
	SessionIDKey ContextKey = "session_id"
	// ClientIDKey is the context key for the front-end client ID
	ClientIDKey ContextKey = "client_id"
	// RequestIDKey is the context key for a tool request ID
	RequestIDKey ContextKey = "request_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	SessionID string
	ClientID  string
	RequestID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSessionID adds an agent session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithClientID adds a front-end client ID to the context
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, ClientIDKey, clientID)
}

// WithRequestID adds a tool request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func value(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return value(ctx, TraceIDKey)
}

// GetSessionID retrieves the agent session ID from the context
func GetSessionID(ctx context.Context) string {
	return value(ctx, SessionIDKey)
}

// GetClientID retrieves the front-end client ID from the context
func GetClientID(ctx context.Context) string {
	return value(ctx, ClientIDKey)
}

// GetRequestID retrieves the tool request ID from the context
func GetRequestID(ctx context.Context) string {
	return value(ctx, RequestIDKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		SessionID: GetSessionID(ctx),
		ClientID:  GetClientID(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// Detach returns a background context carrying ctx's tracing values.
// Work that must outlive the request keeps its log correlation this way.
func Detach(ctx context.Context) context.Context {
	detached := context.Background()
	tc := FromContext(ctx)
	if tc.TraceID != "" {
		detached = WithTraceID(detached, tc.TraceID)
	}
	if tc.SessionID != "" {
		detached = WithSessionID(detached, tc.SessionID)
	}
	if tc.ClientID != "" {
		detached = WithClientID(detached, tc.ClientID)
	}
	if tc.RequestID != "" {
		detached = WithRequestID(detached, tc.RequestID)
	}
	return detached
}
