package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithSessionID(ctx, "session-1")
	ctx = WithClientID(ctx, "client-1")
	ctx = WithRequestID(ctx, "request-1")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" || tc.SessionID != "session-1" || tc.ClientID != "client-1" || tc.RequestID != "request-1" {
		t.Errorf("unexpected trace context: %+v", tc)
	}
}

func TestGetEmpty(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" {
		t.Error("expected empty trace ID")
	}
	if GetRequestID(ctx) != "" {
		t.Error("expected empty request ID")
	}
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())

	if GetTraceID(ctx) == "" {
		t.Error("trace ID not generated")
	}
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	parent = WithTraceID(parent, "trace-detached")
	parent = WithSessionID(parent, "session-detached")
	cancel()

	detached := Detach(parent)

	if detached.Err() != nil {
		t.Error("detached context should not inherit cancellation")
	}
	if GetTraceID(detached) != "trace-detached" {
		t.Error("trace ID not carried over")
	}
	if GetSessionID(detached) != "session-detached" {
		t.Error("session ID not carried over")
	}
}

func TestLoggerFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-xyz")
	ctx = WithRequestID(ctx, "req-123")

	var buf bytes.Buffer
	logger := LoggerFromContext(ctx, zerolog.New(&buf))
	logger.Info().Msg("test")

	output := buf.String()
	if !strings.Contains(output, "trace-xyz") {
		t.Error("trace ID not in log output")
	}
	if !strings.Contains(output, "req-123") {
		t.Error("request ID not in log output")
	}
}

func TestLoggerFromContextWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("plain")

	if strings.Contains(buf.String(), "trace_id") {
		t.Error("unexpected trace_id field")
	}
}
