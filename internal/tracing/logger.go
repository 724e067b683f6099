package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext adds the context's tracing fields to baseLogger
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	if tc.TraceID == "" && tc.SessionID == "" && tc.ClientID == "" && tc.RequestID == "" {
		return baseLogger
	}

	logCtx := baseLogger.With()
	if tc.TraceID != "" {
		logCtx = logCtx.Str("trace_id", tc.TraceID)
	}
	if tc.SessionID != "" {
		logCtx = logCtx.Str("session_id", tc.SessionID)
	}
	if tc.ClientID != "" {
		logCtx = logCtx.Str("client_id", tc.ClientID)
	}
	if tc.RequestID != "" {
		logCtx = logCtx.Str("request_id", tc.RequestID)
	}
	return logCtx.Logger()
}
