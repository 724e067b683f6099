package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/harun/radbridge/internal/tracing"
	"github.com/rs/zerolog"
)

// Audit event kinds
const (
	AuditTool     = "tool"
	AuditSession  = "session"
	AuditSecurity = "security"
)

// AuditEvent is one line of the audit trail
type AuditEvent struct {
	Kind      string
	Actor     string // tool request id, agent name or client id
	Action    string // e.g. "tool_request:lookup", "init", "auth"
	Status    string
	Metadata  map[string]interface{}
	Timestamp time.Time
	TraceID   string
}

// AuditLogger appends audit events as JSON lines
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	closer io.Closer
}

var (
	auditMu   sync.Mutex
	auditInst *AuditLogger
)

// GetAuditLogger returns the process audit logger, writing to Stderr until
// InitAuditLogger or SetAuditLogger is called
func GetAuditLogger() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = &AuditLogger{logger: zerolog.New(os.Stderr)}
	}
	return auditInst
}

// InitAuditLogger sends audit events to the file at path, closing any file
// opened by an earlier call
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	install(&AuditLogger{logger: zerolog.New(file), closer: file})
	return nil
}

// SetAuditLogger sends audit events to logger
func SetAuditLogger(logger zerolog.Logger) {
	install(&AuditLogger{logger: logger})
}

func install(next *AuditLogger) {
	auditMu.Lock()
	prev := auditInst
	auditInst = next
	auditMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

// Record writes event, stamping the time and the trace id from ctx
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.TraceID == "" {
		event.TraceID = tracing.GetTraceID(ctx)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("timestamp", event.Timestamp).
		Str("event_type", event.Kind).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status)
	if event.TraceID != "" {
		entry = entry.Str("trace_id", event.TraceID)
	}
	if len(event.Metadata) > 0 {
		entry = entry.Interface("metadata", event.Metadata)
	}
	entry.Send()
}

// Close closes the audit file, if any. Later events are dropped.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	a.logger = zerolog.Nop()
	return err
}

func record(ctx context.Context, kind, actor, action, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Kind:     kind,
		Actor:    actor,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordToolAudit records a front-end tool request and how it ended
func RecordToolAudit(ctx context.Context, toolName, requestID, status string, metadata map[string]interface{}) {
	record(ctx, AuditTool, requestID, "tool_request:"+toolName, status, metadata)
}

// RecordSecurityAudit records gateway authentication outcomes
func RecordSecurityAudit(ctx context.Context, action, actor, status string, metadata map[string]interface{}) {
	record(ctx, AuditSecurity, actor, action, status, metadata)
}

// RecordSessionAudit records agent lifecycle changes
func RecordSessionAudit(ctx context.Context, action, agentName, status string, metadata map[string]interface{}) {
	record(ctx, AuditSession, agentName, action, status, metadata)
}
