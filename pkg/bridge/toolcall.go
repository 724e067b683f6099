package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/harun/radbridge/internal/observability"
	"github.com/harun/radbridge/internal/tracing"
	"github.com/rs/zerolog"
)

// DefaultInvocationTimeout bounds how long a tool invocation waits for the
// front-end
const DefaultInvocationTimeout = 5 * time.Minute

// ToolRequest is the notification sent to the front-end for each invocation
type ToolRequest struct {
	RequestID string                 `json:"requestId"`
	Name      string                 `json:"name"`
	Args      map[string]interface{} `json:"args"`
}

// Notifier delivers tool requests to the front-end
type Notifier interface {
	PublishToolRequest(ctx context.Context, req ToolRequest) error
}

// ToolCallBridge suspends tool invocations until the front-end submits a
// result for them
type ToolCallBridge struct {
	table    *PendingTable
	notifier Notifier
	timeout  time.Duration
	logger   zerolog.Logger
}

// ToolCallConfig configures a ToolCallBridge
type ToolCallConfig struct {
	Table    *PendingTable
	Notifier Notifier
	// Timeout bounds each wait; zero selects DefaultInvocationTimeout and a
	// negative value disables the bound
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewToolCallBridge creates a bridge over the given table
func NewToolCallBridge(cfg ToolCallConfig) (*ToolCallBridge, error) {
	if cfg.Table == nil {
		return nil, errors.New("pending table is required")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultInvocationTimeout
	}

	return &ToolCallBridge{
		table:    cfg.Table,
		notifier: cfg.Notifier,
		timeout:  timeout,
		logger:   cfg.Logger,
	}, nil
}

// Invoke publishes a request for the named tool and waits for its outcome.
// It returns a failure when the request is abandoned, the wait bound
// expires, ctx is done or the request cannot be published.
func (b *ToolCallBridge) Invoke(ctx context.Context, name string, args map[string]interface{}) ToolOutcome {
	start := time.Now()
	if args == nil {
		args = map[string]interface{}{}
	}

	id, slot := b.table.Open()
	observability.SetPendingToolRequests(b.table.Len())

	ctx = tracing.WithRequestID(ctx, id)
	logger := tracing.LoggerFromContext(ctx, b.logger).With().Str("tool", name).Logger()

	outcome, label := b.await(ctx, id, slot, ToolRequest{RequestID: id, Name: name, Args: args}, logger)

	observability.SetPendingToolRequests(b.table.Len())
	observability.RecordToolRequest(name, label, time.Since(start))
	observability.RecordToolAudit(ctx, name, id, label, nil)

	logger.Debug().
		Str("outcome", label).
		Dur("elapsed", time.Since(start)).
		Msg("Tool invocation finished")

	return outcome
}

func (b *ToolCallBridge) await(ctx context.Context, id string, slot <-chan ToolOutcome, req ToolRequest, logger zerolog.Logger) (ToolOutcome, string) {
	waitCtx, cancel := b.waitContext(ctx)
	defer cancel()

	// the entry is visible before the front-end can learn the id; the
	// deadline covers delivery as well as the wait for a result
	published := make(chan error, 1)
	go func() {
		published <- b.notifier.PublishToolRequest(waitCtx, req)
	}()

	for {
		select {
		case err := <-published:
			published = nil
			if err == nil {
				logger.Debug().Msg("Tool request published")
				continue
			}
			if waitCtx.Err() != nil {
				return b.expire(ctx, id, slot, logger)
			}
			logger.Error().Err(err).Msg("Failed to publish tool request")
			if b.table.Abandon(id) {
				return Failure("failed to deliver tool request: " + err.Error()), "publish_failed"
			}
			return b.drain(slot)
		case outcome, ok := <-slot:
			if !ok {
				return Failure(CancelledMessage), "cancelled"
			}
			return outcome, outcomeLabel(outcome)
		case <-waitCtx.Done():
			return b.expire(ctx, id, slot, logger)
		}
	}
}

func (b *ToolCallBridge) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout > 0 {
		return context.WithTimeout(ctx, b.timeout)
	}
	return context.WithCancel(ctx)
}

// expire evicts the entry once the wait context is done
func (b *ToolCallBridge) expire(ctx context.Context, id string, slot <-chan ToolOutcome, logger zerolog.Logger) (ToolOutcome, string) {
	if !b.table.Abandon(id) {
		return b.drain(slot)
	}
	if ctx.Err() != nil {
		return Failure(CancelledMessage), "cancelled"
	}
	logger.Warn().Dur("timeout", b.timeout).Msg("Tool request timed out")
	return Failure(TimedOutMessage), "timeout"
}

// drain reads a slot whose entry was already removed by someone else
func (b *ToolCallBridge) drain(slot <-chan ToolOutcome) (ToolOutcome, string) {
	outcome, ok := <-slot
	if !ok {
		return Failure(CancelledMessage), "cancelled"
	}
	return outcome, outcomeLabel(outcome)
}

func outcomeLabel(o ToolOutcome) string {
	if o.IsError {
		return "error"
	}
	return "success"
}

// Fulfill hands outcome to the invocation waiting on requestID. It returns
// ErrRequestNotFound when no such invocation is pending.
func (b *ToolCallBridge) Fulfill(ctx context.Context, requestID string, outcome ToolOutcome) error {
	ok := b.table.Fulfill(requestID, outcome)
	observability.RecordFulfillment(ok)

	logger := tracing.LoggerFromContext(tracing.WithRequestID(ctx, requestID), b.logger)
	if !ok {
		logger.Warn().Msg("Tool result for unknown request")
		return ErrRequestNotFound
	}

	logger.Debug().Bool("is_error", outcome.IsError).Msg("Tool result delivered")
	return nil
}

// Pending returns the number of invocations waiting for a result
func (b *ToolCallBridge) Pending() int {
	return b.table.Len()
}
