// Package eventbus is the outbound notification channel between the bridge
// and its front-end fulfillers, built on watermill's in-process pub/sub.
//
// Invariants:
// - Events published by one goroutine reach each subscriber in publish order.
// - Publish returns only after every current subscriber has handled the event,
//   or with the context's error once ctx is done.
// - Publishing after Close fails with ErrClosed.
//
// Usage:
//
//	bus := eventbus.New(logger)
//	defer bus.Close()
//	unsubscribe, _ := bus.Subscribe(eventbus.TopicToolRequest, func(ev eventbus.Event) { ... })
//	defer unsubscribe()
//	_ = bus.Publish(ctx, eventbus.TopicToolRequest, payload)
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/harun/radbridge/internal/tracing"
	"github.com/rs/zerolog"
)

// Topics understood by front-end clients
const (
	TopicToolRequest = "tool_execution_request"
	TopicStreamEvent = "stream_event"
)

const traceIDMetadata = "trace_id"

// ErrClosed is returned when publishing on a closed bus
var ErrClosed = errors.New("event bus closed")

// Event is a delivered notification
type Event struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	TraceID string          `json:"trace_id,omitempty"`
}

// Handler receives events for one subscription
type Handler func(Event)

// Bus is an ordered in-process pub/sub
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup
}

// New creates a bus
func New(logger zerolog.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            64,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NopLogger{},
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Publish encodes payload as JSON and delivers it to the topic's subscribers
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		msg.Metadata.Set(traceIDMetadata, traceID)
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}

	// gochannel blocks until every subscriber acks; a stalled handler must
	// not hold the caller past its deadline
	done := make(chan error, 1)
	go func() {
		done <- b.pubsub.Publish(topic, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to publish %s: %w", topic, ctx.Err())
	}
}

// Subscribe calls handler for every event on topic until the returned
// function is called or the bus is closed. Handlers run on one goroutine
// per subscription and must not block for long.
func (b *Bus) Subscribe(topic string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(b.ctx)
	messages, err := b.pubsub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			b.deliver(topic, msg, handler)
			msg.Ack()
		}
	}()

	return cancel, nil
}

func (b *Bus) deliver(topic string, msg *message.Message, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("topic", topic).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()

	handler(Event{
		ID:      msg.UUID,
		Topic:   topic,
		Payload: json.RawMessage(msg.Payload),
		TraceID: msg.Metadata.Get(traceIDMetadata),
	})
}

// Close stops all subscriptions and rejects further publishes
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancel()
	b.mu.Unlock()

	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}
