package gateway

import (
	"sync/atomic"
	"time"

	"github.com/harun/radbridge/pkg/eventbus"
	"github.com/rs/zerolog"
)

// EventBroadcaster sends events to every authenticated client
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     uint64
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Broadcast sends an event to all authenticated clients and returns the
// number of clients that received it
func (b *EventBroadcaster) Broadcast(event string, data interface{}) int {
	return b.send(EventMessage{Event: event, Data: data})
}

// Forward relays a bus event under its topic name, keeping its trace id
func (b *EventBroadcaster) Forward(ev eventbus.Event) int {
	return b.send(EventMessage{
		Event:   ev.Topic,
		Data:    ev.Payload,
		TraceID: ev.TraceID,
	})
}

func (b *EventBroadcaster) send(msg EventMessage) int {
	msg.Type = "event"
	msg.Seq = b.nextSeq()
	msg.Timestamp = time.Now().UnixMilli()

	clients := b.clients.Snapshot(true)
	if len(clients) == 0 {
		b.logger.Debug().
			Str("event", msg.Event).
			Int64("seq", msg.Seq).
			Msg("No authenticated clients to broadcast to")
		return 0
	}

	delivered := 0
	for _, client := range clients {
		if err := client.WriteJSON(msg); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", msg.Event).
				Int64("seq", msg.Seq).
				Msg("Failed to broadcast to client")
			continue
		}
		delivered++
	}

	b.logger.Debug().
		Str("event", msg.Event).
		Int64("seq", msg.Seq).
		Int("success", delivered).
		Int("failed", len(clients)-delivered).
		Msg("Event broadcast complete")
	return delivered
}

func (b *EventBroadcaster) nextSeq() int64 {
	return int64(atomic.AddUint64(&b.seq, 1))
}
