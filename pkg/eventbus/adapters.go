package eventbus

import (
	"context"

	"github.com/harun/radbridge/pkg/a2a"
	"github.com/harun/radbridge/pkg/bridge"
)

var (
	_ bridge.Notifier  = (*Bus)(nil)
	_ bridge.EventSink = (*Bus)(nil)
)

// PublishToolRequest publishes a tool request for front-end fulfillers
func (b *Bus) PublishToolRequest(ctx context.Context, req bridge.ToolRequest) error {
	return b.Publish(ctx, TopicToolRequest, req)
}

// Send publishes a relayed agent stream event
func (b *Bus) Send(ctx context.Context, event a2a.StreamEvent) error {
	return b.Publish(ctx, TopicStreamEvent, event)
}
