package domain

import "context"

// MessageBus carries inbound messages from channels to the bridge.
type MessageBus interface {
	Publish(ctx context.Context, msg InboundMessage) bool
	Subscribe() <-chan InboundMessage
	Close()
}
