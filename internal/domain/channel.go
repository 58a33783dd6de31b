package domain

import "context"

// Channel is a live connection to a chat platform that publishes
// inbound messages to the bus until ctx is cancelled.
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
