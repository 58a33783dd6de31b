package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"revoltgram/internal/domain"
	"revoltgram/internal/metrics"
)

// DefaultPublishTimeout bounds how long Publish waits on a full bus.
const DefaultPublishTimeout = 10 * time.Second

// InMemoryBus hands inbound messages from the platform channels to the
// relay dispatcher over a buffered Go channel.
type InMemoryBus struct {
	inbound chan domain.InboundMessage
	timeout time.Duration
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a bus holding up to bufferSize undelivered messages.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundMessage, bufferSize),
		timeout: DefaultPublishTimeout,
		logger:  logger,
	}
}

// Publish enqueues msg. When the buffer is full it waits until space frees
// up, the publish timeout passes or ctx is done; the last two drop the
// message. It reports whether msg was enqueued.
func (b *InMemoryBus) Publish(ctx context.Context, msg domain.InboundMessage) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("publish on closed bus", "platform", msg.Platform, "channel_id", msg.ChannelID)
		return false
	}

	select {
	case b.inbound <- msg:
		metrics.BusQueued.Set(int64(len(b.inbound)))
		return true
	default:
	}

	b.logger.Warn("inbound bus full, waiting", "platform", msg.Platform, "channel_id", msg.ChannelID)
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case b.inbound <- msg:
		metrics.BusQueued.Set(int64(len(b.inbound)))
		return true
	case <-timer.C:
		b.drop(msg, "timeout")
	case <-ctx.Done():
		b.drop(msg, "shutdown")
	}
	return false
}

func (b *InMemoryBus) drop(msg domain.InboundMessage, reason string) {
	metrics.BusDropped(reason).Inc()
	b.logger.Error("inbound message dropped",
		"reason", reason,
		"platform", msg.Platform,
		"channel_id", msg.ChannelID,
	)
}

// Subscribe returns the receive side. It is closed by Close.
func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.inbound
}

// Close stops accepting messages. Buffered messages stay readable.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
