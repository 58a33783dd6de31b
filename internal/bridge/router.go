// Package bridge routes inbound messages to their paired channel and relays
// them to the other platform.
package bridge

import (
	"log/slog"

	"revoltgram/internal/config"
	"revoltgram/internal/domain"
	"revoltgram/internal/metrics"
)

// Identity holds the bridge's own user ID on each platform.
type Identity struct {
	Telegram string
	Revolt   string
}

// Reasons a message is not routed; used as log fields and metric labels.
const (
	skipSelf          = "self"
	skipNoBridge      = "no_bridge"
	skipNoDestination = "no_destination"
	skipPlatform      = "unknown_platform"
)

// Router maps an inbound message to the bridge entry it belongs to. The
// bridge table is copied at construction and never changes.
type Router struct {
	bridges []config.Bridge
	self    Identity
	logger  *slog.Logger
}

func NewRouter(bridges []config.Bridge, self Identity, logger *slog.Logger) *Router {
	return &Router{
		bridges: append([]config.Bridge(nil), bridges...),
		self:    self,
		logger:  logger,
	}
}

// Route returns the first bridge whose source side matches msg.ChannelID
// for msg.Platform, provided the other side is configured. Self-authored
// messages, unknown channels and one-way bridges pointing the other way
// all yield false; none of them is an error.
func (r *Router) Route(msg domain.InboundMessage) (*config.Bridge, bool) {
	var self string
	switch msg.Platform {
	case domain.PlatformTelegram:
		self = r.self.Telegram
	case domain.PlatformRevolt:
		self = r.self.Revolt
	default:
		return r.skip(msg, skipPlatform)
	}
	if self != "" && msg.AuthorID == self {
		return r.skip(msg, skipSelf)
	}

	for i := range r.bridges {
		b := &r.bridges[i]
		source, dest := b.TelegramChatID, b.RevoltChannelID
		if msg.Platform == domain.PlatformRevolt {
			source, dest = b.RevoltChannelID, b.TelegramChatID
		}
		if !source.IsSet() || source.String() != msg.ChannelID {
			continue
		}
		if !dest.IsSet() {
			return r.skip(msg, skipNoDestination)
		}
		return b, true
	}
	return r.skip(msg, skipNoBridge)
}

func (r *Router) skip(msg domain.InboundMessage, reason string) (*config.Bridge, bool) {
	metrics.Skipped(reason).Inc()
	r.logger.Debug("message not routed",
		"reason", reason,
		"platform", msg.Platform,
		"channel_id", msg.ChannelID,
		"author_id", msg.AuthorID,
	)
	return nil, false
}
