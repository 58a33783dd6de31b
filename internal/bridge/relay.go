package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"revoltgram/internal/domain"
	"revoltgram/internal/media"
	"revoltgram/internal/metrics"
	"revoltgram/internal/revolt"
	"revoltgram/internal/transform"
)

// TelegramSender is the Telegram side used by the relay.
type TelegramSender interface {
	SendText(ctx context.Context, chatID, text string, markdown bool) error
	SendMedia(ctx context.Context, chatID string, group []domain.OutboundMedia) error
	Download(ctx context.Context, fileID string) (filename string, data []byte, err error)
}

// RevoltAPI is the Revolt side used by the relay. Name lookups double as
// the mention resolver.
type RevoltAPI interface {
	transform.Resolver
	SendMessage(ctx context.Context, channelID string, msg revolt.OutgoingMessage) (*revolt.Message, error)
	Upload(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// UploadError reports an attachment that could not be moved to Revolt.
type UploadError struct {
	FileID string
	Stage  string // "fetch" or "upload"
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("attachment %s: %s failed: %v", e.FileID, e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

type RelayConfig struct {
	Router   *Router
	Telegram TelegramSender
	Revolt   RevoltAPI
	// Masquerade sets the Revolt masquerade name to the Telegram author.
	Masquerade bool
	Logger     *slog.Logger
}

// Relay forwards routed messages to the destination platform.
type Relay struct {
	router     *Router
	telegram   TelegramSender
	revolt     RevoltAPI
	masquerade bool
	logger     *slog.Logger

	wg sync.WaitGroup
}

func NewRelay(cfg RelayConfig) *Relay {
	return &Relay{
		router:     cfg.Router,
		telegram:   cfg.Telegram,
		revolt:     cfg.Revolt,
		masquerade: cfg.Masquerade,
		logger:     cfg.Logger,
	}
}

// Run consumes the bus and handles every message in its own goroutine
// until ctx is cancelled or the bus is closed. Messages from the same
// channel may complete out of order. Relays already started are not
// cancelled; Run waits for them before returning.
func (r *Relay) Run(ctx context.Context, bus domain.MessageBus) {
	r.logger.Info("relay started")
	inbound := bus.Subscribe()

	defer r.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping, waiting for in-flight messages")
			return
		case msg, ok := <-inbound:
			if !ok {
				r.logger.Info("inbound channel closed, relay stopping")
				return
			}
			r.wg.Add(1)
			go func(m domain.InboundMessage) {
				defer r.wg.Done()
				if err := r.Handle(context.WithoutCancel(ctx), m); err != nil {
					r.logger.Error("relay failed",
						"platform", m.Platform,
						"channel_id", m.ChannelID,
						"err", err,
					)
				}
			}(msg)
		}
	}
}

// Handle routes msg and sends it to the paired channel. Unrouted messages
// return nil.
func (r *Relay) Handle(ctx context.Context, msg domain.InboundMessage) error {
	b, ok := r.router.Route(msg)
	if !ok {
		return nil
	}

	metrics.RelaysInFlight.Inc()
	defer metrics.RelaysInFlight.Dec()

	var (
		direction string
		err       error
	)
	start := time.Now()
	switch msg.Platform {
	case domain.PlatformRevolt:
		direction = metrics.DirectionRevoltToTelegram
		err = r.toTelegram(ctx, b.TelegramChatID.String(), msg)
	case domain.PlatformTelegram:
		direction = metrics.DirectionTelegramToRevolt
		err = r.toRevolt(ctx, b.RevoltChannelID.String(), msg)
	}
	metrics.RelayLatency(direction).ObserveSince(start)

	if err != nil {
		metrics.RelayFailures(direction).Inc()
		return err
	}
	return nil
}

// toTelegram relays a Revolt message. Text alone goes out as MarkdownV2;
// with attachments the text becomes a plain caption on the first photo or
// video, or on the first document when there are none.
func (r *Relay) toTelegram(ctx context.Context, chatID string, msg domain.InboundMessage) error {
	res := newMessageResolver(r.revolt)

	if len(msg.Attachments) == 0 {
		if msg.Text == "" {
			r.logger.Debug("empty revolt message skipped", "channel_id", msg.ChannelID)
			return nil
		}
		text := transform.Transform(ctx, res, transform.EscapeMarkup(msg.Text), true)
		err := r.telegram.SendText(ctx, chatID, text, true)
		if errors.Is(err, domain.ErrMarkupRejected) {
			r.logger.Warn("telegram rejected markup, resending as plain text", "chat_id", chatID, "err", err)
			err = r.telegram.SendText(ctx, chatID, transform.Transform(ctx, res, msg.Text, false), false)
		}
		if err != nil {
			return fmt.Errorf("send text to telegram chat %s: %w", chatID, err)
		}
		metrics.Relayed(metrics.DirectionRevoltToTelegram).Inc()
		return nil
	}

	payload := domain.OutboundPayload{
		Text:  transform.Transform(ctx, res, msg.Text, false),
		Media: media.FromAttachments(msg.Attachments),
	}
	if err := r.sendPayload(ctx, chatID, payload); err != nil {
		return err
	}
	metrics.Relayed(metrics.DirectionRevoltToTelegram).Inc()
	return nil
}

// sendPayload sends photos and videos first, then documents, with the text
// as caption. Without any media, or when the text is too long for a
// caption, the text goes out as a plain message of its own.
func (r *Relay) sendPayload(ctx context.Context, chatID string, p domain.OutboundPayload) error {
	visual, documents := media.Partition(p.Media)
	caption := p.Text
	if !media.CaptionFits(caption) && len(p.Media) > 0 {
		if err := r.telegram.SendText(ctx, chatID, caption, false); err != nil {
			return fmt.Errorf("send text to telegram chat %s: %w", chatID, err)
		}
		caption = ""
	}
	if !media.PlaceCaption(visual, documents, caption) {
		if err := r.telegram.SendText(ctx, chatID, p.Text, false); err != nil {
			return fmt.Errorf("send text to telegram chat %s: %w", chatID, err)
		}
		return nil
	}
	for _, group := range [][]domain.OutboundMedia{visual, documents} {
		if len(group) == 0 {
			continue
		}
		if err := r.telegram.SendMedia(ctx, chatID, group); err != nil {
			return fmt.Errorf("send %s group to telegram chat %s: %w", group[0].Kind, chatID, err)
		}
	}
	return nil
}

// toRevolt relays a Telegram message. A failed attachment is dropped and
// the text is still sent.
func (r *Relay) toRevolt(ctx context.Context, channelID string, msg domain.InboundMessage) error {
	out := revolt.OutgoingMessage{Content: msg.Text}

	for _, att := range msg.Attachments {
		id, err := r.reupload(ctx, att)
		if err != nil {
			var upErr *UploadError
			if errors.As(err, &upErr) {
				metrics.AttachmentsDropped.Inc()
				r.logger.Warn("attachment dropped",
					"file_id", upErr.FileID,
					"stage", upErr.Stage,
					"err", upErr.Err,
				)
				continue
			}
			return err
		}
		out.Attachments = append(out.Attachments, id)
	}

	if out.Content == "" && len(out.Attachments) == 0 {
		r.logger.Debug("nothing to send to revolt", "channel_id", channelID)
		return nil
	}
	if r.masquerade && msg.AuthorName != "" {
		out.Masquerade = &revolt.Masquerade{Name: masqueradeName(msg.AuthorName)}
	}

	if _, err := r.revolt.SendMessage(ctx, channelID, out); err != nil {
		return fmt.Errorf("send to revolt channel %s: %w", channelID, err)
	}
	metrics.Relayed(metrics.DirectionTelegramToRevolt).Inc()
	return nil
}

// Revolt rejects masquerade names longer than 32 characters.
const maxMasqueradeName = 32

func masqueradeName(name string) string {
	r := []rune(name)
	if len(r) > maxMasqueradeName {
		r = r[:maxMasqueradeName]
	}
	return string(r)
}

// reupload copies one Telegram file to Autumn and returns its new ID.
func (r *Relay) reupload(ctx context.Context, att domain.Attachment) (string, error) {
	name, data, err := r.telegram.Download(ctx, att.ID)
	if err != nil {
		return "", &UploadError{FileID: att.ID, Stage: "fetch", Err: err}
	}
	if att.Filename != "" {
		name = att.Filename
	}
	id, err := r.revolt.Upload(ctx, name, media.TypeByFilename(name), data)
	if err != nil {
		return "", &UploadError{FileID: att.ID, Stage: "upload", Err: err}
	}
	return id, nil
}

// messageResolver remembers lookups for the lifetime of one message and
// counts each failed reference once.
type messageResolver struct {
	transform.Resolver
	users    map[string]lookupResult
	channels map[string]lookupResult
}

type lookupResult struct {
	name string
	ok   bool
}

func newMessageResolver(res transform.Resolver) *messageResolver {
	return &messageResolver{
		Resolver: res,
		users:    make(map[string]lookupResult),
		channels: make(map[string]lookupResult),
	}
}

func (m *messageResolver) UserName(ctx context.Context, id string) (string, bool) {
	return m.remember(m.users, id, func() (string, bool) { return m.Resolver.UserName(ctx, id) })
}

func (m *messageResolver) ChannelName(ctx context.Context, id string) (string, bool) {
	return m.remember(m.channels, id, func() (string, bool) { return m.Resolver.ChannelName(ctx, id) })
}

func (m *messageResolver) remember(seen map[string]lookupResult, id string, lookup func() (string, bool)) (string, bool) {
	if r, ok := seen[id]; ok {
		return r.name, r.ok
	}
	name, ok := lookup()
	if !ok {
		metrics.MentionsUnresolved.Inc()
	}
	seen[id] = lookupResult{name, ok}
	return name, ok
}
