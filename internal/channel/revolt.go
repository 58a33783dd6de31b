package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"revoltgram/internal/domain"
	"revoltgram/internal/revolt"

	"github.com/gorilla/websocket"
)

const (
	revoltPingInterval   = 20 * time.Second
	revoltReconnectDelay = 5 * time.Second
	revoltWriteTimeout   = 10 * time.Second
)

// AttachmentURLer builds public URLs for Revolt attachments.
type AttachmentURLer interface {
	AttachmentURL(id, filename string) string
}

// RevoltConfig configures the Revolt gateway channel.
type RevoltConfig struct {
	WSURL          string // e.g. wss://ws.revolt.chat
	Token          string
	Files          AttachmentURLer
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// Revolt keeps a websocket session to the Revolt events gateway and
// publishes every Message event to the bus.
type Revolt struct {
	wsURL          string
	token          string
	files          AttachmentURLer
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	logger         *slog.Logger
}

// gatewayEvent is the header shared by every incoming gateway frame.
type gatewayEvent struct {
	Type  string            `json:"type"`
	Error string            `json:"error,omitempty"`
	Bulk  []json.RawMessage `json:"v,omitempty"`
}

// clientEvent is an outgoing gateway frame.
type clientEvent struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	Data  *int64 `json:"data,omitempty"`
}

// NewRevolt creates the gateway channel.
func NewRevolt(cfg RevoltConfig) *Revolt {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = revoltReconnectDelay
	}
	return &Revolt{
		wsURL:          cfg.WSURL,
		token:          cfg.Token,
		files:          cfg.Files,
		dialer:         cfg.Dialer,
		reconnectDelay: cfg.ReconnectDelay,
		logger:         cfg.Logger,
	}
}

func (r *Revolt) Name() string { return string(domain.PlatformRevolt) }

// Start runs gateway sessions until ctx is cancelled, reconnecting after a
// fixed delay whenever the socket drops.
func (r *Revolt) Start(ctx context.Context, bus domain.MessageBus) error {
	for {
		err := r.session(ctx, bus)
		if ctx.Err() != nil {
			r.logger.Info("revolt channel stopping")
			return nil
		}
		r.logger.Warn("revolt gateway disconnected, reconnecting", "err", err, "delay", r.reconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.reconnectDelay):
		}
	}
}

// Stop is a no-op: the session ends when Start's context is cancelled.
func (r *Revolt) Stop() error {
	return nil
}

func (r *Revolt) endpoint() (string, error) {
	u, err := url.Parse(r.wsURL)
	if err != nil {
		return "", fmt.Errorf("invalid revolt ws url: %w", err)
	}
	q := u.Query()
	q.Set("version", "1")
	q.Set("format", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// session runs one authenticated connection until it fails or ctx ends.
func (r *Revolt) session(ctx context.Context, bus domain.MessageBus) error {
	endpoint, err := r.endpoint()
	if err != nil {
		return err
	}
	conn, _, err := r.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("revolt gateway dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(ev clientEvent) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(revoltWriteTimeout))
		return conn.WriteJSON(ev)
	}

	if err := write(clientEvent{Type: "Authenticate", Token: r.token}); err != nil {
		return fmt.Errorf("revolt gateway authenticate: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(revoltPingInterval)
		defer ticker.Stop()
		var seq int64
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// Unblocks ReadJSON below.
				conn.Close()
				return
			case <-ticker.C:
				seq++
				if err := write(clientEvent{Type: "Ping", Data: &seq}); err != nil {
					r.logger.Debug("revolt ping failed", "err", err)
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("revolt gateway read: %w", err)
		}
		if err := r.handleFrame(ctx, data, bus); err != nil {
			return err
		}
	}
}

// handleFrame dispatches one gateway frame. Only Error frames end the
// session; undecodable frames are logged and skipped.
func (r *Revolt) handleFrame(ctx context.Context, data []byte, bus domain.MessageBus) error {
	var ev gatewayEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		r.logger.Debug("revolt gateway frame undecodable", "err", err)
		return nil
	}
	switch ev.Type {
	case "Authenticated":
		r.logger.Info("revolt gateway authenticated")
	case "Ready":
		r.logger.Info("revolt gateway ready")
	case "Message":
		var m revolt.Message
		if err := json.Unmarshal(data, &m); err != nil {
			r.logger.Warn("revolt message event undecodable", "err", err)
			return nil
		}
		r.logger.Debug("revolt message received",
			"channel_id", m.Channel,
			"author_id", m.Author,
			"text_len", len(m.Content),
			"attachments", len(m.Attachments),
		)
		bus.Publish(ctx, r.inbound(m))
	case "Bulk":
		for _, item := range ev.Bulk {
			if err := r.handleFrame(ctx, item, bus); err != nil {
				return err
			}
		}
	case "Error":
		return errors.New("revolt gateway error: " + ev.Error)
	case "Pong":
	default:
		r.logger.Debug("revolt gateway event ignored", "type", ev.Type)
	}
	return nil
}

// inbound converts a gateway message, resolving each attachment to its
// public Autumn URL.
func (r *Revolt) inbound(m revolt.Message) domain.InboundMessage {
	in := domain.InboundMessage{
		Platform:  domain.PlatformRevolt,
		ChannelID: m.Channel,
		AuthorID:  m.Author,
		Text:      m.Content,
	}
	for _, f := range m.Attachments {
		att := domain.Attachment{
			ID:       f.ID,
			Filename: f.Filename,
			MimeType: strings.TrimSpace(f.ContentType),
		}
		if r.files != nil {
			att.URL = r.files.AttachmentURL(f.ID, f.Filename)
		}
		in.Attachments = append(in.Attachments, att)
	}
	return in
}
