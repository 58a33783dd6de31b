package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"revoltgram/internal/domain"
	"revoltgram/internal/media"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramDefaultPoll    = 30
	telegramMaxDownloadLen = 20 << 20 // Bot API getFile limit
)

var errTelegramNotConnected = errors.New("telegram: not connected")

// Telegram is the Telegram side of the bridge: it long-polls for updates,
// publishes them to the bus and exposes the send/download calls used by the
// relay.
type Telegram struct {
	token       string
	apiURL      string
	client      *http.Client
	pollTimeout int

	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type TelegramConfig struct {
	Token       string
	APIURL      string // e.g. https://api.telegram.org
	HTTPClient  *http.Client
	PollTimeout int // long-poll timeout in seconds
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = telegramDefaultPoll
	}
	return &Telegram{
		token:       cfg.Token,
		apiURL:      strings.TrimRight(cfg.APIURL, "/"),
		client:      cfg.HTTPClient,
		pollTimeout: cfg.PollTimeout,
		logger:      cfg.Logger,
	}
}

func (t *Telegram) Name() string { return string(domain.PlatformTelegram) }

// Connect validates the token with getMe and returns the bot's identity.
func (t *Telegram) Connect() (tgbotapi.User, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.apiURL+"/bot%s/%s", t.client)
	if err != nil {
		return tgbotapi.User{}, fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return bot.Self, nil
}

// Start begins polling for updates and publishes every message to bus.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	if t.bot == nil {
		if _, err := t.Connect(); err != nil {
			return err
		}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update, bus)
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled, and
// StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update, bus domain.MessageBus) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	in, ok := telegramInbound(msg)
	if !ok {
		return
	}
	t.logger.Debug("telegram message received",
		"chat_id", in.ChannelID,
		"author_id", in.AuthorID,
		"text_len", len(in.Text),
		"attachments", len(in.Attachments),
	)
	bus.Publish(ctx, in)
}

// telegramInbound converts a Telegram message. A document wins over a video,
// which wins over a photo; for photos the largest size is used.
func telegramInbound(m *tgbotapi.Message) (domain.InboundMessage, bool) {
	if m == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}

	in := domain.InboundMessage{
		Platform:  domain.PlatformTelegram,
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		Text:      m.Caption,
	}
	if in.Text == "" {
		in.Text = m.Text
	}
	if m.From != nil {
		in.AuthorID = strconv.FormatInt(m.From.ID, 10)
		in.AuthorName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		if in.AuthorName == "" {
			in.AuthorName = m.From.UserName
		}
	} else {
		in.AuthorName = m.Chat.Title
	}

	var att *domain.Attachment
	if n := len(m.Photo); n > 0 {
		att = &domain.Attachment{ID: m.Photo[n-1].FileID}
	}
	if m.Video != nil {
		att = &domain.Attachment{ID: m.Video.FileID, Filename: m.Video.FileName, MimeType: m.Video.MimeType}
	}
	if m.Document != nil {
		att = &domain.Attachment{ID: m.Document.FileID, Filename: m.Document.FileName, MimeType: m.Document.MimeType}
	}
	if att != nil {
		in.Attachments = []domain.Attachment{*att}
	}
	return in, true
}

// SendText sends text to a chat, split into chunks Telegram accepts. When
// markdown is set the text is sent as MarkdownV2.
func (t *Telegram) SendText(ctx context.Context, chatID string, text string, markdown bool) error {
	if t.bot == nil {
		return errTelegramNotConnected
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, chunk)
		if markdown {
			msg.ParseMode = tgbotapi.ModeMarkdownV2
		}
		if _, err := t.bot.Send(msg); err != nil {
			if markdown && isParseError(err) {
				return fmt.Errorf("telegram send message: %w: %v", domain.ErrMarkupRejected, err)
			}
			return fmt.Errorf("telegram send message: %w", err)
		}
	}
	return nil
}

// isParseError reports a 400 caused by malformed MarkdownV2 entities.
func isParseError(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest &&
		strings.Contains(apiErr.Message, "can't parse entities")
}

// SendMedia sends one group of photos/videos or one group of documents.
// The group is split into batches of at most ten; a batch of one goes out
// as a single photo, video or document message because sendMediaGroup
// needs at least two items.
func (t *Telegram) SendMedia(ctx context.Context, chatID string, group []domain.OutboundMedia) error {
	if t.bot == nil {
		return errTelegramNotConnected
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	for _, batch := range media.Chunk(group, media.MaxGroupSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(batch) == 1 {
			if _, err := t.bot.Send(singleMedia(id, batch[0])); err != nil {
				return fmt.Errorf("telegram send %s: %w", batch[0].Kind, err)
			}
			continue
		}
		items := make([]any, 0, len(batch))
		for _, m := range batch {
			items = append(items, inputMedia(m))
		}
		if _, err := t.bot.SendMediaGroup(tgbotapi.NewMediaGroup(id, items)); err != nil {
			return fmt.Errorf("telegram send media group: %w", err)
		}
	}
	return nil
}

func singleMedia(chatID int64, m domain.OutboundMedia) tgbotapi.Chattable {
	file := tgbotapi.FileURL(m.URL)
	switch m.Kind {
	case domain.MediaPhoto:
		c := tgbotapi.NewPhoto(chatID, file)
		c.Caption = m.Caption
		return c
	case domain.MediaVideo:
		c := tgbotapi.NewVideo(chatID, file)
		c.Caption = m.Caption
		return c
	default:
		c := tgbotapi.NewDocument(chatID, file)
		c.Caption = m.Caption
		return c
	}
}

func inputMedia(m domain.OutboundMedia) any {
	file := tgbotapi.FileURL(m.URL)
	switch m.Kind {
	case domain.MediaPhoto:
		p := tgbotapi.NewInputMediaPhoto(file)
		p.Caption = m.Caption
		return p
	case domain.MediaVideo:
		v := tgbotapi.NewInputMediaVideo(file)
		v.Caption = m.Caption
		return v
	default:
		d := tgbotapi.NewInputMediaDocument(file)
		d.Caption = m.Caption
		return d
	}
}

// Download fetches a file by ID from the Bot API file endpoint and returns
// its server-side filename and contents.
func (t *Telegram) Download(ctx context.Context, fileID string) (string, []byte, error) {
	if t.bot == nil {
		return "", nil, errTelegramNotConnected
	}
	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", nil, fmt.Errorf("telegram get file: %w", err)
	}
	if file.FileSize > telegramMaxDownloadLen {
		return "", nil, fmt.Errorf("telegram download: file is %d bytes, limit %d", file.FileSize, telegramMaxDownloadLen)
	}

	link := t.apiURL + "/file/bot" + t.token + "/" + file.FilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("telegram download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("telegram download: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, telegramMaxDownloadLen+1))
	if err != nil {
		return "", nil, fmt.Errorf("telegram download: %w", err)
	}
	if len(data) > telegramMaxDownloadLen {
		return "", nil, fmt.Errorf("telegram download: file exceeds %d bytes", telegramMaxDownloadLen)
	}

	name := path.Base(file.FilePath)
	if name == "." || name == "/" {
		name = "file"
	}
	return name, data, nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat ID %q: %w", chatID, err)
	}
	return id, nil
}

// splitMessage splits a message into chunks that fit within maxLen bytes,
// trying to split on newlines. A cut never lands inside a UTF-8 sequence or
// right after an escaping backslash.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		for cut > 1 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		for cut > 1 && msg[cut-1] == '\\' {
			cut--
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
