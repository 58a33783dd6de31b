package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"revoltgram/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const testBotToken = "123:abc"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeBotAPI records Bot API calls and answers with minimal valid results.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls []botCall

	fileBody []byte // served from the file endpoint; "JPEGDATA" when nil
	fileSize int    // reported by getFile when set
	// parseError makes MarkdownV2 sendMessage calls fail like Telegram
	// does on malformed entities.
	parseError bool
}

type botCall struct {
	method string
	form   map[string]string
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/file/bot"+testBotToken+"/") {
			if f.fileBody != nil {
				w.Write(f.fileBody)
				return
			}
			fmt.Fprint(w, "JPEGDATA")
			return
		}
		prefix := "/bot" + testBotToken + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		method := strings.TrimPrefix(r.URL.Path, prefix)
		form := make(map[string]string)
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		f.mu.Lock()
		f.calls = append(f.calls, botCall{method: method, form: form})
		f.mu.Unlock()

		var result any
		switch method {
		case "getMe":
			result = map[string]any{"id": 42, "is_bot": true, "first_name": "bridge", "username": "bridge_bot"}
		case "getFile":
			file := map[string]any{"file_id": form["file_id"], "file_unique_id": "u", "file_path": "photos/file_7.jpg"}
			if f.fileSize > 0 {
				file["file_size"] = f.fileSize
			}
			result = file
		case "sendMessage":
			if f.parseError && form["parse_mode"] == tgbotapi.ModeMarkdownV2 {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: Character '!' is reserved and must be escaped with the preceding '\\'"}`)
				return
			}
			result = map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 1}}
		case "sendMediaGroup":
			result = []map[string]any{{"message_id": 1, "date": 0, "chat": map[string]any{"id": 1}}}
		default:
			result = map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 1}}
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	})
}

func (f *fakeBotAPI) sends() []botCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []botCall
	for _, c := range f.calls {
		if c.method != "getMe" {
			out = append(out, c)
		}
	}
	return out
}

func newTestTelegram(t *testing.T) (*Telegram, *fakeBotAPI) {
	t.Helper()
	f := &fakeBotAPI{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	tg := NewTelegram(TelegramConfig{
		Token:      testBotToken,
		APIURL:     srv.URL,
		HTTPClient: srv.Client(),
		Logger:     testLogger(),
	})
	self, err := tg.Connect()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if self.ID != 42 {
		t.Fatalf("self id = %d", self.ID)
	}
	return tg, f
}

func TestTelegram_ConnectInvalidToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{Token: "bad", APIURL: srv.URL, HTTPClient: srv.Client(), Logger: testLogger()})
	if _, err := tg.Connect(); err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestTelegram_SendTextMarkdown(t *testing.T) {
	tg, f := newTestTelegram(t)

	if err := tg.SendText(context.Background(), "-100123", `hi\_there`, true); err != nil {
		t.Fatalf("send: %v", err)
	}
	calls := f.sends()
	if len(calls) != 1 || calls[0].method != "sendMessage" {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].form["parse_mode"] != "MarkdownV2" {
		t.Errorf("parse_mode = %q", calls[0].form["parse_mode"])
	}
	if calls[0].form["chat_id"] != "-100123" || calls[0].form["text"] != `hi\_there` {
		t.Errorf("form = %v", calls[0].form)
	}
}

func TestTelegram_SendTextPlain(t *testing.T) {
	tg, f := newTestTelegram(t)

	if err := tg.SendText(context.Background(), "5", "plain", false); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pm := f.sends()[0].form["parse_mode"]; pm != "" {
		t.Errorf("expected no parse mode, got %q", pm)
	}
}

func TestTelegram_SendTextMarkupRejected(t *testing.T) {
	tg, f := newTestTelegram(t)
	f.parseError = true

	err := tg.SendText(context.Background(), "-100123", "hi!", true)
	if !errors.Is(err, domain.ErrMarkupRejected) {
		t.Fatalf("expected ErrMarkupRejected, got %v", err)
	}
	if err := tg.SendText(context.Background(), "-100123", "hi!", false); err != nil {
		t.Errorf("plain send should succeed: %v", err)
	}
}

func TestTelegram_SendTextInvalidChat(t *testing.T) {
	tg, _ := newTestTelegram(t)
	if err := tg.SendText(context.Background(), "@channel", "x", false); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}

func TestTelegram_SendMediaSingleItem(t *testing.T) {
	tg, f := newTestTelegram(t)

	err := tg.SendMedia(context.Background(), "7", []domain.OutboundMedia{
		{URL: "https://autumn.example/a.png", Kind: domain.MediaPhoto, Caption: "cap"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	calls := f.sends()
	if len(calls) != 1 || calls[0].method != "sendPhoto" {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].form["photo"] != "https://autumn.example/a.png" || calls[0].form["caption"] != "cap" {
		t.Errorf("form = %v", calls[0].form)
	}
}

func TestTelegram_SendMediaGroup(t *testing.T) {
	tg, f := newTestTelegram(t)

	err := tg.SendMedia(context.Background(), "7", []domain.OutboundMedia{
		{URL: "https://autumn.example/a.png", Kind: domain.MediaPhoto, Caption: "cap"},
		{URL: "https://autumn.example/b.mp4", Kind: domain.MediaVideo},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	calls := f.sends()
	if len(calls) != 1 || calls[0].method != "sendMediaGroup" {
		t.Fatalf("calls = %+v", calls)
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(calls[0].form["media"]), &items); err != nil {
		t.Fatalf("media param: %v", err)
	}
	if len(items) != 2 || items[0]["type"] != "photo" || items[1]["type"] != "video" {
		t.Errorf("media = %v", items)
	}
	if items[0]["caption"] != "cap" {
		t.Errorf("caption missing on first item: %v", items[0])
	}
	if _, ok := items[1]["caption"]; ok {
		t.Errorf("second item must not carry a caption: %v", items[1])
	}
}

func TestTelegram_SendMediaBatches(t *testing.T) {
	tg, f := newTestTelegram(t)

	group := make([]domain.OutboundMedia, 11)
	for i := range group {
		group[i] = domain.OutboundMedia{URL: fmt.Sprintf("https://autumn.example/%d.pdf", i), Kind: domain.MediaDocument}
	}
	if err := tg.SendMedia(context.Background(), "7", group); err != nil {
		t.Fatalf("send: %v", err)
	}
	calls := f.sends()
	if len(calls) != 2 || calls[0].method != "sendMediaGroup" || calls[1].method != "sendDocument" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestTelegram_Download(t *testing.T) {
	tg, _ := newTestTelegram(t)

	name, data, err := tg.Download(context.Background(), "FILE1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if name != "file_7.jpg" || string(data) != "JPEGDATA" {
		t.Errorf("got %q %q", name, data)
	}
}

func TestTelegram_DownloadRejectsOversizeBody(t *testing.T) {
	tg, f := newTestTelegram(t)
	f.fileBody = make([]byte, telegramMaxDownloadLen+1<<20)

	_, data, err := tg.Download(context.Background(), "BIG")
	if err == nil {
		t.Fatalf("expected error for oversize file, got %d bytes", len(data))
	}
}

func TestTelegram_DownloadRejectsReportedSize(t *testing.T) {
	tg, f := newTestTelegram(t)
	f.fileSize = telegramMaxDownloadLen + 1

	if _, _, err := tg.Download(context.Background(), "BIG"); err == nil {
		t.Fatal("expected error when getFile reports an oversize file")
	}
	for _, c := range f.calls {
		if c.method != "getMe" && c.method != "getFile" {
			t.Errorf("unexpected call %q", c.method)
		}
	}
}

func TestTelegram_DownloadAtLimit(t *testing.T) {
	tg, f := newTestTelegram(t)
	f.fileBody = make([]byte, telegramMaxDownloadLen)

	_, data, err := tg.Download(context.Background(), "EXACT")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(data) != telegramMaxDownloadLen {
		t.Errorf("got %d bytes", len(data))
	}
}

func TestTelegram_NotConnected(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Token: "x", Logger: testLogger()})
	if err := tg.SendText(context.Background(), "1", "x", false); err == nil {
		t.Error("expected error before Connect")
	}
	if _, _, err := tg.Download(context.Background(), "f"); err == nil {
		t.Error("expected error before Connect")
	}
}

func TestTelegramInbound_TextMessage(t *testing.T) {
	in, ok := telegramInbound(&tgbotapi.Message{
		Text: "hello",
		Chat: &tgbotapi.Chat{ID: -100123},
		From: &tgbotapi.User{ID: 9, FirstName: "Ann", LastName: "Lee"},
	})
	if !ok {
		t.Fatal("expected message")
	}
	if in.Platform != domain.PlatformTelegram || in.ChannelID != "-100123" || in.AuthorID != "9" {
		t.Errorf("got %+v", in)
	}
	if in.AuthorName != "Ann Lee" || in.Text != "hello" || len(in.Attachments) != 0 {
		t.Errorf("got %+v", in)
	}
}

func TestTelegramInbound_LargestPhotoAndCaption(t *testing.T) {
	in, _ := telegramInbound(&tgbotapi.Message{
		Caption: "look",
		Chat:    &tgbotapi.Chat{ID: 1},
		Photo:   []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "medium"}, {FileID: "large"}},
	})
	if in.Text != "look" {
		t.Errorf("text = %q", in.Text)
	}
	if len(in.Attachments) != 1 || in.Attachments[0].ID != "large" {
		t.Errorf("attachments = %+v", in.Attachments)
	}
}

func TestTelegramInbound_DocumentWins(t *testing.T) {
	in, _ := telegramInbound(&tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 1},
		Photo:    []tgbotapi.PhotoSize{{FileID: "thumb"}},
		Video:    &tgbotapi.Video{FileID: "vid"},
		Document: &tgbotapi.Document{FileID: "doc", FileName: "a.pdf", MimeType: "application/pdf"},
	})
	if len(in.Attachments) != 1 || in.Attachments[0].ID != "doc" || in.Attachments[0].Filename != "a.pdf" {
		t.Errorf("attachments = %+v", in.Attachments)
	}
}

func TestTelegramInbound_NilChat(t *testing.T) {
	if _, ok := telegramInbound(&tgbotapi.Message{Text: "x"}); ok {
		t.Error("message without chat should be ignored")
	}
	if _, ok := telegramInbound(nil); ok {
		t.Error("nil message should be ignored")
	}
}

func TestSplitMessage_Short(t *testing.T) {
	chunks := splitMessage("short message", 100)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplitMessage_Long(t *testing.T) {
	long := strings.Repeat("word ", 100)
	chunks := splitMessage(long, 50)
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d too long: %d", i, len(c))
		}
	}
	if strings.Join(chunks, "") != long {
		t.Error("chunks should reassemble to the original")
	}
}

func TestSplitMessage_KeepsRunesAndEscapes(t *testing.T) {
	msg := strings.Repeat("é", 30) + strings.Repeat(`\.`, 30)
	for _, c := range splitMessage(msg, 11) {
		if !utf8.ValidString(c) {
			t.Errorf("chunk split a rune: %q", c)
		}
		if strings.HasSuffix(c, `\`) {
			t.Errorf("chunk ends with a dangling escape: %q", c)
		}
	}
}
