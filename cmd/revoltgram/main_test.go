package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"revoltgram/internal/config"
)

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	if !newLogger("debug").Enabled(ctx, slog.LevelDebug) {
		t.Error("debug level should enable debug")
	}
	if newLogger("warn").Enabled(ctx, slog.LevelInfo) {
		t.Error("warn level should hide info")
	}
	if !newLogger("bogus").Enabled(ctx, slog.LevelInfo) {
		t.Error("unknown level should default to info")
	}
}

func TestTelegramPollTimeout(t *testing.T) {
	cases := map[int]int{0: 30, 60: 30, 35: 30, 20: 15, 3: 1}
	for in, want := range cases {
		if got := telegramPollTimeout(in); got != want {
			t.Errorf("telegramPollTimeout(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRenderUnit(t *testing.T) {
	unit := renderUnit(systemdTemplate, map[string]string{
		"EXEC":    "/usr/local/bin/revoltgram",
		"CONFIG":  "/etc/revoltgram/config.json",
		"WORKDIR": "/etc/revoltgram",
	})
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/revoltgram run --config /etc/revoltgram/config.json") {
		t.Errorf("unit = %s", unit)
	}
	if strings.Contains(unit, "{{") {
		t.Errorf("unrendered placeholder in %s", unit)
	}
}

func TestRunWizard(t *testing.T) {
	cfg := config.Defaults()
	in := strings.NewReader("tg-token\n\n-100123\n01BX5ZZKBKACTAV9WEVGEMMVRZ\ny\n")
	var out bytes.Buffer

	if err := runWizard(in, &out, cfg); err != nil {
		t.Fatalf("wizard: %v", err)
	}
	if cfg.TelegramBotToken != "tg-token" || cfg.RevoltBotToken != "${REVOLT_BOT_TOKEN}" {
		t.Errorf("tokens = %q %q", cfg.TelegramBotToken, cfg.RevoltBotToken)
	}
	if len(cfg.Bridges) != 1 || cfg.Bridges[0].TelegramChatID != "-100123" {
		t.Errorf("bridges = %+v", cfg.Bridges)
	}
	if !cfg.Revolt.Masquerade {
		t.Error("masquerade should be enabled")
	}

	// Running again with the same bridge does not duplicate it.
	in = strings.NewReader("\n\n-100123\n01BX5ZZKBKACTAV9WEVGEMMVRZ\n\n")
	if err := runWizard(in, &out, cfg); err != nil {
		t.Fatalf("wizard rerun: %v", err)
	}
	if len(cfg.Bridges) != 1 {
		t.Errorf("bridges = %+v", cfg.Bridges)
	}
}

func TestRunWizard_RejectsNonNumericChat(t *testing.T) {
	cfg := config.Defaults()
	in := strings.NewReader("a\nb\n@mychannel\n\nn\n")
	if err := runWizard(in, &bytes.Buffer{}, cfg); err == nil {
		t.Error("expected validation error for non-numeric chat id")
	}
}

func TestLoadConfig_BridgesNotArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"telegram_bot_token":"a","revolt_bot_token":"b","bridges":"not-an-array"}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	configPath = path
	t.Cleanup(func() { configPath = "" })

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected load failure for non-array bridges")
	}
}

func TestLoadConfig_LogLevelFlagWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"telegram_bot_token":"a","revolt_bot_token":"b","bridges":[],"log_level":"error"}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	configPath, logLevel = path, "debug"
	t.Cleanup(func() { configPath, logLevel = "", "" })

	if _, err := loadConfig(); err != nil {
		t.Fatal(err)
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("--log-level should override log_level")
	}
}
