package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"revoltgram/internal/config"

	"github.com/spf13/cobra"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: tokens → bridge → save config",
		Long:  "Asks for both bot tokens and one chat/channel pair and writes the config to the path used by --config or the default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			cfg, err := config.Load(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}
			if err := runWizard(os.Stdin, os.Stdout, cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
			fmt.Println("Next: run 'revoltgram check', then 'revoltgram run'.")
			return nil
		},
	}
}

// runWizard fills cfg from answers read from in. Existing values are
// offered as defaults; the new bridge is appended unless an identical one
// exists.
func runWizard(in io.Reader, out io.Writer, cfg *config.Config) error {
	reader := bufio.NewReader(in)
	prompt := func(label, def string) (string, error) {
		fmt.Fprint(out, label)
		if def != "" {
			fmt.Fprintf(out, " [%s]: ", def)
		} else {
			fmt.Fprint(out, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Tokens
	fmt.Fprintln(out, "\n--- Step 1: Bot tokens ---")
	tgDef := cfg.TelegramBotToken
	if tgDef == "" {
		tgDef = "${TELEGRAM_BOT_TOKEN}"
	}
	tok, err := prompt("Telegram bot token (from @BotFather) or env var", tgDef)
	if err != nil {
		return err
	}
	cfg.TelegramBotToken = tok

	rvDef := cfg.RevoltBotToken
	if rvDef == "" {
		rvDef = "${REVOLT_BOT_TOKEN}"
	}
	tok, err = prompt("Revolt bot token or env var", rvDef)
	if err != nil {
		return err
	}
	cfg.RevoltBotToken = tok

	// Step 2: Bridge
	fmt.Fprintln(out, "\n--- Step 2: Bridge ---")
	fmt.Fprintln(out, "Leave one side empty for a one-way bridge.")
	chat, err := prompt("Telegram chat ID (e.g. -1001234567890)", "")
	if err != nil {
		return err
	}
	channelID, err := prompt("Revolt channel ID", "")
	if err != nil {
		return err
	}

	if cfg.Bridges == nil {
		cfg.Bridges = []config.Bridge{}
	}
	if chat != "" || channelID != "" {
		b := config.Bridge{TelegramChatID: config.FlexID(chat), RevoltChannelID: config.FlexID(channelID)}
		exists := false
		for _, existing := range cfg.Bridges {
			if existing == b {
				exists = true
				break
			}
		}
		if !exists {
			cfg.Bridges = append(cfg.Bridges, b)
		}
	}

	// Step 3: Masquerade
	fmt.Fprintln(out, "\n--- Step 3: Options ---")
	def := "n"
	if cfg.Revolt.Masquerade {
		def = "y"
	}
	ans, err := prompt("Show Telegram author names on Revolt (masquerade)? y/n", def)
	if err != nil {
		return err
	}
	cfg.Revolt.Masquerade = strings.HasPrefix(strings.ToLower(ans), "y")

	return config.Validate(cfg)
}
