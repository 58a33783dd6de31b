package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"revoltgram/internal/channel"
	"revoltgram/internal/config"
	"revoltgram/internal/revolt"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and both bot tokens",
		Long: `Loads the configuration, checks the bridge list and verifies both bot
tokens against the Telegram and Revolt identity endpoints. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("revoltgram check v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'revoltgram init' to create a sample configuration.\n")
				return fmt.Errorf("config file not found")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := loadConfig()
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return fmt.Errorf("config is invalid")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Bridges
			oneWay := 0
			for _, b := range cfg.Bridges {
				if !b.TelegramChatID.IsSet() || !b.RevoltChannelID.IsSet() {
					oneWay++
				}
			}
			switch {
			case len(cfg.Bridges) == 0:
				printWarn("Bridges", "list is empty, nothing will be relayed")
				warned++
			case oneWay > 0:
				printPass("Bridges", fmt.Sprintf("%d configured (%d one-way)", len(cfg.Bridges), oneWay))
				passed++
			default:
				printPass("Bridges", fmt.Sprintf("%d configured", len(cfg.Bridges)))
				passed++
			}

			// 4. Tokens
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			tgErr, rvErr := validateTokens(ctx, cfg)
			if tgErr != nil {
				printFail("Telegram token", tgErr.Error())
				failed++
			} else {
				printPass("Telegram token", "valid")
				passed++
			}
			if rvErr != nil {
				printFail("Revolt token", rvErr.Error())
				failed++
			} else {
				printPass("Revolt token", "valid")
				passed++
			}

			// 5. Metrics listener
			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					printWarn("Metrics listen", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
					warned++
				} else {
					printPass("Metrics listen", cfg.Metrics.Listen+" available")
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the bridge.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned == 0 {
				fmt.Printf("\nAll checks passed! Start the bridge with 'revoltgram run'.\n")
			}
			return nil
		},
	}
}

// validateTokens checks both tokens against the platforms' identity
// endpoints.
func validateTokens(ctx context.Context, cfg *config.Config) (telegramErr, revoltErr error) {
	httpClient := channel.SharedHTTPClient(time.Duration(cfg.HTTPTimeoutSeconds)*time.Second, userAgent())

	tg := channel.NewTelegram(channel.TelegramConfig{
		Token:      cfg.TelegramBotToken,
		APIURL:     cfg.Endpoints.TelegramAPI,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	_, telegramErr = tg.Connect()

	rv := revolt.New(revolt.Config{
		APIURL:     cfg.Endpoints.RevoltAPI,
		AutumnURL:  cfg.Endpoints.RevoltAutumn,
		Token:      cfg.RevoltBotToken,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	_, revoltErr = rv.Self(ctx)
	return telegramErr, revoltErr
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
