package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"revoltgram/internal/bridge"
	"revoltgram/internal/bus"
	"revoltgram/internal/channel"
	"revoltgram/internal/domain"
	"revoltgram/internal/metrics"
	"revoltgram/internal/revolt"

	"github.com/spf13/cobra"
)

const (
	busBufferSize   = 100
	shutdownTimeout = 30 * time.Second
)

// telegramPollTimeout keeps the long-poll window inside the HTTP client
// timeout.
func telegramPollTimeout(httpTimeout int) int {
	const preferred = 30
	if httpTimeout <= 0 || httpTimeout > preferred+5 {
		return preferred
	}
	return max(1, httpTimeout-5)
}

func runBridge(cmd *cobra.Command, args []string) error {
	// The config, including the bridges list, is validated before any
	// network call.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := channel.SharedHTTPClient(time.Duration(cfg.HTTPTimeoutSeconds)*time.Second, userAgent())

	telegramCh := channel.NewTelegram(channel.TelegramConfig{
		Token:       cfg.TelegramBotToken,
		APIURL:      cfg.Endpoints.TelegramAPI,
		HTTPClient:  httpClient,
		PollTimeout: telegramPollTimeout(cfg.HTTPTimeoutSeconds),
		Logger:      logger,
	})
	tgSelf, err := telegramCh.Connect()
	if err != nil {
		return fmt.Errorf("telegram bot token is not specified or invalid: %w", err)
	}

	revoltClient := revolt.New(revolt.Config{
		APIURL:     cfg.Endpoints.RevoltAPI,
		AutumnURL:  cfg.Endpoints.RevoltAutumn,
		Token:      cfg.RevoltBotToken,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	rvSelf, err := revoltClient.Self(ctx)
	if err != nil {
		return fmt.Errorf("revolt bot token is not specified or invalid: %w", err)
	}
	logger.Info("revolt bot authenticated", "username", rvSelf.Username, "id", rvSelf.ID)

	messageBus := bus.New(busBufferSize, logger)

	router := bridge.NewRouter(cfg.Bridges, bridge.Identity{
		Telegram: strconv.FormatInt(tgSelf.ID, 10),
		Revolt:   rvSelf.ID,
	}, logger)
	relay := bridge.NewRelay(bridge.RelayConfig{
		Router:     router,
		Telegram:   telegramCh,
		Revolt:     revoltClient,
		Masquerade: cfg.Revolt.Masquerade,
		Logger:     logger,
	})

	gatewayCh := channel.NewRevolt(channel.RevoltConfig{
		WSURL:  cfg.Endpoints.RevoltWS,
		Token:  cfg.RevoltBotToken,
		Files:  revoltClient,
		Logger: logger,
	})

	var channelsWG sync.WaitGroup
	channels := []domain.Channel{telegramCh, gatewayCh}
	for _, ch := range channels {
		channelsWG.Add(1)
		go func(ch domain.Channel) {
			defer channelsWG.Done()
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}(ch)
	}

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx, messageBus)
	}()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Collector.Serve(ctx, cfg.Metrics.Listen, logger); err != nil {
				logger.Error("metrics endpoint failed", "err", err)
			}
		}()
	}

	logger.Info("bridge started. Press Ctrl+C to stop.", "bridges", len(cfg.Bridges))

	<-ctx.Done()
	logger.Info("shutting down bridge...")

	return shutdown(channels, &channelsWG, relayDone, messageBus)
}

// shutdown stops the channels, waits for in-flight relays and closes the
// bus, giving up after shutdownTimeout.
func shutdown(channels []domain.Channel, channelsWG *sync.WaitGroup, relayDone <-chan struct{}, messageBus *bus.InMemoryBus) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop failed", "channel", ch.Name(), "err", err)
			}
		}
		channelsWG.Wait()
		<-relayDone
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}
