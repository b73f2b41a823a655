package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speedrss/internal/config"
	"speedrss/internal/logging"
	"speedrss/internal/notifier"
	"speedrss/internal/registry"
)

const (
	httpShutdownTimeout     = 10 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.LoadNotifier()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg, "speedrss-notifier")
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	chatRegistry := registry.New(cfg.ChatsFile, logger)

	var (
		relay    notifier.Broadcaster
		tgClient *notifier.Client
	)

	if cfg.TelegramToken != "" {
		tgClient, err = notifier.NewClient(cfg, chatRegistry, logger)
		if err != nil {
			logger.WithError(err).Error("telegram client setup error")
			fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
			os.Exit(1)
		}
		relay = notifier.NewRelay(tgClient, chatRegistry, logger)

		logger.WithFields(logging.Fields{
			"event":      "telegram_ready",
			"chat_count": chatRegistry.Count(),
		}).Info("telegram client initialized")
	} else {
		logger.WithField("event", "telegram_unconfigured").Warn("TELEGRAM_TOKEN not set, /notify will answer 503")
	}

	server := notifier.NewServer(cfg.HTTPPort, relay, chatRegistry, logger)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverDone := make(chan struct{})
	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.WithError(err).Error("notifier server error")
		}
		close(serverDone)
	}()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	if tgClient != nil {
		go func() {
			tgClient.Start(telegramCtx)
			close(tgDone)
		}()
	} else {
		close(tgDone)
	}

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping notifier")
	case <-serverDone:
		logger.WithField("event", "server_stopped_early").Warn("notifier server stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("notifier server shutdown error")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
