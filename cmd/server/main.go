package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speedrss/internal/config"
	"speedrss/internal/domain"
	"speedrss/internal/extract"
	"speedrss/internal/httpserver"
	"speedrss/internal/ingest"
	"speedrss/internal/logging"
	"speedrss/internal/store"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoIndexTimeout      = 5 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	httpShutdownTimeout    = 10 * time.Second
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg, "speedrss-server")
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	posts := domain.NewPostRepository(mongoManager.Posts())
	extractor := extract.NewClient(cfg.OEmbedURL, logger)
	pipeline := ingest.NewPipeline(posts, extractor, cfg.NotifyURL, logger)
	statsProvider := store.NewStatsProvider(mongoManager.Posts())

	server := httpserver.NewServer(cfg.HTTPPort, pipeline, posts, mongoManager, statsProvider, logger)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverDone := make(chan struct{})
	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.WithError(err).Error("feed server error")
		}
		close(serverDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping feed server")
	case <-serverDone:
		logger.WithField("event", "server_stopped_early").Warn("feed server stopped before shutdown signal")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("feed server shutdown error")
	}
	cancelShutdown()

	disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(disconnectCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelDisconnect()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
