package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/api"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/application/factories/infrastructure"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/config"
	redisInfra "github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/infrastructure/redis"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/usecase"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/worker"
)

const producerName = "messages-api"

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		infraFactory.Close(closeCtx)
	}()

	// Dependencies
	messageRepo, err := infraFactory.MessageRepository(ctx)
	if err != nil {
		logger.Error("failed to connect to mongo", "error", err)
		os.Exit(1)
	}
	if err := messageRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("failed to ensure mongo indexes", "error", err)
	}

	searchIndex, err := infraFactory.SearchIndex(ctx)
	if err != nil {
		logger.Error("failed to init elasticsearch", "error", err)
		os.Exit(1)
	}

	propagator, err := infraFactory.Propagator(ctx, producerName)
	if err != nil {
		logger.Error("failed to init propagation", "error", err)
		os.Exit(1)
	}

	var pageCache usecase.PageCache
	redisClient := infraFactory.Redis(ctx)
	if redisClient != nil {
		pageCache = redisInfra.NewPageCache(redisClient, cfg.Redis.CacheTTL, logger)
	}

	// UseCases
	createMessageUC := usecase.NewCreateMessage(messageRepo, pageCache, propagator, logger)
	listMessagesUC := usecase.NewListMessages(messageRepo, pageCache)
	searchMessagesUC := usecase.NewSearchMessages(searchIndex)
	healthUC := usecase.NewHealth(messageRepo, searchIndex, cfg.HTTP.HealthTimeout)

	// Embedded reconciler
	if cfg.Sync.EmbeddedWorker {
		poller := worker.NewOutboxPoller(messageRepo, propagator, worker.PollerConfig{
			Interval:  cfg.Sync.PollInterval,
			BatchSize: cfg.Sync.BatchSize,
			Lease:     cfg.Sync.Lease,
		}, logger)
		go func() {
			if err := poller.Run(ctx); err != nil {
				logger.Error("embedded outbox poller stopped", "error", err)
			}
		}()
	}

	// REST API Handler
	handlers := api.NewHandlers(createMessageUC, listMessagesUC, searchMessagesUC, healthUC, logger)
	apiHandler := api.NewRouter(handlers, redisClient, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           apiHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.HTTP.Port, "sync_mode", cfg.Sync.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exiting")
}
