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

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/application/factories/infrastructure"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/config"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const producerName = "messages-worker"

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Metrics Server
	metricsSrv := &http.Server{Addr: ":" + cfg.Metrics.Port, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.Metrics.Port)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer metricsSrv.Close()

	// Infrastructure
	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		infraFactory.Close(closeCtx)
	}()

	messageRepo, err := infraFactory.MessageRepository(ctx)
	if err != nil {
		logger.Error("failed to connect to mongo", "error", err)
		os.Exit(1)
	}

	propagator, err := infraFactory.Propagator(ctx, producerName)
	if err != nil {
		logger.Error("failed to init propagation", "error", err)
		os.Exit(1)
	}

	poller := worker.NewOutboxPoller(messageRepo, propagator, worker.PollerConfig{
		Interval:  cfg.Sync.PollInterval,
		BatchSize: cfg.Sync.BatchSize,
		Lease:     cfg.Sync.Lease,
	}, logger)

	var sweeper *worker.Sweeper
	if cfg.Sync.ReindexCron != "" {
		sweeper, err = worker.NewSweeper(messageRepo, propagator, worker.SweepConfig{
			Cron:      cfg.Sync.ReindexCron,
			Rate:      cfg.Sync.ReindexRate,
			BatchSize: cfg.Sync.BatchSize,
		}, logger)
		if err != nil {
			logger.Error("failed to init reindex sweeper", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("worker starting", "sync_mode", cfg.Sync.Mode, "reindex_cron", cfg.Sync.ReindexCron)

	// Run
	if err := worker.New(poller, sweeper).Run(ctx); err != nil {
		logger.Error("worker stopped with error", "error", err)
	}

	logger.Info("worker exited")
}
