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
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/consumer"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/infrastructure/kafka"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/pkg/retry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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
		logger.Info("consumer metrics listening", "port", cfg.Metrics.Port)
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

	searchIndex, err := infraFactory.SearchIndex(ctx)
	if err != nil {
		logger.Error("failed to init elasticsearch", "error", err)
		os.Exit(1)
	}

	// Kafka Consumer
	kafkaConsumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		GroupID:     cfg.Kafka.GroupID,
		StartOffset: cfg.Kafka.StartOffset,
	})
	defer kafkaConsumer.Close()

	logger.Info("indexer consumer started", "topic", cfg.Kafka.Topic, "group_id", cfg.Kafka.GroupID)

	indexer := consumer.NewIndexer(searchIndex, messageRepo, retry.DefaultConfig(), logger)
	if err := indexer.Run(ctx, kafkaConsumer); err != nil {
		logger.Error("consumer stopped with error", "error", err)
	}

	logger.Info("consumer exited")
}
