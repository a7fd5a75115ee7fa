package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/outbox"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/propagation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_messages_reconciled_total",
		Help: "Messages delivered by the outbox poller",
	})
	reconcileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_reconcile_errors_total",
		Help: "Failed deliveries and claim errors seen by the outbox poller",
	})
	backlog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_outbox_backlog",
		Help: "Messages not yet confirmed in the search index",
	})
)

// Deliverer is the part of the propagator the poller needs.
type Deliverer interface {
	DeliverBatch(ctx context.Context, msgs []message.Message) propagation.Result
}

// StatsReader is optional; when the repository implements it the poller
// publishes the backlog gauge.
type StatsReader interface {
	Stats(ctx context.Context) (outbox.Stats, error)
}

type PollerConfig struct {
	Interval  time.Duration
	BatchSize int
	Lease     time.Duration
}

// OutboxPoller retries propagation for messages whose inline attempt failed
// or whose claim expired.
type OutboxPoller struct {
	outboxRepo outbox.Repository
	deliverer  Deliverer
	cfg        PollerConfig
	log        *slog.Logger
}

func NewOutboxPoller(outboxRepo outbox.Repository, deliverer Deliverer, cfg PollerConfig, log *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		outboxRepo: outboxRepo,
		deliverer:  deliverer,
		cfg:        cfg,
		log:        log.With("component", "outbox_poller"),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.log.Info("outbox poller started", "interval", p.cfg.Interval, "batch_size", p.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("outbox poller stopped")
			return nil
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.log.Error("failed to process batch", "error", err)
			}
			p.reportBacklog(ctx)
		}
	}
}

// drain keeps processing full batches so a backlog clears without waiting
// one tick per batch.
func (p *OutboxPoller) drain(ctx context.Context) error {
	for ctx.Err() == nil {
		n, err := p.processBatch(ctx)
		if err != nil {
			return err
		}
		if n < p.cfg.BatchSize {
			return nil
		}
	}
	return nil
}

func (p *OutboxPoller) processBatch(ctx context.Context) (int, error) {
	msgs, err := p.outboxRepo.ClaimBatch(ctx, p.cfg.BatchSize, p.cfg.Lease)
	if err != nil {
		reconcileErrors.Inc()
		return 0, err
	}

	if len(msgs) == 0 {
		return 0, nil
	}

	res := p.deliverer.DeliverBatch(ctx, msgs)
	messagesReconciled.Add(float64(res.Delivered))
	reconcileErrors.Add(float64(res.Failed))

	p.log.Info("outbox batch processed", "claimed", len(msgs), "delivered", res.Delivered, "failed", res.Failed)

	if res.Failed > 0 && res.Delivered == 0 {
		// Whole batch failed: the sink is likely down, back off until next tick.
		return 0, nil
	}
	return len(msgs), nil
}

func (p *OutboxPoller) reportBacklog(ctx context.Context) {
	sr, ok := p.outboxRepo.(StatsReader)
	if !ok {
		return
	}
	stats, err := sr.Stats(ctx)
	if err != nil {
		p.log.Debug("failed to read outbox stats", "error", err)
		return
	}
	backlog.Set(float64(stats.Backlog()))
}
