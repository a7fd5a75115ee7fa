package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"

	"github.com/adhocore/gronx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_reindex_runs_total",
		Help: "Full re-index runs by outcome",
	}, []string{"outcome"})
	sweepMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_reindex_messages_total",
		Help: "Messages re-delivered by full re-index runs",
	})
)

type Scanner interface {
	Scan(ctx context.Context, afterID string, limit int) ([]message.Message, error)
}

type SweepConfig struct {
	Cron      string
	Rate      float64 // messages per second
	BatchSize int
}

// Sweeper periodically re-delivers every stored message. It repairs
// divergence the outbox flag cannot see, such as an index that lost data.
type Sweeper struct {
	store     Scanner
	deliverer Deliverer
	cfg       SweepConfig
	limiter   *rate.Limiter
	log       *slog.Logger
}

func NewSweeper(store Scanner, deliverer Deliverer, cfg SweepConfig, log *slog.Logger) (*Sweeper, error) {
	if !gronx.IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid reindex cron expression: %q", cfg.Cron)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = message.PageSize
	}
	burst := int(cfg.Rate)
	if burst < 1 {
		burst = 1
	}

	return &Sweeper{
		store:     store,
		deliverer: deliverer,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Rate), burst),
		log:       log.With("component", "reindex_sweeper"),
	}, nil
}

func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("reindex sweeper started", "cron", s.cfg.Cron, "rate", s.cfg.Rate)

	for {
		next, err := gronx.NextTickAfter(s.cfg.Cron, time.Now().UTC(), false)
		if err != nil {
			return fmt.Errorf("next reindex tick: %w", err)
		}

		select {
		case <-ctx.Done():
			s.log.Info("reindex sweeper stopped")
			return nil
		case <-time.After(time.Until(next)):
		}

		started := time.Now()
		n, err := s.SweepOnce(ctx)
		if err != nil {
			sweepRuns.WithLabelValues("error").Inc()
			s.log.Error("reindex run failed", "delivered", n, "error", err)
			continue
		}
		sweepRuns.WithLabelValues("ok").Inc()
		s.log.Info("reindex run finished", "delivered", n, "took", time.Since(started))
	}
}

// SweepOnce walks the whole store once and returns how many messages were
// delivered. Failed deliveries are released to the poller by the deliverer.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	var total int
	cursor := ""

	for {
		batch, err := s.store.Scan(ctx, cursor, s.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		for range batch {
			if err := s.limiter.Wait(ctx); err != nil {
				return total, err
			}
		}

		res := s.deliverer.DeliverBatch(ctx, batch)
		total += res.Delivered
		sweepMessages.Add(float64(res.Delivered))

		cursor = batch[len(batch)-1].ID
	}
}
