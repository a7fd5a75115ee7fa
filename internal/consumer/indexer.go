package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	domainEvent "github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/event"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/outbox"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/pkg/retry"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/propagation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

var (
	messagesIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_indexed_total",
		Help: "Messages indexed from Kafka events",
	})
	messagesReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_released_total",
		Help: "Messages handed back to the outbox after exhausting retries",
	})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consumer_processing_duration_seconds",
		Help:    "Time taken to index one event",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

type Source interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Indexer consumes MessageCreated events and writes them into the index.
// A message that cannot be indexed is released back to the outbox rather
// than dropped, so the poller dispatches it again later.
type Indexer struct {
	index  propagation.Indexer
	outbox outbox.Repository
	retry  retry.Config
	log    *slog.Logger
}

func NewIndexer(index propagation.Indexer, outboxRepo outbox.Repository, retryCfg retry.Config, log *slog.Logger) *Indexer {
	return &Indexer{
		index:  index,
		outbox: outboxRepo,
		retry:  retryCfg,
		log:    log.With("component", "indexer"),
	}
}

func (ix *Indexer) Run(ctx context.Context, src Source) error {
	ix.log.Info("indexer started")

	for {
		msg, err := src.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				ix.log.Info("indexer stopped")
				return nil
			}
			ix.log.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := ix.Handle(ctx, msg.Value); err != nil {
			// Only cancellation gets here; leave the offset uncommitted.
			ix.log.Info("indexer stopped mid-message", "offset", msg.Offset, "error", err)
			return nil
		}

		if err := src.CommitMessages(ctx, msg); err != nil {
			ix.log.Error("failed to commit kafka message", "offset", msg.Offset, "error", err)
		}
	}
}

// Handle processes one event value. It returns an error only when ctx was
// cancelled; every other outcome is final and the offset may be committed.
func (ix *Indexer) Handle(ctx context.Context, value []byte) error {
	started := time.Now()

	var ev domainEvent.Message
	if err := json.Unmarshal(value, &ev); err != nil {
		ix.log.Error("failed to unmarshal event envelope", "error", err)
		return nil
	}
	if ev.Type != domainEvent.TypeMessageCreated {
		return nil
	}

	m, err := ev.MessageCreated()
	if err != nil {
		ix.log.Error("malformed MessageCreated event", "event_id", ev.ID, "error", err)
		return nil
	}

	err = retry.Do(ctx, ix.retry, func(attempt int) error {
		if attempt > 1 {
			ix.log.Info("retrying index", "message_id", m.ID, "attempt", attempt)
		}
		return ix.index.Upsert(ctx, m)
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err != nil {
		ix.log.Error("index failed, releasing message to outbox", "message_id", m.ID, "event_id", ev.ID, "error", err)
		messagesReleased.Inc()
		if relErr := ix.outbox.Release(settleCtx, []string{m.ID}, err); relErr != nil {
			// The dispatch lease expires on its own and the poller picks it up.
			ix.log.Error("failed to release message", "message_id", m.ID, "error", relErr)
		}
		return nil
	}

	if err := ix.outbox.MarkIndexed(settleCtx, []string{m.ID}); err != nil {
		ix.log.Error("failed to mark message indexed", "message_id", m.ID, "error", err)
	}

	processingDuration.Observe(time.Since(started).Seconds())
	messagesIndexed.Inc()
	ix.log.Debug("message indexed", "message_id", m.ID, "event_id", ev.ID)
	return nil
}
