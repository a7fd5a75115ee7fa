// Package propagation copies stored messages into the search index.
//
// The document store is the source of truth. A message is stored first and
// flagged for propagation in the same write; delivery to the index happens
// afterwards and its failure only leaves the flag set for the poller.
package propagation

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/outbox"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	delivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propagation_delivered_total",
		Help: "Messages successfully handed to the sink",
	}, []string{"sink"})
	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propagation_failures_total",
		Help: "Failed propagation attempts, left for reconciliation",
	}, []string{"sink"})
	settleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propagation_settle_errors_total",
		Help: "Failures to record a propagation outcome in the store",
	})
)

const settleTimeout = 5 * time.Second

type Options struct {
	// Timeout bounds one inline propagation.
	Timeout time.Duration
	// Lease is how long a dispatched message waits for the consumer.
	Lease time.Duration
}

type Result struct {
	Delivered int
	Failed    int
}

type Propagator struct {
	outbox  outbox.Repository
	sink    Sink
	settled outbox.Status
	opts    Options
	log     *slog.Logger
}

// NewDirect propagates by writing into the index; a delivered message is indexed.
func NewDirect(repo outbox.Repository, index Indexer, opts Options, log *slog.Logger) *Propagator {
	return newPropagator(repo, NewIndexSink(index), outbox.StatusIndexed, opts, log)
}

// NewViaKafka propagates by publishing an event; a delivered message is only
// dispatched until the consumer confirms it.
func NewViaKafka(repo outbox.Repository, producer Publisher, producerName string, opts Options, log *slog.Logger) *Propagator {
	return newPropagator(repo, NewKafkaSink(producer, producerName), outbox.StatusDispatched, opts, log)
}

func newPropagator(repo outbox.Repository, sink Sink, settled outbox.Status, opts Options, log *slog.Logger) *Propagator {
	return &Propagator{
		outbox:  repo,
		sink:    sink,
		settled: settled,
		opts:    opts,
		log:     log.With("sink", sink.Name()),
	}
}

// Propagate delivers a freshly stored message. It is detached from the
// caller's cancellation and never fails the caller: errors are logged,
// counted and the message is released to the poller.
func (p *Propagator) Propagate(ctx context.Context, m message.Message) {
	ctx = context.WithoutCancel(ctx)
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	p.DeliverBatch(ctx, []message.Message{m})
}

// DeliverBatch sends each message to the sink and records the outcome.
func (p *Propagator) DeliverBatch(ctx context.Context, msgs []message.Message) Result {
	var ok []string
	failed := make(map[string]error)

	for _, m := range msgs {
		if err := p.sink.Deliver(ctx, m); err != nil {
			p.log.Warn("propagation failed, queued for retry", "message_id", m.ID, "error", err)
			failures.WithLabelValues(p.sink.Name()).Inc()
			failed[m.ID] = err
			continue
		}
		delivered.WithLabelValues(p.sink.Name()).Inc()
		ok = append(ok, m.ID)
	}

	// Outcomes are recorded even when ctx is already done, otherwise a
	// timed out delivery would keep its claim until the lease expires.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if len(ok) > 0 {
		var err error
		if p.settled == outbox.StatusDispatched {
			err = p.outbox.MarkDispatched(settleCtx, ok, p.opts.Lease)
		} else {
			err = p.outbox.MarkIndexed(settleCtx, ok)
		}
		if err != nil {
			settleErrors.Inc()
			p.log.Error("failed to record propagation", "status", p.settled, "count", len(ok), "error", err)
		}
	}

	for id, cause := range failed {
		if err := p.outbox.Release(settleCtx, []string{id}, cause); err != nil {
			settleErrors.Inc()
			p.log.Error("failed to release message", "message_id", id, "error", err)
		}
	}

	return Result{Delivered: len(ok), Failed: len(failed)}
}
