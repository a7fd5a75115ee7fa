package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type runner interface {
	Run(ctx context.Context) error
}

// Worker runs the reconciliation loops side by side until ctx is done.
type Worker struct {
	loops []runner
}

// New builds a worker from the poller and an optional sweeper.
func New(poller *OutboxPoller, sweeper *Sweeper) *Worker {
	w := &Worker{loops: []runner{poller}}
	if sweeper != nil {
		w.loops = append(w.loops, sweeper)
	}
	return w
}

func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, loop := range w.loops {
		g.Go(func() error {
			return loop.Run(ctx)
		})
	}
	return g.Wait()
}
