package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"

	"golang.org/x/sync/errgroup"
)

const HealthOK = "OK"

type HealthReport struct {
	Status          string           `json:"status"`
	DBSampleMessage *message.Message `json:"dbSampleMessage"`
	Elasticsearch   string           `json:"elasticsearch"`
}

type Health struct {
	store   MessageStore
	index   SearchIndex
	timeout time.Duration
}

func NewHealth(store MessageStore, index SearchIndex, timeout time.Duration) *Health {
	return &Health{store: store, index: index, timeout: timeout}
}

// Execute probes both stores concurrently. The first failing probe decides
// the error.
func (uc *Health) Execute(ctx context.Context) (*HealthReport, error) {
	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	report := &HealthReport{Status: HealthOK}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sample, err := uc.store.FindAny(gctx)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		report.DBSampleMessage = sample
		return nil
	})

	g.Go(func() error {
		status, err := uc.index.Health(gctx)
		if err != nil {
			return fmt.Errorf("elasticsearch: %w", err)
		}
		report.Elasticsearch = status
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}
