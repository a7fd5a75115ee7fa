package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"

	"github.com/stretchr/testify/require"
)

// sliceScanner pages through msgs by id the way the store does.
type sliceScanner struct {
	msgs    []message.Message
	err     error
	cursors []string
}

func (s *sliceScanner) Scan(_ context.Context, afterID string, limit int) ([]message.Message, error) {
	s.cursors = append(s.cursors, afterID)
	if s.err != nil {
		return nil, s.err
	}
	start := 0
	if afterID != "" {
		for i, m := range s.msgs {
			if m.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(s.msgs))
	return s.msgs[start:end], nil
}

func TestNewSweeper_RejectsInvalidCron(t *testing.T) {
	_, err := NewSweeper(&sliceScanner{}, &recordingDeliverer{}, SweepConfig{Cron: "every tuesday", Rate: 10}, testLogger())
	require.Error(t, err)
}

func TestSweeper_SweepOnceVisitsEveryMessage(t *testing.T) {
	req := require.New(t)
	scanner := &sliceScanner{msgs: messages(23)}
	deliverer := &recordingDeliverer{}

	s, err := NewSweeper(scanner, deliverer, SweepConfig{Cron: "0 3 * * *", Rate: 10000, BatchSize: 10}, testLogger())
	req.NoError(err)

	n, err := s.SweepOnce(context.Background())
	req.NoError(err)
	req.Equal(23, n)
	req.Equal(23, deliverer.count())
	req.Equal([]string{"", "m09", "m19", "m22"}, scanner.cursors)
}

func TestSweeper_SweepOnceStopsOnScanError(t *testing.T) {
	scanner := &sliceScanner{err: errors.New("cursor lost")}
	s, err := NewSweeper(scanner, &recordingDeliverer{}, SweepConfig{Cron: "@daily", Rate: 100}, testLogger())
	require.NoError(t, err)

	_, err = s.SweepOnce(context.Background())
	require.ErrorContains(t, err, "cursor lost")
}

func TestSweeper_SweepOnceHonoursCancellation(t *testing.T) {
	scanner := &sliceScanner{msgs: messages(5)}
	// One token per second with burst 1: the second wait blocks.
	s, err := NewSweeper(scanner, &recordingDeliverer{}, SweepConfig{Cron: "@daily", Rate: 1}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.SweepOnce(ctx)
	require.Error(t, err)
}
