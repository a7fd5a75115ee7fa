package propagation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	domainEvent "github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/event"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type outboxMock struct {
	mock.Mock
}

func (m *outboxMock) ClaimBatch(ctx context.Context, limit int, lease time.Duration) ([]message.Message, error) {
	args := m.Called(ctx, limit, lease)
	msgs, _ := args.Get(0).([]message.Message)
	return msgs, args.Error(1)
}

func (m *outboxMock) MarkIndexed(ctx context.Context, ids []string) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *outboxMock) MarkDispatched(ctx context.Context, ids []string, lease time.Duration) error {
	return m.Called(ctx, ids, lease).Error(0)
}

func (m *outboxMock) Release(ctx context.Context, ids []string, cause error) error {
	return m.Called(ctx, ids, cause).Error(0)
}

type indexerFunc func(ctx context.Context, m message.Message) error

func (f indexerFunc) Upsert(ctx context.Context, m message.Message) error { return f(ctx, m) }

type publisherFunc func(ctx context.Context, ev domainEvent.Message) error

func (f publisherFunc) Publish(ctx context.Context, ev domainEvent.Message) error {
	return f(ctx, ev)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var opts = Options{Timeout: time.Second, Lease: time.Minute}

func TestPropagator_DirectMarksIndexed(t *testing.T) {
	req := require.New(t)
	repo := &outboxMock{}
	var got []string
	index := indexerFunc(func(_ context.Context, m message.Message) error {
		got = append(got, m.ID)
		return nil
	})

	repo.On("MarkIndexed", mock.Anything, []string{"a", "b"}).Return(nil).Once()

	p := NewDirect(repo, index, opts, discardLogger())
	res := p.DeliverBatch(context.Background(), []message.Message{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}})

	req.Equal(Result{Delivered: 2}, res)
	req.Equal([]string{"a", "b"}, got)
	repo.AssertExpectations(t)
}

func TestPropagator_FailureReleasesWithCause(t *testing.T) {
	req := require.New(t)
	repo := &outboxMock{}
	down := errors.New("index down")
	index := indexerFunc(func(_ context.Context, m message.Message) error {
		if m.ID == "b" {
			return down
		}
		return nil
	})

	repo.On("MarkIndexed", mock.Anything, []string{"a"}).Return(nil).Once()
	repo.On("Release", mock.Anything, []string{"b"}, down).Return(nil).Once()

	p := NewDirect(repo, index, opts, discardLogger())
	res := p.DeliverBatch(context.Background(), []message.Message{{ID: "a"}, {ID: "b"}})

	req.Equal(Result{Delivered: 1, Failed: 1}, res)
	repo.AssertExpectations(t)
}

func TestPropagator_PropagateIgnoresCallerCancellation(t *testing.T) {
	repo := &outboxMock{}
	var sawCancelled bool
	index := indexerFunc(func(ctx context.Context, _ message.Message) error {
		sawCancelled = ctx.Err() != nil
		return nil
	})
	repo.On("MarkIndexed", mock.Anything, []string{"a"}).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewDirect(repo, index, opts, discardLogger()).Propagate(ctx, message.Message{ID: "a"})

	require.False(t, sawCancelled)
	repo.AssertExpectations(t)
}

func TestPropagator_TimeoutStillReleases(t *testing.T) {
	repo := &outboxMock{}
	index := indexerFunc(func(ctx context.Context, _ message.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})
	repo.On("Release", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }),
		[]string{"a"}, context.DeadlineExceeded).Return(nil).Once()

	p := NewDirect(repo, index, Options{Timeout: 10 * time.Millisecond, Lease: time.Minute}, discardLogger())
	p.Propagate(context.Background(), message.Message{ID: "a"})

	repo.AssertExpectations(t)
}

func TestPropagator_SettleErrorIsSwallowed(t *testing.T) {
	repo := &outboxMock{}
	index := indexerFunc(func(context.Context, message.Message) error { return nil })
	repo.On("MarkIndexed", mock.Anything, []string{"a"}).Return(errors.New("mongo down")).Once()

	res := NewDirect(repo, index, opts, discardLogger()).DeliverBatch(context.Background(), []message.Message{{ID: "a"}})

	require.Equal(t, 1, res.Delivered)
	repo.AssertExpectations(t)
}

func TestPropagator_KafkaMarksDispatched(t *testing.T) {
	req := require.New(t)
	repo := &outboxMock{}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var ev domainEvent.Message
	producer := publisherFunc(func(_ context.Context, e domainEvent.Message) error {
		ev = e
		return nil
	})
	repo.On("MarkDispatched", mock.Anything, []string{"a"}, time.Minute).Return(nil).Once()

	p := NewViaKafka(repo, producer, "messages-api", opts, discardLogger())
	res := p.DeliverBatch(context.Background(), []message.Message{{ID: "a", Text: "hello", CreatedAt: at}})

	req.Equal(1, res.Delivered)
	req.Equal(domainEvent.TypeMessageCreated, ev.Type)
	req.Equal("a", ev.CorrelationID)
	req.Equal("messages-api", ev.Producer)
	req.NotEmpty(ev.ID)

	var payload message.Message
	req.NoError(json.Unmarshal(ev.Payload, &payload))
	req.Equal(message.Message{ID: "a", Text: "hello", CreatedAt: at}, payload)
	repo.AssertExpectations(t)
}
