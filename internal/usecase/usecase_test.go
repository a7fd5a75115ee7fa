package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type storeMock struct {
	mock.Mock
}

func (m *storeMock) Create(ctx context.Context, msg *message.Message) error {
	args := m.Called(ctx, msg)
	if args.Error(0) == nil {
		msg.ID = "65f0aa"
		msg.CreatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return args.Error(0)
}

func (m *storeMock) FindAny(ctx context.Context) (*message.Message, error) {
	args := m.Called(ctx)
	msg, _ := args.Get(0).(*message.Message)
	return msg, args.Error(1)
}

func (m *storeMock) List(ctx context.Context, offset, limit int) ([]message.Message, error) {
	args := m.Called(ctx, offset, limit)
	msgs, _ := args.Get(0).([]message.Message)
	return msgs, args.Error(1)
}

type indexMock struct {
	mock.Mock
}

func (m *indexMock) Search(ctx context.Context, text string, from, size int) (*message.SearchResult, error) {
	args := m.Called(ctx, text, from, size)
	res, _ := args.Get(0).(*message.SearchResult)
	return res, args.Error(1)
}

func (m *indexMock) Health(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type recordingPropagator struct {
	propagated []message.Message
}

func (p *recordingPropagator) Propagate(_ context.Context, m message.Message) {
	p.propagated = append(p.propagated, m)
}

type mapCache struct {
	version     int
	pages       map[string][]message.Message
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{pages: map[string][]message.Message{}}
}

func (c *mapCache) Load(_ context.Context, page int) (string, []message.Message, bool) {
	key := fmt.Sprintf("v%d:%d", c.version, page)
	msgs, ok := c.pages[key]
	return key, msgs, ok
}

func (c *mapCache) Save(_ context.Context, key string, msgs []message.Message) {
	c.pages[key] = msgs
}

func (c *mapCache) Invalidate(context.Context) {
	c.version++
	c.invalidated++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateMessage_StoresTextAsSentAndPropagates(t *testing.T) {
	req := require.New(t)
	store := &storeMock{}
	store.On("Create", mock.Anything, mock.MatchedBy(func(m *message.Message) bool {
		return m.Text == "  hello \n"
	})).Return(nil)
	prop := &recordingPropagator{}
	cache := newMapCache()

	uc := NewCreateMessage(store, cache, prop, discardLogger())
	m, err := uc.Execute(context.Background(), CreateMessageParams{Text: "  hello \n"})

	req.NoError(err)
	req.Equal("65f0aa", m.ID)
	req.Equal("  hello \n", m.Text)
	req.Len(prop.propagated, 1)
	req.Equal(*m, prop.propagated[0])
	req.Equal(1, cache.invalidated)
	store.AssertExpectations(t)
}

func TestCreateMessage_RejectsBlankText(t *testing.T) {
	for _, text := range []string{"", "   ", "\t\n"} {
		store := &storeMock{}
		prop := &recordingPropagator{}
		uc := NewCreateMessage(store, nil, prop, discardLogger())

		_, err := uc.Execute(context.Background(), CreateMessageParams{Text: text})

		require.ErrorIs(t, err, message.ErrValidation)
		require.Empty(t, prop.propagated)
		store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	}
}

func TestCreateMessage_StoreFailureSkipsPropagation(t *testing.T) {
	req := require.New(t)
	store := &storeMock{}
	store.On("Create", mock.Anything, mock.Anything).Return(fmt.Errorf("%w: timeout", message.ErrStoreUnavailable))
	prop := &recordingPropagator{}
	cache := newMapCache()

	_, err := NewCreateMessage(store, cache, prop, discardLogger()).Execute(context.Background(), CreateMessageParams{Text: "hi"})

	req.ErrorIs(err, message.ErrStoreUnavailable)
	req.Empty(prop.propagated)
	req.Zero(cache.invalidated)
}

func TestListMessages_ClampsPageAndNeverReturnsNil(t *testing.T) {
	req := require.New(t)
	store := &storeMock{}
	store.On("List", mock.Anything, 0, message.PageSize).Return(nil, nil)

	msgs, err := NewListMessages(store, nil).Execute(context.Background(), -3)

	req.NoError(err)
	req.NotNil(msgs)
	req.Empty(msgs)
	store.AssertExpectations(t)
}

func TestListMessages_UsesOffsetForPage(t *testing.T) {
	store := &storeMock{}
	store.On("List", mock.Anything, 20, message.PageSize).Return([]message.Message{{ID: "a"}}, nil)

	msgs, err := NewListMessages(store, nil).Execute(context.Background(), 3)

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	store.AssertExpectations(t)
}

func TestListMessages_CacheIsBypassedAfterCreate(t *testing.T) {
	req := require.New(t)
	cache := newMapCache()
	store := &storeMock{}
	store.On("List", mock.Anything, 0, message.PageSize).Return([]message.Message{{ID: "old"}}, nil).Once()
	store.On("List", mock.Anything, 0, message.PageSize).Return([]message.Message{{ID: "new"}, {ID: "old"}}, nil).Once()
	store.On("Create", mock.Anything, mock.Anything).Return(nil)

	list := NewListMessages(store, cache)
	create := NewCreateMessage(store, cache, &recordingPropagator{}, discardLogger())
	ctx := context.Background()

	first, err := list.Execute(ctx, 1)
	req.NoError(err)
	req.Len(first, 1)

	cached, err := list.Execute(ctx, 1)
	req.NoError(err)
	req.Equal(first, cached)

	_, err = create.Execute(ctx, CreateMessageParams{Text: "new"})
	req.NoError(err)

	fresh, err := list.Execute(ctx, 1)
	req.NoError(err)
	req.Len(fresh, 2)
	store.AssertNumberOfCalls(t, "List", 2)
}

func TestListMessages_StoreError(t *testing.T) {
	store := &storeMock{}
	store.On("List", mock.Anything, 0, message.PageSize).Return(nil, message.ErrStoreUnavailable)

	_, err := NewListMessages(store, nil).Execute(context.Background(), 1)
	require.ErrorIs(t, err, message.ErrStoreUnavailable)
}

func TestSearchMessages_BlankTextNeverHitsIndex(t *testing.T) {
	index := &indexMock{}

	_, err := NewSearchMessages(index).Execute(context.Background(), "  ", 1)

	require.ErrorIs(t, err, message.ErrValidation)
	index.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSearchMessages_PaginatesAndFillsEmptyResults(t *testing.T) {
	req := require.New(t)
	index := &indexMock{}
	index.On("Search", mock.Anything, "hello", 10, message.PageSize).Return(&message.SearchResult{Total: 11}, nil)

	res, err := NewSearchMessages(index).Execute(context.Background(), "hello", 2)

	req.NoError(err)
	req.NotNil(res.Results)
	req.EqualValues(11, res.Total)
	index.AssertExpectations(t)
}

func TestHealth_ReportsBothProbes(t *testing.T) {
	req := require.New(t)
	sample := &message.Message{ID: "a", Text: "x"}
	store := &storeMock{}
	store.On("FindAny", mock.Anything).Return(sample, nil)
	index := &indexMock{}
	index.On("Health", mock.Anything).Return("green", nil)

	report, err := NewHealth(store, index, time.Second).Execute(context.Background())

	req.NoError(err)
	req.Equal(HealthOK, report.Status)
	req.Equal(sample, report.DBSampleMessage)
	req.Equal("green", report.Elasticsearch)
}

func TestHealth_EmptyStoreIsHealthy(t *testing.T) {
	store := &storeMock{}
	store.On("FindAny", mock.Anything).Return(nil, nil)
	index := &indexMock{}
	index.On("Health", mock.Anything).Return("yellow", nil)

	report, err := NewHealth(store, index, time.Second).Execute(context.Background())

	require.NoError(t, err)
	require.Nil(t, report.DBSampleMessage)
}

func TestHealth_IndexFailure(t *testing.T) {
	store := &storeMock{}
	store.On("FindAny", mock.Anything).Return(nil, nil)
	index := &indexMock{}
	index.On("Health", mock.Anything).Return("", errors.New("connection refused"))

	_, err := NewHealth(store, index, time.Second).Execute(context.Background())

	require.ErrorContains(t, err, "elasticsearch: connection refused")
}

func TestListMessages_HugePageDoesNotOverflow(t *testing.T) {
	store := &storeMock{}
	store.On("List", mock.Anything, (message.MaxPage-1)*message.PageSize, message.PageSize).Return(nil, nil)

	msgs, err := NewListMessages(store, nil).Execute(context.Background(), math.MaxInt)

	require.NoError(t, err)
	require.Empty(t, msgs)
	store.AssertExpectations(t)
}

func TestSearchMessages_LastPageInsideResultWindow(t *testing.T) {
	index := &indexMock{}
	index.On("Search", mock.Anything, "hello", message.MaxResultWindow-message.PageSize, message.PageSize).
		Return(&message.SearchResult{Results: []message.Message{{ID: "a"}}, Total: 20000}, nil)

	res, err := NewSearchMessages(index).Execute(context.Background(), "hello", message.MaxResultWindow/message.PageSize)

	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	index.AssertExpectations(t)
}

func TestSearchMessages_BeyondResultWindowReturnsTotalOnly(t *testing.T) {
	for _, page := range []int{message.MaxResultWindow/message.PageSize + 1, 1844674407370955163, math.MaxInt} {
		index := &indexMock{}
		index.On("Search", mock.Anything, "hello", 0, 0).Return(&message.SearchResult{Total: 20000}, nil)

		res, err := NewSearchMessages(index).Execute(context.Background(), "hello", page)

		require.NoError(t, err, "page %d", page)
		require.NotNil(t, res.Results)
		require.Empty(t, res.Results)
		require.EqualValues(t, 20000, res.Total)
		index.AssertExpectations(t)
	}
}
