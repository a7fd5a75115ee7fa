package usecase

import (
	"context"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"
)

type MessageStore interface {
	Create(ctx context.Context, m *message.Message) error
	FindAny(ctx context.Context) (*message.Message, error)
	List(ctx context.Context, offset, limit int) ([]message.Message, error)
}

type SearchIndex interface {
	Search(ctx context.Context, text string, from, size int) (*message.SearchResult, error)
	Health(ctx context.Context) (string, error)
}

// Propagator pushes a stored message towards the search index. It never
// reports failure to the caller; undelivered messages stay in the outbox.
type Propagator interface {
	Propagate(ctx context.Context, m message.Message)
}

// PageCache is optional. A nil PageCache disables list caching.
type PageCache interface {
	Load(ctx context.Context, page int) (key string, msgs []message.Message, ok bool)
	Save(ctx context.Context, key string, msgs []message.Message)
	Invalidate(ctx context.Context)
}
