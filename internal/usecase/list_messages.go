package usecase

import (
	"context"
	"fmt"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"
)

type ListMessages struct {
	store MessageStore
	cache PageCache
}

func NewListMessages(store MessageStore, cache PageCache) *ListMessages {
	return &ListMessages{store: store, cache: cache}
}

// Execute returns one page of messages, newest first. Pages outside
// [1, message.MaxPage] are clamped.
// The result is never nil.
func (uc *ListMessages) Execute(ctx context.Context, page int) ([]message.Message, error) {
	page = message.ClampPage(page)

	var key string
	if uc.cache != nil {
		var (
			cached []message.Message
			hit    bool
		)
		key, cached, hit = uc.cache.Load(ctx, page)
		if hit && cached != nil {
			return cached, nil
		}
	}

	msgs, err := uc.store.List(ctx, message.Offset(page), message.PageSize)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []message.Message{}
	}

	if uc.cache != nil {
		uc.cache.Save(ctx, key, msgs)
	}

	return msgs, nil
}
