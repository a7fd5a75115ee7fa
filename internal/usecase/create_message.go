package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"

	"github.com/go-playground/validator/v10"
)

type CreateMessage struct {
	store      MessageStore
	cache      PageCache
	propagator Propagator
	validate   *validator.Validate
	log        *slog.Logger
}

func NewCreateMessage(store MessageStore, cache PageCache, propagator Propagator, log *slog.Logger) *CreateMessage {
	return &CreateMessage{
		store:      store,
		cache:      cache,
		propagator: propagator,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log,
	}
}

type CreateMessageParams struct {
	Text string `validate:"required"`
}

// Execute stores the message and then propagates it. Once the store write
// succeeds the call succeeds, whatever happens to the index.
func (uc *CreateMessage) Execute(ctx context.Context, params CreateMessageParams) (*message.Message, error) {
	// Whitespace alone does not count as a message; the text is stored as sent.
	if err := uc.validate.Struct(CreateMessageParams{Text: strings.TrimSpace(params.Text)}); err != nil {
		return nil, fmt.Errorf("%w: %w", message.ErrValidation, err)
	}

	m := &message.Message{Text: params.Text}
	if err := uc.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if uc.cache != nil {
		uc.cache.Invalidate(ctx)
	}

	uc.propagator.Propagate(ctx, *m)

	uc.log.Debug("message created", "message_id", m.ID)
	return m, nil
}
