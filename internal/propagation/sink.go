package propagation

import (
	"context"

	domainEvent "github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/event"
	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"
)

// Sink is where a stored message is sent to become searchable.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, m message.Message) error
}

type Indexer interface {
	Upsert(ctx context.Context, m message.Message) error
}

// IndexSink writes straight into the search index.
type IndexSink struct {
	index Indexer
}

func NewIndexSink(index Indexer) *IndexSink {
	return &IndexSink{index: index}
}

func (s *IndexSink) Name() string { return "index" }

func (s *IndexSink) Deliver(ctx context.Context, m message.Message) error {
	return s.index.Upsert(ctx, m)
}

type Publisher interface {
	Publish(ctx context.Context, ev domainEvent.Message) error
}

// KafkaSink publishes a MessageCreated event; the indexing consumer does the rest.
type KafkaSink struct {
	producer Publisher
	name     string
}

func NewKafkaSink(producer Publisher, producerName string) *KafkaSink {
	return &KafkaSink{producer: producer, name: producerName}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, m message.Message) error {
	ev, err := domainEvent.NewMessageCreated(m, s.name)
	if err != nil {
		return err
	}
	return s.producer.Publish(ctx, ev)
}
