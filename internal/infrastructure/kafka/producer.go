package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domainEvent "github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

const headerEventType = "event-type"

type Config struct {
	Brokers []string
	Topic   string
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg Config) *Producer {
	w := &kafka.Writer{
		Addr:  kafka.TCP(cfg.Brokers...),
		Topic: cfg.Topic,
		// Keyed by message id, so redeliveries of one message share a partition.
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: w}
}

// Publish writes ev synchronously and returns once every in-sync replica
// has acknowledged it.
func (p *Producer) Publish(ctx context.Context, ev domainEvent.Message) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.CorrelationID),
		Value:   value,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(ev.Type)}},
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func (p *Producer) Topic() string {
	return p.writer.Topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
