package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"

	"github.com/google/uuid"
)

const TypeMessageCreated = "MessageCreated"

var ErrUnexpectedType = errors.New("unexpected event type")

// Message is the envelope published to Kafka. CorrelationID is the id of
// the stored message, which is also the partition key.
type Message struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Producer      string          `json:"producer"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

func NewMessageCreated(m message.Message, producer string) (Message, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message %s: %w", m.ID, err)
	}

	return Message{
		ID:            uuid.NewString(),
		Type:          TypeMessageCreated,
		CorrelationID: m.ID,
		Producer:      producer,
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
	}, nil
}

// MessageCreated decodes the payload of a MessageCreated event.
func (e Message) MessageCreated() (message.Message, error) {
	if e.Type != TypeMessageCreated {
		return message.Message{}, fmt.Errorf("%w: %q", ErrUnexpectedType, e.Type)
	}

	var m message.Message
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return message.Message{}, fmt.Errorf("unmarshal payload of %s: %w", e.ID, err)
	}
	if m.ID == "" {
		return message.Message{}, fmt.Errorf("event %s carries a message without id", e.ID)
	}
	return m, nil
}
