package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire format for domain events published to Kafka.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Sink is the transport the publisher writes envelopes to.
type Sink interface {
	Publish(ctx context.Context, key string, value any) error
}

// Publisher wraps domain event payloads in an Envelope before handing
// them to the transport.
type Publisher struct {
	sink Sink
}

func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

func (p *Publisher) Publish(ctx context.Context, key, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	env := Envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		Data:       payload,
		OccurredAt: time.Now(),
	}
	return p.sink.Publish(ctx, key, env)
}
