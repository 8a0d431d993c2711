// Package eventbus defines the transport the outbox dispatcher publishes to.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirasaad/ledger/pkg/domain/events"
	"github.com/google/uuid"
)

// Envelope is the serialized form of a domain event as stored in the outbox
// and carried on the bus.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// NewEnvelope serializes event for aggregateID.
func NewEnvelope(event events.Event, aggregateID uuid.UUID, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", event.Type(), err)
	}
	return Envelope{
		ID:          uuid.New(),
		Type:        event.Type(),
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  now,
	}, nil
}

// Decode unmarshals the payload into out.
func (e Envelope) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// HandlerFunc consumes one envelope.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Bus publishes envelopes and fans them out to registered handlers.
type Bus interface {
	Emit(ctx context.Context, env Envelope) error
	Register(eventType string, handler HandlerFunc)
}
