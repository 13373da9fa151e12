package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/tokenizr-backend/pkg/config"
	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox"
)

// PermanentError marks a relay failure that no retry can fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	if e == nil || e.Err == nil {
		return "permanent relay failure"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Permanent wraps err so the relay dead-letters instead of retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Resolved is an outbox row checked against its schema and routed to a topic.
type Resolved struct {
	Schema   Schema
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Router resolves outbox rows into publishable messages.
type Router struct {
	catalog *Catalog
	topics  map[enums.OutboxAggregateType]string
}

// NewRouter sends every tokenization_draft event to the configured topic.
func NewRouter(cfg config.PubSubConfig, catalog *Catalog) (*Router, error) {
	if cfg.TokenizationTopic == "" {
		return nil, errors.New("tokenization topic is required")
	}
	if catalog == nil {
		catalog = Tokenization()
	}
	return &Router{
		catalog: catalog,
		topics: map[enums.OutboxAggregateType]string{
			enums.AggregateTokenizationDraft: cfg.TokenizationTopic,
		},
	}, nil
}

// Resolve validates the row against its schema. Every error it returns is permanent.
func (r *Router) Resolve(event models.OutboxEvent) (*Resolved, error) {
	if event.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	envelope, _, err := outbox.ParseEnvelope(event.Payload)
	if err != nil {
		return nil, Permanent(err)
	}

	schema, ok := r.catalog.Lookup(event.EventType, envelope.Version)
	if !ok {
		return nil, Permanent(fmt.Errorf("%w: %s@v%d", ErrUnknownSchema, event.EventType, envelope.Version))
	}
	if schema.AggregateType != event.AggregateType {
		return nil, Permanent(fmt.Errorf("aggregate mismatch: %s carries %s, got %s", event.EventType, schema.AggregateType, event.AggregateType))
	}
	topic, ok := r.topics[schema.AggregateType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no topic routed for %s", schema.AggregateType))
	}

	payload, err := r.catalog.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, Permanent(err)
	}
	return &Resolved{
		Schema:   schema,
		Topic:    topic,
		Envelope: envelope,
		Payload:  payload,
	}, nil
}
