package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/payloads"
)

// ErrUnknownSchema is returned for an (event type, version) pair nobody registered.
var ErrUnknownSchema = errors.New("unknown event schema")

type schemaKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Schema describes one versioned event payload.
type Schema struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Version       int

	decode func(json.RawMessage) (any, error)
}

// Catalog is the set of payload schemas shared by the relay and consumers.
type Catalog struct {
	mu      sync.RWMutex
	schemas map[schemaKey]Schema
}

func NewCatalog() *Catalog {
	return &Catalog{schemas: make(map[schemaKey]Schema)}
}

// Tokenization returns the catalog of events raised by tokenization drafts.
func Tokenization() *Catalog {
	c := NewCatalog()
	Register[payloads.TokenizationStatusChangedEvent](c, enums.EventTokenizationStatusChanged, enums.AggregateTokenizationDraft, 1)
	return c
}

// Register adds a schema whose payload decodes into *T. Registering the same
// event type and version again replaces the earlier schema.
func Register[T any](c *Catalog, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, version int) {
	schema := Schema{
		EventType:     eventType,
		AggregateType: aggregateType,
		Version:       version,
		decode: func(raw json.RawMessage) (any, error) {
			out := new(T)
			if err := json.Unmarshal(raw, out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[schemaKey{eventType: eventType, version: version}] = schema
}

// Lookup returns the schema registered for the event type and version.
func (c *Catalog) Lookup(eventType enums.OutboxEventType, version int) (Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	schema, ok := c.schemas[schemaKey{eventType: eventType, version: version}]
	return schema, ok
}

// Decode turns envelope data into the payload type registered for the schema.
// Empty and null payloads are rejected.
func (c *Catalog) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	schema, ok := c.Lookup(eventType, version)
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrUnknownSchema, eventType, version)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("payload missing for %s@v%d", eventType, version)
	}
	payload, err := schema.decode(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode %s@v%d payload: %w", eventType, version, err)
	}
	return payload, nil
}

// DecodeAs decodes and returns the payload as T.
func DecodeAs[T any](c *Catalog, eventType enums.OutboxEventType, version int, data json.RawMessage) (T, error) {
	var zero T
	payload, err := c.Decode(eventType, version, data)
	if err != nil {
		return zero, err
	}
	typed, ok := payload.(*T)
	if !ok || typed == nil {
		return zero, fmt.Errorf("%s@v%d decodes to %T, not %T", eventType, version, payload, zero)
	}
	return *typed, nil
}
