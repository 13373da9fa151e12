// Package idempotency records which consumers have already handled which
// relayed events, so Pub/Sub redeliveries do not repeat side effects.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tokenizr-backend/pkg/redis"
)

const processedScope = "evt:processed"

// Claim is the outcome of trying to take an event for one consumer.
type Claim struct {
	// Duplicate is set when another delivery already claimed the event.
	Duplicate bool
	// ProcessedAt is when the earlier claim was taken, zero when unknown.
	ProcessedAt time.Time
}

// Claims stores one marker per (consumer, event) in Redis with a TTL. The
// marker value is the claim time.
type Claims struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewClaims(store redis.IdempotencyStore, ttl time.Duration) (*Claims, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Claims{store: store, ttl: ttl, now: time.Now}, nil
}

// Acquire claims eventID for consumer. A duplicate claim is not an error.
func (c *Claims) Acquire(ctx context.Context, consumer string, eventID uuid.UUID) (Claim, error) {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return Claim{}, err
	}
	taken, err := c.store.SetNX(ctx, key, c.now().UTC().Format(time.RFC3339Nano), c.ttl)
	if err != nil {
		return Claim{}, err
	}
	if taken {
		return Claim{}, nil
	}

	claim := Claim{Duplicate: true}
	// the marker can expire between SETNX and GET; the claim stays a duplicate
	if raw, err := c.store.Get(ctx, key); err == nil {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			claim.ProcessedAt = at
		}
	}
	return claim, nil
}

// Release drops the claim so a redelivery can try again.
func (c *Claims) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return err
	}
	return c.store.Del(ctx, key)
}

func (c *Claims) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return c.store.IdempotencyKey(processedScope+":"+consumer, eventID.String()), nil
}
