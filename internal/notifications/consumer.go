package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

const reviewQueueConsumer = "review-notifier"

type notifier interface {
	Notify(ctx context.Context, input NotifyInput) (*models.Notification, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type claimer interface {
	Acquire(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Claim, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// ReviewConsumer watches relayed tokenization events and tells the review
// admins when a draft enters the queue. Each reviewer is claimed separately so
// a redelivery after a partial failure only reaches the reviewers still owed.
type ReviewConsumer struct {
	notifier     notifier
	subscription receiver
	claims       claimer
	catalog      *registry.Catalog
	reviewers    []uuid.UUID
	logg         *logger.Logger
}

// NewReviewConsumer builds the review queue consumer.
func NewReviewConsumer(n notifier, subscription *pubsub.Subscriber, claims *idempotency.Claims, reviewers []uuid.UUID, logg *logger.Logger) (*ReviewConsumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("tokenization subscription required")
	}
	if claims == nil {
		return nil, fmt.Errorf("idempotency claims required")
	}
	return newReviewConsumer(n, subscription, claims, reviewers, logg)
}

func newReviewConsumer(n notifier, subscription receiver, claims claimer, reviewers []uuid.UUID, logg *logger.Logger) (*ReviewConsumer, error) {
	if n == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if claims == nil {
		return nil, fmt.Errorf("idempotency claims required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ReviewConsumer{
		notifier:     n,
		subscription: subscription,
		claims:       claims,
		catalog:      registry.Tokenization(),
		reviewers:    reviewers,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *ReviewConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack      bool
	nack     bool
	notified int
	skipped  int
}

func (c *ReviewConsumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	eventType := attrs["event_type"]
	fields := map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if eventType != string(enums.EventTokenizationStatusChanged) {
		c.logg.Debug(logCtx, "skipping unrelated event")
		return processResult{ack: true}
	}

	envelope, eventID, err := outbox.ParseEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	event, err := registry.DecodeAs[payloads.TokenizationStatusChangedEvent](c.catalog, enums.EventTokenizationStatusChanged, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id": eventID.String(),
		"draft_id": event.DraftID.String(),
		"to":       event.To,
	})
	if event.To != enums.DraftStatusSubmitted {
		return processResult{ack: true}
	}
	if len(c.reviewers) == 0 {
		c.logg.Warn(logCtx, "no reviewers configured for submitted draft")
		return processResult{ack: true}
	}

	result := processResult{ack: true}
	for _, reviewer := range c.reviewers {
		consumer := reviewQueueConsumer + ":" + reviewer.String()
		claim, err := c.claims.Acquire(ctx, consumer, eventID)
		if err != nil {
			c.logg.Error(logCtx, "idempotency check failed", err)
			return processResult{nack: true, notified: result.notified, skipped: result.skipped}
		}
		if claim.Duplicate {
			result.skipped++
			fields := map[string]any{"reviewer_id": reviewer.String()}
			if !claim.ProcessedAt.IsZero() {
				fields["processed_at"] = claim.ProcessedAt
			}
			c.logg.Debug(c.logg.WithFields(logCtx, fields), "reviewer already notified")
			continue
		}

		if err := c.notifyReviewer(ctx, reviewer, event); err != nil {
			c.logg.Error(c.logg.WithField(logCtx, "reviewer_id", reviewer.String()), "review notification failed", err)
			if relErr := c.claims.Release(ctx, consumer, eventID); relErr != nil {
				c.logg.Warn(logCtx, "failed to release reviewer claim", relErr)
			}
			return processResult{nack: true, notified: result.notified, skipped: result.skipped}
		}
		result.notified++
	}

	if result.notified > 0 {
		c.logg.Info(c.logg.WithField(logCtx, "notified", result.notified), "reviewers notified of submitted draft")
	}
	return result
}

func (c *ReviewConsumer) notifyReviewer(ctx context.Context, reviewer uuid.UUID, event payloads.TokenizationStatusChangedEvent) error {
	name := event.AssetName
	if name == "" {
		name = event.DraftID.String()
	}
	_, err := c.notifier.Notify(ctx, NotifyInput{
		UserID:  reviewer,
		Type:    enums.NotificationTypeOther,
		Title:   "Tokenization awaiting review",
		Message: fmt.Sprintf("%s (%s token) was submitted and is waiting for review.", name, event.TokenType),
		Metadata: map[string]any{
			"draft_id":   event.DraftID.String(),
			"owner_id":   event.OwnerID.String(),
			"token_type": string(event.TokenType),
		},
	})
	if err != nil {
		return fmt.Errorf("notify reviewer %s: %w", reviewer, err)
	}
	return nil
}
