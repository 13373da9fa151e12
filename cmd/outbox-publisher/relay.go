package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/config"
	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	"github.com/angelmondragon/tokenizr-backend/pkg/metrics"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

type relayRecorder interface {
	ObserveEvent(eventType, result string)
	ObserveBatch(d time.Duration)
}

type RelayParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	DLQRepository    dlqRepository
	PublisherFactory publisherFactory
	Metrics          relayRecorder
}

// Relay moves committed draft status changes from outbox_events to Pub/Sub.
// Rows of one draft are published in commit order: once a row is held back
// for retry, the draft's later rows wait for the next batch.
type Relay struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	dlq          dlqRepository
	publishers   publisherFactory
	metrics      relayRecorder
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	jitter       *rand.Rand
	now          func() time.Time
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = gcpPublisherFactory(params.PubSub)
	}
	recorder := params.Metrics
	if recorder == nil {
		recorder = metrics.NewRelayMetrics(nil)
	}

	outboxCfg := params.Config.Outbox
	batch := outboxCfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	maxAttempts := outboxCfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Relay{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		publishers:   factory,
		metrics:      recorder,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: outboxCfg.PollInterval(),
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
	}, nil
}

// Run relays batches until ctx is canceled. Batch errors back off
// exponentially up to maxBackoff; an empty outbox waits one poll interval.
func (r *Relay) Run(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", r.db.Ping},
		{"pubsub", r.pubsub.Ping},
	}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			r.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	backoff := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		report, err := r.relayBatch(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox relay batch failed", err)
			backoff = nextBackoff(backoff, r.pollInterval, maxBackoff)
			if err := r.sleep(ctx, backoff); err != nil {
				return err
			}
			continue
		}
		backoff = r.pollInterval

		if report.published > 0 {
			continue
		}
		if err := r.sleep(ctx, r.pollInterval); err != nil {
			return err
		}
	}
}

type batchReport struct {
	fetched      int
	published    int
	retried      int
	deadLettered int
	deferred     int
}

func (r *Relay) relayBatch(ctx context.Context) (batchReport, error) {
	var report batchReport
	start := r.now()
	defer func() { r.metrics.ObserveBatch(r.now().Sub(start)) }()

	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		report = batchReport{}
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		report.fetched = len(events)

		held := map[uuid.UUID]struct{}{}
		for _, event := range events {
			if _, waiting := held[event.AggregateID]; waiting {
				report.deferred++
				r.metrics.ObserveEvent(string(event.EventType), metrics.RelayDeferred)
				continue
			}

			result, err := r.relayEvent(ctx, tx, event)
			if err != nil {
				return err
			}
			switch result {
			case metrics.RelayPublished:
				report.published++
			case metrics.RelayRetry:
				report.retried++
				held[event.AggregateID] = struct{}{}
			case metrics.RelayDeadLettered:
				report.deadLettered++
			}
			r.metrics.ObserveEvent(string(event.EventType), result)
		}
		return nil
	})
	if err == nil && report.fetched > 0 {
		r.logg.Debug(r.logg.WithFields(ctx, map[string]any{
			"fetched":       report.fetched,
			"published":     report.published,
			"retried":       report.retried,
			"dead_lettered": report.deadLettered,
			"deferred":      report.deferred,
		}), "outbox batch relayed")
	}
	return report, err
}

// relayEvent publishes one row and records the result on it. The returned
// error is reserved for bookkeeping failures that must roll the batch back.
func (r *Relay) relayEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (string, error) {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, eventFields(event, nil))
	}
	fields := eventFields(event, resolved)

	err = r.publish(ctx, event, resolved)
	if err == nil {
		if err := r.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		return metrics.RelayPublished, nil
	}

	if registry.IsPermanent(err) {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= r.maxAttempts {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err), fields)
	}

	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox publish failed, will retry", err)
	if err := r.repo.MarkFailedTx(tx, event.ID, err); err != nil {
		return "", fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return metrics.RelayRetry, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) (string, error) {
	fields["error_reason"] = reason
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event dead-lettered", cause)

	if err := r.dlq.InsertTx(tx, event.DeadLetter(reason, cause.Error(), r.now().UTC())); err != nil {
		return "", fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return "", fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return metrics.RelayDeadLettered, nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.Resolved) error {
	topic := resolved.Topic
	pub := r.publishers(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved),
	})
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// messageAttributes carries the routing fields subscribers filter on. Status
// changes also expose from/to so a subscription can select one transition.
func messageAttributes(event models.OutboxEvent, resolved *registry.Resolved) map[string]string {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if change, ok := resolved.Payload.(*payloads.TokenizationStatusChangedEvent); ok && change != nil {
		attrs["from_status"] = string(change.From)
		attrs["to_status"] = string(change.To)
		attrs["token_type"] = string(change.TokenType)
	}
	return attrs
}

func eventFields(event models.OutboxEvent, resolved *registry.Resolved) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"draft_id":      event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if resolved != nil {
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
		}
		if resolved.Topic != "" {
			fields["topic"] = resolved.Topic
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d + time.Duration(r.jitter.Int63n(int64(jitterWindow))))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}
