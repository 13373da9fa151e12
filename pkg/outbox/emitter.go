package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
)

const defaultSchemaVersion = 1

// Event is one domain change queued for the relay. SchemaVersion selects the
// payload decoder on the consuming side and defaults to 1.
type Event struct {
	Type          enums.OutboxEventType
	Aggregate     enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	SchemaVersion int
	OccurredAt    time.Time
}

func (e Event) validate() error {
	switch {
	case !e.Type.IsValid():
		return pkgerrors.New(pkgerrors.CodeInternal, "unknown outbox event type").WithDetails(map[string]any{"event_type": e.Type})
	case !e.Aggregate.IsValid():
		return pkgerrors.New(pkgerrors.CodeInternal, "unknown outbox aggregate type").WithDetails(map[string]any{"aggregate_type": e.Aggregate})
	case e.Type.Aggregate() != e.Aggregate:
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox event type does not belong to aggregate").
			WithDetails(map[string]any{"event_type": e.Type, "aggregate_type": e.Aggregate})
	case e.AggregateID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox event missing aggregate id")
	case e.SchemaVersion < 0:
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox schema version must be positive")
	}
	return nil
}

// Emitter writes events into outbox_events inside the caller's transaction,
// so an event exists exactly when the change that raised it commits.
type Emitter struct {
	repo  *Repository
	logg  *logger.Logger
	now   func() time.Time
	newID func() uuid.UUID
}

func NewEmitter(repo *Repository, logg *logger.Logger) *Emitter {
	return &Emitter{repo: repo, logg: logg, now: time.Now, newID: uuid.New}
}

// Emit queues event on tx. Encoding and validation failures are typed
// internal errors; insert failures are returned as the driver reported them.
func (e *Emitter) Emit(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errTxRequired
	}
	if err := event.validate(); err != nil {
		return err
	}
	if event.SchemaVersion == 0 {
		event.SchemaVersion = defaultSchemaVersion
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode outbox payload")
	}
	envelope := PayloadEnvelope{
		Version:    event.SchemaVersion,
		EventID:    e.newID().String(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode outbox envelope")
	}

	if err := e.repo.Insert(tx.WithContext(ctx), models.OutboxEvent{
		EventType:     event.Type,
		AggregateType: event.Aggregate,
		AggregateID:   event.AggregateID,
		Payload:       body,
	}); err != nil {
		return err
	}

	if e.logg != nil {
		e.logg.Debug(e.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.Type,
			"aggregate_type": event.Aggregate,
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": envelope.Version,
		}), "outbox event queued")
	}
	return nil
}
