package outbox

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
)

const (
	maxDeadLetterMessageLen = 1024
	defaultDeadLetterLimit  = 50
	maxDeadLetterLimit      = 200
)

// DeadLetterFilter narrows a dead-letter listing. Zero values match everything.
type DeadLetterFilter struct {
	Reason      enums.OutboxDLQErrorReason
	AggregateID uuid.UUID
	Limit       int
}

// DeadLetters stores outbox rows the relay gave up on.
type DeadLetters struct {
	db *gorm.DB
}

func NewDeadLetters(db *gorm.DB) *DeadLetters {
	return &DeadLetters{db: db}
}

// InsertTx records entry on the relay's batch transaction.
func (d *DeadLetters) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if entry.ErrorMessage != nil {
		msg := truncateRunes(*entry.ErrorMessage, maxDeadLetterMessageLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// Get returns the dead letter written for an outbox event, or
// gorm.ErrRecordNotFound.
func (d *DeadLetters) Get(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	if err := d.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the newest dead letters first.
func (d *DeadLetters) List(ctx context.Context, filter DeadLetterFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultDeadLetterLimit
	case limit > maxDeadLetterLimit:
		limit = maxDeadLetterLimit
	}
	q := d.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if filter.Reason != "" {
		q = q.Where("error_reason = ?", filter.Reason)
	}
	if filter.AggregateID != uuid.Nil {
		q = q.Where("aggregate_id = ?", filter.AggregateID)
	}
	var rows []models.OutboxDLQ
	err := q.Order("failed_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
