package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultOutboxRetention       = 7 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type readNotificationPruner interface {
	DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type outboxPruner interface {
	DeleteDeliveredBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

// NotificationCleanupParams configure pruning of notifications the user has already read.
type NotificationCleanupParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository readNotificationPruner
	Retention  time.Duration
}

// NewNotificationCleanupJob removes read notifications older than the retention window.
// Unread notifications are never touched.
func NewNotificationCleanupJob(params NotificationCleanupParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultNotificationRetention
	}
	return &pruneJob{
		name:      "read-notification-cleanup",
		logg:      params.Logger,
		db:        params.DB,
		retention: retention,
		now:       time.Now,
		prune: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return params.Repository.DeleteReadBefore(ctx, tx, cutoff)
		},
	}, nil
}

// OutboxRetentionParams configure pruning of relayed or dead-lettered outbox rows.
type OutboxRetentionParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Repository       outboxPruner
	Retention        time.Duration
	TerminalAttempts int
}

// NewOutboxRetentionJob removes outbox rows that were published, or parked at
// TerminalAttempts, before the retention window.
func NewOutboxRetentionJob(params OutboxRetentionParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.TerminalAttempts <= 0 {
		return nil, fmt.Errorf("terminal attempts must be positive")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	attempts := params.TerminalAttempts
	return &pruneJob{
		name:      "outbox-retention",
		logg:      params.Logger,
		db:        params.DB,
		retention: retention,
		now:       time.Now,
		prune: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return params.Repository.DeleteDeliveredBefore(ctx, tx, cutoff, attempts)
		},
	}, nil
}

type pruneJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	retention time.Duration
	now       func() time.Time
	prune     func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

func (j *pruneJob) Name() string { return j.name }

func (j *pruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.prune(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	}), "prune complete")
	return nil
}
