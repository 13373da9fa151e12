package notifications

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
)

// RetentionRepository prunes notifications for the maintenance worker.
type RetentionRepository struct {
	db *gorm.DB
}

func NewRetentionRepository(db *gorm.DB) *RetentionRepository {
	return &RetentionRepository{db: db}
}

// DeleteReadBefore removes notifications read before cutoff. Unread rows are kept
// regardless of age. tx falls back to the repository connection when nil.
func (r *RetentionRepository) DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := tx
	if conn == nil {
		conn = r.db
	}
	if conn == nil {
		return 0, errors.New("database required")
	}
	res := conn.WithContext(ctx).
		Where("is_read = ? AND read_at IS NOT NULL AND read_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
