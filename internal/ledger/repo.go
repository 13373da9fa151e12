package ledger

import (
	"context"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for audit records. It never updates or deletes rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.AuditRecord) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.AuditRecord, error)
	ListByDraft(ctx context.Context, draftID uuid.UUID) ([]models.AuditRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.AuditRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) ListByDraft(ctx context.Context, draftID uuid.UUID) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	if err := r.db.WithContext(ctx).
		Where("draft_id = ?", draftID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
