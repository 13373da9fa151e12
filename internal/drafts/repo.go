package drafts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
)

// Repository persists tokenization drafts. Every mutation is a compare-and-set
// on (status, version) so concurrent writers cannot clobber each other.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, draft *models.TokenizationDraft) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.TokenizationDraft, error)
	List(ctx context.Context, opts ListQuery) ([]models.TokenizationDraft, error)
	UpdateContent(ctx context.Context, id uuid.UUID, version int64, step int, fields map[string]any) (bool, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, from enums.DraftStatus, version int64, updates map[string]any) (bool, error)
	Delete(ctx context.Context, id uuid.UUID, version int64) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a draft repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, draft *models.TokenizationDraft) error {
	return r.db.WithContext(ctx).Create(draft).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.TokenizationDraft, error) {
	var draft models.TokenizationDraft
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&draft).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *repository) List(ctx context.Context, opts ListQuery) ([]models.TokenizationDraft, error) {
	query := r.db.WithContext(ctx).Model(&models.TokenizationDraft{}).Where("owner_id = ?", opts.ownerID)

	if opts.status != nil {
		query = query.Where("status = ?", *opts.status)
	}
	if opts.cursor != nil {
		query = query.Where("(updated_at < ?) OR (updated_at = ? AND id < ?)", opts.cursor.At, opts.cursor.At, opts.cursor.ID)
	}

	query = query.Order("updated_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.TokenizationDraft
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateContent replaces the content document and step of a draft that is
// still in draft status at the given version.
func (r *repository) UpdateContent(ctx context.Context, id uuid.UUID, version int64, step int, fields map[string]any) (bool, error) {
	return r.CompareAndSwap(ctx, id, enums.DraftStatusDraft, version, map[string]any{
		"current_step": step,
		"fields":       jsonMap(fields),
	})
}

// CompareAndSwap applies updates only when the row still has status from and
// the given version. The version is bumped as part of the same statement.
func (r *repository) CompareAndSwap(ctx context.Context, id uuid.UUID, from enums.DraftStatus, version int64, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.TokenizationDraft{}).
		Where("id = ? AND status = ? AND version = ?", id, from, version).
		UpdateColumns(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID, version int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND version = ?", id, enums.DraftStatusDraft, version).
		Delete(&models.TokenizationDraft{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
