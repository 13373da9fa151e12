package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
)

const appendSavepoint = "audit_append"

// Service appends and reads audit records.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.AuditRecord, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.AuditRecord, error)
	ListByDraft(ctx context.Context, draftID uuid.UUID) ([]models.AuditRecord, error)
}

type service struct {
	repo Repository
}

// AppendInput captures the immutable data an audit record requires.
type AppendInput struct {
	UserID        uuid.UUID           `json:"user_id"`
	WalletAddress *string             `json:"wallet_address,omitempty"`
	Category      enums.AuditCategory `json:"category"`
	Action        enums.AuditAction   `json:"action"`
	DraftID       *uuid.UUID          `json:"draft_id,omitempty"`
	Description   string              `json:"description"`
	Signature     *string             `json:"signature,omitempty"`
	Metadata      json.RawMessage     `json:"metadata,omitempty"`
}

// NewService wires an audit ledger with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

// Append writes one record. When tx is set the insert runs inside a savepoint so
// a failed append leaves the caller's transaction usable.
func (s *service) Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.AuditRecord, error) {
	if err := validateAppend(input); err != nil {
		return nil, err
	}

	record := &models.AuditRecord{
		UserID:        input.UserID,
		WalletAddress: input.WalletAddress,
		Category:      input.Category,
		Action:        input.Action,
		DraftID:       input.DraftID,
		Description:   strings.TrimSpace(input.Description),
		Signature:     input.Signature,
	}
	if len(input.Metadata) > 0 {
		record.Metadata = datatypes.JSON(input.Metadata)
	}

	if tx == nil {
		if err := s.repo.Create(ctx, record); err != nil {
			return nil, pkgerrors.FromDB(err, "append audit record")
		}
		return record, nil
	}

	if err := tx.SavePoint(appendSavepoint).Error; err != nil {
		return nil, pkgerrors.FromDB(err, "open audit savepoint")
	}
	if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
		if rbErr := tx.RollbackTo(appendSavepoint).Error; rbErr != nil {
			err = multierr.Append(err, rbErr)
		}
		return nil, pkgerrors.FromDB(err, "append audit record")
	}
	return record, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.AuditRecord, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "list audit records")
	}
	return records, nil
}

func (s *service) ListByDraft(ctx context.Context, draftID uuid.UUID) ([]models.AuditRecord, error) {
	if draftID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "draft id is required")
	}
	records, err := s.repo.ListByDraft(ctx, draftID)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "list audit records")
	}
	return records, nil
}

func validateAppend(input AppendInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Category.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid audit category %q", input.Category)
	}
	if !input.Action.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid audit action %q", input.Action)
	}
	if strings.TrimSpace(input.Description) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	if input.Category == enums.AuditCategoryWalletSignature && (input.Signature == nil || *input.Signature == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet signature records require a signature")
	}
	if len(input.Metadata) > 0 && !json.Valid(input.Metadata) {
		return pkgerrors.New(pkgerrors.CodeValidation, "metadata must be valid JSON")
	}
	return nil
}
