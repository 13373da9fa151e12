package drafts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/internal/timeline"
	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	pkgpagination "github.com/angelmondragon/tokenizr-backend/pkg/pagination"
)

// Service exposes draft autosave, lookup, listing, and deletion.
type Service interface {
	SaveDraft(ctx context.Context, input SaveDraftInput) (*models.TokenizationDraft, error)
	LoadDraft(ctx context.Context, ownerID, draftID uuid.UUID) (*models.TokenizationDraft, error)
	ListDrafts(ctx context.Context, params ListParams) (*ListResult, error)
	DeleteDraft(ctx context.Context, ownerID, draftID uuid.UUID) error
}

// SaveDraftInput carries one autosave. A nil DraftID creates a new draft.
// Keys in Fields are merged into the stored document; a nil value removes the key.
type SaveDraftInput struct {
	OwnerID         uuid.UUID
	DraftID         *uuid.UUID
	TokenType       enums.TokenType
	Step            int
	Fields          map[string]any
	ExpectedVersion *int64
}

type service struct {
	repo Repository
}

// NewService wires the draft store with its repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("draft repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) SaveDraft(ctx context.Context, input SaveDraftInput) (*models.TokenizationDraft, error) {
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner identity missing")
	}
	if input.Step < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "step must be non-negative")
	}
	if input.DraftID == nil {
		return s.create(ctx, input)
	}
	return s.update(ctx, input)
}

func (s *service) create(ctx context.Context, input SaveDraftInput) (*models.TokenizationDraft, error) {
	if !input.TokenType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid token type")
	}
	fields := mergeFields(nil, input.Fields)
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	draft := &models.TokenizationDraft{
		OwnerID:     input.OwnerID,
		TokenType:   input.TokenType,
		CurrentStep: input.Step,
		Fields:      jsonMap(fields),
		Status:      enums.DraftStatusDraft,
	}
	if err := s.repo.Create(ctx, draft); err != nil {
		return nil, pkgerrors.FromDB(err, "create draft")
	}
	return draft, nil
}

func (s *service) update(ctx context.Context, input SaveDraftInput) (*models.TokenizationDraft, error) {
	draftID := *input.DraftID
	draft, err := s.repo.FindByID(ctx, draftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "draft not found")
		}
		return nil, pkgerrors.FromDB(err, "lookup draft")
	}
	if draft.OwnerID != input.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "draft not found")
	}
	if draft.Status != enums.DraftStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "draft is no longer editable").
			WithDetails(map[string]any{"status": draft.Status})
	}
	if input.TokenType != "" && input.TokenType != draft.TokenType {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token type cannot be changed")
	}
	if input.ExpectedVersion != nil && *input.ExpectedVersion != draft.Version {
		return nil, versionConflict(draft.Version)
	}

	fields := mergeFields(draft.Fields, input.Fields)
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	step := input.Step
	if step < draft.CurrentStep {
		step = draft.CurrentStep
	}

	ok, err := s.repo.UpdateContent(ctx, draft.ID, draft.Version, step, fields)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "update draft")
	}
	if !ok {
		return nil, versionConflict(draft.Version)
	}

	updated, err := s.repo.FindByID(ctx, draft.ID)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "reload draft")
	}
	return updated, nil
}

func (s *service) LoadDraft(ctx context.Context, ownerID, draftID uuid.UUID) (*models.TokenizationDraft, error) {
	draft, err := s.repo.FindByID(ctx, draftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "draft not found")
		}
		return nil, pkgerrors.FromDB(err, "lookup draft")
	}
	if draft.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "draft belongs to another user")
	}
	return draft, nil
}

func (s *service) ListDrafts(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner identity missing")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	limit := pkgpagination.NormalizeLimit(params.Limit)
	query := ListQuery{
		ownerID: params.OwnerID,
		status:  params.Status,
		limit:   pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "list drafts")
	}

	rows, next := pkgpagination.Page(rows, limit, func(d models.TokenizationDraft) pkgpagination.Cursor {
		return pkgpagination.Cursor{At: d.UpdatedAt, ID: d.ID}
	})
	nextCursor := ""
	if next != nil {
		nextCursor = pkgpagination.EncodeCursor(*next)
	}

	items := make([]ListItem, len(rows))
	for i, row := range rows {
		items[i] = toListItem(row)
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}

func (s *service) DeleteDraft(ctx context.Context, ownerID, draftID uuid.UUID) error {
	draft, err := s.LoadDraft(ctx, ownerID, draftID)
	if err != nil {
		return err
	}
	if draft.Status != enums.DraftStatusDraft {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "only drafts can be deleted").
			WithDetails(map[string]any{"status": draft.Status})
	}

	ok, err := s.repo.Delete(ctx, draft.ID, draft.Version)
	if err != nil {
		return pkgerrors.FromDB(err, "delete draft")
	}
	if !ok {
		return versionConflict(draft.Version)
	}
	return nil
}

func versionConflict(current int64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "draft was modified concurrently").
		WithDetails(map[string]any{"version": current})
}

// mergeFields applies a shallow patch on top of base without mutating either map.
func mergeFields(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func validateFields(fields map[string]any) error {
	days, err := timeline.EstimatedLaunchDays(fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid estimated launch days").
			WithDetails(map[string]any{timeline.FieldEstimatedLaunchDays: err.Error()})
	}
	if days != nil && *days <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "estimated launch days must be positive").
			WithDetails(map[string]any{timeline.FieldEstimatedLaunchDays: "must be greater than zero"})
	}
	return nil
}
