package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeRepository struct {
	createFn func(ctx context.Context, record *models.AuditRecord) error
	records  []models.AuditRecord
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, record *models.AuditRecord) error {
	if f.createFn != nil {
		return f.createFn(ctx, record)
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.AuditRecord, error) {
	var out []models.AuditRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepository) ListByDraft(ctx context.Context, draftID uuid.UUID) ([]models.AuditRecord, error) {
	var out []models.AuditRecord
	for _, r := range f.records {
		if r.DraftID != nil && *r.DraftID == draftID {
			out = append(out, r)
		}
	}
	return out, nil
}

func strPtr(v string) *string { return &v }

func signedInput() AppendInput {
	draftID := uuid.New()
	return AppendInput{
		UserID:        uuid.New(),
		WalletAddress: strPtr("0xabc"),
		Category:      enums.AuditCategoryWalletSignature,
		Action:        enums.AuditActionTokenizationSubmitted,
		DraftID:       &draftID,
		Description:   "Tokenization submitted for review",
		Signature:     strPtr("0xsig"),
		Metadata:      json.RawMessage(`{"token_type":"utility"}`),
	}
}

func TestService_Append(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	input := signedInput()
	got, err := svc.Append(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected one record, got %d", len(repo.records))
	}
	if got.UserID != input.UserID || got.Category != input.Category || got.Action != input.Action {
		t.Fatalf("unexpected record data: %+v", got)
	}
	if string(got.Metadata) != `{"token_type":"utility"}` {
		t.Fatalf("metadata mismatch: %s", got.Metadata)
	}

	byDraft, err := svc.ListByDraft(context.Background(), *input.DraftID)
	if err != nil {
		t.Fatalf("ListByDraft error: %v", err)
	}
	if len(byDraft) != 1 {
		t.Fatalf("expected one record for draft, got %d", len(byDraft))
	}
}

func TestService_AppendValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(in *AppendInput)
	}{
		{name: "missing user", mutate: func(in *AppendInput) { in.UserID = uuid.Nil }},
		{name: "invalid category", mutate: func(in *AppendInput) { in.Category = "payout" }},
		{name: "invalid action", mutate: func(in *AppendInput) { in.Action = "minted" }},
		{name: "blank description", mutate: func(in *AppendInput) { in.Description = "  " }},
		{name: "signature required", mutate: func(in *AppendInput) { in.Signature = nil }},
		{name: "bad metadata", mutate: func(in *AppendInput) { in.Metadata = json.RawMessage(`{`) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := signedInput()
			tc.mutate(&input)
			_, err := svc.Append(context.Background(), nil, input)
			if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_AppendRepoErrorIsDependency(t *testing.T) {
	expectedErr := errors.New("ledger offline")
	repo := &fakeRepository{createFn: func(ctx context.Context, record *models.AuditRecord) error {
		return expectedErr
	}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	_, err = svc.Append(context.Background(), nil, signedInput())
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to be wrapped, got %v", err)
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency code, got %s", pkgerrors.CodeOf(err))
	}
}

// failAfterWrite inserts the record and then reports failure, so the savepoint
// rollback is the only thing that can remove the row again.
type failAfterWrite struct {
	inner Repository
}

func (f failAfterWrite) WithTx(tx *gorm.DB) Repository {
	return failAfterWrite{inner: f.inner.WithTx(tx)}
}

func (f failAfterWrite) Create(ctx context.Context, record *models.AuditRecord) error {
	if err := f.inner.Create(ctx, record); err != nil {
		return err
	}
	return errors.New("acknowledgement lost")
}

func (f failAfterWrite) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.AuditRecord, error) {
	return f.inner.ListByUser(ctx, userID)
}

func (f failAfterWrite) ListByDraft(ctx context.Context, draftID uuid.UUID) ([]models.AuditRecord, error) {
	return f.inner.ListByDraft(ctx, draftID)
}

func TestService_AppendFailureRollsBackOnlySavepoint(t *testing.T) {
	dsn := fmt.Sprintf("file:ledger_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.AuditRecord{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}

	realRepo := NewRepository(db)
	svc, err := NewService(failAfterWrite{inner: realRepo})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	kept := signedInput()
	dropped := signedInput()
	dropped.UserID = kept.UserID

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := realRepo.WithTx(tx).Create(context.Background(), &models.AuditRecord{
			UserID:      kept.UserID,
			Category:    enums.AuditCategoryPlatformAction,
			Action:      enums.AuditActionTokenizationApproved,
			Description: "written before the savepoint",
		}); err != nil {
			return err
		}
		if _, err := svc.Append(context.Background(), tx, dropped); err == nil {
			t.Fatal("expected append to fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	rows, err := realRepo.ListByUser(context.Background(), kept.UserID)
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only the pre-savepoint record to survive, got %d", len(rows))
	}
	if rows[0].Description != "written before the savepoint" {
		t.Fatalf("unexpected surviving record: %+v", rows[0])
	}
}
