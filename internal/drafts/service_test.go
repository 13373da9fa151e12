package drafts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	pkgpagination "github.com/angelmondragon/tokenizr-backend/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:drafts_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.TokenizationDraft{}))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func newTestService(t *testing.T) (Service, Repository) {
	t.Helper()
	repo := NewRepository(newTestDB(t))
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pkgerrors.CodeOf(err), "unexpected error: %v", err)
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestSaveDraftCreates(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()

	draft, err := svc.SaveDraft(context.Background(), SaveDraftInput{
		OwnerID:   owner,
		TokenType: enums.TokenTypeUtility,
		Step:      1,
		Fields:    map[string]any{"asset_name": "Harbor Loft"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, draft.ID)
	require.Equal(t, enums.DraftStatusDraft, draft.Status)
	require.Equal(t, int64(1), draft.Version)
	require.Equal(t, 1, draft.CurrentStep)

	loaded, err := svc.LoadDraft(context.Background(), owner, draft.ID)
	require.NoError(t, err)
	require.Equal(t, "Harbor Loft", loaded.Fields["asset_name"])
}

func TestSaveDraftCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	owner := uuid.New()

	_, err := svc.SaveDraft(context.Background(), SaveDraftInput{OwnerID: owner, TokenType: "nft"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.SaveDraft(context.Background(), SaveDraftInput{OwnerID: owner, TokenType: enums.TokenTypeUtility, Step: -1})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.SaveDraft(context.Background(), SaveDraftInput{
		OwnerID:   owner,
		TokenType: enums.TokenTypeSecurity,
		Fields:    map[string]any{"estimated_launch_days": float64(0)},
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.SaveDraft(context.Background(), SaveDraftInput{
		OwnerID:   owner,
		TokenType: enums.TokenTypeUtility,
		Fields:    map[string]any{"estimated_launch_days": 1e20},
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.SaveDraft(context.Background(), SaveDraftInput{TokenType: enums.TokenTypeUtility})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestSaveDraftMergesFieldsAndClampsStep(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	draft, err := svc.SaveDraft(ctx, SaveDraftInput{
		OwnerID:   owner,
		TokenType: enums.TokenTypeUtility,
		Step:      3,
		Fields:    map[string]any{"asset_name": "Harbor Loft", "asset_category": "real_estate"},
	})
	require.NoError(t, err)

	updated, err := svc.SaveDraft(ctx, SaveDraftInput{
		OwnerID: owner,
		DraftID: &draft.ID,
		Step:    1,
		Fields:  map[string]any{"token_name": "HARBOR", "asset_category": nil},
	})
	require.NoError(t, err)
	require.Equal(t, 3, updated.CurrentStep)
	require.Equal(t, int64(2), updated.Version)
	require.Equal(t, "Harbor Loft", updated.Fields["asset_name"])
	require.Equal(t, "HARBOR", updated.Fields["token_name"])
	_, present := updated.Fields["asset_category"]
	require.False(t, present)

	advanced, err := svc.SaveDraft(ctx, SaveDraftInput{OwnerID: owner, DraftID: &draft.ID, Step: 5})
	require.NoError(t, err)
	require.Equal(t, 5, advanced.CurrentStep)
}

func TestSaveDraftUpdateErrors(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	draft, err := svc.SaveDraft(ctx, SaveDraftInput{OwnerID: owner, TokenType: enums.TokenTypeUtility})
	require.NoError(t, err)

	missing := uuid.New()
	_, err = svc.SaveDraft(ctx, SaveDraftInput{OwnerID: owner, DraftID: &missing})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.SaveDraft(ctx, SaveDraftInput{OwnerID: uuid.New(), DraftID: &draft.ID})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.SaveDraft(ctx, SaveDraftInput{OwnerID: owner, DraftID: &draft.ID, TokenType: enums.TokenTypeSecurity})
	requireCode(t, err, pkgerrors.CodeValidation)

	stale := int64(7)
	_, err = svc.SaveDraft(ctx, SaveDraftInput{OwnerID: owner, DraftID: &draft.ID, ExpectedVersion: &stale})
	requireCode(t, err, pkgerrors.CodeConflict)

	now := time.Now().UTC()
	ok, err := repo.CompareAndSwap(ctx, draft.ID, enums.DraftStatusDraft, draft.Version, map[string]any{
		"status":       enums.DraftStatusSubmitted,
		"submitted_at": now,
	})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.SaveDraft(ctx, SaveDraftInput{OwnerID: owner, DraftID: &draft.ID, Step: 2})
	requireCode(t, err, pkgerrors.CodeInvalidState)
}

func TestUpdateContentLosesAgainstConcurrentWriter(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	draft, err := svc.SaveDraft(ctx, SaveDraftInput{OwnerID: owner, TokenType: enums.TokenTypeUtility})
	require.NoError(t, err)

	ok, err := repo.UpdateContent(ctx, draft.ID, draft.Version, 1, map[string]any{"asset_name": "first"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.UpdateContent(ctx, draft.ID, draft.Version, 2, map[string]any{"asset_name": "second"})
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.FindByID(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, "first", stored.Fields["asset_name"])
	require.Equal(t, int64(2), stored.Version)
}

func TestLoadDraftForbiddenForOtherOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	draft, err := svc.SaveDraft(ctx, SaveDraftInput{OwnerID: uuid.New(), TokenType: enums.TokenTypeSecurity})
	require.NoError(t, err)

	_, err = svc.LoadDraft(ctx, uuid.New(), draft.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = svc.LoadDraft(ctx, draft.OwnerID, uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestListDraftsOrdersByUpdatedAtAndPaginates(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		d := &models.TokenizationDraft{
			OwnerID:   owner,
			TokenType: enums.TokenTypeUtility,
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, repo.Create(ctx, d))
		ids = append(ids, d.ID)
	}
	require.NoError(t, repo.Create(ctx, &models.TokenizationDraft{OwnerID: uuid.New(), TokenType: enums.TokenTypeUtility}))

	first, err := svc.ListDrafts(ctx, ListParams{OwnerID: owner, Params: pkgpagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.Equal(t, ids[2], first.Items[0].ID)
	require.Equal(t, ids[1], first.Items[1].ID)
	require.NotEmpty(t, first.Cursor)

	second, err := svc.ListDrafts(ctx, ListParams{OwnerID: owner, Params: pkgpagination.Params{Limit: 2, Cursor: first.Cursor}})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	require.Equal(t, ids[0], second.Items[0].ID)
	require.Empty(t, second.Cursor)

	status := enums.DraftStatusSubmitted
	filtered, err := svc.ListDrafts(ctx, ListParams{OwnerID: owner, Status: &status})
	require.NoError(t, err)
	require.Empty(t, filtered.Items)

	_, err = svc.ListDrafts(ctx, ListParams{OwnerID: owner, Params: pkgpagination.Params{Cursor: "%%%"}})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestDeleteDraft(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()

	draft, err := svc.SaveDraft(ctx, SaveDraftInput{OwnerID: owner, TokenType: enums.TokenTypeUtility})
	require.NoError(t, err)

	err = svc.DeleteDraft(ctx, uuid.New(), draft.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	require.NoError(t, svc.DeleteDraft(ctx, owner, draft.ID))
	_, err = svc.LoadDraft(ctx, owner, draft.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)

	submitted, err := svc.SaveDraft(ctx, SaveDraftInput{OwnerID: owner, TokenType: enums.TokenTypeUtility})
	require.NoError(t, err)
	ok, err := repo.CompareAndSwap(ctx, submitted.ID, enums.DraftStatusDraft, submitted.Version, map[string]any{
		"status": enums.DraftStatusSubmitted,
	})
	require.NoError(t, err)
	require.True(t, ok)

	err = svc.DeleteDraft(ctx, owner, submitted.ID)
	requireCode(t, err, pkgerrors.CodeInvalidState)
}
