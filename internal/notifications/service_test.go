package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	paginationpkg "github.com/angelmondragon/tokenizr-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeRepository struct {
	mu      sync.Mutex
	created []*models.Notification
	rows    map[uuid.UUID]*models.Notification

	createErr     error
	listFn        func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error)
	markAllReadFn func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	markReadCalls int
	deleteCalls   int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{rows: map[uuid.UUID]*models.Notification{}}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	notification.CreatedAt = time.Now().UTC()
	f.created = append(f.created, notification)
	f.rows[notification.ID] = notification
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls++
	n, ok := f.rows[notificationID]
	if !ok || n.UserID != userID || n.IsRead {
		return false, nil
	}
	n.IsRead = true
	n.ReadAt = &now
	return true, nil
}

func (f *fakeRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, userID, now)
	}
	return 0, nil
}

func (f *fakeRepository) Delete(ctx context.Context, userID, notificationID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	n, ok := f.rows[notificationID]
	if !ok || n.UserID != userID {
		return false, nil
	}
	delete(f.rows, notificationID)
	return true, nil
}

type fakeLive struct {
	err      error
	payloads [][]byte
	users    []uuid.UUID
	deadline bool
}

func (f *fakeLive) Publish(ctx context.Context, userID uuid.UUID, payload []byte) error {
	_, f.deadline = ctx.Deadline()
	f.users = append(f.users, userID)
	f.payloads = append(f.payloads, payload)
	return f.err
}

func newTestLogger(buf *bytes.Buffer) *logger.Logger {
	var out io.Writer = io.Discard
	if buf != nil {
		out = buf
	}
	return logger.New(logger.Options{ServiceName: "notifications-test", Output: out})
}

func newServiceWithRepo(t *testing.T, repo Repository, live LivePublisher, buf *bytes.Buffer) Service {
	t.Helper()
	svc, err := NewService(repo, live, newTestLogger(buf), time.Second)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func approvedInput(userID uuid.UUID) NotifyInput {
	return NotifyInput{
		UserID:   userID,
		Type:     enums.NotificationTypeTokenizationApproved,
		Title:    "Tokenization approved",
		Message:  "Your launch is scheduled.",
		Metadata: map[string]any{"draft_id": uuid.NewString()},
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, nil, newTestLogger(nil), 0); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := NewService(newFakeRepository(), nil, nil, 0); err == nil {
		t.Fatal("expected error without logger")
	}
}

func TestService_NotifyPersistsThenPushes(t *testing.T) {
	repo := newFakeRepository()
	live := &fakeLive{}
	svc := newServiceWithRepo(t, repo, live, nil)
	userID := uuid.New()

	n, err := svc.Notify(context.Background(), approvedInput(userID))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(repo.created) != 1 || repo.created[0].ID != n.ID {
		t.Fatalf("expected notification persisted")
	}
	if n.IsRead {
		t.Fatal("new notification must be unread")
	}
	if len(live.payloads) != 1 || live.users[0] != userID {
		t.Fatalf("expected one push to %s, got %v", userID, live.users)
	}
	if !live.deadline {
		t.Fatal("push should run with a bounded timeout")
	}

	var msg LiveMessage
	if err := json.Unmarshal(live.payloads[0], &msg); err != nil {
		t.Fatalf("decode live payload: %v", err)
	}
	if msg.Event != "notification.created" || msg.Notification.ID != n.ID {
		t.Fatalf("unexpected live message %+v", msg)
	}
}

func TestService_NotifySurvivesPushFailure(t *testing.T) {
	repo := newFakeRepository()
	live := &fakeLive{err: errors.New("redis: connection refused")}
	var buf bytes.Buffer
	svc := newServiceWithRepo(t, repo, live, &buf)

	n, err := svc.Notify(context.Background(), approvedInput(uuid.New()))
	if err != nil {
		t.Fatalf("push failure must not fail notify: %v", err)
	}
	if n == nil || len(repo.created) != 1 {
		t.Fatal("notification should still be stored")
	}
	if !strings.Contains(buf.String(), "live notification push failed") {
		t.Fatalf("expected warning log, got %q", buf.String())
	}
}

func TestService_NotifyWithoutLiveChannel(t *testing.T) {
	repo := newFakeRepository()
	var buf bytes.Buffer
	svc := newServiceWithRepo(t, repo, nil, &buf)

	if _, err := svc.Notify(context.Background(), approvedInput(uuid.New())); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if strings.Contains(buf.String(), "push failed") {
		t.Fatal("missing live channel should not be logged as a failure")
	}
	if err := svc.Push(context.Background(), repo.created[0]); !errors.Is(err, ErrNoLiveChannel) {
		t.Fatalf("expected ErrNoLiveChannel, got %v", err)
	}
}

func TestService_PushOutlivesCanceledContext(t *testing.T) {
	live := &fakeLive{}
	svc := newServiceWithRepo(t, newFakeRepository(), live, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Push(ctx, &models.Notification{ID: uuid.New(), UserID: uuid.New()}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(live.payloads) != 1 {
		t.Fatal("push should still be attempted after the caller's context is done")
	}
}

func TestService_NotifyStoreFailure(t *testing.T) {
	repo := newFakeRepository()
	repo.createErr = errors.New("db down")
	live := &fakeLive{}
	svc := newServiceWithRepo(t, repo, live, nil)

	_, err := svc.Notify(context.Background(), approvedInput(uuid.New()))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(live.payloads) != 0 {
		t.Fatal("nothing should be pushed when the store fails")
	}
}

func TestService_NotifyValidation(t *testing.T) {
	svc := newServiceWithRepo(t, newFakeRepository(), nil, nil)
	cases := map[string]NotifyInput{
		"missing user": {Type: enums.NotificationTypeOther, Title: "t", Message: "m"},
		"bad type":     {UserID: uuid.New(), Type: "promo", Title: "t", Message: "m"},
		"blank title":  {UserID: uuid.New(), Type: enums.NotificationTypeOther, Title: "  ", Message: "m"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Notify(context.Background(), input)
			if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_ListNotifications(t *testing.T) {
	first := models.Notification{ID: uuid.New(), CreatedAt: time.Now().Add(-time.Hour)}
	next := paginationpkg.Cursor{At: first.CreatedAt, ID: first.ID}
	userID := uuid.New()

	repo := newFakeRepository()
	repo.listFn = func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
		if params.UserID != userID {
			t.Fatalf("unexpected user %s", params.UserID)
		}
		if params.Limit != 1 {
			t.Fatalf("unexpected limit %d", params.Limit)
		}
		if !params.UnreadOnly {
			t.Fatal("expected unread filter")
		}
		return []models.Notification{first}, &next, nil
	}

	svc := newServiceWithRepo(t, repo, nil, nil)
	result, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 1, UnreadOnly: true})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(result.Items))
	}
	decoded, err := paginationpkg.ParseCursor(result.Cursor)
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if decoded.ID != first.ID || !decoded.At.Equal(first.CreatedAt) {
		t.Fatalf("cursor mismatch: %+v", decoded)
	}
}

func TestService_ListInvalidCursor(t *testing.T) {
	svc := newServiceWithRepo(t, newFakeRepository(), nil, nil)
	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "%%%"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_ListEmptyReturnsSlice(t *testing.T) {
	svc := newServiceWithRepo(t, newFakeRepository(), nil, nil)
	result, err := svc.List(context.Background(), ListParams{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Items == nil || result.Cursor != "" {
		t.Fatalf("unexpected empty result %+v", result)
	}
}

func TestService_MarkRead(t *testing.T) {
	repo := newFakeRepository()
	svc := newServiceWithRepo(t, repo, nil, nil)
	owner := uuid.New()
	n, err := svc.Notify(context.Background(), approvedInput(owner))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if err := svc.MarkRead(context.Background(), owner, n.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !repo.rows[n.ID].IsRead || repo.rows[n.ID].ReadAt == nil {
		t.Fatal("expected notification marked read")
	}
	if err := svc.MarkRead(context.Background(), owner, n.ID); err != nil {
		t.Fatalf("marking twice should succeed: %v", err)
	}
}

func TestService_MarkReadScoping(t *testing.T) {
	repo := newFakeRepository()
	svc := newServiceWithRepo(t, repo, nil, nil)
	owner := uuid.New()
	n, err := svc.Notify(context.Background(), approvedInput(owner))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	err = svc.MarkRead(context.Background(), uuid.New(), n.ID)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if repo.rows[n.ID].IsRead {
		t.Fatal("another user's mark must not change the row")
	}

	err = svc.MarkRead(context.Background(), owner, uuid.New())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_MarkAllRead(t *testing.T) {
	userID := uuid.New()
	repo := newFakeRepository()
	repo.markAllReadFn = func(ctx context.Context, uid uuid.UUID, now time.Time) (int64, error) {
		if uid != userID {
			t.Fatalf("unexpected user %s", uid)
		}
		return 3, nil
	}
	svc := newServiceWithRepo(t, repo, nil, nil)

	count, err := svc.MarkAllRead(context.Background(), userID)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows updated, got %d", count)
	}

	if _, err := svc.MarkAllRead(context.Background(), uuid.Nil); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_Delete(t *testing.T) {
	repo := newFakeRepository()
	svc := newServiceWithRepo(t, repo, nil, nil)
	owner := uuid.New()
	n, err := svc.Notify(context.Background(), approvedInput(owner))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if err := svc.Delete(context.Background(), uuid.New(), n.ID); pkgerrors.CodeOf(err) != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if repo.deleteCalls != 0 {
		t.Fatal("forbidden delete must not reach the repository")
	}
	if err := svc.Delete(context.Background(), owner, n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(context.Background(), owner, n.ID); pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
