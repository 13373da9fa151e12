package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	"github.com/angelmondragon/tokenizr-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultPushTimeout = 2 * time.Second

// ErrNoLiveChannel is returned by Push when no live publisher is configured.
var ErrNoLiveChannel = errors.New("live channel not configured")

// Service defines notification dispatch and inbox operations.
type Service interface {
	Notify(ctx context.Context, input NotifyInput) (*models.Notification, error)
	CreateTx(ctx context.Context, tx *gorm.DB, input NotifyInput) (*models.Notification, error)
	Push(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID, notificationID uuid.UUID) error
}

type service struct {
	repo        Repository
	live        LivePublisher
	logg        *logger.Logger
	pushTimeout time.Duration
}

// NotifyInput is a single user-facing notification.
type NotifyInput struct {
	UserID   uuid.UUID
	Type     enums.NotificationType
	Title    string
	Message  string
	Metadata map[string]any
}

// ListParams configures pagination for notifications.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// LiveMessage is the payload pushed over the live channel.
type LiveMessage struct {
	Event        string               `json:"event"`
	Notification *models.Notification `json:"notification"`
}

// NewService wires notifications dependencies. live may be nil, in which case
// notifications are only delivered on the next poll.
func NewService(repo Repository, live LivePublisher, logg *logger.Logger, pushTimeout time.Duration) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if pushTimeout <= 0 {
		pushTimeout = defaultPushTimeout
	}
	return &service{repo: repo, live: live, logg: logg, pushTimeout: pushTimeout}, nil
}

// Notify persists the notification and then attempts a live push. Push
// failures are logged and never returned.
func (s *service) Notify(ctx context.Context, input NotifyInput) (*models.Notification, error) {
	n, err := s.CreateTx(ctx, nil, input)
	if err != nil {
		return nil, err
	}
	if err := s.Push(ctx, n); err != nil {
		s.logPushFailure(ctx, n, err)
	}
	return n, nil
}

// CreateTx persists a notification inside the caller's transaction. A nil tx
// writes directly.
func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, input NotifyInput) (*models.Notification, error) {
	n, err := buildNotification(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithTx(tx).Create(ctx, n); err != nil {
		return nil, pkgerrors.FromDB(err, "create notification")
	}
	return n, nil
}

// Push is the best-effort live delivery step. It runs with its own timeout and
// survives cancellation of the request context.
func (s *service) Push(ctx context.Context, notification *models.Notification) error {
	if notification == nil {
		return nil
	}
	if s.live == nil {
		return ErrNoLiveChannel
	}
	payload, err := json.Marshal(LiveMessage{Event: "notification.created", Notification: notification})
	if err != nil {
		return err
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.pushTimeout)
	defer cancel()
	return s.live.Publish(pushCtx, notification.UserID, payload)
}

func (s *service) logPushFailure(ctx context.Context, n *models.Notification, err error) {
	if errors.Is(err, ErrNoLiveChannel) {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"notification_id": n.ID.String(),
		"user_id":         n.UserID.String(),
	})
	s.logg.Warn(logCtx, "live notification push failed", err)
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      pagination.NormalizeLimit(params.Limit),
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.FromDB(err, "list notifications")
	}
	if rows == nil {
		rows = []models.Notification{}
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{
		Items:  rows,
		Cursor: cursor,
	}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if _, err := s.authorize(ctx, userID, notificationID); err != nil {
		return err
	}
	if _, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC()); err != nil {
		return pkgerrors.FromDB(err, "mark notification read")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.FromDB(err, "mark notifications read")
	}
	return count, nil
}

func (s *service) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	if _, err := s.authorize(ctx, userID, notificationID); err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, userID, notificationID)
	if err != nil {
		return pkgerrors.FromDB(err, "delete notification")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

// authorize loads the notification and checks it belongs to userID.
func (s *service) authorize(ctx context.Context, userID, notificationID uuid.UUID) (*models.Notification, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	n, err := s.repo.FindByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		}
		return nil, pkgerrors.FromDB(err, "lookup notification")
	}
	if n.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "notification belongs to another user")
	}
	return n, nil
}

func buildNotification(input NotifyInput) (*models.Notification, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}
	title := strings.TrimSpace(input.Title)
	message := strings.TrimSpace(input.Message)
	if title == "" || message == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title and message are required")
	}

	n := &models.Notification{
		UserID:  input.UserID,
		Type:    input.Type,
		Title:   title,
		Message: message,
	}
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "metadata must be JSON encodable")
		}
		n.Metadata = datatypes.JSON(raw)
	}
	return n, nil
}
