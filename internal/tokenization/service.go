package tokenization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/internal/drafts"
	"github.com/angelmondragon/tokenizr-backend/internal/ledger"
	"github.com/angelmondragon/tokenizr-backend/internal/notifications"
	"github.com/angelmondragon/tokenizr-backend/internal/timeline"
	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	"github.com/angelmondragon/tokenizr-backend/pkg/metrics"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/payloads"
)

// Transition names used in logs and metrics.
const (
	TransitionSubmit  = "submit"
	TransitionApprove = "approve"
	TransitionReject  = "reject"
	TransitionCancel  = "cancel"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notificationWriter interface {
	CreateTx(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) (*models.Notification, error)
	Push(ctx context.Context, notification *models.Notification) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

type auditAppender interface {
	Append(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) (*models.AuditRecord, error)
}

type transitionRecorder interface {
	ObserveTransition(transition, outcome string, d time.Duration)
	IncPushFailure()
	IncAuditWarning()
}

// Service drives drafts through review.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*TransitionResult, error)
	Approve(ctx context.Context, input AdminDecisionInput) (*TransitionResult, error)
	Reject(ctx context.Context, input AdminDecisionInput) (*TransitionResult, error)
	Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error)
}

// SubmitInput freezes an owner's draft and attaches the wallet signature.
type SubmitInput struct {
	OwnerID   uuid.UUID
	DraftID   uuid.UUID
	Signature SignatureInput
}

// AdminDecisionInput carries a reviewer's approve or reject call.
type AdminDecisionInput struct {
	AdminID uuid.UUID
	DraftID uuid.UUID
	Reason  string
}

// CancelInput withdraws a draft. Admin cancels may act on any owner's draft.
type CancelInput struct {
	ActorID uuid.UUID
	DraftID uuid.UUID
	Admin   bool
}

// TransitionResult is what a committed (or replayed) transition produced.
// Warnings lists best-effort steps that failed without aborting the change.
type TransitionResult struct {
	Draft         *models.TokenizationDraft `json:"draft"`
	Notification  *models.Notification      `json:"notification,omitempty"`
	AuditRecordID *uuid.UUID                `json:"auditRecordId,omitempty"`
	Warnings      []string                  `json:"warnings,omitempty"`
	Replayed      bool                      `json:"replayed"`
}

// Config bundles the state machine's collaborators.
type Config struct {
	Drafts        drafts.Repository
	Tx            txRunner
	Notifications notificationWriter
	Outbox        outboxPublisher
	Audit         auditAppender
	Timeline      timeline.Defaults
	Metrics       transitionRecorder
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	drafts   drafts.Repository
	tx       txRunner
	notify   notificationWriter
	outbox   outboxPublisher
	audit    auditAppender
	timeline timeline.Defaults
	metrics  transitionRecorder
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates collaborators and returns the state machine.
func NewService(cfg Config) (Service, error) {
	if cfg.Drafts == nil {
		return nil, fmt.Errorf("draft repository required")
	}
	if cfg.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cfg.Notifications == nil {
		return nil, fmt.Errorf("notification writer required")
	}
	if cfg.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cfg.Audit == nil {
		return nil, fmt.Errorf("audit ledger required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NewTransitionMetrics(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		drafts:   cfg.Drafts,
		tx:       cfg.Tx,
		notify:   cfg.Notifications,
		outbox:   cfg.Outbox,
		audit:    cfg.Audit,
		timeline: cfg.Timeline,
		metrics:  rec,
		logg:     cfg.Logger,
		now:      now,
	}, nil
}

// transition describes one legal edge and the side effects it writes.
type transition struct {
	name    string
	actorID uuid.UUID
	role    enums.Role

	// authorize runs before the legality check so callers without access
	// learn nothing about the draft's status.
	authorize func(draft *models.TokenizationDraft) error
	// prepare returns the extra column updates for the CAS. It runs only for
	// legal transitions and must not write.
	prepare func(draft *models.TokenizationDraft, now time.Time) (map[string]any, error)
	// notice builds the owner's notification from the updated draft.
	notice func(draft *models.TokenizationDraft) notifications.NotifyInput
	// record builds the audit entry for the updated draft.
	record func(draft *models.TokenizationDraft) ledger.AppendInput
	reason string
}

var legalTransitions = map[enums.DraftStatus]map[string]enums.DraftStatus{
	enums.DraftStatusDraft: {
		TransitionSubmit: enums.DraftStatusSubmitted,
		TransitionCancel: enums.DraftStatusCancelled,
	},
	enums.DraftStatusSubmitted: {
		TransitionApprove: enums.DraftStatusApproved,
		TransitionReject:  enums.DraftStatusRejected,
		TransitionCancel:  enums.DraftStatusCancelled,
	},
}

// Target returns the status the named transition leads to from from, if legal.
func Target(from enums.DraftStatus, name string) (enums.DraftStatus, bool) {
	to, ok := legalTransitions[from][name]
	return to, ok
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*TransitionResult, error) {
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.DraftID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "draft id required")
	}

	sig := SignatureInput{
		Message:   input.Signature.Message,
		Signature: strings.TrimSpace(input.Signature.Signature),
		Address:   strings.TrimSpace(input.Signature.Address),
		Timestamp: strings.TrimSpace(input.Signature.Timestamp),
	}

	t := transition{
		name:    TransitionSubmit,
		actorID: input.OwnerID,
		role:    enums.RoleUser,
		authorize: func(draft *models.TokenizationDraft) error {
			return requireOwner(draft, input.OwnerID)
		},
		prepare: func(draft *models.TokenizationDraft, now time.Time) (map[string]any, error) {
			if err := ValidateSubmission(draft.TokenType, draft.Fields, sig); err != nil {
				return nil, err
			}
			signed, err := signedAt(sig)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid signature timestamp")
			}
			return map[string]any{
				"submitted_at":   now,
				"signed_message": sig.Message,
				"signature":      sig.Signature,
				"signer_address": sig.Address,
				"signed_at":      signed,
			}, nil
		},
		notice: func(draft *models.TokenizationDraft) notifications.NotifyInput {
			return notifications.NotifyInput{
				UserID:   draft.OwnerID,
				Type:     enums.NotificationTypeTokenizationSubmitted,
				Title:    "Tokenization submitted",
				Message:  fmt.Sprintf("%s was submitted for review.", assetName(draft)),
				Metadata: draftMetadata(draft),
			}
		},
		record: func(draft *models.TokenizationDraft) ledger.AppendInput {
			return ledger.AppendInput{
				UserID:        draft.OwnerID,
				WalletAddress: draft.SignerAddress,
				Category:      enums.AuditCategoryWalletSignature,
				Action:        enums.AuditActionTokenizationSubmitted,
				DraftID:       &draft.ID,
				Description:   fmt.Sprintf("Signed tokenization submission for %s", assetName(draft)),
				Signature:     draft.Signature,
				Metadata: mustJSON(map[string]any{
					"token_type":     draft.TokenType,
					"signed_message": deref(draft.SignedMessage),
					"signed_at":      draft.SignedAt,
				}),
			}
		},
	}
	return s.run(ctx, input.DraftID, t)
}

func (s *service) Approve(ctx context.Context, input AdminDecisionInput) (*TransitionResult, error) {
	if err := requireActor(input.AdminID, input.DraftID); err != nil {
		return nil, err
	}

	t := transition{
		name:    TransitionApprove,
		actorID: input.AdminID,
		role:    enums.RoleAdmin,
		prepare: func(draft *models.TokenizationDraft, now time.Time) (map[string]any, error) {
			days, err := timeline.EstimatedLaunchDays(draft.Fields)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid estimated launch days")
			}
			tl, err := s.timeline.Compute(now, draft.TokenType, days)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "compute launch timeline")
			}
			return map[string]any{
				"approved_at":           tl.ApprovedAt,
				"waitlist_opens_at":     tl.WaitlistOpensAt,
				"marketplace_launch_at": tl.MarketplaceLaunchAt,
				"estimated_launch_days": tl.EstimatedLaunchDays,
				"reviewed_by":           input.AdminID,
			}, nil
		},
		notice: func(draft *models.TokenizationDraft) notifications.NotifyInput {
			return notifications.NotifyInput{
				UserID:   draft.OwnerID,
				Type:     enums.NotificationTypeTokenizationApproved,
				Title:    "Tokenization approved",
				Message:  approvalMessage(draft),
				Metadata: draftMetadata(draft),
			}
		},
		record: func(draft *models.TokenizationDraft) ledger.AppendInput {
			return ledger.AppendInput{
				UserID:      input.AdminID,
				Category:    enums.AuditCategoryPlatformAction,
				Action:      enums.AuditActionTokenizationApproved,
				DraftID:     &draft.ID,
				Description: fmt.Sprintf("Approved tokenization of %s", assetName(draft)),
				Metadata: mustJSON(map[string]any{
					"owner_id":              draft.OwnerID,
					"approved_at":           draft.ApprovedAt,
					"waitlist_opens_at":     draft.WaitlistOpensAt,
					"marketplace_launch_at": draft.MarketplaceLaunchAt,
					"estimated_launch_days": draft.EstimatedLaunchDays,
				}),
			}
		},
	}
	return s.run(ctx, input.DraftID, t)
}

func (s *service) Reject(ctx context.Context, input AdminDecisionInput) (*TransitionResult, error) {
	if err := requireActor(input.AdminID, input.DraftID); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)

	t := transition{
		name:    TransitionReject,
		actorID: input.AdminID,
		role:    enums.RoleAdmin,
		reason:  reason,
		prepare: func(draft *models.TokenizationDraft, now time.Time) (map[string]any, error) {
			updates := map[string]any{"reviewed_by": input.AdminID}
			if reason != "" {
				updates["rejection_reason"] = reason
			}
			return updates, nil
		},
		notice: func(draft *models.TokenizationDraft) notifications.NotifyInput {
			msg := fmt.Sprintf("%s was not approved.", assetName(draft))
			if reason != "" {
				msg = fmt.Sprintf("%s was not approved. Reason: %s", assetName(draft), reason)
			}
			return notifications.NotifyInput{
				UserID:   draft.OwnerID,
				Type:     enums.NotificationTypeTokenizationRejected,
				Title:    "Tokenization rejected",
				Message:  msg,
				Metadata: draftMetadata(draft),
			}
		},
		record: func(draft *models.TokenizationDraft) ledger.AppendInput {
			return ledger.AppendInput{
				UserID:      input.AdminID,
				Category:    enums.AuditCategoryPlatformAction,
				Action:      enums.AuditActionTokenizationRejected,
				DraftID:     &draft.ID,
				Description: fmt.Sprintf("Rejected tokenization of %s", assetName(draft)),
				Metadata: mustJSON(map[string]any{
					"owner_id": draft.OwnerID,
					"reason":   reason,
				}),
			}
		},
	}
	return s.run(ctx, input.DraftID, t)
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*TransitionResult, error) {
	if err := requireActor(input.ActorID, input.DraftID); err != nil {
		return nil, err
	}
	role := enums.RoleUser
	if input.Admin {
		role = enums.RoleAdmin
	}

	t := transition{
		name:    TransitionCancel,
		actorID: input.ActorID,
		role:    role,
		authorize: func(draft *models.TokenizationDraft) error {
			if input.Admin {
				return nil
			}
			return requireOwner(draft, input.ActorID)
		},
		prepare: func(draft *models.TokenizationDraft, now time.Time) (map[string]any, error) {
			return map[string]any{
				"cancelled_at": now,
				"cancelled_by": input.ActorID,
			}, nil
		},
		notice: func(draft *models.TokenizationDraft) notifications.NotifyInput {
			msg := fmt.Sprintf("%s was cancelled.", assetName(draft))
			if input.Admin {
				msg = fmt.Sprintf("%s was withdrawn from review by an administrator.", assetName(draft))
			}
			return notifications.NotifyInput{
				UserID:   draft.OwnerID,
				Type:     enums.NotificationTypeTokenizationCancelled,
				Title:    "Tokenization cancelled",
				Message:  msg,
				Metadata: draftMetadata(draft),
			}
		},
		record: func(draft *models.TokenizationDraft) ledger.AppendInput {
			return ledger.AppendInput{
				UserID:      input.ActorID,
				Category:    enums.AuditCategoryPlatformAction,
				Action:      enums.AuditActionTokenizationCancelled,
				DraftID:     &draft.ID,
				Description: fmt.Sprintf("Cancelled tokenization of %s", assetName(draft)),
				Metadata: mustJSON(map[string]any{
					"owner_id": draft.OwnerID,
					"admin":    input.Admin,
				}),
			}
		},
	}
	return s.run(ctx, input.DraftID, t)
}

// run executes one transition: read, guard, CAS, notification row, outbox
// event and audit append in a single transaction, then the live push.
func (s *service) run(ctx context.Context, draftID uuid.UUID, t transition) (*TransitionResult, error) {
	started := time.Now()
	logCtx := s.logg.WithDraftID(ctx, draftID.String())
	logCtx = s.logg.WithActorRole(logCtx, string(t.role))
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"transition": t.name,
		"actor_id":   t.actorID.String(),
	})

	result := &TransitionResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.drafts.WithTx(tx)
		draft, err := repo.FindByID(ctx, draftID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "draft not found")
			}
			return pkgerrors.FromDB(err, "lookup draft")
		}

		if t.name == TransitionApprove && draft.Status == enums.DraftStatusApproved {
			result.Draft = draft
			result.Replayed = true
			return nil
		}

		if t.authorize != nil {
			if err := t.authorize(draft); err != nil {
				return err
			}
		}
		from := draft.Status
		to, ok := Target(from, t.name)
		if !ok {
			return illegal(from, t.name)
		}

		now := s.now().UTC()
		updates, err := t.prepare(draft, now)
		if err != nil {
			return err
		}
		updates["status"] = to

		swapped, err := repo.CompareAndSwap(ctx, draft.ID, from, draft.Version, updates)
		if err != nil {
			return pkgerrors.FromDB(err, "update draft status")
		}
		if !swapped {
			return pkgerrors.New(pkgerrors.CodeConflict, "draft was modified concurrently").
				WithDetails(map[string]any{"version": draft.Version, "status": from})
		}

		updated, err := repo.FindByID(ctx, draft.ID)
		if err != nil {
			return pkgerrors.FromDB(err, "reload draft")
		}
		result.Draft = updated

		n, err := s.notify.CreateTx(ctx, tx, t.notice(updated))
		if err != nil {
			return err
		}
		result.Notification = n

		if err := s.outbox.Emit(ctx, tx, statusChangedEvent(t, from, updated)); err != nil {
			return pkgerrors.FromDB(err, "emit status change")
		}

		record, err := s.audit.Append(ctx, tx, t.record(updated))
		if err != nil {
			s.metrics.IncAuditWarning()
			s.logg.Warn(logCtx, "audit append failed; transition kept", err)
			result.Warnings = append(result.Warnings, "audit record could not be written")
		} else {
			result.AuditRecordID = &record.ID
		}
		return nil
	})
	if err != nil {
		s.metrics.ObserveTransition(t.name, outcomeFor(err), time.Since(started))
		if code := pkgerrors.CodeOf(err); code == pkgerrors.CodeDependency || code == pkgerrors.CodeInternal {
			s.logg.Error(logCtx, "transition failed", err)
		}
		return nil, err
	}

	if result.Replayed {
		s.metrics.ObserveTransition(t.name, metrics.OutcomeReplayed, time.Since(started))
		s.logg.Info(logCtx, "approval already recorded; returning stored timeline")
		return result, nil
	}

	s.metrics.ObserveTransition(t.name, metrics.OutcomeSuccess, time.Since(started))
	s.logg.Info(s.logg.WithField(logCtx, "to", string(result.Draft.Status)), "draft status changed")

	if err := s.notify.Push(ctx, result.Notification); err != nil && !errors.Is(err, notifications.ErrNoLiveChannel) {
		s.metrics.IncPushFailure()
		s.logg.Warn(logCtx, "live notification push failed", err)
	}
	return result, nil
}

func statusChangedEvent(t transition, from enums.DraftStatus, draft *models.TokenizationDraft) outbox.Event {
	data := payloads.TokenizationStatusChangedEvent{
		DraftID:             draft.ID,
		OwnerID:             draft.OwnerID,
		TokenType:           draft.TokenType,
		From:                from,
		To:                  draft.Status,
		ActorID:             t.actorID,
		Version:             draft.Version,
		Reason:              t.reason,
		AssetName:           assetName(draft),
		ApprovedAt:          draft.ApprovedAt,
		WaitlistOpensAt:     draft.WaitlistOpensAt,
		MarketplaceLaunchAt: draft.MarketplaceLaunchAt,
		EstimatedLaunchDays: draft.EstimatedLaunchDays,
	}
	return outbox.Event{
		Type:        enums.EventTokenizationStatusChanged,
		Aggregate:   enums.AggregateTokenizationDraft,
		AggregateID: draft.ID,
		Actor:       &outbox.ActorRef{UserID: t.actorID, Role: string(t.role)},
		Data:        data,
	}
}

func requireActor(actorID, draftID uuid.UUID) error {
	if actorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if draftID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "draft id required")
	}
	return nil
}

func requireOwner(draft *models.TokenizationDraft, userID uuid.UUID) error {
	if draft.OwnerID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "draft belongs to another user")
	}
	return nil
}

func illegal(from enums.DraftStatus, name string) error {
	return pkgerrors.Newf(pkgerrors.CodeIllegalTransition, "cannot %s a draft in status %s", name, from).
		WithDetails(map[string]any{"status": from, "transition": name})
}

func outcomeFor(err error) string {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeConflict:
		return metrics.OutcomeConflict
	case pkgerrors.CodeDependency, pkgerrors.CodeInternal:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeRejected
	}
}

const dateLayout = "January 2, 2006"

func approvalMessage(draft *models.TokenizationDraft) string {
	name := assetName(draft)
	launch := "soon"
	if draft.MarketplaceLaunchAt != nil {
		launch = draft.MarketplaceLaunchAt.UTC().Format(dateLayout)
	}
	if draft.WaitlistOpensAt != nil {
		return fmt.Sprintf("%s was approved. The waitlist opens %s and the marketplace launch is scheduled for %s.",
			name, draft.WaitlistOpensAt.UTC().Format(dateLayout), launch)
	}
	return fmt.Sprintf("%s was approved. The marketplace launch is scheduled for %s.", name, launch)
}

func assetName(draft *models.TokenizationDraft) string {
	if name, ok := draft.Fields[FieldAssetName].(string); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return "Your tokenization request"
}

func draftMetadata(draft *models.TokenizationDraft) map[string]any {
	meta := map[string]any{
		"draft_id":   draft.ID.String(),
		"token_type": string(draft.TokenType),
		"status":     string(draft.Status),
	}
	if draft.ApprovedAt != nil {
		meta["approved_at"] = draft.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if draft.WaitlistOpensAt != nil {
		meta["waitlist_opens_at"] = draft.WaitlistOpensAt.UTC().Format(time.RFC3339)
	}
	if draft.MarketplaceLaunchAt != nil {
		meta["marketplace_launch_at"] = draft.MarketplaceLaunchAt.UTC().Format(time.RFC3339)
	}
	if draft.RejectionReason != nil {
		meta["reason"] = *draft.RejectionReason
	}
	return meta
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
