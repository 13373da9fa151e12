package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tokenizr-backend/api/responses"
	"github.com/angelmondragon/tokenizr-backend/api/validators"
	"github.com/angelmondragon/tokenizr-backend/internal/tokenization"
	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
)

type auditReader interface {
	ListByDraft(ctx context.Context, draftID uuid.UUID) ([]models.AuditRecord, error)
}

const maxReasonLength = 1000

type reviewDecisionRequest struct {
	Reason string `json:"reason"`
}

// AdminApproveTokenization approves a submitted draft and schedules its launch timeline.
// Replays on an approved draft return the original timeline.
func AdminApproveTokenization(svc tokenization.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tokenization service unavailable"))
			return
		}
		adminID, draftID, ok := adminTarget(w, r, logg)
		if !ok {
			return
		}

		result, err := svc.Approve(r.Context(), tokenization.AdminDecisionInput{AdminID: adminID, DraftID: draftID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminRejectTokenization rejects a submitted draft with an optional reason.
func AdminRejectTokenization(svc tokenization.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tokenization service unavailable"))
			return
		}
		adminID, draftID, ok := adminTarget(w, r, logg)
		if !ok {
			return
		}

		var req reviewDecisionRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Reject(r.Context(), tokenization.AdminDecisionInput{
			AdminID: adminID,
			DraftID: draftID,
			Reason:  validators.SanitizeString(req.Reason, maxReasonLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminCancelTokenization withdraws any user's draft or submission.
func AdminCancelTokenization(svc tokenization.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tokenization service unavailable"))
			return
		}
		adminID, draftID, ok := adminTarget(w, r, logg)
		if !ok {
			return
		}

		result, err := svc.Cancel(r.Context(), tokenization.CancelInput{ActorID: adminID, DraftID: draftID, Admin: true})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminTokenizationAudit lists the audit trail recorded against a draft.
func AdminTokenizationAudit(ledger auditReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit ledger unavailable"))
			return
		}
		draftID, err := pathUUID(r, "draftId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := ledger.ListByDraft(r.Context(), draftID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": records})
	}
}

func adminTarget(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, uuid.UUID, bool) {
	adminID, err := requestUserID(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	draftID, err := pathUUID(r, "draftId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return adminID, draftID, true
}
