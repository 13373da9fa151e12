package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/tokenizr-backend/api/middleware"
	"github.com/angelmondragon/tokenizr-backend/api/responses"
	"github.com/angelmondragon/tokenizr-backend/api/validators"
	"github.com/angelmondragon/tokenizr-backend/internal/drafts"
	"github.com/angelmondragon/tokenizr-backend/internal/tokenization"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	"github.com/angelmondragon/tokenizr-backend/pkg/pagination"
)

type draftCreateRequest struct {
	TokenType string         `json:"tokenType" validate:"required,tokentype"`
	Step      int            `json:"step" validate:"min=0,max=20"`
	Fields    map[string]any `json:"fields"`
}

type draftUpdateRequest struct {
	Step            int            `json:"step" validate:"min=0,max=20"`
	Fields          map[string]any `json:"fields"`
	ExpectedVersion *int64         `json:"expectedVersion" validate:"omitempty,min=1"`
}

type signatureRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
	Timestamp string `json:"timestamp"`
}

type submitRequest struct {
	Signature signatureRequest `json:"signature"`
}

func (r submitRequest) toSignature() tokenization.SignatureInput {
	return tokenization.SignatureInput{
		Message:   r.Signature.Message,
		Signature: validators.SanitizeString(r.Signature.Signature, 0),
		Address:   validators.SanitizeString(r.Signature.Address, 0),
		Timestamp: validators.SanitizeString(r.Signature.Timestamp, 0),
	}
}

// CreateTokenizationDraft starts a new draft for the caller.
func CreateTokenizationDraft(svc drafts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "drafts service unavailable"))
			return
		}
		ownerID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req draftCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := svc.SaveDraft(r.Context(), drafts.SaveDraftInput{
			OwnerID:   ownerID,
			TokenType: enums.TokenType(req.TokenType),
			Step:      req.Step,
			Fields:    req.Fields,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, draft)
	}
}

// ListTokenizationDrafts pages through the caller's drafts, most recently touched first.
func ListTokenizationDrafts(svc drafts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "drafts service unavailable"))
			return
		}
		ownerID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := drafts.ListParams{
			OwnerID: ownerID,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseDraftStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}

		result, err := svc.ListDrafts(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetTokenizationDraft resumes a draft. Only the owner can read it.
func GetTokenizationDraft(svc drafts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "drafts service unavailable"))
			return
		}
		ownerID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draftID, err := pathUUID(r, "draftId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := svc.LoadDraft(r.Context(), ownerID, draftID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

// UpdateTokenizationDraft autosaves wizard progress into an existing draft.
func UpdateTokenizationDraft(svc drafts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "drafts service unavailable"))
			return
		}
		ownerID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draftID, err := pathUUID(r, "draftId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req draftUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := svc.SaveDraft(r.Context(), drafts.SaveDraftInput{
			OwnerID:         ownerID,
			DraftID:         &draftID,
			Step:            req.Step,
			Fields:          req.Fields,
			ExpectedVersion: req.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

// DeleteTokenizationDraft discards a draft that was never submitted.
func DeleteTokenizationDraft(svc drafts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "drafts service unavailable"))
			return
		}
		ownerID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draftID, err := pathUUID(r, "draftId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteDraft(r.Context(), ownerID, draftID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SubmitTokenizationDraft freezes the draft with the wallet signature and hands it to review.
func SubmitTokenizationDraft(svc tokenization.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tokenization service unavailable"))
			return
		}
		ownerID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draftID, err := pathUUID(r, "draftId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req submitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sig := req.toSignature()
		if sig.Address == "" {
			// wallet-bound sessions may omit the signer address
			sig.Address = middleware.WalletFromContext(r.Context())
		}

		result, err := svc.Submit(r.Context(), tokenization.SubmitInput{
			OwnerID:   ownerID,
			DraftID:   draftID,
			Signature: sig,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CancelTokenizationDraft lets the owner withdraw a draft or a pending submission.
func CancelTokenizationDraft(svc tokenization.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tokenization service unavailable"))
			return
		}
		ownerID, err := requestUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draftID, err := pathUUID(r, "draftId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), tokenization.CancelInput{ActorID: ownerID, DraftID: draftID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
