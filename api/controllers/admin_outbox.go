package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tokenizr-backend/api/responses"
	"github.com/angelmondragon/tokenizr-backend/api/validators"
	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tokenizr-backend/pkg/errors"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox"
)

const (
	defaultDeadLetterPage = 50
	maxDeadLetterPage     = 200
)

// DeadLetterReader reads dead-lettered outbox rows.
type DeadLetterReader interface {
	List(ctx context.Context, filter outbox.DeadLetterFilter) ([]models.OutboxDLQ, error)
	Get(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

type deadLetterView struct {
	ID           uuid.UUID                  `json:"id"`
	EventID      uuid.UUID                  `json:"eventId"`
	EventType    enums.OutboxEventType      `json:"eventType"`
	DraftID      uuid.UUID                  `json:"draftId"`
	ErrorReason  enums.OutboxDLQErrorReason `json:"errorReason"`
	ErrorMessage string                     `json:"errorMessage,omitempty"`
	AttemptCount int                        `json:"attemptCount"`
	FailedAt     time.Time                  `json:"failedAt"`
	Payload      json.RawMessage            `json:"payload"`
}

// AdminListDeadLetters shows outbox rows the relay gave up on, newest first.
// Filters: reason, draftId, limit.
func AdminListDeadLetters(store DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}

		filter := outbox.DeadLetterFilter{}
		if raw := strings.TrimSpace(r.URL.Query().Get("reason")); raw != "" {
			reason, err := enums.ParseOutboxDLQErrorReason(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason").
					WithDetails(map[string]any{"field": "reason"}))
				return
			}
			filter.Reason = reason
		}
		draftID, err := validators.ParseQueryUUID(r, "draftId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.AggregateID = draftID
		if filter.Limit, err = validators.ParseQueryInt(r, "limit", defaultDeadLetterPage, 1, maxDeadLetterPage); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := store.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.FromDB(err, "list dead letters"))
			return
		}
		items := make([]deadLetterView, 0, len(rows))
		for _, row := range rows {
			items = append(items, newDeadLetterView(row))
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

// AdminGetDeadLetter returns the dead letter recorded for one outbox event.
func AdminGetDeadLetter(store DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		eventID, err := pathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := store.Get(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.FromDB(err, "dead letter not found"))
			return
		}
		responses.WriteSuccess(w, newDeadLetterView(*row))
	}
}

func newDeadLetterView(row models.OutboxDLQ) deadLetterView {
	view := deadLetterView{
		ID:           row.ID,
		EventID:      row.EventID,
		EventType:    row.EventType,
		DraftID:      row.AggregateID,
		ErrorReason:  row.ErrorReason,
		AttemptCount: row.AttemptCount,
		FailedAt:     row.FailedAt,
		Payload:      row.Payload,
	}
	if row.ErrorMessage != nil {
		view.ErrorMessage = *row.ErrorMessage
	}
	return view
}
