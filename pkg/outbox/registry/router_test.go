package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tokenizr-backend/pkg/config"
	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/payloads"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := NewRouter(config.PubSubConfig{TokenizationTopic: "tokenization-topic"}, nil)
	require.NoError(t, err)
	return r
}

func envelopeFor(t *testing.T, version int, data []byte) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return raw
}

func statusRow(t *testing.T, version int, data []byte) models.OutboxEvent {
	return models.OutboxEvent{
		EventType:     enums.EventTokenizationStatusChanged,
		AggregateType: enums.AggregateTokenizationDraft,
		AggregateID:   uuid.New(),
		Payload:       envelopeFor(t, version, data),
	}
}

func TestRouterResolvesStatusChange(t *testing.T) {
	draftID := uuid.New()
	data, err := json.Marshal(payloads.TokenizationStatusChangedEvent{
		DraftID:   draftID,
		OwnerID:   uuid.New(),
		TokenType: enums.TokenTypeSecurity,
		From:      enums.DraftStatusSubmitted,
		To:        enums.DraftStatusApproved,
	})
	require.NoError(t, err)
	row := statusRow(t, 1, data)
	row.AggregateID = draftID

	resolved, err := newTestRouter(t).Resolve(row)
	require.NoError(t, err)
	require.Equal(t, "tokenization-topic", resolved.Topic)
	require.Equal(t, enums.AggregateTokenizationDraft, resolved.Schema.AggregateType)
	require.NotEmpty(t, resolved.Envelope.EventID)

	change, ok := resolved.Payload.(*payloads.TokenizationStatusChangedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	require.Equal(t, draftID, change.DraftID)
	require.Equal(t, enums.DraftStatusApproved, change.To)
}

func TestRouterFailuresArePermanent(t *testing.T) {
	router := newTestRouter(t)
	body := []byte(`{"from":"draft","to":"submitted"}`)

	cases := map[string]models.OutboxEvent{
		"unknown event": func() models.OutboxEvent {
			row := statusRow(t, 1, body)
			row.EventType = enums.OutboxEventType("draft_archived")
			return row
		}(),
		"unknown version": statusRow(t, 7, body),
		"aggregate mismatch": func() models.OutboxEvent {
			row := statusRow(t, 1, body)
			row.AggregateType = enums.OutboxAggregateType("notification")
			return row
		}(),
		"missing aggregate": func() models.OutboxEvent {
			row := statusRow(t, 1, body)
			row.AggregateID = uuid.Nil
			return row
		}(),
		"null payload": statusRow(t, 1, []byte("null")),
		"broken envelope": func() models.OutboxEvent {
			row := statusRow(t, 1, body)
			row.Payload = json.RawMessage(`{"version":`)
			return row
		}(),
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := router.Resolve(row)
			require.Error(t, err)
			require.True(t, IsPermanent(err), "expected permanent failure, got %v", err)
		})
	}
}

func TestNewRouterRequiresTopic(t *testing.T) {
	_, err := NewRouter(config.PubSubConfig{}, nil)
	require.Error(t, err)
}

func TestIsPermanentSeesThroughWrapping(t *testing.T) {
	cause := errors.New("bad payload")
	wrapped := errors.Join(errors.New("relay"), Permanent(cause))
	require.True(t, IsPermanent(wrapped))
	require.ErrorIs(t, wrapped, cause)
	require.False(t, IsPermanent(cause))
}
