package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
)

func TestOutboxEventDeadLetterCopiesEvent(t *testing.T) {
	event := OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTokenizationStatusChanged,
		AggregateType: enums.AggregateTokenizationDraft,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  4,
	}
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	entry := event.DeadLetter(enums.OutboxDLQReasonMaxAttempts, "publish timeout", at)
	require.Equal(t, event.ID, entry.EventID)
	require.Equal(t, event.AggregateID, entry.AggregateID)
	require.Equal(t, event.AttemptCount, entry.AttemptCount)
	require.JSONEq(t, string(event.Payload), string(entry.Payload))
	require.Equal(t, at, entry.FailedAt)
	require.Equal(t, "publish timeout", *entry.ErrorMessage)
	require.Equal(t, uuid.Nil, entry.ID, "id is assigned on insert")

	require.Nil(t, event.DeadLetter(enums.OutboxDLQReasonMaxAttempts, "", at).ErrorMessage)
}
