package registry

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/payloads"
)

func TestTokenizationCatalogDecodesStatusChange(t *testing.T) {
	draftID := uuid.New()
	raw := json.RawMessage(`{"draft_id":"` + draftID.String() + `","from":"draft","to":"submitted","token_type":"utility"}`)

	event, err := DecodeAs[payloads.TokenizationStatusChangedEvent](Tokenization(), enums.EventTokenizationStatusChanged, 1, raw)
	require.NoError(t, err)
	require.Equal(t, draftID, event.DraftID)
	require.Equal(t, enums.DraftStatusSubmitted, event.To)
	require.Equal(t, enums.TokenTypeUtility, event.TokenType)
}

func TestCatalogUnknownVersion(t *testing.T) {
	_, err := Tokenization().Decode(enums.EventTokenizationStatusChanged, 2, json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrUnknownSchema)
}

func TestCatalogRejectsEmptyPayload(t *testing.T) {
	c := Tokenization()
	for _, raw := range []string{"", "  ", "null"} {
		_, err := c.Decode(enums.EventTokenizationStatusChanged, 1, json.RawMessage(raw))
		require.Error(t, err, "payload %q", raw)
	}
}

func TestCatalogRegisterReplacesVersion(t *testing.T) {
	type legacy struct {
		Status string `json:"status"`
	}
	c := Tokenization()
	Register[legacy](c, enums.EventTokenizationStatusChanged, enums.AggregateTokenizationDraft, 1)

	got, err := DecodeAs[legacy](c, enums.EventTokenizationStatusChanged, 1, json.RawMessage(`{"status":"approved"}`))
	require.NoError(t, err)
	require.Equal(t, "approved", got.Status)

	_, err = DecodeAs[payloads.TokenizationStatusChangedEvent](c, enums.EventTokenizationStatusChanged, 1, json.RawMessage(`{"status":"approved"}`))
	require.Error(t, err)
}

func TestCatalogMalformedPayload(t *testing.T) {
	_, err := Tokenization().Decode(enums.EventTokenizationStatusChanged, 1, json.RawMessage(`{"draft_id":42}`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnknownSchema)
}
