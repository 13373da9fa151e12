package payloads

import (
	"time"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	"github.com/google/uuid"
)

// TokenizationStatusChangedEvent is emitted in the same transaction as every draft status change.
type TokenizationStatusChangedEvent struct {
	DraftID             uuid.UUID         `json:"draft_id"`
	OwnerID             uuid.UUID         `json:"owner_id"`
	TokenType           enums.TokenType   `json:"token_type"`
	From                enums.DraftStatus `json:"from"`
	To                  enums.DraftStatus `json:"to"`
	ActorID             uuid.UUID         `json:"actor_id"`
	Version             int64             `json:"version"`
	Reason              string            `json:"reason,omitempty"`
	AssetName           string            `json:"asset_name,omitempty"`
	ApprovedAt          *time.Time        `json:"approved_at,omitempty"`
	WaitlistOpensAt     *time.Time        `json:"waitlist_opens_at,omitempty"`
	MarketplaceLaunchAt *time.Time        `json:"marketplace_launch_at,omitempty"`
	EstimatedLaunchDays *int              `json:"estimated_launch_days,omitempty"`
}
