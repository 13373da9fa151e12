package drafts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/tokenizr-backend/pkg/db/models"
	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
	pkgpagination "github.com/angelmondragon/tokenizr-backend/pkg/pagination"
)

type ListParams struct {
	OwnerID uuid.UUID
	Status  *enums.DraftStatus
	pkgpagination.Params
}

type ListResult struct {
	Items  []ListItem `json:"items"`
	Cursor string     `json:"cursor"`
}

type ListItem struct {
	ID                  uuid.UUID         `json:"id"`
	TokenType           enums.TokenType   `json:"tokenType"`
	Status              enums.DraftStatus `json:"status"`
	CurrentStep         int               `json:"currentStep"`
	AssetName           string            `json:"assetName,omitempty"`
	Version             int64             `json:"version"`
	SubmittedAt         *time.Time        `json:"submittedAt,omitempty"`
	ApprovedAt          *time.Time        `json:"approvedAt,omitempty"`
	MarketplaceLaunchAt *time.Time        `json:"marketplaceLaunchAt,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// ListQuery is the repository-level filter built by ListDrafts.
type ListQuery struct {
	ownerID uuid.UUID
	status  *enums.DraftStatus
	limit   int
	cursor  *pkgpagination.Cursor
}

func toListItem(m models.TokenizationDraft) ListItem {
	item := ListItem{
		ID:                  m.ID,
		TokenType:           m.TokenType,
		Status:              m.Status,
		CurrentStep:         m.CurrentStep,
		Version:             m.Version,
		SubmittedAt:         m.SubmittedAt,
		ApprovedAt:          m.ApprovedAt,
		MarketplaceLaunchAt: m.MarketplaceLaunchAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
	if name, ok := m.Fields["asset_name"].(string); ok {
		item.AssetName = name
	}
	return item
}

func jsonMap(fields map[string]any) datatypes.JSONMap {
	if fields == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(fields)
}
