package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
)

// AuditRecord is an append-only ledger entry for signed or financially relevant actions.
type AuditRecord struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	WalletAddress *string             `gorm:"column:wallet_address" json:"walletAddress,omitempty"`
	Category      enums.AuditCategory `gorm:"column:category;type:audit_category;not null" json:"category"`
	Action        enums.AuditAction   `gorm:"column:action;type:audit_action;not null" json:"action"`
	DraftID       *uuid.UUID          `gorm:"column:draft_id;type:uuid;index" json:"draftId,omitempty"`
	Description   string              `gorm:"column:description;type:text;not null" json:"description"`
	Signature     *string             `gorm:"column:signature" json:"signature,omitempty"`
	Metadata      datatypes.JSON      `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (AuditRecord) TableName() string { return "audit_records" }

func (r *AuditRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
