package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
)

// TokenizationDraft is a user-owned tokenization request moving through review.
type TokenizationDraft struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;index" json:"ownerId"`
	TokenType   enums.TokenType   `gorm:"column:token_type;type:token_type;not null" json:"tokenType"`
	CurrentStep int               `gorm:"column:current_step;not null;default:0" json:"currentStep"`
	Fields      datatypes.JSONMap `gorm:"column:fields;type:jsonb;not null" json:"fields"`
	Status      enums.DraftStatus `gorm:"column:status;type:tokenization_status;not null;default:'draft'" json:"status"`
	Version     int64             `gorm:"column:version;not null;default:1" json:"version"`

	ApprovedAt          *time.Time `gorm:"column:approved_at" json:"approvedAt,omitempty"`
	WaitlistOpensAt     *time.Time `gorm:"column:waitlist_opens_at" json:"waitlistOpensAt,omitempty"`
	MarketplaceLaunchAt *time.Time `gorm:"column:marketplace_launch_at" json:"marketplaceLaunchAt,omitempty"`
	EstimatedLaunchDays *int       `gorm:"column:estimated_launch_days" json:"estimatedLaunchDays,omitempty"`

	SignedMessage *string    `gorm:"column:signed_message" json:"signedMessage,omitempty"`
	Signature     *string    `gorm:"column:signature" json:"signature,omitempty"`
	SignerAddress *string    `gorm:"column:signer_address" json:"signerAddress,omitempty"`
	SignedAt      *time.Time `gorm:"column:signed_at" json:"signedAt,omitempty"`

	ReviewedBy      *uuid.UUID `gorm:"column:reviewed_by;type:uuid" json:"reviewedBy,omitempty"`
	RejectionReason *string    `gorm:"column:rejection_reason" json:"rejectionReason,omitempty"`
	CancelledAt     *time.Time `gorm:"column:cancelled_at" json:"cancelledAt,omitempty"`
	CancelledBy     *uuid.UUID `gorm:"column:cancelled_by;type:uuid" json:"cancelledBy,omitempty"`

	SubmittedAt *time.Time `gorm:"column:submitted_at" json:"submittedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (TokenizationDraft) TableName() string { return "tokenization_drafts" }

// BeforeCreate assigns the primary key and the initial row version.
func (d *TokenizationDraft) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Version == 0 {
		d.Version = 1
	}
	if d.Status == "" {
		d.Status = enums.DraftStatusDraft
	}
	if d.Fields == nil {
		d.Fields = datatypes.JSONMap{}
	}
	return nil
}
