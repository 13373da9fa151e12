package enums

import "fmt"

// AuditCategory maps to the audit_category enum in Postgres.
type AuditCategory string

const (
	AuditCategoryWalletSignature AuditCategory = "wallet_signature"
	AuditCategoryPlatformAction  AuditCategory = "platform_action"
)

var validAuditCategories = []AuditCategory{
	AuditCategoryWalletSignature,
	AuditCategoryPlatformAction,
}

// IsValid reports whether the value matches the canonical audit_category enum.
func (c AuditCategory) IsValid() bool {
	for _, candidate := range validAuditCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseAuditCategory converts raw input into AuditCategory.
func ParseAuditCategory(value string) (AuditCategory, error) {
	for _, candidate := range validAuditCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit category %q", value)
}

// AuditAction maps to the audit_action enum in Postgres.
type AuditAction string

const (
	AuditActionTokenizationSubmitted AuditAction = "tokenization_submitted"
	AuditActionTokenizationApproved  AuditAction = "tokenization_approved"
	AuditActionTokenizationRejected  AuditAction = "tokenization_rejected"
	AuditActionTokenizationCancelled AuditAction = "tokenization_cancelled"
)

var validAuditActions = []AuditAction{
	AuditActionTokenizationSubmitted,
	AuditActionTokenizationApproved,
	AuditActionTokenizationRejected,
	AuditActionTokenizationCancelled,
}

// IsValid reports whether the value matches the canonical audit_action enum.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}
