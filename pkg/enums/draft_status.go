package enums

import "fmt"

// DraftStatus maps to the tokenization_status enum in Postgres.
type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusSubmitted DraftStatus = "submitted"
	DraftStatusApproved  DraftStatus = "approved"
	DraftStatusRejected  DraftStatus = "rejected"
	DraftStatusCancelled DraftStatus = "cancelled"
)

var validDraftStatuses = []DraftStatus{
	DraftStatusDraft,
	DraftStatusSubmitted,
	DraftStatusApproved,
	DraftStatusRejected,
	DraftStatusCancelled,
}

// String implements fmt.Stringer.
func (s DraftStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical tokenization_status enum.
func (s DraftStatus) IsValid() bool {
	for _, candidate := range validDraftStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave this status.
func (s DraftStatus) IsTerminal() bool {
	switch s {
	case DraftStatusApproved, DraftStatusRejected, DraftStatusCancelled:
		return true
	}
	return false
}

// ParseDraftStatus converts raw input into DraftStatus.
func ParseDraftStatus(value string) (DraftStatus, error) {
	for _, candidate := range validDraftStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tokenization status %q", value)
}
