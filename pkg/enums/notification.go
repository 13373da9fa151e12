package enums

import "slices"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeTokenizationSubmitted NotificationType = "tokenization_submitted"
	NotificationTypeTokenizationApproved  NotificationType = "tokenization_approved"
	NotificationTypeTokenizationRejected  NotificationType = "tokenization_rejected"
	NotificationTypeTokenizationCancelled NotificationType = "tokenization_cancelled"
	// NotificationTypeOther carries UI-only notifications outside the lifecycle vocabulary.
	NotificationTypeOther NotificationType = "other"
)

var notificationTypes = []NotificationType{
	NotificationTypeTokenizationSubmitted,
	NotificationTypeTokenizationApproved,
	NotificationTypeTokenizationRejected,
	NotificationTypeTokenizationCancelled,
	NotificationTypeOther,
}

func (n NotificationType) IsValid() bool {
	return slices.Contains(notificationTypes, n)
}
