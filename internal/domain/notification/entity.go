package notification

import (
	"time"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	TypeFollow       NotificationType = "FOLLOW"
	TypeLike         NotificationType = "LIKE"
	TypeReply        NotificationType = "REPLY"
	TypeReplyToReply NotificationType = "REPLY_TO_REPLY"
	TypeReshare      NotificationType = "RESHARE"
	TypeMention      NotificationType = "MENTION"
)

// AllNotificationTypes returns all available notification types
func AllNotificationTypes() []NotificationType {
	return []NotificationType{
		TypeFollow,
		TypeLike,
		TypeReply,
		TypeReplyToReply,
		TypeReshare,
		TypeMention,
	}
}

// IsValid reports whether t is one of the known notification types
func (t NotificationType) IsValid() bool {
	for _, known := range AllNotificationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Notification represents a notification entity
type Notification struct {
	ID          string
	RecipientID string
	ActorID     string
	Type        NotificationType
	// RefID points at the post or reply that triggered the notification. Nil for FOLLOW.
	RefID     *string
	IsRead    bool
	ReadAt    *time.Time
	CreatedAt time.Time
}
