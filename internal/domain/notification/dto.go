package notification

import (
	"time"
)

// ============= Request DTOs =============

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	RecipientID string           `json:"recipient_id" validate:"required"`
	ActorID     string           `json:"actor_id" validate:"required"`
	Type        NotificationType `json:"type" validate:"required"`
	RefID       *string          `json:"ref_id,omitempty" validate:"omitempty,min=1"`
}

// ListNotificationsRequest represents a request to list notifications
type ListNotificationsRequest struct {
	UserID     string
	Page       int
	PageSize   int
	UnreadOnly bool
}

// ============= Response DTOs =============

// NotificationResponse represents a notification in API responses and socket payloads
type NotificationResponse struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	ActorID     string           `json:"actor_id"`
	Type        NotificationType `json:"type"`
	RefID       *string          `json:"ref_id,omitempty"`
	IsRead      bool             `json:"is_read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NotificationListResponse represents one page of notifications.
// Pagination travels in the response meta, not in the body.
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
	Total         int                    `json:"-"`
	Page          int                    `json:"-"`
	PageSize      int                    `json:"-"`
}

// CreateNotificationResponse is returned by the internal trigger endpoint
type CreateNotificationResponse struct {
	ID string `json:"id"`
}

// UnreadCountResponse represents unread count response
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// MarkAllAsReadResponse reports how many notifications a bulk read touched
type MarkAllAsReadResponse struct {
	Updated int64 `json:"updated"`
}

// WSTokenResponse represents the short-lived socket token response
type WSTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// ============= Deferred delivery =============

// Reasons a notification could not be delivered live
const (
	ReasonRecipientOffline = "recipient_offline"
	ReasonPushFailed       = "push_failed"
)

// DeferredDelivery is the payload published when a notification missed every live connection
type DeferredDelivery struct {
	Notification NotificationResponse `json:"notification"`
	Reason       string               `json:"reason"`
	Attempted    bool                 `json:"attempted"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// ToResponse converts a Notification entity to NotificationResponse
func ToResponse(n *Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		ActorID:     n.ActorID,
		Type:        n.Type,
		RefID:       n.RefID,
		IsRead:      n.IsRead,
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
	}
}
