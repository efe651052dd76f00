package notification

import (
	"context"
)

// Repository defines the notification repository interface
type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	GetByUserID(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) ([]*Notification, int, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)

	// MarkAsRead transitions one notification owned by userID to read and returns its
	// current state. Already-read notifications keep their original read_at.
	MarkAsRead(ctx context.Context, id string, userID string) (*Notification, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string, userID string) error
}
