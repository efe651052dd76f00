package notification

import (
	"context"
)

// Service defines the notification service interface. The REST handlers and the
// socket gateway share a single instance.
type Service interface {
	CreateNotification(ctx context.Context, req CreateNotificationRequest) (string, error)

	GetNotifications(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) (*NotificationListResponse, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, userID string, notificationID string) (*NotificationResponse, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID string, notificationID string) error
}
