package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkpulse/notifyhub/internal/domain/notification"
)

type notificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*notification.Notification
	now           func() time.Time
}

// NewNotificationRepository creates a process-local notification store
func NewNotificationRepository() notification.Repository {
	return &notificationRepository{
		notifications: make(map[string]*notification.Notification),
		now:           time.Now,
	}
}

func clone(n *notification.Notification) *notification.Notification {
	c := *n
	if n.ReadAt != nil {
		t := *n.ReadAt
		c.ReadAt = &t
	}
	if n.RefID != nil {
		ref := *n.RefID
		c.RefID = &ref
	}
	return &c
}

// Create stores a new notification
func (r *notificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	r.notifications[n.ID] = clone(n)
	return nil
}

// GetByUserID retrieves notifications for a user, newest first
func (r *notificationRepository) GetByUserID(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) ([]*notification.Notification, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*notification.Notification
	for _, n := range r.notifications {
		if n.RecipientID != userID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		matched = append(matched, n)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	offset := (page - 1) * pageSize
	if offset < 0 || offset >= total {
		return []*notification.Notification{}, total, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}

	out := make([]*notification.Notification, 0, end-offset)
	for _, n := range matched[offset:end] {
		out = append(out, clone(n))
	}
	return out, total, nil
}

// GetUnreadCount returns the count of unread notifications for a user
func (r *notificationRepository) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.notifications {
		if n.RecipientID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkAsRead marks one notification owned by userID as read
func (r *notificationRepository) MarkAsRead(ctx context.Context, id string, userID string) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.RecipientID != userID {
		return nil, notification.ErrNotificationNotFound
	}
	if !n.IsRead {
		now := r.now()
		n.IsRead = true
		n.ReadAt = &now
	}
	return clone(n), nil
}

// MarkAllAsRead marks all unread notifications of userID as read
func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var updated int64
	for _, n := range r.notifications {
		if n.RecipientID == userID && !n.IsRead {
			readAt := now
			n.IsRead = true
			n.ReadAt = &readAt
			updated++
		}
	}
	return updated, nil
}

// Delete removes a notification owned by userID
func (r *notificationRepository) Delete(ctx context.Context, id string, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.RecipientID != userID {
		return notification.ErrNotificationNotFound
	}
	delete(r.notifications, id)
	return nil
}
