package notification

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkpulse/notifyhub/internal/domain/notification"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
	"github.com/linkpulse/notifyhub/internal/pkg/eventbus"
	"github.com/linkpulse/notifyhub/internal/pkg/validator"
)

// Publisher hands events to the fallback bus without blocking
type Publisher interface {
	Publish(name string, payload interface{}) error
}

// Config holds notification service configuration
type Config struct {
	LockStripes     int // default: 64
	DefaultPageSize int // default: 20
	MaxPageSize     int // default: 100
}

type service struct {
	repo      notification.Repository
	router    presence.Router
	publisher Publisher
	logger    *slog.Logger
	config    Config
	now       func() time.Time

	// Per-recipient striped locks. Creations hold a read lock while persisting and
	// pushing; MarkAllAsRead holds the write lock, so every creation persisted
	// before the bulk update returns is covered by it.
	stripes []sync.RWMutex
}

// NewNotificationService creates the notification service shared by REST and socket handlers
func NewNotificationService(repo notification.Repository, router presence.Router, publisher Publisher, logger *slog.Logger, cfg Config) notification.Service {
	if cfg.LockStripes <= 0 {
		cfg.LockStripes = 64
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}

	return &service{
		repo:      repo,
		router:    router,
		publisher: publisher,
		logger:    logger.With("component", "notification_service"),
		config:    cfg,
		now:       time.Now,
		stripes:   make([]sync.RWMutex, cfg.LockStripes),
	}
}

func (s *service) stripe(userID string) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.stripes[h.Sum32()%uint32(len(s.stripes))]
}

// CreateNotification persists a notification and delivers it live, falling back to the
// event bus when no connection received it. Only persistence failures are returned.
func (s *service) CreateNotification(ctx context.Context, req notification.CreateNotificationRequest) (string, error) {
	if err := validator.Struct(req); err != nil {
		return "", err
	}
	if !req.Type.IsValid() {
		return "", notification.ErrInvalidNotificationType
	}
	if req.ActorID == req.RecipientID {
		return "", notification.ErrInvalidSelfNotification
	}

	n := &notification.Notification{
		ID:          uuid.New().String(),
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		Type:        req.Type,
		RefID:       req.RefID,
		IsRead:      false,
		CreatedAt:   s.now(),
	}

	lock := s.stripe(n.RecipientID)
	lock.RLock()
	defer lock.RUnlock()

	if err := s.repo.Create(ctx, n); err != nil {
		return "", err
	}

	// The notification exists now; the caller going away must not cut delivery short.
	s.deliver(context.WithoutCancel(ctx), n)

	return n.ID, nil
}

func (s *service) deliver(ctx context.Context, n *notification.Notification) {
	resp := notification.ToResponse(n)
	outcome := s.router.PushToUser(ctx, n.RecipientID, presence.EventNewNotification, presence.NewNotificationPayload{
		Payload:   resp,
		Timestamp: s.now(),
	})

	if outcome.Delivered {
		s.broadcastUnreadCount(ctx, n.RecipientID)
		return
	}

	reason := notification.ReasonRecipientOffline
	if outcome.Attempted {
		reason = notification.ReasonPushFailed
	}

	err := s.publisher.Publish(eventbus.NotDeliveredLive, notification.DeferredDelivery{
		Notification: resp,
		Reason:       reason,
		Attempted:    outcome.Attempted,
		OccurredAt:   s.now(),
	})
	if err != nil {
		s.logger.Error("Failed to publish deferred delivery",
			"notification_id", n.ID,
			"recipient_id", n.RecipientID,
			"reason", reason,
			"error", err,
		)
	}
}

func (s *service) broadcastUnreadCount(ctx context.Context, userID string) {
	count, err := s.repo.GetUnreadCount(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to recompute unread count", "user_id", userID, "error", err)
		return
	}
	s.pushUnreadCount(ctx, userID, count)
}

func (s *service) pushUnreadCount(ctx context.Context, userID string, count int) {
	s.router.PushToUser(ctx, userID, presence.EventUnreadCount, presence.UnreadCountPayload{Count: count})
}

// GetNotifications retrieves paginated notifications for a user
func (s *service) GetNotifications(ctx context.Context, userID string, page, pageSize int, unreadOnly bool) (*notification.NotificationListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > s.config.MaxPageSize {
		pageSize = s.config.DefaultPageSize
	}
	// keeps (page-1)*pageSize and the end of the page inside int
	if maxPage := math.MaxInt / pageSize; page > maxPage {
		page = maxPage
	}

	notifications, total, err := s.repo.GetByUserID(ctx, userID, page, pageSize, unreadOnly)
	if err != nil {
		return nil, err
	}

	unreadCount, err := s.repo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]notification.NotificationResponse, len(notifications))
	for i, n := range notifications {
		responses[i] = notification.ToResponse(n)
	}

	return &notification.NotificationListResponse{
		Notifications: responses,
		Total:         total,
		UnreadCount:   unreadCount,
		Page:          page,
		PageSize:      pageSize,
	}, nil
}

// GetUnreadCount always reads from the store
func (s *service) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// MarkAsRead marks one notification as read and re-broadcasts the unread count to
// every connection of the user
func (s *service) MarkAsRead(ctx context.Context, userID string, notificationID string) (*notification.NotificationResponse, error) {
	notificationID, err := parseID(notificationID)
	if err != nil {
		return nil, err
	}

	n, err := s.repo.MarkAsRead(ctx, notificationID, userID)
	if err != nil {
		return nil, err
	}

	s.broadcastUnreadCount(context.WithoutCancel(ctx), userID)

	resp := notification.ToResponse(n)
	return &resp, nil
}

// MarkAllAsRead marks every notification of the user as read and broadcasts a zero count
func (s *service) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	lock := s.stripe(userID)
	lock.Lock()
	defer lock.Unlock()

	updated, err := s.repo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.pushUnreadCount(context.WithoutCancel(ctx), userID, 0)

	s.logger.Debug("Marked all notifications as read", "user_id", userID, "updated", updated)
	return updated, nil
}

// Delete removes a notification and re-broadcasts the unread count
func (s *service) Delete(ctx context.Context, userID string, notificationID string) error {
	notificationID, err := parseID(notificationID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, notificationID, userID); err != nil {
		return err
	}

	s.broadcastUnreadCount(context.WithoutCancel(ctx), userID)
	return nil
}

// parseID canonicalizes a client supplied notification id. Ids are UUIDs, so
// anything else cannot match a stored notification.
func parseID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", notification.ErrNotificationNotFound
	}
	return parsed.String(), nil
}
