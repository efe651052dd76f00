package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/linkpulse/notifyhub/internal/domain/notification"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
	"github.com/linkpulse/notifyhub/internal/pkg/eventbus"
)

// DeferredStore keeps deliveries until the recipient reconnects
type DeferredStore interface {
	Enqueue(ctx context.Context, d notification.DeferredDelivery) error
	Drain(ctx context.Context, userID string, limit int64) ([]notification.DeferredDelivery, error)
}

// PushSender delivers a notification out of band
type PushSender interface {
	Send(ctx context.Context, d notification.DeferredDelivery) error
}

// LivePusher reaches the open connections of a user
type LivePusher interface {
	PushToUser(ctx context.Context, userID string, event string, data interface{}) presence.DeliveryOutcome
}

// Subscriber is the part of the event bus consumers attach to
type Subscriber interface {
	Subscribe(name, subscriberName string, handler eventbus.Handler)
}

// Config wires the optional consumers. Store needs Directory and Live to replay.
type Config struct {
	Store       DeferredStore
	Pusher      PushSender
	Directory   presence.Directory
	Live        LivePusher
	ReplayLimit int64 // default: 50
}

// Consumer reacts to notifications that missed every live connection.
// The audit log always runs; store and pusher are optional.
type Consumer struct {
	logger *slog.Logger
	config Config
	now    func() time.Time
}

// NewConsumer creates a consumer
func NewConsumer(logger *slog.Logger, cfg Config) *Consumer {
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = 50
	}
	return &Consumer{
		logger: logger.With("component", "fallback_consumer"),
		config: cfg,
		now:    time.Now,
	}
}

// Register subscribes the enabled handlers to bus
func (c *Consumer) Register(bus Subscriber) {
	bus.Subscribe(eventbus.NotDeliveredLive, "audit_log", c.audit)
	if c.config.Store != nil {
		bus.Subscribe(eventbus.NotDeliveredLive, "deferred_queue", c.enqueue)
	}
	if c.config.Pusher != nil {
		bus.Subscribe(eventbus.NotDeliveredLive, "fcm_push", c.push)
	}
}

// Replay drains the deferred backlog of userID and sends each entry, oldest first,
// to the user's open connections as new_notification. Entries nothing received are
// queued again.
func (c *Consumer) Replay(ctx context.Context, userID string) {
	if c.config.Store == nil || c.config.Live == nil {
		return
	}
	log := c.logger.With("user_id", userID)

	backlog, err := c.config.Store.Drain(ctx, userID, c.config.ReplayLimit)
	if err != nil {
		log.Warn("Failed to drain deferred backlog", "error", err)
		return
	}

	replayed := 0
	for _, d := range backlog {
		outcome := c.config.Live.PushToUser(ctx, userID, presence.EventNewNotification, presence.NewNotificationPayload{
			Payload:   d.Notification,
			Timestamp: c.now(),
		})
		if outcome.Delivered {
			replayed++
			continue
		}
		if err := c.config.Store.Enqueue(ctx, d); err != nil {
			log.Warn("Failed to requeue deferred delivery", "notification_id", d.Notification.ID, "error", err)
		}
	}

	if len(backlog) > 0 {
		log.Info("Replayed deferred backlog", "entries", len(backlog), "replayed", replayed)
	}
}

func (c *Consumer) audit(ctx context.Context, event eventbus.Event) error {
	d, err := decode(event)
	if err != nil {
		return err
	}
	c.logger.Info("Notification not delivered live",
		"notification_id", d.Notification.ID,
		"recipient_id", d.Notification.RecipientID,
		"type", d.Notification.Type,
		"reason", d.Reason,
		"attempted", d.Attempted,
		"queued_for", event.PublishedAt.Sub(d.OccurredAt),
	)
	return nil
}

func (c *Consumer) enqueue(ctx context.Context, event eventbus.Event) error {
	d, err := decode(event)
	if err != nil {
		return err
	}
	if err := c.config.Store.Enqueue(ctx, d); err != nil {
		return err
	}

	// The recipient may have been admitted, and drained its backlog, while this
	// event sat on the bus. Admission registers before draining, so a connection
	// seen here means this entry would otherwise wait for the next reconnect.
	if c.config.Directory != nil && c.config.Directory.IsOnline(d.Notification.RecipientID) {
		c.Replay(ctx, d.Notification.RecipientID)
	}
	return nil
}

func (c *Consumer) push(ctx context.Context, event eventbus.Event) error {
	d, err := decode(event)
	if err != nil {
		return err
	}
	return c.config.Pusher.Send(ctx, d)
}

func decode(event eventbus.Event) (notification.DeferredDelivery, error) {
	switch p := event.Payload.(type) {
	case notification.DeferredDelivery:
		return p, nil
	case *notification.DeferredDelivery:
		if p != nil {
			return *p, nil
		}
	}
	return notification.DeferredDelivery{}, fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Name)
}
