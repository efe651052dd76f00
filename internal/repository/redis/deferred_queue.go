package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linkpulse/notifyhub/internal/domain/notification"
	goredis "github.com/redis/go-redis/v9"
)

// redisClient is the subset of go-redis the queue needs
type redisClient interface {
	TxPipelined(ctx context.Context, fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error)
}

// Config holds deferred queue limits
type Config struct {
	MaxLen int64         // default: 200
	TTL    time.Duration // default: 7 days
}

// DeferredQueue keeps, per recipient, the notifications that missed every live connection.
// Each recipient has one list `deferred:{userID}`, newest entry at the head.
type DeferredQueue struct {
	client redisClient
	config Config
	logger *slog.Logger
}

// NewDeferredQueue is the constructor for the DeferredQueue
func NewDeferredQueue(client redisClient, cfg Config, logger *slog.Logger) (*DeferredQueue, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 200
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &DeferredQueue{
		client: client,
		config: cfg,
		logger: logger.With("component", "redis_deferred_queue"),
	}, nil
}

// Enqueue pushes d onto its recipient's list, trims the list and refreshes its TTL
func (q *DeferredQueue) Enqueue(ctx context.Context, d notification.DeferredDelivery) error {
	userID := d.Notification.RecipientID
	log := q.logger.With("user_id", userID, "notification_id", d.Notification.ID)

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal deferred delivery: %w", err)
	}

	key := deferredKey(userID)
	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, q.config.MaxLen-1)
		pipe.Expire(ctx, key, q.config.TTL)
		return nil
	})
	if err != nil {
		log.Error("Failed to enqueue deferred delivery", "key", key, "error", err)
		return fmt.Errorf("failed to enqueue deferred delivery: %w", err)
	}

	log.Debug("Deferred delivery enqueued", "key", key)
	return nil
}

// Drain atomically reads up to limit queued deliveries for userID, oldest first, and
// deletes the list. Entries past limit are dropped with it.
func (q *DeferredQueue) Drain(ctx context.Context, userID string, limit int64) ([]notification.DeferredDelivery, error) {
	if limit <= 0 {
		return []notification.DeferredDelivery{}, nil
	}

	key := deferredKey(userID)
	var lrange *goredis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, limit-1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain deferred queue: %w", err)
	}

	payloads := lrange.Val()
	out := make([]notification.DeferredDelivery, 0, len(payloads))
	// Head of the list is the newest entry
	for i := len(payloads) - 1; i >= 0; i-- {
		var d notification.DeferredDelivery
		if err := json.Unmarshal([]byte(payloads[i]), &d); err != nil {
			q.logger.Warn("Skipping malformed deferred entry", "key", key, "error", err)
			continue
		}
		out = append(out, d)
	}

	if len(payloads) > 0 {
		q.logger.Debug("Deferred queue drained", "key", key, "entries", len(out))
	}
	return out, nil
}

func deferredKey(userID string) string { return fmt.Sprintf("deferred:%s", userID) }
