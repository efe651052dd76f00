package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// NotDeliveredLive is published when a notification reached no live connection
const NotDeliveredLive = "notification.not_delivered_live"

var (
	ErrQueueFull  = errors.New("event bus queue is full")
	ErrBusStopped = errors.New("event bus is stopped")
)

// Event is one published occurrence
type Event struct {
	Name        string
	Payload     interface{}
	PublishedAt time.Time
}

// Handler reacts to an event. Errors are logged, never propagated to the publisher.
type Handler func(ctx context.Context, event Event) error

// Config holds event bus configuration
type Config struct {
	QueueSize      int           // default: 1000
	Workers        int           // default: 2
	HandlerTimeout time.Duration // default: 10 seconds
}

type subscriber struct {
	name    string
	handler Handler
}

// Bus is an in-process, bounded, asynchronous publish/subscribe queue
type Bus struct {
	logger *slog.Logger
	config Config

	mu       sync.RWMutex
	handlers map[string][]subscriber
	stopped  bool

	queue chan Event
	wg    sync.WaitGroup
}

// New creates a bus and starts its workers
func New(cfg Config, logger *slog.Logger) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}

	b := &Bus{
		logger:   logger.With("component", "event_bus"),
		config:   cfg,
		handlers: make(map[string][]subscriber),
		queue:    make(chan Event, cfg.QueueSize),
	}

	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	b.logger.Info("Event bus started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return b
}

// Subscribe registers handler for events named name
func (b *Bus) Subscribe(name, subscriberName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], subscriber{name: subscriberName, handler: handler})
	b.logger.Info("Event subscriber registered", "event", name, "subscriber", subscriberName)
}

// Publish enqueues an event without blocking
func (b *Bus) Publish(name string, payload interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped {
		return ErrBusStopped
	}

	select {
	case b.queue <- Event{Name: name, Payload: payload, PublishedAt: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued, undispatched events
func (b *Bus) Pending() int {
	return len(b.queue)
}

// Stop rejects new events, drains the queue and waits for the workers
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus stopped")
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for event := range b.queue {
		b.dispatch(id, event)
	}
}

func (b *Bus) dispatch(workerID int, event Event) {
	b.mu.RLock()
	subs := append([]subscriber(nil), b.handlers[event.Name]...)
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("Event has no subscribers", "event", event.Name)
		return
	}

	for _, sub := range subs {
		if err := b.invoke(sub, event); err != nil {
			b.logger.Error("Event subscriber failed",
				"event", event.Name,
				"subscriber", sub.name,
				"worker", workerID,
				"error", err,
			)
		}
	}
}

func (b *Bus) invoke(sub subscriber, event Event) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.HandlerTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("subscriber panicked: %v", p)
		}
	}()

	return sub.handler(ctx, event)
}
