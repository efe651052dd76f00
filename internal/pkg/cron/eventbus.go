package cron

import (
	"context"
	"log/slog"
	"time"
)

// QueueMonitor reports how many events wait for a worker
type QueueMonitor interface {
	Pending() int
}

// EventBusJobs watches the fallback event bus backlog
type EventBusJobs struct {
	bus      QueueMonitor
	capacity int
	interval time.Duration
	logger   *slog.Logger
}

// NewEventBusJobs creates event bus cron jobs. capacity is the bus queue size.
func NewEventBusJobs(bus QueueMonitor, capacity int, interval time.Duration, logger *slog.Logger) *EventBusJobs {
	return &EventBusJobs{
		bus:      bus,
		capacity: capacity,
		interval: interval,
		logger:   logger.With("component", "cron"),
	}
}

// RegisterJobs registers all event bus cron jobs
func (j *EventBusJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob(
		"log_fallback_queue_depth",
		j.interval,
		j.logQueueDepth,
	)
}

// logQueueDepth warns once the queue is three quarters full; Publish starts
// dropping events when it is full.
func (j *EventBusJobs) logQueueDepth(ctx context.Context) error {
	pending := j.bus.Pending()
	if j.capacity > 0 && pending*4 >= j.capacity*3 {
		j.logger.Warn("Fallback queue nearly full", "pending", pending, "capacity", j.capacity)
		return nil
	}
	j.logger.Debug("Fallback queue depth", "pending", pending, "capacity", j.capacity)
	return nil
}
