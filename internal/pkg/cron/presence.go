package cron

import (
	"context"
	"time"
)

// PresenceMaintainer is the gateway surface the presence jobs drive
type PresenceMaintainer interface {
	EvictStale(ctx context.Context) error
	LogStats(ctx context.Context) error
}

// PresenceJobs contains connection housekeeping jobs
type PresenceJobs struct {
	gateway       PresenceMaintainer
	sweepInterval time.Duration
	statsInterval time.Duration
}

// NewPresenceJobs creates presence cron jobs
func NewPresenceJobs(gateway PresenceMaintainer, sweepInterval, statsInterval time.Duration) *PresenceJobs {
	return &PresenceJobs{
		gateway:       gateway,
		sweepInterval: sweepInterval,
		statsInterval: statsInterval,
	}
}

// RegisterJobs registers all presence-related cron jobs
func (j *PresenceJobs) RegisterJobs(scheduler *Scheduler) {
	// Close connections that stopped answering pings
	scheduler.AddJob(
		"evict_stale_connections",
		j.sweepInterval,
		j.gateway.EvictStale,
	)

	scheduler.AddJob(
		"log_presence_stats",
		j.statsInterval,
		j.gateway.LogStats,
	)
}
