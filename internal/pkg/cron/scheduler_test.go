package cron

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMaintainer struct {
	evictions atomic.Int32
	stats     atomic.Int32
}

func (f *fakeMaintainer) EvictStale(context.Context) error {
	f.evictions.Add(1)
	return nil
}

func (f *fakeMaintainer) LogStats(context.Context) error {
	f.stats.Add(1)
	return errors.New("stats unavailable")
}

func TestPresenceJobs_Register(t *testing.T) {
	s := NewScheduler(testLogger())
	m := &fakeMaintainer{}

	NewPresenceJobs(m, time.Hour, time.Hour).RegisterJobs(s)
	assert.Equal(t, []string{"evict_stale_connections", "log_presence_stats"}, s.jobNames())

	// jobs run once right away, then wait for their interval
	s.Start()
	assert.Eventually(t, func() bool {
		return m.evictions.Load() == 1 && m.stats.Load() == 1
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}

type fixedQueue int

func (q fixedQueue) Pending() int { return int(q) }

func TestEventBusJobs_LogQueueDepth(t *testing.T) {
	tests := []struct {
		name     string
		pending  int
		wantWarn bool
	}{
		{"idle", 0, false},
		{"half full", 50, false},
		{"nearly full", 75, true},
		{"full", 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			jobs := NewEventBusJobs(fixedQueue(tt.pending), 100, time.Minute, logger)

			require.NoError(t, jobs.logQueueDepth(context.Background()))
			assert.Equal(t, tt.wantWarn, strings.Contains(buf.String(), `"level":"WARN"`))
			assert.Contains(t, buf.String(), fmt.Sprintf(`"pending":%d`, tt.pending))
		})
	}
}

func TestEventBusJobs_Register(t *testing.T) {
	s := NewScheduler(testLogger())
	NewEventBusJobs(fixedQueue(0), 10, time.Minute, testLogger()).RegisterJobs(s)
	assert.Equal(t, []string{"log_fallback_queue_depth"}, s.jobNames())
}

func TestScheduler_RunsOnIntervalUntilStopped(t *testing.T) {
	s := NewScheduler(testLogger())
	var runs atomic.Int32
	s.AddJob("tick", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestScheduler_SurvivesPanickingJob(t *testing.T) {
	s := NewScheduler(testLogger())
	var runs atomic.Int32
	s.AddJob("boom", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		panic("boom")
	})

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
}
