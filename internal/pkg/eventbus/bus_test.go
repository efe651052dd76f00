package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_DeliversToEverySubscriber(t *testing.T) {
	bus := New(Config{QueueSize: 10, Workers: 2}, testLogger())

	var mu sync.Mutex
	var got []string
	record := func(tag string) Handler {
		return func(_ context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, tag+":"+e.Payload.(string))
			return nil
		}
	}
	bus.Subscribe(NotDeliveredLive, "audit", record("audit"))
	bus.Subscribe(NotDeliveredLive, "queue", record("queue"))
	bus.Subscribe("other", "other", record("other"))

	require.NoError(t, bus.Publish(NotDeliveredLive, "n1"))
	bus.Stop()

	assert.ElementsMatch(t, []string{"audit:n1", "queue:n1"}, got)
}

func TestBus_PublishNeverBlocksWhenFull(t *testing.T) {
	bus := New(Config{QueueSize: 1, Workers: 1}, testLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	bus.Subscribe("slow", "slow", func(context.Context, Event) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})

	require.NoError(t, bus.Publish("slow", 1))
	<-started

	// worker is busy; one slot left in the queue
	require.NoError(t, bus.Publish("slow", 2))

	done := make(chan error, 1)
	go func() { done <- bus.Publish("slow", 3) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(release)
	bus.Stop()
}

func TestBus_SubscriberFailureIsIsolated(t *testing.T) {
	bus := New(Config{QueueSize: 10, Workers: 1}, testLogger())

	var calls atomic.Int32
	bus.Subscribe("evt", "panics", func(context.Context, Event) error {
		panic("boom")
	})
	bus.Subscribe("evt", "errors", func(context.Context, Event) error {
		return errors.New("nope")
	})
	bus.Subscribe("evt", "works", func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish("evt", nil))
	require.NoError(t, bus.Publish("evt", nil))
	bus.Stop()

	assert.Equal(t, int32(2), calls.Load())
}

func TestBus_StopDrainsQueue(t *testing.T) {
	bus := New(Config{QueueSize: 100, Workers: 3}, testLogger())

	var count atomic.Int32
	bus.Subscribe("evt", "counter", func(context.Context, Event) error {
		count.Add(1)
		return nil
	})

	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish("evt", i))
	}
	bus.Stop()

	assert.Equal(t, int32(50), count.Load())
	assert.ErrorIs(t, bus.Publish("evt", 51), ErrBusStopped)

	// second stop is a no-op
	bus.Stop()
}
