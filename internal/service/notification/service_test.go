package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linkpulse/notifyhub/internal/domain/notification"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
	"github.com/linkpulse/notifyhub/internal/pkg/eventbus"
	"github.com/linkpulse/notifyhub/internal/pkg/registry"
	"github.com/linkpulse/notifyhub/internal/pkg/validator"
	"github.com/linkpulse/notifyhub/internal/repository/memory"
	"github.com/linkpulse/notifyhub/internal/service/delivery"
	"github.com/linkpulse/notifyhub/internal/test/fakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	repo      notification.Repository
	registry  *registry.Registry
	publisher *fakes.Publisher
	service   notification.Service
}

func newTestEnv(t *testing.T, repo notification.Repository) *testEnv {
	t.Helper()
	if repo == nil {
		repo = memory.NewNotificationRepository()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New()
	pub := fakes.NewPublisher()
	svc := NewNotificationService(repo, delivery.NewRouter(reg, logger), pub, logger, Config{})
	return &testEnv{repo: repo, registry: reg, publisher: pub, service: svc}
}

func (e *testEnv) connect(t *testing.T, connID, userID string) *fakes.Emitter {
	t.Helper()
	em := fakes.NewEmitter()
	require.NoError(t, e.registry.Register(registry.NewConnection(connID, userID, em, time.Now())))
	return em
}

func (e *testEnv) create(t *testing.T, typ notification.NotificationType, actor, recipient string) string {
	t.Helper()
	id, err := e.service.CreateNotification(context.Background(), notification.CreateNotificationRequest{
		RecipientID: recipient,
		ActorID:     actor,
		Type:        typ,
	})
	require.NoError(t, err)
	return id
}

// failingRepo fails Create and delegates everything else
type failingRepo struct {
	notification.Repository
}

func (failingRepo) Create(context.Context, *notification.Notification) error {
	return errors.New("insert failed")
}

// blockingRepo parks Create until release is closed
type blockingRepo struct {
	notification.Repository
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRepo) Create(ctx context.Context, n *notification.Notification) error {
	close(r.entered)
	<-r.release
	return r.Repository.Create(ctx, n)
}

func TestCreateNotification_OfflineRecipientPublishesOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	env.connect(t, "a1", "alice")
	env.connect(t, "a2", "alice")

	id := env.create(t, notification.TypeFollow, "alice", "bob")

	events := env.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.NotDeliveredLive, events[0].Name)

	d, ok := events[0].Payload.(notification.DeferredDelivery)
	require.True(t, ok)
	assert.Equal(t, id, d.Notification.ID)
	assert.Equal(t, notification.TypeFollow, d.Notification.Type)
	assert.Equal(t, "bob", d.Notification.RecipientID)
	assert.Equal(t, notification.ReasonRecipientOffline, d.Reason)
	assert.False(t, d.Attempted)

	stored, _, err := env.repo.GetByUserID(context.Background(), "bob", 1, 10, false)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, id, stored[0].ID)
	assert.False(t, stored[0].IsRead)
}

func TestCreateNotification_OnlineRecipientGetsNotificationAndCount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, notification.TypeMention, "carol", "alice")
	em := env.connect(t, "a1", "alice")

	prior, err := env.service.GetUnreadCount(context.Background(), "alice")
	require.NoError(t, err)

	id := env.create(t, notification.TypeLike, "bob", "alice")

	assert.Equal(t, []string{presence.EventNewNotification, presence.EventUnreadCount}, em.Events())

	msg, _ := em.Last(presence.EventNewNotification)
	payload := msg.Data.(presence.NewNotificationPayload)
	assert.Equal(t, id, payload.Payload.ID)
	assert.Equal(t, notification.TypeLike, payload.Payload.Type)
	assert.False(t, payload.Timestamp.IsZero())

	msg, _ = em.Last(presence.EventUnreadCount)
	assert.Equal(t, presence.UnreadCountPayload{Count: prior + 1}, msg.Data)

	assert.Empty(t, env.publisher.Events())
}

func TestCreateNotification_AllPushesFailFallsBack(t *testing.T) {
	env := newTestEnv(t, nil)
	em := env.connect(t, "a1", "alice")
	em.Err = presence.ErrSendBufferFull

	env.create(t, notification.TypeReshare, "bob", "alice")

	events := env.publisher.Events()
	require.Len(t, events, 1)
	d := events[0].Payload.(notification.DeferredDelivery)
	assert.Equal(t, notification.ReasonPushFailed, d.Reason)
	assert.True(t, d.Attempted)
}

func TestCreateNotification_PublishFailureDoesNotPropagate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.publisher.Err = eventbus.ErrQueueFull

	id, err := env.service.CreateNotification(context.Background(), notification.CreateNotificationRequest{
		RecipientID: "bob",
		ActorID:     "alice",
		Type:        notification.TypeFollow,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestCreateNotification_PersistenceFailurePropagates(t *testing.T) {
	env := newTestEnv(t, failingRepo{memory.NewNotificationRepository()})
	em := env.connect(t, "b1", "bob")

	_, err := env.service.CreateNotification(context.Background(), notification.CreateNotificationRequest{
		RecipientID: "bob",
		ActorID:     "alice",
		Type:        notification.TypeFollow,
	})

	assert.ErrorContains(t, err, "insert failed")
	assert.Empty(t, em.Messages())
	assert.Empty(t, env.publisher.Events())
}

func TestCreateNotification_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.service.CreateNotification(ctx, notification.CreateNotificationRequest{
		RecipientID: "alice", ActorID: "alice", Type: notification.TypeFollow,
	})
	assert.ErrorIs(t, err, notification.ErrInvalidSelfNotification)

	_, err = env.service.CreateNotification(ctx, notification.CreateNotificationRequest{
		RecipientID: "alice", ActorID: "bob", Type: "POKE",
	})
	assert.ErrorIs(t, err, notification.ErrInvalidNotificationType)

	_, err = env.service.CreateNotification(ctx, notification.CreateNotificationRequest{
		ActorID: "bob", Type: notification.TypeLike,
	})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.ToMap(), "recipient_id")

	count, err := env.service.GetUnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkAsRead_IdempotentAndBroadcastsToAllConnections(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	id := env.create(t, notification.TypeReply, "bob", "alice")
	env.create(t, notification.TypeLike, "bob", "alice")

	phone := env.connect(t, "a1", "alice")
	laptop := env.connect(t, "a2", "alice")

	first, err := env.service.MarkAsRead(ctx, "alice", id)
	require.NoError(t, err)
	assert.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)

	second, err := env.service.MarkAsRead(ctx, "alice", id)
	require.NoError(t, err)
	assert.True(t, second.IsRead)
	assert.True(t, first.ReadAt.Equal(*second.ReadAt))

	for _, em := range []*fakes.Emitter{phone, laptop} {
		assert.Equal(t, 2, em.Count(presence.EventUnreadCount))
		msg, _ := em.Last(presence.EventUnreadCount)
		assert.Equal(t, presence.UnreadCountPayload{Count: 1}, msg.Data)
	}
}

// uuidColumnRepo fails like a store with a UUID id column when handed anything else
type uuidColumnRepo struct {
	notification.Repository
	calls int
}

func (r *uuidColumnRepo) MarkAsRead(ctx context.Context, id, userID string) (*notification.Notification, error) {
	r.calls++
	if _, err := uuid.Parse(id); err != nil || id != strings.ToLower(id) {
		return nil, errors.New("cannot encode id as uuid")
	}
	return r.Repository.MarkAsRead(ctx, id, userID)
}

func (r *uuidColumnRepo) Delete(ctx context.Context, id, userID string) error {
	r.calls++
	if _, err := uuid.Parse(id); err != nil || id != strings.ToLower(id) {
		return errors.New("cannot encode id as uuid")
	}
	return r.Repository.Delete(ctx, id, userID)
}

func TestMarkAsReadAndDelete_NonUUIDIsNotFound(t *testing.T) {
	repo := &uuidColumnRepo{Repository: memory.NewNotificationRepository()}
	env := newTestEnv(t, repo)
	ctx := context.Background()

	for _, id := range []string{"abc", "1", "not-a-uuid-at-all", "00000000-0000-0000-0000-00000000000g"} {
		_, err := env.service.MarkAsRead(ctx, "alice", id)
		assert.ErrorIs(t, err, notification.ErrNotificationNotFound, id)
		assert.ErrorIs(t, env.service.Delete(ctx, "alice", id), notification.ErrNotificationNotFound, id)
	}
	assert.Zero(t, repo.calls)

	// upper case ids resolve to the stored notification
	id := env.create(t, notification.TypeLike, "bob", "alice")
	n, err := env.service.MarkAsRead(ctx, "alice", strings.ToUpper(id))
	require.NoError(t, err)
	assert.Equal(t, id, n.ID)
	assert.NoError(t, env.service.Delete(ctx, "alice", strings.ToUpper(id)))
}

func TestMarkAsRead_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	id := env.create(t, notification.TypeReply, "bob", "alice")

	_, err := env.service.MarkAsRead(ctx, "mallory", id)
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)

	_, err = env.service.MarkAsRead(ctx, "alice", "missing")
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)

	_, err = env.service.MarkAsRead(ctx, "alice", "  ")
	assert.ErrorIs(t, err, notification.ErrNotificationNotFound)
}

func TestMarkAllAsRead_BroadcastsZero(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		env.create(t, notification.TypeLike, "bob", "alice")
	}
	em := env.connect(t, "a1", "alice")

	updated, err := env.service.MarkAllAsRead(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	count, err := env.service.GetUnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Equal(t, []string{presence.EventUnreadCount}, em.Events())
	msg, _ := em.Last(presence.EventUnreadCount)
	assert.Equal(t, presence.UnreadCountPayload{Count: 0}, msg.Data)
}

func TestMarkAllAsRead_WaitsForInFlightCreation(t *testing.T) {
	repo := &blockingRepo{
		Repository: memory.NewNotificationRepository(),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	env := newTestEnv(t, repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := env.service.CreateNotification(ctx, notification.CreateNotificationRequest{
			RecipientID: "alice", ActorID: "bob", Type: notification.TypeLike,
		})
		assert.NoError(t, err)
	}()
	<-repo.entered

	bulkDone := make(chan int64, 1)
	go func() {
		updated, err := env.service.MarkAllAsRead(ctx, "alice")
		assert.NoError(t, err)
		bulkDone <- updated
	}()

	select {
	case <-bulkDone:
		t.Fatal("MarkAllAsRead returned while a creation was still persisting")
	case <-time.After(50 * time.Millisecond):
	}

	close(repo.release)
	wg.Wait()

	select {
	case updated := <-bulkDone:
		assert.Equal(t, int64(1), updated)
	case <-time.After(time.Second):
		t.Fatal("MarkAllAsRead did not return")
	}

	count, err := env.service.GetUnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDelete_RebroadcastsCount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	id := env.create(t, notification.TypeLike, "bob", "alice")
	em := env.connect(t, "a1", "alice")

	require.NoError(t, env.service.Delete(ctx, "alice", id))
	msg, ok := em.Last(presence.EventUnreadCount)
	require.True(t, ok)
	assert.Equal(t, presence.UnreadCountPayload{Count: 0}, msg.Data)

	assert.ErrorIs(t, env.service.Delete(ctx, "alice", id), notification.ErrNotificationNotFound)
}

func TestGetNotifications_Defaults(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 3; i++ {
		env.create(t, notification.TypeLike, "bob", "alice")
	}

	list, err := env.service.GetNotifications(context.Background(), "alice", 0, 500, false)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 20, list.PageSize)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 3, list.UnreadCount)
	assert.Len(t, list.Notifications, 3)
}

func TestGetNotifications_HugePageIsEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, notification.TypeLike, "bob", "alice")

	for _, page := range []int{461168601842738792, math.MaxInt} {
		list, err := env.service.GetNotifications(context.Background(), "alice", page, 20, false)
		require.NoError(t, err)
		assert.Empty(t, list.Notifications)
		assert.Equal(t, 1, list.Total)
		assert.Equal(t, math.MaxInt/20, list.Page)
	}
}
