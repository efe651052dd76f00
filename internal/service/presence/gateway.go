package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linkpulse/notifyhub/internal/domain/notification"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
	"github.com/linkpulse/notifyhub/internal/pkg/registry"
	"github.com/linkpulse/notifyhub/internal/pkg/validator"
)

// AdmissionHook runs asynchronously after a connection is admitted
type AdmissionHook func(ctx context.Context, userID string)

// Config holds gateway configuration
type Config struct {
	StaleAfter     time.Duration // default: 90s
	AdmissionHooks []AdmissionHook
}

// Gateway admits socket sessions and routes their inbound events
type Gateway struct {
	registry      *registry.Registry
	router        presence.Router
	credentials   presence.CredentialValidator
	notifications notification.Service
	logger        *slog.Logger
	config        Config
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewGateway creates a new presence gateway
func NewGateway(
	reg *registry.Registry,
	router presence.Router,
	credentials presence.CredentialValidator,
	notifications notification.Service,
	logger *slog.Logger,
	cfg Config,
) *Gateway {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 90 * time.Second
	}
	return &Gateway{
		registry:      reg,
		router:        router,
		credentials:   credentials,
		notifications: notifications,
		logger:        logger.With("component", "presence_gateway"),
		config:        cfg,
		now:           time.Now,
		sessions:      make(map[string]*Session),
	}
}

// Admit verifies token and registers a new session writing through emitter.
// On failure nothing is registered and the caller is expected to close the socket.
func (g *Gateway) Admit(ctx context.Context, token string, emitter registry.Emitter) (*Session, error) {
	if validator.IsEmpty(token) {
		return nil, presence.ErrMissingCredential
	}

	identity, err := g.credentials.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, presence.ErrInvalidCredential) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", presence.ErrInvalidCredential, err)
	}
	if validator.IsEmpty(identity.UserID) {
		return nil, presence.ErrInvalidCredential
	}

	conn := registry.NewConnection(uuid.New().String(), identity.UserID, emitter, g.now())
	if err := g.registry.Register(conn); err != nil {
		return nil, err
	}

	s := &Session{gateway: g, conn: conn, state: presence.StateAdmitted}
	g.mu.Lock()
	g.sessions[conn.ID] = s
	g.mu.Unlock()

	g.logger.Info("Connection admitted", "conn_id", conn.ID, "user_id", conn.UserID)

	s.reply(ctx, presence.EventConnected, presence.ConnectedPayload{UserID: conn.UserID})

	count, err := g.notifications.GetUnreadCount(ctx, conn.UserID)
	if err != nil {
		g.logger.Error("Failed to load unread count on admission", "user_id", conn.UserID, "error", err)
	} else {
		s.reply(ctx, presence.EventUnreadCount, presence.UnreadCountPayload{Count: count})
	}

	for _, hook := range g.config.AdmissionHooks {
		go hook(context.WithoutCancel(ctx), conn.UserID)
	}

	return s, nil
}

// Statuses reports presence for each distinct user id, in request order
func (g *Gateway) Statuses(userIDs []string) []presence.UserStatus {
	seen := make(map[string]struct{}, len(userIDs))
	statuses := make([]presence.UserStatus, 0, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		statuses = append(statuses, presence.UserStatus{UserID: id, IsOnline: g.registry.IsOnline(id)})
	}
	return statuses
}

// IsOnline reports whether userID has a live connection
func (g *Gateway) IsOnline(userID string) bool {
	return g.registry.IsOnline(userID)
}

// EvictStale closes every session silent for longer than StaleAfter
func (g *Gateway) EvictStale(ctx context.Context) error {
	cutoff := g.now().Add(-g.config.StaleAfter)
	stale := g.registry.Stale(cutoff)

	for _, conn := range stale {
		g.logger.Info("Evicting stale connection",
			"conn_id", conn.ID,
			"user_id", conn.UserID,
			"last_seen", conn.LastSeen(),
		)
		if s := g.session(conn.ID); s != nil {
			s.Close()
			continue
		}
		// Registered without a session; drop it directly.
		g.registry.Remove(conn.ID)
		_ = conn.Emitter.Close()
	}

	if len(stale) > 0 {
		g.logger.Info("Stale connections evicted", "count", len(stale))
	}
	return nil
}

// LogStats writes the current registry sizes to the log
func (g *Gateway) LogStats(ctx context.Context) error {
	stats := g.registry.Stats()
	g.logger.Info("Presence stats",
		"connections", stats.Connections,
		"users", stats.Users,
		"rooms", stats.Rooms,
	)
	return nil
}

// Stats returns the current registry sizes
func (g *Gateway) Stats() registry.Stats {
	return g.registry.Stats()
}

// Shutdown closes every live session
func (g *Gateway) Shutdown(ctx context.Context) {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	g.logger.Info("Presence gateway shut down", "closed", len(sessions))
}

func (g *Gateway) session(connID string) *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessions[connID]
}

func (g *Gateway) forget(connID string) {
	g.mu.Lock()
	delete(g.sessions, connID)
	g.mu.Unlock()
}

// Session is one admitted socket connection
type Session struct {
	gateway *Gateway
	conn    *registry.Connection

	mu    sync.Mutex
	state presence.State
}

func (s *Session) ID() string     { return s.conn.ID }
func (s *Session) UserID() string { return s.conn.UserID }

func (s *Session) State() presence.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch records inbound traffic for liveness tracking
func (s *Session) Touch() {
	s.gateway.registry.Touch(s.conn.ID, s.gateway.now())
}

// Close removes the session from the registry and closes its emitter. Safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == presence.StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = presence.StateDisconnected
	s.mu.Unlock()

	s.gateway.registry.Remove(s.conn.ID)
	s.gateway.forget(s.conn.ID)
	if err := s.conn.Emitter.Close(); err != nil {
		s.gateway.logger.Debug("Emitter close failed", "conn_id", s.conn.ID, "error", err)
	}

	s.gateway.logger.Info("Connection closed", "conn_id", s.conn.ID, "user_id", s.conn.UserID)
}

// Handle processes one inbound frame. Frames arriving outside the admitted state are
// dropped with ErrNotAdmitted. Any other failure is answered with an error event to
// this connection and returned.
func (s *Session) Handle(ctx context.Context, raw []byte) error {
	if s.State() != presence.StateAdmitted {
		return presence.ErrNotAdmitted
	}
	s.Touch()

	var msg presence.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
		s.replyError(ctx, "", presence.ErrMalformedPayload)
		return presence.ErrMalformedPayload
	}

	if err := s.dispatch(ctx, msg); err != nil {
		s.replyError(ctx, msg.Event, err)
		return err
	}
	return nil
}

func (s *Session) dispatch(ctx context.Context, msg presence.InboundMessage) error {
	switch msg.Event {
	case presence.EventMarkNotificationRead:
		var p presence.MarkNotificationReadPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		n, err := s.gateway.notifications.MarkAsRead(ctx, s.conn.UserID, p.NotificationID)
		if err != nil {
			return err
		}
		s.reply(ctx, presence.EventNotificationMarkedAsRead, presence.NotificationMarkedAsReadPayload{Notification: *n})

	case presence.EventMarkAllAsRead:
		updated, err := s.gateway.notifications.MarkAllAsRead(ctx, s.conn.UserID)
		if err != nil {
			return err
		}
		s.reply(ctx, presence.EventAllNotificationsMarkedAsRead, presence.AllNotificationsMarkedAsReadPayload{Updated: updated})

	case presence.EventTypingStart, presence.EventTypingStop:
		var p presence.ConversationPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		room := presence.ConversationRoom(p.ConversationID)
		event := presence.EventUserStoppedTyping
		if msg.Event == presence.EventTypingStart {
			s.gateway.registry.Join(s.conn.ID, room)
			event = presence.EventUserTyping
		}
		s.gateway.router.PushToRoom(ctx, room, s.conn.ID, event, presence.TypingPayload{
			UserID:         s.conn.UserID,
			ConversationID: p.ConversationID,
		})

	case presence.EventJoinConversation:
		var p presence.ConversationPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		s.gateway.registry.Join(s.conn.ID, presence.ConversationRoom(p.ConversationID))

	case presence.EventLeaveConversation:
		var p presence.ConversationPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		s.gateway.registry.Leave(s.conn.ID, presence.ConversationRoom(p.ConversationID))

	case presence.EventGetOnlineStatus:
		var p presence.OnlineStatusRequest
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		s.reply(ctx, presence.EventOnlineStatus, presence.OnlineStatusPayload{Statuses: s.gateway.Statuses(p.UserIDs)})

	case presence.EventPing:
		s.reply(ctx, presence.EventPong, presence.PongPayload{Timestamp: s.gateway.now().UnixMilli()})

	default:
		return presence.ErrUnknownEvent
	}
	return nil
}

// decode unmarshals and validates an inbound payload
func decode(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		return presence.ErrMalformedPayload
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return presence.ErrMalformedPayload
	}
	return validator.Struct(dst)
}

func (s *Session) reply(ctx context.Context, event string, data interface{}) {
	if err := s.gateway.router.PushToConnection(ctx, s.conn.ID, event, data); err != nil {
		s.gateway.logger.Debug("Reply not delivered", "conn_id", s.conn.ID, "event", event, "error", err)
	}
}

func (s *Session) replyError(ctx context.Context, event string, err error) {
	msg := errorMessage(err)
	if msg == internalErrorMessage {
		s.gateway.logger.Error("Inbound event failed", "conn_id", s.conn.ID, "event", event, "error", err)
	}
	s.reply(ctx, presence.EventError, presence.ErrorPayload{Message: msg, Event: event})
}

const internalErrorMessage = "internal server error"

// errorMessage hides internal failures from clients
func errorMessage(err error) string {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return verrs.Error()
	case errors.Is(err, presence.ErrMalformedPayload),
		errors.Is(err, presence.ErrUnknownEvent),
		errors.Is(err, notification.ErrNotificationNotFound):
		return err.Error()
	default:
		return internalErrorMessage
	}
}
