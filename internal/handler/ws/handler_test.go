package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linkpulse/notifyhub/internal/domain/notification"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
	"github.com/linkpulse/notifyhub/internal/pkg/registry"
	"github.com/linkpulse/notifyhub/internal/repository/memory"
	"github.com/linkpulse/notifyhub/internal/service/delivery"
	notificationsvc "github.com/linkpulse/notifyhub/internal/service/notification"
	presencesvc "github.com/linkpulse/notifyhub/internal/service/presence"
	"github.com/linkpulse/notifyhub/internal/test/fakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type server struct {
	*httptest.Server
	gateway       *presencesvc.Gateway
	notifications notification.Service
	registry      *registry.Registry
}

func newServer(t *testing.T, cfg Config) *server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New()
	router := delivery.NewRouter(reg, logger)
	svc := notificationsvc.NewNotificationService(memory.NewNotificationRepository(), router, fakes.NewPublisher(), logger, notificationsvc.Config{})
	creds := fakes.NewCredentialValidator(map[string]string{"alice-token": "alice"})
	gw := presencesvc.NewGateway(reg, router, creds, svc, logger, presencesvc.Config{})

	srv := httptest.NewServer(NewHandler(gw, cfg, logger))
	t.Cleanup(srv.Close)
	return &server{Server: srv, gateway: gw, notifications: svc, registry: reg}
}

func (s *server) url(query string) string {
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dial(t *testing.T, url string, header http.Header, subprotocols ...string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: subprotocols, HandshakeTimeout: time.Second}
	c, _, err := dialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func read(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func readGreeting(t *testing.T, c *websocket.Conn) {
	t.Helper()
	assert.Equal(t, presence.EventConnected, read(t, c).Event)
	assert.Equal(t, presence.EventUnreadCount, read(t, c).Event)
}

func TestHandler_AdmitsWithQueryToken(t *testing.T) {
	srv := newServer(t, Config{})
	c := dial(t, srv.url("token=alice-token"), nil)

	f := read(t, c)
	assert.Equal(t, presence.EventConnected, f.Event)
	assert.JSONEq(t, `{"userId":"alice"}`, string(f.Data))

	f = read(t, c)
	assert.Equal(t, presence.EventUnreadCount, f.Event)
	assert.JSONEq(t, `{"count":0}`, string(f.Data))

	assert.True(t, srv.gateway.IsOnline("alice"))
}

func TestHandler_CredentialSources(t *testing.T) {
	srv := newServer(t, Config{})

	header := http.Header{}
	header.Set("Authorization", "Bearer alice-token")
	readGreeting(t, dial(t, srv.url(""), header))

	dialer := websocket.Dialer{Subprotocols: []string{"bearer", "alice-token"}, HandshakeTimeout: time.Second}
	c, resp, err := dialer.Dial(srv.url(""), nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "bearer", resp.Header.Get("Sec-WebSocket-Protocol"))
	readGreeting(t, c)
}

func TestHandler_RejectsInvalidCredential(t *testing.T) {
	srv := newServer(t, Config{})
	c := dial(t, srv.url("token=forged"), nil)

	f := read(t, c)
	assert.Equal(t, presence.EventError, f.Event)
	assert.JSONEq(t, `{"message":"invalid credential"}`, string(f.Data))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Equal(t, registry.Stats{}, srv.registry.Stats())
}

func TestHandler_RejectsMissingCredential(t *testing.T) {
	srv := newServer(t, Config{})
	c := dial(t, srv.url(""), nil)

	f := read(t, c)
	assert.Equal(t, presence.EventError, f.Event)
	assert.JSONEq(t, `{"message":"missing credential"}`, string(f.Data))
}

func TestHandler_PingAndLiveDelivery(t *testing.T) {
	srv := newServer(t, Config{})
	c := dial(t, srv.url("token=alice-token"), nil)
	readGreeting(t, c)

	require.NoError(t, c.WriteJSON(map[string]interface{}{"event": "ping", "data": map[string]interface{}{}}))
	f := read(t, c)
	assert.Equal(t, presence.EventPong, f.Event)

	var pong presence.PongPayload
	require.NoError(t, json.Unmarshal(f.Data, &pong))
	assert.InDelta(t, time.Now().UnixMilli(), pong.Timestamp, 5000)

	id, err := srv.notifications.CreateNotification(context.Background(), notification.CreateNotificationRequest{
		RecipientID: "alice",
		ActorID:     "bob",
		Type:        notification.TypeMention,
	})
	require.NoError(t, err)

	f = read(t, c)
	assert.Equal(t, presence.EventNewNotification, f.Event)
	var payload presence.NewNotificationPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, id, payload.Payload.ID)

	f = read(t, c)
	assert.Equal(t, presence.EventUnreadCount, f.Event)
	assert.JSONEq(t, `{"count":1}`, string(f.Data))
}

func TestHandler_UnknownEventKeepsConnection(t *testing.T) {
	srv := newServer(t, Config{})
	c := dial(t, srv.url("token=alice-token"), nil)
	readGreeting(t, c)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"event":"dance"}`)))
	f := read(t, c)
	assert.Equal(t, presence.EventError, f.Event)
	assert.JSONEq(t, `{"message":"unknown event","event":"dance"}`, string(f.Data))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))
	assert.Equal(t, presence.EventPong, read(t, c).Event)
}

func TestHandler_DisconnectRemovesConnection(t *testing.T) {
	srv := newServer(t, Config{})
	c := dial(t, srv.url("token=alice-token"), nil)
	readGreeting(t, c)
	require.True(t, srv.gateway.IsOnline("alice"))

	require.NoError(t, c.Close())

	assert.Eventually(t, func() bool {
		return !srv.gateway.IsOnline("alice")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_ShutdownClosesSockets(t *testing.T) {
	srv := newServer(t, Config{})
	c := dial(t, srv.url("token=alice-token"), nil)
	readGreeting(t, c)

	srv.gateway.Shutdown(context.Background())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.False(t, srv.gateway.IsOnline("alice"))
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	srv := newServer(t, Config{AllowedOrigins: []string{"https://app.example.com"}})

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(srv.url("token=alice-token"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConn_EmitAfterClose(t *testing.T) {
	c := &conn{send: make(chan presence.Message, 1), done: make(chan struct{})}

	require.NoError(t, c.Emit("a", nil))
	assert.ErrorIs(t, c.Emit("b", nil), presence.ErrSendBufferFull)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Emit("c", nil), presence.ErrConnectionClosed)
}

func TestCredential(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "q", credential(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "bearer h")
	assert.Equal(t, "h", credential(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "bearer, p")
	assert.Equal(t, "p", credential(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Equal(t, "", credential(r))
}

func TestRejection(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
		wantCode    int
	}{
		{"missing credential", presence.ErrMissingCredential, "missing credential", websocket.ClosePolicyViolation},
		{"invalid credential", fmt.Errorf("%w: token expired", presence.ErrInvalidCredential), "invalid credential", websocket.ClosePolicyViolation},
		{"duplicate connection", fmt.Errorf("register: %w", presence.ErrDuplicateConnection), "internal server error", websocket.CloseInternalServerErr},
		{"unexpected", errors.New("boom"), "internal server error", websocket.CloseInternalServerErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message, code := rejection(tt.err)
			assert.Equal(t, tt.wantMessage, message)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
