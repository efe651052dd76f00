package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
	presencesvc "github.com/linkpulse/notifyhub/internal/service/presence"
)

// bearerProtocol lets browsers pass a token as the second Sec-WebSocket-Protocol entry
const bearerProtocol = "bearer"

// Config holds socket transport configuration
type Config struct {
	AllowedOrigins []string
	SendBuffer     int           // default: 64
	WriteWait      time.Duration // default: 10s
	PongWait       time.Duration // default: 60s
	PingPeriod     time.Duration // default: 9/10 of PongWait
	MaxMessageSize int64         // default: 4096
}

func (c *Config) setDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
}

// Handler upgrades requests to websockets and binds them to gateway sessions
type Handler struct {
	gateway  *presencesvc.Gateway
	upgrader websocket.Upgrader
	cfg      Config
	logger   *slog.Logger
}

// NewHandler creates a new websocket handler
func NewHandler(gateway *presencesvc.Gateway, cfg Config, logger *slog.Logger) *Handler {
	cfg.setDefaults()
	return &Handler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{bearerProtocol},
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		cfg:    cfg,
		logger: logger.With("component", "ws_handler"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := credential(r)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.logger.Warn("Failed to upgrade connection", "error", err)
		return
	}
	ws.SetReadLimit(h.cfg.MaxMessageSize)

	c := newConn(ws, h.cfg)
	session, err := h.gateway.Admit(r.Context(), token, c)
	if err != nil {
		h.reject(ws, err)
		return
	}

	go c.writePump()
	defer session.Close()

	h.readPump(r.Context(), ws, session)
}

// readPump processes frames in arrival order until the socket fails or closes
func (h *Handler) readPump(ctx context.Context, ws *websocket.Conn, session *presencesvc.Session) {
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		session.Touch()
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Debug("Connection read failed", "conn_id", session.ID(), "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		if err := session.Handle(ctx, data); err != nil {
			if errors.Is(err, presence.ErrNotAdmitted) {
				return
			}
			h.logger.Debug("Inbound event rejected", "conn_id", session.ID(), "error", err)
		}
	}
}

// reject tells the client why admission failed and closes the socket
func (h *Handler) reject(ws *websocket.Conn, err error) {
	message, code := rejection(err)
	if code == websocket.ClosePolicyViolation {
		h.logger.Info("Connection rejected", "reason", err)
	} else {
		h.logger.Error("Connection admission failed", "error", err)
	}

	deadline := time.Now().Add(h.cfg.WriteWait)
	_ = ws.SetWriteDeadline(deadline)
	_ = ws.WriteJSON(presence.Message{
		Event: presence.EventError,
		Data:  presence.ErrorPayload{Message: message},
	})
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, message), deadline)
	_ = ws.Close()
}

// rejection maps an admission error to the error message and close code sent to the client.
// Credential problems are a policy violation; anything else is a server fault.
func rejection(err error) (string, int) {
	switch {
	case errors.Is(err, presence.ErrMissingCredential):
		return presence.ErrMissingCredential.Error(), websocket.ClosePolicyViolation
	case errors.Is(err, presence.ErrInvalidCredential):
		return presence.ErrInvalidCredential.Error(), websocket.ClosePolicyViolation
	default:
		return "internal server error", websocket.CloseInternalServerErr
	}
}

// credential reads the handshake token from the query string, the Authorization
// header or the bearer subprotocol, in that order
func credential(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	protocols := websocket.Subprotocols(r)
	if len(protocols) >= 2 && protocols[0] == bearerProtocol {
		return protocols[1]
	}
	return ""
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
