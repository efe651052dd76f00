package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linkpulse/notifyhub/internal/domain/presence"
)

// conn adapts a websocket to registry.Emitter. Emit never blocks: frames are queued
// on a bounded buffer and written by a single writer goroutine.
type conn struct {
	ws   *websocket.Conn
	cfg  Config
	send chan presence.Message

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, cfg Config) *conn {
	return &conn{
		ws:   ws,
		cfg:  cfg,
		send: make(chan presence.Message, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *conn) Emit(event string, data interface{}) error {
	select {
	case <-c.done:
		return presence.ErrConnectionClosed
	default:
	}

	select {
	case c.send <- presence.Message{Event: event, Data: data}:
		return nil
	case <-c.done:
		return presence.ErrConnectionClosed
	default:
		return presence.ErrSendBufferFull
	}
}

// Close stops the writer, which sends a close frame and releases the socket
func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}

		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait),
			)
			return
		}
	}
}

// flush writes whatever was queued before Close
func (c *conn) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(msg presence.Message) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.ws.WriteJSON(msg)
}
