package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linkpulse/notifyhub/internal/domain/presence"
	"github.com/linkpulse/notifyhub/internal/pkg/registry"
)

type router struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewRouter creates a router that pushes events to connections held in reg
func NewRouter(reg *registry.Registry, logger *slog.Logger) presence.Router {
	return &router{
		registry: reg,
		logger:   logger.With("component", "delivery_router"),
	}
}

// PushToUser emits to every live connection of userID. A failing connection
// never prevents delivery to the others.
func (r *router) PushToUser(ctx context.Context, userID string, event string, data interface{}) presence.DeliveryOutcome {
	conns := r.registry.Connections(userID)
	if len(conns) == 0 {
		return presence.DeliveryOutcome{}
	}

	outcome := presence.DeliveryOutcome{Attempted: true, Connections: len(conns)}
	for _, conn := range conns {
		if err := emit(conn, event, data); err != nil {
			outcome.Failures++
			r.logger.Warn("Push to connection failed",
				"user_id", userID,
				"conn_id", conn.ID,
				"event", event,
				"error", err,
			)
			continue
		}
		outcome.Delivered = true
	}

	return outcome
}

// PushToUsers pushes the same event to several users independently
func (r *router) PushToUsers(ctx context.Context, userIDs []string, event string, data interface{}) map[string]presence.DeliveryOutcome {
	outcomes := make(map[string]presence.DeliveryOutcome, len(userIDs))
	for _, userID := range userIDs {
		if _, seen := outcomes[userID]; seen {
			continue
		}
		outcomes[userID] = r.PushToUser(ctx, userID, event, data)
	}
	return outcomes
}

// PushToRoom emits to every connection in room except exceptConnID and returns
// how many emissions succeeded
func (r *router) PushToRoom(ctx context.Context, room string, exceptConnID string, event string, data interface{}) int {
	delivered := 0
	for _, conn := range r.registry.RoomMembers(room) {
		if conn.ID == exceptConnID {
			continue
		}
		if err := emit(conn, event, data); err != nil {
			r.logger.Warn("Push to room member failed",
				"room", room,
				"conn_id", conn.ID,
				"event", event,
				"error", err,
			)
			continue
		}
		delivered++
	}
	return delivered
}

// PushToConnection emits to a single connection
func (r *router) PushToConnection(ctx context.Context, connID string, event string, data interface{}) error {
	conn, ok := r.registry.Get(connID)
	if !ok {
		return presence.ErrConnectionClosed
	}
	return emit(conn, event, data)
}

func emit(conn *registry.Connection, event string, data interface{}) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("emit panicked: %v", p)
		}
	}()
	return conn.Emitter.Emit(event, data)
}
