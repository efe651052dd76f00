package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/linkpulse/notifyhub/internal/domain/presence"
)

// Emitter writes one server event to a live connection
type Emitter interface {
	Emit(event string, data interface{}) error
	Close() error
}

// Connection is one admitted socket session
type Connection struct {
	ID          string
	UserID      string
	ConnectedAt time.Time
	Emitter     Emitter

	lastSeen atomic.Int64
}

// NewConnection creates a connection with lastSeen set to connectedAt
func NewConnection(id, userID string, emitter Emitter, connectedAt time.Time) *Connection {
	c := &Connection{
		ID:          id,
		UserID:      userID,
		ConnectedAt: connectedAt,
		Emitter:     emitter,
	}
	c.lastSeen.Store(connectedAt.UnixNano())
	return c
}

// LastSeen returns the last time traffic was observed on the connection
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

type entry struct {
	conn  *Connection
	rooms map[string]struct{}
}

// Stats is a point-in-time view of registry sizes
type Stats struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
}

// Registry indexes live connections by id, by user and by room.
// All three indexes change together under one lock, so readers never observe
// a connection present in one index and missing from another.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*entry
	byUser map[string]map[string]struct{}
	rooms  map[string]map[string]struct{}
}

// New creates an empty Registry
func New() *Registry {
	return &Registry{
		byConn: make(map[string]*entry),
		byUser: make(map[string]map[string]struct{}),
		rooms:  make(map[string]map[string]struct{}),
	}
}

// Register adds conn to the registry. An existing id is never overwritten.
func (r *Registry) Register(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[conn.ID]; exists {
		return presence.ErrDuplicateConnection
	}

	r.byConn[conn.ID] = &entry{conn: conn, rooms: make(map[string]struct{})}
	if r.byUser[conn.UserID] == nil {
		r.byUser[conn.UserID] = make(map[string]struct{})
	}
	r.byUser[conn.UserID][conn.ID] = struct{}{}
	return nil
}

// Remove drops a connection and its room memberships. Removing an unknown id is a no-op.
func (r *Registry) Remove(connID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(r.byConn, connID)

	if conns, ok := r.byUser[e.conn.UserID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, e.conn.UserID)
		}
	}

	for room := range e.rooms {
		r.leaveLocked(connID, room)
	}

	return e.conn, true
}

// Get returns the connection registered under connID
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// ConnectionsFor returns the ids of every live connection owned by userID
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// Connections returns a snapshot of every live connection owned by userID
func (r *Registry) Connections(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]*Connection, 0, len(conns))
	for id := range conns {
		out = append(out, r.byConn[id].conn)
	}
	return out
}

// IsOnline reports whether userID has at least one live connection
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser[userID]) > 0
}

// Join adds connID to room. Returns false if the connection is not registered.
func (r *Registry) Join(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byConn[connID]
	if !ok {
		return false
	}
	e.rooms[room] = struct{}{}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][connID] = struct{}{}
	return true
}

// Leave removes connID from room
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byConn[connID]; ok {
		delete(e.rooms, room)
	}
	r.leaveLocked(connID, room)
}

func (r *Registry) leaveLocked(connID, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// RoomMembers returns a snapshot of the connections joined to room
func (r *Registry) RoomMembers(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]*Connection, 0, len(members))
	for id := range members {
		out = append(out, r.byConn[id].conn)
	}
	return out
}

// Touch records traffic on connID at t
func (r *Registry) Touch(connID string, t time.Time) bool {
	conn, ok := r.Get(connID)
	if !ok {
		return false
	}
	conn.lastSeen.Store(t.UnixNano())
	return true
}

// Stale returns connections whose last traffic is older than cutoff
func (r *Registry) Stale(cutoff time.Time) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	threshold := cutoff.UnixNano()
	var out []*Connection
	for _, e := range r.byConn {
		if e.conn.lastSeen.Load() < threshold {
			out = append(out, e.conn)
		}
	}
	return out
}

// Stats returns the current index sizes
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		Connections: len(r.byConn),
		Users:       len(r.byUser),
		Rooms:       len(r.rooms),
	}
}
