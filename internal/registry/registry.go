package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is the live connection handle the registry tracks. The websocket
// client implements it; tests substitute fakes.
type Conn interface {
	Send(payload []byte) bool
}

// Registry maps an authenticated user to its single live connection. One
// handle per user, last-registered wins. State is ephemeral and rebuilt
// entirely from live connections; the registry is constructor-injected so a
// distributed implementation can replace it later.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[uuid.UUID]Conn)}
}

// Register replaces any prior handle for the user.
func (r *Registry) Register(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	r.conns[userID] = conn
	r.mu.Unlock()
}

func (r *Registry) Resolve(userID uuid.UUID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// UnregisterIfCurrent removes the mapping only if it still points at conn.
// A disconnect racing a reconnect must not evict the newer handle.
func (r *Registry) UnregisterIfCurrent(userID uuid.UUID, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[userID]; ok && current == conn {
		delete(r.conns, userID)
		return true
	}
	return false
}

// ConnectedAmong filters ids down to users with a live handle.
func (r *Registry) ConnectedAmong(ids []uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var connected []uuid.UUID
	for _, id := range ids {
		if _, ok := r.conns[id]; ok {
			connected = append(connected, id)
		}
	}
	return connected
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
