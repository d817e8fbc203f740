package chat

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Registry tracks which connections are live and which user each one belongs to.
// It is in-memory only and starts empty.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	byUser map[string][]string // username -> connection IDs in registration order
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		byUser: make(map[string][]string),
	}
}

// Register records conn under its identity. Registering the same connection twice is a no-op.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if _, exists := r.conns[id]; exists {
		return
	}
	username := conn.Identity().Username
	r.conns[id] = conn
	r.byUser[username] = append(r.byUser[username], id)
}

// Deregister removes a connection. It reports the owning username, whether that user
// still has another live connection, and whether the connection was registered at all.
func (r *Registry) Deregister(connID string) (username string, stillOnline bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.conns[connID]
	if !exists {
		return "", false, false
	}
	delete(r.conns, connID)

	username = conn.Identity().Username
	remaining := lo.Without(r.byUser[username], connID)
	if len(remaining) == 0 {
		delete(r.byUser, username)
		return username, false, true
	}
	r.byUser[username] = remaining
	return username, true, true
}

// IsOnline reports whether username has at least one live connection.
func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[username]) > 0
}

// Lookup returns the connection private messages for username are delivered to:
// the most recently registered one.
func (r *Registry) Lookup(username string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[username]
	if len(ids) == 0 {
		return nil, false
	}
	return r.conns[ids[len(ids)-1]], true
}

// ConnectionsOf returns every live connection of username.
func (r *Registry) ConnectionsOf(username string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.byUser[username], func(id string, _ int) Conn {
		return r.conns[id]
	})
}

// Connections returns every live connection.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.conns)
}

// Online returns the usernames with a live connection, sorted.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.byUser)
	slices.Sort(names)
	return names
}

// Snapshot builds a presence entry for every known user, in the given order, followed by
// any connected user missing from known. Users that never connected are offline.
func (r *Registry) Snapshot(known []string) []PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(known))
	entries := make([]PresenceEntry, 0, len(known))
	for _, username := range lo.Uniq(known) {
		seen[username] = struct{}{}
		entries = append(entries, PresenceEntry{
			Username: username,
			Online:   len(r.byUser[username]) > 0,
		})
	}
	extra := lo.Filter(lo.Keys(r.byUser), func(username string, _ int) bool {
		_, ok := seen[username]
		return !ok
	})
	slices.Sort(extra)
	for _, username := range extra {
		entries = append(entries, PresenceEntry{Username: username, Online: true})
	}
	return entries
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
