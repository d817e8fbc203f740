package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the lifecycle stage of a connection.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// SessionPolicy decides what happens when a user connects while already online.
type SessionPolicy string

const (
	// SessionReplace closes the older connection and keeps the new one.
	SessionReplace SessionPolicy = "replace"
	// SessionReject closes the new connection.
	SessionReject SessionPolicy = "reject"
)

// ParseSessionPolicy maps a config value to a policy, defaulting to SessionReplace.
func ParseSessionPolicy(v string) SessionPolicy {
	if SessionPolicy(v) == SessionReject {
		return SessionReject
	}
	return SessionReplace
}

var (
	ErrUnauthenticated  = errors.New("connection is not authenticated")
	ErrDuplicateSession = errors.New("user already has an active session")
	ErrInvalidState     = errors.New("invalid session state")
)

// Session is the per-connection state machine: Connecting -> Authenticated -> Disconnected.
type Session struct {
	conn  Conn
	state State
}

// Conn returns the transport behind the session.
func (s *Session) Conn() Conn { return s.conn }

// State returns the current lifecycle stage.
func (s *Session) State() State { return s.state }

// Controller drives sessions through connect and disconnect and performs the presence
// and pending-delivery side effects of each transition. It expects its methods to be
// called from a single event loop.
type Controller struct {
	store    Store
	presence *Registry
	pending  *PendingStore
	router   *Router
	policy   SessionPolicy
	observer Observer
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSessionPolicy sets how duplicate logins are resolved.
func WithSessionPolicy(p SessionPolicy) ControllerOption {
	return func(c *Controller) { c.policy = p }
}

// WithPresenceObserver reports presence changes to obs.
func WithPresenceObserver(obs Observer) ControllerOption {
	return func(c *Controller) { c.observer = obs }
}

// NewController creates a lifecycle controller sharing the router's registry and pending store.
func NewController(store Store, presence *Registry, pending *PendingStore, router *Router, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		store:    store,
		presence: presence,
		pending:  pending,
		router:   router,
		policy:   SessionReplace,
		observer: NopObserver{},
		logger:   logger,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts tracking conn in the Connecting state.
func (c *Controller) Begin(conn Conn) *Session {
	s := &Session{conn: conn, state: StateConnecting}
	c.mu.Lock()
	c.sessions[conn.ID()] = s
	c.mu.Unlock()
	return s
}

// Authenticate completes the handshake. On authErr, an empty identity or a rejected
// duplicate login the connection is closed without any presence side effect. Otherwise
// the session registers, the presence snapshot is broadcast, and the pending queue is
// flushed as a single batch followed by one notification per flushed message.
func (c *Controller) Authenticate(ctx context.Context, s *Session, authErr error) error {
	if s.state != StateConnecting {
		return fmt.Errorf("%w: authenticate from %s", ErrInvalidState, s.state)
	}

	identity := s.conn.Identity()
	if authErr != nil || !identity.Valid() {
		c.teardown(s)
		if authErr == nil {
			return ErrUnauthenticated
		}
		return fmt.Errorf("%w: %w", ErrUnauthenticated, authErr)
	}

	if c.presence.IsOnline(identity.Username) {
		if c.policy == SessionReject {
			c.teardown(s)
			return ErrDuplicateSession
		}
		c.evict(identity.Username)
	}

	c.presence.Register(s.conn)
	s.state = StateAuthenticated
	c.logger.Info("User connected", "username", identity.Username, "clientID", s.conn.ID())
	c.observer.PresenceChanged(ctx, identity.Username, true)

	c.BroadcastPresence(ctx)

	pending, err := c.pending.Drain(ctx, identity.Username)
	if err != nil {
		c.logger.Error("Failed to flush pending messages", "username", identity.Username, "error", err)
		return nil
	}
	c.router.send(s.conn, PendingBatchEvent{Messages: pending})
	for _, msg := range pending {
		c.router.send(s.conn, NotificationEvent{Notification: Notification{From: msg.From, Text: msg.Text}})
	}
	return nil
}

// End finishes a session. Only an authenticated session changes presence; ending a
// session twice is a no-op.
func (c *Controller) End(ctx context.Context, s *Session) {
	c.mu.Lock()
	delete(c.sessions, s.conn.ID())
	c.mu.Unlock()

	prev := s.state
	s.state = StateDisconnected
	if prev != StateAuthenticated {
		return
	}

	username, stillOnline, ok := c.presence.Deregister(s.conn.ID())
	if !ok {
		return
	}
	c.logger.Info("User disconnected", "username", username, "clientID", s.conn.ID())
	if !stillOnline {
		c.observer.PresenceChanged(ctx, username, false)
	}
	c.BroadcastPresence(ctx)
}

// Snapshot computes presence for every known user.
func (c *Controller) Snapshot(ctx context.Context) []PresenceEntry {
	known, err := c.store.ListKnownUsers(ctx)
	if err != nil {
		c.logger.Warn("Failed to list known users", "error", err)
	}
	return c.presence.Snapshot(known)
}

// BroadcastPresence sends the current snapshot to every live connection.
func (c *Controller) BroadcastPresence(ctx context.Context) {
	c.router.Broadcast(PresenceEvent{Users: c.Snapshot(ctx)})
}

// evict silently retires every live connection of username so a new one can take over.
func (c *Controller) evict(username string) {
	for _, old := range c.presence.ConnectionsOf(username) {
		c.presence.Deregister(old.ID())

		c.mu.Lock()
		if s, ok := c.sessions[old.ID()]; ok {
			s.state = StateDisconnected
			delete(c.sessions, old.ID())
		}
		c.mu.Unlock()

		c.logger.Info("Replacing existing session", "username", username, "clientID", old.ID())
		old.Close()
	}
}

func (c *Controller) teardown(s *Session) {
	s.state = StateDisconnected
	c.mu.Lock()
	delete(c.sessions, s.conn.ID())
	c.mu.Unlock()
	s.conn.Close()
}
