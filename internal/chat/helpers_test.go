package chat

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	id       string
	identity Identity

	mu     sync.Mutex
	events []Outbound
	closed bool
}

func newFakeConn(id, username string) *fakeConn {
	return &fakeConn{id: id, identity: Identity{Username: username}}
}

func (c *fakeConn) ID() string         { return c.id }
func (c *fakeConn) Identity() Identity { return c.identity }

func (c *fakeConn) Send(evt Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	c.events = append(c.events, evt)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Events() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outbound(nil), c.events...)
}

func (c *fakeConn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

func eventsOf[T Outbound](c *fakeConn) []T {
	var out []T
	for _, evt := range c.Events() {
		if e, ok := evt.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	logCap   int
	messages []BroadcastMessage
	users    []string
	pending  map[string][]PendingMessage
}

func newMemStore(users ...string) *memStore {
	return &memStore{logCap: DefaultLogCap, users: users, pending: make(map[string][]PendingMessage)}
}

func (s *memStore) AppendBroadcastMessage(_ context.Context, username, text string) (BroadcastMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := BroadcastMessage{ID: NewMessageID(), Username: username, Text: text, Time: Timestamp()}
	s.messages = append(s.messages, msg)
	if len(s.messages) > s.logCap {
		s.messages = s.messages[len(s.messages)-s.logCap:]
	}
	return msg, nil
}

func (s *memStore) ListBroadcastMessages(context.Context) ([]BroadcastMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BroadcastMessage(nil), s.messages...), nil
}

func (s *memStore) ListKnownUsers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.users...), nil
}

func (s *memStore) UserExists(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) EnqueuePending(_ context.Context, msg PrivateMessage) (PendingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := PendingMessage{PrivateMessage: msg}
	s.pending[msg.To] = append(s.pending[msg.To], p)
	return p, nil
}

func (s *memStore) DrainPending(_ context.Context, username string) ([]PendingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.pending[username]
	delete(s.pending, username)
	return msgs, nil
}

func (s *memStore) TrimPending(_ context.Context, username string, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.pending[username]
	if len(msgs) <= keep {
		return 0, nil
	}
	evicted := len(msgs) - keep
	s.pending[username] = msgs[evicted:]
	return evicted, nil
}

func (s *memStore) PendingCount(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[username])
}

// mockStore is a Store whose every call is scripted.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) AppendBroadcastMessage(ctx context.Context, username, text string) (BroadcastMessage, error) {
	args := m.Called(ctx, username, text)
	return args.Get(0).(BroadcastMessage), args.Error(1)
}

func (m *mockStore) ListBroadcastMessages(ctx context.Context) ([]BroadcastMessage, error) {
	args := m.Called(ctx)
	return args.Get(0).([]BroadcastMessage), args.Error(1)
}

func (m *mockStore) ListKnownUsers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) UserExists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) EnqueuePending(ctx context.Context, msg PrivateMessage) (PendingMessage, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(PendingMessage), args.Error(1)
}

func (m *mockStore) DrainPending(ctx context.Context, username string) ([]PendingMessage, error) {
	args := m.Called(ctx, username)
	return args.Get(0).([]PendingMessage), args.Error(1)
}

func (m *mockStore) TrimPending(ctx context.Context, username string, keep int) (int, error) {
	args := m.Called(ctx, username, keep)
	return args.Int(0), args.Error(1)
}

type recordingObserver struct {
	NopObserver
	mu       sync.Mutex
	presence []PresenceEntry
}

func (o *recordingObserver) PresenceChanged(_ context.Context, username string, online bool) {
	o.mu.Lock()
	o.presence = append(o.presence, PresenceEntry{Username: username, Online: online})
	o.mu.Unlock()
}

// fixture wires a registry, pending store, router and controller around a memStore.
type fixture struct {
	store      *memStore
	registry   *Registry
	pending    *PendingStore
	router     *Router
	controller *Controller
}

func newFixture(users ...string) *fixture {
	store := newMemStore(users...)
	return newFixtureWith(store, store)
}

func newFixtureWith(mem *memStore, store Store, opts ...ControllerOption) *fixture {
	logger := discardLogger()
	registry := NewRegistry()
	pending := NewPendingStore(store, 0, logger)
	router := NewRouter(store, registry, pending, logger)
	return &fixture{
		store:      mem,
		registry:   registry,
		pending:    pending,
		router:     router,
		controller: NewController(store, registry, pending, router, logger, opts...),
	}
}

func (f *fixture) connect(id, username string) (*fakeConn, *Session) {
	conn := newFakeConn(id, username)
	s := f.controller.Begin(conn)
	if err := f.controller.Authenticate(context.Background(), s, nil); err != nil {
		panic(err)
	}
	return conn, s
}
