package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func lastPresence(t *testing.T, conn *fakeConn) []PresenceEntry {
	t.Helper()
	got := eventsOf[PresenceEvent](conn)
	require.NotEmpty(t, got)
	return got[len(got)-1].Users
}

func TestController_ConnectAnnouncesPresence(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	alice, _ := f.connect("c1", "alice")

	assert.Equal(t, []PresenceEntry{
		{Username: "alice", Online: true},
		{Username: "bob", Online: false},
		{Username: "carol", Online: false},
	}, lastPresence(t, alice))

	bob, bobSession := f.connect("c2", "bob")
	assert.Equal(t, []PresenceEntry{
		{Username: "alice", Online: true},
		{Username: "bob", Online: true},
		{Username: "carol", Online: false},
	}, lastPresence(t, alice))
	assert.Equal(t, lastPresence(t, alice), lastPresence(t, bob))

	f.controller.End(context.Background(), bobSession)
	assert.Equal(t, StateDisconnected, bobSession.State())
	assert.Equal(t, []PresenceEntry{
		{Username: "alice", Online: true},
		{Username: "bob", Online: false},
		{Username: "carol", Online: false},
	}, lastPresence(t, alice))
}

func TestController_ConnectOrderAndEmptyBatch(t *testing.T) {
	f := newFixture("alice")
	alice, s := f.connect("c1", "alice")

	assert.Equal(t, StateAuthenticated, s.State())
	events := alice.Events()
	require.Len(t, events, 2)
	assert.IsType(t, PresenceEvent{}, events[0])
	assert.Equal(t, PendingBatchEvent{Messages: []PendingMessage{}}, events[1])
}

func TestController_ReconnectFlushesPendingOnce(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()
	alice, _ := f.connect("c1", "alice")

	var sent []PrivateMessage
	for _, text := range []string{"first", "second", "third"} {
		msg, delivery := f.router.SendPrivate(ctx, alice, "bob", text)
		require.Equal(t, DeliveryQueued, delivery)
		sent = append(sent, msg)
	}

	bob, bobSession := f.connect("c2", "bob")
	batches := eventsOf[PendingBatchEvent](bob)
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Messages, 3)
	for i, msg := range sent {
		assert.Equal(t, msg, batches[0].Messages[i].PrivateMessage)
	}

	notes := eventsOf[NotificationEvent](bob)
	require.Len(t, notes, 3)
	assert.Equal(t, Notification{From: "alice", Text: "first"}, notes[0].Notification)
	assert.Zero(t, f.store.PendingCount("bob"))

	f.controller.End(ctx, bobSession)
	bob2, _ := f.connect("c3", "bob")
	batches = eventsOf[PendingBatchEvent](bob2)
	require.Len(t, batches, 1)
	assert.Empty(t, batches[0].Messages)
	assert.Empty(t, eventsOf[NotificationEvent](bob2))
}

func TestController_FailedAuthenticationHasNoSideEffects(t *testing.T) {
	f := newFixture("alice", "bob")
	alice, _ := f.connect("c1", "alice")
	alice.Reset()
	ctx := context.Background()

	bad := newFakeConn("c2", "bob")
	s := f.controller.Begin(bad)
	err := f.controller.Authenticate(ctx, s, errors.New("token expired"))
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, StateDisconnected, s.State())
	assert.True(t, bad.Closed())

	anon := newFakeConn("c3", "")
	s2 := f.controller.Begin(anon)
	require.ErrorIs(t, f.controller.Authenticate(ctx, s2, nil), ErrUnauthenticated)

	f.controller.End(ctx, s)
	f.controller.End(ctx, s2)

	assert.False(t, f.registry.IsOnline("bob"))
	assert.Empty(t, alice.Events())
	assert.Empty(t, bad.Events())
}

func TestController_AuthenticateTwiceIsRejected(t *testing.T) {
	f := newFixture("alice")
	_, s := f.connect("c1", "alice")

	err := f.controller.Authenticate(context.Background(), s, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestController_ReplacePolicyRetiresOldConnection(t *testing.T) {
	mem := newMemStore("alice", "bob")
	obs := &recordingObserver{}
	f := newFixtureWith(mem, mem, WithSessionPolicy(SessionReplace), WithPresenceObserver(obs))
	ctx := context.Background()

	bob, _ := f.connect("c0", "bob")
	old, oldSession := f.connect("c1", "alice")
	newer, _ := f.connect("c2", "alice")

	assert.True(t, old.Closed())
	assert.Equal(t, StateDisconnected, oldSession.State())
	conn, ok := f.registry.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c2", conn.ID())

	bob.Reset()
	f.controller.End(ctx, oldSession)
	assert.Empty(t, bob.Events(), "retired session must not announce presence")
	assert.True(t, f.registry.IsOnline("alice"))
	assert.False(t, newer.Closed())

	for _, p := range obs.presence {
		assert.True(t, p.Online)
	}
}

func TestController_RejectPolicyKeepsFirstConnection(t *testing.T) {
	mem := newMemStore("alice")
	f := newFixtureWith(mem, mem, WithSessionPolicy(SessionReject))
	ctx := context.Background()

	first, _ := f.connect("c1", "alice")
	first.Reset()

	second := newFakeConn("c2", "alice")
	s := f.controller.Begin(second)
	err := f.controller.Authenticate(ctx, s, nil)
	require.ErrorIs(t, err, ErrDuplicateSession)

	assert.True(t, second.Closed())
	assert.False(t, first.Closed())
	assert.Empty(t, first.Events())
	conn, ok := f.registry.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", conn.ID())
}

func TestController_DrainFailureLeavesQueueIntact(t *testing.T) {
	store := new(mockStore)
	store.On("ListKnownUsers", mock.Anything).Return([]string{"bob"}, nil)
	store.On("DrainPending", mock.Anything, "bob").Return([]PendingMessage(nil), errors.New("db down"))

	logger := discardLogger()
	registry := NewRegistry()
	pending := NewPendingStore(store, 0, logger)
	router := NewRouter(store, registry, pending, logger)
	controller := NewController(store, registry, pending, router, logger)

	bob := newFakeConn("c1", "bob")
	s := controller.Begin(bob)
	require.NoError(t, controller.Authenticate(context.Background(), s, nil))

	assert.Equal(t, StateAuthenticated, s.State())
	assert.Empty(t, eventsOf[PendingBatchEvent](bob))
	assert.Len(t, eventsOf[PresenceEvent](bob), 1)
	store.AssertExpectations(t)
}

func TestController_SnapshotFallsBackToOnlineUsers(t *testing.T) {
	store := new(mockStore)
	store.On("ListKnownUsers", mock.Anything).Return([]string(nil), errors.New("db down"))
	store.On("DrainPending", mock.Anything, "alice").Return([]PendingMessage{}, nil)

	logger := discardLogger()
	registry := NewRegistry()
	pending := NewPendingStore(store, 0, logger)
	controller := NewController(store, registry, pending, NewRouter(store, registry, pending, logger), logger)

	alice := newFakeConn("c1", "alice")
	require.NoError(t, controller.Authenticate(context.Background(), controller.Begin(alice), nil))

	assert.Equal(t, []PresenceEntry{{Username: "alice", Online: true}}, lastPresence(t, alice))
}
