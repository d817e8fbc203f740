package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"messenger-service/internal/chat"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore is a minimal in-memory chat.Store
type testStore struct {
	mu       sync.Mutex
	users    []string
	messages []chat.BroadcastMessage
	pending  map[string][]chat.PendingMessage
}

func newTestStore(users ...string) *testStore {
	return &testStore{users: users, pending: make(map[string][]chat.PendingMessage)}
}

func (s *testStore) AppendBroadcastMessage(_ context.Context, username, text string) (chat.BroadcastMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := chat.BroadcastMessage{ID: chat.NewMessageID(), Username: username, Text: text, Time: chat.Timestamp()}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *testStore) ListBroadcastMessages(context.Context) ([]chat.BroadcastMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.BroadcastMessage(nil), s.messages...), nil
}

func (s *testStore) ListKnownUsers(context.Context) ([]string, error) {
	return s.users, nil
}

func (s *testStore) UserExists(_ context.Context, username string) (bool, error) {
	for _, u := range s.users {
		if u == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *testStore) EnqueuePending(_ context.Context, msg chat.PrivateMessage) (chat.PendingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := chat.PendingMessage{PrivateMessage: msg}
	s.pending[msg.To] = append(s.pending[msg.To], p)
	return p, nil
}

func (s *testStore) DrainPending(_ context.Context, username string) ([]chat.PendingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.pending[username]
	delete(s.pending, username)
	return msgs, nil
}

func (s *testStore) TrimPending(context.Context, string, int) (int, error) {
	return 0, nil
}

type frame struct {
	Type chat.EventType  `json:"type"`
	Data json.RawMessage `json:"data"`
}

type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	frames []frame
}

func startHub(t *testing.T, store chat.Store, policy chat.SessionPolicy) (*Hub, *httptest.Server) {
	t.Helper()
	return startHubWith(t, store, policy, Options{AllowedOrigins: []string{"*"}})
}

func startHubWith(t *testing.T, store chat.Store, policy chat.SessionPolicy, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	return startHubLogged(t, store, policy, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func startHubLogged(t *testing.T, store chat.Store, policy chat.SessionPolicy, opts Options, logger *slog.Logger) (*Hub, *httptest.Server) {
	t.Helper()
	registry := chat.NewRegistry()
	pending := chat.NewPendingStore(store, opts.PendingCap, logger)
	router := chat.NewRouter(store, registry, pending, logger)
	controller := chat.NewController(store, registry, pending, router, logger, chat.WithSessionPolicy(policy))

	hub := NewHub(controller, router, opts, logger)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r, chat.Identity{Username: r.URL.Query().Get("user")}, nil)
	}))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(raw string) {
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// next returns the next frame of type typ, skipping others
func (c *testClient) next(typ chat.EventType) frame {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		for i, f := range c.frames {
			if f.Type == typ {
				c.frames = append(c.frames[:i:i], c.frames[i+1:]...)
				return f
			}
		}
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", typ)
		for _, line := range strings.Split(string(data), "\n") {
			var f frame
			require.NoError(c.t, json.Unmarshal([]byte(line), &f))
			c.frames = append(c.frames, f)
		}
	}
}

// logBuffer is a bytes.Buffer safe for the concurrent writes of the pumps
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 3*time.Second, 10*time.Millisecond)
}

func TestHub_PrivateMessageToOnlineUser(t *testing.T) {
	hub, srv := startHub(t, newTestStore("alice", "bob"), chat.SessionReplace)

	alice := dial(t, srv, "alice")
	alice.next(chat.EventPendingMessages)
	bob := dial(t, srv, "bob")
	bob.next(chat.EventPendingMessages)
	waitForClients(t, hub, 2)

	alice.send(`{"type":"private_message","data":{"to":"bob","text":"hi bob"}}`)

	var got, echo chat.PrivateMessage
	require.NoError(t, json.Unmarshal(bob.next(chat.EventPrivateMessage).Data, &got))
	require.NoError(t, json.Unmarshal(alice.next(chat.EventPrivateMessage).Data, &echo))
	assert.Equal(t, "hi bob", got.Text)
	assert.Equal(t, got, echo)

	var note chat.Notification
	require.NoError(t, json.Unmarshal(bob.next(chat.EventNotification).Data, &note))
	assert.Equal(t, chat.Notification{From: "alice", Text: "hi bob"}, note)
}

func TestHub_QueuedMessageDeliveredOnConnect(t *testing.T) {
	hub, srv := startHub(t, newTestStore("alice", "carol"), chat.SessionReplace)

	alice := dial(t, srv, "alice")
	alice.send(`{"type":"private_message","data":{"to":"carol","text":"while you were out"}}`)
	alice.next(chat.EventPrivateMessage)

	carol := dial(t, srv, "carol")
	var batch []chat.PendingMessage
	require.NoError(t, json.Unmarshal(carol.next(chat.EventPendingMessages).Data, &batch))
	require.Len(t, batch, 1)
	assert.Equal(t, "while you were out", batch[0].Text)
	assert.Equal(t, "alice", batch[0].From)
	waitForClients(t, hub, 2)
}

func TestHub_PresenceFollowsConnections(t *testing.T) {
	hub, srv := startHub(t, newTestStore("alice", "bob"), chat.SessionReplace)

	alice := dial(t, srv, "alice")
	alice.next(chat.EventUsers)
	bob := dial(t, srv, "bob")

	var users []chat.PresenceEntry
	require.NoError(t, json.Unmarshal(alice.next(chat.EventUsers).Data, &users))
	assert.Contains(t, users, chat.PresenceEntry{Username: "bob", Online: true})

	require.NoError(t, bob.conn.Close())
	require.NoError(t, json.Unmarshal(alice.next(chat.EventUsers).Data, &users))
	assert.Contains(t, users, chat.PresenceEntry{Username: "bob", Online: false})
	waitForClients(t, hub, 1)
}

func TestHub_InvalidFramesAreDropped(t *testing.T) {
	hub, srv := startHub(t, newTestStore("alice"), chat.SessionReplace)

	alice := dial(t, srv, "alice")
	alice.send(`not json`)
	alice.send(`{"type":"message","data":{"text":""}}`)
	alice.send(`{"type":"bogus","data":{}}`)
	alice.send(`{"type":"message","data":{"text":"still here"}}`)

	var msg chat.BroadcastMessage
	require.NoError(t, json.Unmarshal(alice.next(chat.EventMessage).Data, &msg))
	assert.Equal(t, "still here", msg.Text)
	assert.Equal(t, 3, hub.Errors().GetErrorStats()[ProtocolError])
}

func TestHub_ReplacedSessionIsClosed(t *testing.T) {
	hub, srv := startHub(t, newTestStore("alice"), chat.SessionReplace)

	first := dial(t, srv, "alice")
	first.next(chat.EventPendingMessages)
	second := dial(t, srv, "alice")
	second.next(chat.EventPendingMessages)

	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := first.conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
	}
	waitForClients(t, hub, 1)
}

func TestHub_LargeMultibyteMessage(t *testing.T) {
	hub, srv := startHub(t, newTestStore("alice"), chat.SessionReplace)

	alice := dial(t, srv, "alice")
	alice.next(chat.EventPendingMessages)

	text := strings.Repeat("界", 1500)
	alice.send(`{"type":"message","data":{"text":"` + text + `"}}`)

	var msg chat.BroadcastMessage
	require.NoError(t, json.Unmarshal(alice.next(chat.EventMessage).Data, &msg))
	assert.Equal(t, text, msg.Text)
	assert.Equal(t, 1, hub.ClientCount())
	assert.Zero(t, hub.Errors().GetErrorStats()[ConnectionError])
}

func TestHub_ReadLimitNeverBelowFrameSize(t *testing.T) {
	hub, _ := startHubWith(t, newTestStore(), chat.SessionReplace, Options{MaxMessageSize: 4096})
	assert.Equal(t, int64(chat.MaxFrameSize), hub.opts.MaxMessageSize)
}

func TestHub_PendingBacklogLargerThanSendBuffer(t *testing.T) {
	const backlog = 300
	store := newTestStore("alice", "bob")
	for i := 0; i < backlog; i++ {
		_, err := store.EnqueuePending(context.Background(), chat.PrivateMessage{
			ID: chat.NewMessageID(), From: "alice", To: "bob", Text: fmt.Sprintf("m%d", i), Time: chat.Timestamp(),
		})
		require.NoError(t, err)
	}

	hub, srv := startHubWith(t, store, chat.SessionReplace, Options{
		SendBuffer:     64,
		PendingCap:     backlog,
		AllowedOrigins: []string{"*"},
	})
	assert.Equal(t, backlog+connectEvents, hub.opts.SendBuffer)

	bob := dial(t, srv, "bob")
	var batch []chat.PendingMessage
	require.NoError(t, json.Unmarshal(bob.next(chat.EventPendingMessages).Data, &batch))
	require.Len(t, batch, backlog)
	assert.Equal(t, "m0", batch[0].Text)

	for i := 0; i < backlog; i++ {
		var note chat.Notification
		require.NoError(t, json.Unmarshal(bob.next(chat.EventNotification).Data, &note))
		assert.Equal(t, fmt.Sprintf("m%d", i), note.Text)
	}

	waitForClients(t, hub, 1)
	assert.Zero(t, hub.Errors().GetErrorStats()[ConnectionError])
	store.mu.Lock()
	left := len(store.pending["bob"])
	store.mu.Unlock()
	assert.Zero(t, left)
}

func TestHub_ClientLogsThroughHubLogger(t *testing.T) {
	var logs logBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hub, srv := startHubLogged(t, newTestStore("alice"), chat.SessionReplace, Options{AllowedOrigins: []string{"*"}}, logger)

	alice := dial(t, srv, "alice")
	alice.next(chat.EventPendingMessages)
	waitForClients(t, hub, 1)
	assert.Contains(t, logs.String(), "New WebSocket connection established")

	require.NoError(t, alice.conn.Close())
	waitForClients(t, hub, 0)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "Client marked as closed")
	}, 3*time.Second, 10*time.Millisecond)
	assert.Contains(t, logs.String(), "username=alice")
}
