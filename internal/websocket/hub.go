package websocket

import (
	"context"
	"log/slog"
	"sync"

	"messenger-service/internal/chat"

	"github.com/gorilla/websocket"
)

const (
	defaultSendBuffer = 1024

	// users snapshot and pending batch sent ahead of the replayed notifications on connect
	connectEvents = 2
)

// Options tunes per-connection limits
type Options struct {
	// MaxMessageSize is raised to chat.MaxFrameSize when lower
	MaxMessageSize int64
	// SendBuffer is raised to PendingCap plus the connect events so a full pending
	// replay always fits
	SendBuffer     int
	PendingCap     int
	AllowedOrigins []string
}

// Registration asks the hub to start a session for a freshly upgraded client
type Registration struct {
	Client  *Client
	AuthErr error
}

// ClientMessage is a decoded request read from a client
type ClientMessage struct {
	Client  *Client
	Request chat.Inbound
}

// Hub owns the event loop. Connects, disconnects and inbound messages are handled one at
// a time, each to completion, by the chat lifecycle controller and router.
type Hub struct {
	// Sessions of registered clients
	sessions map[*Client]*chat.Session

	// Register requests from the clients
	register chan *Registration

	// Unregister requests from clients
	unregister chan *Client

	// Handle messages from clients
	handleMessage chan *ClientMessage

	controller *chat.Controller
	router     *chat.Router
	errors     *ErrorHandler
	upgrader   websocket.Upgrader
	opts       Options

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	logger *slog.Logger
}

func NewHub(controller *chat.Controller, router *chat.Router, opts Options, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.PendingCap > 0 && opts.SendBuffer < opts.PendingCap+connectEvents {
		opts.SendBuffer = opts.PendingCap + connectEvents
	}
	if opts.MaxMessageSize < chat.MaxFrameSize {
		opts.MaxMessageSize = chat.MaxFrameSize
	}

	origins := NewOriginChecker(opts.AllowedOrigins, logger)
	return &Hub{
		sessions:      make(map[*Client]*chat.Session),
		register:      make(chan *Registration),
		unregister:    make(chan *Client),
		handleMessage: make(chan *ClientMessage),
		controller:    controller,
		router:        router,
		errors:        NewErrorHandler(logger, 100),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case reg := <-h.register:
			h.safely("register", func() { h.registerClient(reg) })

		case client := <-h.unregister:
			h.safely("unregister", func() { h.unregisterClient(client) })

		case msg := <-h.handleMessage:
			h.safely("message", func() { h.handleClientMessage(msg) })

		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.closeAll()
			return
		}
	}
}

// Stop ends the event loop and closes every connection
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Errors exposes the hub's error statistics
func (h *Hub) Errors() *ErrorHandler {
	return h.errors
}

// ErrorCounts flattens GetErrorStats for JSON output
func (h *Hub) ErrorCounts() map[string]int {
	stats := h.errors.GetErrorStats()
	out := make(map[string]int, len(stats))
	for k, v := range stats {
		out[string(k)] = v
	}
	return out
}

func (h *Hub) registerClient(reg *Registration) {
	client := reg.Client
	session := h.controller.Begin(client)

	h.mu.Lock()
	h.sessions[client] = session
	h.mu.Unlock()

	if err := h.controller.Authenticate(h.ctx, session, reg.AuthErr); err != nil {
		h.logger.Info("Connection refused", "clientID", client.id, "username", client.identity.Username, "error", err)
		return
	}
	h.logger.Info("Client registered", "clientID", client.id, "username", client.identity.Username)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	session, ok := h.sessions[client]
	delete(h.sessions, client)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.controller.End(h.ctx, session)
	h.logger.Debug("Client unregistered", "clientID", client.id, "username", client.identity.Username)
}

func (h *Hub) handleClientMessage(msg *ClientMessage) {
	h.mu.RLock()
	session, ok := h.sessions[msg.Client]
	h.mu.RUnlock()

	if !ok || session.State() != chat.StateAuthenticated {
		h.logger.Debug("Dropping message from inactive client", "clientID", msg.Client.id)
		return
	}
	h.router.Dispatch(h.ctx, msg.Client, msg.Request)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.sessions {
		client.Close()
	}
}

// safely runs fn and turns a panic into a recorded system error so the loop keeps running
func (h *Hub) safely(component string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.errors.HandleSystemError(component, r)
		}
	}()
	fn()
}
