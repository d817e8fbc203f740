package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"messenger-service/internal/chat"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Time allowed to hand an event to the hub
	hubTimeout = 5 * time.Second
)

var ErrClientDisconnected = errors.New("client disconnected")

// Client is one websocket connection. It implements chat.Conn.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	identity chat.Identity

	send       chan []byte
	sendMu     sync.Mutex
	sendClosed bool

	// Connection state management
	ctx    context.Context
	cancel context.CancelFunc
	closed int32 // atomic flag to track if client is closed

	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, identity chat.Identity) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:       uuid.New().String(),
		hub:      hub,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, hub.opts.SendBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() chat.Identity { return c.identity }

// Send encodes evt and queues it without blocking. A full buffer drops the client.
func (c *Client) Send(evt chat.Outbound) error {
	data, err := chat.Encode(evt)
	if err != nil {
		return err
	}
	return c.SendMessage(data)
}

// SendMessage queues a raw frame without blocking
func (c *Client) SendMessage(data []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return ErrClientDisconnected
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Send buffer is full, close the client
		c.hub.logger.Warn("Send buffer full, closing client", "clientID", c.id, "username", c.identity.Username)
		c.closeSendLocked()
		c.hub.errors.HandleConnectionError(c, chat.ErrSendBufferFull)
		return chat.ErrSendBufferFull
	}
}

// Close asks the write pump to send a close frame and tear the connection down
func (c *Client) Close() {
	c.sendMu.Lock()
	c.closeSendLocked()
	c.sendMu.Unlock()
}

// isClosed returns true if the client is closed
func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// close marks the client as closed and cancels the context
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		c.hub.logger.Debug("Client marked as closed", "clientID", c.id, "username", c.identity.Username)
	}
}

func (c *Client) closeSendLocked() {
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.wg.Done()
		c.close()

		select {
		case c.hub.unregister <- c:
			c.hub.logger.Debug("Client unregister request sent", "clientID", c.id, "username", c.identity.Username)
		case <-c.hub.ctx.Done():
		case <-time.After(hubTimeout):
			c.hub.logger.Warn("Timeout sending unregister request", "clientID", c.id, "username", c.identity.Username)
		}

		if err := c.conn.Close(); err != nil {
			c.hub.logger.Debug("Error closing connection", "clientID", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Error("WebSocket error", "clientID", c.id, "username", c.identity.Username, "error", err)
			} else {
				c.hub.logger.Debug("WebSocket connection closed", "clientID", c.id, "username", c.identity.Username, "error", err)
			}
			return
		}

		req, err := chat.DecodeInbound(raw)
		if err != nil {
			c.hub.errors.HandleProtocolError(c, err)
			continue
		}

		select {
		case c.hub.handleMessage <- &ClientMessage{Client: c, Request: req}:
		case <-time.After(hubTimeout):
			c.hub.logger.Warn("Timeout sending message to hub", "clientID", c.id, "username", c.identity.Username)
		case <-c.ctx.Done():
			return
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
		// Unblocks readPump so the hub hears about the disconnect
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.hub.logger.Debug("Error getting next writer", "clientID", c.id, "error", err)
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(queued)
			}

			if err := w.Close(); err != nil {
				c.hub.logger.Debug("Error closing writer", "clientID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("Error sending ping", "clientID", c.id, "error", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// ServeWS upgrades the request and hands the connection to the hub. identity must
// already be verified; authErr carries a verification failure from the caller.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, identity chat.Identity, authErr error) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("Failed to upgrade WebSocket connection", "username", identity.Username, "error", err)
		return
	}

	client := NewClient(hub, conn, identity)
	hub.logger.Info("New WebSocket connection established", "clientID", client.id, "username", identity.Username)

	client.wg.Add(2)
	go client.writePump()

	select {
	case hub.register <- &Registration{Client: client, AuthErr: authErr}:
	case <-time.After(hubTimeout):
		hub.logger.Error("Timeout sending registration request", "clientID", client.id, "username", identity.Username)
		client.Close()
		client.wg.Done()
		return
	}

	go client.readPump()
}
