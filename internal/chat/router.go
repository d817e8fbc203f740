package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Delivery is the outcome of a private message.
type Delivery int

const (
	DeliveryDropped Delivery = iota
	DeliveryLive
	DeliveryQueued
)

func (d Delivery) String() string {
	switch d {
	case DeliveryLive:
		return "live"
	case DeliveryQueued:
		return "queued"
	default:
		return "dropped"
	}
}

// NewMessageID returns a time-ordered unique message id.
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Timestamp returns the current time at the precision messages are stored with.
func Timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Router validates inbound messages and decides between live delivery, queuing and fan-out.
type Router struct {
	store    Store
	presence *Registry
	pending  *PendingStore
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithObserver reports routing outcomes to obs.
func WithObserver(obs Observer) RouterOption {
	return func(r *Router) { r.observer = obs }
}

// WithClock overrides the time source for private messages.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// WithIDGenerator overrides the id source for private messages.
func WithIDGenerator(newID func() string) RouterOption {
	return func(r *Router) { r.newID = newID }
}

// NewRouter creates a message router.
func NewRouter(store Store, presence *Registry, pending *PendingStore, logger *slog.Logger, opts ...RouterOption) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		store:    store,
		presence: presence,
		pending:  pending,
		observer: NopObserver{},
		logger:   logger,
		now:      Timestamp,
		newID:    NewMessageID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch routes a decoded inbound request from sender.
func (r *Router) Dispatch(ctx context.Context, sender Conn, req Inbound) {
	switch req := req.(type) {
	case BroadcastRequest:
		r.SendBroadcast(ctx, sender, req.Text)
	case PrivateRequest:
		r.SendPrivate(ctx, sender, req.To, req.Text)
	default:
		r.logger.Debug("Dropping unsupported request", "type", req.EventType())
	}
}

// SendBroadcast appends text to the shared log and fans it out to every live connection,
// the sender included. Empty text is dropped. A storage failure is logged and the message
// is still fanned out with a locally assigned id.
func (r *Router) SendBroadcast(ctx context.Context, sender Conn, text string) (BroadcastMessage, bool) {
	if sender == nil || !sender.Identity().Valid() || text == "" {
		return BroadcastMessage{}, false
	}
	username := sender.Identity().Username

	msg, err := r.store.AppendBroadcastMessage(ctx, username, text)
	if err != nil {
		r.logger.Warn("Failed to persist broadcast message", "username", username, "error", err)
		msg = BroadcastMessage{ID: r.newID(), Username: username, Text: text, Time: r.now()}
	}

	r.Broadcast(BroadcastEvent{Message: msg})
	r.observer.BroadcastSent(ctx, msg)
	return msg, true
}

// SendPrivate delivers text to the recipient's live connection or queues it, and only then
// echoes the message back to the sender. Self-addressed messages, unknown recipients and
// empty text are dropped. When queuing fails the sender gets no echo.
func (r *Router) SendPrivate(ctx context.Context, sender Conn, to, text string) (PrivateMessage, Delivery) {
	if sender == nil || !sender.Identity().Valid() {
		return PrivateMessage{}, DeliveryDropped
	}
	from := sender.Identity().Username
	to = strings.TrimSpace(to)
	if to == "" || to == from || text == "" {
		return PrivateMessage{}, DeliveryDropped
	}

	exists, err := r.store.UserExists(ctx, to)
	if err != nil {
		r.logger.Warn("Failed to resolve private message recipient", "from", from, "to", to, "error", err)
		return PrivateMessage{}, DeliveryDropped
	}
	if !exists {
		r.logger.Debug("Dropping private message to unknown user", "from", from, "to", to)
		return PrivateMessage{}, DeliveryDropped
	}

	msg := PrivateMessage{ID: r.newID(), From: from, To: to, Text: text, Time: r.now()}

	delivery := DeliveryQueued
	if recipient, online := r.presence.Lookup(to); online {
		delivery = DeliveryLive
		r.send(recipient, PrivateEvent{Message: msg})
		r.send(recipient, NotificationEvent{Notification: Notification{From: from, Text: text}})
	} else if _, err := r.pending.Enqueue(ctx, msg); err != nil {
		r.logger.Error("Failed to queue private message", "from", from, "to", to, "error", err)
		return PrivateMessage{}, DeliveryDropped
	}

	r.send(sender, PrivateEvent{Message: msg})
	r.observer.PrivateSent(ctx, msg, delivery == DeliveryLive)
	return msg, delivery
}

// Broadcast sends evt to every live connection.
func (r *Router) Broadcast(evt Outbound) {
	for _, conn := range r.presence.Connections() {
		r.send(conn, evt)
	}
}

func (r *Router) send(conn Conn, evt Outbound) {
	if err := conn.Send(evt); err != nil {
		r.logger.Debug("Failed to send event",
			"clientID", conn.ID(),
			"username", conn.Identity().Username,
			"type", evt.EventType(),
			"error", err)
	}
}
