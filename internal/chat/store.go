package chat

import (
	"context"
	"errors"
)

// DefaultLogCap is the number of broadcast messages kept in the shared log.
const DefaultLogCap = 200

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrSendBufferFull    = errors.New("send buffer full")
)

// Store is the durable side of the chat: the capped broadcast log, the user
// directory and the per-recipient pending queues.
type Store interface {
	// AppendBroadcastMessage assigns id and time, appends and evicts the
	// oldest entries beyond the log cap.
	AppendBroadcastMessage(ctx context.Context, username, text string) (BroadcastMessage, error)
	// ListBroadcastMessages returns a copy of the log in insertion order.
	ListBroadcastMessages(ctx context.Context) ([]BroadcastMessage, error)
	ListKnownUsers(ctx context.Context) ([]string, error)
	UserExists(ctx context.Context, username string) (bool, error)

	EnqueuePending(ctx context.Context, msg PrivateMessage) (PendingMessage, error)
	// DrainPending returns the recipient's queue in insertion order and clears it.
	DrainPending(ctx context.Context, username string) ([]PendingMessage, error)
	// TrimPending evicts the oldest queued messages beyond keep and returns how many were removed.
	TrimPending(ctx context.Context, username string, keep int) (int, error)
}

// Conn is a live, authenticated transport session as seen by the core.
type Conn interface {
	ID() string
	Identity() Identity
	// Send queues an event without blocking.
	Send(evt Outbound) error
	Close()
}

// Observer receives chat outcomes after they happen. Implementations must not block.
type Observer interface {
	BroadcastSent(ctx context.Context, msg BroadcastMessage)
	PrivateSent(ctx context.Context, msg PrivateMessage, delivered bool)
	PresenceChanged(ctx context.Context, username string, online bool)
}

// NopObserver ignores every outcome.
type NopObserver struct{}

func (NopObserver) BroadcastSent(context.Context, BroadcastMessage)   {}
func (NopObserver) PrivateSent(context.Context, PrivateMessage, bool) {}
func (NopObserver) PresenceChanged(context.Context, string, bool)     {}

// Observers fans an outcome out to several observers in order.
type Observers []Observer

func (o Observers) BroadcastSent(ctx context.Context, msg BroadcastMessage) {
	for _, obs := range o {
		obs.BroadcastSent(ctx, msg)
	}
}

func (o Observers) PrivateSent(ctx context.Context, msg PrivateMessage, delivered bool) {
	for _, obs := range o {
		obs.PrivateSent(ctx, msg, delivered)
	}
}

func (o Observers) PresenceChanged(ctx context.Context, username string, online bool) {
	for _, obs := range o {
		obs.PresenceChanged(ctx, username, online)
	}
}
