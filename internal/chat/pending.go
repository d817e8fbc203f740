package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultPendingCap bounds each recipient's queue unless configured otherwise.
const DefaultPendingCap = 500

// PendingStore queues private messages for offline recipients on top of a Store.
// Enqueue and Drain are serialized so a drain never interleaves with an enqueue.
type PendingStore struct {
	store  Store
	limit  int
	logger *slog.Logger
	mu     sync.Mutex
}

// NewPendingStore wraps store. A limit of zero or less keeps every queued message;
// otherwise the oldest messages of a recipient are evicted beyond limit.
func NewPendingStore(store Store, limit int, logger *slog.Logger) *PendingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingStore{store: store, limit: limit, logger: logger}
}

// Enqueue appends msg to the queue of msg.To.
func (p *PendingStore) Enqueue(ctx context.Context, msg PrivateMessage) (PendingMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, err := p.store.EnqueuePending(ctx, msg)
	if err != nil {
		return PendingMessage{}, fmt.Errorf("enqueue pending for %s: %w", msg.To, err)
	}

	if p.limit > 0 {
		evicted, err := p.store.TrimPending(ctx, msg.To, p.limit)
		if err != nil {
			// The message is queued; an over-long queue is tolerated until the next trim.
			p.logger.Warn("Failed to trim pending queue", "username", msg.To, "error", err)
		} else if evicted > 0 {
			p.logger.Info("Evicted oldest pending messages", "username", msg.To, "evicted", evicted)
		}
	}
	return pending, nil
}

// Drain returns every message queued for username in insertion order and clears the queue.
// A second drain returns an empty slice.
func (p *PendingStore) Drain(ctx context.Context, username string) ([]PendingMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs, err := p.store.DrainPending(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("drain pending for %s: %w", username, err)
	}
	if msgs == nil {
		msgs = []PendingMessage{}
	}
	return msgs, nil
}
