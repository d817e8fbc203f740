// Package sqlstore implements the chat storage on a relational database through GORM.
// It works with the postgres, mysql and sqlite drivers.
package sqlstore

import (
	"context"

	"messenger-service/internal/chat"

	"gorm.io/gorm"
)

// Store combines the user, message and pending repositories into a chat.Store
type Store struct {
	Users    *UserRepository
	Messages *MessageRepository
	Pending  *PendingRepository
}

var _ chat.Store = (*Store)(nil)

func New(db *gorm.DB, logCap int) *Store {
	return &Store{
		Users:    NewUserRepository(db),
		Messages: NewMessageRepository(db, logCap),
		Pending:  NewPendingRepository(db),
	}
}

func (s *Store) AppendBroadcastMessage(ctx context.Context, username, text string) (chat.BroadcastMessage, error) {
	return s.Messages.Append(ctx, username, text)
}

func (s *Store) ListBroadcastMessages(ctx context.Context) ([]chat.BroadcastMessage, error) {
	return s.Messages.List(ctx)
}

func (s *Store) ListKnownUsers(ctx context.Context) ([]string, error) {
	return s.Users.ListUsernames(ctx)
}

func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	return s.Users.Exists(ctx, username)
}

func (s *Store) EnqueuePending(ctx context.Context, msg chat.PrivateMessage) (chat.PendingMessage, error) {
	return s.Pending.Enqueue(ctx, msg)
}

func (s *Store) DrainPending(ctx context.Context, username string) ([]chat.PendingMessage, error) {
	return s.Pending.Drain(ctx, username)
}

func (s *Store) TrimPending(ctx context.Context, username string, keep int) (int, error) {
	return s.Pending.Trim(ctx, username, keep)
}
