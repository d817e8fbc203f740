package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"messenger-service/internal/chat"
	"messenger-service/internal/models"

	"github.com/dgraph-io/badger/v4"
)

// UserRepository keeps accounts under user:{hex username}
type UserRepository struct {
	store *Store
}

// userRecord is the stored form; models.User hides the password hash from JSON
type userRecord struct {
	ID           uint      `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u userRecord) toModel() models.User {
	user := models.User{Username: u.Username, Password: u.PasswordHash}
	user.ID = u.ID
	user.CreatedAt = u.CreatedAt
	user.UpdatedAt = u.CreatedAt
	return user
}

// Create persists user, assigning its ID and timestamps
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	n, err := r.store.next()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	user.ID = uint(n + 1)
	user.CreatedAt = now
	user.UpdatedAt = now

	data, err := json.Marshal(userRecord{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.Password,
		CreatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return r.store.update(ctx, func(txn *badger.Txn) error {
		key := userKey(user.Username)
		if _, err := txn.Get(key); err == nil {
			return chat.ErrUserAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var rec userRecord
	err := r.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, chat.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	user := rec.toModel()
	return &user, nil
}

// list returns every user in registration order
func (r *UserRepository) list() ([]userRecord, error) {
	var users []userRecord
	err := r.store.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(userPrefix), func(_, value []byte) error {
			var u userRecord
			if err := json.Unmarshal(value, &u); err != nil {
				return err
			}
			users = append(users, u)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}
