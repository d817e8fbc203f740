// Package badgerstore implements the chat storage on an embedded BadgerDB.
//
// Key layout:
//
//	user:{hex username}             -> user record
//	msg:{seq}                       -> broadcast message
//	pending:{hex username}:{seq}    -> queued private message
//
// seq is a 20-digit zero padded counter so lexicographic order is insertion order.
// Usernames are hex encoded so one user's prefix never matches another's.
package badgerstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"messenger-service/internal/chat"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/y"
)

const (
	userPrefix    = "user:"
	messagePrefix = "msg:"
	pendingPrefix = "pending:"

	maxConflictRetries = 3
)

type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logCap int
	log    *slog.Logger

	Users *UserRepository
}

var _ chat.Store = (*Store)(nil)

// Open opens the store at path. A store badger reports as corrupt is moved aside to
// path.bak.<unix> and replaced with an empty one. Any other failure is returned as is.
func Open(path string, logCap int, log *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		if !isCorrupt(err) {
			return nil, fmt.Errorf("failed to open badger store %s: %w", path, err)
		}
		backup := fmt.Sprintf("%s.bak.%d", path, time.Now().Unix())
		log.Warn("Badger store corrupted, moving it aside", "path", path, "backup", backup, "error", err)
		if renameErr := os.Rename(path, backup); renameErr != nil {
			return nil, fmt.Errorf("failed to back up corrupted store: %w", errors.Join(err, renameErr))
		}
		if db, err = badger.Open(opts); err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
	}
	return New(db, logCap, log)
}

// isCorrupt matches the checksum and manifest errors badger returns for damaged files.
// Lock contention, permissions and I/O errors do not match.
func isCorrupt(err error) bool {
	if errors.Is(err, y.ErrChecksumMismatch) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "manifest") || strings.Contains(msg, "checksum")
}

// New wraps an open badger database
func New(db *badger.DB, logCap int, log *slog.Logger) (*Store, error) {
	if logCap <= 0 {
		logCap = chat.DefaultLogCap
	}
	seq, err := db.GetSequence([]byte("seq:global"), 100)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sequence: %w", err)
	}
	s := &Store{db: db, seq: seq, logCap: logCap, log: log}
	s.Users = &UserRepository{store: s}
	return s, nil
}

// Close releases the sequence and closes the database
func (s *Store) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

func (s *Store) AppendBroadcastMessage(ctx context.Context, username, text string) (chat.BroadcastMessage, error) {
	n, err := s.next()
	if err != nil {
		return chat.BroadcastMessage{}, err
	}
	msg := chat.BroadcastMessage{ID: chat.NewMessageID(), Username: username, Text: text, Time: chat.Timestamp()}
	data, err := json.Marshal(msg)
	if err != nil {
		return chat.BroadcastMessage{}, err
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(seqKey(messagePrefix, n), data); err != nil {
			return err
		}
		keys, err := collectKeys(txn, []byte(messagePrefix))
		if err != nil {
			return err
		}
		for i := 0; i < len(keys)-s.logCap; i++ {
			if err := txn.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return chat.BroadcastMessage{}, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

func (s *Store) ListBroadcastMessages(ctx context.Context) ([]chat.BroadcastMessage, error) {
	msgs := []chat.BroadcastMessage{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte(messagePrefix), func(_, value []byte) error {
			var msg chat.BroadcastMessage
			if err := json.Unmarshal(value, &msg); err != nil {
				return err
			}
			msgs = append(msgs, msg)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) ListKnownUsers(ctx context.Context) ([]string, error) {
	users, err := s.Users.list()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names, nil
}

func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	_, err := s.Users.FindByUsername(ctx, username)
	if errors.Is(err, chat.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) EnqueuePending(ctx context.Context, msg chat.PrivateMessage) (chat.PendingMessage, error) {
	n, err := s.next()
	if err != nil {
		return chat.PendingMessage{}, err
	}
	pending := chat.PendingMessage{PrivateMessage: msg}
	data, err := json.Marshal(pending)
	if err != nil {
		return chat.PendingMessage{}, err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(seqKey(pendingUserPrefix(msg.To), n), data)
	})
	if err != nil {
		return chat.PendingMessage{}, fmt.Errorf("failed to queue message: %w", err)
	}
	return pending, nil
}

// DrainPending reads and deletes the recipient's queue in one transaction
func (s *Store) DrainPending(ctx context.Context, username string) ([]chat.PendingMessage, error) {
	var msgs []chat.PendingMessage
	err := s.update(ctx, func(txn *badger.Txn) error {
		msgs = msgs[:0]
		var keys [][]byte
		err := scan(txn, []byte(pendingUserPrefix(username)), func(key, value []byte) error {
			var msg chat.PendingMessage
			if err := json.Unmarshal(value, &msg); err != nil {
				return err
			}
			msgs = append(msgs, msg)
			keys = append(keys, key)
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain pending messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) TrimPending(ctx context.Context, username string, keep int) (int, error) {
	var evicted int
	err := s.update(ctx, func(txn *badger.Txn) error {
		evicted = 0
		keys, err := collectKeys(txn, []byte(pendingUserPrefix(username)))
		if err != nil {
			return err
		}
		for i := 0; i < len(keys)-keep; i++ {
			if err := txn.Delete(keys[i]); err != nil {
				return err
			}
			evicted++
		}
		return nil
	})
	return evicted, err
}

func (s *Store) next() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return n, nil
}

// update runs fn in a read-write transaction, retrying on conflicts
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("Badger transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func seqKey(prefix string, n uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, n))
}

func userKey(username string) []byte {
	return []byte(userPrefix + hex.EncodeToString([]byte(username)))
}

func pendingUserPrefix(username string) string {
	return pendingPrefix + hex.EncodeToString([]byte(username)) + ":"
}

func scan(txn *badger.Txn, prefix []byte, fn func(key, value []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(value []byte) error {
			return fn(key, value)
		}); err != nil {
			return err
		}
	}
	return nil
}

func collectKeys(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}
