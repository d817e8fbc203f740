package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"messenger-service/internal/chat"

	"github.com/redis/go-redis/v9"
)

const (
	onlineUsersKey    = "online_users"
	userStatusChannel = "user_status"
	statusTTL         = 24 * time.Hour
	observerTimeout   = 2 * time.Second
)

// RedisService mirrors presence into Redis and provides rate limiting
type RedisService struct {
	client  *redis.Client
	updates chan UserStatusEvent
	logger  *slog.Logger
}

var _ chat.Observer = (*RedisService)(nil)

func NewRedisService(client *redis.Client, logger *slog.Logger) *RedisService {
	return &RedisService{
		client:  client,
		updates: make(chan UserStatusEvent, 256),
		logger:  logger,
	}
}

// UserStatusEvent is published on the user_status channel
type UserStatusEvent struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
	At       int64  `json:"at"`
}

func statusKey(username string) string {
	return fmt.Sprintf("user:%s:status", username)
}

func (r *RedisService) SetUserOnline(ctx context.Context, username string) error {
	return r.setStatus(ctx, username, true)
}

func (r *RedisService) SetUserOffline(ctx context.Context, username string) error {
	return r.setStatus(ctx, username, false)
}

func (r *RedisService) setStatus(ctx context.Context, username string, online bool) error {
	now := time.Now().Unix()
	status := "offline"

	pipe := r.client.Pipeline()
	if online {
		status = "online"
		pipe.SAdd(ctx, onlineUsersKey, username)
	} else {
		pipe.SRem(ctx, onlineUsersKey, username)
	}
	pipe.HSet(ctx, statusKey(username), map[string]interface{}{
		"status":    status,
		"last_seen": now,
	})
	pipe.Expire(ctx, statusKey(username), statusTTL)

	payload, err := json.Marshal(UserStatusEvent{Username: username, Online: online, At: now})
	if err != nil {
		return err
	}
	pipe.Publish(ctx, userStatusChannel, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to update user status", "username", username, "status", status, "error", err)
		return err
	}

	r.logger.Debug("User status updated", "username", username, "status", status)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, username string) (bool, error) {
	return r.client.SIsMember(ctx, onlineUsersKey, username).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, onlineUsersKey).Result()
}

// ResetPresence clears the mirror; presence starts empty on every process start
func (r *RedisService) ResetPresence(ctx context.Context) error {
	return r.client.Del(ctx, onlineUsersKey).Err()
}

// SubscribeUserStatus listens for presence changes published by any process
func (r *RedisService) SubscribeUserStatus(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, userStatusChannel)
}

// CheckRateLimit records a hit for key and reports whether it is within limit for the sliding window
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.Pipeline()

	// Remove old entries
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))

	// Count current entries
	count := pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})

	// Set expiration
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() < limit, nil
}

// RunPresenceMirror applies queued presence changes in order until ctx is done
func (r *RedisService) RunPresenceMirror(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-r.updates:
			opCtx, cancel := context.WithTimeout(ctx, observerTimeout)
			_ = r.setStatus(opCtx, evt.Username, evt.Online)
			cancel()
		}
	}
}

// PresenceChanged queues the change for RunPresenceMirror; it never blocks the caller
func (r *RedisService) PresenceChanged(_ context.Context, username string, online bool) {
	select {
	case r.updates <- UserStatusEvent{Username: username, Online: online, At: time.Now().Unix()}:
	default:
		r.logger.Warn("Presence mirror queue full, dropping update", "username", username, "online", online)
	}
}

func (r *RedisService) BroadcastSent(context.Context, chat.BroadcastMessage) {}

func (r *RedisService) PrivateSent(context.Context, chat.PrivateMessage, bool) {}
