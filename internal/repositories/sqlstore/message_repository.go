package sqlstore

import (
	"context"
	"fmt"

	"messenger-service/internal/chat"
	"messenger-service/internal/models"

	"gorm.io/gorm"
)

// MessageRepository persists the shared chat log, keeping only the newest logCap rows
type MessageRepository struct {
	db     *gorm.DB
	logCap int
}

func NewMessageRepository(db *gorm.DB, logCap int) *MessageRepository {
	if logCap <= 0 {
		logCap = chat.DefaultLogCap
	}
	return &MessageRepository{db: db, logCap: logCap}
}

// Append inserts a message and evicts the oldest rows beyond the cap in the same transaction
func (r *MessageRepository) Append(ctx context.Context, username, text string) (chat.BroadcastMessage, error) {
	row := models.BroadcastMessage{
		MessageID: chat.NewMessageID(),
		Username:  username,
		Text:      text,
		CreatedAt: chat.Timestamp(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		var count int64
		if err := tx.Model(&models.BroadcastMessage{}).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		if excess := int(count) - r.logCap; excess > 0 {
			var stale []uint
			if err := tx.Model(&models.BroadcastMessage{}).Order("seq ASC").Limit(excess).Pluck("seq", &stale).Error; err != nil {
				return fmt.Errorf("failed to select evicted messages: %w", err)
			}
			if err := tx.Where("seq IN ?", stale).Delete(&models.BroadcastMessage{}).Error; err != nil {
				return fmt.Errorf("failed to evict messages: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return chat.BroadcastMessage{}, err
	}
	return toBroadcast(row), nil
}

// List returns the log oldest first
func (r *MessageRepository) List(ctx context.Context) ([]chat.BroadcastMessage, error) {
	var rows []models.BroadcastMessage
	if err := r.db.WithContext(ctx).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	msgs := make([]chat.BroadcastMessage, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, toBroadcast(row))
	}
	return msgs, nil
}

func toBroadcast(row models.BroadcastMessage) chat.BroadcastMessage {
	return chat.BroadcastMessage{
		ID:       row.MessageID,
		Username: row.Username,
		Text:     row.Text,
		Time:     row.CreatedAt.UTC(),
	}
}
