package sqlstore

import (
	"context"
	"fmt"

	"messenger-service/internal/chat"
	"messenger-service/internal/models"

	"gorm.io/gorm"
)

// PendingRepository stores private messages for offline recipients
type PendingRepository struct {
	db *gorm.DB
}

func NewPendingRepository(db *gorm.DB) *PendingRepository {
	return &PendingRepository{db: db}
}

func (r *PendingRepository) Enqueue(ctx context.Context, msg chat.PrivateMessage) (chat.PendingMessage, error) {
	row := models.PendingMessage{
		MessageID: msg.ID,
		Sender:    msg.From,
		Recipient: msg.To,
		Text:      msg.Text,
		SentAt:    msg.Time,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return chat.PendingMessage{}, fmt.Errorf("failed to queue message: %w", err)
	}
	return toPending(row), nil
}

// Drain reads and deletes the recipient's queue in one transaction
func (r *PendingRepository) Drain(ctx context.Context, username string) ([]chat.PendingMessage, error) {
	var rows []models.PendingMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recipient = ?", username).Order("seq ASC").Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to read pending messages: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		last := rows[len(rows)-1].Seq
		if err := tx.Where("recipient = ? AND seq <= ?", username, last).Delete(&models.PendingMessage{}).Error; err != nil {
			return fmt.Errorf("failed to clear pending messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]chat.PendingMessage, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, toPending(row))
	}
	return msgs, nil
}

// Trim keeps the newest keep messages of the recipient
func (r *PendingRepository) Trim(ctx context.Context, username string, keep int) (int, error) {
	var evicted int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PendingMessage{}).Where("recipient = ?", username).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count pending messages: %w", err)
		}
		excess := int(count) - keep
		if excess <= 0 {
			return nil
		}

		var stale []uint
		if err := tx.Model(&models.PendingMessage{}).Where("recipient = ?", username).
			Order("seq ASC").Limit(excess).Pluck("seq", &stale).Error; err != nil {
			return fmt.Errorf("failed to select evicted pending messages: %w", err)
		}
		res := tx.Where("seq IN ?", stale).Delete(&models.PendingMessage{})
		if res.Error != nil {
			return fmt.Errorf("failed to evict pending messages: %w", res.Error)
		}
		evicted = int(res.RowsAffected)
		return nil
	})
	return evicted, err
}

func toPending(row models.PendingMessage) chat.PendingMessage {
	return chat.PendingMessage{PrivateMessage: chat.PrivateMessage{
		ID:   row.MessageID,
		From: row.Sender,
		To:   row.Recipient,
		Text: row.Text,
		Time: row.SentAt.UTC(),
	}}
}
