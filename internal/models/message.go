package models

import "time"

/** --------------------ENTITIES-------------------- */
// BroadcastMessage is a row of the capped shared chat log.
// Seq preserves insertion order and drives FIFO eviction.
type BroadcastMessage struct {
	Seq       uint      `gorm:"primaryKey;autoIncrement"`
	MessageID string    `gorm:"uniqueIndex;size:36;not null"`
	Username  string    `gorm:"size:64;not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// PendingMessage is a private message queued for an offline recipient
type PendingMessage struct {
	Seq       uint      `gorm:"primaryKey;autoIncrement"`
	MessageID string    `gorm:"size:36;not null"`
	Sender    string    `gorm:"size:64;not null"`
	Recipient string    `gorm:"index;size:64;not null"`
	Text      string    `gorm:"type:text;not null"`
	SentAt    time.Time `gorm:"not null"`
}

/** -------------------- DTOs -------------------- */
// AttachmentResponse is returned after an upload; URL is sent as ordinary message text
type AttachmentResponse struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// AllModels lists every entity managed by migrations
func AllModels() []interface{} {
	return []interface{}{&User{}, &BroadcastMessage{}, &PendingMessage{}}
}
