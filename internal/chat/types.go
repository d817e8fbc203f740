package chat

import (
	"time"
)

// Identity is the authenticated user bound to a connection.
type Identity struct {
	Username string `json:"username"`
}

// Valid reports whether the identity names a user.
func (i Identity) Valid() bool {
	return i.Username != ""
}

// BroadcastMessage is an entry of the shared chat log, fanned out to every connection.
type BroadcastMessage struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
}

// PrivateMessage is addressed to exactly one recipient and never written to the shared log.
type PrivateMessage struct {
	ID   string    `json:"id"`
	From string    `json:"from"`
	To   string    `json:"to"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// PendingMessage is a private message waiting for its recipient to reconnect.
type PendingMessage struct {
	PrivateMessage
}

// PresenceEntry is one row of a presence snapshot.
type PresenceEntry struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// Notification is the lightweight alert a recipient gets alongside a private message.
type Notification struct {
	From string `json:"from"`
	Text string `json:"text"`
}
