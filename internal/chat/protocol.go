package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// EventType tags every frame exchanged with a client.
type EventType string

const (
	EventMessage         EventType = "message"
	EventPrivateMessage  EventType = "private_message"
	EventNotification    EventType = "notification"
	EventPendingMessages EventType = "pending_messages"
	EventUsers           EventType = "users"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event type")
)

const (
	// MaxTextLength is the rune limit on message text; the validate tags below repeat it.
	MaxTextLength = 4000
	// MaxFrameSize is the smallest read limit that fits any valid inbound frame, even
	// when a client \u-escapes every rune as a surrogate pair (12 bytes).
	MaxFrameSize = 64 << 10
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound is an event the server sends to a connection.
type Outbound interface {
	EventType() EventType
	payload() any
}

// BroadcastEvent carries a shared-log message.
type BroadcastEvent struct{ Message BroadcastMessage }

// PrivateEvent carries a private message, both to its recipient and as the sender's confirmation.
type PrivateEvent struct{ Message PrivateMessage }

// NotificationEvent alerts a recipient that a private message arrived.
type NotificationEvent struct{ Notification Notification }

// PendingBatchEvent delivers everything queued while the recipient was away.
type PendingBatchEvent struct{ Messages []PendingMessage }

// PresenceEvent carries a full presence snapshot.
type PresenceEvent struct{ Users []PresenceEntry }

func (BroadcastEvent) EventType() EventType    { return EventMessage }
func (PrivateEvent) EventType() EventType      { return EventPrivateMessage }
func (NotificationEvent) EventType() EventType { return EventNotification }
func (PendingBatchEvent) EventType() EventType { return EventPendingMessages }
func (PresenceEvent) EventType() EventType     { return EventUsers }

func (e BroadcastEvent) payload() any    { return e.Message }
func (e PrivateEvent) payload() any      { return e.Message }
func (e NotificationEvent) payload() any { return e.Notification }

func (e PendingBatchEvent) payload() any {
	if e.Messages == nil {
		return []PendingMessage{}
	}
	return e.Messages
}

func (e PresenceEvent) payload() any {
	if e.Users == nil {
		return []PresenceEntry{}
	}
	return e.Users
}

// Encode renders an outbound event as a tagged JSON frame.
func Encode(evt Outbound) ([]byte, error) {
	data, err := json.Marshal(evt.payload())
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", evt.EventType(), err)
	}
	return json.Marshal(envelope{Type: evt.EventType(), Data: data})
}

// Inbound is a request a client sends over its connection.
type Inbound interface {
	EventType() EventType
}

// BroadcastRequest asks for a message on the shared log.
type BroadcastRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// PrivateRequest asks for a message to a single recipient.
type PrivateRequest struct {
	To   string `json:"to" validate:"required,max=64"`
	Text string `json:"text" validate:"required,max=4000"`
}

func (BroadcastRequest) EventType() EventType { return EventMessage }
func (PrivateRequest) EventType() EventType   { return EventPrivateMessage }

// DecodeInbound parses and validates a client frame. Any error means the frame is dropped.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedFrame)
	}

	var req Inbound
	switch env.Type {
	case EventMessage:
		var r BroadcastRequest
		if err := decodeData(env.Data, &r); err != nil {
			return nil, err
		}
		req = r
	case EventPrivateMessage:
		var r PrivateRequest
		if err := decodeData(env.Data, &r); err != nil {
			return nil, err
		}
		req = r
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	return req, nil
}

func decodeData(data json.RawMessage, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
