package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"messenger-service/internal/chat"

	"github.com/IBM/sarama"
)

// Event types written to the chat events topic
const (
	EventBroadcast = "broadcast"
	EventPrivate   = "private"
	EventPresence  = "presence"
)

// ChatEvent is the record value published for every chat outcome
type ChatEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Text      string    `json:"text,omitempty"`
	Delivered bool      `json:"delivered"`
	Username  string    `json:"username,omitempty"`
	Online    bool      `json:"online"`
	At        time.Time `json:"at"`
}

// Key partitions events by the user they concern
func (e ChatEvent) Key() string {
	if e.Type == EventPresence {
		return e.Username
	}
	return e.From
}

// EventPublisher writes chat outcomes to Kafka from a background worker
type EventPublisher struct {
	producer sarama.SyncProducer
	topic    string
	events   chan ChatEvent
	logger   *slog.Logger
	wg       sync.WaitGroup
}

var _ chat.Observer = (*EventPublisher)(nil)

func NewEventPublisher(producer sarama.SyncProducer, topic string, buffer int, logger *slog.Logger) *EventPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &EventPublisher{
		producer: producer,
		topic:    topic,
		events:   make(chan ChatEvent, buffer),
		logger:   logger,
	}
}

// Start runs the worker until Close
func (p *EventPublisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for evt := range p.events {
			p.publish(evt)
		}
	}()
}

// Close flushes queued events and closes the producer
func (p *EventPublisher) Close() error {
	close(p.events)
	p.wg.Wait()
	return p.producer.Close()
}

func (p *EventPublisher) publish(evt ChatEvent) {
	value, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("Failed to encode chat event", "type", evt.Type, "error", err)
		return
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.Key()),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		p.logger.Error("Failed to publish chat event", "type", evt.Type, "topic", p.topic, "error", err)
		return
	}
	p.logger.Debug("Chat event published", "type", evt.Type, "partition", partition, "offset", offset)
}

func (p *EventPublisher) enqueue(evt ChatEvent) {
	select {
	case p.events <- evt:
	default:
		p.logger.Warn("Chat event queue full, dropping event", "type", evt.Type)
	}
}

func (p *EventPublisher) BroadcastSent(_ context.Context, msg chat.BroadcastMessage) {
	p.enqueue(ChatEvent{Type: EventBroadcast, ID: msg.ID, From: msg.Username, Text: msg.Text, At: msg.Time})
}

func (p *EventPublisher) PrivateSent(_ context.Context, msg chat.PrivateMessage, delivered bool) {
	p.enqueue(ChatEvent{Type: EventPrivate, ID: msg.ID, From: msg.From, To: msg.To, Text: msg.Text, Delivered: delivered, At: msg.Time})
}

func (p *EventPublisher) PresenceChanged(_ context.Context, username string, online bool) {
	p.enqueue(ChatEvent{Type: EventPresence, Username: username, Online: online, At: time.Now().UTC()})
}
