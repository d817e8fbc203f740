// Command eventtail prints chat events from the Kafka topic, one line each.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	chatkafka "messenger-service/internal/adapters/kafka"
	"messenger-service/internal/config"
	"messenger-service/internal/logging"

	"github.com/segmentio/kafka-go"
)

func main() {
	group := flag.String("group", "", "consumer group; empty reads partition 0 directly")
	fromStart := flag.Bool("from-start", false, "start at the oldest event instead of the newest")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Error("KAFKA_BROKERS is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startOffset := kafka.LastOffset
	if *fromStart {
		startOffset = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		GroupID:     *group,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer reader.Close()

	if *group == "" {
		if err := reader.SetOffset(startOffset); err != nil {
			logger.Error("Failed to set offset", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Tailing chat events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("Failed to read message", "error", err)
			os.Exit(1)
		}

		line, err := format(msg.Value)
		if err != nil {
			logger.Warn("Skipping undecodable event", "offset", msg.Offset, "error", err)
			continue
		}
		fmt.Println(line)
	}
}

func format(value []byte) (string, error) {
	var evt chatkafka.ChatEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return "", err
	}

	at := evt.At.UTC().Format(time.RFC3339)
	switch evt.Type {
	case chatkafka.EventBroadcast:
		return fmt.Sprintf("%s broadcast %s: %s", at, evt.From, evt.Text), nil
	case chatkafka.EventPrivate:
		state := "queued"
		if evt.Delivered {
			state = "delivered"
		}
		return fmt.Sprintf("%s private %s -> %s (%s): %s", at, evt.From, evt.To, state, evt.Text), nil
	case chatkafka.EventPresence:
		state := "offline"
		if evt.Online {
			state = "online"
		}
		return fmt.Sprintf("%s presence %s %s", at, evt.Username, state), nil
	default:
		return "", fmt.Errorf("unknown event type %q", evt.Type)
	}
}
