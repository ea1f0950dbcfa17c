package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vietddude/inventory/internal/core/domain"
)

// GrantEventType is set as the "event-type" header on every message.
const GrantEventType = "InventoryItemGranted"

// Config holds grant event publishing configuration. Publishing is disabled
// when no brokers are configured.
type Config struct {
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	PublishTimeout time.Duration `yaml:"publish_timeout"` // bound on a single grant's publish
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// messageWriter is the subset of *kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes grant events to a Kafka topic keyed by user id, so
// events for one user stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: cfg.PublishTimeout,
			MaxAttempts:  3,
		},
	}
}

// PublishGrant marshals the event and writes it synchronously.
func (p *KafkaPublisher) PublishGrant(ctx context.Context, event domain.GrantEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal grant event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID.String()),
		Value: payload,
		Time:  event.GrantedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(GrantEventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write grant event: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
