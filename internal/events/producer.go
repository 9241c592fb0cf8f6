package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event types published on the lifecycle topic.
const (
	TypeUserRegistered = "user_registered"
	TypeUserDeleted    = "user_deleted"
	TypeTaskCreated    = "task_created"
	TypeTaskDeleted    = "task_deleted"
)

// Publisher emits domain lifecycle events. Publishing is best-effort:
// callers log failures and carry on, the request outcome never depends on
// the broker.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]interface{}) error
	Close() error
}

// KafkaPublisher writes events to a single Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(address, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(address),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload map[string]interface{}) error {
	event := map[string]interface{}{
		"id":        uuid.NewString(),
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload":   payload,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(eventType),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (*NoopPublisher) Publish(context.Context, string, map[string]interface{}) error { return nil }

func (*NoopPublisher) Close() error { return nil }
