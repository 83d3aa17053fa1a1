// Package kafka publishes ledger events to a Kafka topic as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tinoosan/daybook/internal/service/daybook"
)

// DefaultTopic receives every ledger event unless configured otherwise.
const DefaultTopic = "daybook.events"

// BatchTimeout bounds how long a publish waits for a batch to fill.
const BatchTimeout = 10 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: BatchTimeout,
		},
	}
}

// Publish keys messages by event type so consumers see each type in order.
func (p *Publisher) Publish(ctx context.Context, evt daybook.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Type),
		Value: data,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error { return p.writer.Close() }
