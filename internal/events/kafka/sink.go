// Package kafka publishes ledger events to a Kafka topic, keyed by tenant
// id so per-tenant ordering is preserved across partitions.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/newsroom-hq/creditledger/internal/events"
)

// Sink implements events.Sink on a kafka-go writer.
type Sink struct {
	writer *kafka.Writer
}

// NewSink creates a sink writing to topic on the given brokers.
func NewSink(brokers []string, topic string) *Sink {
	return &Sink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Publish writes one event.
func (s *Sink) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.TenantID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("write event %s: %w", ev.EntryID, err)
	}
	return nil
}

// Close shuts down the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
