package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"bloodtrace/internal/platform/kafka"
)

// KafkaSink appends events to a Kafka topic, keyed by actor so one
// identity's trail stays ordered within a partition.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaSink creates a sink over the given producer.
func NewKafkaSink(producer *kafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// Append implements Sink.
func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	s.producer.Produce(ctx, s.topic, []byte(event.Actor), value)
	return nil
}
