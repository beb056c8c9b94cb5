// Package kafka wraps the franz-go producer used for the audit stream.
package kafka

import (
	"context"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes records asynchronously. Delivery failures are logged,
// never surfaced to callers; the audit stream is an observability channel,
// not part of any operation's outcome.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewProducer connects to the given brokers. An empty broker list returns
// a nil producer, which every caller tolerates.
func NewProducer(brokers []string, logger *slog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	return &Producer{client: client, logger: logger}, nil
}

// Produce enqueues one record. Safe on a nil Producer.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) {
	if p == nil {
		return
	}
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("audit record delivery failed", "topic", r.Topic, "error", err)
		}
	})
}

// Close flushes pending records and releases the client. Safe on nil.
func (p *Producer) Close() {
	if p == nil {
		return
	}
	p.client.Close()
}
