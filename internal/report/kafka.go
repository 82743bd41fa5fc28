package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaFlusher writes results to a Kafka topic, one JSON message per
// result keyed by run id.
type KafkaFlusher struct {
	writer messageWriter
}

// NewKafkaFlusher creates a flusher for the configured brokers and topic.
func NewKafkaFlusher(cfg config.KafkaConfig) *KafkaFlusher {
	return &KafkaFlusher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// FlushResults implements Flusher.
func (f *KafkaFlusher) FlushResults(ctx context.Context, results []models.CheckResult) error {
	if len(results) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(results))
	for _, res := range results {
		value, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encode result %s: %w", res.CheckID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(res.RunID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "suite", Value: []byte(res.Suite)},
				{Key: "status", Value: []byte(res.Status)},
			},
		})
	}

	if err := f.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write results to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (f *KafkaFlusher) Close() error {
	return f.writer.Close()
}
