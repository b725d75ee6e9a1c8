package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/asbelov/alepiz-sub006/internal/kafkautil"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each mutation of a batch as one Kafka message.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// mutationMessage is the JSON value of a replicated mutation.
type mutationMessage struct {
	BatchID string         `json:"batch_id"`
	Table   string         `json:"table"`
	Op      string         `json:"op"`
	Key     string         `json:"key"`
	Values  map[string]any `json:"values,omitempty"`
	At      time.Time      `json:"at"`
}

// NewKafkaSink creates a sink writing to topic on a comma-separated broker list.
func NewKafkaSink(brokers, topic string) (*KafkaSink, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkautil.ParseBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same row, same partition
		WriteTimeout: kafkautil.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	slog.Info("Kafka replication sink initialized", "brokers", brokers, "topic", topic)

	return &KafkaSink{writer: writer, topic: topic}, nil
}

// Send writes every mutation of b in one request.
func (k *KafkaSink) Send(ctx context.Context, b store.Batch) error {
	msgs := make([]kafka.Message, 0, len(b.Mutations))
	for _, m := range b.Mutations {
		msg, err := buildMessage(b.ID, m)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write batch %s to topic %s: %w", b.ID, k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	slog.Info("Closing Kafka replication sink", "topic", k.topic)
	return k.writer.Close()
}

func buildMessage(batchID string, m store.Mutation) (kafka.Message, error) {
	value, err := json.Marshal(mutationMessage{
		BatchID: batchID,
		Table:   m.Table,
		Op:      m.Op,
		Key:     m.Key,
		Values:  m.Values,
		At:      m.At,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s mutation of %s %s: %w", m.Op, m.Table, m.Key, err)
	}

	return kafka.Message{
		Key:   []byte(m.Table + ":" + m.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "batch_id", Value: []byte(batchID)},
			{Key: "op", Value: []byte(m.Op)},
		},
		Time: m.At,
	}, nil
}
