package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/asbelov/alepiz-sub006/internal/engine"
	"github.com/asbelov/alepiz-sub006/internal/kafkautil"
	"github.com/asbelov/alepiz-sub006/internal/rules"
)

// Engine is the part of *engine.Engine the consumer drives.
type Engine interface {
	Occurred(ctx context.Context, o engine.Occurrence) (engine.Result, error)
	Solved(ctx context.Context, s engine.Solution) (engine.Result, error)
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer applies evaluations read from Kafka.
type Consumer struct {
	reader messageReader
	engine Engine
	rules  rules.Set
	topic  string
}

// NewConsumer creates a consumer in group groupID on a comma-separated
// broker list.
func NewConsumer(brokers, topic, groupID string, e Engine, rs rules.Set) (*Consumer, error) {
	if brokers == "" {
		return nil, fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("groupID cannot be empty")
	}

	brokerList := kafkautil.ParseBrokers(brokers)
	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	// Offsets are committed explicitly after each applied message.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokerList,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     kafkautil.ReadTimeout,
		StartOffset: kafka.FirstOffset,
	})

	return newConsumer(reader, topic, e, rs), nil
}

func newConsumer(r messageReader, topic string, e Engine, rs rules.Set) *Consumer {
	if rs == nil {
		rs = rules.Set{}
	}
	return &Consumer{reader: r, engine: e, rules: rs, topic: topic}
}

// Run consumes until ctx is cancelled or the engine fails. A cancelled
// context is a clean stop and returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("Starting evaluation consumer", "topic", c.topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Evaluation consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to read message from Kafka: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// handle applies one message. Only errors worth retrying are returned.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	ev, err := Decode(msg.Value)
	if err != nil {
		slog.Error("dropping malformed evaluation",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	res, err := c.Apply(ctx, ev)
	switch {
	case err == nil:
		slog.Debug("evaluation applied", "ocid", ev.OCID, "value", ev.Value, "outcome", res.Outcome)
		return nil
	case engine.IsInvalidOccurrence(err):
		slog.Error("dropping invalid evaluation",
			"ocid", ev.OCID,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	case errors.Is(err, engine.ErrStopped):
		return err
	default:
		return fmt.Errorf("apply evaluation of OCID %d at offset %d: %w", ev.OCID, msg.Offset, err)
	}
}

// Apply runs one evaluation through the rules and the engine.
func (c *Consumer) Apply(ctx context.Context, ev Evaluation) (engine.Result, error) {
	if ev.Value {
		o := ev.Occurrence()
		c.rules.Apply(&o)
		return c.engine.Occurred(ctx, o)
	}

	s := ev.Solution()
	c.rules.ApplySolution(ev.CounterID, &s)
	return c.engine.Solved(ctx, s)
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "error", err)
		return err
	}
	return nil
}
