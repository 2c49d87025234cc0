package kafka

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one record. Returning an error stops the consumer:
// business rejections are messages, not errors, so an error here means
// a dependency fault and the partition must not advance past it.
type Handler func(ctx context.Context, key, value []byte) error

// messageSource is the slice of kafka.Reader the consumer drives;
// tests substitute a fake.
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer is a consumer-group reader for one topic. Records within a
// partition are delivered to the handler in arrival order.
type Consumer struct {
	reader messageSource
	log    *zap.Logger
}

// NewConsumer joins groupID on topic, starting from the earliest
// uncommitted offset.
func NewConsumer(brokers []string, groupID, topic string, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     groupID,
			Topic:       topic,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		}),
		log: log.With(zap.String("topic", topic), zap.String("group", groupID)),
	}
}

// Run consumes until ctx is cancelled or the handler faults. A record's
// offset is committed only after its handler returns nil; a faulted
// record stays uncommitted, so the group redelivers it once the fault
// is resolved instead of resuming past a lost ledger mutation.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := handle(ctx, msg.Key, msg.Value); err != nil {
			c.log.Error("handler fault, stopping partition", zap.Error(err))
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
