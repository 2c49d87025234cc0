// Package kafka wraps the message bus: one Producer per outbound topic
// and a consumer-group Reader loop per inbound stream.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer writes records to a single topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer builds a synchronous producer requiring acks from all
// replicas.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Send publishes one record.
func (p *Producer) Send(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
