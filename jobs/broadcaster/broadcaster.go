// Package broadcaster drains the settlement outbox onto the bus.
// Delivery is at-least-once: a record is marked SENT before the
// publish and ACKED only after the broker confirms it, so a crash
// between the two replays the record on the next pass.
package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"helios/infra/outbox"
)

// Broadcaster periodically walks pending outbox records and publishes
// them with a sync producer.
type Broadcaster struct {
	out         *outbox.Outbox
	producer    sarama.SyncProducer
	interval    time.Duration
	resendAfter time.Duration
	log         *zap.Logger
}

// New connects the sync producer.
func New(out *outbox.Outbox, brokers []string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(out, producer, interval, log), nil
}

// NewWithProducer wires an existing producer; tests inject a mock one.
func NewWithProducer(out *outbox.Outbox, producer sarama.SyncProducer, interval time.Duration, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		out:         out,
		producer:    producer,
		interval:    interval,
		resendAfter: 10 * interval,
		log:         log,
	}
}

// Run flushes on a ticker until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started", zap.Duration("interval", b.interval))
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.flushOnce()
		}
	}
}

func (b *Broadcaster) flushOnce() {
	_ = b.out.ScanByState(outbox.StateNew, b.publish)

	// Requeue records whose publish never got acked.
	cutoff := time.Now().Add(-b.resendAfter).UnixNano()
	_ = b.out.ScanByState(outbox.StateSent, func(rec outbox.Record) error {
		if rec.LastAttempt > cutoff {
			return nil
		}
		return b.publish(rec)
	})

	if err := b.out.Purge(); err != nil {
		b.log.Warn("outbox purge failed", zap.Error(err))
	}
}

func (b *Broadcaster) publish(rec outbox.Record) error {
	if err := b.out.MarkSent(rec.Seq); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: rec.Topic,
		Key:   sarama.StringEncoder(rec.Key),
		Value: sarama.ByteEncoder(rec.Payload),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		b.log.Warn("publish failed, will retry",
			zap.Uint64("seq", rec.Seq),
			zap.String("topic", rec.Topic),
			zap.Error(err))
		return nil // stays SENT, picked up by the requeue pass
	}

	return b.out.MarkAcked(rec.Seq)
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
