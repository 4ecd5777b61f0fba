// Package broadcaster drains the execution-report outbox to Kafka.
// Delivery is at-least-once: a record is marked SENT before the publish and
// ACKED after the broker confirms, so a crash between the two republishes
// the report on the next scan.
package broadcaster

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/GuardainDev/opinion-trade-orderbook/infra/outbox"
)

type Broadcaster struct {
	box      *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.SugaredLogger
}

func New(box *outbox.Outbox, brokers []string, topic string, interval time.Duration, log *zap.SugaredLogger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		box:      box,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}, nil
}

// Run scans the outbox on a ticker until the context ends.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Infow("broadcaster started", "topic", b.topic, "interval", b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainOnce()
		}
	}
}

func (b *Broadcaster) drainOnce() {
	err := b.box.ScanPending(func(rec *outbox.Record) error {
		now := time.Now().UnixNano()

		if err := b.box.MarkSent(rec.Seq, now); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(keyFor(rec.Seq)),
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warnw("publish failed, will retry", "seq", rec.Seq, "error", err)
			return b.box.MarkFailed(rec.Seq, now)
		}

		return b.box.MarkAcked(rec.Seq, now)
	})
	if err != nil {
		b.log.Errorw("outbox scan failed", "error", err)
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}

func keyFor(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}
