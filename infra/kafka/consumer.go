// Package kafka carries order intents into the engine. One consumer group
// member per process; partitioning by market ID upstream keeps every
// market's events on a single partition, which preserves the sequential
// ordering the single-writer engine depends on.
package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HandleFunc processes one inbound message. Returning an error skips the
// commit so the message is redelivered.
type HandleFunc func(ctx context.Context, key, value []byte) error

type Consumer struct {
	reader  *kafka.Reader
	handler HandleFunc
	log     *zap.SugaredLogger
}

func NewConsumer(brokers []string, topic, groupID string, handler HandleFunc, log *zap.SugaredLogger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // explicit commits only
		}),
		handler: handler,
		log:     log,
	}
}

// Run fetches, handles, and commits messages until the context ends.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		start := time.Now()
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.log.Errorw("order event failed, leaving uncommitted",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Errorw("commit failed", "offset", msg.Offset, "error", err)
			continue
		}
		c.log.Debugw("order event handled",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"took", time.Since(start),
		)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
