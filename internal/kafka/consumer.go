package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
)

const (
	handleAttempts = 3
	retryBackoff   = 500 * time.Millisecond
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkaGo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// Handler processes one message. A returned error makes the consumer retry it.
type Handler func(ctx context.Context, msg kafkaGo.Message) error

// Consumer reads a topic as part of a consumer group and commits each message after it
// has been handled.
type Consumer struct {
	r       messageReader
	log     *slog.Logger
	backoff time.Duration
}

// NewReader creates a Kafka reader for topic in consumer group groupID.
func NewReader(brokers []string, topic, groupID string) *kafkaGo.Reader {
	return kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
}

// NewConsumer returns a Consumer for topic on brokers.
func NewConsumer(brokers []string, topic, groupID string, log *slog.Logger) *Consumer {
	return &Consumer{r: NewReader(brokers, topic, groupID), log: log.With("topic", topic), backoff: retryBackoff}
}

// Run feeds messages to h until ctx is cancelled. A message that still fails after
// handleAttempts tries is logged and committed so it does not block its partition.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer shutting down")
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Error("error reading message", "err", err)
			if !c.wait(ctx, c.backoff) {
				return nil
			}
			continue
		}

		if err := c.handle(ctx, msg, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("message dropped", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafkaGo.Message, h Handler) error {
	var err error
	for attempt := 1; attempt <= handleAttempts; attempt++ {
		if err = h(ctx, msg); err == nil {
			return nil
		}
		c.log.Warn("message handling failed", "offset", msg.Offset, "attempt", attempt, "err", err)
		if attempt < handleAttempts && !c.wait(ctx, time.Duration(attempt)*c.backoff) {
			return ctx.Err()
		}
	}
	return err
}

func (c *Consumer) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.r.Close()
}
