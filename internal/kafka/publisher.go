// Package kafka publishes order notifications to a Kafka topic and consumes them.
package kafka

import (
	"context"
	"fmt"

	kafkaGo "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// Publisher writes messages to one topic.
type Publisher struct {
	w messageWriter
}

// NewWriter creates a Kafka writer for a specific topic.
func NewWriter(brokers []string, topic string) *kafkaGo.Writer {
	return &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkaGo.Hash{},
		RequiredAcks:           kafkaGo.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewPublisher returns a Publisher for topic on brokers. Messages with the same key land
// on the same partition, so one order's events stay ordered.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{w: NewWriter(brokers, topic)}
}

// Publish writes body under key; attributes become message headers.
func (p *Publisher) Publish(ctx context.Context, key string, body []byte, attributes map[string]string) error {
	msg := kafkaGo.Message{
		Key:   []byte(key),
		Value: body,
	}
	for k, v := range attributes {
		msg.Headers = append(msg.Headers, kafkaGo.Header{Key: k, Value: []byte(v)})
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
