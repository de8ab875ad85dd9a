package kafka

import (
	"context"
	"errors"
	"testing"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs   []kafkaGo.Message
	err    error
	closed bool
}

func (c *captureWriter) WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &captureWriter{}
	p := &Publisher{w: w}

	err := p.Publish(context.Background(), "o1:created:1", []byte(`{"phone":"1"}`), map[string]string{"kind": "created"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "o1:created:1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"phone":"1"}`, string(w.msgs[0].Value))
	require.Len(t, w.msgs[0].Headers, 1)
	assert.Equal(t, "kind", w.msgs[0].Headers[0].Key)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishError(t *testing.T) {
	p := &Publisher{w: &captureWriter{err: errors.New("no leader")}}
	err := p.Publish(context.Background(), "k", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no leader")
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "order-notifications")
	assert.Equal(t, "order-notifications", w.Topic)
}
