package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// MessageKeyAttr carries the de-duplication key consumers claim before delivering.
const MessageKeyAttr = "message_key"

// groupAttr names the attribute used as the FIFO message group, so the notifications of
// one order are delivered in the order they were published.
const groupAttr = "order_id"

// Publisher sends order notifications to an SQS queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to queueURL. A ".fifo" queue gets group and
// de-duplication ids on every message.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Publish sends body with attributes as String message attributes. key is sent as the
// message_key attribute.
func (p *Publisher) Publish(ctx context.Context, key string, body []byte, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: stringPtr(string(body)),
	}

	attrs := make(map[string]sqstypes.MessageAttributeValue, len(attributes)+1)
	for k, v := range attributes {
		attrs[k] = stringAttr(v)
	}
	if key != "" {
		attrs[MessageKeyAttr] = stringAttr(key)
	}
	if len(attrs) > 0 {
		input.MessageAttributes = attrs
	}

	if p.fifo {
		group := attributes[groupAttr]
		if group == "" {
			group = "orders"
		}
		input.MessageGroupId = stringPtr(group)
		if key != "" {
			input.MessageDeduplicationId = stringPtr(key)
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message to %s: %w", p.QueueURL, err)
	}
	return nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{DataType: stringPtr("String"), StringValue: stringPtr(v)}
}

func stringPtr(s string) *string { return &s }
