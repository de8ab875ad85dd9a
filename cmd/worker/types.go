package main

import (
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/imrishuroy/go-storefront-ledger/internal/aws"
)

const messageKeyAttr = aws.MessageKeyAttr

// Transport names used in notification dedupe keys.
const (
	dedupeSource = "sqs"
	kafkaSource  = "kafka"
)

// messageKey returns the publisher's dedupe key, falling back to the SQS message id.
func messageKey(rec events.SQSMessage) string {
	if attr, ok := rec.MessageAttributes[messageKeyAttr]; ok && attr.StringValue != nil && *attr.StringValue != "" {
		return *attr.StringValue
	}
	return rec.MessageId
}

// kafkaMessageKey returns the publisher's dedupe key, falling back to the record position.
func kafkaMessageKey(msg kafkaGo.Message) string {
	if len(msg.Key) > 0 {
		return string(msg.Key)
	}
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}
