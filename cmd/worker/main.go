package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-storefront-ledger/internal/aws"
	"github.com/imrishuroy/go-storefront-ledger/internal/config"
	"github.com/imrishuroy/go-storefront-ledger/internal/idempotency"
	"github.com/imrishuroy/go-storefront-ledger/internal/kafka"
	"github.com/imrishuroy/go-storefront-ledger/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Base().Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := logging.Init("storefront-worker", cfg.LogFile, logging.ParseLevel(cfg.LogLevel))

	clients, err := aws.NewClients(context.Background(), cfg.AWSRegion)
	if err != nil {
		log.Error("failed to init aws clients", "err", err)
		os.Exit(1)
	}
	p := NewProcessor(idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL), nil)

	// Kafka has no Lambda trigger here, so the worker runs as a long-lived consumer.
	if cfg.NotifyTransport == config.TransportKafka {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, log)
		defer func() {
			if err := consumer.Close(); err != nil {
				log.Warn("kafka reader close failed", "err", err)
			}
		}()
		log.Info("consuming notifications", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
		if err := consumer.Run(ctx, p.HandleKafka); err != nil {
			log.Error("kafka consumer stopped", "err", err)
			os.Exit(1)
		}
		return
	}

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"phone":"15550100","summary":{"kind":"created","order_id":"local-order-1","revision":1,"customer":"local","items":[]}}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: testBody},
			},
		}
		resp, err := p.Handle(context.Background(), event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Error("local handler error", "err", err, "failures", len(resp.BatchItemFailures))
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
