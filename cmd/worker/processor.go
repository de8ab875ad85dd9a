package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/imrishuroy/go-storefront-ledger/internal/idempotency"
	"github.com/imrishuroy/go-storefront-ledger/internal/logging"
	"github.com/imrishuroy/go-storefront-ledger/internal/notify"
)

// Deliverer hands a prepared messaging link to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, phone, link string) error
}

// logDeliverer writes the link to the log; an operator or a downstream tool opens it.
type logDeliverer struct {
	log *slog.Logger
}

func (d logDeliverer) Deliver(_ context.Context, phone, link string) error {
	d.log.Info("notification link ready", "phone", phone, "link", link)
	return nil
}

// Processor turns notification envelopes into messaging links, at most once per message key.
type Processor struct {
	idempStore *idempotency.Store
	deliverer  Deliverer
	log        *slog.Logger
}

// NewProcessor creates a worker processor. A nil deliverer logs the links.
func NewProcessor(idempStore *idempotency.Store, deliverer Deliverer) *Processor {
	log := logging.New("worker")
	if deliverer == nil {
		deliverer = logDeliverer{log: log}
	}
	return &Processor{idempStore: idempStore, deliverer: deliverer, log: log}
}

// Handle processes an SQS batch. Failed records are reported individually so only they
// are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error("worker error", "message_id", rec.MessageId, "err", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

// HandleKafka processes one record from the notifications topic.
func (p *Processor) HandleKafka(ctx context.Context, msg kafkaGo.Message) error {
	return p.process(ctx, kafkaSource, kafkaMessageKey(msg), msg.Value)
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	return p.process(ctx, dedupeSource, messageKey(rec), []byte(rec.Body))
}

func (p *Processor) process(ctx context.Context, source, msgKey string, body []byte) error {
	var env notify.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	key := idempotency.Key(idempotency.ScopeNotify, source, msgKey)
	log := p.log.With("order_id", env.Summary.OrderID, "kind", env.Summary.Kind, "dedupe_key", key)

	proceed, err := p.claim(ctx, key, env.Summary.OrderID)
	if err != nil {
		return err
	}
	if !proceed {
		log.Info("duplicate notification skipped")
		return nil
	}

	if env.Phone == "" {
		// Nothing a retry could fix.
		if err := p.idempStore.MarkFailed(ctx, key, "no phone on file"); err != nil {
			return fmt.Errorf("failed to update idempotency: %w", err)
		}
		log.Warn("notification dropped, no phone")
		return nil
	}

	link := notify.DeepLink(env.Phone, env.Summary.Text())
	if err := p.deliverer.Deliver(ctx, env.Phone, link); err != nil {
		if merr := p.idempStore.MarkFailed(ctx, key, fmt.Sprintf("deliver: %v", err)); merr != nil {
			log.Error("failed to mark notification failed", "err", merr)
		}
		return fmt.Errorf("deliver notification: %w", err)
	}

	body, err = json.Marshal(map[string]string{"link": link})
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := p.idempStore.MarkDone(ctx, key, string(body), http.StatusOK); err != nil {
		return fmt.Errorf("failed to update idempotency: %w", err)
	}
	log.Info("notification delivered")
	return nil
}

// claim takes ownership of key. It reports false when the message was already handled or
// is being handled elsewhere.
func (p *Processor) claim(ctx context.Context, key, orderID string) (bool, error) {
	created, err := p.idempStore.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		return false, fmt.Errorf("create idempotency record: %w", err)
	}
	if created {
		return true, nil
	}

	rec, err := p.idempStore.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read idempotency record: %w", err)
	}
	if rec == nil {
		return false, fmt.Errorf("idempotency record %s vanished", key)
	}
	switch rec.Status {
	case idempotency.StatusDone:
		return false, nil
	case idempotency.StatusFailed:
		return p.idempStore.Reclaim(ctx, key)
	case idempotency.StatusInProgress:
		// Another invocation owns it; redelivery will find it DONE or FAILED.
		return false, fmt.Errorf("notification %s is in progress elsewhere", key)
	}
	return false, fmt.Errorf("unknown idempotency status %q", rec.Status)
}
