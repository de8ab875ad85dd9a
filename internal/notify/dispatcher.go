// Package notify turns finalized orders into summaries and hands them to the messaging
// transport.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/users"
)

// Envelope is the message published for the worker.
type Envelope struct {
	Phone   string  `json:"phone"` // digits only
	Summary Summary `json:"summary"`
}

// Publisher is a message transport. *aws.Publisher and *kafka.Publisher satisfy it.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte, attributes map[string]string) error
}

// PhoneBook resolves a user's phone.
type PhoneBook interface {
	GetPhone(ctx context.Context, userID string) (string, error)
}

// Dispatcher publishes order summaries to their owner's phone.
type Dispatcher struct {
	phones PhoneBook
	pub    Publisher
}

// NewDispatcher returns a Dispatcher.
func NewDispatcher(phones PhoneBook, pub Publisher) *Dispatcher {
	return &Dispatcher{phones: phones, pub: pub}
}

// Dispatch publishes summary for userID. NoPhoneOnFile is returned when the user has no
// usable phone; nothing is published then.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, summary Summary) error {
	phone, err := d.phones.GetPhone(ctx, userID)
	if err != nil {
		return err
	}
	phone = users.Digits(phone)
	if phone == "" {
		return apperr.New(apperr.NoPhoneOnFile, "user %s has no phone on file", userID)
	}

	body, err := json.Marshal(Envelope{Phone: phone, Summary: summary})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	attrs := map[string]string{
		"order_id": summary.OrderID,
		"kind":     string(summary.Kind),
	}
	key := fmt.Sprintf("%s:%s:%d", summary.OrderID, summary.Kind, summary.Revision)
	if err := d.pub.Publish(ctx, key, body, attrs); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	return nil
}

// DeepLink builds the messaging link that opens a chat with phone prefilled with text.
func DeepLink(phone, text string) string {
	q := url.Values{}
	q.Set("phone", users.Digits(phone))
	q.Set("text", text)
	return "https://api.whatsapp.com/send?" + q.Encode()
}
