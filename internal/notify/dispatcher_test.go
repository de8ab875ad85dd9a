package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/orders"
	"github.com/imrishuroy/go-storefront-ledger/internal/users"
)

type published struct {
	key   string
	body  []byte
	attrs map[string]string
}

type recordingPublisher struct {
	msgs []published
	err  error
}

func (r *recordingPublisher) Publish(ctx context.Context, key string, body []byte, attrs map[string]string) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, published{key: key, body: body, attrs: attrs})
	return nil
}

type phoneBook map[string]string

func (p phoneBook) GetPhone(ctx context.Context, userID string) (string, error) {
	phone := users.Digits(p[userID])
	if phone == "" {
		return "", apperr.New(apperr.NoPhoneOnFile, "no phone")
	}
	return phone, nil
}

func sampleOrder() *orders.Order {
	return &orders.Order{
		OrderID: "o1",
		UserID:  "u1",
		Version: 1,
		Items: []orders.Line{
			{Name: "Lamp", Quantity: 2, UnitPrice: 90000, LineTotal: 180000},
		},
		DeliveryMethod:  orders.DeliveryHome,
		DeliveryAddress: "123 Main Street",
		CouponCode:      "SAVE20",
		Subtotal:        180000,
		CouponAmount:    36000,
		Total:           144000,
		Status:          orders.StatusPending,
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(KindCreated, sampleOrder(), &users.User{UserID: "u1", Name: "Ana", Email: "ana@example.com", Phone: "300 555"})
	assert.Equal(t, "Ana", s.Customer)
	assert.Equal(t, "ana@example.com", s.Email)
	assert.Equal(t, "SAVE20", s.CouponCode)
	assert.Equal(t, "123 Main Street", s.DeliveryAddress)
	assert.Equal(t, "Pending", s.Status)
	require.Len(t, s.Items, 1)
	assert.Equal(t, 180000.0, s.Items[0].LineTotal)

	text := s.Text()
	assert.True(t, strings.HasPrefix(text, "New order o1"))
	assert.Contains(t, text, "Coupon SAVE20: -36000.00")
	assert.Contains(t, text, "Total: 144000.00")
}

func TestSummarizeFallbacks(t *testing.T) {
	o := sampleOrder()
	o.CouponCode = ""
	o.CouponAmount = 0
	o.DeliveryMethod = orders.DeliveryPickup
	o.DeliveryAddress = ""

	s := Summarize(KindCancelled, o, nil)
	assert.Equal(t, "u1", s.Customer)
	assert.Equal(t, orders.UnknownEmail, s.Email)
	assert.Equal(t, NoCoupon, s.CouponCode)
	assert.Equal(t, PickupAddress, s.DeliveryAddress)
	assert.NotContains(t, s.Text(), "Coupon")
	assert.True(t, strings.HasPrefix(s.Text(), "Order cancelled o1"))
}

func TestSummarizeNamesCustomerByEmail(t *testing.T) {
	o := sampleOrder()

	s := Summarize(KindCreated, o, &users.User{UserID: "u1", Email: "carla.r@example.com"})
	assert.Equal(t, "carla.r", s.Customer)

	o.UserEmail = "ana@example.com"
	assert.Equal(t, "ana", Summarize(KindUpdated, o, nil).Customer)

	o.UserEmail = orders.UnknownEmail
	assert.Equal(t, "u1", Summarize(KindUpdated, o, nil).Customer)
}

func TestDispatch(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(phoneBook{"u1": "+57 300-555-1234"}, pub)
	summary := Summarize(KindCreated, sampleOrder(), nil)

	require.NoError(t, d.Dispatch(context.Background(), "u1", summary))
	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "o1:created:1", msg.key)
	assert.Equal(t, "created", msg.attrs["kind"])

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.body, &env))
	assert.Equal(t, "573005551234", env.Phone)
	assert.Equal(t, "o1", env.Summary.OrderID)
}

func TestDispatchWithoutPhonePublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(phoneBook{"u1": "none"}, pub)

	err := d.Dispatch(context.Background(), "u1", Summarize(KindCreated, sampleOrder(), nil))
	assert.True(t, errors.Is(err, apperr.ErrNoPhoneOnFile))
	assert.Empty(t, pub.msgs)
}

func TestDispatchTransportFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("queue down")}
	d := NewDispatcher(phoneBook{"u1": "300"}, pub)

	err := d.Dispatch(context.Background(), "u1", Summarize(KindCreated, sampleOrder(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue down")
}

func TestDeepLink(t *testing.T) {
	link := DeepLink("+57 300", "Hello & welcome")
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "api.whatsapp.com", u.Host)
	assert.Equal(t, "/send", u.Path)
	assert.Equal(t, "57300", u.Query().Get("phone"))
	assert.Equal(t, "Hello & welcome", u.Query().Get("text"))
}
