package orders

import (
	"strings"
	"time"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
)

// Status is an order lifecycle state.
type Status string

// Order statuses, in lifecycle order.
const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
)

var lifecycle = []Status{StatusPending, StatusShipped, StatusDelivered}

func (s Status) rank() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s.rank() >= 0 }

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return s == StatusDelivered }

// Label is the customer-facing name of the status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusShipped:
		return "Shipped"
	case StatusDelivered:
		return "Delivered"
	}
	return string(s)
}

// Next returns the status that follows s.
func Next(s Status) (Status, error) {
	r := s.rank()
	switch {
	case r < 0:
		return "", apperr.New(apperr.InvalidStatus, "unknown order status %q", s)
	case r == len(lifecycle)-1:
		return "", apperr.New(apperr.AlreadyTerminal, "order is already %s", s)
	}
	return lifecycle[r+1], nil
}

// CanMove reports whether an order may go from one status to another: staying put or
// moving forward.
func CanMove(from, to Status) bool {
	return from.Valid() && to.Valid() && to.rank() >= from.rank()
}

// Delivery methods.
const (
	DeliveryHome   = "home-delivery"
	DeliveryPickup = "store-pickup"
)

// MinAddressLength is the minimum trimmed length of a home-delivery address.
const MinAddressLength = 10

// ValidateDelivery checks the delivery pair and returns the address to store: trimmed for
// home delivery, empty for pickup.
func ValidateDelivery(method, address string) (string, error) {
	switch method {
	case DeliveryHome:
		addr := strings.TrimSpace(address)
		if len([]rune(addr)) < MinAddressLength {
			return "", apperr.New(apperr.InvalidAddress, "delivery address must be at least %d characters", MinAddressLength)
		}
		return addr, nil
	case DeliveryPickup:
		return "", nil
	}
	return "", apperr.New(apperr.InvalidDeliveryMethod, "delivery method must be %s or %s", DeliveryHome, DeliveryPickup)
}

// Line is a product snapshot frozen into an order.
type Line struct {
	ProductID     string  `dynamodbav:"product_id" json:"product_id"`
	Name          string  `dynamodbav:"name" json:"name"`
	Quantity      int     `dynamodbav:"quantity" json:"quantity"`
	UnitPrice     float64 `dynamodbav:"unit_price" json:"unit_price"` // after the item discount
	OriginalPrice float64 `dynamodbav:"original_price" json:"original_price"`
	Discount      float64 `dynamodbav:"discount" json:"discount"`
	LineTotal     float64 `dynamodbav:"line_total" json:"line_total"`
}

// StatusChange is one entry of an order's append-only history.
type StatusChange struct {
	Status Status    `dynamodbav:"status" json:"status"`
	At     time.Time `dynamodbav:"at" json:"at"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID         string         `dynamodbav:"order_id" json:"id"` // PK
	UserID          string         `dynamodbav:"user_id" json:"user_id"`
	UserEmail       string         `dynamodbav:"user_email,omitempty" json:"user_email,omitempty"`
	UserPhone       string         `dynamodbav:"user_phone,omitempty" json:"user_phone,omitempty"`
	Items           []Line         `dynamodbav:"items" json:"items"`
	DeliveryMethod  string         `dynamodbav:"delivery_method" json:"delivery_method"`
	DeliveryAddress string         `dynamodbav:"delivery_address,omitempty" json:"delivery_address,omitempty"`
	CouponCode      string         `dynamodbav:"coupon_code,omitempty" json:"coupon_code,omitempty"`
	CouponFraction  float64        `dynamodbav:"coupon_fraction" json:"coupon_fraction"`
	Subtotal        float64        `dynamodbav:"subtotal" json:"subtotal"`
	CouponAmount    float64        `dynamodbav:"coupon_amount" json:"coupon_amount"`
	Total           float64        `dynamodbav:"total" json:"total"`
	Status          Status         `dynamodbav:"status" json:"status"`
	StatusHistory   []StatusChange `dynamodbav:"status_history" json:"status_history"`
	Version         int            `dynamodbav:"version" json:"version"`
	IdempotencyKey  string         `dynamodbav:"idempotency_key,omitempty" json:"-"`
	CreatedAt       time.Time      `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `dynamodbav:"updated_at" json:"updated_at"`
}

// Quantities sums the ordered quantity per product.
func (o *Order) Quantities() map[string]int {
	out := make(map[string]int, len(o.Items))
	for _, l := range o.Items {
		out[l.ProductID] += l.Quantity
	}
	return out
}

// Identity fallbacks used when the user directory cannot resolve the owner.
const (
	UnknownEmail = "unknown"
	UnknownPhone = ""
)
