package notify

import (
	"fmt"
	"strings"

	"github.com/imrishuroy/go-storefront-ledger/internal/orders"
	"github.com/imrishuroy/go-storefront-ledger/internal/users"
)

// Kind says which order event a summary describes.
type Kind string

const (
	KindCreated   Kind = "created"
	KindUpdated   Kind = "updated"
	KindCancelled Kind = "cancelled"
)

// NoCoupon is shown when the order carries no coupon.
const NoCoupon = "none"

// PickupAddress is shown instead of an address for store pickup.
const PickupAddress = "store pickup"

// Item is one summarized order line.
type Item struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// Summary is the structured, transport-neutral description of an order event.
type Summary struct {
	Kind            Kind    `json:"kind"`
	OrderID         string  `json:"order_id"`
	Revision        int     `json:"revision"` // order version the summary was taken at
	Customer        string  `json:"customer"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	Items           []Item  `json:"items"`
	Subtotal        float64 `json:"subtotal"`
	CouponCode      string  `json:"coupon_code"`
	CouponAmount    float64 `json:"coupon_amount"`
	Total           float64 `json:"total"`
	DeliveryMethod  string  `json:"delivery_method"`
	DeliveryAddress string  `json:"delivery_address"`
	Status          string  `json:"status"`
}

// Summarize builds the summary of o. user may be nil; the order's own denormalized
// contact fields are used then.
func Summarize(kind Kind, o *orders.Order, user *users.User) Summary {
	s := Summary{
		Kind:           kind,
		OrderID:        o.OrderID,
		Revision:       o.Version,
		Email:          o.UserEmail,
		Phone:          o.UserPhone,
		Subtotal:       o.Subtotal,
		CouponCode:     o.CouponCode,
		CouponAmount:   o.CouponAmount,
		Total:          o.Total,
		DeliveryMethod: o.DeliveryMethod,
		Status:         o.Status.Label(),
	}
	if user != nil {
		if user.Name != "" {
			s.Customer = user.Name
		}
		if user.Email != "" {
			s.Email = user.Email
		}
		if user.Phone != "" {
			s.Phone = user.Phone
		}
	}
	if s.Customer == "" {
		s.Customer = customerFromEmail(s.Email, o.UserID)
	}
	if s.Email == "" {
		s.Email = orders.UnknownEmail
	}
	if s.CouponCode == "" {
		s.CouponCode = NoCoupon
	}
	s.DeliveryAddress = o.DeliveryAddress
	if o.DeliveryMethod == orders.DeliveryPickup || s.DeliveryAddress == "" {
		s.DeliveryAddress = PickupAddress
	}
	for _, l := range o.Items {
		s.Items = append(s.Items, Item{
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		})
	}
	return s
}

var headlines = map[Kind]string{
	KindCreated:   "New order",
	KindUpdated:   "Order updated",
	KindCancelled: "Order cancelled",
}

// Text renders the summary as a plain-text message.
func (s Summary) Text() string {
	var b strings.Builder
	headline, ok := headlines[s.Kind]
	if !ok {
		headline = "Order"
	}
	fmt.Fprintf(&b, "%s %s\n", headline, s.OrderID)
	fmt.Fprintf(&b, "Customer: %s\n", s.Customer)
	fmt.Fprintf(&b, "Email: %s\n", s.Email)
	if s.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", s.Phone)
	}
	b.WriteString("\nItems:\n")
	for _, it := range s.Items {
		fmt.Fprintf(&b, "- %s x%d @ %.2f = %.2f\n", it.Name, it.Quantity, it.UnitPrice, it.LineTotal)
	}
	fmt.Fprintf(&b, "\nSubtotal: %.2f\n", s.Subtotal)
	if s.CouponCode != NoCoupon {
		fmt.Fprintf(&b, "Coupon %s: -%.2f\n", s.CouponCode, s.CouponAmount)
	}
	fmt.Fprintf(&b, "Total: %.2f\n", s.Total)
	fmt.Fprintf(&b, "Delivery: %s (%s)\n", s.DeliveryMethod, s.DeliveryAddress)
	fmt.Fprintf(&b, "Status: %s", s.Status)
	return b.String()
}

// customerFromEmail names a customer by the local part of their email, or by their id
// when no usable email is known.
func customerFromEmail(email, userID string) string {
	if email == "" || email == orders.UnknownEmail {
		return userID
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return userID
}
