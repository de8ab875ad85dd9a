// Package session holds the per-user cart and applied-coupon context between requests.
package session

import (
	"context"
	"strings"
	"time"
)

// CartLine is one product in a cart. Prices are captured when the line is reserved and
// are re-read from the catalog at checkout.
type CartLine struct {
	ProductID     string  `json:"product_id"`
	Name          string  `json:"name"`
	Quantity      int     `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"` // after the item discount
	OriginalPrice float64 `json:"original_price"`
	Discount      float64 `json:"discount"`
}

// AppliedCoupon is the discount context set by a successful coupon validation.
type AppliedCoupon struct {
	Code        string    `json:"code"`
	Discount    float64   `json:"discount"`
	Description string    `json:"description,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	AppliedAt   time.Time `json:"applied_at"`
}

// State is everything a user's session carries.
type State struct {
	UserID    string         `json:"user_id"`
	Cart      []CartLine     `json:"cart"`
	Coupon    *AppliedCoupon `json:"coupon,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Line returns the cart line for productID, or nil.
func (s *State) Line(productID string) *CartLine {
	for i := range s.Cart {
		if s.Cart[i].ProductID == productID {
			return &s.Cart[i]
		}
	}
	return nil
}

// PutLine inserts or replaces the line keyed by its product id.
func (s *State) PutLine(line CartLine) {
	if existing := s.Line(line.ProductID); existing != nil {
		*existing = line
		return
	}
	s.Cart = append(s.Cart, line)
}

// RemoveLine drops the line for productID. It reports whether a line was removed.
func (s *State) RemoveLine(productID string) bool {
	for i := range s.Cart {
		if s.Cart[i].ProductID == productID {
			s.Cart = append(s.Cart[:i], s.Cart[i+1:]...)
			return true
		}
	}
	return false
}

// SetCoupon replaces the applied coupon.
func (s *State) SetCoupon(c AppliedCoupon) {
	c.Code = strings.ToUpper(c.Code)
	s.Coupon = &c
}

// ClearCoupon drops the applied coupon.
func (s *State) ClearCoupon() { s.Coupon = nil }

// CouponMatches reports whether code equals the applied coupon, ignoring case.
func (s *State) CouponMatches(code string) bool {
	return s.Coupon != nil && strings.EqualFold(s.Coupon.Code, strings.TrimSpace(code))
}

// Store persists session state. Load returns an empty state for unknown users.
type Store interface {
	Load(ctx context.Context, userID string) (*State, error)
	Save(ctx context.Context, state *State) error
	Clear(ctx context.Context, userID string) error
}
