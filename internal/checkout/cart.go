package checkout

import (
	"context"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/pricing"
	"github.com/imrishuroy/go-storefront-ledger/internal/promo"
	"github.com/imrishuroy/go-storefront-ledger/internal/session"
)

// CartLineView is a cart line with its derived amounts.
type CartLineView struct {
	session.CartLine
	LineTotal        float64 `json:"line_total"`
	CombinedDiscount float64 `json:"combined_discount"` // item and coupon together, display only
}

// CartView is a priced cart.
type CartView struct {
	Lines        []CartLineView         `json:"lines"`
	Coupon       *session.AppliedCoupon `json:"coupon,omitempty"`
	Subtotal     float64                `json:"subtotal"`
	CouponAmount float64                `json:"coupon_amount"`
	Total        float64                `json:"total"`
}

func viewOf(st *session.State) *CartView {
	couponFraction := pricing.FromFloat(0)
	if st.Coupon != nil {
		couponFraction = pricing.FromFloat(st.Coupon.Discount)
	}
	v := &CartView{Lines: []CartLineView{}, Coupon: st.Coupon}
	lines := make([]pricing.Line, 0, len(st.Cart))
	for _, cl := range st.Cart {
		pl := pricing.Line{UnitPrice: pricing.FromFloat(cl.UnitPrice), Quantity: cl.Quantity}
		lines = append(lines, pl)
		v.Lines = append(v.Lines, CartLineView{
			CartLine:         cl,
			LineTotal:        pricing.Money(pl.Total()),
			CombinedDiscount: pricing.CombinedDiscountFraction(pricing.FromFloat(cl.Discount), couponFraction).Round(4).InexactFloat64(),
		})
	}
	totals := pricing.Compute(lines, couponFraction)
	v.Subtotal = pricing.Money(totals.Subtotal)
	v.CouponAmount = pricing.Money(totals.CouponDiscount)
	v.Total = pricing.Money(totals.Total)
	return v
}

// Cart returns the user's priced cart.
func (s *Service) Cart(ctx context.Context, userID string) (*CartView, error) {
	st, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	return viewOf(st), nil
}

// AddToCart adds qty of a product to the cart.
func (s *Service) AddToCart(ctx context.Context, userID, productID string, qty int) (*CartView, error) {
	return s.reserve(ctx, userID, productID, qty, false)
}

// SetCartQuantity replaces the quantity of a cart line. Zero removes the line.
func (s *Service) SetCartQuantity(ctx context.Context, userID, productID string, qty int) (*CartView, error) {
	if qty == 0 {
		return s.RemoveFromCart(ctx, userID, productID)
	}
	return s.reserve(ctx, userID, productID, qty, true)
}

func (s *Service) reserve(ctx context.Context, userID, productID string, qty int, replace bool) (*CartView, error) {
	if qty <= 0 {
		return nil, apperr.New(apperr.InvalidInput, "quantity must be positive")
	}
	st, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.ReserveForCart(ctx, st, productID, qty, replace); err != nil {
		return nil, err
	}
	if err := s.saveSession(ctx, st); err != nil {
		return nil, err
	}
	return viewOf(st), nil
}

// RemoveFromCart drops a product from the cart.
func (s *Service) RemoveFromCart(ctx context.Context, userID, productID string) (*CartView, error) {
	st, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !st.RemoveLine(productID) {
		return nil, apperr.New(apperr.NotFound, "product %s is not in the cart", productID)
	}
	if err := s.saveSession(ctx, st); err != nil {
		return nil, err
	}
	return viewOf(st), nil
}

// ApplyCoupon validates code and stores it as the session's discount context. A refused
// code clears any previously applied coupon, and that is persisted too.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (*promo.Code, *CartView, error) {
	st, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	c, verr := s.promos.Validate(ctx, st, code)
	if err := s.saveSession(ctx, st); err != nil {
		return nil, nil, err
	}
	if verr != nil {
		return nil, viewOf(st), verr
	}
	return c, viewOf(st), nil
}

// RemoveCoupon clears the session's discount context.
func (s *Service) RemoveCoupon(ctx context.Context, userID string) (*CartView, error) {
	st, err := s.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.promos.Remove(st)
	if err := s.saveSession(ctx, st); err != nil {
		return nil, err
	}
	return viewOf(st), nil
}
