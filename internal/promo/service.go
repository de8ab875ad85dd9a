// Package promo validates promo codes against a session and redeems them exactly once.
package promo

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/session"
)

// Service applies codes to sessions and consumes them.
type Service struct {
	store   *Store
	nowFunc func() time.Time
}

// NewService returns a Service backed by store.
func NewService(store *Store) *Service {
	return &Service{store: store, nowFunc: time.Now}
}

// Store exposes the underlying code store.
func (s *Service) Store() *Store { return s.store }

// Validate looks code up and, when it is redeemable, sets it as the session's discount
// context. Any failure clears the session's coupon. The caller persists st.
func (s *Service) Validate(ctx context.Context, st *session.State, code string) (*Code, error) {
	norm := Normalize(code)
	if norm == "" {
		st.ClearCoupon()
		return nil, apperr.New(apperr.InvalidInput, "promo code is required")
	}

	c, err := s.store.FindByCode(ctx, norm)
	if err != nil {
		st.ClearCoupon()
		return nil, apperr.Persistence(err, "find promo code")
	}
	if c == nil {
		st.ClearCoupon()
		return nil, apperr.New(apperr.NotFound, "promo code %s not found", norm)
	}
	if err := c.Check(s.nowFunc()); err != nil {
		st.ClearCoupon()
		return nil, err
	}

	st.SetCoupon(session.AppliedCoupon{
		Code:        c.Code,
		Discount:    c.Discount,
		Description: c.Description,
		ExpiresAt:   c.ExpiresAt,
		AppliedAt:   s.nowFunc().UTC(),
	})
	return c, nil
}

// Consume redeems one use of code. The code must be the one applied to the session.
func (s *Service) Consume(ctx context.Context, st *session.State, code string) error {
	if !st.CouponMatches(code) {
		return apperr.New(apperr.CouponMismatch, "promo code %s is not applied to this session", Normalize(code))
	}
	return s.store.IncrementUses(ctx, code, s.nowFunc())
}

// ConsumeItem is Consume as a transaction item, for redeeming inside a larger write.
func (s *Service) ConsumeItem(st *session.State, code string) (types.TransactWriteItem, error) {
	if !st.CouponMatches(code) {
		return types.TransactWriteItem{}, apperr.New(apperr.CouponMismatch, "promo code %s is not applied to this session", Normalize(code))
	}
	return s.store.ConsumeItem(Normalize(code), s.nowFunc()), nil
}

// Explain reports why code was refused inside a transaction.
func (s *Service) Explain(ctx context.Context, code string) error {
	return s.store.Explain(ctx, Normalize(code), s.nowFunc())
}

// Remove clears the session's discount context.
func (s *Service) Remove(st *session.State) {
	st.ClearCoupon()
}
