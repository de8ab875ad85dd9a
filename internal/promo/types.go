package promo

import (
	"strings"
	"time"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
)

// Code is the item stored in the promo_codes DynamoDB table.
type Code struct {
	Code        string    `dynamodbav:"code" json:"code"` // PK, upper-case
	Discount    float64   `dynamodbav:"discount" json:"discount"`
	MaxUses     int       `dynamodbav:"max_uses" json:"max_uses"`
	Uses        int       `dynamodbav:"uses" json:"uses"`
	ExpiresAt   time.Time `dynamodbav:"expires_at,unixtime" json:"expires_at"`
	IsActive    bool      `dynamodbav:"is_active" json:"is_active"`
	Description string    `dynamodbav:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time `dynamodbav:"created_at" json:"created_at"`
}

// Patch is an admin edit of a code. Nil fields are left as they are; uses and the
// creation time cannot be edited.
type Patch struct {
	Discount    *float64
	MaxUses     *int
	ExpiresAt   *time.Time
	IsActive    *bool
	Description *string
}

// Normalize upper-cases and trims a user-entered code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Applicable reports whether the code can be redeemed at now.
func (c Code) Applicable(now time.Time) bool {
	return c.Check(now) == nil
}

// Check returns the reason the code cannot be redeemed at now, or nil.
func (c Code) Check(now time.Time) error {
	switch {
	case !c.IsActive:
		return apperr.New(apperr.CouponInactive, "promo code %s is not active", c.Code)
	case !now.Before(c.ExpiresAt):
		return apperr.New(apperr.CouponExpired, "promo code %s has expired", c.Code)
	case c.Uses >= c.MaxUses:
		return apperr.New(apperr.CouponExhausted, "promo code %s has reached its usage limit", c.Code)
	}
	return nil
}
