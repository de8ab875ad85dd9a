// Package pricing computes unit prices and order totals.
//
// Money is handled as decimal.Decimal and rounded to cents only at the boundary
// (Money). The coupon is applied once to the subtotal; it is never compounded into the
// stored line prices.
package pricing

import (
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// FinalUnitPrice returns base × max(0, 1 − itemDiscount).
func FinalUnitPrice(base, itemDiscount decimal.Decimal) decimal.Decimal {
	factor := decimal.Max(decimal.Zero, one.Sub(itemDiscount))
	return base.Mul(factor)
}

// CombinedDiscountFraction returns 1 − (1 − item)(1 − coupon). Display only.
func CombinedDiscountFraction(itemDiscount, couponDiscount decimal.Decimal) decimal.Decimal {
	return one.Sub(one.Sub(itemDiscount).Mul(one.Sub(couponDiscount)))
}

// Line is a priced quantity.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Total returns UnitPrice × Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals is the result of pricing a set of lines.
type Totals struct {
	Subtotal       decimal.Decimal
	CouponDiscount decimal.Decimal
	Total          decimal.Decimal
}

// Compute sums the lines and applies couponFraction to the subtotal. A zero or negative
// fraction means no coupon. The coupon amount never exceeds the subtotal and the total
// is never negative.
func Compute(lines []Line, couponFraction decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	subtotal = decimal.Max(decimal.Zero, subtotal)

	coupon := decimal.Zero
	if couponFraction.IsPositive() {
		coupon = decimal.Min(subtotal.Mul(couponFraction), subtotal)
	}

	return Totals{
		Subtotal:       subtotal,
		CouponDiscount: coupon,
		Total:          decimal.Max(decimal.Zero, subtotal.Sub(coupon)),
	}
}

// Money rounds d to cents for storage and display.
func Money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// FromFloat lifts a stored amount or fraction into decimal arithmetic.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
