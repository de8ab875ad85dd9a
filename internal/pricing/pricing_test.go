package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFinalUnitPrice(t *testing.T) {
	cases := []struct {
		base, discount, want string
	}{
		{"100000", "0.1", "90000"},
		{"100", "0", "100"},
		{"100", "1", "0"},
		{"100", "1.5", "0"},
		{"0", "0.3", "0"},
		{"19.99", "0.25", "14.9925"},
	}
	for _, tc := range cases {
		got := FinalUnitPrice(d(tc.base), d(tc.discount))
		assert.True(t, got.Equal(d(tc.want)), "FinalUnitPrice(%s, %s) = %s, want %s", tc.base, tc.discount, got, tc.want)
	}
}

func TestFinalUnitPriceMonotonicInDiscount(t *testing.T) {
	prices := []string{"0", "1", "99.95", "100000"}
	for _, p := range prices {
		prev := FinalUnitPrice(d(p), decimal.Zero)
		for i := 1; i <= 100; i++ {
			disc := decimal.NewFromInt(int64(i)).Div(decimal.NewFromInt(100))
			cur := FinalUnitPrice(d(p), disc)
			require.True(t, cur.LessThanOrEqual(prev), "price %s not monotone at discount %s", p, disc)
			require.True(t, cur.Equal(d(p).Mul(decimal.NewFromInt(1).Sub(disc))))
			prev = cur
		}
	}
}

func TestCombinedDiscountFraction(t *testing.T) {
	got := CombinedDiscountFraction(d("0.1"), d("0.2"))
	assert.True(t, got.Equal(d("0.28")), "got %s", got)
	assert.True(t, CombinedDiscountFraction(decimal.Zero, decimal.Zero).IsZero())
}

func TestComputeScenario(t *testing.T) {
	unit := FinalUnitPrice(d("100000"), d("0.1"))
	totals := Compute([]Line{{UnitPrice: unit, Quantity: 2}}, d("0.2"))

	assert.Equal(t, 180000.0, Money(totals.Subtotal))
	assert.Equal(t, 36000.0, Money(totals.CouponDiscount))
	assert.Equal(t, 144000.0, Money(totals.Total))
}

func TestComputeBounds(t *testing.T) {
	lines := []Line{
		{UnitPrice: d("10.50"), Quantity: 3},
		{UnitPrice: d("0.99"), Quantity: 7},
	}
	for _, frac := range []string{"0", "0.05", "0.5", "1", "1.7", "-0.2"} {
		totals := Compute(lines, d(frac))
		assert.True(t, totals.Subtotal.Equal(d("38.43")))
		assert.False(t, totals.Total.IsNegative(), "fraction %s", frac)
		assert.True(t, totals.Total.LessThanOrEqual(totals.Subtotal), "fraction %s", frac)
		assert.True(t, totals.CouponDiscount.LessThanOrEqual(totals.Subtotal), "fraction %s", frac)
		assert.True(t, totals.Total.Equal(totals.Subtotal.Sub(totals.CouponDiscount)))
	}

	none := Compute(lines, decimal.Zero)
	assert.True(t, none.CouponDiscount.IsZero())

	empty := Compute(nil, d("0.3"))
	assert.True(t, empty.Total.IsZero())
}
