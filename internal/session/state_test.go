package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartLinesAreKeyedByProduct(t *testing.T) {
	st := &State{UserID: "u1"}
	st.PutLine(CartLine{ProductID: "p1", Quantity: 1})
	st.PutLine(CartLine{ProductID: "p2", Quantity: 2})
	st.PutLine(CartLine{ProductID: "p1", Quantity: 5})

	require.Len(t, st.Cart, 2)
	assert.Equal(t, 5, st.Line("p1").Quantity)

	assert.True(t, st.RemoveLine("p1"))
	assert.False(t, st.RemoveLine("p1"))
	assert.Nil(t, st.Line("p1"))
	require.Len(t, st.Cart, 1)
}

func TestCouponMatchesIgnoresCase(t *testing.T) {
	st := &State{}
	assert.False(t, st.CouponMatches("SAVE10"))

	st.SetCoupon(AppliedCoupon{Code: "save10", Discount: 0.1})
	assert.Equal(t, "SAVE10", st.Coupon.Code)
	assert.True(t, st.CouponMatches("Save10"))
	assert.False(t, st.CouponMatches("SAVE20"))

	st.ClearCoupon()
	assert.Nil(t, st.Coupon)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	empty, err := m.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", empty.UserID)
	assert.Empty(t, empty.Cart)

	st := &State{UserID: "u1"}
	st.PutLine(CartLine{ProductID: "p1", Quantity: 2, UnitPrice: 9.5})
	st.SetCoupon(AppliedCoupon{Code: "X", Discount: 0.2})
	require.NoError(t, m.Save(ctx, st))

	// mutating the caller's copy must not leak into the store
	st.Cart[0].Quantity = 99

	got, err := m.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Cart, 1)
	assert.Equal(t, 2, got.Cart[0].Quantity)
	require.NotNil(t, got.Coupon)
	assert.Equal(t, 0.2, got.Coupon.Discount)

	require.NoError(t, m.Clear(ctx, "u1"))
	again, err := m.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", again.UserID)
	assert.Empty(t, again.Cart)
	assert.Nil(t, again.Coupon)
}
