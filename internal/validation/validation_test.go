package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestPlaceOrderRequest_Valid(t *testing.T) {
	v := New()

	req := PlaceOrderRequest{
		Items: []Item{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		DeliveryMethod: "store-pickup",
	}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	// An empty body orders the session cart.
	if err := v.Struct(PlaceOrderRequest{DeliveryMethod: "store-pickup"}); err != nil {
		t.Fatalf("expected valid without items, got error: %v", err)
	}
}

func TestPlaceOrderRequest_InvalidItem(t *testing.T) {
	v := New()

	req := PlaceOrderRequest{
		Items:          []Item{{ProductID: "p1", Quantity: 0}},
		DeliveryMethod: "store-pickup",
	}
	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected validation error for zero quantity, got nil")
	}
	fields := validationErrorsToMap(err)
	if fields["items[0].quantity"] != "required" {
		t.Fatalf("unexpected field errors: %v", fields)
	}
}

func TestOrderPatchRequest_Empty(t *testing.T) {
	v := New()

	if err := v.Struct(OrderPatchRequest{}); err == nil {
		t.Fatal("expected error for empty patch, got nil")
	}

	bad := "cancelled"
	if err := v.Struct(OrderPatchRequest{Status: &bad}); err == nil {
		t.Fatal("expected error for unknown status, got nil")
	}

	shipped := "shipped"
	if err := v.Struct(OrderPatchRequest{Status: &shipped}); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCartQuantityRequest(t *testing.T) {
	v := New()

	zero, neg := 0, -1
	if err := v.Struct(CartQuantityRequest{Quantity: &zero}); err != nil {
		t.Fatalf("zero quantity should be accepted, got %v", err)
	}
	if err := v.Struct(CartQuantityRequest{Quantity: &neg}); err == nil {
		t.Fatal("expected error for negative quantity")
	}
	if err := v.Struct(CartQuantityRequest{}); err == nil {
		t.Fatal("expected error for missing quantity")
	}
}

func TestPromoCreateRequest(t *testing.T) {
	v := New()

	req := PromoCreateRequest{Code: "SAVE20", Discount: 0.2, MaxUses: 10, ExpiresAt: time.Now().Add(time.Hour)}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	req.ExpiresAt = time.Now().Add(-time.Hour)
	if err := v.Struct(req); err == nil {
		t.Fatal("expected error for past expiry")
	}

	req.ExpiresAt = time.Now().Add(time.Hour)
	req.Discount = 1.5
	if err := v.Struct(req); err == nil {
		t.Fatal("expected error for discount above 1")
	}
}

func TestProductRequests(t *testing.T) {
	v := New()

	if err := v.Struct(ProductCreateRequest{Name: "Lamp", Price: 20, Discount: 1.2}); err == nil {
		t.Fatal("expected error for discount above 1")
	}
	if err := v.Struct(ProductCreateRequest{Name: "Lamp", Price: 20, Discount: 0.25, Stock: 3}); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
	if err := v.Struct(ProductUpdateRequest{}); err == nil {
		t.Fatal("expected error for empty product patch")
	}
}

func TestBindAndValidate_WritesBadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"","quantity":1}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req CartItemRequest
	if err := BindAndValidate(c, &req, New()); err == nil {
		t.Fatal("expected error")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"product_id":"required"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestPhoneRequest(t *testing.T) {
	v := New()

	for _, ok := range []string{"3005551234", "+573005551234", "123456789012345"} {
		if err := v.Struct(PhoneRequest{Phone: ok}); err != nil {
			t.Fatalf("expected %q to be valid, got %v", ok, err)
		}
	}
	for _, bad := range []string{"", "300555123", "+57 300 555 1234", "1234567890123456", "phone-number"} {
		err := v.Struct(PhoneRequest{Phone: bad})
		if err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if got := validationErrorsToMap(v.Struct(PhoneRequest{Phone: "12"}))["phone"]; got != "phone" {
		t.Fatalf("expected phone rule failure, got %q", got)
	}
}

func TestPromoUpdateRequest(t *testing.T) {
	v := New()

	if err := v.Struct(PromoUpdateRequest{}); err == nil {
		t.Fatal("expected error for empty promo patch")
	}
	past := time.Now().Add(-time.Hour)
	if err := v.Struct(PromoUpdateRequest{ExpiresAt: &past}); err == nil {
		t.Fatal("expected error for expiry in the past")
	}
	zero := 0
	if err := v.Struct(PromoUpdateRequest{MaxUses: &zero}); err == nil {
		t.Fatal("expected error for max_uses below 1")
	}
	discount := 0.3
	if err := v.Struct(PromoUpdateRequest{Discount: &discount}); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}
