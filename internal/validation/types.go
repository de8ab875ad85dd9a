package validation

import "time"

// Item is one requested order line.
type Item struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// PlaceOrderRequest is the payload for POST /orders. Without items the session cart is
// ordered. Delivery rules are enforced by the order service so they surface as their own
// error kinds.
type PlaceOrderRequest struct {
	Items           []Item `json:"items,omitempty" validate:"omitempty,dive"`
	DeliveryMethod  string `json:"delivery_method"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
}

// OrderPatchRequest is the payload for PATCH /admin/orders/:id.
type OrderPatchRequest struct {
	DeliveryMethod  *string `json:"delivery_method,omitempty"`
	DeliveryAddress *string `json:"delivery_address,omitempty"`
	Items           []Item  `json:"items,omitempty" validate:"omitempty,dive"`
	Status          *string `json:"status,omitempty" validate:"omitempty,oneof=pending shipped delivered"`
}

// CartItemRequest is the payload for POST /cart/items.
type CartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CartQuantityRequest is the payload for PUT /cart/items/:productId. Zero removes the line.
type CartQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

// CouponRequest is the payload for POST /coupon.
type CouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// ProductCreateRequest is the payload for POST /admin/products.
type ProductCreateRequest struct {
	ID          string  `json:"id,omitempty" validate:"omitempty,max=64"`
	Name        string  `json:"name" validate:"required,max=200"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Discount    float64 `json:"discount" validate:"gte=0,lte=1"`
	Stock       int     `json:"stock" validate:"gte=0"`
	Category    string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Description string  `json:"description,omitempty"`
	Image       string  `json:"image,omitempty" validate:"omitempty,url"`
}

// ProductUpdateRequest is the payload for PATCH /admin/products/:id.
type ProductUpdateRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
	Discount    *float64 `json:"discount,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stock       *int     `json:"stock,omitempty" validate:"omitempty,gte=0"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,max=100"`
	Description *string  `json:"description,omitempty"`
	Image       *string  `json:"image,omitempty" validate:"omitempty,url"`
}

// PromoCreateRequest is the payload for POST /admin/promo-codes.
type PromoCreateRequest struct {
	Code        string    `json:"code" validate:"required,max=64"`
	Discount    float64   `json:"discount" validate:"required,gt=0,lte=1"`
	MaxUses     int       `json:"max_uses" validate:"required,min=1"`
	ExpiresAt   time.Time `json:"expires_at" validate:"required"`
	IsActive    *bool     `json:"is_active,omitempty"`
	Description string    `json:"description,omitempty" validate:"omitempty,max=500"`
}

// PromoUpdateRequest is the payload for PUT /admin/promo-codes/:code. Uses and creation
// time are never edited.
type PromoUpdateRequest struct {
	Discount    *float64   `json:"discount,omitempty" validate:"omitempty,gt=0,lte=1"`
	MaxUses     *int       `json:"max_uses,omitempty" validate:"omitempty,min=1"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=500"`
}

// PhoneRequest is the payload for PUT /me/phone.
type PhoneRequest struct {
	Phone string `json:"phone" validate:"required,phone"`
}
