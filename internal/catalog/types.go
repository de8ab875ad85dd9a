package catalog

import (
	"time"

	"github.com/imrishuroy/go-storefront-ledger/internal/pricing"
	"github.com/shopspring/decimal"
)

// Product is the item stored in the products DynamoDB table.
type Product struct {
	ProductID   string    `dynamodbav:"product_id" json:"id"` // PK
	Name        string    `dynamodbav:"name" json:"name"`
	Price       float64   `dynamodbav:"price" json:"price"`       // base price, > 0
	Discount    float64   `dynamodbav:"discount" json:"discount"` // fraction 0..1
	Stock       int       `dynamodbav:"stock" json:"stock"`
	Sales       int       `dynamodbav:"sales" json:"sales"`
	Category    string    `dynamodbav:"category,omitempty" json:"category,omitempty"`
	Description string    `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Image       string    `dynamodbav:"image,omitempty" json:"image,omitempty"`
	CreatedAt   time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// FinalPrice is the unit price after the product's own discount.
func (p Product) FinalPrice() decimal.Decimal {
	return pricing.FinalUnitPrice(pricing.FromFloat(p.Price), pricing.FromFloat(p.Discount))
}

// Patch holds the admin-editable metadata of a product. Nil fields are left unchanged.
// Stock is edited through the inventory ledger, which enforces the reserved-stock guard
// and writes it together with the patch.
type Patch struct {
	Name        *string
	Price       *float64
	Discount    *float64
	Category    *string
	Description *string
	Image       *string
}

func (p Patch) empty() bool {
	return p.Name == nil && p.Price == nil && p.Discount == nil &&
		p.Category == nil && p.Description == nil && p.Image == nil
}
