// Package inventory guards product stock: cart reservations, the all-or-nothing stock
// commit of a checkout, order-edit adjustments and admin stock edits.
package inventory

import (
	"context"
	"errors"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/catalog"
	"github.com/imrishuroy/go-storefront-ledger/internal/orders"
	"github.com/imrishuroy/go-storefront-ledger/internal/pricing"
	"github.com/imrishuroy/go-storefront-ledger/internal/session"
)

// OpenOrders lists the orders that still hold stock.
type OpenOrders interface {
	ListOpen(ctx context.Context) ([]orders.Order, error)
}

// Ledger reads products and open orders to decide reservations.
type Ledger struct {
	products *catalog.Store
	orders   OpenOrders
}

// NewLedger returns a Ledger.
func NewLedger(products *catalog.Store, open OpenOrders) *Ledger {
	return &Ledger{products: products, orders: open}
}

// Item is a requested quantity of one product.
type Item struct {
	ProductID string
	Quantity  int
}

// Commit is a validated stock change ready to join a transaction. Items[i] concerns
// ProductIDs[i] and moves it by Deltas[i] units out of stock (negative puts stock back).
type Commit struct {
	Items      []types.TransactWriteItem
	ProductIDs []string
	Deltas     []int
	Products   map[string]*catalog.Product
}

func (c *Commit) add(item types.TransactWriteItem, productID string, delta int) {
	c.Items = append(c.Items, item)
	c.ProductIDs = append(c.ProductIDs, productID)
	c.Deltas = append(c.Deltas, delta)
}

// ValidateReservation checks qty against the product's current stock.
func ValidateReservation(p *catalog.Product, qty int) error {
	switch {
	case qty <= 0:
		return apperr.New(apperr.InvalidInput, "quantity must be positive")
	case p.Stock <= 0:
		return apperr.New(apperr.OutOfStock, "%s is out of stock", p.Name)
	case qty > p.Stock:
		return apperr.New(apperr.InsufficientStock, "only %d of %s left", p.Stock, p.Name)
	}
	return nil
}

// Merge sums quantities per product, keeping first-seen order.
func Merge(items []Item) []Item {
	idx := map[string]int{}
	var out []Item
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

func (l *Ledger) load(ctx context.Context, productID string) (*catalog.Product, error) {
	p, err := l.products.Get(ctx, productID)
	if err != nil {
		return nil, apperr.Persistence(err, "load product")
	}
	if p == nil {
		return nil, apperr.New(apperr.NotFound, "product %s not found", productID)
	}
	return p, nil
}

// ReserveForCart adds qty of a product to the cart, or sets the line to qty when replace
// is true. The resulting quantity must fit the current stock; on failure the cart is left
// as it was.
func (l *Ledger) ReserveForCart(ctx context.Context, st *session.State, productID string, qty int, replace bool) (*session.CartLine, error) {
	p, err := l.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	want := qty
	if existing := st.Line(productID); existing != nil && !replace {
		want = existing.Quantity + qty
	}
	if err := ValidateReservation(p, want); err != nil {
		return nil, err
	}

	line := session.CartLine{
		ProductID:     p.ProductID,
		Name:          p.Name,
		Quantity:      want,
		UnitPrice:     pricing.Money(p.FinalPrice()),
		OriginalPrice: p.Price,
		Discount:      p.Discount,
	}
	st.PutLine(line)
	return &line, nil
}

// CommitItems re-validates every item against current product state and builds the stock
// decrements for a checkout. Each decrement is conditional on stock >= quantity, so the
// transaction re-checks what was validated here.
func (l *Ledger) CommitItems(ctx context.Context, items []Item) (*Commit, error) {
	merged := Merge(items)
	if len(merged) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "order has no items")
	}
	c := &Commit{Products: make(map[string]*catalog.Product, len(merged))}
	for _, it := range merged {
		p, err := l.load(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if err := ValidateReservation(p, it.Quantity); err != nil {
			return nil, err
		}
		c.Products[p.ProductID] = p
		c.add(l.products.DecrementItem(p.ProductID, it.Quantity), p.ProductID, it.Quantity)
	}
	return c, nil
}

// AdjustItems builds the stock changes that move an order from the old quantities to the
// new ones: increases take the delta out of stock (and count it as sold), decreases put
// the delta back. Products that appear in next are loaded into Products.
func (l *Ledger) AdjustItems(ctx context.Context, prev, next map[string]int) (*Commit, error) {
	ids := make([]string, 0, len(prev)+len(next))
	seen := map[string]bool{}
	for id := range prev {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range next {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	c := &Commit{Products: map[string]*catalog.Product{}}
	for _, id := range ids {
		delta := next[id] - prev[id]
		if next[id] > 0 {
			p, err := l.load(ctx, id)
			if err != nil {
				return nil, err
			}
			c.Products[id] = p
			if delta > 0 {
				if err := ValidateReservation(p, delta); err != nil {
					return nil, err
				}
			}
		}
		switch {
		case delta > 0:
			c.add(l.products.DecrementItem(id, delta), id, delta)
		case delta < 0:
			c.add(l.products.RestockItem(id, -delta), id, delta)
		}
	}
	return c, nil
}

// Explain re-reads a product after its stock condition failed inside a transaction and
// returns the matching error.
func (l *Ledger) Explain(ctx context.Context, productID string, qty int) error {
	p, err := l.load(ctx, productID)
	if err != nil {
		return err
	}
	if err := ValidateReservation(p, qty); err != nil {
		return err
	}
	return apperr.New(apperr.Conflict, "stock of %s changed concurrently", p.Name)
}

// ReservedQuantity sums the quantity of productID across orders that are not delivered.
func (l *Ledger) ReservedQuantity(ctx context.Context, productID string) (int, error) {
	open, err := l.orders.ListOpen(ctx)
	if err != nil {
		return 0, apperr.Persistence(err, "list open orders")
	}
	total := 0
	for i := range open {
		total += open[i].Quantities()[productID]
	}
	return total, nil
}

// setStockAttempts bounds how often SetStock re-reads after losing a race with a
// checkout or an order edit.
const setStockAttempts = 3

// SetStock is the admin stock edit. The new stock may not drop below what open orders
// have reserved; equal is allowed.
func (l *Ledger) SetStock(ctx context.Context, productID string, stock int) error {
	_, err := l.UpdateProduct(ctx, productID, catalog.Patch{}, stock)
	return err
}

// UpdateProduct writes patch and the new stock in one conditional write, under the same
// reserved-stock guard as SetStock. Stock is read before the reservation is summed and the
// write only applies if stock still has that value, so a checkout committed in between
// forces a fresh check.
func (l *Ledger) UpdateProduct(ctx context.Context, productID string, patch catalog.Patch, stock int) (*catalog.Product, error) {
	if stock < 0 {
		return nil, apperr.New(apperr.InvalidInput, "stock must not be negative")
	}
	for attempt := 0; attempt < setStockAttempts; attempt++ {
		p, err := l.load(ctx, productID)
		if err != nil {
			return nil, err
		}
		reserved, err := l.ReservedQuantity(ctx, productID)
		if err != nil {
			return nil, err
		}
		if stock < reserved {
			return nil, apperr.New(apperr.StockBelowReserved, "stock %d is below the %d units reserved by open orders", stock, reserved)
		}
		updated, err := l.products.UpdateStock(ctx, productID, patch, stock, p.Stock)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, catalog.ErrStockChanged):
			continue
		case apperr.KindOf(err) != "":
			return nil, err
		default:
			return nil, apperr.Persistence(err, "update product stock")
		}
	}
	return nil, apperr.New(apperr.Conflict, "stock of %s keeps changing, retry", productID)
}
