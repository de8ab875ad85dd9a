package checkout

import (
	"context"
	"errors"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/inventory"
	"github.com/imrishuroy/go-storefront-ledger/internal/notify"
	"github.com/imrishuroy/go-storefront-ledger/internal/orders"
	"github.com/imrishuroy/go-storefront-ledger/internal/pricing"
)

// OrderPatch is an edit of an existing order. Nil fields are left as they are; a non-nil
// Items replaces the whole item list.
type OrderPatch struct {
	DeliveryMethod  *string
	DeliveryAddress *string
	Items           []inventory.Item
	Status          *orders.Status
}

// Order returns one order. Non-admin callers only see their own orders.
func (s *Service) Order(ctx context.Context, userID, orderID string, admin bool) (*orders.Order, error) {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin && o.UserID != userID {
		return nil, apperr.New(apperr.NotFound, "order %s not found", orderID)
	}
	return o, nil
}

// OrdersForUser lists a user's orders, newest first.
func (s *Service) OrdersForUser(ctx context.Context, userID string) ([]orders.Order, error) {
	list, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence(err, "list user orders")
	}
	return s.withContacts(ctx, list), nil
}

// AllOrders lists every order, newest first, for the admin view.
func (s *Service) AllOrders(ctx context.Context) ([]orders.Order, error) {
	list, err := s.orders.List(ctx)
	if err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}
	return s.withContacts(ctx, list), nil
}

// withContacts fills owner contact fields that older orders were stored without.
func (s *Service) withContacts(ctx context.Context, list []orders.Order) []orders.Order {
	if list == nil {
		return []orders.Order{}
	}
	cache := map[string][2]string{}
	for i := range list {
		o := &list[i]
		if o.UserEmail != "" && o.UserEmail != orders.UnknownEmail {
			continue
		}
		c, ok := cache[o.UserID]
		if !ok {
			email, phone := s.contact(ctx, o.UserID)
			c = [2]string{email, phone}
			cache[o.UserID] = c
		}
		o.UserEmail = c[0]
		if o.UserPhone == "" {
			o.UserPhone = c[1]
		}
	}
	return list
}

// Update applies an admin edit. Item changes move stock by the difference between the old
// and new quantities, in the same transaction that rewrites the order; the rewrite is
// conditional on the version that was read.
func (s *Service) Update(ctx context.Context, orderID string, patch OrderPatch) (*orders.Order, error) {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	readVersion := o.Version
	now := s.nowFunc().UTC()

	method, address := o.DeliveryMethod, o.DeliveryAddress
	if patch.DeliveryMethod != nil {
		method = *patch.DeliveryMethod
	}
	if patch.DeliveryAddress != nil {
		address = *patch.DeliveryAddress
	}
	if address, err = orders.ValidateDelivery(method, address); err != nil {
		return nil, err
	}
	o.DeliveryMethod, o.DeliveryAddress = method, address

	if patch.Status != nil && *patch.Status != o.Status {
		next := *patch.Status
		if !orders.CanMove(o.Status, next) {
			return nil, apperr.New(apperr.InvalidStatus, "order cannot move from %s to %s", o.Status, next)
		}
		o.Status = next
		o.StatusHistory = append(o.StatusHistory, orders.StatusChange{Status: next, At: now})
	}

	var adjust *inventory.Commit
	if patch.Items != nil {
		merged := inventory.Merge(patch.Items)
		if len(merged) == 0 {
			return nil, apperr.New(apperr.InvalidInput, "order must keep at least one item")
		}
		next := make(map[string]int, len(merged))
		for _, it := range merged {
			if it.ProductID == "" || it.Quantity <= 0 {
				return nil, apperr.New(apperr.InvalidInput, "each item needs a product id and a positive quantity")
			}
			next[it.ProductID] = it.Quantity
		}
		adjust, err = s.ledger.AdjustItems(ctx, o.Quantities(), next)
		if err != nil {
			return nil, err
		}
		o.Items = relineItems(o.Items, merged, adjust)
	}

	lines := make([]pricing.Line, 0, len(o.Items))
	for _, l := range o.Items {
		lines = append(lines, pricing.Line{UnitPrice: pricing.FromFloat(l.UnitPrice), Quantity: l.Quantity})
	}
	totals := pricing.Compute(lines, pricing.FromFloat(o.CouponFraction))
	o.Subtotal = pricing.Money(totals.Subtotal)
	o.CouponAmount = pricing.Money(totals.CouponDiscount)
	o.Total = pricing.Money(totals.Total)

	o.Version = readVersion + 1
	o.UpdatedAt = now

	orderItem, err := s.orders.ReplaceItem(*o, readVersion)
	if err != nil {
		return nil, apperr.Persistence(err, "build order item")
	}
	tx := []types.TransactWriteItem{orderItem}
	if adjust != nil {
		tx = append(tx, adjust.Items...)
	}
	if _, err := s.db.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: tx}); err != nil {
		return nil, s.explainUpdate(ctx, err, orderID, adjust)
	}

	s.logger(ctx).Info("order updated", "order_id", o.OrderID, "version", o.Version, "status", o.Status)
	s.notify(ctx, notify.KindUpdated, o)
	return o, nil
}

// relineItems keeps the frozen snapshot of lines whose quantity did not change and
// re-prices the others from the current products.
func relineItems(old []orders.Line, merged []inventory.Item, adjust *inventory.Commit) []orders.Line {
	byID := make(map[string]orders.Line, len(old))
	for _, l := range old {
		byID[l.ProductID] = l
	}
	out := make([]orders.Line, 0, len(merged))
	for _, it := range merged {
		if l, ok := byID[it.ProductID]; ok && l.Quantity == it.Quantity {
			out = append(out, l)
			continue
		}
		p := adjust.Products[it.ProductID]
		line := pricing.Line{UnitPrice: p.FinalPrice(), Quantity: it.Quantity}
		out = append(out, orders.Line{
			ProductID:     it.ProductID,
			Name:          p.Name,
			Quantity:      it.Quantity,
			UnitPrice:     pricing.Money(line.UnitPrice),
			OriginalPrice: p.Price,
			Discount:      p.Discount,
			LineTotal:     pricing.Money(line.Total()),
		})
	}
	return out
}

func (s *Service) explainUpdate(ctx context.Context, err error, orderID string, adjust *inventory.Commit) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return apperr.Persistence(err, "commit order update")
	}
	for i, r := range tce.CancellationReasons {
		if r.Code == nil || *r.Code != "ConditionalCheckFailed" {
			continue
		}
		if i == 0 {
			current, gerr := s.orders.Get(ctx, orderID)
			if gerr == nil && current == nil {
				return apperr.New(apperr.NotFound, "order %s not found", orderID)
			}
			return orders.ErrVersionMismatch
		}
		if adjust != nil && i-1 < len(adjust.ProductIDs) {
			id, delta := adjust.ProductIDs[i-1], adjust.Deltas[i-1]
			if delta > 0 {
				return s.ledger.Explain(ctx, id, delta)
			}
			return apperr.New(apperr.NotFound, "product %s not found", id)
		}
	}
	return apperr.Wrap(apperr.Conflict, err, "order update conflicted with a concurrent write, retry")
}

// Delete removes an order. Stock is not restored and a redeemed coupon use is not given
// back.
func (s *Service) Delete(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.orders.Delete(ctx, orderID)
	if err != nil {
		if apperr.KindOf(err) != "" {
			return nil, err
		}
		return nil, apperr.Persistence(err, "delete order")
	}
	s.logger(ctx).Info("order deleted", "order_id", o.OrderID)
	s.notify(ctx, notify.KindCancelled, o)
	return o, nil
}

// Advance moves an order one step forward in its lifecycle, guarded by the status that
// was read.
func (s *Service) Advance(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	next, err := orders.Next(o.Status)
	if err != nil {
		return nil, err
	}
	updated, err := s.orders.UpdateStatus(ctx, orderID, o.Status, next)
	if err != nil {
		if !errors.Is(err, orders.ErrStatusMismatch) {
			return nil, apperr.Persistence(err, "advance order status")
		}
		current, gerr := s.loadOrder(ctx, orderID)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status.Terminal() {
			return nil, apperr.New(apperr.AlreadyTerminal, "order is already %s", current.Status)
		}
		return nil, err
	}
	s.logger(ctx).Info("order advanced", "order_id", orderID, "from", o.Status, "to", next)
	return updated, nil
}
