package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/idempotency"
	"github.com/imrishuroy/go-storefront-ledger/internal/inventory"
	"github.com/imrishuroy/go-storefront-ledger/internal/metrics"
	"github.com/imrishuroy/go-storefront-ledger/internal/notify"
	"github.com/imrishuroy/go-storefront-ledger/internal/orders"
	"github.com/imrishuroy/go-storefront-ledger/internal/pricing"
	"github.com/imrishuroy/go-storefront-ledger/internal/promo"
	"github.com/imrishuroy/go-storefront-ledger/internal/session"
)

// PlaceRequest asks to turn items into an order. Without Items the session cart is used.
type PlaceRequest struct {
	UserID          string
	Items           []inventory.Item
	DeliveryMethod  string
	DeliveryAddress string
	IdempotencyKey  string // optional; defaults to the new order id
}

// Placement is the result of Place. Replayed is set when the idempotency key had already
// produced an order and that order is returned unchanged.
type Placement struct {
	Order    *orders.Order
	Replayed bool
}

// slot says what a transaction item guards, to explain a cancellation.
type slot struct {
	kind      string
	productID string
	delta     int
	code      string
}

const (
	slotIdempotency = "idempotency"
	slotOrder       = "order"
	slotProduct     = "product"
	slotCoupon      = "coupon"
)

// Place validates the request, prices it and commits the order, the stock decrements and
// the coupon redemption in one transaction. Either all of them are applied or none are.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*Placement, error) {
	log := s.logger(ctx).With("user_id", req.UserID)

	p, err := s.place(ctx, req)
	if err != nil {
		kind := apperr.KindOf(err)
		metrics.CheckoutOutcome(string(kind))
		s.record(ctx, metrics.CheckoutRejected, 1, map[string]string{"Reason": string(kind)})
		if kind == apperr.PersistenceFailure {
			log.Error("checkout failed", "err", err)
		} else {
			log.Info("checkout rejected", "kind", kind, "err", err)
		}
		return nil, err
	}
	if p.Replayed {
		metrics.CheckoutOutcome("replayed")
		log.Info("checkout replayed", "order_id", p.Order.OrderID)
		return p, nil
	}

	metrics.CheckoutOutcome("ok")
	s.record(ctx, metrics.OrdersPlaced, 1, nil)
	s.record(ctx, metrics.OrderRevenue, p.Order.Total, nil)
	if p.Order.CouponCode != "" {
		s.record(ctx, metrics.CouponsRedeemed, 1, map[string]string{"Code": p.Order.CouponCode})
	}
	log.Info("order placed", "order_id", p.Order.OrderID, "total", p.Order.Total, "coupon", p.Order.CouponCode)

	s.notify(ctx, notify.KindCreated, p.Order)
	return p, nil
}

func (s *Service) place(ctx context.Context, req PlaceRequest) (*Placement, error) {
	address, err := orders.ValidateDelivery(req.DeliveryMethod, req.DeliveryAddress)
	if err != nil {
		return nil, err
	}

	st, err := s.loadSession(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	var idemKey string
	if req.IdempotencyKey != "" {
		idemKey = idempotency.Key(idempotency.ScopeCheckout, req.UserID, req.IdempotencyKey)
		if p, err := s.replay(ctx, idemKey); p != nil || err != nil {
			return p, err
		}
	}

	items := req.Items
	if len(items) == 0 {
		for _, cl := range st.Cart {
			items = append(items, inventory.Item{ProductID: cl.ProductID, Quantity: cl.Quantity})
		}
	}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, apperr.New(apperr.InvalidInput, "each item needs a product id and a positive quantity")
		}
	}

	commit, err := s.ledger.CommitItems(ctx, items)
	if err != nil {
		return nil, err
	}

	// The applied coupon is re-read so a code that expired or ran out since it was
	// applied is refused now, and dropped from the session.
	var coupon *promo.Code
	if st.Coupon != nil {
		coupon, err = s.promos.Validate(ctx, st, st.Coupon.Code)
		if err != nil {
			if serr := s.saveSession(ctx, st); serr != nil {
				s.logger(ctx).Warn("session not saved after coupon refusal", "err", serr)
			}
			return nil, err
		}
	}

	now := s.nowFunc().UTC()
	o := orders.Order{
		OrderID:         s.newID(),
		UserID:          req.UserID,
		DeliveryMethod:  req.DeliveryMethod,
		DeliveryAddress: address,
		Status:          orders.StatusPending,
		StatusHistory:   []orders.StatusChange{{Status: orders.StatusPending, At: now}},
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.UserEmail, o.UserPhone = s.contact(ctx, req.UserID)

	fraction := pricing.FromFloat(0)
	if coupon != nil {
		o.CouponCode = coupon.Code
		o.CouponFraction = coupon.Discount
		fraction = pricing.FromFloat(coupon.Discount)
	}
	lines := make([]pricing.Line, 0, len(commit.ProductIDs))
	for i, id := range commit.ProductIDs {
		p := commit.Products[id]
		line := pricing.Line{UnitPrice: p.FinalPrice(), Quantity: commit.Deltas[i]}
		lines = append(lines, line)
		o.Items = append(o.Items, orders.Line{
			ProductID:     id,
			Name:          p.Name,
			Quantity:      line.Quantity,
			UnitPrice:     pricing.Money(line.UnitPrice),
			OriginalPrice: p.Price,
			Discount:      p.Discount,
			LineTotal:     pricing.Money(line.Total()),
		})
	}
	totals := pricing.Compute(lines, fraction)
	o.Subtotal = pricing.Money(totals.Subtotal)
	o.CouponAmount = pricing.Money(totals.CouponDiscount)
	o.Total = pricing.Money(totals.Total)

	if idemKey == "" {
		idemKey = idempotency.Key(idempotency.ScopeCheckout, req.UserID, o.OrderID)
	}
	o.IdempotencyKey = idemKey

	tx, slots, err := s.placeItems(st, o, commit, coupon)
	if err != nil {
		return nil, err
	}

	_, err = s.db.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: tx})
	if err != nil {
		return s.explainPlace(ctx, err, slots, st, idemKey)
	}

	if err := s.sessions.Clear(ctx, req.UserID); err != nil {
		// The order exists; a stale cart is recoverable.
		s.logger(ctx).Warn("session not cleared after checkout", "order_id", o.OrderID, "err", err)
	}
	return &Placement{Order: &o}, nil
}

func (s *Service) placeItems(st *session.State, o orders.Order, commit *inventory.Commit, coupon *promo.Code) ([]types.TransactWriteItem, []slot, error) {
	body, err := json.Marshal(map[string]string{"id": o.OrderID})
	if err != nil {
		return nil, nil, err
	}
	idemItem, err := s.idem.CompletedItem(o.IdempotencyKey, o.OrderID, string(body), http.StatusCreated)
	if err != nil {
		return nil, nil, apperr.Persistence(err, "build idempotency item")
	}
	orderItem, err := s.orders.CreateItem(o)
	if err != nil {
		return nil, nil, apperr.Persistence(err, "build order item")
	}

	tx := []types.TransactWriteItem{idemItem, orderItem}
	slots := []slot{{kind: slotIdempotency}, {kind: slotOrder}}
	for i, item := range commit.Items {
		tx = append(tx, item)
		slots = append(slots, slot{kind: slotProduct, productID: commit.ProductIDs[i], delta: commit.Deltas[i]})
	}
	if coupon != nil {
		item, err := s.promos.ConsumeItem(st, coupon.Code)
		if err != nil {
			return nil, nil, err
		}
		tx = append(tx, item)
		slots = append(slots, slot{kind: slotCoupon, code: coupon.Code})
	}
	return tx, slots, nil
}

// replay returns the order an idempotency key already produced, or (nil, nil) when the
// key is unused.
func (s *Service) replay(ctx context.Context, key string) (*Placement, error) {
	rec, err := s.idem.Get(ctx, key)
	if err != nil {
		return nil, apperr.Persistence(err, "read idempotency record")
	}
	if rec == nil {
		return nil, nil
	}
	o, err := s.orders.Get(ctx, rec.OrderID)
	if err != nil {
		return nil, apperr.Persistence(err, "load replayed order")
	}
	if o == nil {
		return nil, apperr.New(apperr.Conflict, "idempotency key was already used for an order that no longer exists")
	}
	return &Placement{Order: o, Replayed: true}, nil
}

// explainPlace turns a failed checkout transaction into the error of the first item that
// refused it.
func (s *Service) explainPlace(ctx context.Context, err error, slots []slot, st *session.State, idemKey string) (*Placement, error) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, apperr.Persistence(err, "commit checkout")
	}
	for i, r := range tce.CancellationReasons {
		if i >= len(slots) || r.Code == nil || *r.Code != "ConditionalCheckFailed" {
			continue
		}
		switch sl := slots[i]; sl.kind {
		case slotIdempotency:
			p, err := s.replay(ctx, idemKey)
			if err != nil {
				return nil, err
			}
			if p != nil {
				return p, nil
			}
			return nil, apperr.New(apperr.Conflict, "checkout is already in progress")
		case slotOrder:
			return nil, apperr.New(apperr.Conflict, "order id collision, retry")
		case slotProduct:
			return nil, s.ledger.Explain(ctx, sl.productID, sl.delta)
		case slotCoupon:
			st.ClearCoupon()
			if serr := s.saveSession(ctx, st); serr != nil {
				s.logger(ctx).Warn("session not saved after coupon refusal", "err", serr)
			}
			return nil, s.promos.Explain(ctx, sl.code)
		}
	}
	return nil, apperr.Wrap(apperr.Conflict, err, "checkout conflicted with a concurrent write, retry")
}
