package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/aws/dynamofake"
	"github.com/imrishuroy/go-storefront-ledger/internal/catalog"
	"github.com/imrishuroy/go-storefront-ledger/internal/idempotency"
	"github.com/imrishuroy/go-storefront-ledger/internal/inventory"
	"github.com/imrishuroy/go-storefront-ledger/internal/notify"
	"github.com/imrishuroy/go-storefront-ledger/internal/orders"
	"github.com/imrishuroy/go-storefront-ledger/internal/promo"
	"github.com/imrishuroy/go-storefront-ledger/internal/session"
	"github.com/imrishuroy/go-storefront-ledger/internal/users"
)

const homeAddress = "12 Long Street, Springfield"

type sentSummary struct {
	userID  string
	summary notify.Summary
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentSummary
	err  error
}

func (n *recordingNotifier) Dispatch(_ context.Context, userID string, s notify.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentSummary{userID: userID, summary: s})
	return n.err
}

type fixture struct {
	db       *dynamofake.DB
	sessions *session.MemoryStore
	notifier *recordingNotifier
	svc      *Service
	ids      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dynamofake.New()
	db.CreateTable("products", "product_id")
	db.CreateTable("promo_codes", "code")
	db.CreateTable("orders", "order_id")
	db.CreateTable("users", "user_id")
	db.CreateTable("idempotency", "idempotency_key")

	products := catalog.NewStore(db, "products")
	orderStore := orders.NewStore(db, "orders")
	f := &fixture{
		db:       db,
		sessions: session.NewMemoryStore(),
		notifier: &recordingNotifier{},
	}
	f.svc = New(Deps{
		DynamoDB:    db,
		Products:    products,
		Promos:      promo.NewService(promo.NewStore(db, "promo_codes")),
		Orders:      orderStore,
		Ledger:      inventory.NewLedger(products, orderStore),
		Idempotency: idempotency.NewStore(db, "idempotency", time.Hour),
		Users:       users.NewStore(db, "users"),
		Sessions:    f.sessions,
		Notifier:    f.notifier,
	})
	f.svc.newID = func() string {
		f.ids++
		return "order-" + string(rune('0'+f.ids))
	}
	f.seed(t, "users", users.User{UserID: "u1", Name: "Ada", Email: "ada@example.com", Phone: "+44 20 7946 0018"})
	return f
}

func (f *fixture) seed(t *testing.T, table string, v any) {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	f.db.Seed(table, item)
}

func (f *fixture) product(t *testing.T, id string) catalog.Product {
	t.Helper()
	var p catalog.Product
	require.NoError(t, attributevalue.UnmarshalMap(f.db.Item("products", id), &p))
	return p
}

func (f *fixture) code(t *testing.T, code string) promo.Code {
	t.Helper()
	var c promo.Code
	require.NoError(t, attributevalue.UnmarshalMap(f.db.Item("promo_codes", code), &c))
	return c
}

func laptop() catalog.Product {
	return catalog.Product{ProductID: "p1", Name: "Laptop", Price: 100000, Discount: 0.1, Stock: 5}
}

func mouse() catalog.Product {
	return catalog.Product{ProductID: "p2", Name: "Mouse", Price: 500, Stock: 10}
}

func save20(expires time.Time) promo.Code {
	return promo.Code{Code: "SAVE20", Discount: 0.2, MaxUses: 5, ExpiresAt: expires, IsActive: true}
}

func TestPlaceAppliesDiscountsAndCommitsEverything(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	f.seed(t, "promo_codes", save20(time.Now().Add(24*time.Hour)))
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	_, view, err := f.svc.ApplyCoupon(ctx, "u1", "save20")
	require.NoError(t, err)
	assert.Equal(t, 144000.0, view.Total)

	p, err := f.svc.Place(ctx, PlaceRequest{UserID: "u1", DeliveryMethod: orders.DeliveryHome, DeliveryAddress: "  " + homeAddress + " "})
	require.NoError(t, err)
	require.False(t, p.Replayed)

	o := p.Order
	assert.Equal(t, 180000.0, o.Subtotal)
	assert.Equal(t, 36000.0, o.CouponAmount)
	assert.Equal(t, 144000.0, o.Total)
	assert.Equal(t, "SAVE20", o.CouponCode)
	assert.Equal(t, homeAddress, o.DeliveryAddress)
	assert.Equal(t, "ada@example.com", o.UserEmail)
	assert.Equal(t, orders.StatusPending, o.Status)
	require.Len(t, o.StatusHistory, 1)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 90000.0, o.Items[0].UnitPrice)
	assert.Equal(t, 100000.0, o.Items[0].OriginalPrice)

	stored := f.product(t, "p1")
	assert.Equal(t, 3, stored.Stock)
	assert.Equal(t, 2, stored.Sales)
	assert.Equal(t, 1, f.code(t, "SAVE20").Uses)
	assert.Equal(t, 1, f.db.Len("orders"))

	st, err := f.sessions.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, st.Cart)
	assert.Nil(t, st.Coupon)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notify.KindCreated, f.notifier.sent[0].summary.Kind)
	assert.Equal(t, "Ada", f.notifier.sent[0].summary.Customer)
}

// countingSessions records Clear calls and can fail them.
type countingSessions struct {
	*session.MemoryStore
	cleared []string
	err     error
}

func (c *countingSessions) Clear(ctx context.Context, userID string) error {
	c.cleared = append(c.cleared, userID)
	if c.err != nil {
		return c.err
	}
	return c.MemoryStore.Clear(ctx, userID)
}

func TestPlaceClearsSession(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	sessions := &countingSessions{MemoryStore: f.sessions}
	f.svc.sessions = sessions
	ctx := context.Background()

	_, err := f.svc.AddToCart(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	_, err = f.svc.Place(ctx, PlaceRequest{UserID: "u1", DeliveryMethod: orders.DeliveryPickup})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, sessions.cleared)

	st, err := f.sessions.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, st.Cart)

	// A failed clear leaves a stale cart but the order stands.
	sessions.err = errors.New("redis down")
	_, err = f.svc.AddToCart(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	_, err = f.svc.Place(ctx, PlaceRequest{UserID: "u1", DeliveryMethod: orders.DeliveryPickup})
	require.NoError(t, err)
	assert.Len(t, sessions.cleared, 2)
	assert.Equal(t, 2, f.db.Len("orders"))
	assert.Equal(t, 3, f.product(t, "p1").Stock)

	st, err = f.sessions.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, st.Cart, 1)
}

func TestPlaceRejectsInsufficientStockWithoutWrites(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())

	_, err := f.svc.Place(context.Background(), PlaceRequest{
		UserID:         "u1",
		Items:          []inventory.Item{{ProductID: "p1", Quantity: 6}},
		DeliveryMethod: orders.DeliveryPickup,
	})
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock), "got %v", err)
	assert.Equal(t, 5, f.product(t, "p1").Stock)
	assert.Equal(t, 0, f.db.Len("orders"))
	assert.Equal(t, 0, f.db.TransactCalls)
	assert.Empty(t, f.notifier.sent)
}

func TestPlaceRejectsBadDelivery(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	items := []inventory.Item{{ProductID: "p1", Quantity: 1}}

	_, err := f.svc.Place(context.Background(), PlaceRequest{UserID: "u1", Items: items, DeliveryMethod: orders.DeliveryHome, DeliveryAddress: " short "})
	assert.True(t, errors.Is(err, apperr.ErrInvalidAddress))

	_, err = f.svc.Place(context.Background(), PlaceRequest{UserID: "u1", Items: items, DeliveryMethod: "drone"})
	assert.True(t, errors.Is(err, apperr.ErrInvalidDeliveryMethod))
	assert.Equal(t, 0, f.db.Len("orders"))
}

func TestPlaceRejectedMultiLineOrderLeavesAllProducts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	out := mouse()
	out.Stock = 0
	f.seed(t, "products", out)

	_, err := f.svc.Place(context.Background(), PlaceRequest{
		UserID: "u1",
		Items: []inventory.Item{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		DeliveryMethod: orders.DeliveryPickup,
	})
	assert.True(t, errors.Is(err, apperr.ErrOutOfStock), "got %v", err)
	assert.Equal(t, 5, f.product(t, "p1").Stock)
	assert.Equal(t, 0, f.product(t, "p1").Sales)
	assert.Equal(t, 0, f.db.Len("orders"))
}

func TestPlaceIsIdempotentPerKey(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	ctx := context.Background()
	req := PlaceRequest{
		UserID:         "u1",
		Items:          []inventory.Item{{ProductID: "p1", Quantity: 1}},
		DeliveryMethod: orders.DeliveryPickup,
		IdempotencyKey: "client-key-1",
	}

	first, err := f.svc.Place(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Place(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.OrderID, second.Order.OrderID)
	assert.Equal(t, 4, f.product(t, "p1").Stock)
	assert.Equal(t, 1, f.db.Len("orders"))
	assert.Len(t, f.notifier.sent, 1)
}

func TestPlaceLastUnitRace(t *testing.T) {
	f := newFixture(t)
	last := mouse()
	last.Stock = 1
	f.seed(t, "products", last)
	var mu sync.Mutex
	n := 0
	f.svc.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "race-" + string(rune('a'+n))
	}

	const buyers = 8
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Place(context.Background(), PlaceRequest{
				UserID:         "u1",
				Items:          []inventory.Item{{ProductID: "p2", Quantity: 1}},
				DeliveryMethod: orders.DeliveryPickup,
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperr.IsValidation(err) || errors.Is(err, apperr.ErrConflict), "got %v", err)
	}
	assert.Equal(t, 1, ok)
	p := f.product(t, "p2")
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, 1, p.Sales)
}

func TestPlaceDropsExpiredCoupon(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	f.seed(t, "promo_codes", save20(time.Now().Add(-time.Minute)))
	ctx := context.Background()

	st := &session.State{UserID: "u1"}
	st.SetCoupon(session.AppliedCoupon{Code: "SAVE20", Discount: 0.2})
	require.NoError(t, f.sessions.Save(ctx, st))

	_, err := f.svc.Place(ctx, PlaceRequest{
		UserID:         "u1",
		Items:          []inventory.Item{{ProductID: "p1", Quantity: 1}},
		DeliveryMethod: orders.DeliveryPickup,
	})
	assert.True(t, errors.Is(err, apperr.ErrCouponExpired), "got %v", err)

	st, err = f.sessions.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, st.Coupon)
	assert.Equal(t, 5, f.product(t, "p1").Stock)
	assert.Equal(t, 0, f.code(t, "SAVE20").Uses)
}

func TestApplyCouponRefusalClearsSession(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "promo_codes", save20(time.Now().Add(time.Hour)))
	ctx := context.Background()

	_, _, err := f.svc.ApplyCoupon(ctx, "u1", "SAVE20")
	require.NoError(t, err)
	_, view, err := f.svc.ApplyCoupon(ctx, "u1", "NOPE")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Nil(t, view.Coupon)

	st, err := f.sessions.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, st.Coupon)
}

func TestCartOperations(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	ctx := context.Background()

	view, err := f.svc.AddToCart(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 180000.0, view.Subtotal)

	_, err = f.svc.AddToCart(ctx, "u1", "p1", 4)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock))

	view, err = f.svc.SetCartQuantity(ctx, "u1", "p1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Lines[0].Quantity)

	view, err = f.svc.SetCartQuantity(ctx, "u1", "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)

	_, err = f.svc.RemoveFromCart(ctx, "u1", "p1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, 5, f.product(t, "p1").Stock)
}

func placeOne(t *testing.T, f *fixture, items ...inventory.Item) *orders.Order {
	t.Helper()
	p, err := f.svc.Place(context.Background(), PlaceRequest{UserID: "u1", Items: items, DeliveryMethod: orders.DeliveryPickup})
	require.NoError(t, err)
	return p.Order
}

func TestAdvanceStopsAtDelivered(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	ctx := context.Background()
	o := placeOne(t, f, inventory.Item{ProductID: "p1", Quantity: 1})

	shipped, err := f.svc.Advance(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, shipped.Status)
	delivered, err := f.svc.Advance(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, delivered.Status)
	require.Len(t, delivered.StatusHistory, 3)

	_, err = f.svc.Advance(ctx, o.OrderID)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyTerminal))

	got, err := f.svc.Order(ctx, "u1", o.OrderID, false)
	require.NoError(t, err)
	assert.Len(t, got.StatusHistory, 3)
	assert.Equal(t, 3, got.Version)
}

func TestUpdateMovesStockByDifference(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	f.seed(t, "products", mouse())
	ctx := context.Background()
	o := placeOne(t, f, inventory.Item{ProductID: "p1", Quantity: 2}, inventory.Item{ProductID: "p2", Quantity: 3})
	require.Equal(t, 3, f.product(t, "p1").Stock)
	require.Equal(t, 7, f.product(t, "p2").Stock)

	updated, err := f.svc.Update(ctx, o.OrderID, OrderPatch{Items: []inventory.Item{
		{ProductID: "p1", Quantity: 4},
		{ProductID: "p2", Quantity: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.product(t, "p1").Stock)
	assert.Equal(t, 4, f.product(t, "p1").Sales)
	assert.Equal(t, 9, f.product(t, "p2").Stock)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 360500.0, updated.Total)

	_, err = f.svc.Update(ctx, o.OrderID, OrderPatch{Items: []inventory.Item{{ProductID: "p1", Quantity: 6}}})
	assert.True(t, errors.Is(err, apperr.ErrInsufficientStock), "got %v", err)
	assert.Equal(t, 1, f.product(t, "p1").Stock)
}

func TestUpdateStatusAndDelivery(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	ctx := context.Background()
	o := placeOne(t, f, inventory.Item{ProductID: "p1", Quantity: 1})

	home, addr := orders.DeliveryHome, homeAddress
	shipped := orders.StatusShipped
	updated, err := f.svc.Update(ctx, o.OrderID, OrderPatch{DeliveryMethod: &home, DeliveryAddress: &addr, Status: &shipped})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, updated.Status)
	assert.Len(t, updated.StatusHistory, 2)
	assert.Equal(t, homeAddress, updated.DeliveryAddress)

	pending := orders.StatusPending
	_, err = f.svc.Update(ctx, o.OrderID, OrderPatch{Status: &pending})
	assert.True(t, errors.Is(err, apperr.ErrInvalidStatus))

	// Same status again: no new history entry.
	updated, err = f.svc.Update(ctx, o.OrderID, OrderPatch{Status: &shipped})
	require.NoError(t, err)
	assert.Len(t, updated.StatusHistory, 2)
}

func TestUpdateRefusesStaleVersion(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	ctx := context.Background()
	o := placeOne(t, f, inventory.Item{ProductID: "p1", Quantity: 1})

	// Another writer rewrites the order after it was read at version 1.
	concurrent := *o
	concurrent.Version = 2
	f.seed(t, "orders", concurrent)

	mine := *o
	mine.Version = 2
	item, err := f.svc.orders.ReplaceItem(mine, 1)
	require.NoError(t, err)
	_, err = f.db.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{item}})
	require.Error(t, err)

	err = f.svc.explainUpdate(ctx, err, o.OrderID, nil)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
	assert.Equal(t, orders.ErrVersionMismatch, err)
}

func TestDeleteKeepsStockAndCouponUses(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	ctx := context.Background()
	o := placeOne(t, f, inventory.Item{ProductID: "p1", Quantity: 2})

	deleted, err := f.svc.Delete(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderID, deleted.OrderID)
	assert.Equal(t, 3, f.product(t, "p1").Stock)
	assert.Equal(t, 0, f.db.Len("orders"))

	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, notify.KindCancelled, last.summary.Kind)

	_, err = f.svc.Delete(ctx, o.OrderID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestOrderVisibility(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	ctx := context.Background()
	o := placeOne(t, f, inventory.Item{ProductID: "p1", Quantity: 1})

	_, err := f.svc.Order(ctx, "someone-else", o.OrderID, false)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = f.svc.Order(ctx, "admin", o.OrderID, true)
	assert.NoError(t, err)

	mine, err := f.svc.OrdersForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	all, err := f.svc.AllOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNotificationFailureDoesNotFailCheckout(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "products", laptop())
	f.notifier.err = apperr.New(apperr.NoPhoneOnFile, "no phone")

	o := placeOne(t, f, inventory.Item{ProductID: "p1", Quantity: 1})
	assert.NotEmpty(t, o.OrderID)
	assert.Equal(t, 4, f.product(t, "p1").Stock)
}
