package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-ledger/internal/aws/dynamofake"
)

func newTestStore(t *testing.T) (*Store, *dynamofake.DB) {
	t.Helper()
	db := dynamofake.New()
	db.CreateTable("idempotency-table", "idempotency_key")
	return NewStore(db, "idempotency-table", 48*time.Hour), db
}

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	s, db := newTestStore(t)

	ctx := context.Background()
	key := Key(ScopeNotify, "queue", "msg-1")
	orderID := "order-123"

	created, err := s.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", rec.Status)
	}
	if rec.OrderID != orderID {
		t.Fatalf("order id mismatch")
	}
	if rec.ExpiresAt <= time.Now().Unix() {
		t.Fatalf("expected a future TTL, got %d", rec.ExpiresAt)
	}

	if err := s.MarkDone(ctx, key, "{\"ok\":true}", 201); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	item := db.Item("idempotency-table", key)
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != "{\"ok\":true}" {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}

	if err := s.MarkFailed(ctx, key, "failed-reason"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	item2 := db.Item("idempotency-table", key)
	if st, ok := item2["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusFailed {
		t.Fatalf("status not updated to FAILED, got %+v", item2["status"])
	}
	if n, ok := item2["note"].(*types.AttributeValueMemberS); !ok || n.Value != "failed-reason" {
		t.Fatalf("note not set, got %+v", item2["note"])
	}
}

func TestReclaim(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	key := Key(ScopeNotify, "queue", "msg-2")

	if _, err := s.CreateIfNotExists(ctx, key, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := s.Reclaim(ctx, key)
	if err != nil || ok {
		t.Fatalf("an IN_PROGRESS record must not be reclaimed: %v %v", ok, err)
	}

	if err := s.MarkFailed(ctx, key, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	ok, err = s.Reclaim(ctx, key)
	if err != nil || !ok {
		t.Fatalf("a FAILED record must be reclaimable: %v %v", ok, err)
	}
	rec, _ := s.Get(ctx, key)
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS after reclaim, got %s", rec.Status)
	}
}

func TestCompletedItem_OnlyOncePerKey(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	key := Key(ScopeCheckout, "u1", "abc")

	item, err := s.CompletedItem(key, "o1", `{"id":"o1"}`, 201)
	if err != nil {
		t.Fatalf("CompletedItem: %v", err)
	}
	if _, err := db.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{item}}); err != nil {
		t.Fatalf("first write: %v", err)
	}

	again, _ := s.CompletedItem(key, "o2", `{"id":"o2"}`, 201)
	_, err = db.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{again}})
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		t.Fatalf("expected cancellation on reused key, got %v", err)
	}

	rec, _ := s.Get(ctx, key)
	if rec.OrderID != "o1" || rec.Status != StatusDone || rec.ResponseStatus != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestKeyIsScopedByOwner(t *testing.T) {
	if Key(ScopeCheckout, "u1", "k") == Key(ScopeCheckout, "u2", "k") {
		t.Fatalf("keys of different owners must differ")
	}
}

func TestMarkDone_MissingRecord(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.MarkDone(context.Background(), Key(ScopeNotify, "queue", "never-claimed"), "{}", 200)
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
}
