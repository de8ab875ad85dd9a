package dynamofake

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func n(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }
func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func TestConditionalUpdate(t *testing.T) {
	db := New()
	db.CreateTable("products", "product_id")
	db.Seed("products", map[string]types.AttributeValue{"product_id": s("p1"), "stock": n("3"), "sales": n("0")})

	dec := func(q string) error {
		_, err := db.UpdateItem(context.Background(), &dyn.UpdateItemInput{
			TableName:                 sdkaws.String("products"),
			Key:                       map[string]types.AttributeValue{"product_id": s("p1")},
			UpdateExpression:          sdkaws.String("SET stock = stock - :q ADD sales :q"),
			ConditionExpression:       sdkaws.String("attribute_exists(product_id) AND stock >= :q"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":q": n(q)},
		})
		return err
	}

	if err := dec("2"); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	var cf *types.ConditionalCheckFailedException
	if err := dec("2"); !errors.As(err, &cf) {
		t.Fatalf("expected condition failure, got %v", err)
	}
	item := db.Item("products", "p1")
	if item["stock"].(*types.AttributeValueMemberN).Value != "1" || item["sales"].(*types.AttributeValueMemberN).Value != "2" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestTransactionIsAllOrNothing(t *testing.T) {
	db := New()
	db.CreateTable("products", "product_id")
	db.Seed("products", map[string]types.AttributeValue{"product_id": s("p1"), "stock": n("5")})
	db.Seed("products", map[string]types.AttributeValue{"product_id": s("p2"), "stock": n("0")})

	update := func(id string) types.TransactWriteItem {
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 sdkaws.String("products"),
			Key:                       map[string]types.AttributeValue{"product_id": s(id)},
			UpdateExpression:          sdkaws.String("SET stock = stock - :q"),
			ConditionExpression:       sdkaws.String("stock >= :q"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":q": n("1")},
		}}
	}
	_, err := db.TransactWriteItems(context.Background(), &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{update("p1"), update("p2")},
	})
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if code := *tce.CancellationReasons[1].Code; code != "ConditionalCheckFailed" {
		t.Fatalf("reason[1] = %s", code)
	}
	if got := db.Item("products", "p1")["stock"].(*types.AttributeValueMemberN).Value; got != "5" {
		t.Fatalf("p1 stock changed to %s", got)
	}
}
