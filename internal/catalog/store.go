package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/aws"
)

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func productKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Get fetches a product by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, productID string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            productKey(productID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// List returns all products, optionally restricted to one category, sorted by name.
func (s *Store) List(ctx context.Context, category string) ([]Product, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}
	if category != "" {
		input.FilterExpression = awsString("category = :c")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: category},
		}
	}

	var products []Product
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan products: %w", err)
		}
		var page []Product
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal products: %w", err)
		}
		products = append(products, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

// Categories returns the distinct non-empty categories of the catalog.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	products, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, p := range products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out, nil
}

// Create stores a new product with sales 0. The id is generated when empty.
func (s *Store) Create(ctx context.Context, p Product) (*Product, error) {
	if p.ProductID == "" {
		p.ProductID = uuid.NewString()
	}
	now := s.nowFunc().UTC()
	p.Sales = 0
	p.CreatedAt = now
	p.UpdatedAt = now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(product_id)"),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, apperr.New(apperr.Conflict, "product %s already exists", p.ProductID)
		}
		return nil, fmt.Errorf("put product: %w", err)
	}
	return &p, nil
}

// Update applies patch to an existing product and returns the stored result.
func (s *Store) Update(ctx context.Context, productID string, patch Patch) (*Product, error) {
	if patch.empty() {
		p, err := s.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, apperr.New(apperr.NotFound, "product %s not found", productID)
		}
		return p, nil
	}
	return s.update(ctx, productID, patch, nil)
}

// UpdateStock applies patch and sets stock in one write, provided stock still equals
// expected. ErrStockChanged is returned otherwise.
func (s *Store) UpdateStock(ctx context.Context, productID string, patch Patch, stock, expected int) (*Product, error) {
	return s.update(ctx, productID, patch, &stockChange{to: stock, expected: expected})
}

// SetStock overwrites the stock count of an existing product, provided it still equals
// expected.
func (s *Store) SetStock(ctx context.Context, productID string, stock, expected int) error {
	_, err := s.UpdateStock(ctx, productID, Patch{}, stock, expected)
	return err
}

type stockChange struct {
	to, expected int
}

func (s *Store) update(ctx context.Context, productID string, patch Patch, stock *stockChange) (*Product, error) {
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
	}
	sets := []string{"updated_at = :ua"}
	add := func(attr string, v types.AttributeValue) {
		n := "#" + attr
		names[n] = attr
		values[":"+attr] = v
		sets = append(sets, n+" = :"+attr)
	}
	if patch.Name != nil {
		add("name", &types.AttributeValueMemberS{Value: *patch.Name})
	}
	if patch.Price != nil {
		add("price", number(*patch.Price))
	}
	if patch.Discount != nil {
		add("discount", number(*patch.Discount))
	}
	if patch.Category != nil {
		add("category", &types.AttributeValueMemberS{Value: *patch.Category})
	}
	if patch.Description != nil {
		add("description", &types.AttributeValueMemberS{Value: *patch.Description})
	}
	if patch.Image != nil {
		add("image", &types.AttributeValueMemberS{Value: *patch.Image})
	}
	cond := "attribute_exists(product_id)"
	if stock != nil {
		add("stock", number(float64(stock.to)))
		values[":read"] = number(float64(stock.expected))
		cond += " AND #stock = :read"
	}

	input := &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       productKey(productID),
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString(cond),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}
	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if !errors.As(err, &cf) {
			return nil, fmt.Errorf("update product: %w", err)
		}
		if stock != nil {
			current, gerr := s.Get(ctx, productID)
			if gerr != nil {
				return nil, gerr
			}
			if current != nil {
				return nil, ErrStockChanged
			}
		}
		return nil, apperr.New(apperr.NotFound, "product %s not found", productID)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// Delete removes a product. Open orders keep their line snapshots; restocking a deleted
// product later fails as NotFound.
func (s *Store) Delete(ctx context.Context, productID string) (*Product, error) {
	out, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 productKey(productID),
		ConditionExpression: awsString("attribute_exists(product_id)"),
		ReturnValues:        types.ReturnValueAllOld,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, apperr.New(apperr.NotFound, "product %s not found", productID)
		}
		return nil, fmt.Errorf("delete product: %w", err)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// ErrStockChanged is returned by UpdateStock and SetStock when the stock no longer has the value the
// caller read.
var ErrStockChanged = errors.New("stock changed since it was read")

// DecrementItem builds the transaction item that takes qty units out of stock and adds them
// to sales. The condition keeps stock from going negative.
func (s *Store) DecrementItem(productID string, qty int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           &s.tableName,
			Key:                 productKey(productID),
			UpdateExpression:    awsString("SET stock = stock - :q, updated_at = :ua ADD sales :q"),
			ConditionExpression: awsString("attribute_exists(product_id) AND stock >= :q"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":q":  number(float64(qty)),
				":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
			},
		},
	}
}

// RestockItem builds the transaction item that returns qty units to stock. Sales are left
// untouched so they stay monotonic.
func (s *Store) RestockItem(productID string, qty int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           &s.tableName,
			Key:                 productKey(productID),
			UpdateExpression:    awsString("SET stock = stock + :q, updated_at = :ua"),
			ConditionExpression: awsString("attribute_exists(product_id)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":q":  number(float64(qty)),
				":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
			},
		},
	}
}

func number(f float64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
