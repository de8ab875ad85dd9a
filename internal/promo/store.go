package promo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/aws"
)

// Store encapsulates operations on the promo_codes table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new promo code Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func codeKey(code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"code": &types.AttributeValueMemberS{Value: Normalize(code)},
	}
}

// redeemCondition guards every uses increment.
const redeemCondition = "#a = :true AND #u < #m AND #e > :now"

var redeemNames = map[string]string{
	"#a": "is_active",
	"#u": "uses",
	"#m": "max_uses",
	"#e": "expires_at",
}

func redeemValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":true": &types.AttributeValueMemberBOOL{Value: true},
		":now":  &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		":one":  &types.AttributeValueMemberN{Value: "1"},
	}
}

// FindByCode fetches a code (case-insensitive). Returns (nil, nil) if not found.
func (s *Store) FindByCode(ctx context.Context, code string) (*Code, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            codeKey(code),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get promo code: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Code
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal promo code: %w", err)
	}
	return &c, nil
}

// IncrementUses atomically adds one use if the code is still redeemable at now.
// A refused increment is reported with the matching coupon kind.
func (s *Store) IncrementUses(ctx context.Context, code string, now time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       codeKey(code),
		UpdateExpression:          awsString("ADD #u :one"),
		ConditionExpression:       awsString(redeemCondition),
		ExpressionAttributeNames:  redeemNames,
		ExpressionAttributeValues: redeemValues(now),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return s.Explain(ctx, code, now)
		}
		return apperr.Persistence(err, "increment promo uses")
	}
	return nil
}

// ConsumeItem builds the transaction item that redeems one use of code at now.
func (s *Store) ConsumeItem(code string, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 &s.tableName,
			Key:                       codeKey(code),
			UpdateExpression:          awsString("ADD #u :one"),
			ConditionExpression:       awsString(redeemCondition),
			ExpressionAttributeNames:  redeemNames,
			ExpressionAttributeValues: redeemValues(now),
		},
	}
}

// Explain re-reads code and returns why it cannot be redeemed at now. When the fresh read
// shows the code as redeemable the refusal came from a concurrent redemption, reported as
// exhausted.
func (s *Store) Explain(ctx context.Context, code string, now time.Time) error {
	c, err := s.FindByCode(ctx, code)
	if err != nil {
		return apperr.Persistence(err, "reload promo code")
	}
	if c == nil {
		return apperr.New(apperr.NotFound, "promo code %s not found", Normalize(code))
	}
	if err := c.Check(now); err != nil {
		return err
	}
	return apperr.New(apperr.CouponExhausted, "promo code %s has reached its usage limit", c.Code)
}

// Create stores a new code with zero uses. Duplicate codes are rejected.
func (s *Store) Create(ctx context.Context, c Code) (*Code, error) {
	c.Code = Normalize(c.Code)
	c.Uses = 0
	c.CreatedAt = s.nowFunc().UTC()

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("marshal promo code: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString("attribute_not_exists(#c)"),
		ExpressionAttributeNames: map[string]string{"#c": "code"},
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, apperr.New(apperr.Conflict, "promo code %s already exists", c.Code)
		}
		return nil, fmt.Errorf("put promo code: %w", err)
	}
	return &c, nil
}

// List returns every code, newest first.
func (s *Store) List(ctx context.Context) ([]Code, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}
	var codes []Code
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan promo codes: %w", err)
		}
		var page []Code
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal promo codes: %w", err)
		}
		codes = append(codes, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	sort.SliceStable(codes, func(i, j int) bool { return codes[i].CreatedAt.After(codes[j].CreatedAt) })
	return codes, nil
}

// SetActive flips the active flag and returns the stored code.
func (s *Store) SetActive(ctx context.Context, code string, active bool) (*Code, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       codeKey(code),
		UpdateExpression:          awsString("SET #a = :a"),
		ConditionExpression:       awsString("attribute_exists(#c)"),
		ExpressionAttributeNames:  map[string]string{"#a": "is_active", "#c": "code"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":a": &types.AttributeValueMemberBOOL{Value: active}},
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, apperr.New(apperr.NotFound, "promo code %s not found", Normalize(code))
		}
		return nil, fmt.Errorf("update promo code: %w", err)
	}
	var c Code
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return nil, fmt.Errorf("unmarshal promo code: %w", err)
	}
	return &c, nil
}

// Update applies an admin edit. MaxUses is only lowered as far as the uses already
// redeemed; going below is InvalidInput.
func (s *Store) Update(ctx context.Context, code string, patch Patch) (*Code, error) {
	names := map[string]string{"#c": "code"}
	values := map[string]types.AttributeValue{}
	var sets []string
	set := func(attr, placeholder string, v types.AttributeValue) {
		names["#"+placeholder] = attr
		values[":"+placeholder] = v
		sets = append(sets, fmt.Sprintf("#%s = :%s", placeholder, placeholder))
	}
	if patch.Discount != nil {
		set("discount", "d", &types.AttributeValueMemberN{Value: strconv.FormatFloat(*patch.Discount, 'f', -1, 64)})
	}
	if patch.MaxUses != nil {
		set("max_uses", "m", &types.AttributeValueMemberN{Value: strconv.Itoa(*patch.MaxUses)})
	}
	if patch.ExpiresAt != nil {
		set("expires_at", "e", &types.AttributeValueMemberN{Value: strconv.FormatInt(patch.ExpiresAt.Unix(), 10)})
	}
	if patch.IsActive != nil {
		set("is_active", "a", &types.AttributeValueMemberBOOL{Value: *patch.IsActive})
	}
	if patch.Description != nil {
		set("description", "ds", &types.AttributeValueMemberS{Value: *patch.Description})
	}
	if len(sets) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "nothing to update")
	}

	cond := "attribute_exists(#c)"
	if patch.MaxUses != nil {
		names["#u"] = "uses"
		cond += " AND #u <= :m"
	}

	expr := "SET " + sets[0]
	for _, part := range sets[1:] {
		expr += ", " + part
	}
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       codeKey(code),
		UpdateExpression:          awsString(expr),
		ConditionExpression:       awsString(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if !errors.As(err, &cf) {
			return nil, fmt.Errorf("update promo code: %w", err)
		}
		current, gerr := s.FindByCode(ctx, code)
		if gerr != nil {
			return nil, gerr
		}
		if current == nil {
			return nil, apperr.New(apperr.NotFound, "promo code %s not found", Normalize(code))
		}
		return nil, apperr.New(apperr.InvalidInput, "max uses %d is below the %d uses already redeemed", *patch.MaxUses, current.Uses)
	}
	var c Code
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return nil, fmt.Errorf("unmarshal promo code: %w", err)
	}
	return &c, nil
}

// Delete removes a code.
func (s *Store) Delete(ctx context.Context, code string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:                &s.tableName,
		Key:                      codeKey(code),
		ConditionExpression:      awsString("attribute_exists(#c)"),
		ExpressionAttributeNames: map[string]string{"#c": "code"},
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return apperr.New(apperr.NotFound, "promo code %s not found", Normalize(code))
		}
		return fmt.Errorf("delete promo code: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
