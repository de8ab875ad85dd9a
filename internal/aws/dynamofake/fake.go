// Package dynamofake is an in-memory stand-in for the DynamoDB client used in unit tests.
//
// It understands the subset of the expression language the stores issue: condition,
// key-condition and filter expressions built from comparisons, attribute_exists,
// attribute_not_exists, AND/OR/NOT and parentheses; update expressions with SET (including
// "a + b", "a - b", if_not_exists and list_append), ADD and REMOVE. TransactWriteItems
// checks every condition before applying anything, under one lock.
package dynamofake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type table struct {
	key   string
	items map[string]map[string]types.AttributeValue
}

// DB is a goroutine-safe fake satisfying aws.DynamoDBAPI.
type DB struct {
	mu     sync.Mutex
	tables map[string]*table

	// FailWith, when set, is returned by every write call.
	FailWith error

	TransactCalls int
}

// New returns an empty fake.
func New() *DB {
	return &DB{tables: map[string]*table{}}
}

// CreateTable registers a table whose partition key is keyAttr.
func (d *DB) CreateTable(name, keyAttr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[name] = &table{key: keyAttr, items: map[string]map[string]types.AttributeValue{}}
}

// Seed stores item as-is, bypassing conditions.
func (d *DB) Seed(tableName string, item map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.tables[tableName]
	t.items[keyString(item[t.key])] = copyItem(item)
}

// Item returns a copy of the stored item, or nil.
func (d *DB) Item(tableName, key string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[tableName]
	if !ok {
		return nil
	}
	item, ok := t.items[key]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Len reports the number of items in a table.
func (d *DB) Len(tableName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tables[tableName]; ok {
		return len(t.items)
	}
	return 0
}

func (d *DB) lookup(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("dynamofake: missing table name")
	}
	t, ok := d.tables[*name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: sdkaws.String("table not found: " + *name)}
	}
	return t, nil
}

func (t *table) keyOf(key map[string]types.AttributeValue) (string, error) {
	v, ok := key[t.key]
	if !ok {
		return "", fmt.Errorf("dynamofake: key attribute %q missing", t.key)
	}
	return keyString(v), nil
}

// GetItem implements aws.DynamoDBAPI.
func (d *DB) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

// PutItem implements aws.DynamoDBAPI.
func (d *DB) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWith != nil {
		return nil, d.FailWith
	}
	t, err := d.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, t.items[k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
	}
	t.items[k] = copyItem(in.Item)
	return &dyn.PutItemOutput{}, nil
}

// UpdateItem implements aws.DynamoDBAPI.
func (d *DB) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWith != nil {
		return nil, d.FailWith
	}
	t, err := d.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	current := t.items[k]
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
	}
	next, err := applyUpdate(in.Key, current, in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	t.items[k] = next
	out := &dyn.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew, types.ReturnValueUpdatedNew:
		out.Attributes = copyItem(next)
	case types.ReturnValueAllOld, types.ReturnValueUpdatedOld:
		out.Attributes = copyItem(current)
	}
	return out, nil
}

// DeleteItem implements aws.DynamoDBAPI.
func (d *DB) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWith != nil {
		return nil, d.FailWith
	}
	t, err := d.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	current := t.items[k]
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, current)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
	}
	delete(t.items, k)
	out := &dyn.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld && current != nil {
		out.Attributes = copyItem(current)
	}
	return out, nil
}

// Query implements aws.DynamoDBAPI. IndexName is ignored; the key condition is evaluated
// against every item like a filter.
func (d *DB) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	var out []map[string]types.AttributeValue
	for _, k := range t.sortedKeys() {
		item := t.items[k]
		ok, err := evalCondition(in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ok, err = evalCondition(in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, copyItem(item))
		}
	}
	return &dyn.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

// Scan implements aws.DynamoDBAPI.
func (d *DB) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	var out []map[string]types.AttributeValue
	for _, k := range t.sortedKeys() {
		item := t.items[k]
		ok, err := evalCondition(in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, copyItem(item))
		}
	}
	return &dyn.ScanOutput{Items: out, Count: int32(len(out))}, nil
}

type stagedWrite struct {
	t    *table
	key  string
	item map[string]types.AttributeValue // nil deletes
}

// TransactWriteItems implements aws.DynamoDBAPI with all-or-nothing semantics.
func (d *DB) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.TransactCalls++
	if d.FailWith != nil {
		return nil, d.FailWith
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	staged := make([]stagedWrite, 0, len(in.TransactItems))
	seen := map[string]bool{}

	for i, it := range in.TransactItems {
		var (
			tableName *string
			key       map[string]types.AttributeValue
			cond      *string
			names     map[string]string
			values    map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			tableName, key, cond, names, values = it.Put.TableName, it.Put.Item, it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
		case it.Update != nil:
			tableName, key, cond, names, values = it.Update.TableName, it.Update.Key, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
		case it.Delete != nil:
			tableName, key, cond, names, values = it.Delete.TableName, it.Delete.Key, it.Delete.ConditionExpression, it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues
		case it.ConditionCheck != nil:
			tableName, key, cond, names, values = it.ConditionCheck.TableName, it.ConditionCheck.Key, it.ConditionCheck.ConditionExpression, it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues
		default:
			return nil, fmt.Errorf("dynamofake: empty transact item %d", i)
		}

		t, err := d.lookup(tableName)
		if err != nil {
			return nil, err
		}
		k, err := t.keyOf(key)
		if err != nil {
			return nil, err
		}
		target := *tableName + "/" + k
		if seen[target] {
			return nil, errors.New("dynamofake: transaction cannot include multiple operations on one item")
		}
		seen[target] = true

		current := t.items[k]
		ok, err := evalCondition(cond, names, values, current)
		if err != nil {
			return nil, err
		}
		if !ok {
			failed = true
			reasons[i] = types.CancellationReason{Code: sdkaws.String("ConditionalCheckFailed"), Message: sdkaws.String("The conditional request failed")}
			continue
		}
		reasons[i] = types.CancellationReason{Code: sdkaws.String("None")}

		switch {
		case it.Put != nil:
			staged = append(staged, stagedWrite{t: t, key: k, item: copyItem(it.Put.Item)})
		case it.Update != nil:
			next, err := applyUpdate(it.Update.Key, current, it.Update.UpdateExpression, names, values)
			if err != nil {
				return nil, err
			}
			staged = append(staged, stagedWrite{t: t, key: k, item: next})
		case it.Delete != nil:
			staged = append(staged, stagedWrite{t: t, key: k})
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             sdkaws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, w := range staged {
		if w.item == nil {
			delete(w.t.items, w.key)
			continue
		}
		w.t.items[w.key] = w.item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (t *table) sortedKeys() []string {
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func keyString(v types.AttributeValue) string {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value
	case *types.AttributeValueMemberN:
		return tv.Value
	default:
		return fmt.Sprintf("%v", v)
	}
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
