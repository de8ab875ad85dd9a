// Package users holds the user directory: contact details and the admin flag.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/aws"
)

// User is the item stored in the users DynamoDB table.
type User struct {
	UserID  string `dynamodbav:"user_id" json:"id"` // PK
	Name    string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Email   string `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Phone   string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
	IsAdmin bool   `dynamodbav:"is_admin" json:"is_admin"`
}

// Store reads and updates the users table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a users Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get fetches a user. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, userID string) (*User, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// GetPhone returns the user's phone reduced to digits. NoPhoneOnFile is returned when the
// user is unknown or the stored phone has no digits.
func (s *Store) GetPhone(ctx context.Context, userID string) (string, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return "", apperr.Persistence(err, "load user")
	}
	if u == nil {
		return "", apperr.New(apperr.NoPhoneOnFile, "user %s has no phone on file", userID)
	}
	phone := Digits(u.Phone)
	if phone == "" {
		return "", apperr.New(apperr.NoPhoneOnFile, "user %s has no phone on file", userID)
	}
	return phone, nil
}

// SetPhone stores the user's phone as entered. Users are provisioned upstream, so an
// unknown user is NotFound rather than created.
func (s *Store) SetPhone(ctx context.Context, userID, phone string) (*User, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    awsString("SET phone = :p"),
		ConditionExpression: awsString("attribute_exists(user_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: phone},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, apperr.New(apperr.NotFound, "user %s not found", userID)
		}
		return nil, fmt.Errorf("update user phone: %w", err)
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Attributes, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// Digits keeps only the decimal digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func awsString(s string) *string { return &s }
