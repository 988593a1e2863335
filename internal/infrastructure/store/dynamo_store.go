package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/example/checkout-service/internal/domain/order"
)

// DynamoStore persists carts and orders in DynamoDB. Orders use the
// PayPal order id as partition key so the natural correlation key is
// also the dedupe key. GSI1 (user_id, created_at) serves per-user
// listings, GSI2 (id) serves lookups by internal id, and GSI3
// (gsi3pk, created_at) holds every order under one partition for the
// admin listing.
type DynamoStore struct {
	client         *dynamodb.Client
	cartTableName  string
	orderTableName string
}

func NewDynamoStore(client *dynamodb.Client, cartTableName, orderTableName string) *DynamoStore {
	return &DynamoStore{
		client:         client,
		cartTableName:  cartTableName,
		orderTableName: orderTableName,
	}
}

// dynamoCart represents the cart table item structure
type dynamoCart struct {
	CartID    string `dynamodbav:"cart_id"`
	State     string `dynamodbav:"state"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// dynamoOrder represents the order table item structure
type dynamoOrder struct {
	PayPalOrderID string `dynamodbav:"paypal_order_id"`
	ID            string `dynamodbav:"id"`
	UserID        string `dynamodbav:"user_id"`
	Amount        int64  `dynamodbav:"amount"`
	Currency      string `dynamodbav:"currency"`
	Items         string `dynamodbav:"items,omitempty"`
	PaymentMethod string `dynamodbav:"payment_method"`
	Status        string `dynamodbav:"status"`
	PayPalDetails string `dynamodbav:"paypal_details,omitempty"`
	CreatedAt     string `dynamodbav:"created_at"`
	UpdatedAt     string `dynamodbav:"updated_at"`
	GSI3PK        string `dynamodbav:"gsi3pk"`
}

// allOrdersPartition is the GSI3 partition key value shared by every
// order item.
const allOrdersPartition = "ORDERS"

// Cart persistence

func (s *DynamoStore) GetCart(ctx context.Context, cartID string) ([]byte, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.cartTableName),
		Key: map[string]types.AttributeValue{
			"cart_id": &types.AttributeValueMemberS{Value: cartID},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cart: %w", err)
	}
	if result.Item == nil {
		return nil, false, nil
	}

	var item dynamoCart
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cart: %w", err)
	}
	return []byte(item.State), true, nil
}

func (s *DynamoStore) SaveCart(ctx context.Context, cartID string, state []byte) error {
	item := dynamoCart{
		CartID:    cartID,
		State:     string(state),
		UpdatedAt: time.Now().Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.cartTableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put cart: %w", err)
	}
	return nil
}

func (s *DynamoStore) DeleteCart(ctx context.Context, cartID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.cartTableName),
		Key: map[string]types.AttributeValue{
			"cart_id": &types.AttributeValueMemberS{Value: cartID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// Order persistence

// UpsertOrder uses a conditional write on the PayPal order id. A lost
// condition means the order is already recorded; the existing row wins.
func (s *DynamoStore) UpsertOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	item, err := toDynamoOrder(o)
	if err != nil {
		return nil, err
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.orderTableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(paypal_order_id)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("failed to put order: %w", err)
		}
	}

	stored, ok, err := s.GetOrderByPayPalID(ctx, o.PayPalOrderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return stored, nil
}

func (s *DynamoStore) GetOrderByPayPalID(ctx context.Context, paypalOrderID string) (*order.Order, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.orderTableName),
		Key: map[string]types.AttributeValue{
			"paypal_order_id": &types.AttributeValueMemberS{Value: paypalOrderID},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get order: %w", err)
	}
	if result.Item == nil {
		return nil, false, nil
	}

	o, err := fromDynamoItem(result.Item)
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

// GetOrder scans the internal-id GSI. Internal ids are only used by the
// read API so the extra index hop is acceptable.
func (s *DynamoStore) GetOrder(ctx context.Context, id string) (*order.Order, bool, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.orderTableName),
		IndexName:              aws.String("GSI2"),
		KeyConditionExpression: aws.String("id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to query order: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, false, nil
	}

	o, err := fromDynamoItem(result.Items[0])
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (s *DynamoStore) ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.orderTableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return fromDynamoItems(result.Items)
}

func (s *DynamoStore) ListAllOrders(ctx context.Context) ([]*order.Order, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.orderTableName),
		IndexName:              aws.String("GSI3"),
		KeyConditionExpression: aws.String("gsi3pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: allOrdersPartition},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return fromDynamoItems(result.Items)
}

func toDynamoOrder(o *order.Order) (dynamoOrder, error) {
	var items string
	if len(o.Items) > 0 {
		data, err := json.Marshal(o.Items)
		if err != nil {
			return dynamoOrder{}, fmt.Errorf("failed to marshal order items: %w", err)
		}
		items = string(data)
	}

	return dynamoOrder{
		PayPalOrderID: o.PayPalOrderID,
		ID:            o.ID,
		UserID:        o.UserID,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Items:         items,
		PaymentMethod: o.PaymentMethod,
		Status:        string(o.Status),
		PayPalDetails: string(o.PayPalDetails),
		CreatedAt:     o.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:     o.UpdatedAt.Format(time.RFC3339Nano),
		GSI3PK:        allOrdersPartition,
	}, nil
}

func fromDynamoItem(item map[string]types.AttributeValue) (*order.Order, error) {
	var do dynamoOrder
	if err := attributevalue.UnmarshalMap(item, &do); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}

	o := &order.Order{
		ID:            do.ID,
		UserID:        do.UserID,
		Amount:        do.Amount,
		Currency:      do.Currency,
		PaymentMethod: do.PaymentMethod,
		PayPalOrderID: do.PayPalOrderID,
		Status:        order.Status(do.Status),
		PayPalDetails: json.RawMessage(do.PayPalDetails),
	}
	if do.Items != "" {
		if err := json.Unmarshal([]byte(do.Items), &o.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
		}
	}
	o.CreatedAt, _ = time.Parse(time.RFC3339Nano, do.CreatedAt)
	o.UpdatedAt, _ = time.Parse(time.RFC3339Nano, do.UpdatedAt)
	return o, nil
}

func fromDynamoItems(items []map[string]types.AttributeValue) ([]*order.Order, error) {
	orders := make([]*order.Order, 0, len(items))
	for _, item := range items {
		o, err := fromDynamoItem(item)
		if err != nil {
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}
