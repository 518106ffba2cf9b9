package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// counterRecord is the item layout: one item per identity, expiresAt is the
// table's TTL attribute.
type counterRecord struct {
	Key         string `dynamodbav:"key"`
	Hits        int    `dynamodbav:"hits"`
	WindowStart int64  `dynamodbav:"windowStart"`
	ExpiresAt   int64  `dynamodbav:"expiresAt"`
}

// DynamoStore shares counters between instances through a DynamoDB table
// keyed by "key". Hits inside a live window use an atomic ADD; an elapsed
// window is replaced with a conditional put.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
}

// NewDynamoStore creates a store on tableName.
func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	if client == nil {
		panic("ratelimit: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("ratelimit: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) Increment(ctx context.Context, identity string, window time.Duration, now time.Time) (Counter, error) {
	cutoff := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	// A concurrent reset can win the put; one retry of the ADD then lands in
	// the fresh window.
	for attempt := 0; attempt < 2; attempt++ {
		out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(s.tableName),
			Key:                 s.itemKey(identity),
			UpdateExpression:    aws.String("ADD hits :one"),
			ConditionExpression: aws.String("windowStart > :cutoff"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one":    &types.AttributeValueMemberN{Value: "1"},
				":cutoff": &types.AttributeValueMemberN{Value: cutoff},
			},
			ReturnValues: types.ReturnValueAllNew,
		})
		if err == nil {
			var rec counterRecord
			if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
				return Counter{}, fmt.Errorf("ratelimit: decode counter: %w", err)
			}
			return Counter{Count: rec.Hits, WindowStart: time.UnixMilli(rec.WindowStart)}, nil
		}
		if !isConditionFailed(err) {
			return Counter{}, fmt.Errorf("ratelimit: dynamodb update: %w", err)
		}

		rec := counterRecord{
			Key:         identity,
			Hits:        1,
			WindowStart: now.UnixMilli(),
			ExpiresAt:   now.Add(window).Unix(),
		}
		item, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return Counter{}, fmt.Errorf("ratelimit: encode counter: %w", err)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(#k) OR windowStart <= :cutoff"),
			ExpressionAttributeNames: map[string]string{
				"#k": "key",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cutoff": &types.AttributeValueMemberN{Value: cutoff},
			},
		})
		if err == nil {
			return Counter{Count: 1, WindowStart: time.UnixMilli(rec.WindowStart)}, nil
		}
		if !isConditionFailed(err) {
			return Counter{}, fmt.Errorf("ratelimit: dynamodb put: %w", err)
		}
	}
	return Counter{}, errors.New("ratelimit: dynamodb counter contention")
}

func (s *DynamoStore) Get(ctx context.Context, identity string, window time.Duration, now time.Time) (Counter, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(identity),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Counter{}, false, fmt.Errorf("ratelimit: dynamodb get: %w", err)
	}
	if len(out.Item) == 0 {
		return Counter{}, false, nil
	}
	var rec counterRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return Counter{}, false, fmt.Errorf("ratelimit: decode counter: %w", err)
	}
	start := time.UnixMilli(rec.WindowStart)
	if !now.Before(start.Add(window)) {
		return Counter{}, false, nil
	}
	return Counter{Count: rec.Hits, WindowStart: start}, true, nil
}

func (s *DynamoStore) Reset(ctx context.Context, identity string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(identity),
	})
	if err != nil {
		return fmt.Errorf("ratelimit: dynamodb delete: %w", err)
	}
	return nil
}

func (s *DynamoStore) itemKey(identity string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: identity},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

var _ Store = (*DynamoStore)(nil)
