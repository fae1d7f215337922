package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mmeshcher/webagency/internal/model"
)

// DynamoAPI: используемое подмножество клиента DynamoDB.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoOptions: параметры подключения к DynamoDB.
type DynamoOptions struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewDynamoClient создаёт клиента DynamoDB. Endpoint задаётся для локального DynamoDB.
func NewDynamoClient(ctx context.Context, opts DynamoOptions) (*dynamodb.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// sessionItem: строка таблицы сессий. Атрибут expires_at подходит для TTL таблицы.
type sessionItem struct {
	Token     string `dynamodbav:"token"`
	Payload   string `dynamodbav:"payload"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// DynamoStore хранит сессии оформления в таблице DynamoDB с ключом token.
// Фоновое удаление по TTL в DynamoDB запаздывает, поэтому срок проверяется и при чтении.
type DynamoStore struct {
	ddb   DynamoAPI
	table string
	ttl   time.Duration
	now   func() time.Time
}

// NewDynamoStore создаёт хранилище сессий поверх DynamoDB.
func NewDynamoStore(ddb DynamoAPI, table string, ttl time.Duration) *DynamoStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DynamoStore{ddb: ddb, table: table, ttl: ttl, now: time.Now}
}

func (s *DynamoStore) key(token string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"token": &types.AttributeValueMemberS{Value: token},
	}
}

func (s *DynamoStore) item(cs *model.CheckoutSession) (map[string]types.AttributeValue, error) {
	payload, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	av, err := attributevalue.MarshalMap(sessionItem{
		Token:     cs.Token,
		Payload:   string(payload),
		ExpiresAt: cs.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}
	return av, nil
}

// Create сохраняет новую сессию и возвращает её токен.
func (s *DynamoStore) Create(ctx context.Context, cs *model.CheckoutSession) (string, error) {
	if err := stamp(cs, s.ttl, s.now().UTC()); err != nil {
		return "", err
	}

	av, err := s.item(cs)
	if err != nil {
		return "", err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#token)"),
		ExpressionAttributeNames: map[string]string{
			"#token": "token",
		},
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return cs.Token, nil
}

// Get читает сессию, не изменяя её.
func (s *DynamoStore) Get(ctx context.Context, token string) (*model.CheckoutSession, error) {
	if token == "" {
		return nil, model.ErrNotFound
	}

	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(token),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, model.ErrNotFound
	}

	var it sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	if it.ExpiresAt <= s.now().Unix() {
		return nil, model.ErrNotFound
	}

	var cs model.CheckoutSession
	if err := json.Unmarshal([]byte(it.Payload), &cs); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &cs, nil
}

// Update перезаписывает живую сессию и продлевает её срок жизни.
func (s *DynamoStore) Update(ctx context.Context, token string, cs *model.CheckoutSession) error {
	now := s.now().UTC()
	cs.Token = token
	cs.ExpiresAt = now.Add(s.ttl)

	av, err := s.item(cs)
	if err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(#token) AND #expires_at > :now"),
		ExpressionAttributeNames: map[string]string{
			"#token":      "token",
			"#expires_at": "expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return model.ErrNotFound
		}
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Take удаляет живую сессию условным DeleteItem и возвращает её прежнее содержимое.
// Истёкшая сессия условие не проходит и остаётся до удаления по TTL.
func (s *DynamoStore) Take(ctx context.Context, token string) (*model.CheckoutSession, error) {
	if token == "" {
		return nil, model.ErrNotFound
	}

	out, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.key(token),
		ReturnValues:        types.ReturnValueAllOld,
		ConditionExpression: aws.String("attribute_exists(#token) AND #expires_at > :now"),
		ExpressionAttributeNames: map[string]string{
			"#token":      "token",
			"#expires_at": "expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("take session: %w", err)
	}
	if len(out.Attributes) == 0 {
		return nil, model.ErrNotFound
	}

	var it sessionItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}

	var cs model.CheckoutSession
	if err := json.Unmarshal([]byte(it.Payload), &cs); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &cs, nil
}
