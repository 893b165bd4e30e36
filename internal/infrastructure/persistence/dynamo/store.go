// Package dynamo implements the ledger Store on a single DynamoDB table with
// conditional puts, TransactWriteItems, and a parent-sequence GSI.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fintechdemo/ledger/internal/domain/ledger"
	"github.com/fintechdemo/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultIndexName is the GSI keyed (parent, sequence)
const DefaultIndexName = "parent-sequence-index"

// versionConditionExpression guards every put of an existing record
const versionConditionExpression = "#version = :expectedVersion"

// insertConditionExpression guards insert-only puts
const insertConditionExpression = "attribute_not_exists(id)"

// Store implements ledger.Store against one DynamoDB table
type Store struct {
	client *dynamodb.Client
	table  string
	index  string
	logger *zap.Logger
}

// StoreOption is a functional option for configuring the Store
type StoreOption func(*Store)

// WithIndexName overrides the parent-sequence GSI name
func WithIndexName(name string) StoreOption {
	return func(s *Store) {
		s.index = name
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store bound to the given table
func NewStore(client *dynamodb.Client, table string, opts ...StoreOption) (*Store, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if table == "" {
		return nil, errors.New("table name is required")
	}
	s := &Store{
		client: client,
		table:  table,
		index:  DefaultIndexName,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetTransaction fetches a transaction by id with a consistent read
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	attrs, err := s.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	var item transactionItem
	if err := attributevalue.UnmarshalMap(attrs, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction %s: %w", id, err)
	}
	if item.Type != ledger.EntityTypeTransaction {
		return nil, fmt.Errorf("record %s has type %q, not a transaction: %w", id, item.Type, shared.ErrNotFound)
	}
	return item.toDomain()
}

// GetAccount fetches an account by id with a consistent read
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	attrs, err := s.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	var item accountItem
	if err := attributevalue.UnmarshalMap(attrs, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account %s: %w", id, err)
	}
	if item.Type != ledger.EntityTypeAccount {
		return nil, fmt.Errorf("record %s has type %q, not an account: %w", id, item.Type, shared.ErrNotFound)
	}
	return item.toDomain()
}

// Put applies a single conditional put
func (s *Store) Put(ctx context.Context, put ledger.ConditionalPut) error {
	attrs, err := marshalRecord(put.Record)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      attrs,
	}
	if put.ExpectedVersion == uuid.Nil {
		input.ConditionExpression = aws.String(insertConditionExpression)
	} else {
		input.ConditionExpression = aws.String(versionConditionExpression)
		input.ExpressionAttributeNames = map[string]string{"#version": "version"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expectedVersion": &types.AttributeValueMemberS{Value: put.ExpectedVersion.String()},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			if put.ExpectedVersion == uuid.Nil {
				return fmt.Errorf("record %s: %w", put.Record.GetID(), shared.ErrAlreadyExists)
			}
			return fmt.Errorf("record %s: %w", put.Record.GetID(), shared.ErrConcurrencyConflict)
		}
		return fmt.Errorf("put of record %s failed: %w", put.Record.GetID(), err)
	}
	return nil
}

// TransactPut writes all puts in one TransactWriteItems call; DynamoDB
// guarantees that either every put commits or every put is rejected.
func (s *Store) TransactPut(ctx context.Context, puts ...ledger.ConditionalPut) error {
	if len(puts) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "TransactPut requires at least one put")
	}

	items := make([]types.TransactWriteItem, 0, len(puts))
	for _, put := range puts {
		attrs, err := marshalRecord(put.Record)
		if err != nil {
			return err
		}
		item := &types.Put{
			TableName: aws.String(s.table),
			Item:      attrs,
		}
		if put.ExpectedVersion == uuid.Nil {
			item.ConditionExpression = aws.String(insertConditionExpression)
		} else {
			item.ConditionExpression = aws.String(versionConditionExpression)
			item.ExpressionAttributeNames = map[string]string{"#version": "version"}
			item.ExpressionAttributeValues = map[string]types.AttributeValue{
				":expectedVersion": &types.AttributeValueMemberS{Value: put.ExpectedVersion.String()},
			}
		}
		items = append(items, types.TransactWriteItem{Put: item})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if isConditionalCancellation(err) {
			// The coarse signal is deliberate: the caller re-reads both rows
			// on redelivery, so which row lost the race does not matter.
			return fmt.Errorf("conditional transactional write rejected: %w", shared.ErrConcurrencyConflict)
		}
		return fmt.Errorf("transactional write failed: %w", err)
	}
	return nil
}

// QueryTransactionsByAccount queries the parent-sequence GSI for the
// account's transactions with the given sequence prefix, in sequence order
func (s *Store) QueryTransactionsByAccount(ctx context.Context, accountID uuid.UUID, sequencePrefix string) ([]ledger.Transaction, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(s.index),
		KeyConditionExpression: aws.String("#parent = :parent AND begins_with(#sequence, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#parent":   "parent",
			"#sequence": "sequence",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":parent": &types.AttributeValueMemberS{Value: accountID.String()},
			":prefix": &types.AttributeValueMemberS{Value: sequencePrefix},
		},
	}

	var result []ledger.Transaction
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query of account %s transactions failed: %w", accountID, err)
		}
		for _, attrs := range page.Items {
			var item transactionItem
			if err := attributevalue.UnmarshalMap(attrs, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transaction item: %w", err)
			}
			tx, err := item.toDomain()
			if err != nil {
				return nil, err
			}
			result = append(result, *tx)
		}
	}
	return result, nil
}

// getItem reads a raw item by partition key, with strong consistency so the
// committer never computes against a stale replica
func (s *Store) getItem(ctx context.Context, id uuid.UUID) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id.String()},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get of record %s failed: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("record %s: %w", id, shared.ErrNotFound)
	}
	return out.Item, nil
}

// marshalRecord marshals a domain record into its item shape
func marshalRecord(record interface{ GetID() uuid.UUID }) (map[string]types.AttributeValue, error) {
	switch r := record.(type) {
	case *ledger.Account:
		attrs, err := attributevalue.MarshalMap(newAccountItem(r))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal account %s: %w", r.ID, err)
		}
		return attrs, nil
	case *ledger.Transaction:
		attrs, err := attributevalue.MarshalMap(newTransactionItem(r))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transaction %s: %w", r.ID, err)
		}
		return attrs, nil
	default:
		return nil, shared.NewDomainError("UNSUPPORTED_RECORD",
			fmt.Sprintf("Unsupported record type %T", record))
	}
}

// isConditionalCancellation reports whether a write error is a conditional
// check rejection, either directly or inside a cancelled transaction
func isConditionalCancellation(err error) bool {
	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return true
	}
	var cancelled *types.TransactionCanceledException
	if errors.As(err, &cancelled) {
		for _, reason := range cancelled.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// Ensure Store implements ledger.Store
var _ ledger.Store = (*Store)(nil)
