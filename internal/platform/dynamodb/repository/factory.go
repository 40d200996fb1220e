package repository

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/dynamodb/client"
)

// Factory creates repository instances sharing one client and table
type Factory struct {
	client    client.Client
	tableName string
	logger    *slog.Logger
}

// NewFactory creates a new repository factory
func NewFactory(client client.Client, tableName string, logger *slog.Logger) *Factory {
	return &Factory{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Accounts returns the account and category repository
func (f *Factory) Accounts() *AccountRepository {
	return NewAccountRepository(f.client, f.tableName, f.logger)
}

// Movements returns the ledger movement repository
func (f *Factory) Movements() *MovementRepository {
	return NewMovementRepository(f.client, f.tableName, f.logger)
}

// ExchangeRates returns the exchange rate repository
func (f *Factory) ExchangeRates() *ExchangeRateRepository {
	return NewExchangeRateRepository(f.client, f.tableName, f.logger)
}

// Payables returns the payable and settlement repository
func (f *Factory) Payables() *PayableRepository {
	return NewPayableRepository(f.client, f.tableName, f.logger)
}

// Commissions returns the commission repository
func (f *Factory) Commissions() *CommissionRepository {
	return NewCommissionRepository(f.client, f.tableName, f.logger)
}

// table holds what every repository needs to reach the single table
type table struct {
	client client.Client
	name   string
	logger *slog.Logger
}

// getItem loads one item into out; found is false when the key does not exist
func (t table) getItem(ctx context.Context, pk, sk string, out interface{}) (found bool, err error) {
	result, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.name),
		Key:       itemKey(pk, sk),
	})
	if err != nil {
		return false, commonErrors.NewInternalError("failed to read item", err)
	}
	if len(result.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, commonErrors.NewInternalError("failed to unmarshal item", err)
	}
	return true, nil
}

// queryAll follows LastEvaluatedKey until every page is read
func (t table) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		result, err := t.client.Query(ctx, input)
		if err != nil {
			return nil, commonErrors.NewInternalError("failed to query items", err)
		}
		items = append(items, result.Items...)
		if len(result.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// putNew writes an item that must not exist yet
func putNew(tableName string, item map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	}
}
