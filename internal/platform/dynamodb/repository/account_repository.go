package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/dynamodb/client"
)

// AccountRepository implements the account.Repository interface
type AccountRepository struct {
	table
}

var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(client client.Client, tableName string, logger *slog.Logger) *AccountRepository {
	return &AccountRepository{table: table{client: client, name: tableName, logger: logger}}
}

// CreateAccount stores a new financial account
func (r *AccountRepository) CreateAccount(ctx context.Context, acc *account.FinancialAccount) (*account.FinancialAccount, error) {
	item, err := attributevalue.MarshalMap(newAccountRecord(acc))
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal account", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.name),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return nil, commonErrors.NewConflictError(fmt.Sprintf("account %s already exists", acc.AccountID))
		}
		return nil, commonErrors.NewInternalError("failed to create account", err)
	}

	return acc, nil
}

// GetAccount retrieves an account by ID
func (r *AccountRepository) GetAccount(ctx context.Context, accountID string) (*account.FinancialAccount, error) {
	var rec accountRecord
	found, err := r.getItem(ctx, accountPK(accountID), metadataSK, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("account %s not found", accountID))
	}
	return rec.toDomain()
}

// ListAccounts returns the accounts matching the filter, ordered by ID
func (r *AccountRepository) ListAccounts(ctx context.Context, filter *account.ListAccountsFilter) ([]*account.FinancialAccount, error) {
	keyCondition := expression.Key("GSI1PK").Equal(expression.Value(accountsGSI1PK))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	items, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.name),
		IndexName:                 aws.String(gsi1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}

	var records []accountRecord
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal accounts", err)
	}

	accounts := make([]*account.FinancialAccount, 0, len(records))
	for _, rec := range records {
		acc, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		if filter.Matches(acc) {
			accounts = append(accounts, acc)
		}
	}
	return accounts, nil
}

// UpdateAccount persists name, category and active flag. Currency and
// opening balance keep their stored values.
func (r *AccountRepository) UpdateAccount(ctx context.Context, acc *account.FinancialAccount) error {
	existing, err := r.GetAccount(ctx, acc.AccountID)
	if err != nil {
		return err
	}

	updated := *acc
	updated.Currency = existing.Currency
	updated.OpeningBalance = existing.OpeningBalance
	item, err := attributevalue.MarshalMap(newAccountRecord(&updated))
	if err != nil {
		return commonErrors.NewInternalError("failed to marshal account", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.name),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return commonErrors.NewNotFoundError(fmt.Sprintf("account %s not found", acc.AccountID))
		}
		return commonErrors.NewInternalError("failed to update account", err)
	}
	return nil
}

// CreateCategory stores a chart-of-accounts category
func (r *AccountRepository) CreateCategory(ctx context.Context, category *account.Category) (*account.Category, error) {
	item, err := attributevalue.MarshalMap(newCategoryRecord(category))
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal category", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.name),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return nil, commonErrors.NewConflictError(fmt.Sprintf("category %s already exists", category.CategoryID))
		}
		return nil, commonErrors.NewInternalError("failed to create category", err)
	}
	return category, nil
}

// GetCategory retrieves a category by ID
func (r *AccountRepository) GetCategory(ctx context.Context, categoryID string) (*account.Category, error) {
	var rec categoryRecord
	found, err := r.getItem(ctx, categoryPK(categoryID), metadataSK, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("category %s not found", categoryID))
	}
	return rec.toDomain(), nil
}
