package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/dynamodb/client"
)

// ExchangeRateRepository implements the currency.Repository interface.
// All rates share one partition sorted by date.
type ExchangeRateRepository struct {
	table
}

var _ currency.Repository = (*ExchangeRateRepository)(nil)

// NewExchangeRateRepository creates a new ExchangeRateRepository
func NewExchangeRateRepository(client client.Client, tableName string, logger *slog.Logger) *ExchangeRateRepository {
	return &ExchangeRateRepository{table: table{client: client, name: tableName, logger: logger}}
}

// PutRate stores the rate for its date, replacing any previous value
func (r *ExchangeRateRepository) PutRate(ctx context.Context, rate *currency.ExchangeRate) error {
	createdAt := rate.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(rateRecord{
		PK:        exchangeRatePK,
		SK:        rateSK(rate.Date),
		Type:      "exchange_rate",
		Date:      rate.Date,
		Rate:      rate.Rate.String(),
		Source:    rate.Source,
		CreatedAt: createdAt,
	})
	if err != nil {
		return commonErrors.NewInternalError("failed to marshal exchange rate", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.name),
		Item:      item,
	})
	if err != nil {
		return commonErrors.NewInternalError("failed to store exchange rate", err)
	}
	return nil
}

// GetRate returns the rate recorded for exactly this date
func (r *ExchangeRateRepository) GetRate(ctx context.Context, date string) (*currency.ExchangeRate, error) {
	var rec rateRecord
	found, err := r.getItem(ctx, exchangeRatePK, rateSK(date), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("no exchange rate for %s", date))
	}
	return rec.toDomain()
}

// GetLatestRateOnOrBefore returns the newest rate dated on or before date
func (r *ExchangeRateRepository) GetLatestRateOnOrBefore(ctx context.Context, date string) (*currency.ExchangeRate, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(exchangeRatePK)).
		And(expression.Key("SK").LessThanEqual(expression.Value(rateSK(date))))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to query exchange rates", err)
	}
	if len(result.Items) == 0 {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("no exchange rate on or before %s", date))
	}

	var rec rateRecord
	if err := attributevalue.UnmarshalMap(result.Items[0], &rec); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal exchange rate", err)
	}
	return rec.toDomain()
}
