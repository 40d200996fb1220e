package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/commission"
	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/dynamodb/client"
)

// CommissionRepository implements the commission.Repository interface.
// Commissions are grouped under their operation's partition.
type CommissionRepository struct {
	table
}

var _ commission.Repository = (*CommissionRepository)(nil)

// NewCommissionRepository creates a new CommissionRepository
func NewCommissionRepository(client client.Client, tableName string, logger *slog.Logger) *CommissionRepository {
	return &CommissionRepository{table: table{client: client, name: tableName, logger: logger}}
}

// CreateCommission stores a new commission
func (r *CommissionRepository) CreateCommission(ctx context.Context, c *commission.Commission) error {
	return r.put(ctx, c, "attribute_not_exists(PK)")
}

// UpdateCommission persists a status change of an existing commission
func (r *CommissionRepository) UpdateCommission(ctx context.Context, c *commission.Commission) error {
	return r.put(ctx, c, "attribute_exists(PK)")
}

// ListByOperation returns the commissions of an operation
func (r *CommissionRepository) ListByOperation(ctx context.Context, operationID string) ([]*commission.Commission, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(operationPK(operationID))).
		And(expression.Key("SK").BeginsWith(commissionPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	items, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}

	var records []commissionRecord
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal commissions", err)
	}

	commissions := make([]*commission.Commission, 0, len(records))
	for _, rec := range records {
		c, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		commissions = append(commissions, c)
	}
	return commissions, nil
}

func (r *CommissionRepository) put(ctx context.Context, c *commission.Commission, condition string) error {
	item, err := attributevalue.MarshalMap(newCommissionRecord(c))
	if err != nil {
		return commonErrors.NewInternalError("failed to marshal commission", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.name),
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	if err != nil {
		if isConditionFailure(err) {
			if condition == "attribute_exists(PK)" {
				return commonErrors.NewNotFoundError(fmt.Sprintf("commission %s not found", c.CommissionID))
			}
			return commonErrors.NewConflictError(fmt.Sprintf("commission %s already exists", c.CommissionID))
		}
		return commonErrors.NewInternalError("failed to write commission", err)
	}
	return nil
}
