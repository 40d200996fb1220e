package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/dynamodb/client"
)

// PayableRepository implements the settlement.Repository interface
type PayableRepository struct {
	table
}

var _ settlement.Repository = (*PayableRepository)(nil)

// NewPayableRepository creates a new PayableRepository
func NewPayableRepository(client client.Client, tableName string, logger *slog.Logger) *PayableRepository {
	return &PayableRepository{table: table{client: client, name: tableName, logger: logger}}
}

// CreatePayable stores a new payable
func (r *PayableRepository) CreatePayable(ctx context.Context, payable *settlement.Payable) error {
	item, err := attributevalue.MarshalMap(newPayableRecord(payable))
	if err != nil {
		return commonErrors.NewInternalError("failed to marshal payable", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.name),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return commonErrors.NewConflictError(fmt.Sprintf("payable %s already exists", payable.PayableID))
		}
		return commonErrors.NewInternalError("failed to create payable", err)
	}
	return nil
}

// GetPayable retrieves a payable by ID
func (r *PayableRepository) GetPayable(ctx context.Context, payableID string) (*settlement.Payable, error) {
	var rec payableRecord
	found, err := r.getItem(ctx, payablePK(payableID), metadataSK, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("payable %s not found", payableID))
	}
	return rec.toDomain()
}

// ApplySettlement writes the cash-out and cost movements and the payable
// update in one transaction. The payable put only succeeds while the stored
// version still equals ExpectedVersion.
func (r *PayableRepository) ApplySettlement(ctx context.Context, app *settlement.Application) error {
	var writes []types.TransactWriteItem
	for _, m := range []*ledger.Movement{app.CashOut, app.Cost} {
		items, err := movementWrites(r.name, m)
		if err != nil {
			return err
		}
		writes = append(writes, items...)
	}

	payableItem, err := attributevalue.MarshalMap(newPayableRecord(app.Payable))
	if err != nil {
		return commonErrors.NewInternalError("failed to marshal payable", err)
	}
	condition := expression.Name("Version").Equal(expression.Value(app.ExpectedVersion))
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return commonErrors.NewInternalError("failed to build expression", err)
	}
	writes = append(writes, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 aws.String(r.name),
			Item:                      payableItem,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		},
	})

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		if isConditionFailure(err) {
			r.logger.Warn("settlement write rejected",
				"payableId", app.Payable.PayableID,
				"expectedVersion", app.ExpectedVersion,
				"error", err)
			return commonErrors.NewConflictError(fmt.Sprintf("payable %s was modified concurrently or the settlement was already applied", app.Payable.PayableID))
		}
		return commonErrors.NewInternalError("failed to apply settlement", err)
	}
	return nil
}
