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
	"github.com/tometh04/maxevagestion-sub002/internal/platform/dynamodb/client"
)

// maxTransactItems is the DynamoDB limit on actions in one transaction
const maxTransactItems = 100

// MovementRepository implements the ledger.Repository interface.
// Movements live under their account's partition so a balance is one query.
type MovementRepository struct {
	table
}

var _ ledger.Repository = (*MovementRepository)(nil)

// NewMovementRepository creates a new MovementRepository
func NewMovementRepository(client client.Client, tableName string, logger *slog.Logger) *MovementRepository {
	return &MovementRepository{table: table{client: client, name: tableName, logger: logger}}
}

// AppendMovement inserts a single movement
func (r *MovementRepository) AppendMovement(ctx context.Context, movement *ledger.Movement) error {
	return r.AppendMovements(ctx, []*ledger.Movement{movement})
}

// AppendMovements inserts all movements in one transaction together with
// their idempotency markers
func (r *MovementRepository) AppendMovements(ctx context.Context, movements []*ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	var writes []types.TransactWriteItem
	for _, m := range movements {
		items, err := movementWrites(r.name, m)
		if err != nil {
			return err
		}
		writes = append(writes, items...)
	}
	if len(writes) > maxTransactItems {
		return commonErrors.NewValidationError(fmt.Sprintf("too many movements in one write (%d actions, max %d)", len(writes), maxTransactItems))
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err != nil {
		if isConditionFailure(err) {
			return commonErrors.NewConflictError("movement already recorded or idempotency key already used")
		}
		return commonErrors.NewInternalError("failed to append movements", err)
	}
	return nil
}

// GetMovement retrieves a movement by ID through GSI1
func (r *MovementRepository) GetMovement(ctx context.Context, movementID string) (*ledger.Movement, error) {
	keyCondition := expression.Key("GSI1PK").Equal(expression.Value(movementGSI1PK(movementID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.name),
		IndexName:                 aws.String(gsi1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to query movement", err)
	}
	if len(result.Items) == 0 {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("movement %s not found", movementID))
	}

	var rec movementRecord
	if err := attributevalue.UnmarshalMap(result.Items[0], &rec); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal movement", err)
	}
	return rec.toDomain()
}

// FindByIdempotencyKey returns the movement recorded under key
func (r *MovementRepository) FindByIdempotencyKey(ctx context.Context, key string) (*ledger.Movement, error) {
	var marker idempotencyRecord
	found, err := r.getItem(ctx, idempotencyPK(key), metadataSK, &marker)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("no movement recorded for idempotency key %q", key))
	}

	var rec movementRecord
	found, err = r.getItem(ctx, accountPK(marker.AccountID), movementSK(marker.MovementID), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("movement %s not found", marker.MovementID))
	}
	return rec.toDomain()
}

// ListMovementsByAccount returns the account's movements oldest first.
// Movement IDs are ULIDs, so sort key order is creation order.
func (r *MovementRepository) ListMovementsByAccount(ctx context.Context, accountID string) ([]*ledger.Movement, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(accountPK(accountID))).
		And(expression.Key("SK").BeginsWith(movementPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to build expression", err)
	}

	items, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	var records []movementRecord
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return nil, commonErrors.NewInternalError("failed to unmarshal movements", err)
	}

	movements := make([]*ledger.Movement, 0, len(records))
	for _, rec := range records {
		m, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// DeleteMovement removes a movement and frees its idempotency key
func (r *MovementRepository) DeleteMovement(ctx context.Context, movementID string) error {
	m, err := r.GetMovement(ctx, movementID)
	if err != nil {
		return err
	}

	writes := []types.TransactWriteItem{{
		Delete: &types.Delete{
			TableName: aws.String(r.name),
			Key:       itemKey(accountPK(m.AccountID), movementSK(m.MovementID)),
		},
	}}
	if m.IdempotencyKey != "" {
		writes = append(writes, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(r.name),
				Key:       itemKey(idempotencyPK(m.IdempotencyKey), metadataSK),
			},
		})
	}

	if _, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
		return commonErrors.NewInternalError("failed to delete movement", err)
	}
	r.logger.Info("movement deleted", "movementId", movementID, "accountId", m.AccountID)
	return nil
}

// movementWrites returns the conditional puts that record one movement
func movementWrites(tableName string, m *ledger.Movement) ([]types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(newMovementRecord(m))
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal movement", err)
	}
	writes := []types.TransactWriteItem{putNew(tableName, item)}

	if m.IdempotencyKey == "" {
		return writes, nil
	}
	marker, err := attributevalue.MarshalMap(idempotencyRecord{
		PK:         idempotencyPK(m.IdempotencyKey),
		SK:         metadataSK,
		Type:       "idempotency",
		MovementID: m.MovementID,
		AccountID:  m.AccountID,
	})
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to marshal idempotency marker", err)
	}
	return append(writes, putNew(tableName, marker)), nil
}
