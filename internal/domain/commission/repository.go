package commission

import (
	"context"
)

// Repository defines the interface for commission storage
type Repository interface {
	// CreateCommission stores a new commission
	CreateCommission(ctx context.Context, commission *Commission) error

	// ListByOperation returns the commissions of an operation
	ListByOperation(ctx context.Context, operationID string) ([]*Commission, error)

	// UpdateCommission persists a status change
	UpdateCommission(ctx context.Context, commission *Commission) error
}
