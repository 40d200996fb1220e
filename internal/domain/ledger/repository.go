package ledger

import (
	"context"
)

// Repository defines the interface for ledger movement storage. Movements are
// append-only; DeleteMovement exists only for administrative retraction.
type Repository interface {
	// AppendMovement inserts one movement. When the movement carries an
	// idempotency key already used, it fails with a Conflict error and writes nothing.
	AppendMovement(ctx context.Context, movement *Movement) error

	// AppendMovements inserts all movements atomically: either every movement is written or none is
	AppendMovements(ctx context.Context, movements []*Movement) error

	// GetMovement retrieves a movement by ID
	GetMovement(ctx context.Context, movementID string) (*Movement, error)

	// FindByIdempotencyKey returns the movement recorded under the key, or a NotFound error
	FindByIdempotencyKey(ctx context.Context, key string) (*Movement, error)

	// ListMovementsByAccount returns every movement recorded against the account, oldest first
	ListMovementsByAccount(ctx context.Context, accountID string) ([]*Movement, error)

	// DeleteMovement removes a movement (administrative retraction only)
	DeleteMovement(ctx context.Context, movementID string) error
}
