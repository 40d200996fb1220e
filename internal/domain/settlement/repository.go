package settlement

import (
	"context"
)

// Repository defines the interface for payable storage and settlement writes
type Repository interface {
	// CreatePayable stores a new payable; fails with a Conflict error if the id is taken
	CreatePayable(ctx context.Context, payable *Payable) error

	// GetPayable retrieves a payable by ID
	GetPayable(ctx context.Context, payableID string) (*Payable, error)

	// ApplySettlement writes both movements and the payable update as one atomic
	// unit. The payable write is conditioned on ExpectedVersion; a concurrent
	// change or a reused idempotency key fails the whole unit with a Conflict error.
	ApplySettlement(ctx context.Context, app *Application) error
}
