package commission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// Reconciler keeps seller commissions in step with COMMISSION ledger movements
type Reconciler struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a new commission reconciler
func NewReconciler(repo Repository, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// CreateCommission registers a pending commission for a seller
func (r *Reconciler) CreateCommission(ctx context.Context, req *CreateCommissionRequest) (*Commission, error) {
	if strings.TrimSpace(req.OperationID) == "" {
		return nil, errors.NewValidationError("commission operation ID is required")
	}
	if strings.TrimSpace(req.SellerID) == "" {
		return nil, errors.NewValidationError("commission seller ID is required")
	}
	amount := money.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, errors.NewValidationError(fmt.Sprintf("commission amount must be positive, got %s", money.Format(req.Amount, req.Currency)))
	}

	c := &Commission{
		CommissionID: ulid.Make().String(),
		OperationID:  req.OperationID,
		SellerID:     req.SellerID,
		Currency:     req.Currency,
		Amount:       amount,
		Status:       Pending,
		CreatedAt:    r.now().UTC(),
	}
	if err := r.repo.CreateCommission(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListByOperation returns the commissions of an operation
func (r *Reconciler) ListByOperation(ctx context.Context, operationID string) ([]*Commission, error) {
	return r.repo.ListByOperation(ctx, operationID)
}

// MarkCommissionsPaid flips every pending commission of the operation to paid.
// It keeps going after a failed update and reports the first failure.
func (r *Reconciler) MarkCommissionsPaid(ctx context.Context, operationID string) error {
	commissions, err := r.repo.ListByOperation(ctx, operationID)
	if err != nil {
		return err
	}

	var firstErr error
	marked := 0
	for _, c := range commissions {
		if c.Status != Pending {
			continue
		}
		paidAt := r.now().UTC()
		c.Status = Paid
		c.PaidAt = &paidAt
		if err := r.repo.UpdateCommission(ctx, c); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		marked++
	}

	r.logger.Info("commissions reconciled", "operationId", operationID, "marked", marked)
	return firstErr
}
