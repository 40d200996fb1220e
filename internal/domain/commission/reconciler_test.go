package commission_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/commission"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/platform/memory"
)

func setupReconciler() *commission.Reconciler {
	return commission.NewReconciler(memory.NewStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// failingRepository fails every update
type failingRepository struct {
	*memory.Store
}

func (failingRepository) UpdateCommission(ctx context.Context, c *commission.Commission) error {
	return assert.AnError
}

func TestReconciler_CreateCommission(t *testing.T) {
	ctx := context.Background()
	reconciler := setupReconciler()

	t.Run("creates a pending commission", func(t *testing.T) {
		c, err := reconciler.CreateCommission(ctx, &commission.CreateCommissionRequest{
			OperationID: "op-1", SellerID: "seller-1", Currency: money.ARS, Amount: decimal.RequireFromString("150.456"),
		})

		require.NoError(t, err)
		assert.NotEmpty(t, c.CommissionID)
		assert.Equal(t, commission.Pending, c.Status)
		assert.Equal(t, "150.46", c.Amount.StringFixed(2))
		assert.Nil(t, c.PaidAt)
	})

	tests := []struct {
		name string
		req  commission.CreateCommissionRequest
	}{
		{"missing operation", commission.CreateCommissionRequest{SellerID: "s", Amount: decimal.NewFromInt(1)}},
		{"missing seller", commission.CreateCommissionRequest{OperationID: "op", Amount: decimal.NewFromInt(1)}},
		{"zero amount", commission.CreateCommissionRequest{OperationID: "op", SellerID: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reconciler.CreateCommission(ctx, &tt.req)

			assert.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestReconciler_MarkCommissionsPaid(t *testing.T) {
	ctx := context.Background()

	t.Run("marks only the commissions of the operation", func(t *testing.T) {
		// Setup
		reconciler := setupReconciler()
		for _, op := range []string{"op-1", "op-1", "op-2"} {
			_, err := reconciler.CreateCommission(ctx, &commission.CreateCommissionRequest{
				OperationID: op, SellerID: "seller", Currency: money.ARS, Amount: decimal.NewFromInt(10),
			})
			require.NoError(t, err)
		}

		// Act
		err := reconciler.MarkCommissionsPaid(ctx, "op-1")

		// Assert
		require.NoError(t, err)
		paid, err := reconciler.ListByOperation(ctx, "op-1")
		require.NoError(t, err)
		require.Len(t, paid, 2)
		for _, c := range paid {
			assert.Equal(t, commission.Paid, c.Status)
			assert.NotNil(t, c.PaidAt)
		}
		other, err := reconciler.ListByOperation(ctx, "op-2")
		require.NoError(t, err)
		require.Len(t, other, 1)
		assert.Equal(t, commission.Pending, other[0].Status)
	})

	t.Run("already paid commissions keep their payment date", func(t *testing.T) {
		// Setup
		reconciler := setupReconciler()
		_, err := reconciler.CreateCommission(ctx, &commission.CreateCommissionRequest{
			OperationID: "op-1", SellerID: "seller", Currency: money.ARS, Amount: decimal.NewFromInt(10),
		})
		require.NoError(t, err)
		require.NoError(t, reconciler.MarkCommissionsPaid(ctx, "op-1"))
		before, err := reconciler.ListByOperation(ctx, "op-1")
		require.NoError(t, err)

		// Act
		err = reconciler.MarkCommissionsPaid(ctx, "op-1")

		// Assert
		require.NoError(t, err)
		after, err := reconciler.ListByOperation(ctx, "op-1")
		require.NoError(t, err)
		assert.Equal(t, *before[0].PaidAt, *after[0].PaidAt)
	})

	t.Run("operation without commissions", func(t *testing.T) {
		reconciler := setupReconciler()

		assert.NoError(t, reconciler.MarkCommissionsPaid(ctx, "op-unknown"))
	})

	t.Run("reports the first failed update", func(t *testing.T) {
		// Setup
		repo := failingRepository{Store: memory.NewStore()}
		reconciler := commission.NewReconciler(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
		_, err := reconciler.CreateCommission(ctx, &commission.CreateCommissionRequest{
			OperationID: "op-1", SellerID: "seller", Currency: money.ARS, Amount: decimal.NewFromInt(10),
		})
		require.NoError(t, err)

		// Act
		err = reconciler.MarkCommissionsPaid(ctx, "op-1")

		// Assert
		assert.Equal(t, assert.AnError, err)
	})
}
