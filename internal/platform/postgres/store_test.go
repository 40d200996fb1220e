package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
)

// setupStore connects to LEDGER_TEST_POSTGRES_DSN when set and otherwise
// starts a throwaway postgres container.
func setupStore(t *testing.T) *Store {
	ctx := context.Background()
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		if testing.Short() {
			t.Skip("postgres container skipped in short mode")
		}
		testcontainers.SkipIfProviderIsNotHealthy(t)

		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("ledger_test"),
			tcpostgres.WithUsername("ledger"),
			tcpostgres.WithPassword("ledger"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		testcontainers.CleanupContainer(t, container)
		require.NoError(t, err)

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}
	store, err := Open(ctx, dsn, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestIsUniqueViolation(t *testing.T) {
	t.Run("duplicate key", func(t *testing.T) {
		err := fmt.Errorf("insert: %w", &pq.Error{Code: uniqueViolation})

		assert.True(t, isUniqueViolation(err))
	})

	t.Run("other errors", func(t *testing.T) {
		assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
		assert.False(t, isUniqueViolation(assert.AnError))
	})
}

func TestStore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	suffix := ulid.Make().String()

	t.Run("account round trip", func(t *testing.T) {
		id := "acc-" + suffix
		_, err := store.CreateAccount(ctx, &account.FinancialAccount{
			AccountID: id, Name: "Bank", Kind: account.Checking, Currency: money.ARS,
			OpeningBalance: decimal.RequireFromString("1000"), Active: true, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)

		got, err := store.GetAccount(ctx, id)

		require.NoError(t, err)
		assert.True(t, got.OpeningBalance.Equal(decimal.RequireFromString("1000")))
		assert.Equal(t, money.ARS, got.Currency)
	})

	t.Run("movements keep insertion order and idempotency", func(t *testing.T) {
		// Setup
		accountID := "mov-" + suffix
		key := "key-" + suffix
		first := &ledger.Movement{
			MovementID: ulid.Make().String(), AccountID: accountID, Type: ledger.Income, Currency: money.ARS,
			OriginalAmount: decimal.RequireFromString("500"), EquivalentAmount: decimal.RequireFromString("500"),
			MovementDate: "2025-03-01", IdempotencyKey: key, CreatedAt: now,
		}
		second := *first
		second.MovementID = ulid.Make().String()
		second.OriginalAmount = decimal.RequireFromString("200")
		second.IdempotencyKey = ""

		// Act
		require.NoError(t, store.AppendMovements(ctx, []*ledger.Movement{first, &second}))
		replay := *first
		replay.MovementID = ulid.Make().String()
		replayErr := store.AppendMovement(ctx, &replay)
		listed, err := store.ListMovementsByAccount(ctx, accountID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, commonErrors.CodeConflict, commonErrors.CodeOf(replayErr))
		require.Len(t, listed, 2)
		assert.Equal(t, first.MovementID, listed[0].MovementID)
		found, err := store.FindByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, first.MovementID, found.MovementID)
	})

	t.Run("latest rate on or before", func(t *testing.T) {
		require.NoError(t, store.PutRate(ctx, &currency.ExchangeRate{Date: "1990-01-01", Rate: decimal.RequireFromString("1"), CreatedAt: now}))

		got, err := store.GetLatestRateOnOrBefore(ctx, "1990-06-30")

		require.NoError(t, err)
		assert.Equal(t, "1990-01-01", got.Date)
	})

	t.Run("settlement with stale version writes nothing", func(t *testing.T) {
		// Setup
		payable := &settlement.Payable{
			PayableID: "pay-" + suffix, Currency: money.USD, TotalAmount: decimal.RequireFromString("100"),
			PaidAmount: decimal.Zero, Status: settlement.PayableOpen, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, store.CreatePayable(ctx, payable))
		updated := *payable
		updated.PaidAmount = decimal.RequireFromString("100")
		updated.Status = settlement.PayablePaid
		updated.Version = 1
		movement := func(accountID string) *ledger.Movement {
			return &ledger.Movement{
				MovementID: ulid.Make().String(), AccountID: accountID, Type: ledger.OperatorPayment, Currency: money.USD,
				OriginalAmount: decimal.RequireFromString("100"), EquivalentAmount: decimal.RequireFromString("100000"),
				MovementDate: "2025-03-01", CreatedAt: now,
			}
		}

		// Act
		staleErr := store.ApplySettlement(ctx, &settlement.Application{
			CashOut: movement("cash-" + suffix), Cost: movement("cost-" + suffix), Payable: &updated, ExpectedVersion: 7,
		})
		okErr := store.ApplySettlement(ctx, &settlement.Application{
			CashOut: movement("cash-" + suffix), Cost: movement("cost-" + suffix), Payable: &updated, ExpectedVersion: 0,
		})

		// Assert
		assert.Equal(t, commonErrors.CodeConflict, commonErrors.CodeOf(staleErr))
		require.NoError(t, okErr)
		cash, err := store.ListMovementsByAccount(ctx, "cash-"+suffix)
		require.NoError(t, err)
		assert.Len(t, cash, 1)
		got, err := store.GetPayable(ctx, payable.PayableID)
		require.NoError(t, err)
		assert.Equal(t, settlement.PayablePaid, got.Status)
	})
}
