package repository

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/commission"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
)

const testTable = "ledger-test"

func setupFactory() (*Factory, *TestClient) {
	client := NewTestClient()
	return NewFactory(client, testTable, slog.Default()), client
}

func newAccount(id string, currency money.Currency, active bool) *account.FinancialAccount {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &account.FinancialAccount{
		AccountID:      id,
		Name:           "Account " + id,
		Kind:           account.Checking,
		Currency:       currency,
		OpeningBalance: decimal.RequireFromString("1000.50"),
		Active:         active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func newMovement(id, accountID, key string, amount string) *ledger.Movement {
	rate := decimal.RequireFromString("1050")
	return &ledger.Movement{
		MovementID:       id,
		AccountID:        accountID,
		Type:             ledger.Income,
		Currency:         money.ARS,
		OriginalAmount:   decimal.RequireFromString(amount),
		ExchangeRate:     &rate,
		EquivalentAmount: decimal.RequireFromString(amount).Div(rate).Round(2),
		MovementDate:     "2025-03-01",
		IdempotencyKey:   key,
		CreatedAt:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("create and get round trip keeps exact amounts", func(t *testing.T) {
		// Setup
		factory, _ := setupFactory()
		repo := factory.Accounts()

		// Act
		_, err := repo.CreateAccount(ctx, newAccount("acc-1", money.ARS, true))
		require.NoError(t, err)
		got, err := repo.GetAccount(ctx, "acc-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "acc-1", got.AccountID)
		assert.Equal(t, money.ARS, got.Currency)
		assert.True(t, got.OpeningBalance.Equal(decimal.RequireFromString("1000.50")))
		assert.True(t, got.Active)
	})

	t.Run("duplicate id is a conflict", func(t *testing.T) {
		factory, _ := setupFactory()
		repo := factory.Accounts()
		_, err := repo.CreateAccount(ctx, newAccount("acc-1", money.ARS, true))
		require.NoError(t, err)

		_, err = repo.CreateAccount(ctx, newAccount("acc-1", money.USD, true))

		assert.Equal(t, commonErrors.CodeConflict, commonErrors.CodeOf(err))
	})

	t.Run("missing account is not found", func(t *testing.T) {
		factory, _ := setupFactory()

		_, err := factory.Accounts().GetAccount(ctx, "nope")

		assert.Equal(t, commonErrors.CodeNotFound, commonErrors.CodeOf(err))
	})

	t.Run("list applies the filter in id order", func(t *testing.T) {
		// Setup
		factory, client := setupFactory()
		client.pageSize = 1
		repo := factory.Accounts()
		for _, acc := range []*account.FinancialAccount{
			newAccount("c", money.ARS, true),
			newAccount("a", money.ARS, true),
			newAccount("b", money.USD, true),
			newAccount("d", money.ARS, false),
		} {
			_, err := repo.CreateAccount(ctx, acc)
			require.NoError(t, err)
		}

		// Act
		ars, err := repo.ListAccounts(ctx, &account.ListAccountsFilter{Currency: money.ARS})
		require.NoError(t, err)
		all, err := repo.ListAccounts(ctx, &account.ListAccountsFilter{IncludeInactive: true})
		require.NoError(t, err)

		// Assert
		require.Len(t, ars, 2)
		assert.Equal(t, "a", ars[0].AccountID)
		assert.Equal(t, "c", ars[1].AccountID)
		assert.Len(t, all, 4)
	})

	t.Run("update keeps currency and opening balance", func(t *testing.T) {
		// Setup
		factory, _ := setupFactory()
		repo := factory.Accounts()
		_, err := repo.CreateAccount(ctx, newAccount("acc-1", money.ARS, true))
		require.NoError(t, err)
		changed := newAccount("acc-1", money.USD, false)
		changed.Name = "Renamed"
		changed.OpeningBalance = decimal.Zero

		// Act
		err = repo.UpdateAccount(ctx, changed)

		// Assert
		require.NoError(t, err)
		got, err := repo.GetAccount(ctx, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.False(t, got.Active)
		assert.Equal(t, money.ARS, got.Currency)
		assert.True(t, got.OpeningBalance.Equal(decimal.RequireFromString("1000.50")))
	})

	t.Run("update of unknown account is not found", func(t *testing.T) {
		factory, _ := setupFactory()

		err := factory.Accounts().UpdateAccount(ctx, newAccount("ghost", money.ARS, true))

		assert.Equal(t, commonErrors.CodeNotFound, commonErrors.CodeOf(err))
	})

	t.Run("categories round trip", func(t *testing.T) {
		factory, _ := setupFactory()
		repo := factory.Accounts()
		_, err := repo.CreateCategory(ctx, &account.Category{
			CategoryID: "cat-1", Code: "2.1.01", Name: "Operators", Type: account.Liability, Control: account.PayableControl,
		})
		require.NoError(t, err)

		got, err := repo.GetCategory(ctx, "cat-1")

		require.NoError(t, err)
		assert.Equal(t, account.Liability, got.Type)
		assert.Equal(t, account.PayableControl, got.Control)
	})

	t.Run("read failure is internal", func(t *testing.T) {
		factory, client := setupFactory()
		client.failWith = assert.AnError

		_, err := factory.Accounts().GetAccount(ctx, "acc-1")

		assert.Equal(t, commonErrors.CodeInternal, commonErrors.CodeOf(err))
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestMovementRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("append list and get", func(t *testing.T) {
		// Setup
		factory, client := setupFactory()
		client.pageSize = 2
		repo := factory.Movements()

		// Act
		require.NoError(t, repo.AppendMovement(ctx, newMovement("01A", "acc-1", "", "100")))
		require.NoError(t, repo.AppendMovements(ctx, []*ledger.Movement{
			newMovement("01B", "acc-1", "", "200"),
			newMovement("01C", "acc-1", "", "300.25"),
			newMovement("01D", "acc-2", "", "5"),
		}))
		listed, err := repo.ListMovementsByAccount(ctx, "acc-1")
		require.NoError(t, err)
		got, err := repo.GetMovement(ctx, "01C")
		require.NoError(t, err)

		// Assert
		require.Len(t, listed, 3)
		assert.Equal(t, []string{"01A", "01B", "01C"}, []string{listed[0].MovementID, listed[1].MovementID, listed[2].MovementID})
		assert.True(t, got.OriginalAmount.Equal(decimal.RequireFromString("300.25")))
		require.NotNil(t, got.ExchangeRate)
		assert.True(t, got.ExchangeRate.Equal(decimal.RequireFromString("1050")))
	})

	t.Run("reused idempotency key writes nothing", func(t *testing.T) {
		// Setup
		factory, client := setupFactory()
		repo := factory.Movements()
		require.NoError(t, repo.AppendMovement(ctx, newMovement("01A", "acc-1", "pay-1", "100")))

		// Act
		err := repo.AppendMovements(ctx, []*ledger.Movement{
			newMovement("01B", "acc-1", "fresh", "1"),
			newMovement("01C", "acc-1", "pay-1", "2"),
		})

		// Assert
		assert.Equal(t, commonErrors.CodeConflict, commonErrors.CodeOf(err))
		assert.Equal(t, 1, client.count("ACCOUNT#acc-1|MOVEMENT#"))
		_, err = repo.FindByIdempotencyKey(ctx, "fresh")
		assert.Equal(t, commonErrors.CodeNotFound, commonErrors.CodeOf(err))
	})

	t.Run("find by idempotency key", func(t *testing.T) {
		factory, _ := setupFactory()
		repo := factory.Movements()
		require.NoError(t, repo.AppendMovement(ctx, newMovement("01A", "acc-1", "pay-1", "100")))

		got, err := repo.FindByIdempotencyKey(ctx, "pay-1")

		require.NoError(t, err)
		assert.Equal(t, "01A", got.MovementID)
	})

	t.Run("delete frees the idempotency key", func(t *testing.T) {
		// Setup
		factory, _ := setupFactory()
		repo := factory.Movements()
		require.NoError(t, repo.AppendMovement(ctx, newMovement("01A", "acc-1", "pay-1", "100")))

		// Act
		require.NoError(t, repo.DeleteMovement(ctx, "01A"))

		// Assert
		_, err := repo.GetMovement(ctx, "01A")
		assert.Equal(t, commonErrors.CodeNotFound, commonErrors.CodeOf(err))
		assert.NoError(t, repo.AppendMovement(ctx, newMovement("01B", "acc-1", "pay-1", "100")))
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		factory, _ := setupFactory()

		assert.NoError(t, factory.Movements().AppendMovements(ctx, nil))
	})
}

func TestExchangeRateRepository(t *testing.T) {
	ctx := context.Background()

	// Setup
	factory, _ := setupFactory()
	repo := factory.ExchangeRates()
	for date, rate := range map[string]string{"2025-01-10": "1000", "2025-02-01": "1050.5", "2025-03-15": "1100"} {
		require.NoError(t, repo.PutRate(ctx, &currency.ExchangeRate{Date: date, Rate: decimal.RequireFromString(rate), Source: "manual"}))
	}

	t.Run("exact date", func(t *testing.T) {
		got, err := repo.GetRate(ctx, "2025-02-01")

		require.NoError(t, err)
		assert.True(t, got.Rate.Equal(decimal.RequireFromString("1050.5")))
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("latest on or before picks the nearest earlier date", func(t *testing.T) {
		got, err := repo.GetLatestRateOnOrBefore(ctx, "2025-03-01")

		require.NoError(t, err)
		assert.Equal(t, "2025-02-01", got.Date)
	})

	t.Run("latest on or before includes the date itself", func(t *testing.T) {
		got, err := repo.GetLatestRateOnOrBefore(ctx, "2025-03-15")

		require.NoError(t, err)
		assert.Equal(t, "2025-03-15", got.Date)
	})

	t.Run("nothing before the first rate", func(t *testing.T) {
		_, err := repo.GetLatestRateOnOrBefore(ctx, "2024-12-31")

		assert.Equal(t, commonErrors.CodeNotFound, commonErrors.CodeOf(err))
	})

	t.Run("put replaces the rate of a date", func(t *testing.T) {
		require.NoError(t, repo.PutRate(ctx, &currency.ExchangeRate{Date: "2025-01-10", Rate: decimal.RequireFromString("990")}))

		got, err := repo.GetRate(ctx, "2025-01-10")

		require.NoError(t, err)
		assert.True(t, got.Rate.Equal(decimal.RequireFromString("990")))
	})
}

func TestPayableRepository(t *testing.T) {
	ctx := context.Background()

	newPayable := func() *settlement.Payable {
		return &settlement.Payable{
			PayableID:   "pay-1",
			OperatorID:  "op-1",
			Currency:    money.USD,
			TotalAmount: decimal.RequireFromString("500"),
			PaidAmount:  decimal.Zero,
			Status:      settlement.PayableOpen,
		}
	}

	application := func(paid string, expected int64, suffix string) *settlement.Application {
		p := newPayable()
		p.PaidAmount = decimal.RequireFromString(paid)
		p.Version = expected + 1
		cashOut := newMovement("CASH"+suffix, "bank", "batch#pay-1"+suffix, paid)
		cost := newMovement("COST"+suffix, "cost", "batch#pay-1"+suffix+"#cost", paid)
		return &settlement.Application{CashOut: cashOut, Cost: cost, Payable: p, ExpectedVersion: expected}
	}

	t.Run("create get and duplicate", func(t *testing.T) {
		factory, _ := setupFactory()
		repo := factory.Payables()
		require.NoError(t, repo.CreatePayable(ctx, newPayable()))

		got, err := repo.GetPayable(ctx, "pay-1")
		require.NoError(t, err)
		dupErr := repo.CreatePayable(ctx, newPayable())

		assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("500")))
		assert.Equal(t, settlement.PayableOpen, got.Status)
		assert.Equal(t, commonErrors.CodeConflict, commonErrors.CodeOf(dupErr))
	})

	t.Run("apply writes movements and bumps the version", func(t *testing.T) {
		// Setup
		factory, _ := setupFactory()
		repo := factory.Payables()
		require.NoError(t, repo.CreatePayable(ctx, newPayable()))

		// Act
		err := repo.ApplySettlement(ctx, application("200", 0, ""))

		// Assert
		require.NoError(t, err)
		got, err := repo.GetPayable(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, got.PaidAmount.Equal(decimal.RequireFromString("200")))
		cash, err := factory.Movements().ListMovementsByAccount(ctx, "bank")
		require.NoError(t, err)
		assert.Len(t, cash, 1)
		cost, err := factory.Movements().FindByIdempotencyKey(ctx, "batch#pay-1#cost")
		require.NoError(t, err)
		assert.Equal(t, "COST", cost.MovementID)
	})

	t.Run("stale version rejects the whole unit", func(t *testing.T) {
		// Setup
		factory, client := setupFactory()
		repo := factory.Payables()
		require.NoError(t, repo.CreatePayable(ctx, newPayable()))
		require.NoError(t, repo.ApplySettlement(ctx, application("200", 0, "")))

		// Act
		err := repo.ApplySettlement(ctx, application("300", 0, "-2"))

		// Assert
		assert.Equal(t, commonErrors.CodeConflict, commonErrors.CodeOf(err))
		assert.Equal(t, 1, client.count("ACCOUNT#bank|MOVEMENT#"))
		got, err := repo.GetPayable(ctx, "pay-1")
		require.NoError(t, err)
		assert.True(t, got.PaidAmount.Equal(decimal.RequireFromString("200")))
	})

	t.Run("replayed idempotency key rejects the whole unit", func(t *testing.T) {
		factory, _ := setupFactory()
		repo := factory.Payables()
		require.NoError(t, repo.CreatePayable(ctx, newPayable()))
		require.NoError(t, repo.ApplySettlement(ctx, application("200", 0, "")))
		replay := application("200", 1, "")
		replay.CashOut.MovementID = "CASH-NEW"
		replay.Cost.MovementID = "COST-NEW"

		err := repo.ApplySettlement(ctx, replay)

		assert.Equal(t, commonErrors.CodeConflict, commonErrors.CodeOf(err))
	})
}

func TestCommissionRepository(t *testing.T) {
	ctx := context.Background()

	newCommission := func(id, op string) *commission.Commission {
		return &commission.Commission{
			CommissionID: id,
			OperationID:  op,
			SellerID:     "seller-1",
			Currency:     money.USD,
			Amount:       decimal.RequireFromString("42.10"),
			Status:       commission.Pending,
		}
	}

	t.Run("create list and update", func(t *testing.T) {
		// Setup
		factory, _ := setupFactory()
		repo := factory.Commissions()
		require.NoError(t, repo.CreateCommission(ctx, newCommission("c1", "op-1")))
		require.NoError(t, repo.CreateCommission(ctx, newCommission("c2", "op-1")))
		require.NoError(t, repo.CreateCommission(ctx, newCommission("c3", "op-2")))

		// Act
		paid := newCommission("c1", "op-1")
		paid.Status = commission.Paid
		paidAt := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
		paid.PaidAt = &paidAt
		require.NoError(t, repo.UpdateCommission(ctx, paid))
		listed, err := repo.ListByOperation(ctx, "op-1")

		// Assert
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, commission.Paid, listed[0].Status)
		require.NotNil(t, listed[0].PaidAt)
		assert.True(t, listed[0].PaidAt.Equal(paidAt))
		assert.Equal(t, commission.Pending, listed[1].Status)
	})

	t.Run("duplicate and missing", func(t *testing.T) {
		factory, _ := setupFactory()
		repo := factory.Commissions()
		require.NoError(t, repo.CreateCommission(ctx, newCommission("c1", "op-1")))

		dupErr := repo.CreateCommission(ctx, newCommission("c1", "op-1"))
		missingErr := repo.UpdateCommission(ctx, newCommission("c9", "op-1"))

		assert.Equal(t, commonErrors.CodeConflict, commonErrors.CodeOf(dupErr))
		assert.Equal(t, commonErrors.CodeNotFound, commonErrors.CodeOf(missingErr))
	})
}
