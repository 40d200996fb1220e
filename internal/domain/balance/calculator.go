package balance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// AccountReader loads accounts
type AccountReader interface {
	GetAccount(ctx context.Context, accountID string) (*account.FinancialAccount, error)
}

// MovementLister loads the movements of an account
type MovementLister interface {
	ListMovementsByAccount(ctx context.Context, accountID string) ([]*ledger.Movement, error)
}

// Calculator derives account balances from the opening balance and the ledger
type Calculator struct {
	accounts  AccountReader
	movements MovementLister
	converter *currency.Service
	cache     Cache
	group     singleflight.Group
	logger    *slog.Logger
}

// NewCalculator creates a new balance calculator. A nil cache disables memoization.
func NewCalculator(accounts AccountReader, movements MovementLister, converter *currency.Service, cache Cache, logger *slog.Logger) *Calculator {
	if cache == nil {
		cache = NopCache{}
	}
	return &Calculator{
		accounts:  accounts,
		movements: movements,
		converter: converter,
		cache:     cache,
		logger:    logger,
	}
}

// GetBalance returns the current balance of the account in its own currency
func (c *Calculator) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	result, err := c.GetAccountBalance(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return result.Balance, nil
}

// GetAccountBalance returns the balance together with the account it belongs to
func (c *Calculator) GetAccountBalance(ctx context.Context, accountID string) (*AccountBalance, error) {
	if accountID == "" {
		return nil, errors.NewValidationError("account ID is required")
	}

	acc, err := c.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	cached, token, ok, err := c.cache.Get(ctx, accountID)
	if err != nil {
		c.logger.Warn("balance cache read failed", "accountId", accountID, "error", err)
		token = ""
	}
	if ok && err == nil {
		return &AccountBalance{
			AccountID:      acc.AccountID,
			Name:           acc.Name,
			Currency:       acc.Currency,
			OpeningBalance: acc.OpeningBalance,
			Balance:        cached,
			FromCache:      true,
		}, nil
	}

	if token == "" {
		return c.compute(ctx, acc)
	}

	// Collapse concurrent misses of the same generation into one fold. A caller
	// arriving after an invalidation sees a new token and never joins a fold
	// that started before the write.
	v, err, _ := c.group.Do(accountID+"#"+token, func() (interface{}, error) {
		computed, err := c.compute(ctx, acc)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, accountID, token, computed.Balance); err != nil {
			c.logger.Warn("balance cache write failed", "accountId", accountID, "error", err)
		}
		return computed, nil
	})
	if err != nil {
		return nil, err
	}

	result := *v.(*AccountBalance)
	return &result, nil
}

// RecomputeAccountBalance folds the ledger without consulting the cache. The
// solvency check uses it so that a stale cache entry, such as one kept by
// another process, can never approve a debit.
func (c *Calculator) RecomputeAccountBalance(ctx context.Context, accountID string) (*AccountBalance, error) {
	if accountID == "" {
		return nil, errors.NewValidationError("account ID is required")
	}
	acc, err := c.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return c.compute(ctx, acc)
}

// GetBreakdown partitions the signed original amounts by transaction currency.
// The opening balance is attributed to the account's own currency.
func (c *Calculator) GetBreakdown(ctx context.Context, accountID string) (*Breakdown, error) {
	acc, err := c.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	movements, err := c.movements.ListMovementsByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	pair := c.converter.Pair()
	byCurrency := map[money.Currency]decimal.Decimal{
		pair.Reporting: decimal.Zero,
		pair.Secondary: decimal.Zero,
	}
	byCurrency[acc.Currency] = acc.OpeningBalance

	for _, m := range movements {
		byCurrency[m.Currency] = money.Round(byCurrency[m.Currency].Add(m.SignedOriginal()))
	}

	return &Breakdown{
		AccountID:       acc.AccountID,
		AccountCurrency: acc.Currency,
		ByCurrency:      byCurrency,
		MovementCount:   len(movements),
	}, nil
}

// InvalidateBalance drops the memoized balance of the account
func (c *Calculator) InvalidateBalance(ctx context.Context, accountID string) error {
	if err := c.cache.Invalidate(ctx, accountID); err != nil {
		return errors.NewInternalError(fmt.Sprintf("failed to invalidate cached balance of account %s", accountID), err)
	}
	return nil
}

// compute folds opening + signed contributions over every movement of the account.
// It reads only what the movements recorded, never the current rate table.
func (c *Calculator) compute(ctx context.Context, acc *account.FinancialAccount) (*AccountBalance, error) {
	movements, err := c.movements.ListMovementsByAccount(ctx, acc.AccountID)
	if err != nil {
		return nil, err
	}

	total := money.Round(acc.OpeningBalance)
	for _, m := range movements {
		contribution, err := c.contribution(acc, m)
		if err != nil {
			return nil, err
		}
		total = money.Round(total.Add(contribution))
	}

	return &AccountBalance{
		AccountID:      acc.AccountID,
		Name:           acc.Name,
		Currency:       acc.Currency,
		OpeningBalance: acc.OpeningBalance,
		Balance:        total,
		MovementCount:  len(movements),
	}, nil
}

// contribution is the signed amount a movement adds to the account, in the account currency
func (c *Calculator) contribution(acc *account.FinancialAccount, m *ledger.Movement) (decimal.Decimal, error) {
	pair := c.converter.Pair()
	if pair.IsReporting(acc.Currency) {
		return m.SignedEquivalent(), nil
	}
	if m.Currency == acc.Currency {
		return m.SignedOriginal(), nil
	}

	// Reporting-currency movement on a secondary-currency account, converted at
	// the rate frozen when it was recorded
	if m.ExchangeRate == nil || !m.ExchangeRate.IsPositive() {
		return decimal.Zero, errors.NewMissingRateError(fmt.Sprintf(
			"movement %s on account %s has no recorded exchange rate", m.MovementID, acc.AccountID))
	}
	return c.converter.FromReportingCurrency(m.SignedEquivalent(), acc.Currency, m.ExchangeRate)
}
