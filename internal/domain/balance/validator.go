package balance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// Validator performs the pre-debit solvency check
type Validator struct {
	calculator *Calculator
	converter  *currency.Service
}

// NewValidator creates a new balance validator
func NewValidator(calculator *Calculator, converter *currency.Service) *Validator {
	return &Validator{
		calculator: calculator,
		converter:  converter,
	}
}

// ValidateSufficientBalance checks whether amount (in currency) can leave the
// account without driving it below zero. Cross-currency amounts are converted
// at the latest known rate.
func (v *Validator) ValidateSufficientBalance(ctx context.Context, accountID string, amount decimal.Decimal, currency money.Currency) (*ValidationResult, error) {
	return v.Validate(ctx, Check{
		AccountID: accountID,
		Amount:    amount,
		Currency:  currency,
	})
}

// Validate runs the solvency check with an optional explicit rate. The balance
// is recomputed from the ledger, never read from the cache.
func (v *Validator) Validate(ctx context.Context, check Check) (*ValidationResult, error) {
	amount := money.Round(check.Amount)
	if !amount.IsPositive() {
		return nil, errors.NewValidationError(fmt.Sprintf("amount to validate must be positive, got %s",
			money.Format(check.Amount, check.Currency)))
	}
	if !v.converter.Pair().Supports(check.Currency) {
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported currency %q", check.Currency))
	}

	current, err := v.calculator.RecomputeAccountBalance(ctx, check.AccountID)
	if err != nil {
		return nil, err
	}

	required := amount
	if check.Currency != current.Currency {
		rate := check.Rate
		if rate == nil || !rate.IsPositive() {
			latest := v.converter.LatestRate(ctx)
			rate = &latest
		}
		required, err = v.converter.Convert(amount, check.Currency, current.Currency, rate)
		if err != nil {
			return nil, err
		}
	}

	result := &ValidationResult{
		Valid:           true,
		AccountID:       current.AccountID,
		AccountCurrency: current.Currency,
		Required:        required,
		Available:       current.Balance,
	}
	if required.GreaterThan(current.Balance) {
		result.Valid = false
		result.Error = fmt.Sprintf("insufficient balance in account %s (%s): required %s, available %s",
			current.Name, current.AccountID,
			money.Format(required, current.Currency),
			money.Format(current.Balance, current.Currency))
		if check.Currency != current.Currency {
			result.Error += fmt.Sprintf(" (requested %s)", money.Format(amount, check.Currency))
		}
	}
	return result, nil
}

// Err converts a failed validation into an InsufficientBalance error
func (r *ValidationResult) Err() error {
	if r == nil || r.Valid {
		return nil
	}
	return errors.NewInsufficientBalanceError(r.Error).WithDetails(map[string]interface{}{
		"accountId": r.AccountID,
		"currency":  string(r.AccountCurrency),
		"required":  r.Required.StringFixed(money.Scale),
		"available": r.Available.StringFixed(money.Scale),
	})
}
