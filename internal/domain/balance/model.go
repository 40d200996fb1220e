package balance

import (
	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// AccountBalance is the derived balance of an account in its own currency
type AccountBalance struct {
	AccountID      string          `json:"accountId"`
	Name           string          `json:"name"`
	Currency       money.Currency  `json:"currency"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	Balance        decimal.Decimal `json:"balance"`
	MovementCount  int             `json:"movementCount,omitempty"`
	FromCache      bool            `json:"fromCache"`
}

// Breakdown partitions an account's balance by the transaction currency of its movements
type Breakdown struct {
	AccountID       string                             `json:"accountId"`
	AccountCurrency money.Currency                     `json:"accountCurrency"`
	ByCurrency      map[money.Currency]decimal.Decimal `json:"byCurrency"`
	MovementCount   int                                `json:"movementCount"`
}

// Check describes an amount about to leave an account
type Check struct {
	AccountID string           `json:"accountId"`
	Amount    decimal.Decimal  `json:"amount"`
	Currency  money.Currency   `json:"currency"`
	Rate      *decimal.Decimal `json:"rate,omitempty"` // used when Currency differs from the account currency
}

// ValidationResult is the outcome of a sufficient-balance check
type ValidationResult struct {
	Valid           bool            `json:"valid"`
	Error           string          `json:"error,omitempty"`
	AccountID       string          `json:"accountId"`
	AccountCurrency money.Currency  `json:"accountCurrency"`
	Required        decimal.Decimal `json:"required"`
	Available       decimal.Decimal `json:"available"`
}
