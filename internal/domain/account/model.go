package account

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// Kind represents the kind of money pool an account models
type Kind string

const (
	// Cash is a petty-cash or safe account
	Cash Kind = "cash"
	// Checking is a bank checking account
	Checking Kind = "checking"
	// Savings is a bank savings account
	Savings Kind = "savings"
	// CreditCard is a corporate credit card account
	CreditCard Kind = "credit_card"
	// Receivable is a customer receivable control account
	Receivable Kind = "receivable"
	// Payable is an operator payable control account
	Payable Kind = "payable"
)

// Valid reports whether k is a known account kind
func (k Kind) Valid() bool {
	switch k {
	case Cash, Checking, Savings, CreditCard, Receivable, Payable:
		return true
	}
	return false
}

// CategoryType represents the chart-of-accounts section of a category
type CategoryType string

const (
	// Asset represents an asset category
	Asset CategoryType = "asset"
	// Liability represents a liability category
	Liability CategoryType = "liability"
	// Equity represents an equity category
	Equity CategoryType = "equity"
	// Income represents an income category
	Income CategoryType = "income"
	// Expense represents an expense category
	Expense CategoryType = "expense"
)

// Valid reports whether t is a known category type
func (t CategoryType) Valid() bool {
	switch t {
	case Asset, Liability, Equity, Income, Expense:
		return true
	}
	return false
}

// ControlType marks a category as a receivable/payable control category
type ControlType string

const (
	// NoControl is an ordinary category
	NoControl ControlType = ""
	// ReceivableControl groups customer receivables
	ReceivableControl ControlType = "receivable"
	// PayableControl groups operator payables
	PayableControl ControlType = "payable"
)

// Category is a node of the chart of accounts
type Category struct {
	CategoryID string       `json:"categoryId"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	Type       CategoryType `json:"type"`
	Control    ControlType  `json:"control,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// FinancialAccount represents a named money pool. Its balance is never stored,
// only derived from the opening balance and the ledger movements.
type FinancialAccount struct {
	AccountID      string          `json:"accountId"`
	Name           string          `json:"name"`
	Kind           Kind            `json:"kind"`
	Currency       money.Currency  `json:"currency"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	Active         bool            `json:"active"`
	CategoryID     string          `json:"categoryId,omitempty"`

	// Metadata
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

// CreateAccountRequest represents the request to create a new account
type CreateAccountRequest struct {
	AccountID      string          `json:"accountId,omitempty"`
	Name           string          `json:"name"`
	Kind           Kind            `json:"kind"`
	Currency       money.Currency  `json:"currency"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	CategoryID     string          `json:"categoryId,omitempty"`
	CreatedBy      string          `json:"createdBy,omitempty"`
}

// CreateCategoryRequest represents the request to create a chart-of-accounts category
type CreateCategoryRequest struct {
	CategoryID string       `json:"categoryId,omitempty"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	Type       CategoryType `json:"type"`
	Control    ControlType  `json:"control,omitempty"`
}

// ListAccountsFilter narrows account listings
type ListAccountsFilter struct {
	Currency        money.Currency `json:"currency,omitempty"`
	Kind            Kind           `json:"kind,omitempty"`
	IncludeInactive bool           `json:"includeInactive,omitempty"`
}

// Matches reports whether the account passes the filter
func (f *ListAccountsFilter) Matches(acc *FinancialAccount) bool {
	if f == nil {
		return acc.Active
	}
	if !f.IncludeInactive && !acc.Active {
		return false
	}
	if f.Currency != "" && acc.Currency != f.Currency {
		return false
	}
	if f.Kind != "" && acc.Kind != f.Kind {
		return false
	}
	return true
}
