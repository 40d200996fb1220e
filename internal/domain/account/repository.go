package account

import (
	"context"
)

// Repository defines the interface for account data operations
type Repository interface {
	// Create a new account; fails with a Conflict error if the id is taken
	CreateAccount(ctx context.Context, account *FinancialAccount) (*FinancialAccount, error)

	// Get an account by ID
	GetAccount(ctx context.Context, accountID string) (*FinancialAccount, error)

	// List accounts matching the filter
	ListAccounts(ctx context.Context, filter *ListAccountsFilter) ([]*FinancialAccount, error)

	// Update the mutable attributes of an account (name, category, active flag)
	UpdateAccount(ctx context.Context, account *FinancialAccount) error

	// Create a chart-of-accounts category
	CreateCategory(ctx context.Context, category *Category) (*Category, error)

	// Get a category by ID
	GetCategory(ctx context.Context, categoryID string) (*Category, error)
}
