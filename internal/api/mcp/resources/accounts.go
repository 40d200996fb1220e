package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/balance"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
)

// AccountsResource lists active accounts with their derived balances
type AccountsResource struct {
	accounts   *account.Service
	calculator *balance.Calculator
}

func NewAccountsResource(accounts *account.Service, calculator *balance.Calculator) *AccountsResource {
	return &AccountsResource{
		accounts:   accounts,
		calculator: calculator,
	}
}

// accountView is an account as shown to MCP clients
type accountView struct {
	*account.FinancialAccount
	Balance        string `json:"balance"`
	AccountingOnly bool   `json:"accountingOnly"`
}

func (r *AccountsResource) GetURI() string {
	return "ledger://accounts"
}

func (r *AccountsResource) GetName() string {
	return "Financial Accounts"
}

func (r *AccountsResource) GetDescription() string {
	return "Active financial accounts with their current balance and whether they are accounting-only control accounts"
}

func (r *AccountsResource) GetMimeType() string {
	return "application/json"
}

func (r *AccountsResource) Read(ctx context.Context) (*mcp.ReadResourceResult, error) {
	accounts, err := r.accounts.ListAccounts(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		bal, err := r.calculator.GetAccountBalance(ctx, acc.AccountID)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance of %s: %w", acc.AccountID, err)
		}
		accountingOnly, err := r.accounts.Classify(ctx, acc)
		if err != nil {
			return nil, fmt.Errorf("failed to classify %s: %w", acc.AccountID, err)
		}
		views = append(views, accountView{
			FinancialAccount: acc,
			Balance:          bal.Balance.StringFixed(2),
			AccountingOnly:   accountingOnly,
		})
	}

	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal accounts: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContent{
			{
				URI:      r.GetURI(),
				MimeType: r.GetMimeType(),
				Text:     string(data),
			},
		},
	}, nil
}
