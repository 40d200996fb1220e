package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// ListFundingAccountsTool lists the accounts that may pay for things
type ListFundingAccountsTool struct {
	accounts *account.Service
}

func NewListFundingAccountsTool(accounts *account.Service) *ListFundingAccountsTool {
	return &ListFundingAccountsTool{accounts: accounts}
}

func (t *ListFundingAccountsTool) GetName() string {
	return "list_funding_accounts"
}

func (t *ListFundingAccountsTool) GetDescription() string {
	return "Lists active real accounts that can fund payments. Receivable and payable control accounts are excluded."
}

func (t *ListFundingAccountsTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"currency": currencyProp("Optional currency filter"),
		},
	}
}

func (t *ListFundingAccountsTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		Currency string `json:"currency"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}

	var currency money.Currency
	if args.Currency != "" {
		parsed, err := money.ParseCurrency(args.Currency)
		if err != nil {
			return errorResult("listing funding accounts", err)
		}
		currency = parsed
	}

	accounts, err := t.accounts.ListFundingAccounts(ctx, currency)
	if err != nil {
		return errorResult("listing funding accounts", err)
	}
	return jsonResult(fmt.Sprintf("Found %d funding accounts", len(accounts)), accounts)
}

// CreateFinancialAccountTool opens a new money pool
type CreateFinancialAccountTool struct {
	accounts *account.Service
}

func NewCreateFinancialAccountTool(accounts *account.Service) *CreateFinancialAccountTool {
	return &CreateFinancialAccountTool{accounts: accounts}
}

func (t *CreateFinancialAccountTool) GetName() string {
	return "create_financial_account"
}

func (t *CreateFinancialAccountTool) GetDescription() string {
	return "Creates a financial account with a fixed currency and opening balance"
}

func (t *CreateFinancialAccountTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"accountId": stringProp("Optional ID; generated when omitted"),
			"name":      stringProp("Account name"),
			"kind": map[string]interface{}{
				"type":        "string",
				"description": "Kind of money pool",
				"enum":        []string{"cash", "checking", "savings", "credit_card", "receivable", "payable"},
			},
			"currency":       currencyProp("Account currency, fixed once created"),
			"openingBalance": amountProp("Balance before the first movement"),
			"categoryId":     stringProp("Optional chart-of-accounts category"),
			"createdBy":      stringProp("User creating the account"),
		},
		Required: []string{"name", "kind", "currency"},
	}
}

func (t *CreateFinancialAccountTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		AccountID      string          `json:"accountId"`
		Name           string          `json:"name"`
		Kind           string          `json:"kind"`
		Currency       string          `json:"currency"`
		OpeningBalance decimal.Decimal `json:"openingBalance"`
		CategoryID     string          `json:"categoryId"`
		CreatedBy      string          `json:"createdBy"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}
	currency, err := money.ParseCurrency(args.Currency)
	if err != nil {
		return errorResult("creating account", err)
	}

	acc, err := t.accounts.CreateAccount(ctx, &account.CreateAccountRequest{
		AccountID:      args.AccountID,
		Name:           args.Name,
		Kind:           account.Kind(args.Kind),
		Currency:       currency,
		OpeningBalance: args.OpeningBalance,
		CategoryID:     args.CategoryID,
		CreatedBy:      args.CreatedBy,
	})
	if err != nil {
		return errorResult("creating account", err)
	}
	return jsonResult("Account created successfully", acc)
}

// CreateAccountCategoryTool adds a chart-of-accounts category
type CreateAccountCategoryTool struct {
	accounts *account.Service
}

func NewCreateAccountCategoryTool(accounts *account.Service) *CreateAccountCategoryTool {
	return &CreateAccountCategoryTool{accounts: accounts}
}

func (t *CreateAccountCategoryTool) GetName() string {
	return "create_account_category"
}

func (t *CreateAccountCategoryTool) GetDescription() string {
	return "Creates a chart-of-accounts category. Accounts linked to a receivable or payable control category are accounting-only."
}

func (t *CreateAccountCategoryTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"categoryId": stringProp("Optional ID; generated when omitted"),
			"code":       stringProp("Chart-of-accounts code, e.g. 1.1.03"),
			"name":       stringProp("Category name"),
			"type": map[string]interface{}{
				"type":        "string",
				"description": "Chart-of-accounts section",
				"enum":        []string{"asset", "liability", "equity", "income", "expense"},
			},
			"control": map[string]interface{}{
				"type":        "string",
				"description": "Marks the category as a control category",
				"enum":        []string{"", "receivable", "payable"},
			},
		},
		Required: []string{"code", "name", "type"},
	}
}

func (t *CreateAccountCategoryTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var req account.CreateCategoryRequest
	if res := decodeArgs(arguments, &req); res != nil {
		return res, nil
	}

	category, err := t.accounts.CreateCategory(ctx, &req)
	if err != nil {
		return errorResult("creating category", err)
	}
	return jsonResult("Category created successfully", category)
}
