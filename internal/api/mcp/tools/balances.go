package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/balance"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/treasury"
)

type accountArgs struct {
	AccountID string `json:"accountId"`
}

func accountSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"accountId": stringProp("Financial account ID"),
		},
		Required: []string{"accountId"},
	}
}

// GetAccountBalanceTool returns the derived balance of an account
type GetAccountBalanceTool struct {
	calculator *balance.Calculator
}

func NewGetAccountBalanceTool(calculator *balance.Calculator) *GetAccountBalanceTool {
	return &GetAccountBalanceTool{calculator: calculator}
}

func (t *GetAccountBalanceTool) GetName() string {
	return "get_account_balance"
}

func (t *GetAccountBalanceTool) GetDescription() string {
	return "Returns the balance of a financial account in its own currency: opening balance plus the signed sum of its movements"
}

func (t *GetAccountBalanceTool) GetInputSchema() mcp.JSONSchema {
	return accountSchema()
}

func (t *GetAccountBalanceTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args accountArgs
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}

	result, err := t.calculator.GetAccountBalance(ctx, args.AccountID)
	if err != nil {
		return errorResult("getting account balance", err)
	}
	return jsonResult(fmt.Sprintf("Balance of %s: %s", result.Name, money.Format(result.Balance, result.Currency)), result)
}

// GetBalanceBreakdownTool partitions a balance by transaction currency
type GetBalanceBreakdownTool struct {
	calculator *balance.Calculator
}

func NewGetBalanceBreakdownTool(calculator *balance.Calculator) *GetBalanceBreakdownTool {
	return &GetBalanceBreakdownTool{calculator: calculator}
}

func (t *GetBalanceBreakdownTool) GetName() string {
	return "get_balance_breakdown"
}

func (t *GetBalanceBreakdownTool) GetDescription() string {
	return "Sums the movements of an account per transaction currency, without conversion"
}

func (t *GetBalanceBreakdownTool) GetInputSchema() mcp.JSONSchema {
	return accountSchema()
}

func (t *GetBalanceBreakdownTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args accountArgs
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}

	result, err := t.calculator.GetBreakdown(ctx, args.AccountID)
	if err != nil {
		return errorResult("getting balance breakdown", err)
	}
	return jsonResult("Balance breakdown", result)
}

// ValidateSufficientBalanceTool checks whether an account can cover an outflow
type ValidateSufficientBalanceTool struct {
	validator *balance.Validator
}

func NewValidateSufficientBalanceTool(validator *balance.Validator) *ValidateSufficientBalanceTool {
	return &ValidateSufficientBalanceTool{validator: validator}
}

func (t *ValidateSufficientBalanceTool) GetName() string {
	return "validate_sufficient_balance"
}

func (t *ValidateSufficientBalanceTool) GetDescription() string {
	return "Checks whether an account balance covers an amount, converting it to the account currency when needed. Nothing is written."
}

func (t *ValidateSufficientBalanceTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"accountId":    stringProp("Account the money would leave"),
			"amount":       amountProp("Amount to check"),
			"currency":     currencyProp("Currency of the amount"),
			"exchangeRate": amountProp("Optional rate in reporting-currency units per secondary-currency unit; the latest rate is used when omitted"),
		},
		Required: []string{"accountId", "amount", "currency"},
	}
}

func (t *ValidateSufficientBalanceTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		AccountID    string          `json:"accountId"`
		Amount       decimal.Decimal `json:"amount"`
		Currency     string          `json:"currency"`
		ExchangeRate decimal.Decimal `json:"exchangeRate"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}
	currency, err := money.ParseCurrency(args.Currency)
	if err != nil {
		return errorResult("validating balance", err)
	}

	result, err := t.validator.Validate(ctx, balance.Check{
		AccountID: args.AccountID,
		Amount:    args.Amount,
		Currency:  currency,
		Rate:      optionalRate(args.ExchangeRate),
	})
	if err != nil {
		return errorResult("validating balance", err)
	}

	summary := "Balance is sufficient"
	if !result.Valid {
		summary = "Balance is insufficient"
	}
	return jsonResult(summary, result)
}

// InvalidateBalanceCacheTool drops the cached balance of an account
type InvalidateBalanceCacheTool struct {
	treasury *treasury.Service
}

func NewInvalidateBalanceCacheTool(treasury *treasury.Service) *InvalidateBalanceCacheTool {
	return &InvalidateBalanceCacheTool{treasury: treasury}
}

func (t *InvalidateBalanceCacheTool) GetName() string {
	return "invalidate_balance_cache"
}

func (t *InvalidateBalanceCacheTool) GetDescription() string {
	return "Drops the cached balance of an account so the next read recomputes it from the ledger"
}

func (t *InvalidateBalanceCacheTool) GetInputSchema() mcp.JSONSchema {
	return accountSchema()
}

func (t *InvalidateBalanceCacheTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args accountArgs
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}

	if err := t.treasury.InvalidateBalanceCache(ctx, args.AccountID); err != nil {
		return errorResult("invalidating balance cache", err)
	}
	return mcp.NewTextResult(fmt.Sprintf("Balance cache invalidated for account %s", args.AccountID), false), nil
}
