package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/treasury"
)

// CreateLedgerMovementTool records one movement against an account
type CreateLedgerMovementTool struct {
	treasury *treasury.Service
}

func NewCreateLedgerMovementTool(treasury *treasury.Service) *CreateLedgerMovementTool {
	return &CreateLedgerMovementTool{treasury: treasury}
}

func (t *CreateLedgerMovementTool) GetName() string {
	return "create_ledger_movement"
}

func (t *CreateLedgerMovementTool) GetDescription() string {
	return "Records a ledger movement. EXPENSE and OPERATOR_PAYMENT against a real account are rejected when the account balance does not cover them. " +
		"Secondary-currency amounts are converted to the reporting currency with the given rate or the rate of the movement date, and that rate is stored on the movement."
}

func (t *CreateLedgerMovementTool) GetInputSchema() mcp.JSONSchema {
	types := make([]string, 0, len(ledger.MovementTypes))
	for _, mt := range ledger.MovementTypes {
		types = append(types, string(mt))
	}
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"accountId": stringProp("Financial account the movement is recorded against"),
			"type": map[string]interface{}{
				"type":        "string",
				"description": "Movement type",
				"enum":        types,
			},
			"currency":       currencyProp("Transaction currency"),
			"amount":         amountProp("Amount in the transaction currency, always positive"),
			"exchangeRate":   amountProp("Optional rate in reporting-currency units per secondary-currency unit; resolved from the movement date when omitted"),
			"concept":        stringProp("Free-text description"),
			"operationId":    stringProp("Optional travel operation the movement belongs to"),
			"leadId":         stringProp("Optional sales lead"),
			"sellerId":       stringProp("Seller, for COMMISSION movements"),
			"operatorId":     stringProp("Tour operator, for OPERATOR_PAYMENT movements"),
			"receiptNumber":  stringProp("Optional receipt reference"),
			"movementDate":   dateProp("Movement date, defaults to today,"),
			"idempotencyKey": stringProp("Optional key; repeating a call with the same key returns the first movement"),
			"createdBy":      stringProp("User recording the movement"),
		},
		Required: []string{"accountId", "type", "currency", "amount"},
	}
}

func (t *CreateLedgerMovementTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		AccountID      string          `json:"accountId"`
		Type           string          `json:"type"`
		Currency       string          `json:"currency"`
		Amount         decimal.Decimal `json:"amount"`
		ExchangeRate   decimal.Decimal `json:"exchangeRate"`
		Concept        string          `json:"concept"`
		OperationID    string          `json:"operationId"`
		LeadID         string          `json:"leadId"`
		SellerID       string          `json:"sellerId"`
		OperatorID     string          `json:"operatorId"`
		ReceiptNumber  string          `json:"receiptNumber"`
		MovementDate   string          `json:"movementDate"`
		IdempotencyKey string          `json:"idempotencyKey"`
		CreatedBy      string          `json:"createdBy"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}

	movementType, err := ledger.ParseMovementType(args.Type)
	if err != nil {
		return errorResult("creating ledger movement", err)
	}
	currency, err := money.ParseCurrency(args.Currency)
	if err != nil {
		return errorResult("creating ledger movement", err)
	}

	result, err := t.treasury.CreateLedgerMovement(ctx, &ledger.Draft{
		AccountID:      args.AccountID,
		OperationID:    args.OperationID,
		LeadID:         args.LeadID,
		Type:           movementType,
		Currency:       currency,
		OriginalAmount: args.Amount,
		ExchangeRate:   optionalRate(args.ExchangeRate),
		Concept:        args.Concept,
		SellerID:       args.SellerID,
		OperatorID:     args.OperatorID,
		ReceiptNumber:  args.ReceiptNumber,
		MovementDate:   args.MovementDate,
		IdempotencyKey: args.IdempotencyKey,
		CreatedBy:      args.CreatedBy,
	})
	if err != nil {
		return errorResult("creating ledger movement", err)
	}

	summary := "Ledger movement created successfully"
	if result.Replayed {
		summary = fmt.Sprintf("Idempotency key %q was already used; returning the recorded movement", args.IdempotencyKey)
	}
	return jsonResult(summary, result.Movement)
}

// RetractLedgerMovementTool deletes a movement recorded by mistake
type RetractLedgerMovementTool struct {
	treasury *treasury.Service
}

func NewRetractLedgerMovementTool(treasury *treasury.Service) *RetractLedgerMovementTool {
	return &RetractLedgerMovementTool{treasury: treasury}
}

func (t *RetractLedgerMovementTool) GetName() string {
	return "retract_ledger_movement"
}

func (t *RetractLedgerMovementTool) GetDescription() string {
	return "Administratively removes a ledger movement recorded by mistake and refreshes the account balance"
}

func (t *RetractLedgerMovementTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"movementId": stringProp("Movement to remove"),
		},
		Required: []string{"movementId"},
	}
}

func (t *RetractLedgerMovementTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		MovementID string `json:"movementId"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}

	movement, err := t.treasury.RetractMovement(ctx, args.MovementID)
	if err != nil {
		return errorResult("retracting ledger movement", err)
	}
	return jsonResult("Ledger movement retracted", movement)
}

// TransferBetweenAccountsTool moves money between two real accounts
type TransferBetweenAccountsTool struct {
	treasury *treasury.Service
}

func NewTransferBetweenAccountsTool(treasury *treasury.Service) *TransferBetweenAccountsTool {
	return &TransferBetweenAccountsTool{treasury: treasury}
}

func (t *TransferBetweenAccountsTool) GetName() string {
	return "transfer_between_accounts"
}

func (t *TransferBetweenAccountsTool) GetDescription() string {
	return "Moves money between two real accounts of the same currency. The source balance is checked and both movements are written together."
}

func (t *TransferBetweenAccountsTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"fromAccountId":  stringProp("Source account"),
			"toAccountId":    stringProp("Destination account"),
			"amount":         amountProp("Amount to move"),
			"currency":       currencyProp("Currency of both accounts"),
			"exchangeRate":   amountProp("Optional rate in reporting-currency units per secondary-currency unit; resolved from the transfer date when omitted"),
			"date":           dateProp("Transfer date, defaults to today,"),
			"notes":          stringProp("Optional notes"),
			"idempotencyKey": stringProp("Optional key; repeating the call returns the first transfer"),
			"createdBy":      stringProp("User recording the transfer"),
		},
		Required: []string{"fromAccountId", "toAccountId", "amount", "currency"},
	}
}

func (t *TransferBetweenAccountsTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		FromAccountID  string          `json:"fromAccountId"`
		ToAccountID    string          `json:"toAccountId"`
		Amount         decimal.Decimal `json:"amount"`
		Currency       string          `json:"currency"`
		ExchangeRate   decimal.Decimal `json:"exchangeRate"`
		Date           string          `json:"date"`
		Notes          string          `json:"notes"`
		IdempotencyKey string          `json:"idempotencyKey"`
		CreatedBy      string          `json:"createdBy"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}
	currency, err := money.ParseCurrency(args.Currency)
	if err != nil {
		return errorResult("transferring between accounts", err)
	}

	result, err := t.treasury.TransferBetweenAccounts(ctx, &treasury.TransferRequest{
		FromAccountID:  args.FromAccountID,
		ToAccountID:    args.ToAccountID,
		Amount:         args.Amount,
		Currency:       currency,
		Date:           args.Date,
		Notes:          args.Notes,
		Rate:           optionalRate(args.ExchangeRate),
		IdempotencyKey: args.IdempotencyKey,
		CreatedBy:      args.CreatedBy,
	})
	if err != nil {
		return errorResult("transferring between accounts", err)
	}
	return jsonResult("Transfer recorded", result)
}
