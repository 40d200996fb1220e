package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/mcp"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
)

// ProcessBulkSettlementTool pays several operator payables from one account
type ProcessBulkSettlementTool struct {
	processor *settlement.Processor
}

func NewProcessBulkSettlementTool(processor *settlement.Processor) *ProcessBulkSettlementTool {
	return &ProcessBulkSettlementTool{processor: processor}
}

func (t *ProcessBulkSettlementTool) GetName() string {
	return "process_bulk_settlement"
}

func (t *ProcessBulkSettlementTool) GetDescription() string {
	return "Pays a batch of operator payables from one funding account. The account must cover the whole batch; " +
		"each payable is then settled on its own and the report lists what was applied and what failed."
}

func (t *ProcessBulkSettlementTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"items": map[string]interface{}{
				"type":        "array",
				"description": "Payables to settle",
				"minItems":    1,
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"payableId": stringProp("Payable to settle"),
						"amount":    amountProp("Amount to pay in the payable currency"),
					},
					"required": []string{"payableId", "amount"},
				},
			},
			"fundingAccountId": stringProp("Real account the money leaves"),
			"currency":         currencyProp("Payment currency"),
			"exchangeRate":     amountProp("Optional rate in reporting-currency units per secondary-currency unit; resolved from the payment date when omitted"),
			"receiptRef":       stringProp("Optional payment receipt reference"),
			"date":             dateProp("Payment date, defaults to today,"),
			"notes":            stringProp("Optional notes"),
			"costAccountId":    stringProp("Account receiving the cost recognition, defaults to the configured one"),
			"idempotencyKey":   stringProp("Optional key; repeated items of the same batch are not applied twice"),
			"createdBy":        stringProp("User paying the batch"),
		},
		Required: []string{"items", "fundingAccountId", "currency"},
	}
}

func (t *ProcessBulkSettlementTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		Items            []settlement.Item `json:"items"`
		FundingAccountID string            `json:"fundingAccountId"`
		Currency         string            `json:"currency"`
		ExchangeRate     decimal.Decimal   `json:"exchangeRate"`
		ReceiptRef       string            `json:"receiptRef"`
		Date             string            `json:"date"`
		Notes            string            `json:"notes"`
		CostAccountID    string            `json:"costAccountId"`
		IdempotencyKey   string            `json:"idempotencyKey"`
		CreatedBy        string            `json:"createdBy"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}
	currency, err := money.ParseCurrency(args.Currency)
	if err != nil {
		return errorResult("processing settlement", err)
	}

	report, err := t.processor.Process(ctx, &settlement.Request{
		Items:            args.Items,
		FundingAccountID: args.FundingAccountID,
		Currency:         currency,
		Rate:             optionalRate(args.ExchangeRate),
		ReceiptRef:       args.ReceiptRef,
		Date:             args.Date,
		Notes:            args.Notes,
		CostAccountID:    args.CostAccountID,
		IdempotencyKey:   args.IdempotencyKey,
		CreatedBy:        args.CreatedBy,
	})
	if err != nil {
		return errorResult("processing settlement", err)
	}

	summary := fmt.Sprintf("Settlement %s: %d applied, %d failed", report.Status, len(report.Processed), len(report.Errors))
	result, err := jsonResult(summary, report)
	if err == nil && report.Status == settlement.StatusFailed {
		result.IsError = true
	}
	return result, err
}

// CreatePayableTool registers an amount owed to an operator
type CreatePayableTool struct {
	processor *settlement.Processor
}

func NewCreatePayableTool(processor *settlement.Processor) *CreatePayableTool {
	return &CreatePayableTool{processor: processor}
}

func (t *CreatePayableTool) GetName() string {
	return "create_payable"
}

func (t *CreatePayableTool) GetDescription() string {
	return "Registers an amount owed to a tour operator so it can be settled later"
}

func (t *CreatePayableTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"payableId":   stringProp("Optional ID; generated when omitted"),
			"operationId": stringProp("Travel operation the payable belongs to"),
			"operatorId":  stringProp("Tour operator owed"),
			"currency":    currencyProp("Currency of the debt"),
			"totalAmount": amountProp("Amount owed"),
		},
		Required: []string{"currency", "totalAmount"},
	}
}

func (t *CreatePayableTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		PayableID   string          `json:"payableId"`
		OperationID string          `json:"operationId"`
		OperatorID  string          `json:"operatorId"`
		Currency    string          `json:"currency"`
		TotalAmount decimal.Decimal `json:"totalAmount"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}
	currency, err := money.ParseCurrency(args.Currency)
	if err != nil {
		return errorResult("creating payable", err)
	}

	payable, err := t.processor.CreatePayable(ctx, &settlement.CreatePayableRequest{
		PayableID:   args.PayableID,
		OperationID: args.OperationID,
		OperatorID:  args.OperatorID,
		Currency:    currency,
		TotalAmount: args.TotalAmount,
	})
	if err != nil {
		return errorResult("creating payable", err)
	}
	return jsonResult("Payable created successfully", payable)
}

// GetPayableTool returns a payable and what is still owed
type GetPayableTool struct {
	processor *settlement.Processor
}

func NewGetPayableTool(processor *settlement.Processor) *GetPayableTool {
	return &GetPayableTool{processor: processor}
}

func (t *GetPayableTool) GetName() string {
	return "get_payable"
}

func (t *GetPayableTool) GetDescription() string {
	return "Returns a payable with its paid and outstanding amounts"
}

func (t *GetPayableTool) GetInputSchema() mcp.JSONSchema {
	return mcp.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"payableId": stringProp("Payable ID"),
		},
		Required: []string{"payableId"},
	}
}

func (t *GetPayableTool) Execute(ctx context.Context, arguments json.RawMessage) (*mcp.CallToolResult, error) {
	var args struct {
		PayableID string `json:"payableId"`
	}
	if res := decodeArgs(arguments, &args); res != nil {
		return res, nil
	}

	payable, err := t.processor.GetPayable(ctx, args.PayableID)
	if err != nil {
		return errorResult("getting payable", err)
	}
	return jsonResult(fmt.Sprintf("Payable %s: %s outstanding", payable.PayableID, money.Format(payable.Outstanding(), payable.Currency)), payable)
}
