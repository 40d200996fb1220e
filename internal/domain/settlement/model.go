package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// PayableStatus represents the settlement state of a payable
type PayableStatus string

const (
	// PayableOpen is a payable with an outstanding amount
	PayableOpen PayableStatus = "OPEN"
	// PayablePaid is a payable whose paid amount reached its total
	PayablePaid PayableStatus = "PAID"
)

// Payable is an amount owed to a tour operator for an operation
type Payable struct {
	PayableID   string          `json:"payableId"`
	OperationID string          `json:"operationId,omitempty"`
	OperatorID  string          `json:"operatorId,omitempty"`
	Currency    money.Currency  `json:"currency"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	PaidAmount  decimal.Decimal `json:"paidAmount"`
	Status      PayableStatus   `json:"status"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Outstanding returns the amount still owed
func (p *Payable) Outstanding() decimal.Decimal {
	return money.Round(p.TotalAmount.Sub(p.PaidAmount))
}

// CreatePayableRequest represents the request to register a payable
type CreatePayableRequest struct {
	PayableID   string          `json:"payableId,omitempty"`
	OperationID string          `json:"operationId,omitempty"`
	OperatorID  string          `json:"operatorId,omitempty"`
	Currency    money.Currency  `json:"currency"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// Item is one payable to settle in a batch. Amount is in the payable's currency.
type Item struct {
	PayableID string          `json:"payableId"`
	Amount    decimal.Decimal `json:"amount"`
}

// Request describes a settlement batch
type Request struct {
	Items            []Item           `json:"items"`
	FundingAccountID string           `json:"fundingAccountId"`
	Currency         money.Currency   `json:"currency"`
	Rate             *decimal.Decimal `json:"rate,omitempty"`
	ReceiptRef       string           `json:"receiptRef,omitempty"`
	Date             string           `json:"date,omitempty"` // ISO date format
	Notes            string           `json:"notes,omitempty"`
	CostAccountID    string           `json:"costAccountId,omitempty"`
	IdempotencyKey   string           `json:"idempotencyKey,omitempty"`
	CreatedBy        string           `json:"createdBy,omitempty"`
}

// Stage names the step of the batch state machine an item error belongs to
type Stage string

const (
	// StageCollect resolves and validates each item
	StageCollect Stage = "COLLECT"
	// StageValidateTotal checks the funding account once for the batch total
	StageValidateTotal Stage = "VALIDATE_TOTAL"
	// StageApply writes each item
	StageApply Stage = "APPLY_EACH"
	// StageReport summarizes the batch
	StageReport Stage = "REPORT"
)

// Status is the overall outcome of a batch
type Status string

const (
	// StatusSuccess means every item was applied
	StatusSuccess Status = "SUCCESS"
	// StatusPartial means some items were applied and some failed
	StatusPartial Status = "PARTIAL"
	// StatusFailed means no item was applied
	StatusFailed Status = "FAILED"
)

// ProcessedItem describes an applied settlement item
type ProcessedItem struct {
	PayableID         string          `json:"payableId"`
	Amount            decimal.Decimal `json:"amount"`
	PayableCurrency   money.Currency  `json:"payableCurrency"`
	FundingAmount     decimal.Decimal `json:"fundingAmount"`
	CashOutMovementID string          `json:"cashOutMovementId"`
	CostMovementID    string          `json:"costMovementId"`
	PayableStatus     PayableStatus   `json:"payableStatus"`
	PaidAmount        decimal.Decimal `json:"paidAmount"`
}

// ItemError describes an item that was not applied
type ItemError struct {
	Index     int    `json:"index"`
	PayableID string `json:"payableId,omitempty"`
	Stage     Stage  `json:"stage"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Report is the result of a settlement batch
type Report struct {
	BatchID          string          `json:"batchId"`
	Status           Status          `json:"status"`
	FundingAccountID string          `json:"fundingAccountId"`
	Currency         money.Currency  `json:"currency"`
	Rate             decimal.Decimal `json:"rate"`
	Total            decimal.Decimal `json:"total"`
	AppliedTotal     decimal.Decimal `json:"appliedTotal"`
	Processed        []ProcessedItem `json:"processed"`
	Errors           []ItemError     `json:"errors"`
	Warning          string          `json:"warning,omitempty"`
}

// Application is the atomic unit written for one settlement item: the cash-out
// movement, the cost-recognition movement and the new payable state
type Application struct {
	CashOut         *ledger.Movement
	Cost            *ledger.Movement
	Payable         *Payable
	ExpectedVersion int64
}
