package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// MovementType is the closed set of ledger movement kinds
type MovementType string

const (
	// Income is money received, e.g. a client payment
	Income MovementType = "INCOME"
	// Expense is money spent
	Expense MovementType = "EXPENSE"
	// FXGain is a favourable exchange difference
	FXGain MovementType = "FX_GAIN"
	// FXLoss is an unfavourable exchange difference
	FXLoss MovementType = "FX_LOSS"
	// Commission is a seller commission
	Commission MovementType = "COMMISSION"
	// OperatorPayment is a payment to a tour operator
	OperatorPayment MovementType = "OPERATOR_PAYMENT"
)

// MovementTypes lists every movement type
var MovementTypes = []MovementType{Income, Expense, FXGain, FXLoss, Commission, OperatorPayment}

// ParseMovementType validates a movement type string
func ParseMovementType(value string) (MovementType, error) {
	t := MovementType(strings.ToUpper(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown movement type %q", value)
	}
	return t, nil
}

// Valid reports whether t is one of the known movement types
func (t MovementType) Valid() bool {
	switch t {
	case Income, Expense, FXGain, FXLoss, Commission, OperatorPayment:
		return true
	}
	return false
}

// Sign returns +1 for money in and -1 for money out
func (t MovementType) Sign() int {
	switch t {
	case Income, FXGain:
		return 1
	default:
		return -1
	}
}

// RequiresFundsCheck reports whether a movement of this type must pass the
// sufficient-balance check before it is recorded against a real account
func (t MovementType) RequiresFundsCheck() bool {
	return t == Expense || t == OperatorPayment
}

// Movement is an immutable ledger fact: on account A, an amount of type T occurred
type Movement struct {
	MovementID       string           `json:"movementId"`
	AccountID        string           `json:"accountId"`
	OperationID      string           `json:"operationId,omitempty"`
	LeadID           string           `json:"leadId,omitempty"`
	Type             MovementType     `json:"type"`
	Currency         money.Currency   `json:"currency"`
	OriginalAmount   decimal.Decimal  `json:"originalAmount"`
	ExchangeRate     *decimal.Decimal `json:"exchangeRate,omitempty"`
	EquivalentAmount decimal.Decimal  `json:"equivalentAmount"`
	Concept          string           `json:"concept,omitempty"`
	SellerID         string           `json:"sellerId,omitempty"`
	OperatorID       string           `json:"operatorId,omitempty"`
	ReceiptNumber    string           `json:"receiptNumber,omitempty"`
	BatchID          string           `json:"batchId,omitempty"`
	MovementDate     string           `json:"movementDate"` // ISO date format
	IdempotencyKey   string           `json:"idempotencyKey,omitempty"`

	// Metadata
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

// SignedEquivalent returns the reporting-currency amount with the sign implied by the type
func (m *Movement) SignedEquivalent() decimal.Decimal {
	if m.Type.Sign() > 0 {
		return m.EquivalentAmount
	}
	return m.EquivalentAmount.Neg()
}

// SignedOriginal returns the transaction-currency amount with the sign implied by the type
func (m *Movement) SignedOriginal() decimal.Decimal {
	if m.Type.Sign() > 0 {
		return m.OriginalAmount
	}
	return m.OriginalAmount.Neg()
}

// SamePayload reports whether two movements describe the same money event.
// Used to detect an idempotency key reused for a different request.
func (m *Movement) SamePayload(other *Movement) bool {
	return m.AccountID == other.AccountID &&
		m.Type == other.Type &&
		m.Currency == other.Currency &&
		m.OriginalAmount.Equal(other.OriginalAmount) &&
		m.EquivalentAmount.Equal(other.EquivalentAmount)
}

// Draft is the caller-supplied description of a movement to append
type Draft struct {
	AccountID        string           `json:"accountId"`
	OperationID      string           `json:"operationId,omitempty"`
	LeadID           string           `json:"leadId,omitempty"`
	Type             MovementType     `json:"type"`
	Currency         money.Currency   `json:"currency"`
	OriginalAmount   decimal.Decimal  `json:"originalAmount"`
	ExchangeRate     *decimal.Decimal `json:"exchangeRate,omitempty"`
	EquivalentAmount *decimal.Decimal `json:"equivalentAmount,omitempty"`
	Concept          string           `json:"concept,omitempty"`
	SellerID         string           `json:"sellerId,omitempty"`
	OperatorID       string           `json:"operatorId,omitempty"`
	ReceiptNumber    string           `json:"receiptNumber,omitempty"`
	BatchID          string           `json:"batchId,omitempty"`
	MovementDate     string           `json:"movementDate,omitempty"`
	IdempotencyKey   string           `json:"idempotencyKey,omitempty"`
	CreatedBy        string           `json:"createdBy,omitempty"`
}

// AppendResult is returned by Append
type AppendResult struct {
	Movement *Movement `json:"movement"`
	// Replayed is true when the idempotency key matched an earlier append and nothing was written
	Replayed bool `json:"replayed"`
}
