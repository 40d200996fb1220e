package commission

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// Status represents the payment state of a commission
type Status string

const (
	// Pending commissions are owed to the seller
	Pending Status = "PENDING"
	// Paid commissions were settled by a COMMISSION movement
	Paid Status = "PAID"
)

// Commission is the amount a seller earns on an operation
type Commission struct {
	CommissionID string          `json:"commissionId"`
	OperationID  string          `json:"operationId"`
	SellerID     string          `json:"sellerId"`
	Currency     money.Currency  `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	Status       Status          `json:"status"`
	PaidAt       *time.Time      `json:"paidAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// CreateCommissionRequest represents the request to register a commission
type CreateCommissionRequest struct {
	OperationID string          `json:"operationId"`
	SellerID    string          `json:"sellerId"`
	Currency    money.Currency  `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
}
