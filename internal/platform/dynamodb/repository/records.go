package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/commission"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
)

// Single-table key layout
//
//	account       PK=ACCOUNT#<id>         SK=METADATA        GSI1PK=ACCOUNTS  GSI1SK=<id>
//	movement      PK=ACCOUNT#<account>    SK=MOVEMENT#<ulid> GSI1PK=MOVEMENT#<id>
//	idempotency   PK=IDEMPOTENCY#<key>    SK=METADATA
//	category      PK=CATEGORY#<id>        SK=METADATA
//	exchange rate PK=EXCHANGE_RATE        SK=DATE#<yyyy-mm-dd>
//	payable       PK=PAYABLE#<id>         SK=METADATA
//	commission    PK=OPERATION#<op>       SK=COMMISSION#<id>
const (
	metadataSK       = "METADATA"
	accountsGSI1PK   = "ACCOUNTS"
	movementPrefix   = "MOVEMENT#"
	exchangeRatePK   = "EXCHANGE_RATE"
	datePrefix       = "DATE#"
	commissionPrefix = "COMMISSION#"
	gsi1             = "GSI1"
)

func accountPK(accountID string) string { return "ACCOUNT#" + accountID }
func movementSK(movementID string) string { return movementPrefix + movementID }
func movementGSI1PK(movementID string) string { return movementPrefix + movementID }
func idempotencyPK(key string) string { return "IDEMPOTENCY#" + key }
func categoryPK(categoryID string) string { return "CATEGORY#" + categoryID }
func rateSK(date string) string { return datePrefix + date }
func payablePK(payableID string) string { return "PAYABLE#" + payableID }
func operationPK(operationID string) string { return "OPERATION#" + operationID }
func commissionSK(commissionID string) string { return commissionPrefix + commissionID }

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// Decimal amounts are stored as strings to keep exact cents

type accountRecord struct {
	PK             string    `dynamodbav:"PK"`
	SK             string    `dynamodbav:"SK"`
	GSI1PK         string    `dynamodbav:"GSI1PK"`
	GSI1SK         string    `dynamodbav:"GSI1SK"`
	Type           string    `dynamodbav:"Type"`
	AccountID      string    `dynamodbav:"AccountID"`
	Name           string    `dynamodbav:"Name"`
	Kind           string    `dynamodbav:"Kind"`
	Currency       string    `dynamodbav:"Currency"`
	OpeningBalance string    `dynamodbav:"OpeningBalance"`
	Active         bool      `dynamodbav:"Active"`
	CategoryID     string    `dynamodbav:"CategoryID,omitempty"`
	CreatedAt      time.Time `dynamodbav:"CreatedAt"`
	UpdatedAt      time.Time `dynamodbav:"UpdatedAt"`
	CreatedBy      string    `dynamodbav:"CreatedBy,omitempty"`
}

func newAccountRecord(acc *account.FinancialAccount) accountRecord {
	return accountRecord{
		PK:             accountPK(acc.AccountID),
		SK:             metadataSK,
		GSI1PK:         accountsGSI1PK,
		GSI1SK:         acc.AccountID,
		Type:           "account",
		AccountID:      acc.AccountID,
		Name:           acc.Name,
		Kind:           string(acc.Kind),
		Currency:       string(acc.Currency),
		OpeningBalance: acc.OpeningBalance.String(),
		Active:         acc.Active,
		CategoryID:     acc.CategoryID,
		CreatedAt:      acc.CreatedAt,
		UpdatedAt:      acc.UpdatedAt,
		CreatedBy:      acc.CreatedBy,
	}
}

func (r accountRecord) toDomain() (*account.FinancialAccount, error) {
	opening, err := decimal.NewFromString(r.OpeningBalance)
	if err != nil {
		return nil, corrupt("account", r.AccountID, err)
	}
	return &account.FinancialAccount{
		AccountID:      r.AccountID,
		Name:           r.Name,
		Kind:           account.Kind(r.Kind),
		Currency:       money.Currency(r.Currency),
		OpeningBalance: opening,
		Active:         r.Active,
		CategoryID:     r.CategoryID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		CreatedBy:      r.CreatedBy,
	}, nil
}

type categoryRecord struct {
	PK         string    `dynamodbav:"PK"`
	SK         string    `dynamodbav:"SK"`
	Type       string    `dynamodbav:"Type"`
	CategoryID string    `dynamodbav:"CategoryID"`
	Code       string    `dynamodbav:"Code"`
	Name       string    `dynamodbav:"Name"`
	Section    string    `dynamodbav:"Section"`
	Control    string    `dynamodbav:"Control,omitempty"`
	CreatedAt  time.Time `dynamodbav:"CreatedAt"`
}

func newCategoryRecord(c *account.Category) categoryRecord {
	return categoryRecord{
		PK:         categoryPK(c.CategoryID),
		SK:         metadataSK,
		Type:       "category",
		CategoryID: c.CategoryID,
		Code:       c.Code,
		Name:       c.Name,
		Section:    string(c.Type),
		Control:    string(c.Control),
		CreatedAt:  c.CreatedAt,
	}
}

func (r categoryRecord) toDomain() *account.Category {
	return &account.Category{
		CategoryID: r.CategoryID,
		Code:       r.Code,
		Name:       r.Name,
		Type:       account.CategoryType(r.Section),
		Control:    account.ControlType(r.Control),
		CreatedAt:  r.CreatedAt,
	}
}

type movementRecord struct {
	PK               string    `dynamodbav:"PK"`
	SK               string    `dynamodbav:"SK"`
	GSI1PK           string    `dynamodbav:"GSI1PK"`
	GSI1SK           string    `dynamodbav:"GSI1SK"`
	Type             string    `dynamodbav:"Type"`
	MovementID       string    `dynamodbav:"MovementID"`
	AccountID        string    `dynamodbav:"AccountID"`
	OperationID      string    `dynamodbav:"OperationID,omitempty"`
	LeadID           string    `dynamodbav:"LeadID,omitempty"`
	MovementType     string    `dynamodbav:"MovementType"`
	Currency         string    `dynamodbav:"Currency"`
	OriginalAmount   string    `dynamodbav:"OriginalAmount"`
	ExchangeRate     string    `dynamodbav:"ExchangeRate,omitempty"`
	EquivalentAmount string    `dynamodbav:"EquivalentAmount"`
	Concept          string    `dynamodbav:"Concept,omitempty"`
	SellerID         string    `dynamodbav:"SellerID,omitempty"`
	OperatorID       string    `dynamodbav:"OperatorID,omitempty"`
	ReceiptNumber    string    `dynamodbav:"ReceiptNumber,omitempty"`
	BatchID          string    `dynamodbav:"BatchID,omitempty"`
	MovementDate     string    `dynamodbav:"MovementDate"`
	IdempotencyKey   string    `dynamodbav:"IdempotencyKey,omitempty"`
	CreatedAt        time.Time `dynamodbav:"CreatedAt"`
	CreatedBy        string    `dynamodbav:"CreatedBy,omitempty"`
}

func newMovementRecord(m *ledger.Movement) movementRecord {
	rec := movementRecord{
		PK:               accountPK(m.AccountID),
		SK:               movementSK(m.MovementID),
		GSI1PK:           movementGSI1PK(m.MovementID),
		GSI1SK:           "MOVEMENT",
		Type:             "movement",
		MovementID:       m.MovementID,
		AccountID:        m.AccountID,
		OperationID:      m.OperationID,
		LeadID:           m.LeadID,
		MovementType:     string(m.Type),
		Currency:         string(m.Currency),
		OriginalAmount:   m.OriginalAmount.String(),
		EquivalentAmount: m.EquivalentAmount.String(),
		Concept:          m.Concept,
		SellerID:         m.SellerID,
		OperatorID:       m.OperatorID,
		ReceiptNumber:    m.ReceiptNumber,
		BatchID:          m.BatchID,
		MovementDate:     m.MovementDate,
		IdempotencyKey:   m.IdempotencyKey,
		CreatedAt:        m.CreatedAt,
		CreatedBy:        m.CreatedBy,
	}
	if m.ExchangeRate != nil {
		rec.ExchangeRate = m.ExchangeRate.String()
	}
	return rec
}

func (r movementRecord) toDomain() (*ledger.Movement, error) {
	original, err := decimal.NewFromString(r.OriginalAmount)
	if err != nil {
		return nil, corrupt("movement", r.MovementID, err)
	}
	equivalent, err := decimal.NewFromString(r.EquivalentAmount)
	if err != nil {
		return nil, corrupt("movement", r.MovementID, err)
	}
	m := &ledger.Movement{
		MovementID:       r.MovementID,
		AccountID:        r.AccountID,
		OperationID:      r.OperationID,
		LeadID:           r.LeadID,
		Type:             ledger.MovementType(r.MovementType),
		Currency:         money.Currency(r.Currency),
		OriginalAmount:   original,
		EquivalentAmount: equivalent,
		Concept:          r.Concept,
		SellerID:         r.SellerID,
		OperatorID:       r.OperatorID,
		ReceiptNumber:    r.ReceiptNumber,
		BatchID:          r.BatchID,
		MovementDate:     r.MovementDate,
		IdempotencyKey:   r.IdempotencyKey,
		CreatedAt:        r.CreatedAt,
		CreatedBy:        r.CreatedBy,
	}
	if r.ExchangeRate != "" {
		rate, err := decimal.NewFromString(r.ExchangeRate)
		if err != nil {
			return nil, corrupt("movement", r.MovementID, err)
		}
		m.ExchangeRate = &rate
	}
	return m, nil
}

type idempotencyRecord struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	Type       string `dynamodbav:"Type"`
	MovementID string `dynamodbav:"MovementID"`
	AccountID  string `dynamodbav:"AccountID"`
}

type rateRecord struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	Type      string    `dynamodbav:"Type"`
	Date      string    `dynamodbav:"Date"`
	Rate      string    `dynamodbav:"Rate"`
	Source    string    `dynamodbav:"Source,omitempty"`
	CreatedAt time.Time `dynamodbav:"CreatedAt"`
}

func (r rateRecord) toDomain() (*currency.ExchangeRate, error) {
	rate, err := decimal.NewFromString(r.Rate)
	if err != nil {
		return nil, corrupt("exchange rate", r.Date, err)
	}
	return &currency.ExchangeRate{Date: r.Date, Rate: rate, Source: r.Source, CreatedAt: r.CreatedAt}, nil
}

type payableRecord struct {
	PK          string    `dynamodbav:"PK"`
	SK          string    `dynamodbav:"SK"`
	Type        string    `dynamodbav:"Type"`
	PayableID   string    `dynamodbav:"PayableID"`
	OperationID string    `dynamodbav:"OperationID,omitempty"`
	OperatorID  string    `dynamodbav:"OperatorID,omitempty"`
	Currency    string    `dynamodbav:"Currency"`
	TotalAmount string    `dynamodbav:"TotalAmount"`
	PaidAmount  string    `dynamodbav:"PaidAmount"`
	Status      string    `dynamodbav:"Status"`
	Version     int64     `dynamodbav:"Version"`
	CreatedAt   time.Time `dynamodbav:"CreatedAt"`
	UpdatedAt   time.Time `dynamodbav:"UpdatedAt"`
}

func newPayableRecord(p *settlement.Payable) payableRecord {
	return payableRecord{
		PK:          payablePK(p.PayableID),
		SK:          metadataSK,
		Type:        "payable",
		PayableID:   p.PayableID,
		OperationID: p.OperationID,
		OperatorID:  p.OperatorID,
		Currency:    string(p.Currency),
		TotalAmount: p.TotalAmount.String(),
		PaidAmount:  p.PaidAmount.String(),
		Status:      string(p.Status),
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (r payableRecord) toDomain() (*settlement.Payable, error) {
	total, err := decimal.NewFromString(r.TotalAmount)
	if err != nil {
		return nil, corrupt("payable", r.PayableID, err)
	}
	paid, err := decimal.NewFromString(r.PaidAmount)
	if err != nil {
		return nil, corrupt("payable", r.PayableID, err)
	}
	return &settlement.Payable{
		PayableID:   r.PayableID,
		OperationID: r.OperationID,
		OperatorID:  r.OperatorID,
		Currency:    money.Currency(r.Currency),
		TotalAmount: total,
		PaidAmount:  paid,
		Status:      settlement.PayableStatus(r.Status),
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

type commissionRecord struct {
	PK           string     `dynamodbav:"PK"`
	SK           string     `dynamodbav:"SK"`
	Type         string     `dynamodbav:"Type"`
	CommissionID string     `dynamodbav:"CommissionID"`
	OperationID  string     `dynamodbav:"OperationID"`
	SellerID     string     `dynamodbav:"SellerID"`
	Currency     string     `dynamodbav:"Currency"`
	Amount       string     `dynamodbav:"Amount"`
	Status       string     `dynamodbav:"Status"`
	PaidAt       *time.Time `dynamodbav:"PaidAt,omitempty"`
	CreatedAt    time.Time  `dynamodbav:"CreatedAt"`
}

func newCommissionRecord(c *commission.Commission) commissionRecord {
	return commissionRecord{
		PK:           operationPK(c.OperationID),
		SK:           commissionSK(c.CommissionID),
		Type:         "commission",
		CommissionID: c.CommissionID,
		OperationID:  c.OperationID,
		SellerID:     c.SellerID,
		Currency:     string(c.Currency),
		Amount:       c.Amount.String(),
		Status:       string(c.Status),
		PaidAt:       c.PaidAt,
		CreatedAt:    c.CreatedAt,
	}
}

func (r commissionRecord) toDomain() (*commission.Commission, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, corrupt("commission", r.CommissionID, err)
	}
	return &commission.Commission{
		CommissionID: r.CommissionID,
		OperationID:  r.OperationID,
		SellerID:     r.SellerID,
		Currency:     money.Currency(r.Currency),
		Amount:       amount,
		Status:       commission.Status(r.Status),
		PaidAt:       r.PaidAt,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func corrupt(kind, id string, err error) error {
	return commonErrors.NewInternalError(fmt.Sprintf("stored %s %s is unreadable", kind, id), err)
}

// isConditionFailure reports whether a write was rejected by a condition
// expression, either directly or inside a transaction
func isConditionFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var txErr *types.TransactionCanceledException
	return errors.As(err, &txErr)
}
