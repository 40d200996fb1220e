package settlement

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	ulid "github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/balance"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/treasury"
)

// Observer is notified when a batch completes (metrics)
type Observer interface {
	BatchProcessed(status Status, applied, failed int)
}

// Processor applies settlement batches against a single funding account
type Processor struct {
	repo          Repository
	accounts      *account.Service
	store         *ledger.Store
	validator     *balance.Validator
	converter     *currency.Service
	locker        treasury.Locker
	observer      Observer
	costAccountID string
	logger        *slog.Logger
	now           func() time.Time
}

// ProcessorOption configures optional settings of the processor
type ProcessorOption func(*Processor)

// WithDefaultCostAccount sets the cost-tracking account used when a request names none
func WithDefaultCostAccount(accountID string) ProcessorOption {
	return func(p *Processor) {
		p.costAccountID = accountID
	}
}

// WithBatchObserver sets the batch observer
func WithBatchObserver(observer Observer) ProcessorOption {
	return func(p *Processor) {
		p.observer = observer
	}
}

// NewProcessor creates a new bulk settlement processor
func NewProcessor(
	repo Repository,
	accounts *account.Service,
	store *ledger.Store,
	validator *balance.Validator,
	converter *currency.Service,
	locker treasury.Locker,
	logger *slog.Logger,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		repo:      repo,
		accounts:  accounts,
		store:     store,
		validator: validator,
		converter: converter,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreatePayable registers a payable owed to an operator
func (p *Processor) CreatePayable(ctx context.Context, req *CreatePayableRequest) (*Payable, error) {
	if !p.converter.Pair().Supports(req.Currency) {
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported payable currency %q", req.Currency))
	}
	total := money.Round(req.TotalAmount)
	if !total.IsPositive() {
		return nil, errors.NewValidationError(fmt.Sprintf("payable total must be positive, got %s", money.Format(req.TotalAmount, req.Currency)))
	}

	now := p.now().UTC()
	payable := &Payable{
		PayableID:   req.PayableID,
		OperationID: req.OperationID,
		OperatorID:  req.OperatorID,
		Currency:    req.Currency,
		TotalAmount: total,
		PaidAmount:  decimal.Zero,
		Status:      PayableOpen,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if payable.PayableID == "" {
		payable.PayableID = ulid.Make().String()
	}
	if err := p.repo.CreatePayable(ctx, payable); err != nil {
		return nil, err
	}
	return payable, nil
}

// GetPayable retrieves a payable by ID
func (p *Processor) GetPayable(ctx context.Context, payableID string) (*Payable, error) {
	return p.repo.GetPayable(ctx, payableID)
}

// collected is an item that passed COLLECT
type collected struct {
	index         int
	item          Item
	payable       *Payable
	fundingAmount decimal.Decimal
}

// batch carries the state shared by the stages of one Process call
type batch struct {
	id      string
	req     *Request
	day     string
	rate    decimal.Decimal
	funding *account.FinancialAccount
	cost    *account.FinancialAccount
	valid   []collected
	total   decimal.Decimal
	report  *Report
}

// Process runs COLLECT -> VALIDATE_TOTAL -> APPLY_EACH -> REPORT.
// Request-level problems and an insufficient total return an error and write
// nothing. Item-level problems are reported in Report.Errors.
func (p *Processor) Process(ctx context.Context, req *Request) (*Report, error) {
	b, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	p.collect(ctx, b)

	if len(b.valid) == 0 {
		return p.finish(b), nil
	}

	applying := false
	err = p.locker.WithLock(ctx, treasury.AccountLockKey(b.funding.AccountID), func(ctx context.Context) error {
		if err := p.validateTotal(ctx, b); err != nil {
			return err
		}
		applying = true
		p.applyEach(ctx, b)
		return nil
	})
	if err != nil && !applying {
		return nil, err
	}
	if err != nil {
		// Items may already be written, so the report is still the answer
		p.logger.Error("settlement lock ended while applying items",
			"batchId", b.id,
			"fundingAccountId", b.funding.AccountID,
			"error", err,
		)
	}

	return p.finish(b), nil
}

func (p *Processor) prepare(ctx context.Context, req *Request) (*batch, error) {
	if req == nil || len(req.Items) == 0 {
		return nil, errors.NewValidationError("settlement batch must contain at least one item")
	}
	pair := p.converter.Pair()
	if !pair.Supports(req.Currency) {
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported settlement currency %q", req.Currency))
	}

	funding, err := p.accounts.RequireFundingAccount(ctx, req.FundingAccountID)
	if err != nil {
		return nil, err
	}
	if funding.Currency != req.Currency {
		return nil, errors.NewCurrencyMismatchError(fmt.Sprintf(
			"funding account %s (%s) is denominated in %s but the batch is in %s",
			funding.Name, funding.AccountID, funding.Currency, req.Currency))
	}

	costAccountID := req.CostAccountID
	if costAccountID == "" {
		costAccountID = p.costAccountID
	}
	if costAccountID == "" {
		return nil, errors.NewValidationError("a cost account is required to record operator costs")
	}
	cost, err := p.accounts.GetAccount(ctx, costAccountID)
	if err != nil {
		return nil, err
	}
	if cost.AccountID == funding.AccountID {
		return nil, errors.NewValidationError(fmt.Sprintf(
			"cost account %s must differ from the funding account: each item would debit it twice", cost.AccountID))
	}
	if !cost.Active {
		return nil, errors.NewValidationError(fmt.Sprintf("cost account %s (%s) is inactive and cannot receive movements", cost.AccountID, cost.Name))
	}

	day := req.Date
	if day == "" {
		day = p.now().UTC().Format(currency.DateLayout)
	}
	parsed, err := time.Parse(currency.DateLayout, day)
	if err != nil {
		return nil, errors.NewValidationError("settlement date must be in YYYY-MM-DD format")
	}

	var rate decimal.Decimal
	if req.Rate != nil && req.Rate.IsPositive() {
		rate = *req.Rate
	} else {
		rate = p.converter.ResolveRate(ctx, parsed)
	}

	id := uuid.NewString()
	return &batch{
		id:      id,
		req:     req,
		day:     day,
		rate:    rate,
		funding: funding,
		cost:    cost,
		total:   decimal.Zero,
		report: &Report{
			BatchID:          id,
			FundingAccountID: funding.AccountID,
			Currency:         req.Currency,
			Rate:             rate,
			Total:            decimal.Zero,
			AppliedTotal:     decimal.Zero,
			Processed:        []ProcessedItem{},
			Errors:           []ItemError{},
		},
	}, nil
}

// collect resolves every item, setting aside the invalid ones
func (p *Processor) collect(ctx context.Context, b *batch) {
	seen := make(map[string]bool, len(b.req.Items))

	for i, item := range b.req.Items {
		payableID := strings.TrimSpace(item.PayableID)
		if payableID == "" {
			b.reject(i, item.PayableID, StageCollect, errors.NewValidationError("payable ID is required"))
			continue
		}
		if seen[payableID] {
			b.reject(i, payableID, StageCollect, errors.NewValidationError(fmt.Sprintf("payable %s appears more than once in the batch", payableID)))
			continue
		}
		seen[payableID] = true

		amount := money.Round(item.Amount)
		if !amount.IsPositive() {
			b.reject(i, payableID, StageCollect, errors.NewValidationError(fmt.Sprintf("amount for payable %s must be positive", payableID)))
			continue
		}

		payable, err := p.repo.GetPayable(ctx, payableID)
		if err != nil {
			b.reject(i, payableID, StageCollect, err)
			continue
		}
		if payable.Status == PayablePaid {
			b.reject(i, payableID, StageCollect, errors.NewValidationError(fmt.Sprintf("payable %s is already paid", payableID)))
			continue
		}

		fundingAmount, err := p.converter.Convert(amount, payable.Currency, b.req.Currency, &b.rate)
		if err != nil {
			b.reject(i, payableID, StageCollect, err)
			continue
		}

		b.valid = append(b.valid, collected{
			index:         i,
			item:          Item{PayableID: payableID, Amount: amount},
			payable:       payable,
			fundingAmount: fundingAmount,
		})
		b.total = money.Round(b.total.Add(fundingAmount))
	}
	b.report.Total = b.total
}

// validateTotal checks the funding account once for the whole batch
func (p *Processor) validateTotal(ctx context.Context, b *batch) error {
	result, err := p.validator.Validate(ctx, balance.Check{
		AccountID: b.funding.AccountID,
		Amount:    b.total,
		Currency:  b.req.Currency,
		Rate:      &b.rate,
	})
	if err != nil {
		return err
	}
	if result.Valid {
		return nil
	}

	p.logger.Warn("settlement batch rejected, insufficient funds",
		"batchId", b.id,
		"fundingAccountId", b.funding.AccountID,
		"total", b.total.StringFixed(money.Scale),
		"available", result.Available.StringFixed(money.Scale),
		"items", len(b.valid),
	)
	var appErr errors.AppError
	if stderrors.As(result.Err(), &appErr) {
		return appErr.
			WithDetail("batchId", b.id).
			WithDetail("validItems", len(b.valid)).
			WithDetail("rejectedItems", len(b.report.Errors))
	}
	return result.Err()
}

// applyEach writes every collected item independently. Once ctx is done (the
// request was cancelled or the account lock was lost) the remaining items fail
// without being written.
func (p *Processor) applyEach(ctx context.Context, b *batch) {
	for _, c := range b.valid {
		if err := context.Cause(ctx); err != nil {
			b.reject(c.index, c.item.PayableID, StageApply, errors.NewInternalError("settlement stopped before this item was applied", err))
			continue
		}
		processed, err := p.apply(ctx, b, c)
		if err != nil {
			p.logger.Error("settlement item failed",
				"batchId", b.id,
				"payableId", c.item.PayableID,
				"error", err,
			)
			b.reject(c.index, c.item.PayableID, StageApply, err)
			continue
		}
		b.report.Processed = append(b.report.Processed, *processed)
		b.report.AppliedTotal = money.Round(b.report.AppliedTotal.Add(processed.FundingAmount))
	}
}

func (p *Processor) apply(ctx context.Context, b *batch, c collected) (*ProcessedItem, error) {
	rate := b.rate
	cashOutEquivalent, err := p.converter.ToReportingCurrency(c.fundingAmount, b.req.Currency, &rate)
	if err != nil {
		return nil, err
	}
	costEquivalent, err := p.converter.ToReportingCurrency(c.item.Amount, c.payable.Currency, &rate)
	if err != nil {
		return nil, err
	}

	concept := strings.TrimSpace(b.req.Notes)
	if concept == "" {
		concept = fmt.Sprintf("Operator payment for payable %s", c.payable.PayableID)
	}
	cashOutDraft := &ledger.Draft{
		AccountID:        b.funding.AccountID,
		OperationID:      c.payable.OperationID,
		Type:             ledger.OperatorPayment,
		Currency:         b.req.Currency,
		OriginalAmount:   c.fundingAmount,
		ExchangeRate:     &rate,
		EquivalentAmount: &cashOutEquivalent,
		Concept:          concept,
		OperatorID:       c.payable.OperatorID,
		ReceiptNumber:    b.req.ReceiptRef,
		BatchID:          b.id,
		MovementDate:     b.day,
		CreatedBy:        b.req.CreatedBy,
	}
	costDraft := &ledger.Draft{
		AccountID:        b.cost.AccountID,
		OperationID:      c.payable.OperationID,
		Type:             ledger.Expense,
		Currency:         c.payable.Currency,
		OriginalAmount:   c.item.Amount,
		ExchangeRate:     &rate,
		EquivalentAmount: &costEquivalent,
		Concept:          concept,
		OperatorID:       c.payable.OperatorID,
		ReceiptNumber:    b.req.ReceiptRef,
		BatchID:          b.id,
		MovementDate:     b.day,
		CreatedBy:        b.req.CreatedBy,
	}
	if b.req.IdempotencyKey != "" {
		cashOutDraft.IdempotencyKey = b.req.IdempotencyKey + "#" + c.payable.PayableID
		costDraft.IdempotencyKey = b.req.IdempotencyKey + "#" + c.payable.PayableID + "#cost"
	}

	cashOut, err := p.store.Prepare(ctx, cashOutDraft)
	if err != nil {
		return nil, err
	}
	cost, err := p.store.Prepare(ctx, costDraft)
	if err != nil {
		return nil, err
	}

	updated := *c.payable
	updated.PaidAmount = money.Round(updated.PaidAmount.Add(c.item.Amount))
	if updated.PaidAmount.GreaterThanOrEqual(updated.TotalAmount) {
		updated.Status = PayablePaid
	} else {
		updated.Status = PayableOpen
	}
	updated.Version = c.payable.Version + 1
	updated.UpdatedAt = p.now().UTC()

	if err := p.repo.ApplySettlement(ctx, &Application{
		CashOut:         cashOut,
		Cost:            cost,
		Payable:         &updated,
		ExpectedVersion: c.payable.Version,
	}); err != nil {
		return nil, err
	}

	p.store.Committed(ctx, cashOut, cost)

	return &ProcessedItem{
		PayableID:         updated.PayableID,
		Amount:            c.item.Amount,
		PayableCurrency:   updated.Currency,
		FundingAmount:     c.fundingAmount,
		CashOutMovementID: cashOut.MovementID,
		CostMovementID:    cost.MovementID,
		PayableStatus:     updated.Status,
		PaidAmount:        updated.PaidAmount,
	}, nil
}

// finish computes the batch status
func (p *Processor) finish(b *batch) *Report {
	report := b.report
	switch {
	case len(report.Processed) == 0:
		report.Status = StatusFailed
	case len(report.Errors) > 0:
		report.Status = StatusPartial
		report.Warning = fmt.Sprintf("%d of %d settlement items were applied; check errors before retrying",
			len(report.Processed), len(report.Processed)+len(report.Errors))
	default:
		report.Status = StatusSuccess
	}

	p.logger.Info("settlement batch finished",
		"batchId", report.BatchID,
		"status", report.Status,
		"processed", len(report.Processed),
		"errors", len(report.Errors),
		"appliedTotal", report.AppliedTotal.StringFixed(money.Scale),
	)
	if p.observer != nil {
		p.observer.BatchProcessed(report.Status, len(report.Processed), len(report.Errors))
	}
	return report
}

func (b *batch) reject(index int, payableID string, stage Stage, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.CodeInternal
	}
	message := err.Error()
	var appErr errors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}
	b.report.Errors = append(b.report.Errors, ItemError{
		Index:     index,
		PayableID: payableID,
		Stage:     stage,
		Code:      code,
		Message:   message,
	})
}
