package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/balance"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// Locker serializes work per key. Implementations range from an in-process
// mutex map to a Redis distributed lock.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// AccountLockKey is the lock key guarding debits of an account
func AccountLockKey(accountID string) string {
	return "lock:account:" + accountID
}

// Service posts movements that move real money. Every debit against a real
// account is validated and appended while the account lock is held, so two
// concurrent debits cannot both pass validation against the same balance.
type Service struct {
	accounts   *account.Service
	store      *ledger.Store
	calculator *balance.Calculator
	validator  *balance.Validator
	converter  *currency.Service
	locker     Locker
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new treasury service
func NewService(
	accounts *account.Service,
	store *ledger.Store,
	calculator *balance.Calculator,
	validator *balance.Validator,
	converter *currency.Service,
	locker Locker,
	logger *slog.Logger,
) *Service {
	return &Service{
		accounts:   accounts,
		store:      store,
		calculator: calculator,
		validator:  validator,
		converter:  converter,
		locker:     locker,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateLedgerMovement records a movement, enforcing the sufficient-balance
// check for expenses and operator payments against real accounts
func (s *Service) CreateLedgerMovement(ctx context.Context, draft *ledger.Draft) (*ledger.AppendResult, error) {
	draft, err := s.completeDraft(ctx, draft)
	if err != nil {
		return nil, err
	}
	acc, err := s.accounts.GetAccount(ctx, draft.AccountID)
	if err != nil {
		return nil, err
	}
	if !acc.Active {
		return nil, errors.NewValidationError(fmt.Sprintf("account %s (%s) is inactive and cannot receive movements", acc.AccountID, acc.Name))
	}

	if !draft.Type.RequiresFundsCheck() {
		return s.store.Append(ctx, draft)
	}

	accountingOnly, err := s.accounts.Classify(ctx, acc)
	if err != nil {
		return nil, err
	}
	if accountingOnly {
		return s.store.Append(ctx, draft)
	}

	var result *ledger.AppendResult
	err = s.locker.WithLock(ctx, AccountLockKey(acc.AccountID), func(ctx context.Context) error {
		// A retried request must replay, not fail validation against the already debited balance
		replayed, found, err := s.store.Lookup(ctx, draft)
		if err != nil {
			return err
		}
		if found {
			result = replayed
			return nil
		}

		check, err := s.validator.Validate(ctx, balance.Check{
			AccountID: acc.AccountID,
			Amount:    draft.OriginalAmount,
			Currency:  draft.Currency,
			Rate:      draft.ExchangeRate,
		})
		if err != nil {
			return err
		}
		if !check.Valid {
			s.logger.Warn("debit rejected",
				"accountId", acc.AccountID,
				"type", draft.Type,
				"required", check.Required.StringFixed(money.Scale),
				"available", check.Available.StringFixed(money.Scale),
			)
			return check.Err()
		}

		result, err = s.store.Append(ctx, draft)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// completeDraft returns a copy of the draft with the exchange rate and the
// equivalent amount filled in when the caller left them out. A draft without a
// rate gets the rate of its movement date whatever its currency, and the same
// rate is used for the solvency check and frozen onto the movement.
func (s *Service) completeDraft(ctx context.Context, draft *ledger.Draft) (*ledger.Draft, error) {
	if draft == nil {
		return nil, errors.NewValidationError("movement draft is required")
	}
	completed := *draft
	if !s.converter.Pair().Supports(completed.Currency) {
		return &completed, nil
	}

	if completed.ExchangeRate == nil || !completed.ExchangeRate.IsPositive() {
		if completed.EquivalentAmount != nil && !s.converter.Pair().IsReporting(completed.Currency) {
			// The ledger rejects a secondary-currency equivalent without its rate
			return &completed, nil
		}
		if completed.MovementDate == "" {
			completed.MovementDate = s.now().UTC().Format(currency.DateLayout)
		}
		day, err := time.Parse(currency.DateLayout, completed.MovementDate)
		if err != nil {
			return nil, errors.NewValidationError("movement date must be in YYYY-MM-DD format")
		}
		rate := s.converter.ResolveRate(ctx, day)
		completed.ExchangeRate = &rate
	}
	if completed.EquivalentAmount != nil {
		return &completed, nil
	}

	equivalent, err := s.converter.ToReportingCurrency(money.Round(completed.OriginalAmount), completed.Currency, completed.ExchangeRate)
	if err != nil {
		return nil, err
	}
	completed.EquivalentAmount = &equivalent
	return &completed, nil
}

// TransferRequest moves money between two accounts of the same currency
type TransferRequest struct {
	FromAccountID  string           `json:"fromAccountId"`
	ToAccountID    string           `json:"toAccountId"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       money.Currency   `json:"currency"`
	Date           string           `json:"date,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	Rate           *decimal.Decimal `json:"rate,omitempty"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty"`
	CreatedBy      string           `json:"createdBy,omitempty"`
}

// TransferResult holds the paired movements of a transfer
type TransferResult struct {
	Outgoing *ledger.Movement `json:"outgoing"`
	Incoming *ledger.Movement `json:"incoming"`
	Replayed bool             `json:"replayed"`
}

// TransferBetweenAccounts posts an EXPENSE on the source and an INCOME on the
// destination, written atomically
func (s *Service) TransferBetweenAccounts(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	if req.FromAccountID == "" || req.ToAccountID == "" {
		return nil, errors.NewValidationError("both source and destination accounts are required")
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, errors.NewValidationError("source and destination accounts must differ")
	}
	amount := money.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, errors.NewValidationError(fmt.Sprintf("transfer amount must be positive, got %s", money.Format(req.Amount, req.Currency)))
	}

	from, err := s.accounts.RequireFundingAccount(ctx, req.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.accounts.RequireFundingAccount(ctx, req.ToAccountID)
	if err != nil {
		return nil, err
	}
	if from.Currency != to.Currency {
		return nil, errors.NewCurrencyMismatchError(fmt.Sprintf(
			"cannot transfer between %s (%s) and %s (%s): accounts must share the same currency",
			from.Name, from.Currency, to.Name, to.Currency))
	}
	if req.Currency != from.Currency {
		return nil, errors.NewCurrencyMismatchError(fmt.Sprintf(
			"transfer currency %s does not match the accounts' currency %s", req.Currency, from.Currency))
	}

	date := req.Date
	if date == "" {
		date = s.now().UTC().Format(currency.DateLayout)
	}
	day, err := time.Parse(currency.DateLayout, date)
	if err != nil {
		return nil, errors.NewValidationError("transfer date must be in YYYY-MM-DD format")
	}

	rate := req.Rate
	if rate == nil || !rate.IsPositive() {
		resolved := s.converter.ResolveRate(ctx, day)
		rate = &resolved
	}
	equivalent, err := s.converter.ToReportingCurrency(amount, req.Currency, rate)
	if err != nil {
		return nil, err
	}

	concept := strings.TrimSpace(req.Notes)
	if concept == "" {
		concept = fmt.Sprintf("Transfer %s -> %s", from.Name, to.Name)
	}
	outgoing := &ledger.Draft{
		AccountID:        from.AccountID,
		Type:             ledger.Expense,
		Currency:         req.Currency,
		OriginalAmount:   amount,
		ExchangeRate:     rate,
		EquivalentAmount: &equivalent,
		Concept:          concept,
		MovementDate:     date,
		CreatedBy:        req.CreatedBy,
	}
	incoming := &ledger.Draft{
		AccountID:        to.AccountID,
		Type:             ledger.Income,
		Currency:         req.Currency,
		OriginalAmount:   amount,
		ExchangeRate:     rate,
		EquivalentAmount: &equivalent,
		Concept:          concept,
		MovementDate:     date,
		CreatedBy:        req.CreatedBy,
	}
	if req.IdempotencyKey != "" {
		outgoing.IdempotencyKey = req.IdempotencyKey + "#out"
		incoming.IdempotencyKey = req.IdempotencyKey + "#in"
	}

	result := &TransferResult{}
	err = s.locker.WithLock(ctx, AccountLockKey(from.AccountID), func(ctx context.Context) error {
		replayedOut, found, err := s.store.Lookup(ctx, outgoing)
		if err != nil {
			return err
		}
		if found {
			replayedIn, _, err := s.store.Lookup(ctx, incoming)
			if err != nil {
				return err
			}
			result.Outgoing = replayedOut.Movement
			if replayedIn != nil {
				result.Incoming = replayedIn.Movement
			}
			result.Replayed = true
			return nil
		}

		check, err := s.validator.Validate(ctx, balance.Check{
			AccountID: from.AccountID,
			Amount:    amount,
			Currency:  req.Currency,
			Rate:      rate,
		})
		if err != nil {
			return err
		}
		if !check.Valid {
			return check.Err()
		}

		movements, err := s.store.AppendAll(ctx, outgoing, incoming)
		if err != nil {
			return err
		}
		result.Outgoing = movements[0]
		result.Incoming = movements[1]
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer recorded",
		"from", from.AccountID,
		"to", to.AccountID,
		"amount", money.Format(amount, req.Currency),
		"replayed", result.Replayed,
	)
	return result, nil
}

// RetractMovement removes a movement administratively while holding its account lock
func (s *Service) RetractMovement(ctx context.Context, movementID string) (*ledger.Movement, error) {
	movement, err := s.store.GetMovement(ctx, movementID)
	if err != nil {
		return nil, err
	}

	var retracted *ledger.Movement
	err = s.locker.WithLock(ctx, AccountLockKey(movement.AccountID), func(ctx context.Context) error {
		retracted, err = s.store.Retract(ctx, movementID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return retracted, nil
}

// InvalidateBalanceCache is the explicit cache-busting hook for collaborators
// that mutate account data outside the ledger store
func (s *Service) InvalidateBalanceCache(ctx context.Context, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return errors.NewValidationError("account ID is required")
	}
	return s.calculator.InvalidateBalance(ctx, accountID)
}
