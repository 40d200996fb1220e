package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
)

// CacheInvalidator drops any memoized balance of an account
type CacheInvalidator interface {
	InvalidateBalance(ctx context.Context, accountID string) error
}

// CommissionReconciler marks the commissions of an operation as paid once a
// COMMISSION movement referencing it is recorded
type CommissionReconciler interface {
	MarkCommissionsPaid(ctx context.Context, operationID string) error
}

// Observer is notified of ledger writes (metrics)
type Observer interface {
	MovementAppended(movementType MovementType, currency money.Currency)
	MovementRetracted(movementType MovementType)
}

// Store is the append-only ledger movement store
type Store struct {
	repo        Repository
	converter   *currency.Service
	invalidator CacheInvalidator
	reconciler  CommissionReconciler
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
}

// StoreOption configures optional collaborators of the store
type StoreOption func(*Store)

// WithCommissionReconciler sets the advisory commission reconciler
func WithCommissionReconciler(reconciler CommissionReconciler) StoreOption {
	return func(s *Store) {
		s.reconciler = reconciler
	}
}

// WithObserver sets the write observer
func WithObserver(observer Observer) StoreOption {
	return func(s *Store) {
		s.observer = observer
	}
}

// NewStore creates a new ledger movement store
func NewStore(repo Repository, converter *currency.Service, invalidator CacheInvalidator, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		repo:        repo,
		converter:   converter,
		invalidator: invalidator,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare validates a draft and builds the movement without writing it. The
// exchange rate in force on the movement date is frozen onto every movement,
// reporting-currency ones included, so later rate changes never alter a
// recorded balance.
func (s *Store) Prepare(ctx context.Context, draft *Draft) (*Movement, error) {
	if draft == nil {
		return nil, errors.NewValidationError("movement draft is required")
	}
	if strings.TrimSpace(draft.AccountID) == "" {
		return nil, errors.NewValidationError("movement account ID is required")
	}
	if !draft.Type.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid movement type %q", draft.Type))
	}

	pair := s.converter.Pair()
	if !pair.Supports(draft.Currency) {
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported movement currency %q, expected %s or %s",
			draft.Currency, pair.Reporting, pair.Secondary))
	}

	original := money.Round(draft.OriginalAmount)
	if !original.IsPositive() {
		return nil, errors.NewValidationError(fmt.Sprintf("movement original amount must be positive, got %s",
			money.Format(draft.OriginalAmount, draft.Currency)))
	}
	if draft.EquivalentAmount == nil {
		return nil, errors.NewValidationError(fmt.Sprintf("movement equivalent amount in %s is required", pair.Reporting))
	}
	equivalent := money.Round(*draft.EquivalentAmount)
	if !equivalent.IsPositive() {
		return nil, errors.NewValidationError(fmt.Sprintf("movement equivalent amount must be positive, got %s",
			money.Format(*draft.EquivalentAmount, pair.Reporting)))
	}

	now := s.now().UTC()
	movementDate := draft.MovementDate
	day := now
	if movementDate == "" {
		movementDate = now.Format(currency.DateLayout)
	} else {
		parsed, err := time.Parse(currency.DateLayout, movementDate)
		if err != nil {
			return nil, errors.NewValidationError("movement date must be in YYYY-MM-DD format")
		}
		day = parsed
	}

	var rate decimal.Decimal
	switch {
	case draft.ExchangeRate != nil && draft.ExchangeRate.IsPositive():
		rate = *draft.ExchangeRate
	case pair.IsReporting(draft.Currency):
		rate = s.converter.ResolveRate(ctx, day)
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("movements in %s require a positive exchange rate", draft.Currency))
	}

	// Equivalent must agree with original x rate
	expected, err := s.converter.ToReportingCurrency(original, draft.Currency, &rate)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	if !money.WithinTolerance(expected, equivalent) {
		return nil, errors.NewValidationError(fmt.Sprintf(
			"movement equivalent amount %s does not match %s converted at the given rate (%s)",
			money.Format(equivalent, pair.Reporting), money.Format(original, draft.Currency), money.Format(expected, pair.Reporting)))
	}

	return &Movement{
		MovementID:       ulid.Make().String(),
		AccountID:        draft.AccountID,
		OperationID:      draft.OperationID,
		LeadID:           draft.LeadID,
		Type:             draft.Type,
		Currency:         draft.Currency,
		OriginalAmount:   original,
		ExchangeRate:     &rate,
		EquivalentAmount: equivalent,
		Concept:          strings.TrimSpace(draft.Concept),
		SellerID:         draft.SellerID,
		OperatorID:       draft.OperatorID,
		ReceiptNumber:    draft.ReceiptNumber,
		BatchID:          draft.BatchID,
		MovementDate:     movementDate,
		IdempotencyKey:   strings.TrimSpace(draft.IdempotencyKey),
		CreatedAt:        now,
		CreatedBy:        draft.CreatedBy,
	}, nil
}

// Append validates the draft and records one movement
func (s *Store) Append(ctx context.Context, draft *Draft) (*AppendResult, error) {
	movement, err := s.Prepare(ctx, draft)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AppendMovement(ctx, movement); err != nil {
		if movement.IdempotencyKey != "" && stderrors.Is(err, errors.ErrConflict) {
			return s.replay(ctx, movement)
		}
		return nil, err
	}

	s.logger.Info("ledger movement appended",
		"movementId", movement.MovementID,
		"accountId", movement.AccountID,
		"type", movement.Type,
		"currency", movement.Currency,
		"equivalentAmount", movement.EquivalentAmount.StringFixed(money.Scale),
	)
	s.afterWrite(ctx, movement)
	return &AppendResult{Movement: movement}, nil
}

// AppendAll validates every draft and writes all movements atomically
func (s *Store) AppendAll(ctx context.Context, drafts ...*Draft) ([]*Movement, error) {
	if len(drafts) == 0 {
		return nil, errors.NewValidationError("at least one movement draft is required")
	}

	movements := make([]*Movement, 0, len(drafts))
	for _, draft := range drafts {
		movement, err := s.Prepare(ctx, draft)
		if err != nil {
			return nil, err
		}
		movements = append(movements, movement)
	}

	if err := s.repo.AppendMovements(ctx, movements); err != nil {
		return nil, err
	}

	for _, movement := range movements {
		s.logger.Info("ledger movement appended",
			"movementId", movement.MovementID,
			"accountId", movement.AccountID,
			"type", movement.Type,
			"batchSize", len(movements),
		)
		s.afterWrite(ctx, movement)
	}
	return movements, nil
}

// Committed runs the post-write side effects for movements that were persisted
// by another unit of work (e.g. a settlement transaction)
func (s *Store) Committed(ctx context.Context, movements ...*Movement) {
	for _, movement := range movements {
		s.afterWrite(ctx, movement)
	}
}

// Retract removes a movement as an administrative correction
func (s *Store) Retract(ctx context.Context, movementID string) (*Movement, error) {
	if strings.TrimSpace(movementID) == "" {
		return nil, errors.NewValidationError("movement ID is required")
	}

	movement, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteMovement(ctx, movementID); err != nil {
		return nil, err
	}

	s.logger.Warn("ledger movement retracted",
		"movementId", movement.MovementID,
		"accountId", movement.AccountID,
		"type", movement.Type,
		"equivalentAmount", movement.EquivalentAmount.StringFixed(money.Scale),
	)
	s.invalidate(ctx, movement.AccountID)
	if s.observer != nil {
		s.observer.MovementRetracted(movement.Type)
	}
	return movement, nil
}

// GetMovement retrieves a movement by ID
func (s *Store) GetMovement(ctx context.Context, movementID string) (*Movement, error) {
	return s.repo.GetMovement(ctx, movementID)
}

// ListMovements returns every movement of an account, oldest first
func (s *Store) ListMovements(ctx context.Context, accountID string) ([]*Movement, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.NewValidationError("account ID is required")
	}
	return s.repo.ListMovementsByAccount(ctx, accountID)
}

// Lookup returns the earlier result of a draft whose idempotency key was already
// recorded. found is false when the draft has no key or the key is new.
func (s *Store) Lookup(ctx context.Context, draft *Draft) (result *AppendResult, found bool, err error) {
	if draft == nil || strings.TrimSpace(draft.IdempotencyKey) == "" {
		return nil, false, nil
	}
	attempted, err := s.Prepare(ctx, draft)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.repo.FindByIdempotencyKey(ctx, attempted.IdempotencyKey); err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	result, err = s.replay(ctx, attempted)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

func (s *Store) replay(ctx context.Context, attempted *Movement) (*AppendResult, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, attempted.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !existing.SamePayload(attempted) {
		return nil, errors.NewConflictError(fmt.Sprintf(
			"idempotency key %q was already used for movement %s with a different payload",
			attempted.IdempotencyKey, existing.MovementID)).
			WithDetail("movementId", existing.MovementID)
	}

	s.logger.Info("ledger movement replayed from idempotency key",
		"movementId", existing.MovementID,
		"idempotencyKey", attempted.IdempotencyKey,
	)
	return &AppendResult{Movement: existing, Replayed: true}, nil
}

func (s *Store) afterWrite(ctx context.Context, movement *Movement) {
	s.invalidate(ctx, movement.AccountID)

	if s.observer != nil {
		s.observer.MovementAppended(movement.Type, movement.Currency)
	}

	if movement.Type == Commission && movement.OperationID != "" && s.reconciler != nil {
		if err := s.reconciler.MarkCommissionsPaid(ctx, movement.OperationID); err != nil {
			s.logger.Warn("commission reconciliation failed",
				"operationId", movement.OperationID,
				"movementId", movement.MovementID,
				"error", err,
			)
		}
	}
}

func (s *Store) invalidate(ctx context.Context, accountID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateBalance(ctx, accountID); err != nil {
		s.logger.Warn("balance cache invalidation failed", "accountId", accountID, "error", err)
	}
}
