package memory

import (
	"context"
	"fmt"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/commission"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
)

// AppendMovement implements ledger.Repository
func (s *Store) AppendMovement(ctx context.Context, movement *ledger.Movement) error {
	return s.AppendMovements(ctx, []*ledger.Movement{movement})
}

// AppendMovements implements ledger.Repository
func (s *Store) AppendMovements(ctx context.Context, movements []*ledger.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMovementsLocked(movements); err != nil {
		return err
	}
	for _, m := range movements {
		s.insertMovementLocked(m)
	}
	return nil
}

// GetMovement implements ledger.Repository
func (s *Store) GetMovement(ctx context.Context, movementID string) (*ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.movements[movementID]
	if !exists {
		return nil, errors.NewNotFoundError(fmt.Sprintf("movement %s not found", movementID))
	}
	mCopy := *m
	return &mCopy, nil
}

// FindByIdempotencyKey implements ledger.Repository
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movementID, exists := s.idempotency[key]
	if !exists {
		return nil, errors.NewNotFoundError(fmt.Sprintf("no movement recorded for idempotency key %q", key))
	}
	m, exists := s.movements[movementID]
	if !exists {
		return nil, errors.NewNotFoundError(fmt.Sprintf("movement %s not found", movementID))
	}
	mCopy := *m
	return &mCopy, nil
}

// ListMovementsByAccount implements ledger.Repository
func (s *Store) ListMovementsByAccount(ctx context.Context, accountID string) ([]*ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byAccount[accountID]
	result := make([]*ledger.Movement, 0, len(ids))
	for _, id := range ids {
		mCopy := *s.movements[id]
		result = append(result, &mCopy)
	}
	return result, nil
}

// DeleteMovement implements ledger.Repository
func (s *Store) DeleteMovement(ctx context.Context, movementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.movements[movementID]
	if !exists {
		return errors.NewNotFoundError(fmt.Sprintf("movement %s not found", movementID))
	}

	ids := s.byAccount[m.AccountID]
	for i, id := range ids {
		if id == movementID {
			s.byAccount[m.AccountID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if m.IdempotencyKey != "" {
		delete(s.idempotency, m.IdempotencyKey)
	}
	delete(s.movements, movementID)
	return nil
}

// CreatePayable implements settlement.Repository
func (s *Store) CreatePayable(ctx context.Context, payable *settlement.Payable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payables[payable.PayableID]; exists {
		return errors.NewConflictError(fmt.Sprintf("payable %s already exists", payable.PayableID))
	}
	payableCopy := *payable
	s.payables[payable.PayableID] = &payableCopy
	return nil
}

// GetPayable implements settlement.Repository
func (s *Store) GetPayable(ctx context.Context, payableID string) (*settlement.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payable, exists := s.payables[payableID]
	if !exists {
		return nil, errors.NewNotFoundError(fmt.Sprintf("payable %s not found", payableID))
	}
	payableCopy := *payable
	return &payableCopy, nil
}

// ApplySettlement implements settlement.Repository
func (s *Store) ApplySettlement(ctx context.Context, app *settlement.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.payables[app.Payable.PayableID]
	if !exists {
		return errors.NewNotFoundError(fmt.Sprintf("payable %s not found", app.Payable.PayableID))
	}
	if current.Version != app.ExpectedVersion {
		return errors.NewConflictError(fmt.Sprintf("payable %s was modified concurrently", app.Payable.PayableID))
	}

	movements := []*ledger.Movement{app.CashOut, app.Cost}
	if err := s.checkMovementsLocked(movements); err != nil {
		return err
	}
	for _, m := range movements {
		s.insertMovementLocked(m)
	}
	payableCopy := *app.Payable
	s.payables[payableCopy.PayableID] = &payableCopy
	return nil
}

// CreateCommission implements commission.Repository
func (s *Store) CreateCommission(ctx context.Context, c *commission.Commission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.commissions[c.CommissionID]; exists {
		return errors.NewConflictError(fmt.Sprintf("commission %s already exists", c.CommissionID))
	}
	cCopy := *c
	s.commissions[c.CommissionID] = &cCopy
	return nil
}

// ListByOperation implements commission.Repository
func (s *Store) ListByOperation(ctx context.Context, operationID string) ([]*commission.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*commission.Commission
	for _, c := range s.commissions {
		if c.OperationID != operationID {
			continue
		}
		cCopy := *c
		result = append(result, &cCopy)
	}
	return result, nil
}

// UpdateCommission implements commission.Repository
func (s *Store) UpdateCommission(ctx context.Context, c *commission.Commission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.commissions[c.CommissionID]; !exists {
		return errors.NewNotFoundError(fmt.Sprintf("commission %s not found", c.CommissionID))
	}
	cCopy := *c
	s.commissions[c.CommissionID] = &cCopy
	return nil
}

// checkMovementsLocked rejects duplicate ids and reused idempotency keys; callers hold mu
func (s *Store) checkMovementsLocked(movements []*ledger.Movement) error {
	keys := make(map[string]bool, len(movements))
	for _, m := range movements {
		if _, exists := s.movements[m.MovementID]; exists {
			return errors.NewConflictError(fmt.Sprintf("movement %s already exists", m.MovementID))
		}
		if m.IdempotencyKey == "" {
			continue
		}
		if _, exists := s.idempotency[m.IdempotencyKey]; exists || keys[m.IdempotencyKey] {
			return errors.NewConflictError(fmt.Sprintf("idempotency key %q already used", m.IdempotencyKey))
		}
		keys[m.IdempotencyKey] = true
	}
	return nil
}

func (s *Store) insertMovementLocked(m *ledger.Movement) {
	mCopy := *m
	s.movements[m.MovementID] = &mCopy
	s.byAccount[m.AccountID] = append(s.byAccount[m.AccountID], m.MovementID)
	if m.IdempotencyKey != "" {
		s.idempotency[m.IdempotencyKey] = m.MovementID
	}
}
