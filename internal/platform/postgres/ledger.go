package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
)

const movementColumns = `movement_id, account_id, operation_id, lead_id, type, currency, original_amount,
	exchange_rate, equivalent_amount, concept, seller_id, operator_id, receipt_number, batch_id,
	movement_date, idempotency_key, created_at, created_by`

// AppendMovement implements ledger.Repository
func (s *Store) AppendMovement(ctx context.Context, movement *ledger.Movement) error {
	return s.AppendMovements(ctx, []*ledger.Movement{movement})
}

// AppendMovements implements ledger.Repository
func (s *Store) AppendMovements(ctx context.Context, movements []*ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range movements {
			if err := insertMovement(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetMovement implements ledger.Repository
func (s *Store) GetMovement(ctx context.Context, movementID string) (*ledger.Movement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM ledger_movements WHERE movement_id = $1`, movementID)
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("movement %s not found", movementID))
	}
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to read movement", err)
	}
	return m, nil
}

// FindByIdempotencyKey implements ledger.Repository
func (s *Store) FindByIdempotencyKey(ctx context.Context, key string) (*ledger.Movement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM ledger_movements WHERE idempotency_key = $1`, key)
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("no movement recorded for idempotency key %q", key))
	}
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to read movement", err)
	}
	return m, nil
}

// ListMovementsByAccount implements ledger.Repository
func (s *Store) ListMovementsByAccount(ctx context.Context, accountID string) ([]*ledger.Movement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+movementColumns+` FROM ledger_movements WHERE account_id = $1 ORDER BY seq`, accountID)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to list movements", err)
	}
	defer rows.Close()

	var movements []*ledger.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, commonErrors.NewInternalError("failed to read movement", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, commonErrors.NewInternalError("failed to list movements", err)
	}
	return movements, nil
}

// DeleteMovement implements ledger.Repository
func (s *Store) DeleteMovement(ctx context.Context, movementID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ledger_movements WHERE movement_id = $1`, movementID)
	if err != nil {
		return commonErrors.NewInternalError("failed to delete movement", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return commonErrors.NewNotFoundError(fmt.Sprintf("movement %s not found", movementID))
	}
	s.logger.Info("movement deleted", "movementId", movementID)
	return nil
}

// CreatePayable implements settlement.Repository
func (s *Store) CreatePayable(ctx context.Context, p *settlement.Payable) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payables
			(payable_id, operation_id, operator_id, currency, total_amount, paid_amount, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.PayableID, p.OperationID, p.OperatorID, string(p.Currency), p.TotalAmount, p.PaidAmount,
		string(p.Status), p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return commonErrors.NewConflictError(fmt.Sprintf("payable %s already exists", p.PayableID))
		}
		return commonErrors.NewInternalError("failed to create payable", err)
	}
	return nil
}

// GetPayable implements settlement.Repository
func (s *Store) GetPayable(ctx context.Context, payableID string) (*settlement.Payable, error) {
	var p settlement.Payable
	var cur, status string
	err := s.db.QueryRowContext(ctx, `
		SELECT payable_id, operation_id, operator_id, currency, total_amount, paid_amount, status, version, created_at, updated_at
		FROM payables WHERE payable_id = $1`, payableID).
		Scan(&p.PayableID, &p.OperationID, &p.OperatorID, &cur, &p.TotalAmount, &p.PaidAmount,
			&status, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("payable %s not found", payableID))
	}
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to read payable", err)
	}
	p.Currency = money.Currency(cur)
	p.Status = settlement.PayableStatus(status)
	return &p, nil
}

// ApplySettlement implements settlement.Repository in one SQL transaction.
// The payable update matches only while the stored version is unchanged.
func (s *Store) ApplySettlement(ctx context.Context, app *settlement.Application) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		p := app.Payable
		result, err := tx.ExecContext(ctx, `
			UPDATE payables SET paid_amount = $3, status = $4, version = $5, updated_at = $6
			WHERE payable_id = $1 AND version = $2`,
			p.PayableID, app.ExpectedVersion, p.PaidAmount, string(p.Status), p.Version, p.UpdatedAt)
		if err != nil {
			return commonErrors.NewInternalError("failed to update payable", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return commonErrors.NewConflictError(fmt.Sprintf("payable %s was modified concurrently", p.PayableID))
		}

		for _, m := range []*ledger.Movement{app.CashOut, app.Cost} {
			if err := insertMovement(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// inTx runs fn in a transaction, committing only when fn succeeds
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return commonErrors.NewInternalError("failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return commonErrors.NewInternalError("failed to commit transaction", err)
	}
	return nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, m *ledger.Movement) error {
	var rate decimal.NullDecimal
	if m.ExchangeRate != nil {
		rate = decimal.NewNullDecimal(*m.ExchangeRate)
	}
	key := sql.NullString{String: m.IdempotencyKey, Valid: m.IdempotencyKey != ""}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_movements (`+movementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		m.MovementID, m.AccountID, m.OperationID, m.LeadID, string(m.Type), string(m.Currency), m.OriginalAmount,
		rate, m.EquivalentAmount, m.Concept, m.SellerID, m.OperatorID, m.ReceiptNumber, m.BatchID,
		m.MovementDate, key, m.CreatedAt, m.CreatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return commonErrors.NewConflictError(fmt.Sprintf("movement %s already recorded or idempotency key %q already used", m.MovementID, m.IdempotencyKey))
		}
		return commonErrors.NewInternalError("failed to insert movement", err)
	}
	return nil
}

func scanMovement(row scanner) (*ledger.Movement, error) {
	var m ledger.Movement
	var typ, cur string
	var rate decimal.NullDecimal
	var key sql.NullString
	if err := row.Scan(&m.MovementID, &m.AccountID, &m.OperationID, &m.LeadID, &typ, &cur, &m.OriginalAmount,
		&rate, &m.EquivalentAmount, &m.Concept, &m.SellerID, &m.OperatorID, &m.ReceiptNumber, &m.BatchID,
		&m.MovementDate, &key, &m.CreatedAt, &m.CreatedBy); err != nil {
		return nil, err
	}
	m.Type = ledger.MovementType(typ)
	m.Currency = money.Currency(cur)
	if rate.Valid {
		r := rate.Decimal
		m.ExchangeRate = &r
	}
	m.IdempotencyKey = key.String
	return &m, nil
}
