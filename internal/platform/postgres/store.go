package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/commission"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	commonErrors "github.com/tometh04/maxevagestion-sub002/internal/domain/errors"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key
const uniqueViolation = "23505"

// Store implements every ledger repository on PostgreSQL
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ account.Repository    = (*Store)(nil)
	_ currency.Repository   = (*Store)(nil)
	_ ledger.Repository     = (*Store)(nil)
	_ settlement.Repository = (*Store)(nil)
	_ commission.Repository = (*Store)(nil)
)

// Open connects to the database, verifies the connection and creates the
// tables when missing
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := NewStore(db, logger)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}
	return store, nil
}

// NewStore wraps an open database handle
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Migrate creates the ledger tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	for _, query := range schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateAccount implements account.Repository
func (s *Store) CreateAccount(ctx context.Context, acc *account.FinancialAccount) (*account.FinancialAccount, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO financial_accounts
			(account_id, name, kind, currency, opening_balance, active, category_id, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		acc.AccountID, acc.Name, string(acc.Kind), string(acc.Currency), acc.OpeningBalance,
		acc.Active, acc.CategoryID, acc.CreatedAt, acc.UpdatedAt, acc.CreatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, commonErrors.NewConflictError(fmt.Sprintf("account %s already exists", acc.AccountID))
		}
		return nil, commonErrors.NewInternalError("failed to create account", err)
	}
	return acc, nil
}

const accountColumns = `account_id, name, kind, currency, opening_balance, active, category_id, created_at, updated_at, created_by`

// GetAccount implements account.Repository
func (s *Store) GetAccount(ctx context.Context, accountID string) (*account.FinancialAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM financial_accounts WHERE account_id = $1`, accountID)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("account %s not found", accountID))
	}
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to read account", err)
	}
	return acc, nil
}

// ListAccounts implements account.Repository
func (s *Store) ListAccounts(ctx context.Context, filter *account.ListAccountsFilter) ([]*account.FinancialAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM financial_accounts ORDER BY account_id`)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to list accounts", err)
	}
	defer rows.Close()

	var accounts []*account.FinancialAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, commonErrors.NewInternalError("failed to read account", err)
		}
		if filter.Matches(acc) {
			accounts = append(accounts, acc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, commonErrors.NewInternalError("failed to list accounts", err)
	}
	return accounts, nil
}

// UpdateAccount implements account.Repository. Currency and opening balance
// are not part of the update.
func (s *Store) UpdateAccount(ctx context.Context, acc *account.FinancialAccount) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE financial_accounts
		SET name = $2, kind = $3, active = $4, category_id = $5, updated_at = $6
		WHERE account_id = $1`,
		acc.AccountID, acc.Name, string(acc.Kind), acc.Active, acc.CategoryID, acc.UpdatedAt)
	if err != nil {
		return commonErrors.NewInternalError("failed to update account", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return commonErrors.NewNotFoundError(fmt.Sprintf("account %s not found", acc.AccountID))
	}
	return nil
}

// CreateCategory implements account.Repository
func (s *Store) CreateCategory(ctx context.Context, category *account.Category) (*account.Category, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_categories (category_id, code, name, section, control, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		category.CategoryID, category.Code, category.Name, string(category.Type), string(category.Control), category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, commonErrors.NewConflictError(fmt.Sprintf("category %s already exists", category.CategoryID))
		}
		return nil, commonErrors.NewInternalError("failed to create category", err)
	}
	return category, nil
}

// GetCategory implements account.Repository
func (s *Store) GetCategory(ctx context.Context, categoryID string) (*account.Category, error) {
	var c account.Category
	var section, control string
	err := s.db.QueryRowContext(ctx, `
		SELECT category_id, code, name, section, control, created_at
		FROM account_categories WHERE category_id = $1`, categoryID).
		Scan(&c.CategoryID, &c.Code, &c.Name, &section, &control, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("category %s not found", categoryID))
	}
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to read category", err)
	}
	c.Type = account.CategoryType(section)
	c.Control = account.ControlType(control)
	return &c, nil
}

// PutRate implements currency.Repository
func (s *Store) PutRate(ctx context.Context, rate *currency.ExchangeRate) error {
	createdAt := rate.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_rates (rate_date, rate, source, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (rate_date) DO UPDATE SET rate = EXCLUDED.rate, source = EXCLUDED.source, created_at = EXCLUDED.created_at`,
		rate.Date, rate.Rate, rate.Source, createdAt)
	if err != nil {
		return commonErrors.NewInternalError("failed to store exchange rate", err)
	}
	return nil
}

// GetRate implements currency.Repository
func (s *Store) GetRate(ctx context.Context, date string) (*currency.ExchangeRate, error) {
	rate, err := s.queryRate(ctx, `
		SELECT rate_date, rate, source, created_at FROM exchange_rates WHERE rate_date = $1`, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("no exchange rate for %s", date))
	}
	return rate, err
}

// GetLatestRateOnOrBefore implements currency.Repository. ISO dates order
// correctly as text.
func (s *Store) GetLatestRateOnOrBefore(ctx context.Context, date string) (*currency.ExchangeRate, error) {
	rate, err := s.queryRate(ctx, `
		SELECT rate_date, rate, source, created_at FROM exchange_rates
		WHERE rate_date <= $1 ORDER BY rate_date DESC LIMIT 1`, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commonErrors.NewNotFoundError(fmt.Sprintf("no exchange rate on or before %s", date))
	}
	return rate, err
}

func (s *Store) queryRate(ctx context.Context, query string, date string) (*currency.ExchangeRate, error) {
	var r currency.ExchangeRate
	err := s.db.QueryRowContext(ctx, query, date).Scan(&r.Date, &r.Rate, &r.Source, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to read exchange rate", err)
	}
	return &r, nil
}

// CreateCommission implements commission.Repository
func (s *Store) CreateCommission(ctx context.Context, c *commission.Commission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commissions (commission_id, operation_id, seller_id, currency, amount, status, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.CommissionID, c.OperationID, c.SellerID, string(c.Currency), c.Amount, string(c.Status), c.PaidAt, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return commonErrors.NewConflictError(fmt.Sprintf("commission %s already exists", c.CommissionID))
		}
		return commonErrors.NewInternalError("failed to create commission", err)
	}
	return nil
}

// ListByOperation implements commission.Repository
func (s *Store) ListByOperation(ctx context.Context, operationID string) ([]*commission.Commission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT commission_id, operation_id, seller_id, currency, amount, status, paid_at, created_at
		FROM commissions WHERE operation_id = $1 ORDER BY commission_id`, operationID)
	if err != nil {
		return nil, commonErrors.NewInternalError("failed to list commissions", err)
	}
	defer rows.Close()

	var result []*commission.Commission
	for rows.Next() {
		var c commission.Commission
		var cur, status string
		var paidAt sql.NullTime
		if err := rows.Scan(&c.CommissionID, &c.OperationID, &c.SellerID, &cur, &c.Amount, &status, &paidAt, &c.CreatedAt); err != nil {
			return nil, commonErrors.NewInternalError("failed to read commission", err)
		}
		c.Currency = money.Currency(cur)
		c.Status = commission.Status(status)
		if paidAt.Valid {
			t := paidAt.Time
			c.PaidAt = &t
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, commonErrors.NewInternalError("failed to list commissions", err)
	}
	return result, nil
}

// UpdateCommission implements commission.Repository
func (s *Store) UpdateCommission(ctx context.Context, c *commission.Commission) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE commissions SET status = $2, paid_at = $3 WHERE commission_id = $1`,
		c.CommissionID, string(c.Status), c.PaidAt)
	if err != nil {
		return commonErrors.NewInternalError("failed to update commission", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return commonErrors.NewNotFoundError(fmt.Sprintf("commission %s not found", c.CommissionID))
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scanner) (*account.FinancialAccount, error) {
	var acc account.FinancialAccount
	var kind, cur string
	var opening decimal.Decimal
	if err := row.Scan(&acc.AccountID, &acc.Name, &kind, &cur, &opening, &acc.Active,
		&acc.CategoryID, &acc.CreatedAt, &acc.UpdatedAt, &acc.CreatedBy); err != nil {
		return nil, err
	}
	acc.Kind = account.Kind(kind)
	acc.Currency = money.Currency(cur)
	acc.OpeningBalance = opening
	return &acc, nil
}

// isUniqueViolation reports whether err is a duplicate key error
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
