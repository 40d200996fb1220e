package postgres

// schema creates the ledger tables. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS account_categories (
		category_id TEXT PRIMARY KEY,
		code        TEXT NOT NULL,
		name        TEXT NOT NULL,
		section     TEXT NOT NULL,
		control     TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS financial_accounts (
		account_id      TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		kind            TEXT NOT NULL,
		currency        TEXT NOT NULL,
		opening_balance NUMERIC(18,2) NOT NULL,
		active          BOOLEAN NOT NULL,
		category_id     TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at      TIMESTAMP WITH TIME ZONE NOT NULL,
		created_by      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_movements (
		seq               BIGSERIAL UNIQUE,
		movement_id       TEXT PRIMARY KEY,
		account_id        TEXT NOT NULL,
		operation_id      TEXT NOT NULL DEFAULT '',
		lead_id           TEXT NOT NULL DEFAULT '',
		type              TEXT NOT NULL,
		currency          TEXT NOT NULL,
		original_amount   NUMERIC(18,2) NOT NULL,
		exchange_rate     NUMERIC(18,6),
		equivalent_amount NUMERIC(18,2) NOT NULL,
		concept           TEXT NOT NULL DEFAULT '',
		seller_id         TEXT NOT NULL DEFAULT '',
		operator_id       TEXT NOT NULL DEFAULT '',
		receipt_number    TEXT NOT NULL DEFAULT '',
		batch_id          TEXT NOT NULL DEFAULT '',
		movement_date     TEXT NOT NULL,
		idempotency_key   TEXT UNIQUE,
		created_at        TIMESTAMP WITH TIME ZONE NOT NULL,
		created_by        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_movements_account ON ledger_movements(account_id, seq)`,
	`CREATE TABLE IF NOT EXISTS exchange_rates (
		rate_date  TEXT PRIMARY KEY,
		rate       NUMERIC(18,6) NOT NULL,
		source     TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payables (
		payable_id   TEXT PRIMARY KEY,
		operation_id TEXT NOT NULL DEFAULT '',
		operator_id  TEXT NOT NULL DEFAULT '',
		currency     TEXT NOT NULL,
		total_amount NUMERIC(18,2) NOT NULL,
		paid_amount  NUMERIC(18,2) NOT NULL,
		status       TEXT NOT NULL,
		version      BIGINT NOT NULL,
		created_at   TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at   TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS commissions (
		commission_id TEXT PRIMARY KEY,
		operation_id  TEXT NOT NULL,
		seller_id     TEXT NOT NULL,
		currency      TEXT NOT NULL,
		amount        NUMERIC(18,2) NOT NULL,
		status        TEXT NOT NULL,
		paid_at       TIMESTAMP WITH TIME ZONE,
		created_at    TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_commissions_operation ON commissions(operation_id)`,
}
