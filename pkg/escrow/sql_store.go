package escrow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore implements Store using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS escrow_balances (
	task_id BIGINT NOT NULL,
	asset TEXT NOT NULL,
	amount BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMP,
	PRIMARY KEY (task_id, asset)
);

CREATE TABLE IF NOT EXISTS account_balances (
	principal TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMP,
	PRIMARY KEY (principal, asset)
);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) EscrowBalance(ctx context.Context, taskID int64, asset Asset) (int64, error) {
	query := `SELECT amount FROM escrow_balances WHERE task_id = $1 AND asset = $2`
	var amount int64
	err := s.db.QueryRowContext(ctx, query, taskID, string(asset)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (s *SQLStore) AccountBalance(ctx context.Context, p string, asset Asset) (int64, error) {
	query := `SELECT amount FROM account_balances WHERE principal = $1 AND asset = $2`
	var amount int64
	err := s.db.QueryRowContext(ctx, query, p, string(asset)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (s *SQLStore) Credit(ctx context.Context, taskID int64, asset Asset, amount int64) error {
	query := `
		INSERT INTO escrow_balances (task_id, asset, amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id, asset)
		DO UPDATE SET amount = escrow_balances.amount + $3, updated_at = $4
	`
	_, err := s.db.ExecContext(ctx, query, taskID, string(asset), amount, time.Now())
	return err
}

// Payout runs inside a single transaction. The Ledger serializes callers
// per balance entry, so a plain SELECT inside the transaction is enough;
// row locking is not required for correctness here.
func (s *SQLStore) Payout(ctx context.Context, taskID int64, asset Asset, payments []Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	var total int64
	for _, p := range payments {
		total += p.Amount
	}

	var balance int64
	querySelect := `SELECT amount FROM escrow_balances WHERE task_id = $1 AND asset = $2`
	err = tx.QueryRowContext(ctx, querySelect, taskID, string(asset)).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		balance = 0
	} else if err != nil {
		return err
	}

	if balance < total {
		return fmt.Errorf("payout of %d from task %d: %w", total, taskID, ErrInsufficientFunds)
	}

	now := time.Now()
	queryDebit := `UPDATE escrow_balances SET amount = amount - $3, updated_at = $4 WHERE task_id = $1 AND asset = $2`
	if _, err := tx.ExecContext(ctx, queryDebit, taskID, string(asset), total, now); err != nil {
		return err
	}

	queryCredit := `
		INSERT INTO account_balances (principal, asset, amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal, asset)
		DO UPDATE SET amount = account_balances.amount + $3, updated_at = $4
	`
	for _, p := range payments {
		if _, err := tx.ExecContext(ctx, queryCredit, p.Recipient.String(), string(asset), p.Amount, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}
