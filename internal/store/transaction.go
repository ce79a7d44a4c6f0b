package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/gemloyalty/internal/model"
)

// TransactionStore is append-only: there is no update or delete.
type TransactionStore struct {
	db Querier
}

func NewTransactionStore(db Querier) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionCols = `id, account_id, type, delta, balance_after, reference_type, reference_id, description, created_at`

func scanTransaction(s scanner) (*model.Transaction, error) {
	var t model.Transaction
	var typ string

	err := s.Scan(&t.ID, &t.AccountID, &typ, &t.Delta, &t.BalanceAfter,
		&t.ReferenceType, &t.ReferenceID, &t.Description, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = model.TransactionType(typ)
	return &t, nil
}

// Append inserts t and fills in its ID.
func (s *TransactionStore) Append(ctx context.Context, t *model.Transaction) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (account_id, type, delta, balance_after, reference_type, reference_id, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AccountID, string(t.Type), t.Delta, t.BalanceAfter, t.ReferenceType, t.ReferenceID, t.Description, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	return nil
}

// ListByAccount returns every transaction for the account in creation order.
func (s *TransactionStore) ListByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	return s.query(ctx, `SELECT `+transactionCols+` FROM transactions WHERE account_id = ? ORDER BY id ASC`, accountID)
}

// Recent returns the newest transactions for the account, newest first.
func (s *TransactionStore) Recent(ctx context.Context, accountID string, limit int) ([]model.Transaction, error) {
	return s.query(ctx, `SELECT `+transactionCols+` FROM transactions WHERE account_id = ? ORDER BY id DESC LIMIT ?`, accountID, limit)
}

// HasReference reports whether the account already has a transaction of the
// given type pointing at referenceID.
func (s *TransactionStore) HasReference(ctx context.Context, accountID string, typ model.TransactionType, referenceID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = ? AND type = ? AND reference_id = ?`,
		accountID, string(typ), referenceID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check transaction reference: %w", err)
	}
	return n > 0, nil
}

// SumDeltas folds every delta for the account.
func (s *TransactionStore) SumDeltas(ctx context.Context, accountID string) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM transactions WHERE account_id = ?`, accountID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum transaction deltas: %w", err)
	}
	return sum, nil
}

func (s *TransactionStore) query(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}
