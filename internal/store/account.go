package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/gemloyalty/internal/model"
)

type AccountStore struct {
	db Querier
}

func NewAccountStore(db Querier) *AccountStore {
	return &AccountStore{db: db}
}

const accountCols = `account_id, total_earned, total_spent, balance,
	from_surveys, from_referrals, from_profile_bonus,
	surveys_completed, referrals_completed, profile_bonus_claimed,
	profile_completed_at, created_at, updated_at`

func scanAccount(s scanner) (*model.Account, error) {
	var a model.Account
	var claimed int
	var profileAt sql.NullTime

	err := s.Scan(
		&a.AccountID, &a.TotalEarned, &a.TotalSpent, &a.Balance,
		&a.FromSurveys, &a.FromReferrals, &a.FromProfileBonus,
		&a.SurveysCompleted, &a.ReferralsCompleted, &claimed,
		&profileAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ProfileBonusClaimed = claimed != 0
	if profileAt.Valid {
		a.ProfileCompletedAt = &profileAt.Time
	}
	return &a, nil
}

// Get returns the account, or nil if it has never been enrolled.
func (s *AccountStore) Get(ctx context.Context, accountID string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE account_id = ?`, accountID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Ensure creates a zero-balance account if none exists. It reports whether a
// row was inserted.
func (s *AccountStore) Ensure(ctx context.Context, accountID string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (account_id, created_at, updated_at) VALUES (?, ?, ?)`,
		accountID, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("ensure account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CreditSurvey adds survey points and bumps the survey counter.
func (s *AccountStore) CreditSurvey(ctx context.Context, accountID string, points int, now time.Time) error {
	return s.credit(ctx, `UPDATE accounts SET
		total_earned = total_earned + ?1,
		balance = balance + ?1,
		from_surveys = from_surveys + ?1,
		surveys_completed = surveys_completed + 1,
		updated_at = ?2
		WHERE account_id = ?3`, accountID, points, now)
}

// CreditReferral adds referral points and bumps the referral counter.
func (s *AccountStore) CreditReferral(ctx context.Context, accountID string, points int, now time.Time) error {
	return s.credit(ctx, `UPDATE accounts SET
		total_earned = total_earned + ?1,
		balance = balance + ?1,
		from_referrals = from_referrals + ?1,
		referrals_completed = referrals_completed + 1,
		updated_at = ?2
		WHERE account_id = ?3`, accountID, points, now)
}

// ClaimProfileBonus credits the one-time profile bonus. It returns false
// without changing anything when the bonus was already claimed.
func (s *AccountStore) ClaimProfileBonus(ctx context.Context, accountID string, points int, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET
		total_earned = total_earned + ?1,
		balance = balance + ?1,
		from_profile_bonus = from_profile_bonus + ?1,
		profile_bonus_claimed = 1,
		profile_completed_at = ?2,
		updated_at = ?2
		WHERE account_id = ?3 AND profile_bonus_claimed = 0`,
		points, now, accountID,
	)
	if err != nil {
		return false, fmt.Errorf("claim profile bonus: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Debit spends points. The balance check and the deduction are one statement,
// so it returns false rather than ever taking the balance below zero.
func (s *AccountStore) Debit(ctx context.Context, accountID string, points int, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET
		total_spent = total_spent + ?1,
		balance = balance - ?1,
		updated_at = ?2
		WHERE account_id = ?3 AND balance >= ?1`,
		points, now, accountID,
	)
	if err != nil {
		return false, fmt.Errorf("debit account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *AccountStore) credit(ctx context.Context, query, accountID string, points int, now time.Time) error {
	result, err := s.db.ExecContext(ctx, query, points, now, accountID)
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("credit account %q: no such account", accountID)
	}
	return nil
}

// List returns every account ordered by ID.
func (s *AccountStore) List(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY account_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// MostActive returns up to limit accounts with the most completed surveys.
func (s *AccountStore) MostActive(ctx context.Context, limit int) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountCols+` FROM accounts
		 WHERE surveys_completed > 0
		 ORDER BY surveys_completed DESC, total_earned DESC, account_id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("most active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}
