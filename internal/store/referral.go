package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/gemloyalty/internal/model"
)

type ReferralStore struct {
	db Querier
}

func NewReferralStore(db Querier) *ReferralStore {
	return &ReferralStore{db: db}
}

const referralCols = `id, referrer_id, referred_id, code, completed, points_awarded, referred_at, completed_at`

func scanReferral(s scanner) (*model.ReferralLink, error) {
	var l model.ReferralLink
	var completed, awarded int
	var completedAt sql.NullTime

	err := s.Scan(&l.ID, &l.ReferrerID, &l.ReferredID, &l.Code, &completed, &awarded, &l.ReferredAt, &completedAt)
	if err != nil {
		return nil, err
	}

	l.Completed = completed != 0
	l.PointsAwarded = awarded != 0
	if completedAt.Valid {
		l.CompletedAt = &completedAt.Time
	}
	return &l, nil
}

// Create inserts a link in the invited state. A duplicate pair or code
// returns an error wrapping ErrConflict.
func (s *ReferralStore) Create(ctx context.Context, referrerID, referredID, code string, now time.Time) (*model.ReferralLink, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO referral_links (referrer_id, referred_id, code, referred_at) VALUES (?, ?, ?, ?)`,
		referrerID, referredID, code, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert referral: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert referral: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ReferralStore) GetByID(ctx context.Context, id int64) (*model.ReferralLink, error) {
	return s.get(ctx, `SELECT `+referralCols+` FROM referral_links WHERE id = ?`, id)
}

func (s *ReferralStore) GetByPair(ctx context.Context, referrerID, referredID string) (*model.ReferralLink, error) {
	return s.get(ctx, `SELECT `+referralCols+` FROM referral_links WHERE referrer_id = ? AND referred_id = ?`, referrerID, referredID)
}

func (s *ReferralStore) GetByCode(ctx context.Context, code string) (*model.ReferralLink, error) {
	return s.get(ctx, `SELECT `+referralCols+` FROM referral_links WHERE code = ?`, code)
}

func (s *ReferralStore) get(ctx context.Context, query string, args ...any) (*model.ReferralLink, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	l, err := scanReferral(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return l, nil
}

// MarkCompleted flips an invited link to completed with points awarded. It
// returns false if the link was already completed, so of any number of
// concurrent callers exactly one sees true.
func (s *ReferralStore) MarkCompleted(ctx context.Context, id int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE referral_links SET completed = 1, points_awarded = 1, completed_at = ?
		 WHERE id = ? AND completed = 0`,
		now, id,
	)
	if err != nil {
		return false, fmt.Errorf("complete referral: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListPending returns the referrer's links that are still only invited.
func (s *ReferralStore) ListPending(ctx context.Context, referrerID string) ([]model.ReferralLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+referralCols+` FROM referral_links WHERE referrer_id = ? AND completed = 0 ORDER BY id ASC`,
		referrerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending referrals: %w", err)
	}
	defer rows.Close()

	var links []model.ReferralLink
	for rows.Next() {
		l, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

// CountCompleted returns how many links have been completed.
func (s *ReferralStore) CountCompleted(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM referral_links WHERE completed = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count completed referrals: %w", err)
	}
	return n, nil
}
