package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/gemloyalty/internal/model"
)

type RedemptionStore struct {
	db Querier
}

func NewRedemptionStore(db Querier) *RedemptionStore {
	return &RedemptionStore{db: db}
}

const redemptionCols = `id, account_id, reward_id, reward_name, category, points_spent, balance_after, status, redeemed_at`

func scanRedemption(s scanner) (*model.Redemption, error) {
	var r model.Redemption
	err := s.Scan(&r.ID, &r.AccountID, &r.RewardID, &r.RewardName, &r.Category,
		&r.PointsSpent, &r.BalanceAfter, &r.Status, &r.RedeemedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Insert records a redemption and fills in its ID.
func (s *RedemptionStore) Insert(ctx context.Context, r *model.Redemption) error {
	if r.Status == "" {
		r.Status = model.RedemptionCompleted
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO redemptions (account_id, reward_id, reward_name, category, points_spent, balance_after, status, redeemed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AccountID, r.RewardID, r.RewardName, r.Category, r.PointsSpent, r.BalanceAfter, r.Status, r.RedeemedAt,
	)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// ListByAccount returns up to limit redemptions, newest first.
func (s *RedemptionStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.Redemption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+redemptionCols+` FROM redemptions WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions by account: %w", err)
	}
	defer rows.Close()

	var redemptions []model.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

// Totals returns the number of redemptions and distinct redeeming accounts.
func (s *RedemptionStore) Totals(ctx context.Context) (count, accounts int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT account_id) FROM redemptions`,
	).Scan(&count, &accounts)
	if err != nil {
		return 0, 0, fmt.Errorf("redemption totals: %w", err)
	}
	return count, accounts, nil
}

// TopReward returns the most redeemed reward name since the given time, or
// "" if nothing was redeemed. Ties go to the alphabetically first name.
func (s *RedemptionStore) TopReward(ctx context.Context, since time.Time) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reward_name FROM redemptions
		 WHERE redeemed_at >= ?
		 GROUP BY reward_name
		 ORDER BY COUNT(*) DESC, reward_name ASC
		 LIMIT 1`,
		since,
	)
	if err != nil {
		return "", fmt.Errorf("top reward: %w", err)
	}
	defer rows.Close()

	var name string
	if rows.Next() {
		if err := rows.Scan(&name); err != nil {
			return "", fmt.Errorf("scan top reward: %w", err)
		}
	}
	return name, rows.Err()
}

// CategoryStats counts redemptions per snapshot category.
func (s *RedemptionStore) CategoryStats(ctx context.Context) ([]model.CategoryStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*), COALESCE(SUM(points_spent), 0) FROM redemptions
		 GROUP BY category
		 ORDER BY COUNT(*) DESC, category ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	var stats []model.CategoryStat
	for rows.Next() {
		var c model.CategoryStat
		if err := rows.Scan(&c.Category, &c.Redemptions, &c.TotalPoints); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}
		stats = append(stats, c)
	}
	return stats, rows.Err()
}

// RewardStats reports redemption counts for every catalog entry, including
// ones never redeemed.
func (s *RedemptionStore) RewardStats(ctx context.Context, since time.Time) ([]model.RewardStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.category, r.cost,
		        COUNT(rd.id),
		        COALESCE(SUM(rd.points_spent), 0),
		        COUNT(CASE WHEN rd.redeemed_at >= ? THEN 1 END)
		 FROM rewards r
		 LEFT JOIN redemptions rd ON rd.reward_id = r.id
		 GROUP BY r.id
		 ORDER BY COUNT(rd.id) DESC, r.name ASC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("reward stats: %w", err)
	}
	defer rows.Close()

	var stats []model.RewardStat
	for rows.Next() {
		var st model.RewardStat
		if err := rows.Scan(&st.RewardID, &st.Name, &st.Category, &st.Cost,
			&st.TotalRedemptions, &st.TotalPointsSpent, &st.RedemptionsLast30); err != nil {
			return nil, fmt.Errorf("scan reward stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
