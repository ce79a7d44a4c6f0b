package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/gemloyalty/internal/model"
)

// RewardStore is the reward catalog. The points engine only reads it; the
// write methods back the admin routes.
type RewardStore struct {
	db Querier
}

func NewRewardStore(db Querier) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(s scanner) (*model.Reward, error) {
	var r model.Reward
	var active int

	err := s.Scan(&r.ID, &r.Name, &r.Category, &r.Cost, &active, &r.Description, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Active = active != 0
	return &r, nil
}

const rewardCols = `id, name, category, cost, active, description, created_at`

func (s *RewardStore) Create(ctx context.Context, name, category, description string, cost int, active bool) (*model.Reward, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (name, category, cost, active, description) VALUES (?, ?, ?, ?, ?)`,
		name, category, cost, boolToInt(active), description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert reward %q: %w", name, ErrConflict)
		}
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// GetByName looks up a reward by its unique name, active or not.
func (s *RewardStore) GetByName(ctx context.Context, name string) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE name = ?`, name)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward by name: %w", err)
	}
	return r, nil
}

// List returns all rewards, active first, then by cost and name.
func (s *RewardStore) List(ctx context.Context) ([]model.Reward, error) {
	return s.list(ctx, `SELECT `+rewardCols+` FROM rewards ORDER BY active DESC, cost ASC, name ASC`)
}

// ListActive returns only active rewards, cheapest first.
func (s *RewardStore) ListActive(ctx context.Context) ([]model.Reward, error) {
	return s.list(ctx, `SELECT `+rewardCols+` FROM rewards WHERE active = 1 ORDER BY cost ASC, name ASC`)
}

func (s *RewardStore) list(ctx context.Context, query string) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(ctx context.Context, id int64, name, category, description string, cost int, active bool) (*model.Reward, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET name = ?, category = ?, cost = ?, active = ?, description = ? WHERE id = ?`,
		name, category, cost, boolToInt(active), description, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("update reward %q: %w", name, ErrConflict)
		}
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) SetActive(ctx context.Context, id int64, active bool) (*model.Reward, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE rewards SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return nil, fmt.Errorf("set reward active: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a catalog entry. Past redemptions keep their snapshot.
func (s *RewardStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}
