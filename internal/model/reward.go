package model

import "time"

type Reward struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Cost        int       `json:"cost"`
	Active      bool      `json:"active"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

const RedemptionCompleted = "completed"

// Redemption snapshots the reward as it was when redeemed.
type Redemption struct {
	ID           int64     `json:"id"`
	AccountID    string    `json:"account_id"`
	RewardID     int64     `json:"reward_id"`
	RewardName   string    `json:"reward_name"`
	Category     string    `json:"category"`
	PointsSpent  int       `json:"points_spent"`
	BalanceAfter int       `json:"balance_after"`
	Status       string    `json:"status"`
	RedeemedAt   time.Time `json:"redeemed_at"`
}

// AvailableReward is an active catalog entry seen from one account's balance.
type AvailableReward struct {
	RewardID     int64  `json:"reward_id"`
	Name         string `json:"reward_name"`
	Category     string `json:"category"`
	Cost         int    `json:"cost"`
	Description  string `json:"description"`
	CanAfford    bool   `json:"can_afford"`
	PointsNeeded int    `json:"points_needed"`
}

type AvailableRewards struct {
	Balance int               `json:"balance"`
	Rewards []AvailableReward `json:"rewards"`
}
