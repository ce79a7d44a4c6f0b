package model

import "time"

type CategoryStat struct {
	Category    string `json:"category"`
	Redemptions int    `json:"redemptions"`
	TotalPoints int    `json:"total_points"`
}

type ActiveAccount struct {
	AccountID        string `json:"account_id"`
	SurveysCompleted int    `json:"surveys_completed"`
	Balance          int    `json:"current_balance"`
	TotalEarned      int    `json:"total_earned"`
}

type RewardStat struct {
	RewardID          int64  `json:"reward_id"`
	Name              string `json:"reward_name"`
	Category          string `json:"category"`
	Cost              int    `json:"cost"`
	TotalRedemptions  int    `json:"total_redemptions"`
	TotalPointsSpent  int    `json:"total_points_spent"`
	RedemptionsLast30 int    `json:"redemptions_last_30_days"`
}

// Snapshot describes the ledger as of TakenAt. It is not synchronized with
// mutations that commit after the read began.
type Snapshot struct {
	TakenAt               time.Time       `json:"taken_at"`
	UsersEnrolled         int             `json:"users_enrolled"`
	UsersWithPoints       int             `json:"users_with_points"`
	AvgPointsPerUser      float64         `json:"avg_points_per_user"`
	TotalDistributed      int             `json:"total_distributed"`
	TotalRedeemed         int             `json:"total_redeemed"`
	TotalSurveys          int             `json:"total_surveys_completed"`
	PointsFromSurveys     int             `json:"points_from_surveys"`
	SuccessfulReferrals   int             `json:"successful_referrals"`
	PointsFromReferrals   int             `json:"points_from_referrals"`
	TotalRedemptions      int             `json:"total_redemptions"`
	UsersWhoRedeemed      int             `json:"users_who_redeemed"`
	RedemptionRatePercent float64         `json:"redemption_rate_percent"`
	BadgeCounts           map[Badge]int   `json:"badge_counts"`
	TopRewardAllTime      string          `json:"top_reward_all_time"`
	TopReward30Day        string          `json:"top_reward_30_day"`
	CategoryStats         []CategoryStat  `json:"category_stats"`
	MostActive            []ActiveAccount `json:"most_active"`
	RewardStats           []RewardStat    `json:"reward_stats"`
}
