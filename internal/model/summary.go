package model

// Summary is the visitor-facing view of one account.
type Summary struct {
	AccountID          string        `json:"account_id"`
	Balance            int           `json:"balance"`
	TotalEarned        int           `json:"total_earned"`
	TotalSpent         int           `json:"total_spent"`
	PerSource          SourceTotals  `json:"per_source_totals"`
	SurveysCompleted   int           `json:"surveys_completed"`
	ReferralsCompleted int           `json:"referrals_completed"`
	ProfileCompleted   bool          `json:"profile_completed"`
	Badge              Badge         `json:"badge_tier"`
	RecentActivity     []Transaction `json:"recent_activity"`
}

// AwardResult is returned by every earning operation.
type AwardResult struct {
	AccountID     string          `json:"account_id"`
	Type          TransactionType `json:"type"`
	PointsAwarded int             `json:"points_awarded"`
	NewBalance    int             `json:"new_balance"`
	TransactionID int64           `json:"transaction_id"`
}

type RedeemResult struct {
	AccountID     string     `json:"account_id"`
	Redemption    Redemption `json:"redemption"`
	NewBalance    int        `json:"new_balance"`
	TransactionID int64      `json:"transaction_id"`
}
