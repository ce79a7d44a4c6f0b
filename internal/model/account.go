package model

import "time"

// Account is a participant's loyalty ledger record.
type Account struct {
	AccountID           string     `json:"account_id"`
	TotalEarned         int        `json:"total_earned"`
	TotalSpent          int        `json:"total_spent"`
	Balance             int        `json:"balance"`
	FromSurveys         int        `json:"from_surveys"`
	FromReferrals       int        `json:"from_referrals"`
	FromProfileBonus    int        `json:"from_profile_bonus"`
	SurveysCompleted    int        `json:"surveys_completed"`
	ReferralsCompleted  int        `json:"referrals_completed"`
	ProfileBonusClaimed bool       `json:"profile_bonus_claimed"`
	ProfileCompletedAt  *time.Time `json:"profile_completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SourceTotals breaks lifetime earnings down by where they came from.
type SourceTotals struct {
	Surveys      int `json:"surveys"`
	Referrals    int `json:"referrals"`
	ProfileBonus int `json:"profile_bonus"`
}

func (a *Account) Sources() SourceTotals {
	return SourceTotals{
		Surveys:      a.FromSurveys,
		Referrals:    a.FromReferrals,
		ProfileBonus: a.FromProfileBonus,
	}
}
