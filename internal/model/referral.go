package model

import "time"

type ReferralState string

const (
	ReferralInvited   ReferralState = "Invited"
	ReferralCompleted ReferralState = "Completed"
)

type ReferralLink struct {
	ID            int64      `json:"referral_id"`
	ReferrerID    string     `json:"referrer_id"`
	ReferredID    string     `json:"referred_id"`
	Code          string     `json:"code"`
	Completed     bool       `json:"completed"`
	PointsAwarded bool       `json:"points_awarded"`
	ReferredAt    time.Time  `json:"referred_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (l *ReferralLink) State() ReferralState {
	if l.Completed {
		return ReferralCompleted
	}
	return ReferralInvited
}
