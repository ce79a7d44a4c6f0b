package analytics

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/dukerupert/gemloyalty/internal/model"
	"github.com/dukerupert/gemloyalty/internal/store"
)

const (
	trailingWindow  = 30 * 24 * time.Hour
	mostActiveLimit = 10
)

// Aggregator computes program-wide figures. It only reads, and takes no
// ledger locks.
type Aggregator struct {
	db  *sql.DB
	now func() time.Time
}

func NewAggregator(db *sql.DB) *Aggregator {
	return &Aggregator{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot scans the ledger inside one read transaction, so every figure
// describes the same instant.
func (a *Aggregator) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	snap := &model.Snapshot{
		TakenAt:     a.now(),
		BadgeCounts: make(map[model.Badge]int, len(model.Badges)),
	}
	for _, b := range model.Badges {
		snap.BadgeCounts[b] = 0
	}
	since := snap.TakenAt.Add(-trailingWindow)

	err := store.InReadTx(ctx, a.db, func(tx *sql.Tx) error {
		accounts := store.NewAccountStore(tx)
		redemptions := store.NewRedemptionStore(tx)

		all, err := accounts.List(ctx)
		if err != nil {
			return err
		}
		for _, acct := range all {
			snap.UsersEnrolled++
			if acct.TotalEarned > 0 {
				snap.UsersWithPoints++
			}
			snap.TotalDistributed += acct.TotalEarned
			snap.TotalRedeemed += acct.TotalSpent
			snap.TotalSurveys += acct.SurveysCompleted
			snap.PointsFromSurveys += acct.FromSurveys
			snap.PointsFromReferrals += acct.FromReferrals
			snap.BadgeCounts[model.BadgeFor(acct.TotalEarned)]++
		}
		if snap.UsersEnrolled > 0 {
			snap.AvgPointsPerUser = round2(float64(snap.TotalDistributed) / float64(snap.UsersEnrolled))
		}

		if snap.SuccessfulReferrals, err = store.NewReferralStore(tx).CountCompleted(ctx); err != nil {
			return err
		}

		if snap.TotalRedemptions, snap.UsersWhoRedeemed, err = redemptions.Totals(ctx); err != nil {
			return err
		}
		snap.RedemptionRatePercent = RedemptionRate(snap.UsersWhoRedeemed, snap.UsersEnrolled)

		if snap.TopRewardAllTime, err = redemptions.TopReward(ctx, time.Time{}); err != nil {
			return err
		}
		if snap.TopReward30Day, err = redemptions.TopReward(ctx, since); err != nil {
			return err
		}

		if snap.CategoryStats, err = redemptions.CategoryStats(ctx); err != nil {
			return err
		}
		if snap.RewardStats, err = redemptions.RewardStats(ctx, since); err != nil {
			return err
		}

		active, err := accounts.MostActive(ctx, mostActiveLimit)
		if err != nil {
			return err
		}
		snap.MostActive = make([]model.ActiveAccount, 0, len(active))
		for _, acct := range active {
			snap.MostActive = append(snap.MostActive, model.ActiveAccount{
				AccountID:        acct.AccountID,
				SurveysCompleted: acct.SurveysCompleted,
				Balance:          acct.Balance,
				TotalEarned:      acct.TotalEarned,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if snap.CategoryStats == nil {
		snap.CategoryStats = []model.CategoryStat{}
	}
	if snap.RewardStats == nil {
		snap.RewardStats = []model.RewardStat{}
	}
	return snap, nil
}

// RedemptionRate is the share of enrolled accounts that redeemed at least
// once, as a percentage rounded to two decimals.
func RedemptionRate(redeemers, enrolled int) float64 {
	if enrolled == 0 {
		return 0
	}
	return round2(float64(redeemers) / float64(enrolled) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
