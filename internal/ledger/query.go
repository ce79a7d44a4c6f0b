package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/gemloyalty/internal/model"
	"github.com/dukerupert/gemloyalty/internal/store"
)

// GetSummary returns the account's balances, badge and recent activity.
func (e *Engine) GetSummary(ctx context.Context, accountID string) (*model.Summary, error) {
	if err := requireRef("account id", accountID); err != nil {
		return nil, err
	}

	var summary *model.Summary
	err := store.InReadTx(ctx, e.db, func(tx *sql.Tx) error {
		account, err := store.NewAccountStore(tx).Get(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return errorf(ErrAccountNotEnrolled, "%q is not enrolled", accountID)
		}

		recent, err := store.NewTransactionStore(tx).Recent(ctx, accountID, e.cfg.RecentActivityLimit)
		if err != nil {
			return err
		}
		if recent == nil {
			recent = []model.Transaction{}
		}

		summary = &model.Summary{
			AccountID:          account.AccountID,
			Balance:            account.Balance,
			TotalEarned:        account.TotalEarned,
			TotalSpent:         account.TotalSpent,
			PerSource:          account.Sources(),
			SurveysCompleted:   account.SurveysCompleted,
			ReferralsCompleted: account.ReferralsCompleted,
			ProfileCompleted:   account.ProfileBonusClaimed,
			Badge:              model.BadgeFor(account.TotalEarned),
			RecentActivity:     recent,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// GetAvailableRewards lists the active catalog against the account's
// balance. An unknown account is treated as having zero points.
func (e *Engine) GetAvailableRewards(ctx context.Context, accountID string) (*model.AvailableRewards, error) {
	if err := requireRef("account id", accountID); err != nil {
		return nil, err
	}

	var out *model.AvailableRewards
	err := store.InReadTx(ctx, e.db, func(tx *sql.Tx) error {
		balance := 0
		account, err := store.NewAccountStore(tx).Get(ctx, accountID)
		if err != nil {
			return err
		}
		if account != nil {
			balance = account.Balance
		}

		rewards, err := store.NewRewardStore(tx).ListActive(ctx)
		if err != nil {
			return err
		}

		out = &model.AvailableRewards{Balance: balance, Rewards: make([]model.AvailableReward, 0, len(rewards))}
		for _, r := range rewards {
			out.Rewards = append(out.Rewards, model.AvailableReward{
				RewardID:     r.ID,
				Name:         r.Name,
				Category:     r.Category,
				Cost:         r.Cost,
				Description:  r.Description,
				CanAfford:    balance >= r.Cost,
				PointsNeeded: max(0, r.Cost-balance),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetRedemptionHistory returns the account's redemptions, newest first.
func (e *Engine) GetRedemptionHistory(ctx context.Context, accountID string, limit int) ([]model.Redemption, error) {
	if err := requireRef("account id", accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	history, err := store.NewRedemptionStore(e.db).ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []model.Redemption{}
	}
	return history, nil
}

// GetTransactions returns the full ledger for the account in creation order.
func (e *Engine) GetTransactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	if err := requireRef("account id", accountID); err != nil {
		return nil, err
	}

	entries, err := store.NewTransactionStore(e.db).ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.Transaction{}
	}
	return entries, nil
}

// VerifyAccount re-checks the stored account against its ledger. It returns
// nil when every rule holds and ErrInvariantViolation naming the broken
// rules otherwise.
func (e *Engine) VerifyAccount(ctx context.Context, accountID string) error {
	if err := requireRef("account id", accountID); err != nil {
		return err
	}

	var broken []string
	err := store.InReadTx(ctx, e.db, func(tx *sql.Tx) error {
		account, err := store.NewAccountStore(tx).Get(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return errorf(ErrAccountNotEnrolled, "%q is not enrolled", accountID)
		}

		entries, err := store.NewTransactionStore(tx).ListByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		broken = checkInvariants(account, entries)
		return nil
	})
	if err != nil {
		return err
	}

	if len(broken) > 0 {
		e.logger.Error("account invariants broken", "account_id", accountID, "rules", broken)
		return errorf(ErrInvariantViolation, "%s: %s", accountID, strings.Join(broken, "; "))
	}
	return nil
}

func checkInvariants(a *model.Account, entries []model.Transaction) []string {
	var broken []string

	if a.Balance != a.TotalEarned-a.TotalSpent {
		broken = append(broken, fmt.Sprintf("balance %d != earned %d - spent %d", a.Balance, a.TotalEarned, a.TotalSpent))
	}
	if a.Balance < 0 {
		broken = append(broken, fmt.Sprintf("balance %d is negative", a.Balance))
	}
	if sum := a.FromSurveys + a.FromReferrals + a.FromProfileBonus; sum != a.TotalEarned {
		broken = append(broken, fmt.Sprintf("source totals %d != earned %d", sum, a.TotalEarned))
	}

	var running, earned, spent int
	surveys, referrals, profile := 0, 0, 0
	for _, t := range entries {
		running += t.Delta
		if t.BalanceAfter != running {
			broken = append(broken, fmt.Sprintf("entry %d balance_after %d != running total %d", t.ID, t.BalanceAfter, running))
		}
		if running < 0 {
			broken = append(broken, fmt.Sprintf("entry %d takes balance below zero", t.ID))
		}
		switch t.Type {
		case model.TxEarnSurvey:
			surveys++
			earned += t.Delta
		case model.TxEarnReferral:
			referrals++
			earned += t.Delta
		case model.TxEarnProfile:
			profile++
			earned += t.Delta
		case model.TxRedeem:
			spent -= t.Delta
		}
	}

	if running != a.Balance {
		broken = append(broken, fmt.Sprintf("ledger fold %d != balance %d", running, a.Balance))
	}
	if earned != a.TotalEarned {
		broken = append(broken, fmt.Sprintf("ledger earnings %d != total earned %d", earned, a.TotalEarned))
	}
	if spent != a.TotalSpent {
		broken = append(broken, fmt.Sprintf("ledger spending %d != total spent %d", spent, a.TotalSpent))
	}
	if surveys != a.SurveysCompleted {
		broken = append(broken, fmt.Sprintf("%d survey entries != surveys completed %d", surveys, a.SurveysCompleted))
	}
	if referrals != a.ReferralsCompleted {
		broken = append(broken, fmt.Sprintf("%d referral entries != referrals completed %d", referrals, a.ReferralsCompleted))
	}
	if profile > 1 || (profile == 1) != a.ProfileBonusClaimed {
		broken = append(broken, fmt.Sprintf("%d profile entries with bonus claimed=%t", profile, a.ProfileBonusClaimed))
	}
	return broken
}
