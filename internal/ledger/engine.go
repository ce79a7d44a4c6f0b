package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/gemloyalty/internal/model"
	"github.com/dukerupert/gemloyalty/internal/store"
)

const (
	defaultHistoryLimit = 20
	inviteCodeAttempts  = 5
)

// Config holds the point values the engine awards.
type Config struct {
	SurveyPoints        int
	ReferralPoints      int
	ProfileBonus        int
	RecentActivityLimit int
	// DedupSurveys rejects a second award for the same account and survey
	// reference. Off by default: every completion earns points.
	DedupSurveys bool
}

// DefaultConfig returns the museum's standard point values.
func DefaultConfig() Config {
	return Config{
		SurveyPoints:        20,
		ReferralPoints:      30,
		ProfileBonus:        40,
		RecentActivityLimit: 10,
	}
}

func (c Config) Validate() error {
	if c.SurveyPoints <= 0 || c.ReferralPoints <= 0 || c.ProfileBonus <= 0 {
		return fmt.Errorf("point values must be positive (survey=%d referral=%d profile=%d)",
			c.SurveyPoints, c.ReferralPoints, c.ProfileBonus)
	}
	if c.RecentActivityLimit <= 0 {
		return fmt.Errorf("recent activity limit must be positive, got %d", c.RecentActivityLimit)
	}
	return nil
}

// Notifier is told about every committed mutation.
type Notifier interface {
	LedgerChanged(accountID string, kind model.TransactionType)
}

// Engine owns every mutation of the ledger. Mutations for one account are
// serialized by an in-process lock and each runs in a single write
// transaction, so a balance update and its ledger entry commit together or
// not at all.
type Engine struct {
	db       *sql.DB
	cfg      Config
	locks    *keyedMutex
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an engine. notifier may be nil.
func NewEngine(db *sql.DB, cfg Config, notifier Notifier, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:       db,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// --- Earning ---

// AwardSurveyCompletion credits the survey points to the account, enrolling
// it first if needed.
func (e *Engine) AwardSurveyCompletion(ctx context.Context, accountID, surveyType, surveyRef string) (*model.AwardResult, error) {
	if err := requireRef("account id", accountID); err != nil {
		return nil, err
	}
	if err := requireRef("survey reference", surveyRef); err != nil {
		return nil, err
	}

	var result *model.AwardResult
	err := e.mutate(ctx, "award_survey", accountID, model.TxEarnSurvey, func(tx *sql.Tx, now time.Time) error {
		accounts := store.NewAccountStore(tx)
		if _, err := accounts.Ensure(ctx, accountID, now); err != nil {
			return err
		}

		if e.cfg.DedupSurveys {
			seen, err := store.NewTransactionStore(tx).HasReference(ctx, accountID, model.TxEarnSurvey, surveyRef)
			if err != nil {
				return err
			}
			if seen {
				return errorf(ErrDuplicateSurvey, "survey %q already credited to %q", surveyRef, accountID)
			}
		}

		if err := accounts.CreditSurvey(ctx, accountID, e.cfg.SurveyPoints, now); err != nil {
			return err
		}

		entry, err := e.appendEntry(ctx, tx, accountID, model.TxEarnSurvey, e.cfg.SurveyPoints,
			surveyType, surveyRef, fmt.Sprintf("Survey completed: %s", surveyType), now)
		if err != nil {
			return err
		}
		result = awardResult(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	pointsAwardedTotal.WithLabelValues("survey").Add(float64(result.PointsAwarded))
	return result, nil
}

// AwardProfileCompletion credits the one-time profile bonus.
func (e *Engine) AwardProfileCompletion(ctx context.Context, accountID string) (*model.AwardResult, error) {
	if err := requireRef("account id", accountID); err != nil {
		return nil, err
	}

	var result *model.AwardResult
	err := e.mutate(ctx, "award_profile", accountID, model.TxEarnProfile, func(tx *sql.Tx, now time.Time) error {
		accounts := store.NewAccountStore(tx)
		if _, err := accounts.Ensure(ctx, accountID, now); err != nil {
			return err
		}

		claimed, err := accounts.ClaimProfileBonus(ctx, accountID, e.cfg.ProfileBonus, now)
		if err != nil {
			return err
		}
		if !claimed {
			return errorf(ErrAlreadyClaimed, "profile bonus already claimed by %q", accountID)
		}

		entry, err := e.appendEntry(ctx, tx, accountID, model.TxEarnProfile, e.cfg.ProfileBonus,
			"profile", accountID, "Profile completion bonus", now)
		if err != nil {
			return err
		}
		result = awardResult(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	pointsAwardedTotal.WithLabelValues("profile").Add(float64(result.PointsAwarded))
	return result, nil
}

// --- Referrals ---

// CreateReferralInvite records that referrerID invited referredID. The link
// stays Invited until the referred visitor completes a visit. An empty code
// gets a generated one.
func (e *Engine) CreateReferralInvite(ctx context.Context, referrerID, referredID, code string) (*model.ReferralLink, error) {
	if err := validatePair(referrerID, referredID); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)

	var link *model.ReferralLink
	err := e.withLock(ctx, "create_referral", referrerID, func(tx *sql.Tx, now time.Time) error {
		referrals := store.NewReferralStore(tx)

		existing, err := referrals.GetByPair(ctx, referrerID, referredID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errorf(ErrReferralExists, "%q already referred %q", referrerID, referredID)
		}

		if code == "" {
			code, err = e.freshCode(ctx, referrals)
			if err != nil {
				return err
			}
		} else if taken, err := referrals.GetByCode(ctx, code); err != nil {
			return err
		} else if taken != nil {
			return errorf(ErrCodeTaken, "referral code %q is in use", code)
		}

		link, err = referrals.Create(ctx, referrerID, referredID, code, now)
		return codeConflict(err, code)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("referral invited", "referrer_id", referrerID, "referred_id", referredID, "code", link.Code)
	return link, nil
}

// CompleteReferralVisit completes the invite identified by code and credits
// the referrer.
func (e *Engine) CompleteReferralVisit(ctx context.Context, code string) (*model.AwardResult, error) {
	code = strings.TrimSpace(code)
	if err := requireRef("referral code", code); err != nil {
		return nil, err
	}

	invite, err := store.NewReferralStore(e.db).GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if invite == nil {
		return nil, errorf(ErrReferralNotFound, "no referral with code %q", code)
	}

	var result *model.AwardResult
	err = e.mutate(ctx, "complete_referral", invite.ReferrerID, model.TxEarnReferral, func(tx *sql.Tx, now time.Time) error {
		link, err := store.NewReferralStore(tx).GetByID(ctx, invite.ID)
		if err != nil {
			return err
		}
		if link == nil {
			return errorf(ErrReferralNotFound, "no referral with code %q", code)
		}
		result, err = e.completeReferral(ctx, tx, link, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	pointsAwardedTotal.WithLabelValues("referral").Add(float64(result.PointsAwarded))
	return result, nil
}

// AwardReferralCompletion creates or completes the referral link for the pair
// and credits the referrer, all in one step. A pair that is already completed
// fails with ErrAlreadyCompleted and changes nothing.
func (e *Engine) AwardReferralCompletion(ctx context.Context, referrerID, referredID, code string) (*model.AwardResult, error) {
	if err := validatePair(referrerID, referredID); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)

	var result *model.AwardResult
	err := e.mutate(ctx, "award_referral", referrerID, model.TxEarnReferral, func(tx *sql.Tx, now time.Time) error {
		referrals := store.NewReferralStore(tx)

		link, err := referrals.GetByPair(ctx, referrerID, referredID)
		if err != nil {
			return err
		}
		if link == nil {
			if code == "" {
				if code, err = e.freshCode(ctx, referrals); err != nil {
					return err
				}
			}
			link, err = referrals.Create(ctx, referrerID, referredID, code, now)
			if err != nil {
				return codeConflict(err, code)
			}
		}

		result, err = e.completeReferral(ctx, tx, link, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	pointsAwardedTotal.WithLabelValues("referral").Add(float64(result.PointsAwarded))
	return result, nil
}

// completeReferral flips the link to completed and credits the referrer. The
// conditional update on the link is what makes duplicate completions fail.
func (e *Engine) completeReferral(ctx context.Context, tx *sql.Tx, link *model.ReferralLink, now time.Time) (*model.AwardResult, error) {
	if link.Completed {
		return nil, errorf(ErrAlreadyCompleted, "referral of %q by %q already completed", link.ReferredID, link.ReferrerID)
	}

	marked, err := store.NewReferralStore(tx).MarkCompleted(ctx, link.ID, now)
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, errorf(ErrAlreadyCompleted, "referral of %q by %q already completed", link.ReferredID, link.ReferrerID)
	}

	accounts := store.NewAccountStore(tx)
	if _, err := accounts.Ensure(ctx, link.ReferrerID, now); err != nil {
		return nil, err
	}
	if err := accounts.CreditReferral(ctx, link.ReferrerID, e.cfg.ReferralPoints, now); err != nil {
		return nil, err
	}

	entry, err := e.appendEntry(ctx, tx, link.ReferrerID, model.TxEarnReferral, e.cfg.ReferralPoints,
		"referral", strconv.FormatInt(link.ID, 10), "Referral bonus: friend completed first visit", now)
	if err != nil {
		return nil, err
	}
	return awardResult(entry), nil
}

func (e *Engine) freshCode(ctx context.Context, referrals *store.ReferralStore) (string, error) {
	for range inviteCodeAttempts {
		code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
		taken, err := referrals.GetByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if taken == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("generate referral code: %d collisions", inviteCodeAttempts)
}

// ListPendingReferrals returns the referrer's invites that are not completed.
func (e *Engine) ListPendingReferrals(ctx context.Context, referrerID string) ([]model.ReferralLink, error) {
	if err := requireRef("referrer id", referrerID); err != nil {
		return nil, err
	}
	links, err := store.NewReferralStore(e.db).ListPending(ctx, referrerID)
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []model.ReferralLink{}
	}
	return links, nil
}

// --- Redemption ---

// RedeemReward exchanges points for the named catalog reward.
func (e *Engine) RedeemReward(ctx context.Context, accountID, rewardName string) (*model.RedeemResult, error) {
	if err := requireRef("account id", accountID); err != nil {
		return nil, err
	}
	if err := requireRef("reward name", rewardName); err != nil {
		return nil, err
	}

	var result *model.RedeemResult
	err := e.mutate(ctx, "redeem", accountID, model.TxRedeem, func(tx *sql.Tx, now time.Time) error {
		reward, err := store.NewRewardStore(tx).GetByName(ctx, rewardName)
		if err != nil {
			return err
		}
		if reward == nil {
			return errorf(ErrRewardNotFound, "no reward named %q", rewardName)
		}
		if !reward.Active {
			return errorf(ErrRewardInactive, "%q is no longer available", rewardName)
		}

		accounts := store.NewAccountStore(tx)
		account, err := accounts.Get(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return errorf(ErrAccountNotEnrolled, "%q is not enrolled", accountID)
		}
		if account.Balance < reward.Cost {
			return errorf(ErrInsufficientBalance, "need %d, have %d", reward.Cost, account.Balance)
		}

		debited, err := accounts.Debit(ctx, accountID, reward.Cost, now)
		if err != nil {
			return err
		}
		if !debited {
			return errorf(ErrInsufficientBalance, "need %d, have %d", reward.Cost, account.Balance)
		}
		balance := account.Balance - reward.Cost

		redemption := &model.Redemption{
			AccountID:    accountID,
			RewardID:     reward.ID,
			RewardName:   reward.Name,
			Category:     reward.Category,
			PointsSpent:  reward.Cost,
			BalanceAfter: balance,
			Status:       model.RedemptionCompleted,
			RedeemedAt:   now,
		}
		if err := store.NewRedemptionStore(tx).Insert(ctx, redemption); err != nil {
			return err
		}

		entry := &model.Transaction{
			AccountID:     accountID,
			Type:          model.TxRedeem,
			Delta:         -reward.Cost,
			BalanceAfter:  balance,
			ReferenceType: "redemption",
			ReferenceID:   strconv.FormatInt(redemption.ID, 10),
			Description:   "Redeemed: " + reward.Name,
			CreatedAt:     now,
		}
		if err := store.NewTransactionStore(tx).Append(ctx, entry); err != nil {
			return err
		}

		result = &model.RedeemResult{
			AccountID:     accountID,
			Redemption:    *redemption,
			NewBalance:    balance,
			TransactionID: entry.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pointsRedeemedTotal.Add(float64(result.Redemption.PointsSpent))
	return result, nil
}

// --- Enrollment ---

// Enroll creates the account if it does not exist yet and returns it.
func (e *Engine) Enroll(ctx context.Context, accountID string) (*model.Account, error) {
	if err := requireRef("account id", accountID); err != nil {
		return nil, err
	}

	var account *model.Account
	err := e.withLock(ctx, "enroll", accountID, func(tx *sql.Tx, now time.Time) error {
		accounts := store.NewAccountStore(tx)
		created, err := accounts.Ensure(ctx, accountID, now)
		if err != nil {
			return err
		}
		if created {
			e.logger.Info("account enrolled", "account_id", accountID)
		}
		account, err = accounts.Get(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// --- Plumbing ---

// mutate runs fn under the account lock in one write transaction, then
// records metrics and tells the notifier.
func (e *Engine) mutate(ctx context.Context, op, accountID string, kind model.TransactionType, fn func(tx *sql.Tx, now time.Time) error) error {
	if err := e.withLock(ctx, op, accountID, fn); err != nil {
		return err
	}
	if e.notifier != nil {
		e.notifier.LedgerChanged(accountID, kind)
	}
	return nil
}

func (e *Engine) withLock(ctx context.Context, op, accountID string, fn func(tx *sql.Tx, now time.Time) error) error {
	start := time.Now()
	unlock := e.locks.Lock(accountID)
	defer unlock()

	now := e.now()
	err := store.InTx(ctx, e.db, func(tx *sql.Tx) error {
		return fn(tx, now)
	})
	observe(op, start, err)

	if err != nil {
		if _, ok := KindOf(err); ok {
			e.logger.Debug("ledger operation rejected", "op", op, "account_id", accountID, "error", err)
		} else {
			e.logger.Error("ledger operation failed", "op", op, "account_id", accountID, "error", err)
		}
		return err
	}
	e.logger.Debug("ledger operation committed", "op", op, "account_id", accountID)
	return nil
}

// appendEntry writes the ledger entry for a credit that has just been applied
// to the account row, reading the post-update balance in the same transaction.
func (e *Engine) appendEntry(ctx context.Context, tx *sql.Tx, accountID string, typ model.TransactionType, delta int, refType, refID, description string, now time.Time) (*model.Transaction, error) {
	account, err := store.NewAccountStore(tx).Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("append entry: account %q vanished", accountID)
	}

	entry := &model.Transaction{
		AccountID:     accountID,
		Type:          typ,
		Delta:         delta,
		BalanceAfter:  account.Balance,
		ReferenceType: refType,
		ReferenceID:   refID,
		Description:   description,
		CreatedAt:     now,
	}
	if err := store.NewTransactionStore(tx).Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func awardResult(entry *model.Transaction) *model.AwardResult {
	return &model.AwardResult{
		AccountID:     entry.AccountID,
		Type:          entry.Type,
		PointsAwarded: entry.Delta,
		NewBalance:    entry.BalanceAfter,
		TransactionID: entry.ID,
	}
}

func requireRef(what, value string) error {
	if strings.TrimSpace(value) == "" {
		return errorf(ErrMalformedReference, "%s is required", what)
	}
	return nil
}

func validatePair(referrerID, referredID string) error {
	if err := requireRef("referrer id", referrerID); err != nil {
		return err
	}
	if err := requireRef("referred id", referredID); err != nil {
		return err
	}
	if referrerID == referredID {
		return errorf(ErrSelfReferral, "%q cannot refer themselves", referrerID)
	}
	return nil
}

// codeConflict maps a uniqueness failure on insert to ErrCodeTaken. The pair
// was checked under the referrer's lock, so the code is what collided.
func codeConflict(err error, code string) error {
	if errors.Is(err, store.ErrConflict) {
		return errorf(ErrCodeTaken, "referral code %q is in use", code)
	}
	return err
}
