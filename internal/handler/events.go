package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/gemloyalty/internal/ledger"
	"github.com/dukerupert/gemloyalty/internal/middleware"
)

// EventHandler accepts the events other museum systems emit and turns them
// into ledger operations.
type EventHandler struct {
	engine        *ledger.Engine
	redeemLimiter *middleware.RateLimiter
	logger        *slog.Logger
}

func NewEventHandler(engine *ledger.Engine, redeemLimiter *middleware.RateLimiter, logger *slog.Logger) *EventHandler {
	return &EventHandler{engine: engine, redeemLimiter: redeemLimiter, logger: logger}
}

type surveyCompletedRequest struct {
	AccountID  string `json:"account_id"`
	SurveyType string `json:"survey_type"`
	SurveyRef  string `json:"survey_ref"`
}

func (h *EventHandler) SurveyCompleted(w http.ResponseWriter, r *http.Request) {
	var req surveyCompletedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.engine.AwardSurveyCompletion(r.Context(), req.AccountID, req.SurveyType, req.SurveyRef)
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to award survey points")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type referralCompletedRequest struct {
	ReferrerID string `json:"referrer_id"`
	ReferredID string `json:"referred_id"`
	Code       string `json:"code"`
}

func (h *EventHandler) ReferralCompleted(w http.ResponseWriter, r *http.Request) {
	var req referralCompletedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.engine.AwardReferralCompletion(r.Context(), req.ReferrerID, req.ReferredID, req.Code)
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to award referral points")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type profileCompletedRequest struct {
	AccountID string `json:"account_id"`
}

func (h *EventHandler) ProfileCompleted(w http.ResponseWriter, r *http.Request) {
	var req profileCompletedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.engine.AwardProfileCompletion(r.Context(), req.AccountID)
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to award profile bonus")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type redemptionRequestedRequest struct {
	AccountID  string `json:"account_id"`
	RewardName string `json:"reward_name"`
}

// RedemptionRequested is limited per account, so a stuck kiosk retrying in
// a loop cannot flood the ledger.
func (h *EventHandler) RedemptionRequested(w http.ResponseWriter, r *http.Request) {
	var req redemptionRequestedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if h.redeemLimiter != nil && req.AccountID != "" {
		if ok, retry := h.redeemLimiter.Allow(req.AccountID); !ok {
			h.logger.Warn("redemption rate limited", "account_id", req.AccountID)
			middleware.TooManyRequests(w, retry)
			return
		}
	}

	result, err := h.engine.RedeemReward(r.Context(), req.AccountID, req.RewardName)
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to redeem reward")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
