package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/gemloyalty/internal/ledger"
)

type ReferralHandler struct {
	engine *ledger.Engine
	logger *slog.Logger
}

func NewReferralHandler(engine *ledger.Engine, logger *slog.Logger) *ReferralHandler {
	return &ReferralHandler{engine: engine, logger: logger}
}

type inviteRequest struct {
	ReferrerID string `json:"referrer_id"`
	ReferredID string `json:"referred_id"`
	Code       string `json:"code"`
}

func (h *ReferralHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	link, err := h.engine.CreateReferralInvite(r.Context(), req.ReferrerID, req.ReferredID, req.Code)
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to create referral")
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// Complete is called when the referred visitor finishes their first visit.
func (h *ReferralHandler) Complete(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.CompleteReferralVisit(r.Context(), r.PathValue("code"))
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to complete referral")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
