package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/gemloyalty/internal/ledger"
)

// AccountHandler serves the visitor-facing views of one account.
type AccountHandler struct {
	engine *ledger.Engine
	logger *slog.Logger
}

func NewAccountHandler(engine *ledger.Engine, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{engine: engine, logger: logger}
}

func (h *AccountHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	account, err := h.engine.Enroll(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to enroll account")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.GetSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to get summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *AccountHandler) Rewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.engine.GetAvailableRewards(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to list rewards")
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *AccountHandler) Redemptions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	history, err := h.engine.GetRedemptionHistory(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to list redemptions")
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.GetTransactions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *AccountHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.VerifyAccount(r.Context(), r.PathValue("id")); err != nil {
		writeLedgerError(w, h.logger, err, "failed to verify account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "consistent"})
}

func (h *AccountHandler) PendingReferrals(w http.ResponseWriter, r *http.Request) {
	links, err := h.engine.ListPendingReferrals(r.Context(), r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, h.logger, err, "failed to list referrals")
		return
	}
	writeJSON(w, http.StatusOK, links)
}
