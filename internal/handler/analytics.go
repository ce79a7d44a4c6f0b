package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/gemloyalty/internal/analytics"
)

type AnalyticsHandler struct {
	refresher *analytics.Refresher
	logger    *slog.Logger
}

func NewAnalyticsHandler(refresher *analytics.Refresher, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{refresher: refresher, logger: logger}
}

// Get returns the latest scheduled snapshot. ?fresh=1, or no snapshot yet,
// computes one on demand.
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.refresher.Latest()
	if snap == nil || r.URL.Query().Get("fresh") == "1" {
		var err error
		snap, err = h.refresher.Refresh(r.Context())
		if err != nil {
			h.logger.Error("compute analytics", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute analytics"})
			return
		}
	}
	writeJSON(w, http.StatusOK, snap)
}
