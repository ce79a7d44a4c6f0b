package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/gemloyalty/internal/ledger"
)

const maxBodyBytes = 64 << 10

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
// It writes the 400 itself and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	return true
}

// writeLedgerError maps a ledger error to its status code. Anything else is
// logged and reported as a generic 500 carrying msg.
func writeLedgerError(w http.ResponseWriter, logger *slog.Logger, err error, msg string) {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		logger.Error(msg, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
		return
	}

	status := http.StatusInternalServerError
	switch lerr.Kind {
	case ledger.KindValidation:
		status = http.StatusBadRequest
	case ledger.KindNotFound:
		status = http.StatusNotFound
	case ledger.KindState:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{
		"error": lerr.Error(),
		"code":  lerr.Code,
		"kind":  lerr.Kind.String(),
	})
}
