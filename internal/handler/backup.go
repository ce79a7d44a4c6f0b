package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/gemloyalty/internal/backup"
)

type BackupHandler struct {
	manager *backup.Manager
	logger  *slog.Logger
}

func NewBackupHandler(manager *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: manager, logger: logger}
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// List returns archived snapshots, newest first.
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	objects, err := h.manager.List(r.Context())
	if err != nil {
		h.writeError(w, err, "failed to list backups")
		return
	}
	if objects == nil {
		objects = []backup.Object{}
	}
	writeJSON(w, http.StatusOK, objects)
}

// Run takes a snapshot immediately.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	obj, err := h.manager.RunNow(r.Context())
	if err != nil {
		h.writeError(w, err, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, obj)
}

func (h *BackupHandler) writeError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, backup.ErrNotConfigured) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Error(msg, "error", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": msg})
}
