package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/gemloyalty/internal/model"
	"github.com/dukerupert/gemloyalty/internal/store"
)

// RewardHandler serves the public catalog and the staff edits behind the
// admin token.
type RewardHandler struct {
	rewardStore *store.RewardStore
	logger      *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewardStore: rs, logger: logger}
}

type rewardRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
	Active      *bool  `json:"active"`
}

func (req *rewardRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" {
		return "name is required"
	}
	if req.Category == "" {
		return "category is required"
	}
	if req.Cost <= 0 {
		return "cost must be positive"
	}
	return ""
}

func (req *rewardRequest) active() bool {
	return req.Active == nil || *req.Active
}

// ListActive is the catalog visitors can redeem from, cheapest first.
func (h *RewardHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.rewardStore.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list rewards", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list rewards"})
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

// List includes retired rewards, for staff.
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.rewardStore.List(r.Context())
	if err != nil {
		h.logger.Error("list rewards", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list rewards"})
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	reward, err := h.rewardStore.Create(r.Context(), req.Name, req.Category, req.Description, req.Cost, req.active())
	if err != nil {
		h.writeStoreError(w, err, "failed to create reward")
		return
	}

	h.logger.Info("reward created", "reward_id", reward.ID, "name", reward.Name, "cost", reward.Cost)
	writeJSON(w, http.StatusCreated, reward)
}

// Update replaces a catalog entry. Redemptions already made keep the name,
// category and cost they were made at.
func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.existingID(w, r)
	if !ok {
		return
	}

	var req rewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	reward, err := h.rewardStore.Update(r.Context(), id, req.Name, req.Category, req.Description, req.Cost, req.active())
	if err != nil {
		h.writeStoreError(w, err, "failed to update reward")
		return
	}

	h.logger.Info("reward updated", "reward_id", id)
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.existingID(w, r)
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "active is required"})
		return
	}

	reward, err := h.rewardStore.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		h.writeStoreError(w, err, "failed to update reward")
		return
	}

	h.logger.Info("reward availability changed", "reward_id", id, "active", *req.Active)
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.existingID(w, r)
	if !ok {
		return
	}

	if err := h.rewardStore.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "failed to delete reward")
		return
	}

	h.logger.Info("reward deleted", "reward_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// existingID parses the {id} path value and checks the reward exists,
// writing the error response itself when it does not.
func (h *RewardHandler) existingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}

	existing, err := h.rewardStore.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "failed to get reward")
		return 0, false
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "reward not found"})
		return 0, false
	}
	return id, true
}

func (h *RewardHandler) writeStoreError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrConflict) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a reward with that name already exists"})
		return
	}
	h.logger.Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
}
