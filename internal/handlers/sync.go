package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/devpulse/stats-api/internal/store"
	"github.com/devpulse/stats-api/internal/worker"
)

// SyncRequest is the optional body of a manual sync.
type SyncRequest struct {
	BypassCache bool `json:"bypass_cache"`
}

// SyncResponse reports the stats produced by a manual sync.
type SyncResponse struct {
	worker.SyncResult
	Warning string `json:"warning,omitempty"`
}

// SyncUser refreshes the caller's stats on demand
// @Summary Manual sync
// @Tags Sync
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param body body SyncRequest false "Sync options"
// @Success 200 {object} SyncResponse
// @Failure 403 {object} map[string]string
// @Router /users/{id}/sync [post]
func (h *Handler) SyncUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targetID, ok := userIDParam(r)
	if !ok {
		h.errorResponse(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if targetID != viewerID(ctx) {
		h.errorResponse(w, http.StatusForbidden, "Users can only sync themselves")
		return
	}

	var req SyncRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	u, err := h.store.GetUser(ctx, targetID)
	if errors.Is(err, store.ErrNotFound) {
		h.errorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to load user for sync", "user", targetID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to sync")
		return
	}
	if u.APIKey == "" {
		h.errorResponse(w, http.StatusConflict, "No provider credential configured")
		return
	}

	res, err := h.sync.SyncUser(ctx, u, req.BypassCache)
	resp := SyncResponse{SyncResult: res}
	if err != nil {
		// fetch outcomes are already in the result; only persistence failed
		h.logger.Warnw("Manual sync finished with errors", "user", targetID, "error", err)
		resp.Warning = "stats fetched but could not be saved"
	}
	h.jsonResponse(w, http.StatusOK, resp)
}
