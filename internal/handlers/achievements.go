package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/devpulse/stats-api/internal/logic"
	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/store"
)

// AchievementsResponse is a user's achievement board.
type AchievementsResponse struct {
	UserID       int64                         `json:"user_id"`
	Username     string                        `json:"username"`
	HonorTitle   string                        `json:"honor_title,omitempty"`
	Unlocked     int                           `json:"unlocked"`
	Total        int                           `json:"total"`
	Achievements []models.AchievementBoardItem `json:"achievements"`
}

// GetUserAchievements returns the achievement board for a user
// @Summary User achievements
// @Description Own board lists locked items too; other users only show unlocks
// @Tags Achievements
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} AchievementsResponse
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /users/{id}/achievements [get]
func (h *Handler) GetUserAchievements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targetID, ok := userIDParam(r)
	if !ok {
		h.errorResponse(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	viewer := viewerID(ctx)

	target, err := h.resolveTarget(ctx, viewer, targetID)
	if errors.Is(err, store.ErrNotFound) {
		h.errorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to load user", "user", targetID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load achievements")
		return
	}
	if !logic.CanView(viewer, target) {
		h.errorResponse(w, http.StatusForbidden, "Achievements are not visible")
		return
	}

	unlocks, err := h.store.ListAchievementUnlocks(ctx, targetID)
	if err != nil {
		h.logger.Errorw("Failed to load achievement unlocks", "user", targetID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load achievements")
		return
	}

	var items []models.AchievementBoardItem
	if targetID == viewer {
		items = logic.ToAchievementBoard(unlocks)
	} else {
		items = logic.ToAchievementDisplay(unlocks)
	}

	resp := AchievementsResponse{
		UserID:       target.ID,
		Username:     target.Username,
		Total:        len(logic.Catalog()),
		Achievements: items,
	}
	for _, item := range items {
		if item.Unlocked {
			resp.Unlocked++
		}
	}

	grants, err := h.store.ListAchievementGrants(ctx, store.GrantFilter{UserIDs: []int64{targetID}})
	if err != nil {
		h.logger.Warnw("Failed to load grants for honor title", "user", targetID, "error", err)
	} else {
		resp.HonorTitle = logic.ResolveHonorTitlesByUserID(grants)[targetID]
	}

	h.jsonResponse(w, http.StatusOK, resp)
}

// resolveTarget finds the target as seen from the viewer. Users outside the
// viewer's circle are loaded directly and are never friends.
func (h *Handler) resolveTarget(ctx context.Context, viewer, targetID int64) (models.Candidate, error) {
	candidates, err := h.store.ListCandidates(ctx, viewer)
	if err != nil {
		return models.Candidate{}, err
	}
	for _, c := range candidates {
		if c.ID == targetID {
			return c, nil
		}
	}
	u, err := h.store.GetUser(ctx, targetID)
	if err != nil {
		return models.Candidate{}, err
	}
	return models.Candidate{User: u}, nil
}
