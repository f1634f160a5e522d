package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/devpulse/stats-api/internal/logic"
	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/store"
)

const msgNotSynced = "not synced yet"

// LeaderboardRow is one rendered leaderboard entry.
type LeaderboardRow struct {
	UserID       int64         `json:"user_id"`
	Username     string        `json:"username"`
	Rank         *int          `json:"rank"`
	Status       models.Status `json:"status"`
	StatusLabel  string        `json:"status_label,omitempty"`
	TotalSeconds int64         `json:"total_seconds"`
	Duration     string        `json:"duration,omitempty"`
	DeltaSeconds int64         `json:"delta_seconds"`
	Delta        string        `json:"delta"`
	HonorTitle   string        `json:"honor_title,omitempty"`
	IsSelf       bool          `json:"is_self"`
}

// LeaderboardResponse is the sliced leaderboard for one viewer.
type LeaderboardResponse struct {
	Period    string           `json:"period"`
	PeriodKey string           `json:"period_key"`
	Podium    []LeaderboardRow `json:"podium"`
	NearMe    []LeaderboardRow `json:"near_me"`
	Rest      []LeaderboardRow `json:"rest"`
	Self      *LeaderboardRow  `json:"self,omitempty"`
	Leader    *LeaderboardRow  `json:"leader,omitempty"`
}

type dailyQuery struct {
	Date string `validate:"omitempty,datetime=2006-01-02"`
}

// audience is the set of users one viewer's leaderboard covers.
type audience struct {
	viewer     models.Candidate
	candidates []models.Candidate
	ids        []int64
}

var errViewerUnknown = errors.New("viewer not found")

func (h *Handler) loadAudience(ctx context.Context, viewerID int64) (audience, error) {
	all, err := h.store.ListCandidates(ctx, viewerID)
	if err != nil {
		return audience{}, err
	}
	a := audience{candidates: logic.LeaderboardCandidates(viewerID, all)}
	found := false
	for _, c := range a.candidates {
		a.ids = append(a.ids, c.ID)
		if c.ID == viewerID {
			a.viewer, found = c, true
		}
	}
	if !found {
		return audience{}, errViewerUnknown
	}
	return a, nil
}

func (a audience) visibleIDs() []int64 {
	var out []int64
	for _, c := range a.candidates {
		if logic.CanView(a.viewer.ID, c) {
			out = append(out, c.ID)
		}
	}
	return out
}

// GetDailyLeaderboard ranks the viewer's circle for one date. Without a
// date every user is read on their own local today.
// @Summary Daily leaderboard
// @Tags Leaderboards
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to each user's local today"
// @Success 200 {object} LeaderboardResponse
// @Router /leaderboard/daily [get]
func (h *Handler) GetDailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := dailyQuery{Date: r.URL.Query().Get("date")}
	if err := h.validator.Struct(q); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	a, ok := h.audienceOrError(w, r)
	if !ok {
		return
	}
	// without an explicit date each user is ranked on their own local today
	now := h.clock.Now()
	keyFor := func(c models.Candidate) string {
		if q.Date != "" {
			return q.Date
		}
		return logic.DateKeyInTimeZone(now, c.TimeZone)
	}
	dateKey := q.Date
	if dateKey == "" {
		dateKey = logic.DateKeyInTimeZone(now, a.viewer.TimeZone)
	}

	byID, err := h.dailyStatsByUser(ctx, a.candidates, keyFor)
	if err != nil {
		h.logger.Errorw("Failed to load daily stats", "date", dateKey, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load leaderboard")
		return
	}
	rows := make([]models.DailyStat, 0, len(a.candidates))
	for _, c := range a.candidates {
		s, ok := byID[c.ID]
		if !ok {
			s = models.DailyStat{StatCore: placeholder(c), DateKey: keyFor(c)}
		}
		s.Username = c.Username
		rows = append(rows, s)
	}
	rows = logic.MaskInvisibleDaily(a.viewer.ID, a.candidates, rows)

	titles := h.honorTitles(ctx, a)
	entries := logic.ComputeLeaderboard(rows, a.viewer.Username)
	slice := logic.SliceLeaderboard(entries, a.viewer.Username, h.slice)
	h.jsonResponse(w, http.StatusOK, buildResponse("daily", dateKey, slice, a.viewer.ID, titles, h.deltaThreshold))
}

// GetWeeklyLeaderboard ranks the viewer's circle over the rolling range
// @Summary Weekly leaderboard
// @Tags Leaderboards
// @Produce json
// @Success 200 {object} LeaderboardResponse
// @Router /leaderboard/weekly [get]
func (h *Handler) GetWeeklyLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, ok := h.audienceOrError(w, r)
	if !ok {
		return
	}
	rangeKey := h.sync.RangeKey()

	byID := make(map[int64]models.WeeklyStat)
	for _, s := range h.sync.GetStats(a.ids, rangeKey) {
		byID[s.UserID] = s
	}
	rows := make([]models.WeeklyStat, 0, len(a.candidates))
	for _, c := range a.candidates {
		s, ok := byID[c.ID]
		if !ok {
			s = models.WeeklyStat{StatCore: placeholder(c), RangeKey: rangeKey}
		}
		s.Username = c.Username
		rows = append(rows, s)
	}
	rows = logic.MaskInvisibleWeekly(a.viewer.ID, a.candidates, rows)

	titles := h.honorTitles(ctx, a)
	entries := logic.ComputeLeaderboard(rows, a.viewer.Username)
	slice := logic.SliceLeaderboard(entries, a.viewer.Username, h.slice)
	h.jsonResponse(w, http.StatusOK, buildResponse("weekly", rangeKey, slice, a.viewer.ID, titles, h.deltaThreshold))
}

// dailyStatsByUser loads each candidate's row under its own date key, with
// one read per distinct key.
func (h *Handler) dailyStatsByUser(ctx context.Context, candidates []models.Candidate, keyFor func(models.Candidate) string) (map[int64]models.DailyStat, error) {
	var keys []string
	groups := make(map[string][]int64)
	for _, c := range candidates {
		key := keyFor(c)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], c.ID)
	}

	byID := make(map[int64]models.DailyStat, len(candidates))
	for _, key := range keys {
		stats, err := h.sync.GetDailyStats(ctx, groups[key], key)
		if err != nil {
			return nil, fmt.Errorf("daily stats %s: %w", key, err)
		}
		for _, s := range stats {
			byID[s.UserID] = s
		}
	}
	return byID, nil
}

func (h *Handler) audienceOrError(w http.ResponseWriter, r *http.Request) (audience, bool) {
	a, err := h.loadAudience(r.Context(), viewerID(r.Context()))
	switch {
	case errors.Is(err, errViewerUnknown):
		h.errorResponse(w, http.StatusNotFound, "Viewer not found")
		return a, false
	case err != nil:
		h.logger.Errorw("Failed to load leaderboard candidates", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to load leaderboard")
		return a, false
	}
	return a, true
}

// placeholder stands in for a user that has never been synced, so every
// visible user still gets a row.
func placeholder(c models.Candidate) models.StatCore {
	return models.StatCore{
		UserID:   c.ID,
		Username: c.Username,
		Status:   models.StatusError,
		Error:    msgNotSynced,
	}
}

// honorTitles resolves titles for users the viewer can see. Failures only
// drop the titles.
func (h *Handler) honorTitles(ctx context.Context, a audience) map[int64]string {
	ids := a.visibleIDs()
	if len(ids) == 0 {
		return nil
	}
	grants, err := h.store.ListAchievementGrants(ctx, store.GrantFilter{UserIDs: ids})
	if err != nil {
		h.logger.Warnw("Failed to load grants for honor titles", "error", err)
		return nil
	}
	return logic.ResolveHonorTitlesByUserID(grants)
}

func buildResponse[S logic.Stat](period, periodKey string, slice logic.LeaderboardSlice[S], viewerID int64, titles map[int64]string, threshold int64) LeaderboardResponse {
	toRow := func(e logic.RankedEntry[S]) LeaderboardRow {
		c := e.Stat.Core()
		delta := logic.NormalizeDelta(e.DeltaSeconds, threshold)
		row := LeaderboardRow{
			UserID:       c.UserID,
			Username:     c.Username,
			Rank:         e.Rank,
			Status:       c.Status,
			StatusLabel:  logic.StatusLabel(c.Status),
			TotalSeconds: c.TotalSeconds,
			DeltaSeconds: delta,
			Delta:        logic.FormatDelta(delta, threshold),
			HonorTitle:   titles[c.UserID],
			IsSelf:       c.UserID == viewerID,
		}
		if c.Status == models.StatusOK {
			row.Duration = logic.FormatDuration(c.TotalSeconds)
		}
		return row
	}
	toRows := func(entries []logic.RankedEntry[S]) []LeaderboardRow {
		out := make([]LeaderboardRow, 0, len(entries))
		for _, e := range entries {
			out = append(out, toRow(e))
		}
		return out
	}

	resp := LeaderboardResponse{
		Period:    period,
		PeriodKey: periodKey,
		Podium:    toRows(slice.Podium),
		NearMe:    toRows(slice.NearMe),
		Rest:      toRows(slice.Rest),
	}
	if slice.SelfEntry != nil {
		row := toRow(*slice.SelfEntry)
		resp.Self = &row
	}
	if slice.LeaderEntry != nil {
		row := toRow(*slice.LeaderEntry)
		resp.Leader = &row
	}
	return resp
}
