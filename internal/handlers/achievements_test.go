package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/devpulse/stats-api/internal/models"
)

func TestGetUserAchievements(t *testing.T) {
	h, st, _ := newTestHandler(t)
	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	for _, g := range []models.AchievementGrant{
		{UserID: 1, AchievementID: "daily_warm_up", ContextKind: models.ContextDaily, ContextKey: "2024-03-04", AwardedAt: at},
		{UserID: 1, AchievementID: "daily_warm_up", ContextKind: models.ContextDaily, ContextKey: "2024-03-05", AwardedAt: at.AddDate(0, 0, 1)},
		{UserID: 2, AchievementID: "weekly_steady", ContextKind: models.ContextWeekly, ContextKey: "2024-W10", AwardedAt: at},
	} {
		if _, err := st.GrantAchievement(t.Context(), g); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name       string
		viewer     int64
		path       string
		wantStatus int
		wantItems  int
		wantTitle  string
	}{
		{name: "Own board lists locked items", viewer: 1, path: "/api/v1/users/1/achievements", wantStatus: http.StatusOK, wantItems: 12, wantTitle: "Warm Up"},
		{name: "Friend sees unlocks only", viewer: 1, path: "/api/v1/users/2/achievements", wantStatus: http.StatusOK, wantItems: 1, wantTitle: "Steady Week"},
		{name: "Public user outside circle", viewer: 2, path: "/api/v1/users/5/achievements", wantStatus: http.StatusOK, wantItems: 0},
		{name: "Friends-only without mutual follow", viewer: 1, path: "/api/v1/users/3/achievements", wantStatus: http.StatusForbidden},
		{name: "Hidden user", viewer: 1, path: "/api/v1/users/4/achievements", wantStatus: http.StatusForbidden},
		{name: "Unknown user", viewer: 1, path: "/api/v1/users/99/achievements", wantStatus: http.StatusNotFound},
		{name: "Invalid id", viewer: 1, path: "/api/v1/users/abc/achievements", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(h, "GET", tt.path, tt.viewer, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp AchievementsResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if len(resp.Achievements) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(resp.Achievements), tt.wantItems)
			}
			if resp.HonorTitle != tt.wantTitle {
				t.Errorf("honor title = %q, want %q", resp.HonorTitle, tt.wantTitle)
			}
		})
	}
}

func TestGetUserAchievementsCounts(t *testing.T) {
	h, st, _ := newTestHandler(t)
	for _, key := range []string{"2024-03-04", "2024-03-05"} {
		_, _ = st.GrantAchievement(t.Context(), models.AchievementGrant{
			UserID: 1, AchievementID: "daily_warm_up", ContextKind: models.ContextDaily, ContextKey: key,
		})
	}

	w := doRequest(h, "GET", "/api/v1/users/1/achievements", 1, "")
	var resp AchievementsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Unlocked != 1 || resp.Total != 12 {
		t.Errorf("unlocked/total = %d/%d", resp.Unlocked, resp.Total)
	}
	for _, item := range resp.Achievements {
		if item.ID == "daily_warm_up" && item.Count != 2 {
			t.Errorf("warm up count = %d, want 2", item.Count)
		}
	}
}
