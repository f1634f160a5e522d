package logic

import "github.com/devpulse/stats-api/internal/models"

// CanView applies the candidate's visibility setting for a viewer.
// A user can always see themself.
func CanView(viewerID int64, c models.Candidate) bool {
	if c.ID == viewerID {
		return true
	}
	switch c.Visibility {
	case models.VisibilityEveryone, "":
		return true
	case models.VisibilityFriends:
		return c.IsFriend
	default:
		return false
	}
}

// LeaderboardCandidates drops users who opted out of competing, keeping
// the viewer regardless.
func LeaderboardCandidates(viewerID int64, candidates []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Competing || c.ID == viewerID {
			out = append(out, c)
		}
	}
	return out
}

// MaskCore hides a stat the viewer may not see. The result looks exactly
// like a provider-side private account.
func MaskCore(c models.StatCore) models.StatCore {
	return models.StatCore{
		UserID:    c.UserID,
		Username:  c.Username,
		Status:    models.StatusPrivate,
		FetchedAt: c.FetchedAt,
	}
}

// MaskInvisibleDaily rewrites stats of users the viewer cannot see to private.
func MaskInvisibleDaily(viewerID int64, candidates []models.Candidate, stats []models.DailyStat) []models.DailyStat {
	visible := visibleSet(viewerID, candidates)
	out := make([]models.DailyStat, len(stats))
	for i, s := range stats {
		if !visible[s.UserID] {
			s.StatCore = MaskCore(s.StatCore)
		}
		out[i] = s
	}
	return out
}

// MaskInvisibleWeekly is MaskInvisibleDaily for weekly stats.
func MaskInvisibleWeekly(viewerID int64, candidates []models.Candidate, stats []models.WeeklyStat) []models.WeeklyStat {
	visible := visibleSet(viewerID, candidates)
	out := make([]models.WeeklyStat, len(stats))
	for i, s := range stats {
		if !visible[s.UserID] {
			s.StatCore = MaskCore(s.StatCore)
			s.DailyAverageSeconds = 0
		}
		out[i] = s
	}
	return out
}

func visibleSet(viewerID int64, candidates []models.Candidate) map[int64]bool {
	visible := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		visible[c.ID] = CanView(viewerID, c)
	}
	return visible
}
