package logic

import "github.com/devpulse/stats-api/internal/models"

// ComboRule awards a named title for a combination of unlocks. A rule with
// MinMarathonStreak > 0 requires that many consecutive marathon weeks; every
// entry in Requires must be unlocked at least that many times.
type ComboRule struct {
	Title             string
	MinMarathonStreak int
	Requires          map[string]int
}

// Combo rules are checked in order; the first match wins.
var comboRules = []ComboRule{
	{Title: "Unbreakable", MinMarathonStreak: 8},
	{Title: "Relentless", MinMarathonStreak: 4},
	{Title: "Endurance Legend", Requires: map[string]int{AchievementDailyUltra: 2, AchievementWeeklyIron: 2}},
	{Title: "Renaissance Coder", Requires: map[string]int{AchievementWeeklyTitan: 1, AchievementDailyPolyglot: 3}},
}

type honorInput struct {
	counts       map[string]int
	marathonKeys []string
}

func (c ComboRule) matches(in honorInput) bool {
	if c.MinMarathonStreak > 0 && LongestWeeklyStreak(in.marathonKeys) < c.MinMarathonStreak {
		return false
	}
	for id, min := range c.Requires {
		if in.counts[id] < min {
			return false
		}
	}
	return true
}

// ResolveHonorTitlesByUserID derives one display title per user from their
// grants. Users without any unlock are absent from the result.
func ResolveHonorTitlesByUserID(grants []models.AchievementGrant) map[int64]string {
	byUser := make(map[int64]*honorInput)
	for _, g := range grants {
		in, ok := byUser[g.UserID]
		if !ok {
			in = &honorInput{counts: make(map[string]int)}
			byUser[g.UserID] = in
		}
		in.counts[g.AchievementID]++
		if g.AchievementID == AchievementWeeklyMarathon && g.ContextKind == models.ContextWeekly {
			in.marathonKeys = append(in.marathonKeys, g.ContextKey)
		}
	}

	titles := make(map[int64]string, len(byUser))
	for userID, in := range byUser {
		if title, ok := resolveHonorTitle(*in); ok {
			titles[userID] = title
		}
	}
	return titles
}

func resolveHonorTitle(in honorInput) (string, bool) {
	for _, combo := range comboRules {
		if combo.matches(in) {
			return combo.Title, true
		}
	}

	var (
		best      AchievementRule
		bestCount int
		found     bool
	)
	for id, count := range in.counts {
		if count < 1 {
			continue
		}
		rule, ok := LookupAchievement(id)
		if !ok {
			continue
		}
		if !found || betterHonor(rule, count, best, bestCount) {
			best, bestCount, found = rule, count, true
		}
	}
	if !found {
		return "", false
	}
	return best.Title, true
}

// betterHonor orders by priority, then unlock count, then id.
func betterHonor(r AchievementRule, count int, best AchievementRule, bestCount int) bool {
	if r.Priority != best.Priority {
		return r.Priority > best.Priority
	}
	if count != bestCount {
		return count > bestCount
	}
	return r.ID < best.ID
}
