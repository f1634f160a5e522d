package logic

import (
	"context"
	"fmt"
	"time"

	"github.com/devpulse/stats-api/internal/models"
)

// Measure extracts the value a rule kind compares against its threshold.
func Measure(kind RuleKind, totalSeconds int64, payload *models.StatPayload) int64 {
	switch kind {
	case KindTotalSeconds:
		return totalSeconds
	case KindDistinctLanguages:
		if payload == nil {
			return 0
		}
		return countAbove(payload.Languages, MinCategorySeconds)
	case KindDistinctEditors:
		if payload == nil {
			return 0
		}
		return countAbove(payload.Editors, MinCategorySeconds)
	case KindDistinctProjects:
		if payload == nil {
			return 0
		}
		return countAbove(payload.Projects, MinCategorySeconds)
	case KindTopLanguageSeconds:
		if payload == nil {
			return 0
		}
		var top int64
		for _, s := range payload.Languages {
			if s > top {
				top = s
			}
		}
		return top
	}
	return 0
}

func countAbove(m map[string]int64, min int64) int64 {
	var n int64
	for _, s := range m {
		if s >= min {
			n++
		}
	}
	return n
}

// Evaluate reports whether a rule is satisfied. Only ok fetches and rules
// of the matching context kind can qualify.
func (r AchievementRule) Evaluate(status models.Status, totalSeconds int64, payload *models.StatPayload, kind models.ContextKind) bool {
	if status != models.StatusOK || r.Context != kind {
		return false
	}
	return Measure(r.Kind, totalSeconds, payload) >= r.Threshold
}

// AwardInput is one fetch outcome to evaluate against the catalog.
type AwardInput struct {
	UserID       int64
	ContextKey   string
	Status       models.Status
	TotalSeconds int64
	Payload      *models.StatPayload
	FetchedAt    time.Time
}

// AwardResult lists which rules matched and which grants were new.
type AwardResult struct {
	Matched []string
	Created []string
}

// AwardDailyAchievements grants every satisfied daily rule for one date.
func AwardDailyAchievements(ctx context.Context, store GrantStore, in AwardInput) (AwardResult, error) {
	return awardAchievements(ctx, store, models.ContextDaily, in)
}

// AwardWeeklyAchievements grants every satisfied weekly rule for one ISO week.
func AwardWeeklyAchievements(ctx context.Context, store GrantStore, in AwardInput) (AwardResult, error) {
	return awardAchievements(ctx, store, models.ContextWeekly, in)
}

// awardAchievements relies on the store's unique-tuple upsert for dedupe;
// evaluating the same fetch twice updates the existing rows.
func awardAchievements(ctx context.Context, store GrantStore, kind models.ContextKind, in AwardInput) (AwardResult, error) {
	var res AwardResult
	if in.Status != models.StatusOK {
		return res, nil
	}
	if in.ContextKey == "" {
		return res, fmt.Errorf("award %s achievements for user %d: empty context key", kind, in.UserID)
	}

	for _, rule := range RulesFor(kind) {
		if !rule.Evaluate(in.Status, in.TotalSeconds, in.Payload, kind) {
			continue
		}
		res.Matched = append(res.Matched, rule.ID)

		grant := models.AchievementGrant{
			UserID:        in.UserID,
			AchievementID: rule.ID,
			ContextKind:   kind,
			ContextKey:    in.ContextKey,
			AwardedAt:     in.FetchedAt,
			Metadata: map[string]any{
				"total_seconds": in.TotalSeconds,
				"measured":      Measure(rule.Kind, in.TotalSeconds, in.Payload),
				"threshold":     rule.Threshold,
			},
		}
		created, err := store.GrantAchievement(ctx, grant)
		if err != nil {
			return res, fmt.Errorf("grant %s to user %d for %s: %w", rule.ID, in.UserID, in.ContextKey, err)
		}
		if created {
			res.Created = append(res.Created, rule.ID)
		}
	}
	return res, nil
}

// ToAchievementBoard merges the catalog with a user's unlocks, including
// locked achievements. Used when users look at their own achievements.
func ToAchievementBoard(unlocks []models.AchievementUnlock) []models.AchievementBoardItem {
	byID := make(map[string]models.AchievementUnlock, len(unlocks))
	for _, u := range unlocks {
		byID[u.AchievementID] = u
	}

	board := make([]models.AchievementBoardItem, 0, len(catalog))
	for _, rule := range catalog {
		item := models.AchievementBoardItem{
			ID:          rule.ID,
			Title:       rule.Title,
			Description: rule.Description,
			Icon:        rule.Icon,
			ContextKind: string(rule.Context),
		}
		if u, ok := byID[rule.ID]; ok && u.Count > 0 {
			first, last := u.FirstAwardedAt, u.LastAwardedAt
			item.Unlocked = true
			item.Count = u.Count
			item.FirstAwardedAt = &first
			item.LastAwardedAt = &last
		}
		board = append(board, item)
	}
	return board
}

// ToAchievementDisplay is the view of another user's achievements: only
// unlocked items are listed.
func ToAchievementDisplay(unlocks []models.AchievementUnlock) []models.AchievementBoardItem {
	board := ToAchievementBoard(unlocks)
	out := make([]models.AchievementBoardItem, 0, len(unlocks))
	for _, item := range board {
		if item.Unlocked {
			out = append(out, item)
		}
	}
	return out
}
