package models

import "time"

// ContextKind distinguishes daily from weekly achievement grants.
type ContextKind string

const (
	ContextDaily  ContextKind = "daily"
	ContextWeekly ContextKind = "weekly"
)

// AchievementGrant is the persisted fact that a user unlocked an achievement
// for one time bucket. (UserID, AchievementID, ContextKind, ContextKey) is unique.
type AchievementGrant struct {
	UserID        int64          `json:"user_id"`
	AchievementID string         `json:"achievement_id"`
	ContextKind   ContextKind    `json:"context_kind"`
	ContextKey    string         `json:"context_key"`
	AwardedAt     time.Time      `json:"awarded_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// AchievementUnlock summarises all grants a user holds for one achievement.
type AchievementUnlock struct {
	AchievementID  string    `json:"achievement_id"`
	Count          int       `json:"count"`
	FirstAwardedAt time.Time `json:"first_awarded_at"`
	LastAwardedAt  time.Time `json:"last_awarded_at"`
}

// AchievementBoardItem is one catalog entry merged with a user's unlock summary.
type AchievementBoardItem struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Icon           string     `json:"icon"`
	ContextKind    string     `json:"context_kind"`
	Unlocked       bool       `json:"unlocked"`
	Count          int        `json:"count"`
	FirstAwardedAt *time.Time `json:"first_awarded_at,omitempty"`
	LastAwardedAt  *time.Time `json:"last_awarded_at,omitempty"`
}
