package logic

import (
	"context"

	"github.com/devpulse/stats-api/internal/models"
)

// GrantStore persists achievement grants. GrantAchievement must upsert on
// (UserID, AchievementID, ContextKind, ContextKey) and report whether a new
// row was created.
type GrantStore interface {
	GrantAchievement(ctx context.Context, grant models.AchievementGrant) (bool, error)
}
