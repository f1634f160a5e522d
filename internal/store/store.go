// Package store defines the persistence port used by sync, achievements and
// backfill, with a PostgreSQL implementation and an in-memory one.
package store

import (
	"context"
	"errors"

	"github.com/devpulse/stats-api/internal/models"
)

// ErrNotFound is returned when a single-row lookup finds nothing.
var ErrNotFound = errors.New("store: not found")

// StatStore persists fetch results. Upserts are keyed by
// (UserID, DateKey) and (UserID, RangeKey).
type StatStore interface {
	UpsertDailyStat(ctx context.Context, stat models.DailyStat) error
	GetDailyStats(ctx context.Context, userIDs []int64, dateKey string) ([]models.DailyStat, error)
	UpsertWeeklyStat(ctx context.Context, stat models.WeeklyStat) error
	GetWeeklyStats(ctx context.Context, userIDs []int64, rangeKey string) ([]models.WeeklyStat, error)
}

// GrantFilter narrows ListAchievementGrants. Empty AchievementIDs and
// ContextKind match everything.
type GrantFilter struct {
	UserIDs        []int64
	AchievementIDs []string
	ContextKind    models.ContextKind
}

// AchievementStore persists achievement grants.
type AchievementStore interface {
	GrantAchievement(ctx context.Context, grant models.AchievementGrant) (bool, error)
	ListAchievementUnlocks(ctx context.Context, userID int64) ([]models.AchievementUnlock, error)
	ListAchievementGrants(ctx context.Context, filter GrantFilter) ([]models.AchievementGrant, error)
}

// UserStore reads users and the social graph around a viewer.
type UserStore interface {
	ListSyncUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, userID int64) (models.User, error)
	ListCandidates(ctx context.Context, viewerID int64) ([]models.Candidate, error)
}

// HistoryStore streams every persisted stat row for batch jobs.
type HistoryStore interface {
	ListDailyHistory(ctx context.Context) ([]models.DailyStat, error)
	ListWeeklyHistory(ctx context.Context) ([]models.WeeklyStat, error)
}

// Store is the full persistence port.
type Store interface {
	StatStore
	AchievementStore
	UserStore
	HistoryStore
}
