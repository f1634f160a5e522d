package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/devpulse/stats-api/internal/logic"
	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/store"
	"github.com/devpulse/stats-api/internal/worker"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// SyncService is the part of the sync engine the HTTP layer uses.
type SyncService interface {
	RangeKey() string
	GetStats(userIDs []int64, rangeKey string) []models.WeeklyStat
	GetDailyStats(ctx context.Context, userIDs []int64, dateKey string) ([]models.DailyStat, error)
	SyncUser(ctx context.Context, u models.User, bypassCache bool) (worker.SyncResult, error)
}

// DataStore is the read side of persistence used by handlers.
type DataStore interface {
	GetUser(ctx context.Context, userID int64) (models.User, error)
	ListCandidates(ctx context.Context, viewerID int64) ([]models.Candidate, error)
	ListAchievementUnlocks(ctx context.Context, userID int64) ([]models.AchievementUnlock, error)
	ListAchievementGrants(ctx context.Context, filter store.GrantFilter) ([]models.AchievementGrant, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// QueueDepther reports the depth of a background queue.
type QueueDepther interface {
	QueueDepth() int
}

type Config struct {
	Store          DataStore
	Sync           SyncService
	Archive        QueueDepther
	Checks         map[string]Pinger
	Clock          logic.Clock
	DeltaThreshold int64
	Slice          logic.SliceOptions
	Logger         *zap.Logger
}

type Handler struct {
	store          DataStore
	sync           SyncService
	archive        QueueDepther
	checks         map[string]Pinger
	clock          logic.Clock
	deltaThreshold int64
	slice          logic.SliceOptions
	logger         *zap.SugaredLogger
	validator      *validator.Validate
}

func New(cfg Config) *Handler {
	if cfg.Clock == nil {
		cfg.Clock = logic.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Slice == (logic.SliceOptions{}) {
		cfg.Slice = logic.DefaultSliceOptions
	}
	return &Handler{
		store:          cfg.Store,
		sync:           cfg.Sync,
		archive:        cfg.Archive,
		checks:         cfg.Checks,
		clock:          cfg.Clock,
		deltaThreshold: cfg.DeltaThreshold,
		slice:          cfg.Slice,
		logger:         cfg.Logger.Sugar(),
		validator:      validator.New(),
	}
}
