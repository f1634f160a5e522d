package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devpulse/stats-api/internal/logic"
	"github.com/devpulse/stats-api/internal/models"
)

// UnlockChannel is the pub/sub channel new unlocks are announced on.
const UnlockChannel = "achievement_unlocks"

// Publisher abstracts the pub/sub transport for unlock notifications
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// RedisPublisher implements Publisher using Redis
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// UnlockNotification is the JSON message published for each new grant.
type UnlockNotification struct {
	Type          string             `json:"type"`
	UserID        int64              `json:"user_id"`
	AchievementID string             `json:"achievement_id"`
	Title         string             `json:"title"`
	Icon          string             `json:"icon"`
	ContextKind   models.ContextKind `json:"context_kind"`
	ContextKey    string             `json:"context_key"`
	UnlockedAt    time.Time          `json:"unlocked_at"`
}

// AchievementWorker evaluates live fetch results against the catalog and
// announces new unlocks. Publisher may be nil.
type AchievementWorker struct {
	store     logic.GrantStore
	publisher Publisher
	logger    *zap.SugaredLogger
}

func NewAchievementWorker(store logic.GrantStore, publisher Publisher, logger *zap.SugaredLogger) *AchievementWorker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AchievementWorker{store: store, publisher: publisher, logger: logger}
}

// ProcessDaily awards daily achievements for one fetched day.
func (w *AchievementWorker) ProcessDaily(ctx context.Context, in logic.AwardInput) (logic.AwardResult, error) {
	res, err := logic.AwardDailyAchievements(ctx, w.store, in)
	w.afterAward(ctx, models.ContextDaily, in, res, err)
	return res, err
}

// ProcessWeekly awards weekly achievements for one ISO week.
func (w *AchievementWorker) ProcessWeekly(ctx context.Context, in logic.AwardInput) (logic.AwardResult, error) {
	res, err := logic.AwardWeeklyAchievements(ctx, w.store, in)
	w.afterAward(ctx, models.ContextWeekly, in, res, err)
	return res, err
}

func (w *AchievementWorker) afterAward(ctx context.Context, kind models.ContextKind, in logic.AwardInput, res logic.AwardResult, err error) {
	if err != nil {
		achievementErrors.WithLabelValues(string(kind)).Inc()
		w.logger.Errorw("Achievement evaluation failed",
			"user", in.UserID,
			"context", kind,
			"contextKey", in.ContextKey,
			"error", err,
		)
	}
	for _, id := range res.Created {
		achievementsUnlocked.WithLabelValues(id).Inc()
		w.logger.Infow("Achievement unlocked", "user", in.UserID, "achievement", id, "contextKey", in.ContextKey)
		w.notify(ctx, kind, in, id)
	}
}

// notify is best-effort; failures are logged and never reach the caller.
func (w *AchievementWorker) notify(ctx context.Context, kind models.ContextKind, in logic.AwardInput, achievementID string) {
	if w.publisher == nil {
		return
	}
	msg := UnlockNotification{
		Type:          "achievement_unlock",
		UserID:        in.UserID,
		AchievementID: achievementID,
		ContextKind:   kind,
		ContextKey:    in.ContextKey,
		UnlockedAt:    in.FetchedAt,
	}
	if rule, ok := logic.LookupAchievement(achievementID); ok {
		msg.Title = rule.Title
		msg.Icon = rule.Icon
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		w.logger.Errorw("Failed to marshal achievement notification", "error", err)
		return
	}
	if err := w.publisher.Publish(ctx, UnlockChannel, jsonData); err != nil {
		w.logger.Warnw("Failed to publish achievement notification", "user", in.UserID, "achievement", achievementID, "error", err)
		return
	}
	w.logger.Debugw("Achievement notification published", "user", in.UserID, "achievement", achievementID)
}
