package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devpulse/stats-api/internal/logic"
	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/provider"
	"github.com/devpulse/stats-api/internal/store"
)

// DefaultRangeKey is the provider's rolling weekly window.
const DefaultRangeKey = "last_7_days"

// SyncStore is the persistence the sync engine needs.
type SyncStore interface {
	store.StatStore
	ListSyncUsers(ctx context.Context) ([]models.User, error)
}

// Awarder evaluates achievements for a fetch result.
type Awarder interface {
	ProcessDaily(ctx context.Context, in logic.AwardInput) (logic.AwardResult, error)
	ProcessWeekly(ctx context.Context, in logic.AwardInput) (logic.AwardResult, error)
}

// Archiver receives every classified fetch. Enqueue must not block.
type Archiver interface {
	Enqueue(rec FetchRecord) bool
}

// SyncConfig configures the sync engine
type SyncConfig struct {
	DailyInterval  time.Duration
	WeeklyInterval time.Duration
	DailyTTL       time.Duration
	WeeklyTTL      time.Duration
	RangeKey       string
	Concurrency    int

	// YesterdayGrace re-syncs the previous local day for this long after a
	// user's midnight so late heartbeats land on the right date.
	YesterdayGrace time.Duration

	Clock  logic.Clock
	Logger *zap.SugaredLogger
}

// SyncEngine pulls provider stats on a schedule and on demand, persists
// them, caches them for leaderboard reads and feeds achievements.
type SyncEngine struct {
	cfg      SyncConfig
	fetcher  provider.Fetcher
	store    SyncStore
	awarder  Awarder
	archiver Archiver
	logger   *zap.SugaredLogger

	daily  *StatCache[models.DailyStat]
	weekly *StatCache[models.WeeklyStat]

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewSyncEngine wires the engine. awarder and archiver may be nil.
func NewSyncEngine(cfg SyncConfig, fetcher provider.Fetcher, st SyncStore, awarder Awarder, archiver Archiver) *SyncEngine {
	if cfg.DailyInterval <= 0 {
		cfg.DailyInterval = 10 * time.Minute
	}
	if cfg.WeeklyInterval <= 0 {
		cfg.WeeklyInterval = time.Hour
	}
	if cfg.DailyTTL <= 0 {
		cfg.DailyTTL = 5 * time.Minute
	}
	if cfg.WeeklyTTL <= 0 {
		cfg.WeeklyTTL = 30 * time.Minute
	}
	if cfg.RangeKey == "" {
		cfg.RangeKey = DefaultRangeKey
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Clock == nil {
		cfg.Clock = logic.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &SyncEngine{
		cfg:      cfg,
		fetcher:  fetcher,
		store:    st,
		awarder:  awarder,
		archiver: archiver,
		logger:   cfg.Logger,
		daily:    NewStatCache[models.DailyStat](),
		weekly:   NewStatCache[models.WeeklyStat](),
	}
}

// RangeKey returns the weekly range this engine syncs.
func (e *SyncEngine) RangeKey() string { return e.cfg.RangeKey }

// Start warms the weekly cache from the store and launches both loops.
func (e *SyncEngine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	if err := e.warm(ctx); err != nil {
		e.logger.Warnw("Failed to warm weekly cache", "error", err)
	}

	e.wg.Add(2)
	go e.loop(loopCtx, "daily", e.cfg.DailyInterval, e.runDailyTick)
	go e.loop(loopCtx, "weekly", e.cfg.WeeklyInterval, e.runWeeklyTick)

	e.logger.Infow("Sync engine started",
		"dailyInterval", e.cfg.DailyInterval,
		"weeklyInterval", e.cfg.WeeklyInterval,
		"rangeKey", e.cfg.RangeKey,
	)
}

// Stop cancels the tickers and waits for the running tick to finish.
// In-flight fetches are not interrupted.
func (e *SyncEngine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("Sync engine stopped")
}

func (e *SyncEngine) loop(ctx context.Context, kind string, interval time.Duration, tick func(context.Context) error) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		start := time.Now()
		if err := tick(context.WithoutCancel(ctx)); err != nil {
			e.logger.Errorw("Sync tick failed", "kind", kind, "error", err)
		}
		syncTickDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}

	run()
	for {
		select {
		case <-ticker.C:
			run()
		case <-ctx.Done():
			return
		}
	}
}

func (e *SyncEngine) warm(ctx context.Context) error {
	users, err := e.store.ListSyncUsers(ctx)
	if err != nil {
		return err
	}
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	stats, err := e.store.GetWeeklyStats(ctx, ids, e.cfg.RangeKey)
	if err != nil {
		return err
	}
	for _, s := range stats {
		e.weekly.Put(s.UserID, s.RangeKey, s, s.FetchedAt)
	}
	return nil
}

// forEachUser fans out over the sync users. One user's failure never stops
// the others; errors are logged and counted only.
func (e *SyncEngine) forEachUser(ctx context.Context, fn func(context.Context, models.User) error) error {
	users, err := e.store.ListSyncUsers(ctx)
	if err != nil {
		return fmt.Errorf("list sync users: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for _, u := range users {
		g.Go(func() error {
			if err := fn(ctx, u); err != nil {
				e.logger.Warnw("User sync failed", "user", u.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// dailyRetention is how many days before the UTC date a daily cache entry
// survives. Every zone's yesterday is within two days of the UTC date.
const dailyRetention = 2

func (e *SyncEngine) runDailyTick(ctx context.Context) error {
	now := e.cfg.Clock.Now()
	e.pruneDaily(now)
	return e.forEachUser(ctx, func(ctx context.Context, u models.User) error {
		today := logic.DateKeyInTimeZone(now, u.TimeZone)
		_, errToday := e.syncDaily(ctx, u, today, false)

		var errYesterday error
		if e.inYesterdayGrace(now, u.TimeZone) {
			if yesterday, err := logic.ShiftDateKey(today, -1); err == nil {
				_, errYesterday = e.syncDaily(ctx, u, yesterday, false)
			}
		}
		return errors.Join(errToday, errYesterday)
	})
}

func (e *SyncEngine) pruneDaily(now time.Time) {
	cutoff := now.UTC().AddDate(0, 0, -dailyRetention).Format("2006-01-02")
	if n := e.daily.PruneBefore(cutoff); n > 0 {
		e.logger.Debugw("Pruned daily cache", "removed", n, "before", cutoff)
	}
	syncCacheEntries.WithLabelValues("daily").Set(float64(e.daily.Len()))
}

func (e *SyncEngine) runWeeklyTick(ctx context.Context) error {
	return e.forEachUser(ctx, func(ctx context.Context, u models.User) error {
		_, err := e.syncWeekly(ctx, u, false)
		return err
	})
}

func (e *SyncEngine) inYesterdayGrace(now time.Time, tz string) bool {
	if e.cfg.YesterdayGrace <= 0 {
		return false
	}
	local := now.In(logic.LoadLocation(tz))
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return local.Sub(midnight) < e.cfg.YesterdayGrace
}

// SyncResult is what an on-demand sync produced.
type SyncResult struct {
	Daily  models.DailyStat  `json:"daily"`
	Weekly models.WeeklyStat `json:"weekly"`
}

// SyncUser syncs today's daily stat and the weekly range for one user.
// With bypassCache the TTL is ignored and the provider is always called.
func (e *SyncEngine) SyncUser(ctx context.Context, u models.User, bypassCache bool) (SyncResult, error) {
	var res SyncResult
	if u.APIKey == "" {
		return res, fmt.Errorf("sync user %d: no provider credential", u.ID)
	}
	today := logic.DateKeyInTimeZone(e.cfg.Clock.Now(), u.TimeZone)

	daily, errDaily := e.syncDaily(ctx, u, today, bypassCache)
	weekly, errWeekly := e.syncWeekly(ctx, u, bypassCache)
	res.Daily, res.Weekly = daily, weekly
	return res, errors.Join(errDaily, errWeekly)
}

// syncDaily returns the cached stat when fresh, otherwise fetches. The
// returned error only reports persistence failures; provider failures are
// part of the stat.
func (e *SyncEngine) syncDaily(ctx context.Context, u models.User, dateKey string, bypass bool) (models.DailyStat, error) {
	now := e.cfg.Clock.Now()
	if !bypass && e.daily.Fresh(u.ID, dateKey, now, e.cfg.DailyTTL) {
		syncSkipped.WithLabelValues("daily").Inc()
		stat, _ := e.daily.Get(u.ID, dateKey)
		return stat, nil
	}

	res := e.fetcher.FetchDaily(ctx, provider.CredentialFor(u), dateKey, u.TimeZone)
	fetchedAt := e.cfg.Clock.Now()
	stat := models.DailyStat{StatCore: res.Core(u.ID, u.Username, fetchedAt), DateKey: dateKey}
	syncFetches.WithLabelValues("daily", string(stat.Status)).Inc()

	if err := e.store.UpsertDailyStat(ctx, stat); err != nil {
		syncPersistFailures.WithLabelValues("daily").Inc()
		return stat, fmt.Errorf("persist daily stat %s: %w", dateKey, err)
	}
	e.daily.Put(u.ID, dateKey, stat, fetchedAt)
	e.archive(models.ContextDaily, dateKey, stat.StatCore)

	if e.awarder != nil {
		// errors are logged and counted by the awarder
		_, _ = e.awarder.ProcessDaily(ctx, logic.AwardInput{
			UserID:       u.ID,
			ContextKey:   dateKey,
			Status:       stat.Status,
			TotalSeconds: stat.TotalSeconds,
			Payload:      stat.Payload,
			FetchedAt:    fetchedAt,
		})
		if err := e.awardCalendarWeek(ctx, u.ID, dateKey); err != nil {
			e.logger.Warnw("Failed to evaluate calendar week", "user", u.ID, "date", dateKey, "error", err)
		}
	}
	return stat, nil
}

// awardCalendarWeek evaluates weekly rules against the sum of the user's
// daily rows in the ISO week containing dateKey.
func (e *SyncEngine) awardCalendarWeek(ctx context.Context, userID int64, dateKey string) error {
	weekKey, err := logic.ISOWeekKey(dateKey)
	if err != nil {
		return err
	}
	keys, err := logic.WeekDateKeys(weekKey)
	if err != nil {
		return err
	}
	var days []models.DailyStat
	for _, key := range keys {
		stats, err := e.GetDailyStats(ctx, []int64{userID}, key)
		if err != nil {
			return err
		}
		days = append(days, stats...)
	}
	buckets, err := logic.BucketDailyStats(days)
	if err != nil {
		return err
	}
	for _, b := range buckets {
		_, _ = e.awarder.ProcessWeekly(ctx, b.AwardInput())
	}
	return nil
}

func (e *SyncEngine) syncWeekly(ctx context.Context, u models.User, bypass bool) (models.WeeklyStat, error) {
	rangeKey := e.cfg.RangeKey
	now := e.cfg.Clock.Now()
	if !bypass && e.weekly.Fresh(u.ID, rangeKey, now, e.cfg.WeeklyTTL) {
		syncSkipped.WithLabelValues("weekly").Inc()
		stat, _ := e.weekly.Get(u.ID, rangeKey)
		return stat, nil
	}

	res := e.fetcher.FetchWeekly(ctx, provider.CredentialFor(u), rangeKey)
	fetchedAt := e.cfg.Clock.Now()
	stat := models.WeeklyStat{StatCore: res.Core(u.ID, u.Username, fetchedAt), RangeKey: rangeKey}
	if stat.Status == models.StatusOK {
		stat.DailyAverageSeconds = res.DailyAverageSeconds
	}
	syncFetches.WithLabelValues("weekly", string(stat.Status)).Inc()

	if err := e.store.UpsertWeeklyStat(ctx, stat); err != nil {
		syncPersistFailures.WithLabelValues("weekly").Inc()
		return stat, fmt.Errorf("persist weekly stat %s: %w", rangeKey, err)
	}
	e.weekly.Put(u.ID, rangeKey, stat, fetchedAt)
	e.archive(models.ContextWeekly, rangeKey, stat.StatCore)

	if e.awarder == nil {
		return stat, nil
	}
	// only a window that ends on the local Sunday is a single calendar week
	weekKey, ok, err := logic.RollingWindowWeek(logic.DateKeyInTimeZone(fetchedAt, u.TimeZone))
	if err != nil {
		return stat, err
	}
	if ok {
		_, _ = e.awarder.ProcessWeekly(ctx, logic.AwardInput{
			UserID:       u.ID,
			ContextKey:   weekKey,
			Status:       stat.Status,
			TotalSeconds: stat.TotalSeconds,
			Payload:      stat.Payload,
			FetchedAt:    fetchedAt,
		})
	}
	return stat, nil
}

func (e *SyncEngine) archive(kind models.ContextKind, periodKey string, core models.StatCore) {
	if e.archiver == nil {
		return
	}
	e.archiver.Enqueue(NewFetchRecord(kind, periodKey, core))
}

// GetStats serves weekly stats from memory only; it never fetches. Users
// without a cached entry are absent from the result.
func (e *SyncEngine) GetStats(userIDs []int64, rangeKey string) []models.WeeklyStat {
	if rangeKey == "" {
		rangeKey = e.cfg.RangeKey
	}
	stats, _ := e.weekly.Snapshot(userIDs, rangeKey)
	return stats
}

// GetDailyStats serves daily stats from memory, reading cache misses from
// the store. It never calls the provider.
func (e *SyncEngine) GetDailyStats(ctx context.Context, userIDs []int64, dateKey string) ([]models.DailyStat, error) {
	stats, missing := e.daily.Snapshot(userIDs, dateKey)
	if len(missing) == 0 {
		return stats, nil
	}
	persisted, err := e.store.GetDailyStats(ctx, missing, dateKey)
	if err != nil {
		return nil, fmt.Errorf("load daily stats %s: %w", dateKey, err)
	}
	return append(stats, persisted...), nil
}
