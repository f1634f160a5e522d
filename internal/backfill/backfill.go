// Package backfill rebuilds achievement grants from persisted stat history.
// It replays the same award entry points the live sync uses, so running it
// repeatedly is safe: a second run creates nothing.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/devpulse/stats-api/internal/logic"
	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/store"
)

var (
	backfillRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devpulse_backfill_retries_total",
		Help: "Store calls retried by the backfill job after a transient error",
	})
	backfillCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devpulse_backfill_grants_created_total",
		Help: "Achievement grants created by the backfill job",
	})
)

// Store is what the backfill job reads and writes.
type Store interface {
	store.HistoryStore
	logic.GrantStore
	GetUser(ctx context.Context, userID int64) (models.User, error)
}

// Options tunes retry and progress reporting.
type Options struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	ProgressEvery int

	Logger *zap.SugaredLogger
	Clock  logic.Clock
	// Sleep waits between retries; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) setDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 500
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.Clock == nil {
		o.Clock = logic.SystemClock{}
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report summarises one run.
type Report struct {
	RunID               uuid.UUID     `json:"run_id"`
	DailyRows           int           `json:"daily_rows"`
	WeeklyRows          int           `json:"weekly_rows"`
	SyntheticWeeks      int           `json:"synthetic_weeks"`
	AchievementsCreated int           `json:"achievements_created"`
	Retries             int           `json:"retries"`
	Duration            time.Duration `json:"duration"`
}

type runner struct {
	store  Store
	opts   Options
	log    *zap.SugaredLogger
	report *Report
	zones  map[int64]string
	done   int
}

// RunAchievementsBackfill replays daily rows, weekly rows and synthetic
// weekly buckets through the award functions. A weekly row only counts when
// it was fetched on a local Sunday, so its window is one calendar week.
// Work is sequential. Only
// transient store errors are retried; anything else aborts the run.
func RunAchievementsBackfill(ctx context.Context, st Store, opts Options) (out Report, err error) {
	opts.setDefaults()
	report := Report{RunID: uuid.New()}
	r := &runner{
		store:  st,
		opts:   opts,
		log:    opts.Logger.With("run", report.RunID.String()),
		report: &report,
		zones:  make(map[int64]string),
	}
	started := opts.Clock.Now()
	defer func() { out.Duration = opts.Clock.Now().Sub(started) }()

	var daily []models.DailyStat
	if err := r.withRetry(ctx, "list daily history", func(ctx context.Context) error {
		var err error
		daily, err = st.ListDailyHistory(ctx)
		return err
	}); err != nil {
		return report, err
	}
	var weekly []models.WeeklyStat
	if err := r.withRetry(ctx, "list weekly history", func(ctx context.Context) error {
		var err error
		weekly, err = st.ListWeeklyHistory(ctx)
		return err
	}); err != nil {
		return report, err
	}

	sort.SliceStable(daily, func(i, j int) bool {
		if daily[i].UserID != daily[j].UserID {
			return daily[i].UserID < daily[j].UserID
		}
		return daily[i].DateKey < daily[j].DateKey
	})
	sort.SliceStable(weekly, func(i, j int) bool {
		if weekly[i].UserID != weekly[j].UserID {
			return weekly[i].UserID < weekly[j].UserID
		}
		return weekly[i].FetchedAt.Before(weekly[j].FetchedAt)
	})

	total := len(daily) + len(weekly)
	r.log.Infow("Achievement backfill started", "dailyRows", len(daily), "weeklyRows", len(weekly))

	grants := retryingGrants{r: r}

	for _, d := range daily {
		res, err := logic.AwardDailyAchievements(ctx, grants, logic.AwardInput{
			UserID:       d.UserID,
			ContextKey:   d.DateKey,
			Status:       d.Status,
			TotalSeconds: d.TotalSeconds,
			Payload:      d.Payload,
			FetchedAt:    d.FetchedAt,
		})
		if err != nil {
			return report, fmt.Errorf("backfill daily user=%d date=%s: %w", d.UserID, d.DateKey, err)
		}
		r.created(len(res.Created))
		report.DailyRows++
		r.progress(total)
	}

	// weeks that already have a qualifying weekly row are not synthesised
	covered := make(map[int64]map[string]struct{})
	for _, w := range weekly {
		report.WeeklyRows++
		r.progress(total)
		dateKey, err := r.localDateKey(ctx, w.UserID, w.FetchedAt)
		if err != nil {
			return report, err
		}
		weekKey, ok, err := logic.RollingWindowWeek(dateKey)
		if err != nil {
			return report, err
		}
		if !ok {
			continue
		}
		if w.Status == models.StatusOK {
			if covered[w.UserID] == nil {
				covered[w.UserID] = make(map[string]struct{})
			}
			covered[w.UserID][weekKey] = struct{}{}
		}
		res, err := logic.AwardWeeklyAchievements(ctx, grants, logic.AwardInput{
			UserID:       w.UserID,
			ContextKey:   weekKey,
			Status:       w.Status,
			TotalSeconds: w.TotalSeconds,
			Payload:      w.Payload,
			FetchedAt:    w.FetchedAt,
		})
		if err != nil {
			return report, fmt.Errorf("backfill weekly user=%d week=%s: %w", w.UserID, weekKey, err)
		}
		r.created(len(res.Created))
	}

	buckets, err := logic.BucketDailyStats(daily)
	if err != nil {
		return report, err
	}
	for _, b := range buckets {
		if _, ok := covered[b.UserID][b.WeekKey]; ok {
			continue
		}
		res, err := logic.AwardWeeklyAchievements(ctx, grants, b.AwardInput())
		if err != nil {
			return report, fmt.Errorf("backfill synthetic week user=%d week=%s: %w", b.UserID, b.WeekKey, err)
		}
		r.created(len(res.Created))
		report.SyntheticWeeks++
	}

	r.log.Infow("Achievement backfill finished",
		"dailyRows", report.DailyRows,
		"weeklyRows", report.WeeklyRows,
		"syntheticWeeks", report.SyntheticWeeks,
		"created", report.AchievementsCreated,
		"retries", report.Retries,
	)
	return report, nil
}

func (r *runner) localDateKey(ctx context.Context, userID int64, fetchedAt time.Time) (string, error) {
	tz, ok := r.zones[userID]
	if !ok {
		var u models.User
		err := r.withRetry(ctx, "get user", func(ctx context.Context) error {
			var err error
			u, err = r.store.GetUser(ctx, userID)
			return err
		})
		switch {
		case err == nil:
			tz = u.TimeZone
		case errors.Is(err, store.ErrNotFound):
			r.log.Warnw("User not found, using UTC", "user", userID)
		default:
			return "", err
		}
		r.zones[userID] = tz
	}
	return logic.DateKeyInTimeZone(fetchedAt, tz), nil
}

func (r *runner) created(n int) {
	r.report.AchievementsCreated += n
	backfillCreated.Add(float64(n))
}

func (r *runner) progress(total int) {
	r.done++
	if r.done%r.opts.ProgressEvery == 0 || r.done == total {
		r.log.Infow("Backfill progress", "done", r.done, "total", total, "created", r.report.AchievementsCreated)
	}
}

// withRetry runs fn, retrying transient errors with exponential backoff.
func (r *runner) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !store.IsTransient(err) || attempt >= r.opts.MaxRetries {
			break
		}
		delay := r.backoff(attempt)
		r.report.Retries++
		backfillRetries.Inc()
		r.log.Warnw("Transient store error, retrying", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
		if serr := r.opts.Sleep(ctx, delay); serr != nil {
			return fmt.Errorf("%s: %w", op, serr)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// backoff is BaseDelay * 2^attempt, capped at MaxDelay.
func (r *runner) backoff(attempt int) time.Duration {
	d := float64(r.opts.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(r.opts.MaxDelay) {
		return r.opts.MaxDelay
	}
	return time.Duration(d)
}

type retryingGrants struct {
	r *runner
}

func (g retryingGrants) GrantAchievement(ctx context.Context, grant models.AchievementGrant) (bool, error) {
	var created bool
	err := g.r.withRetry(ctx, "grant achievement", func(ctx context.Context) error {
		var err error
		created, err = g.r.store.GrantAchievement(ctx, grant)
		return err
	})
	return created, err
}
