package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type syncFixture struct {
	engine  *SyncEngine
	store   *store.MemoryStore
	fetcher *MockFetcher
	archive *MockArchiver
	pub     *MockPublisher
	clock   *testClock
}

func newSyncFixture(t *testing.T, now time.Time, mutate func(*SyncConfig)) *syncFixture {
	t.Helper()
	f := &syncFixture{
		store:   store.NewMemoryStore(),
		fetcher: NewMockFetcher(),
		archive: &MockArchiver{},
		pub:     &MockPublisher{},
		clock:   &testClock{t: now},
	}
	f.store.PutUser(models.User{ID: 1, Username: "alice", ProviderUsername: "alice", APIKey: "k1", TimeZone: "UTC"})
	f.store.PutUser(models.User{ID: 2, Username: "bob", ProviderUsername: "bob", APIKey: "k2", TimeZone: "America/New_York"})
	f.store.PutUser(models.User{ID: 3, Username: "carol", ProviderUsername: "carol"})

	cfg := SyncConfig{
		DailyTTL:    5 * time.Minute,
		WeeklyTTL:   30 * time.Minute,
		Concurrency: 4,
		Clock:       f.clock,
		Logger:      zap.NewNop().Sugar(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	awarder := NewAchievementWorker(f.store, f.pub, cfg.Logger)
	f.engine = NewSyncEngine(cfg, f.fetcher, f.store, awarder, f.archive)
	return f
}

func TestDailyTickFetchesPersistsAndSkipsFresh(t *testing.T) {
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, now, nil)
	f.fetcher.Daily["alice"] = models.FetchResult{Status: models.StatusOK, TotalSeconds: 2 * 3600}
	f.fetcher.Daily["bob"] = models.FetchResult{Status: models.StatusPrivate}

	ctx := context.Background()
	if err := f.engine.runDailyTick(ctx); err != nil {
		t.Fatal(err)
	}

	calls := f.fetcher.dailyCalls()
	sort.Strings(calls)
	// bob is still on 2024-03-04 in New York; carol has no credential
	want := []string{"alice@2024-03-04", "bob@2024-03-04"}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Fatalf("unexpected fetches %v", calls)
	}

	stats, err := f.store.GetDailyStats(ctx, []int64{1, 2}, "2024-03-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", len(stats))
	}
	for _, s := range stats {
		if s.UserID == 2 && (s.Status != models.StatusPrivate || s.TotalSeconds != 0) {
			t.Errorf("private fetch should persist as private: %+v", s)
		}
	}
	if f.store.GrantCount() != 1 {
		t.Errorf("alice should have unlocked warm up, grants=%d", f.store.GrantCount())
	}
	if len(f.archive.Records) != 2 {
		t.Errorf("expected 2 archive records, got %d", len(f.archive.Records))
	}

	f.clock.Advance(time.Minute)
	if err := f.engine.runDailyTick(ctx); err != nil {
		t.Fatal(err)
	}
	if got := len(f.fetcher.dailyCalls()); got != 2 {
		t.Errorf("fresh entries should be skipped, saw %d fetches", got)
	}

	f.clock.Advance(5 * time.Minute)
	if err := f.engine.runDailyTick(ctx); err != nil {
		t.Fatal(err)
	}
	if got := len(f.fetcher.dailyCalls()); got != 4 {
		t.Errorf("stale entries should be refetched, saw %d fetches", got)
	}
}

func TestYesterdayGraceWindow(t *testing.T) {
	// 00:30 UTC is inside alice's grace window; bob is at 19:30 the day before
	now := time.Date(2024, 3, 5, 0, 30, 0, 0, time.UTC)
	f := newSyncFixture(t, now, func(c *SyncConfig) { c.YesterdayGrace = time.Hour })

	if err := f.engine.runDailyTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	calls := f.fetcher.dailyCalls()
	sort.Strings(calls)
	want := []string{"alice@2024-03-04", "alice@2024-03-05", "bob@2024-03-04"}
	if len(calls) != len(want) {
		t.Fatalf("unexpected fetches %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("fetch %d = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestSyncUserBypassCache(t *testing.T) {
	// a Sunday, so the rolling window is exactly 2024-W10
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, now, nil)
	f.fetcher.Weekly["alice"] = models.FetchResult{Status: models.StatusOK, TotalSeconds: 21 * 3600, DailyAverageSeconds: 3 * 3600}
	alice, _ := f.store.GetUser(context.Background(), 1)

	res, err := f.engine.SyncUser(context.Background(), alice, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Weekly.TotalSeconds != 21*3600 || res.Weekly.DailyAverageSeconds != 3*3600 {
		t.Errorf("unexpected weekly %+v", res.Weekly)
	}
	if res.Daily.Status != models.StatusNotFound {
		t.Errorf("daily status = %s", res.Daily.Status)
	}

	if _, err := f.engine.SyncUser(context.Background(), alice, false); err != nil {
		t.Fatal(err)
	}
	if f.fetcher.WeeklyCalls != 1 {
		t.Errorf("cached sync should not refetch, calls=%d", f.fetcher.WeeklyCalls)
	}
	if _, err := f.engine.SyncUser(context.Background(), alice, true); err != nil {
		t.Fatal(err)
	}
	if f.fetcher.WeeklyCalls != 2 {
		t.Errorf("bypass should refetch, calls=%d", f.fetcher.WeeklyCalls)
	}

	grants, err := f.store.ListAchievementGrants(context.Background(), store.GrantFilter{
		UserIDs: []int64{1}, ContextKind: models.ContextWeekly,
	})
	if err != nil {
		t.Fatal(err)
	}
	// steady + marathon, both under the ISO week of 2024-03-10
	if len(grants) != 2 {
		t.Fatalf("expected 2 weekly grants, got %d", len(grants))
	}
	for _, g := range grants {
		if g.ContextKey != "2024-W10" {
			t.Errorf("weekly grant keyed %q, want 2024-W10", g.ContextKey)
		}
	}
}

func TestSyncUserWithoutCredential(t *testing.T) {
	f := newSyncFixture(t, time.Now(), nil)
	carol, _ := f.store.GetUser(context.Background(), 3)
	if _, err := f.engine.SyncUser(context.Background(), carol, true); err == nil {
		t.Error("expected error for user without credential")
	}
}

func TestGetStatsServesFromMemoryOnly(t *testing.T) {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, now, nil)
	f.fetcher.Weekly["alice"] = models.FetchResult{Status: models.StatusOK, TotalSeconds: 3600}

	if got := f.engine.GetStats([]int64{1, 2}, ""); len(got) != 0 {
		t.Fatalf("empty cache should serve nothing, got %d", len(got))
	}
	if f.fetcher.WeeklyCalls != 0 {
		t.Fatal("GetStats must never fetch")
	}

	if err := f.engine.runWeeklyTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := f.engine.GetStats([]int64{1, 2}, DefaultRangeKey)
	if len(got) != 2 {
		t.Fatalf("expected 2 cached stats, got %d", len(got))
	}
	if got[0].Username != "alice" || got[0].TotalSeconds != 3600 {
		t.Errorf("unexpected first stat %+v", got[0])
	}
}

func TestGetDailyStatsFallsBackToStore(t *testing.T) {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, now, nil)
	ctx := context.Background()
	_ = f.store.UpsertDailyStat(ctx, models.DailyStat{
		StatCore: models.StatCore{UserID: 2, Status: models.StatusOK, TotalSeconds: 99, FetchedAt: now},
		DateKey:  "2024-03-05",
	})

	got, err := f.engine.GetDailyStats(ctx, []int64{1, 2}, "2024-03-05")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UserID != 2 || got[0].Username != "bob" {
		t.Errorf("unexpected stats %+v", got)
	}
	if len(f.fetcher.dailyCalls()) != 0 {
		t.Error("reads must not call the provider")
	}
}

func TestPersistFailureIsolatedPerUser(t *testing.T) {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, now, nil)
	f.fetcher.Daily["alice"] = models.FetchResult{Status: models.StatusOK, TotalSeconds: 60}
	f.fetcher.Daily["bob"] = models.FetchResult{Status: models.StatusOK, TotalSeconds: 120}

	var failed sync.Once
	f.store.Hook = func(op string) error {
		if op != "UpsertDailyStat" {
			return nil
		}
		var err error
		failed.Do(func() { err = errors.New("connection reset") })
		return err
	}

	if err := f.engine.runDailyTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.store.Hook = nil
	stats, _ := f.store.GetDailyStats(context.Background(), []int64{1, 2}, "2024-03-06")
	if len(stats) != 1 {
		t.Fatalf("the other user should still persist, got %d rows", len(stats))
	}

	// the failed user was not cached, so the next tick retries it
	if err := f.engine.runDailyTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(f.fetcher.dailyCalls()); got != 3 {
		t.Errorf("expected one retry fetch, saw %d fetches", got)
	}
}

func TestStartRunsInitialTickAndStopWaits(t *testing.T) {
	f := newSyncFixture(t, time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC), func(c *SyncConfig) {
		c.DailyInterval = time.Hour
		c.WeeklyInterval = time.Hour
	})
	f.engine.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for f.fetcher.WeeklyCallsSafe() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	f.engine.Stop()
	f.engine.Stop()

	if got := f.fetcher.WeeklyCallsSafe(); got != 2 {
		t.Errorf("expected initial weekly tick for both users, got %d", got)
	}
}

func TestDailyTickPrunesOldCacheEntries(t *testing.T) {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, now, nil)
	old := models.DailyStat{StatCore: models.StatCore{UserID: 1, Status: models.StatusOK}}
	f.engine.daily.Put(1, "2024-02-20", old, now.Add(-15*24*time.Hour))
	f.engine.daily.Put(2, "2024-03-03", old, now.Add(-3*24*time.Hour))
	f.engine.daily.Put(2, "2024-03-04", old, now.Add(-2*24*time.Hour))

	if err := f.engine.runDailyTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		userID int64
		key    string
		want   bool
	}{
		{1, "2024-02-20", false},
		{2, "2024-03-03", false},
		{2, "2024-03-04", true},
		{1, "2024-03-06", true},
		{2, "2024-03-06", true},
	} {
		if _, ok := f.engine.daily.Get(tc.userID, tc.key); ok != tc.want {
			t.Errorf("cached %d@%s = %v, want %v", tc.userID, tc.key, ok, tc.want)
		}
	}
}

func TestWeeklyAwardsFollowCalendarWeek(t *testing.T) {
	ctx := context.Background()
	sunday := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
	f := newSyncFixture(t, sunday, nil)
	alice, _ := f.store.GetUser(ctx, 1)

	// the provider keeps reporting the Sunday burst in its rolling window
	f.fetcher.Weekly["alice"] = models.FetchResult{Status: models.StatusOK, TotalSeconds: 20 * 3600}
	f.fetcher.Daily["alice"] = models.FetchResult{Status: models.StatusOK, TotalSeconds: 20 * 3600}
	if _, err := f.engine.SyncUser(ctx, alice, true); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(14 * time.Hour) // Monday 10:00, 2024-W11
	f.fetcher.Daily["alice"] = models.FetchResult{Status: models.StatusOK, TotalSeconds: 0}
	if _, err := f.engine.SyncUser(ctx, alice, true); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(24 * time.Hour) // Tuesday
	if _, err := f.engine.SyncUser(ctx, alice, true); err != nil {
		t.Fatal(err)
	}

	grants, err := f.store.ListAchievementGrants(ctx, store.GrantFilter{
		UserIDs: []int64{1}, AchievementIDs: []string{"weekly_marathon"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 || grants[0].ContextKey != "2024-W10" {
		t.Errorf("expected a single marathon for 2024-W10, got %+v", grants)
	}
}

func TestWeeklyAwardSumsDailyRowsOfTheWeek(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC) // Wednesday, 2024-W10
	f := newSyncFixture(t, now, nil)
	// Monday and Tuesday already persisted; Sunday before belongs to W09
	for _, d := range []struct {
		key     string
		seconds int64
		status  models.Status
	}{
		{"2024-03-03", 30 * 3600, models.StatusOK},
		{"2024-03-04", 4 * 3600, models.StatusOK},
		{"2024-03-05", 3 * 3600, models.StatusOK},
		{"2024-03-02", 9 * 3600, models.StatusPrivate},
	} {
		if err := f.store.UpsertDailyStat(ctx, models.DailyStat{
			StatCore: models.StatCore{UserID: 1, Status: d.status, TotalSeconds: d.seconds, FetchedAt: now.Add(-24 * time.Hour)},
			DateKey:  d.key,
		}); err != nil {
			t.Fatal(err)
		}
	}
	f.fetcher.Daily["alice"] = models.FetchResult{Status: models.StatusOK, TotalSeconds: 4 * 3600}

	if err := f.engine.runDailyTick(ctx); err != nil {
		t.Fatal(err)
	}

	grants, err := f.store.ListAchievementGrants(ctx, store.GrantFilter{
		UserIDs: []int64{1}, ContextKind: models.ContextWeekly,
	})
	if err != nil {
		t.Fatal(err)
	}
	// 4h + 3h + 4h = 11h: steady only, the W09 Sunday does not count
	if len(grants) != 1 || grants[0].AchievementID != "weekly_steady" || grants[0].ContextKey != "2024-W10" {
		t.Errorf("unexpected weekly grants %+v", grants)
	}
}
