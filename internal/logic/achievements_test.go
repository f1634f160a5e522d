package logic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/store"
)

var fetchedAt = time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC)

func TestMeasure(t *testing.T) {
	p := &models.StatPayload{
		Languages: map[string]int64{"Go": 7200, "SQL": 600, "YAML": 599},
		Editors:   map[string]int64{"VS Code": 6000, "vim": 1200},
		Projects:  map[string]int64{"api": 8000},
	}
	tests := []struct {
		kind RuleKind
		want int64
	}{
		{KindTotalSeconds, 9000},
		{KindDistinctLanguages, 2},
		{KindDistinctEditors, 2},
		{KindDistinctProjects, 1},
		{KindTopLanguageSeconds, 7200},
	}
	for _, tt := range tests {
		if got := Measure(tt.kind, 9000, p); got != tt.want {
			t.Errorf("Measure(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
	if Measure(KindDistinctLanguages, 9000, nil) != 0 {
		t.Error("nil payload should measure zero")
	}
}

func TestEvaluate(t *testing.T) {
	rule, ok := LookupAchievement("daily_warm_up")
	if !ok {
		t.Fatal("warm up rule missing")
	}
	if !rule.Evaluate(models.StatusOK, 3600, nil, models.ContextDaily) {
		t.Error("threshold is inclusive")
	}
	if rule.Evaluate(models.StatusOK, 3599, nil, models.ContextDaily) {
		t.Error("below threshold should not match")
	}
	if rule.Evaluate(models.StatusOK, 9999, nil, models.ContextWeekly) {
		t.Error("daily rule must not match a weekly context")
	}
	if rule.Evaluate(models.StatusPrivate, 9999, nil, models.ContextDaily) {
		t.Error("non-ok fetches never qualify")
	}
}

func TestAwardDailyAchievementsIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	in := AwardInput{
		UserID:       1,
		ContextKey:   "2024-03-06",
		Status:       models.StatusOK,
		TotalSeconds: 5 * 3600,
		Payload: &models.StatPayload{
			Languages: map[string]int64{"Go": 3600, "TypeScript": 1200, "SQL": 600},
			Editors:   map[string]int64{"VS Code": 18000},
		},
		FetchedAt: fetchedAt,
	}

	first, err := AwardDailyAchievements(ctx, st, in)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"daily_warm_up", "daily_deep_focus", AchievementDailyPolyglot}
	if !equalSlices(first.Matched, want) || !equalSlices(first.Created, want) {
		t.Fatalf("first run matched=%v created=%v, want %v", first.Matched, first.Created, want)
	}

	second, err := AwardDailyAchievements(ctx, st, in)
	if err != nil {
		t.Fatal(err)
	}
	if !equalSlices(second.Matched, want) || len(second.Created) != 0 {
		t.Errorf("second run matched=%v created=%v", second.Matched, second.Created)
	}
	if st.GrantCount() != 3 {
		t.Errorf("grant rows = %d, want 3", st.GrantCount())
	}
}

func TestAwardWeeklyAchievements(t *testing.T) {
	st := store.NewMemoryStore()
	res, err := AwardWeeklyAchievements(context.Background(), st, AwardInput{
		UserID: 2, ContextKey: "2024-W10", Status: models.StatusOK, TotalSeconds: 25 * 3600, FetchedAt: fetchedAt,
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"weekly_steady", AchievementWeeklyMarathon}; !equalSlices(res.Created, want) {
		t.Errorf("created = %v, want %v", res.Created, want)
	}

	gs, _ := st.ListAchievementGrants(context.Background(), store.GrantFilter{UserIDs: []int64{2}})
	for _, g := range gs {
		if g.ContextKind != models.ContextWeekly || g.ContextKey != "2024-W10" || !g.AwardedAt.Equal(fetchedAt) {
			t.Errorf("unexpected grant %+v", g)
		}
	}
}

func TestAwardSkipsNonOK(t *testing.T) {
	st := store.NewMemoryStore()
	res, err := AwardDailyAchievements(context.Background(), st, AwardInput{
		UserID: 1, ContextKey: "2024-03-06", Status: models.StatusError, TotalSeconds: 99999,
	})
	if err != nil || len(res.Matched) != 0 || st.GrantCount() != 0 {
		t.Errorf("res=%+v err=%v grants=%d", res, err, st.GrantCount())
	}
}

func TestAwardRequiresContextKey(t *testing.T) {
	_, err := AwardDailyAchievements(context.Background(), store.NewMemoryStore(), AwardInput{
		UserID: 1, Status: models.StatusOK, TotalSeconds: 3600,
	})
	if err == nil {
		t.Error("expected error for empty context key")
	}
}

func TestAwardPropagatesStoreError(t *testing.T) {
	st := store.NewMemoryStore()
	boom := errors.New("boom")
	st.Hook = func(op string) error {
		if op == "GrantAchievement" {
			return boom
		}
		return nil
	}
	_, err := AwardDailyAchievements(context.Background(), st, AwardInput{
		UserID: 1, ContextKey: "2024-03-06", Status: models.StatusOK, TotalSeconds: 3600,
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestToAchievementBoard(t *testing.T) {
	unlocks := []models.AchievementUnlock{
		{AchievementID: "weekly_steady", Count: 3, FirstAwardedAt: fetchedAt, LastAwardedAt: fetchedAt.Add(time.Hour)},
		{AchievementID: "retired_badge", Count: 1},
	}

	board := ToAchievementBoard(unlocks)
	if len(board) != len(Catalog()) {
		t.Fatalf("board has %d items, want %d", len(board), len(Catalog()))
	}
	for _, item := range board {
		if item.ID == "weekly_steady" {
			if !item.Unlocked || item.Count != 3 || item.LastAwardedAt == nil {
				t.Errorf("unexpected steady item %+v", item)
			}
		} else if item.Unlocked {
			t.Errorf("%s should be locked", item.ID)
		}
	}

	display := ToAchievementDisplay(unlocks)
	if len(display) != 1 || display[0].ID != "weekly_steady" {
		t.Errorf("display should only list catalog unlocks: %+v", display)
	}
}

func TestCatalogIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Catalog() {
		if seen[r.ID] {
			t.Errorf("duplicate id %s", r.ID)
		}
		seen[r.ID] = true
		if r.Context != models.ContextDaily && r.Context != models.ContextWeekly {
			t.Errorf("%s has invalid context %q", r.ID, r.Context)
		}
	}
}
