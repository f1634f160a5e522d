// Command seeder loads a small demo social graph with two weeks of daily
// history so the leaderboard and backfill have something to work on.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/devpulse/stats-api/internal/config"
	"github.com/devpulse/stats-api/internal/logic"
	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/store"
)

var demoUsers = []models.User{
	{Username: "ada", TimeZone: "Europe/London", Visibility: models.VisibilityEveryone, Competing: true},
	{Username: "grace", TimeZone: "America/New_York", Visibility: models.VisibilityFriends, Competing: true},
	{Username: "linus", TimeZone: "Europe/Helsinki", Visibility: models.VisibilityEveryone, Competing: true},
	{Username: "ken", TimeZone: "America/Los_Angeles", Visibility: models.VisibilityNoOne, Competing: true},
	{Username: "barbara", TimeZone: "UTC", Visibility: models.VisibilityEveryone, Competing: false},
}

// follows by username; pairs listed both ways are friends
var demoFollows = [][2]string{
	{"ada", "grace"}, {"grace", "ada"},
	{"ada", "linus"}, {"linus", "ada"},
	{"ada", "ken"},
	{"grace", "linus"},
	{"barbara", "ada"},
}

var languages = []string{"Go", "TypeScript", "SQL", "Python", "Rust"}

func main() {
	days := flag.Int("days", 14, "days of daily history to generate")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		sugar.Fatalw("Unable to create connection pool", "error", err)
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	if err := st.Migrate(ctx); err != nil {
		sugar.Fatalw("Migration failed", "error", err)
	}

	ids := make(map[string]int64, len(demoUsers))
	for _, u := range demoUsers {
		id, err := st.UpsertUser(ctx, u)
		if err != nil {
			sugar.Fatalw("Failed to seed user", "user", u.Username, "error", err)
		}
		ids[u.Username] = id
	}
	for _, f := range demoFollows {
		if err := st.Follow(ctx, ids[f[0]], ids[f[1]]); err != nil {
			sugar.Fatalw("Failed to seed follow", "from", f[0], "to", f[1], "error", err)
		}
	}

	rng := rand.New(rand.NewSource(*seed))
	now := time.Now()
	rows := 0
	for _, u := range demoUsers {
		today := logic.DateKeyInTimeZone(now, u.TimeZone)
		for i := 0; i < *days; i++ {
			dateKey, err := logic.ShiftDateKey(today, -i)
			if err != nil {
				sugar.Fatalw("Invalid date key", "date", today, "error", err)
			}
			stat := demoDay(rng, ids[u.Username], u.Username, dateKey, now)
			if err := st.UpsertDailyStat(ctx, stat); err != nil {
				sugar.Fatalw("Failed to seed daily stat", "user", u.Username, "date", dateKey, "error", err)
			}
			rows++
		}
	}

	sugar.Infow("Seed complete", "users", len(demoUsers), "follows", len(demoFollows), "dailyRows", rows)
}

// demoDay produces a plausible day: mostly ok, sometimes a day off.
func demoDay(rng *rand.Rand, userID int64, username, dateKey string, fetchedAt time.Time) models.DailyStat {
	payload := &models.StatPayload{
		Languages: map[string]int64{},
		Editors:   map[string]int64{"VS Code": 0},
		Projects:  map[string]int64{},
	}
	var total int64
	if rng.Intn(7) != 0 {
		for _, lang := range languages {
			if rng.Intn(2) == 0 {
				continue
			}
			secs := int64(rng.Intn(4*3600) + 300)
			payload.Languages[lang] = secs
			payload.Projects["project-"+lang] = secs
			total += secs
		}
	}
	payload.Editors["VS Code"] = total
	return models.DailyStat{
		StatCore: models.StatCore{
			UserID:       userID,
			Username:     username,
			TotalSeconds: total,
			Status:       models.StatusOK,
			FetchedAt:    fetchedAt,
			Payload:      payload,
		},
		DateKey: dateKey,
	}
}
