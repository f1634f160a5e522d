// Command backfill replays stored daily and weekly stats through the
// achievement rules. Running it twice grants nothing new.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/devpulse/stats-api/internal/backfill"
	"github.com/devpulse/stats-api/internal/config"
	"github.com/devpulse/stats-api/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		sugar.Fatalw("Unable to create connection pool", "error", err)
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	if err := st.Migrate(ctx); err != nil {
		sugar.Fatalw("Migration failed", "error", err)
	}

	report, err := backfill.RunAchievementsBackfill(ctx, st, backfill.Options{
		MaxRetries:    cfg.BackfillMaxRetries,
		BaseDelay:     cfg.BackfillBaseDelay,
		MaxDelay:      cfg.BackfillMaxDelay,
		ProgressEvery: cfg.BackfillProgressEvery,
		Logger:        sugar,
	})
	if err != nil {
		sugar.Fatalw("Backfill failed", "run", report.RunID.String(), "error", err)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}
