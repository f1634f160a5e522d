// Command api serves the coding-time leaderboard and runs the background sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devpulse/stats-api/internal/config"
	"github.com/devpulse/stats-api/internal/handlers"
	"github.com/devpulse/stats-api/internal/logic"
	"github.com/devpulse/stats-api/internal/provider"
	"github.com/devpulse/stats-api/internal/store"
	"github.com/devpulse/stats-api/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := connectPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	checks := map[string]handlers.Pinger{"postgres": pool.Ping}

	var publisher worker.Publisher
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		publisher = worker.NewRedisPublisher(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		sugar.Infow("REDIS_URL not set, unlock notifications disabled")
	}

	var (
		archive     *worker.ArchivePool
		archiver    worker.Archiver
		queueDepths handlers.QueueDepther
	)
	if cfg.ClickHouseURL != "" {
		conn, err := connectClickHouse(ctx, cfg.ClickHouseURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := worker.EnsureArchiveTable(ctx, conn); err != nil {
			return fmt.Errorf("ensure archive table: %w", err)
		}
		archive = worker.NewArchivePool(worker.ArchiveConfig{
			WorkerCount:   cfg.ArchiveWorkers,
			QueueSize:     cfg.ArchiveQueueSize,
			BatchSize:     cfg.ArchiveBatchSize,
			FlushInterval: cfg.ArchiveFlushInterval,
			ClickHouse:    conn,
			Logger:        logger,
		})
		archive.Start()
		defer archive.Stop()
		archiver, queueDepths = archive, archive
		checks["clickhouse"] = conn.Ping
	} else {
		sugar.Infow("CLICKHOUSE_URL not set, fetch archive disabled")
	}

	client := provider.NewClient(provider.Config{
		BaseURL:         cfg.ProviderBaseURL,
		Timeout:         cfg.ProviderTimeout,
		RatePerSec:      cfg.ProviderRatePerSecond,
		Burst:           cfg.ProviderBurst,
		BreakerFailures: uint32(cfg.BreakerFailures),
		BreakerCooldown: cfg.BreakerCooldown,
		Logger:          sugar,
	})

	awarder := worker.NewAchievementWorker(st, publisher, sugar)
	engine := worker.NewSyncEngine(worker.SyncConfig{
		DailyInterval:  cfg.DailySyncInterval,
		WeeklyInterval: cfg.WeeklySyncInterval,
		DailyTTL:       cfg.DailyTTL,
		WeeklyTTL:      cfg.WeeklyTTL,
		RangeKey:       cfg.RangeKey,
		Concurrency:    cfg.SyncConcurrency,
		YesterdayGrace: cfg.YesterdayGrace,
		Clock:          logic.SystemClock{},
		Logger:         sugar,
	}, client, st, awarder, archiver)
	engine.Start(ctx)
	defer engine.Stop()

	h := handlers.New(handlers.Config{
		Store:          st,
		Sync:           engine,
		Archive:        queueDepths,
		Checks:         checks,
		DeltaThreshold: cfg.DeltaThreshold,
		Slice:          logic.SliceOptions{PodiumCount: cfg.PodiumCount, AroundCount: cfg.AroundCount},
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h.Router(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("Server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sugar.Infow("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func connectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

func connectClickHouse(ctx context.Context, url string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(url)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return conn, nil
}
