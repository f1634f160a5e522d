package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	syncFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_sync_fetches_total",
		Help: "Provider fetches performed by the sync engine, by period kind and status",
	}, []string{"kind", "status"})

	syncSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_sync_skipped_total",
		Help: "Sync candidates skipped because the cached entry was fresher than the TTL",
	}, []string{"kind"})

	syncPersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_sync_persist_failures_total",
		Help: "Stat upserts that failed during sync",
	}, []string{"kind"})

	syncCacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "devpulse_sync_cache_entries",
		Help: "Entries held in the in-memory stat cache",
	}, []string{"kind"})

	syncTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devpulse_sync_tick_duration_seconds",
		Help:    "Duration of one periodic sync tick",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	achievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_achievements_unlocked_total",
		Help: "Newly created achievement grants",
	}, []string{"achievement"})

	achievementErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_achievement_errors_total",
		Help: "Achievement evaluations that failed to persist",
	}, []string{"context"})

	archiveQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devpulse_archive_records_queued_total",
		Help: "Fetch records accepted by the archive pool",
	})

	archiveWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devpulse_archive_records_written_total",
		Help: "Fetch records written to ClickHouse",
	})

	archiveFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devpulse_archive_records_failed_total",
		Help: "Fetch records lost to failed batch inserts",
	})

	archiveShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devpulse_archive_records_shed_total",
		Help: "Fetch records dropped because the archive queue was full",
	})

	archiveQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devpulse_archive_queue_depth",
		Help: "Current depth of the archive queue",
	})

	archiveBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "devpulse_archive_batch_insert_duration_seconds",
		Help:    "Duration of batch inserts to ClickHouse",
		Buckets: prometheus.DefBuckets,
	})
)
