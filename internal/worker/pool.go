// Package worker hosts the long-running pieces of the service: the sync
// engine that pulls provider stats, the achievement worker that turns fetch
// results into grants, and the archive pool that batches every classified
// fetch into ClickHouse.
package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devpulse/stats-api/internal/models"
)

const archiveTableDDL = `
	CREATE TABLE IF NOT EXISTS fetch_archive (
		id UUID,
		fetched_at DateTime64(3, 'UTC'),
		user_id Int64,
		username String,
		period_kind LowCardinality(String),
		period_key String,
		status LowCardinality(String),
		total_seconds Int64,
		error String,
		payload String
	) ENGINE = MergeTree
	ORDER BY (user_id, period_kind, fetched_at)
`

// FetchRecord is one classified provider fetch destined for the archive.
type FetchRecord struct {
	ID         uuid.UUID
	FetchedAt  time.Time
	UserID     int64
	Username   string
	PeriodKind models.ContextKind
	PeriodKey  string
	Status     models.Status
	Total      int64
	Error      string
	Payload    *models.StatPayload
}

// NewFetchRecord builds an archive record from a stat.
func NewFetchRecord(kind models.ContextKind, periodKey string, core models.StatCore) FetchRecord {
	return FetchRecord{
		ID:         uuid.New(),
		FetchedAt:  core.FetchedAt,
		UserID:     core.UserID,
		Username:   core.Username,
		PeriodKind: kind,
		PeriodKey:  periodKey,
		Status:     core.Status,
		Total:      core.TotalSeconds,
		Error:      core.Error,
		Payload:    core.Payload,
	}
}

// EnsureArchiveTable creates the archive table if it does not exist.
func EnsureArchiveTable(ctx context.Context, conn driver.Conn) error {
	return conn.Exec(ctx, archiveTableDDL)
}

// ArchiveConfig configures the archive pool
type ArchiveConfig struct {
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	ClickHouse    driver.Conn
	Logger        *zap.Logger
}

// ArchivePool batches fetch records into ClickHouse. Enqueue never blocks:
// when the queue is full the record is shed.
type ArchivePool struct {
	config ArchiveConfig
	queue  chan FetchRecord
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
}

func NewArchivePool(cfg ArchiveConfig) *ArchivePool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ArchivePool{
		config: cfg,
		queue:  make(chan FetchRecord, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: cfg.Logger.Sugar(),
	}
}

// Start launches the worker goroutines
func (p *ArchivePool) Start() {
	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	go p.reportQueueDepth()

	p.logger.Infow("Archive pool started",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
		"batchSize", p.config.BatchSize,
	)
}

// Stop closes the queue and waits for workers to flush what is left.
func (p *ArchivePool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.logger.Info("Archive pool stopped")
}

// Enqueue adds a record to the queue without blocking.
func (p *ArchivePool) Enqueue(rec FetchRecord) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		archiveShed.Inc()
		return false
	}

	select {
	case p.queue <- rec:
		archiveQueued.Inc()
		return true
	default:
		archiveShed.Inc()
		p.logger.Warnw("Archive queue full, dropping record", "user", rec.UserID, "periodKey", rec.PeriodKey)
		return false
	}
}

// QueueDepth returns current queue size
func (p *ArchivePool) QueueDepth() int {
	return len(p.queue)
}

func (p *ArchivePool) worker(id int) {
	defer p.wg.Done()

	batch := make([]FetchRecord, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := p.insertBatch(batch); err != nil {
			p.logger.Errorw("Archive batch insert failed",
				"worker", id,
				"batchSize", len(batch),
				"error", err,
			)
			archiveFailed.Add(float64(len(batch)))
		} else {
			p.logger.Debugw("Archive batch written", "worker", id, "batchSize", len(batch), "duration", time.Since(start))
			archiveWritten.Add(float64(len(batch)))
		}
		archiveBatchDuration.Observe(time.Since(start).Seconds())
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-p.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= p.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (p *ArchivePool) insertBatch(batch []FetchRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chBatch, err := p.config.ClickHouse.PrepareBatch(ctx, `
		INSERT INTO fetch_archive (
			id, fetched_at, user_id, username, period_kind, period_key,
			status, total_seconds, error, payload
		)
	`)
	if err != nil {
		return err
	}

	for _, rec := range batch {
		payload := ""
		if rec.Payload != nil {
			if raw, err := json.Marshal(rec.Payload); err == nil {
				payload = string(raw)
			}
		}
		if err := chBatch.Append(
			rec.ID,
			rec.FetchedAt,
			rec.UserID,
			rec.Username,
			string(rec.PeriodKind),
			rec.PeriodKey,
			string(rec.Status),
			rec.Total,
			rec.Error,
			payload,
		); err != nil {
			p.logger.Warnw("Failed to append record to batch", "user", rec.UserID, "error", err)
			continue
		}
	}
	return chBatch.Send()
}

func (p *ArchivePool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			archiveQueueDepth.Set(float64(len(p.queue)))
		case <-p.ctx.Done():
			return
		}
	}
}
