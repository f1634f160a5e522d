package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/devpulse/stats-api/internal/models"
)

// ArchiveStatusCount is one (period kind, status) bucket of the fetch archive.
type ArchiveStatusCount struct {
	PeriodKind models.ContextKind `json:"period_kind"`
	Status     models.Status      `json:"status"`
	Fetches    uint64             `json:"fetches"`
	Users      uint64             `json:"users"`
	LastFetch  time.Time          `json:"last_fetch"`
}

// ArchiveFilter narrows SummarizeArchive. A zero UserID covers everyone.
type ArchiveFilter struct {
	Since  time.Time
	UserID int64
}

// SummarizeArchive counts archived fetches by period kind and status.
func SummarizeArchive(ctx context.Context, conn driver.Conn, f ArchiveFilter) ([]ArchiveStatusCount, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT period_kind, status, count() AS fetches, uniqExact(user_id) AS users, max(fetched_at) AS last_fetch
		FROM fetch_archive
		WHERE fetched_at >= ?`)
	args := []interface{}{f.Since.UTC()}
	if f.UserID != 0 {
		sb.WriteString(" AND user_id = ?")
		args = append(args, f.UserID)
	}
	sb.WriteString(" GROUP BY period_kind, status ORDER BY period_kind, status")

	rows, err := conn.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query fetch archive: %w", err)
	}
	defer rows.Close()

	var out []ArchiveStatusCount
	for rows.Next() {
		var (
			c            ArchiveStatusCount
			kind, status string
		)
		if err := rows.Scan(&kind, &status, &c.Fetches, &c.Users, &c.LastFetch); err != nil {
			return nil, fmt.Errorf("scan archive summary: %w", err)
		}
		c.PeriodKind = models.ContextKind(kind)
		c.Status = models.Status(status)
		out = append(out, c)
	}
	return out, rows.Err()
}
