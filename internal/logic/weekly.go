package logic

import (
	"fmt"
	"sort"
	"time"

	"github.com/devpulse/stats-api/internal/models"
)

// WeeklyBucket is one user's calendar week assembled from daily rows.
type WeeklyBucket struct {
	UserID    int64
	WeekKey   string
	Total     int64
	Payload   *models.StatPayload
	FetchedAt time.Time
}

// AwardInput turns the bucket into an ok weekly award input.
func (b WeeklyBucket) AwardInput() AwardInput {
	return AwardInput{
		UserID:       b.UserID,
		ContextKey:   b.WeekKey,
		Status:       models.StatusOK,
		TotalSeconds: b.Total,
		Payload:      b.Payload,
		FetchedAt:    b.FetchedAt,
	}
}

// BucketDailyStats groups ok daily rows by user and ISO week, summing
// seconds and payloads and keeping the latest fetch time. Rows with any
// other status are skipped. Buckets come back ordered by user, then week.
func BucketDailyStats(daily []models.DailyStat) ([]WeeklyBucket, error) {
	type key struct {
		userID  int64
		weekKey string
	}
	byKey := make(map[key]*WeeklyBucket)
	for _, d := range daily {
		if d.Status != models.StatusOK {
			continue
		}
		weekKey, err := ISOWeekKey(d.DateKey)
		if err != nil {
			return nil, fmt.Errorf("bucket daily row user=%d: %w", d.UserID, err)
		}
		k := key{d.UserID, weekKey}
		b, ok := byKey[k]
		if !ok {
			b = &WeeklyBucket{UserID: d.UserID, WeekKey: weekKey}
			byKey[k] = b
		}
		b.Total += d.TotalSeconds
		if d.Payload != nil {
			if b.Payload == nil {
				b.Payload = &models.StatPayload{}
			}
			b.Payload.Add(d.Payload)
		}
		if d.FetchedAt.After(b.FetchedAt) {
			b.FetchedAt = d.FetchedAt
		}
	}

	out := make([]WeeklyBucket, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].WeekKey < out[j].WeekKey
	})
	return out, nil
}
