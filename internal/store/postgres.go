package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/devpulse/stats-api/internal/models"
)

// DB abstracts the pgx operations the store needs. *pgxpool.Pool satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func encodePayload(p *models.StatPayload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func decodePayload(raw []byte) (*models.StatPayload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var p models.StatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertDailyStat(ctx context.Context, stat models.DailyStat) error {
	payload, err := encodePayload(stat.Payload)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO daily_stats (user_id, date_key, total_seconds, status, error, payload, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, date_key)
		DO UPDATE SET total_seconds = EXCLUDED.total_seconds, status = EXCLUDED.status,
			error = EXCLUDED.error, payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
	`
	if _, err := s.db.Exec(ctx, query,
		stat.UserID, stat.DateKey, stat.TotalSeconds, string(stat.Status), stat.Error, payload, stat.FetchedAt,
	); err != nil {
		return fmt.Errorf("upsert daily stat user=%d date=%s: %w", stat.UserID, stat.DateKey, err)
	}
	return nil
}

func (s *PostgresStore) UpsertWeeklyStat(ctx context.Context, stat models.WeeklyStat) error {
	payload, err := encodePayload(stat.Payload)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO weekly_stats (user_id, range_key, total_seconds, daily_average_seconds, status, error, payload, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, range_key)
		DO UPDATE SET total_seconds = EXCLUDED.total_seconds, daily_average_seconds = EXCLUDED.daily_average_seconds,
			status = EXCLUDED.status, error = EXCLUDED.error, payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
	`
	if _, err := s.db.Exec(ctx, query,
		stat.UserID, stat.RangeKey, stat.TotalSeconds, stat.DailyAverageSeconds, string(stat.Status), stat.Error, payload, stat.FetchedAt,
	); err != nil {
		return fmt.Errorf("upsert weekly stat user=%d range=%s: %w", stat.UserID, stat.RangeKey, err)
	}
	return nil
}

const dailySelect = `
	SELECT d.user_id, u.username, d.date_key, d.total_seconds, d.status, d.error, d.payload, d.fetched_at
	FROM daily_stats d
	JOIN users u ON u.id = d.user_id
`

const weeklySelect = `
	SELECT w.user_id, u.username, w.range_key, w.total_seconds, w.daily_average_seconds, w.status, w.error, w.payload, w.fetched_at
	FROM weekly_stats w
	JOIN users u ON u.id = w.user_id
`

func scanDaily(rows pgx.Rows) ([]models.DailyStat, error) {
	defer rows.Close()
	var out []models.DailyStat
	for rows.Next() {
		var (
			d       models.DailyStat
			status  string
			payload []byte
		)
		if err := rows.Scan(&d.UserID, &d.Username, &d.DateKey, &d.TotalSeconds, &status, &d.Error, &payload, &d.FetchedAt); err != nil {
			return nil, err
		}
		d.Status = models.Status(status)
		p, err := decodePayload(payload)
		if err != nil {
			return nil, err
		}
		d.Payload = p
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanWeekly(rows pgx.Rows) ([]models.WeeklyStat, error) {
	defer rows.Close()
	var out []models.WeeklyStat
	for rows.Next() {
		var (
			w       models.WeeklyStat
			status  string
			payload []byte
		)
		if err := rows.Scan(&w.UserID, &w.Username, &w.RangeKey, &w.TotalSeconds, &w.DailyAverageSeconds, &status, &w.Error, &payload, &w.FetchedAt); err != nil {
			return nil, err
		}
		w.Status = models.Status(status)
		p, err := decodePayload(payload)
		if err != nil {
			return nil, err
		}
		w.Payload = p
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDailyStats(ctx context.Context, userIDs []int64, dateKey string) ([]models.DailyStat, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, dailySelect+` WHERE d.user_id = ANY($1) AND d.date_key = $2`, userIDs, dateKey)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	stats, err := scanDaily(rows)
	if err != nil {
		return nil, fmt.Errorf("scan daily stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) GetWeeklyStats(ctx context.Context, userIDs []int64, rangeKey string) ([]models.WeeklyStat, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, weeklySelect+` WHERE w.user_id = ANY($1) AND w.range_key = $2`, userIDs, rangeKey)
	if err != nil {
		return nil, fmt.Errorf("query weekly stats: %w", err)
	}
	stats, err := scanWeekly(rows)
	if err != nil {
		return nil, fmt.Errorf("scan weekly stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) ListDailyHistory(ctx context.Context) ([]models.DailyStat, error) {
	rows, err := s.db.Query(ctx, dailySelect+` ORDER BY d.user_id, d.date_key`)
	if err != nil {
		return nil, fmt.Errorf("query daily history: %w", err)
	}
	stats, err := scanDaily(rows)
	if err != nil {
		return nil, fmt.Errorf("scan daily history: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) ListWeeklyHistory(ctx context.Context) ([]models.WeeklyStat, error) {
	rows, err := s.db.Query(ctx, weeklySelect+` ORDER BY w.user_id, w.range_key`)
	if err != nil {
		return nil, fmt.Errorf("query weekly history: %w", err)
	}
	stats, err := scanWeekly(rows)
	if err != nil {
		return nil, fmt.Errorf("scan weekly history: %w", err)
	}
	return stats, nil
}

// GrantAchievement upserts on the unique grant tuple. xmax is zero only for
// freshly inserted rows, which tells a new unlock from a refresh.
func (s *PostgresStore) GrantAchievement(ctx context.Context, grant models.AchievementGrant) (bool, error) {
	var metadata []byte
	if grant.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(grant.Metadata); err != nil {
			return false, fmt.Errorf("encode grant metadata: %w", err)
		}
	}
	const query = `
		INSERT INTO achievement_grants (user_id, achievement_id, context_kind, context_key, awarded_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, achievement_id, context_kind, context_key)
		DO UPDATE SET awarded_at = EXCLUDED.awarded_at, metadata = EXCLUDED.metadata
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	err := s.db.QueryRow(ctx, query,
		grant.UserID, grant.AchievementID, string(grant.ContextKind), grant.ContextKey, grant.AwardedAt, metadata,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("grant achievement %s user=%d: %w", grant.AchievementID, grant.UserID, err)
	}
	return inserted, nil
}

func (s *PostgresStore) ListAchievementUnlocks(ctx context.Context, userID int64) ([]models.AchievementUnlock, error) {
	const query = `
		SELECT achievement_id, COUNT(*), MIN(awarded_at), MAX(awarded_at)
		FROM achievement_grants
		WHERE user_id = $1
		GROUP BY achievement_id
		ORDER BY achievement_id
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query unlocks user=%d: %w", userID, err)
	}
	defer rows.Close()

	var out []models.AchievementUnlock
	for rows.Next() {
		var (
			u     models.AchievementUnlock
			count int64
		)
		if err := rows.Scan(&u.AchievementID, &count, &u.FirstAwardedAt, &u.LastAwardedAt); err != nil {
			return nil, fmt.Errorf("scan unlock: %w", err)
		}
		u.Count = int(count)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAchievementGrants(ctx context.Context, filter GrantFilter) ([]models.AchievementGrant, error) {
	if len(filter.UserIDs) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT user_id, achievement_id, context_kind, context_key, awarded_at, metadata
		FROM achievement_grants
		WHERE user_id = ANY($1)`)
	args := []any{filter.UserIDs}
	if len(filter.AchievementIDs) > 0 {
		args = append(args, filter.AchievementIDs)
		fmt.Fprintf(&sb, " AND achievement_id = ANY($%d)", len(args))
	}
	if filter.ContextKind != "" {
		args = append(args, string(filter.ContextKind))
		fmt.Fprintf(&sb, " AND context_kind = $%d", len(args))
	}
	sb.WriteString(" ORDER BY user_id, achievement_id, context_key")

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var out []models.AchievementGrant
	for rows.Next() {
		var (
			g        models.AchievementGrant
			kind     string
			metadata []byte
		)
		if err := rows.Scan(&g.UserID, &g.AchievementID, &kind, &g.ContextKey, &g.AwardedAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.ContextKind = models.ContextKind(kind)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &g.Metadata); err != nil {
				return nil, fmt.Errorf("decode grant metadata: %w", err)
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const userColumns = `u.id, u.username, u.provider_username, u.api_key, u.time_zone, u.visibility, u.competing`

func scanUser(row pgx.Row, extra ...any) (models.User, error) {
	var (
		u          models.User
		visibility string
	)
	dest := append([]any{&u.ID, &u.Username, &u.ProviderUsername, &u.APIKey, &u.TimeZone, &visibility, &u.Competing}, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.User{}, err
	}
	u.Visibility = models.Visibility(visibility)
	return u, nil
}

func (s *PostgresStore) ListSyncUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users u WHERE u.api_key <> '' ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("query sync users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user %d: %w", userID, err)
	}
	return u, nil
}

// ListCandidates returns the viewer and everyone they follow. IsFriend is
// set when the follow is mutual.
func (s *PostgresStore) ListCandidates(ctx context.Context, viewerID int64) ([]models.Candidate, error) {
	query := `
		SELECT ` + userColumns + `,
			EXISTS (SELECT 1 FROM friendships back WHERE back.user_id = u.id AND back.friend_id = $1) AS is_friend
		FROM users u
		WHERE u.id = $1
		   OR EXISTS (SELECT 1 FROM friendships f WHERE f.user_id = $1 AND f.friend_id = u.id)
		ORDER BY u.id
	`
	rows, err := s.db.Query(ctx, query, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query candidates viewer=%d: %w", viewerID, err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var isFriend bool
		u, err := scanUser(rows, &isFriend)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, models.Candidate{User: u, IsFriend: isFriend})
	}
	return out, rows.Err()
}

// UpsertUser inserts a user or updates the one with the same username and
// returns its id.
func (s *PostgresStore) UpsertUser(ctx context.Context, u models.User) (int64, error) {
	if u.TimeZone == "" {
		u.TimeZone = "UTC"
	}
	if u.Visibility == "" {
		u.Visibility = models.VisibilityEveryone
	}
	const query = `
		INSERT INTO users (username, provider_username, api_key, time_zone, visibility, competing)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (username)
		DO UPDATE SET provider_username = EXCLUDED.provider_username, api_key = EXCLUDED.api_key,
			time_zone = EXCLUDED.time_zone, visibility = EXCLUDED.visibility, competing = EXCLUDED.competing
		RETURNING id
	`
	var id int64
	if err := s.db.QueryRow(ctx, query,
		u.Username, u.ProviderUsername, u.APIKey, u.TimeZone, string(u.Visibility), u.Competing,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert user %s: %w", u.Username, err)
	}
	return id, nil
}

// Follow records that userID follows friendID. Following twice is a no-op.
func (s *PostgresStore) Follow(ctx context.Context, userID, friendID int64) error {
	if userID == friendID {
		return fmt.Errorf("user %d cannot follow themself", userID)
	}
	if _, err := s.db.Exec(ctx,
		`INSERT INTO friendships (user_id, friend_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, friendID,
	); err != nil {
		return fmt.Errorf("follow %d -> %d: %w", userID, friendID, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
