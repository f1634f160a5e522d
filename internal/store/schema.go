package store

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		provider_username TEXT NOT NULL DEFAULT '',
		api_key TEXT NOT NULL DEFAULT '',
		time_zone TEXT NOT NULL DEFAULT 'UTC',
		visibility TEXT NOT NULL DEFAULT 'everyone' CHECK (visibility IN ('everyone', 'friends', 'no_one')),
		competing BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		friend_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, friend_id)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_stats (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date_key TEXT NOT NULL,
		total_seconds BIGINT NOT NULL DEFAULT 0 CHECK (total_seconds >= 0),
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		payload JSONB,
		fetched_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, date_key)
	)`,
	`CREATE TABLE IF NOT EXISTS weekly_stats (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		range_key TEXT NOT NULL,
		total_seconds BIGINT NOT NULL DEFAULT 0 CHECK (total_seconds >= 0),
		daily_average_seconds BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		payload JSONB,
		fetched_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, range_key)
	)`,
	`CREATE TABLE IF NOT EXISTS achievement_grants (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		achievement_id TEXT NOT NULL,
		context_kind TEXT NOT NULL CHECK (context_kind IN ('daily', 'weekly')),
		context_key TEXT NOT NULL,
		awarded_at TIMESTAMPTZ NOT NULL,
		metadata JSONB,
		PRIMARY KEY (user_id, achievement_id, context_kind, context_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_achievement_grants_achievement ON achievement_grants (achievement_id, context_kind)`,
}
