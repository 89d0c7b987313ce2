package storage

// Timestamps are stored as unix microseconds so the same schema works on
// Postgres and SQLite without driver-specific time parsing.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		tool TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		args TEXT NOT NULL DEFAULT '{}',
		refinements INTEGER NOT NULL DEFAULT 0,
		attempts TEXT NOT NULL DEFAULT '[]',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		action_id TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_type TEXT NOT NULL DEFAULT '',
		expiry BIGINT NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (user_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		text TEXT NOT NULL,
		due_at BIGINT NOT NULL,
		delivered_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		tool TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		args TEXT NOT NULL DEFAULT '{}',
		refinements INTEGER NOT NULL DEFAULT 0,
		attempts TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		action_id TEXT NOT NULL DEFAULT '',
		hash TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_type TEXT NOT NULL DEFAULT '',
		expiry INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		text TEXT NOT NULL,
		due_at INTEGER NOT NULL,
		delivered_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
}

// Shared by both dialects. The partial unique index enforces at most one
// PENDING action per user.
var schemaIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS actions_one_pending_per_user ON actions (user_id) WHERE status = 'PENDING'`,
	`CREATE INDEX IF NOT EXISTS chat_messages_user_seq ON chat_messages (user_id, seq)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_action_seq ON chat_messages (action_id, seq)`,
	`CREATE INDEX IF NOT EXISTS reminders_due ON reminders (delivered_at, due_at)`,
}
