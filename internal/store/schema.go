package store

import "fmt"

// migrate applies the schema. Every statement is idempotent so startup
// can run it unconditionally against both SQLite and PostgreSQL.
func (s *Store) migrate() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "TIMESTAMP"
	if s.driver == "postgres" {
		serial = "BIGSERIAL PRIMARY KEY"
		ts = "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS newsletters (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			timezone TEXT NOT NULL,
			schedule_times TEXT NOT NULL DEFAULT '[]',
			active BOOLEAN NOT NULL,
			include_watchlist BOOLEAN NOT NULL,
			newsletter_type TEXT NOT NULL,
			verbosity TEXT NOT NULL,
			custom_prompt TEXT NOT NULL DEFAULT '',
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feeds (
			id ` + serial + `,
			newsletter_id TEXT NOT NULL REFERENCES newsletters(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL,
			order_index INTEGER NOT NULL,
			UNIQUE (newsletter_id, url)
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist_symbols (
			newsletter_id TEXT NOT NULL REFERENCES newsletters(id) ON DELETE CASCADE,
			symbol TEXT NOT NULL,
			PRIMARY KEY (newsletter_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS articles (
			id ` + serial + `,
			content_hash TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			canonical_url TEXT NOT NULL,
			published_at ` + ts + `
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_source ON articles (source)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles (published_at)`,
		`CREATE TABLE IF NOT EXISTS seen_hashes (
			content_hash TEXT NOT NULL,
			newsletter_id TEXT NOT NULL,
			first_seen_at ` + ts + ` NOT NULL,
			PRIMARY KEY (content_hash, newsletter_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_hashes_first_seen_at ON seen_hashes (first_seen_at)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			newsletter_id TEXT NOT NULL,
			started_at ` + ts + ` NOT NULL,
			finished_at ` + ts + `,
			status TEXT NOT NULL,
			feeds_total INTEGER NOT NULL DEFAULT 0,
			feeds_ok INTEGER NOT NULL DEFAULT 0,
			articles_seen INTEGER NOT NULL DEFAULT 0,
			articles_used INTEGER NOT NULL DEFAULT 0,
			ai_tokens_in INTEGER NOT NULL DEFAULT 0,
			ai_tokens_out INTEGER NOT NULL DEFAULT 0,
			ai_provider_label TEXT NOT NULL DEFAULT '',
			email_sent BOOLEAN NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at)`,
		`CREATE TABLE IF NOT EXISTS run_articles (
			run_id TEXT NOT NULL,
			article_id INTEGER NOT NULL,
			rank INTEGER NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, article_id),
			UNIQUE (run_id, rank)
		)`,
		`CREATE TABLE IF NOT EXISTS market_data (
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			change_amount DOUBLE PRECISION NOT NULL,
			change_percent DOUBLE PRECISION NOT NULL,
			captured_at ` + ts + ` NOT NULL,
			PRIMARY KEY (run_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS digests (
			run_id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			html TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			id ` + serial + `,
			run_id TEXT NOT NULL,
			ts ` + ts + ` NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			context_json TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs (run_id)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
