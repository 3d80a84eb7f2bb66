package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/domain"
)

const runColumns = `run_id, newsletter_id, started_at, finished_at, status,
	feeds_total, feeds_ok, articles_seen, articles_used,
	ai_tokens_in, ai_tokens_out, ai_provider_label, email_sent, error`

// RunWithName is a run row joined with its newsletter's display name
// for list views. Deleted newsletters leave the name empty.
type RunWithName struct {
	domain.Run
	NewsletterName string `json:"newsletter_name"`
}

// RunArticleDetail is a selected article joined with its run metadata,
// used by run introspection.
type RunArticleDetail struct {
	Rank   int     `json:"rank"`
	Score  float64 `json:"score"`
	Title  string  `json:"title"`
	URL    string  `json:"url"`
	Source string  `json:"source"`
}

// CreateRun inserts the run row in its initial state. This write must
// land before any run log references the run.
func (s *Store) CreateRun(ctx context.Context, run *domain.Run) error {
	if run.Status == "" {
		run.Status = domain.RunStarted
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.NewsletterID, run.StartedAt, nil, string(run.Status),
		run.FeedsTotal, run.FeedsOK, run.ArticlesSeen, run.ArticlesUsed,
		run.AITokensIn, run.AITokensOut, run.AIProviderLabel, run.EmailSent, run.Error)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun writes the terminal state and all counters in one atomic
// update. It is the last write of a run.
func (s *Store) FinishRun(ctx context.Context, run *domain.Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	res, err := s.exec(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, feeds_total = ?, feeds_ok = ?,
		    articles_seen = ?, articles_used = ?, ai_tokens_in = ?,
		    ai_tokens_out = ?, ai_provider_label = ?, email_sent = ?, error = ?
		WHERE run_id = ?
	`, run.FinishedAt.UTC(), string(run.Status), run.FeedsTotal, run.FeedsOK,
		run.ArticlesSeen, run.ArticlesUsed, run.AITokensIn, run.AITokensOut,
		run.AIProviderLabel, run.EmailSent, run.Error, run.RunID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := scanRun(s.queryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns recent runs, newest first, joined with newsletter
// names. newsletterID narrows to one newsletter when non-empty.
func (s *Store) ListRuns(ctx context.Context, newsletterID string, limit int) ([]RunWithName, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `
		SELECT r.run_id, r.newsletter_id, r.started_at, r.finished_at, r.status,
		       r.feeds_total, r.feeds_ok, r.articles_seen, r.articles_used,
		       r.ai_tokens_in, r.ai_tokens_out, r.ai_provider_label, r.email_sent, r.error,
		       COALESCE(n.name, '')
		FROM runs r
		LEFT JOIN newsletters n ON n.id = r.newsletter_id`
	args := []interface{}{}
	if newsletterID != "" {
		q += ` WHERE r.newsletter_id = ?`
		args = append(args, newsletterID)
	}
	q += ` ORDER BY r.started_at DESC, r.run_id LIMIT ?`
	args = append(args, limit)

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunWithName
	for rows.Next() {
		var r RunWithName
		var finished sql.NullTime
		var status string
		if err := rows.Scan(&r.RunID, &r.NewsletterID, &r.StartedAt, &finished, &status,
			&r.FeedsTotal, &r.FeedsOK, &r.ArticlesSeen, &r.ArticlesUsed,
			&r.AITokensIn, &r.AITokensOut, &r.AIProviderLabel, &r.EmailSent, &r.Error,
			&r.NewsletterName); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = domain.RunStatus(status)
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// CountRunsSince reports total and failed run counts started at or
// after the cutoff. The health surface uses it for the daily tallies.
func (s *Store) CountRunsSince(ctx context.Context, since time.Time) (total, failed int, err error) {
	err = s.queryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM runs WHERE started_at >= ?
	`, string(domain.RunFailed), since.UTC()).Scan(&total, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count runs: %w", err)
	}
	return total, failed, nil
}

// AddRunArticles persists the selected articles with their 1-based
// ranks and scores in one transaction.
func (s *Store) AddRunArticles(ctx context.Context, articles []domain.RunArticle) error {
	if len(articles) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ins := s.rebind(`INSERT INTO run_articles (run_id, article_id, rank, score) VALUES (?, ?, ?, ?)`)
		for _, a := range articles {
			if _, err := tx.ExecContext(ctx, ins, a.RunID, a.ArticleID, a.Rank, a.Score); err != nil {
				return fmt.Errorf("insert run article: %w", err)
			}
		}
		return nil
	})
}

// ListRunArticles returns a run's selected articles in rank order.
func (s *Store) ListRunArticles(ctx context.Context, runID string) ([]RunArticleDetail, error) {
	rows, err := s.query(ctx, `
		SELECT ra.rank, ra.score, a.title, a.canonical_url, a.source
		FROM run_articles ra
		JOIN articles a ON a.id = ra.article_id
		WHERE ra.run_id = ?
		ORDER BY ra.rank
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run articles: %w", err)
	}
	defer rows.Close()

	var out []RunArticleDetail
	for rows.Next() {
		var d RunArticleDetail
		if err := rows.Scan(&d.Rank, &d.Score, &d.Title, &d.URL, &d.Source); err != nil {
			return nil, fmt.Errorf("scan run article: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run articles: %w", err)
	}
	return out, nil
}

// UpsertQuotes writes the market snapshots captured for a run, one
// upsert per symbol keyed on (run_id, symbol).
func (s *Store) UpsertQuotes(ctx context.Context, quotes []domain.MarketQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		up := s.rebind(`
			INSERT INTO market_data (run_id, symbol, price, change_amount, change_percent, captured_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, symbol) DO UPDATE SET
				price = excluded.price,
				change_amount = excluded.change_amount,
				change_percent = excluded.change_percent,
				captured_at = excluded.captured_at
		`)
		for _, q := range quotes {
			if _, err := tx.ExecContext(ctx, up, q.RunID, q.Symbol, q.Price, q.ChangeAmount,
				q.ChangePercent, q.CapturedAt.UTC()); err != nil {
				return fmt.Errorf("upsert quote %s: %w", q.Symbol, err)
			}
		}
		return nil
	})
}

// ListRunQuotes returns the market snapshots captured for a run.
func (s *Store) ListRunQuotes(ctx context.Context, runID string) ([]domain.MarketQuote, error) {
	rows, err := s.query(ctx, `
		SELECT run_id, symbol, price, change_amount, change_percent, captured_at
		FROM market_data WHERE run_id = ? ORDER BY symbol
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketQuote
	for rows.Next() {
		var q domain.MarketQuote
		if err := rows.Scan(&q.RunID, &q.Symbol, &q.Price, &q.ChangeAmount,
			&q.ChangePercent, &q.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return out, nil
}

// SaveDigest archives the rendered HTML for a run. A re-render replaces
// the earlier row.
func (s *Store) SaveDigest(ctx context.Context, d *domain.Digest) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO digests (run_id, subject, html, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			subject = excluded.subject,
			html = excluded.html,
			created_at = excluded.created_at
	`, d.RunID, d.Subject, d.HTML, d.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save digest: %w", err)
	}
	return nil
}

// GetDigest loads the archived digest for a run.
func (s *Store) GetDigest(ctx context.Context, runID string) (*domain.Digest, error) {
	var d domain.Digest
	err := s.queryRow(ctx, `
		SELECT run_id, subject, html, created_at FROM digests WHERE run_id = ?
	`, runID).Scan(&d.RunID, &d.Subject, &d.HTML, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get digest: %w", err)
	}
	return &d, nil
}

// LatestDigest returns the most recently created digest across all
// newsletters, for the public landing page.
func (s *Store) LatestDigest(ctx context.Context) (*domain.Digest, error) {
	var d domain.Digest
	err := s.queryRow(ctx, `
		SELECT run_id, subject, html, created_at
		FROM digests ORDER BY created_at DESC, run_id DESC LIMIT 1
	`).Scan(&d.RunID, &d.Subject, &d.HTML, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest digest: %w", err)
	}
	return &d, nil
}

// AppendRunLogs writes captured log lines for a run, preserving order.
func (s *Store) AppendRunLogs(ctx context.Context, entries []domain.RunLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ins := s.rebind(`
			INSERT INTO run_logs (run_id, ts, level, message, context_json)
			VALUES (?, ?, ?, ?, ?)
		`)
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, ins, e.RunID, e.TS.UTC(), e.Level, e.Message, e.Context); err != nil {
				return fmt.Errorf("insert run log: %w", err)
			}
		}
		return nil
	})
}

// ListRunLogs returns a run's log stream ordered by timestamp, then
// insertion.
func (s *Store) ListRunLogs(ctx context.Context, runID string) ([]domain.RunLogEntry, error) {
	rows, err := s.query(ctx, `
		SELECT run_id, ts, level, message, context_json
		FROM run_logs WHERE run_id = ? ORDER BY ts, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunLogEntry
	for rows.Next() {
		var e domain.RunLogEntry
		if err := rows.Scan(&e.RunID, &e.TS, &e.Level, &e.Message, &e.Context); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	return out, nil
}

// PruneHistory deletes runs started before the cutoff along with their
// digests, articles links, quotes, and logs, plus seen hashes old
// enough to fall out of the dedupe horizon. It returns the number of
// runs removed.
func (s *Store) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	var pruned int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sub := `SELECT run_id FROM runs WHERE started_at < ?`
		for _, table := range []string{"run_logs", "run_articles", "market_data", "digests"} {
			q := s.rebind(`DELETE FROM ` + table + ` WHERE run_id IN (` + sub + `)`)
			if _, err := tx.ExecContext(ctx, q, cutoff.UTC()); err != nil {
				return fmt.Errorf("prune %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM runs WHERE started_at < ?`), cutoff.UTC())
		if err != nil {
			return fmt.Errorf("prune runs: %w", err)
		}
		pruned, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM seen_hashes WHERE first_seen_at < ?`), cutoff.UTC()); err != nil {
			return fmt.Errorf("prune seen hashes: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var r domain.Run
	var finished sql.NullTime
	var status string
	if err := row.Scan(&r.RunID, &r.NewsletterID, &r.StartedAt, &finished, &status,
		&r.FeedsTotal, &r.FeedsOK, &r.ArticlesSeen, &r.ArticlesUsed,
		&r.AITokensIn, &r.AITokensOut, &r.AIProviderLabel, &r.EmailSent, &r.Error); err != nil {
		return nil, err
	}
	r.Status = domain.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
