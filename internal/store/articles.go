package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/domain"
)

// FilterNew splits fetched items into the ones this newsletter has not
// seen before. Each new hash is recorded and the backing article row is
// inserted (first sighting wins across newsletters). The returned map
// resolves content hashes to article ids for run bookkeeping. Items are
// returned in input order; a hash repeated within the batch keeps only
// its first occurrence.
func (s *Store) FilterNew(ctx context.Context, newsletterID string, items []domain.Item, now time.Time) ([]domain.Item, map[string]int64, error) {
	fresh := make([]domain.Item, 0, len(items))
	ids := make(map[string]int64, len(items))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		seenQ := s.rebind(`SELECT 1 FROM seen_hashes WHERE content_hash = ? AND newsletter_id = ?`)
		insSeen := s.rebind(`INSERT INTO seen_hashes (content_hash, newsletter_id, first_seen_at) VALUES (?, ?, ?)`)
		insArticle := s.rebind(`
			INSERT INTO articles (content_hash, source, title, canonical_url, published_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (content_hash) DO NOTHING
		`)
		selArticle := s.rebind(`SELECT id FROM articles WHERE content_hash = ?`)

		for _, it := range items {
			var one int
			err := tx.QueryRowContext(ctx, seenQ, it.ContentHash, newsletterID).Scan(&one)
			if err == nil {
				continue
			}
			if err != sql.ErrNoRows {
				return fmt.Errorf("check seen hash: %w", err)
			}

			if _, err := tx.ExecContext(ctx, insSeen, it.ContentHash, newsletterID, now.UTC()); err != nil {
				return fmt.Errorf("insert seen hash: %w", err)
			}

			var published interface{}
			if it.PublishedAt != nil {
				published = it.PublishedAt.UTC()
			}
			if _, err := tx.ExecContext(ctx, insArticle, it.ContentHash, it.Source, it.Title, it.CanonicalURL, published); err != nil {
				return fmt.Errorf("insert article: %w", err)
			}

			var id int64
			if err := tx.QueryRowContext(ctx, selArticle, it.ContentHash).Scan(&id); err != nil {
				return fmt.Errorf("resolve article id: %w", err)
			}
			ids[it.ContentHash] = id
			fresh = append(fresh, it)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return fresh, ids, nil
}

// ResetSeen deletes this newsletter's seen hashes whose first sighting
// falls within the past N hours, so the items reappear on the next run.
// It reports the in-window counts before and after for operator
// confirmation.
func (s *Store) ResetSeen(ctx context.Context, newsletterID string, hours int) (before, deleted, after int, err error) {
	if hours < 1 || hours > 168 {
		return 0, 0, 0, fmt.Errorf("reset window must be 1..168 hours, got %d", hours)
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		countQ := s.rebind(`SELECT COUNT(*) FROM seen_hashes WHERE newsletter_id = ? AND first_seen_at >= ?`)
		if err := tx.QueryRowContext(ctx, countQ, newsletterID, cutoff).Scan(&before); err != nil {
			return fmt.Errorf("count seen hashes: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.rebind(`
			DELETE FROM seen_hashes WHERE newsletter_id = ? AND first_seen_at >= ?
		`), newsletterID, cutoff)
		if err != nil {
			return fmt.Errorf("delete seen hashes: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = int(n)
		if err := tx.QueryRowContext(ctx, countQ, newsletterID, cutoff).Scan(&after); err != nil {
			return fmt.Errorf("recount seen hashes: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}
	return before, deleted, after, nil
}
