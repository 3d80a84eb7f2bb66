package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jsnider89/ai-news-digest/internal/domain"
)

// ListFeeds returns a newsletter's feeds in display order.
func (s *Store) ListFeeds(ctx context.Context, newsletterID string) ([]domain.Feed, error) {
	rows, err := s.query(ctx, `
		SELECT id, newsletter_id, url, title, category, enabled, order_index
		FROM feeds WHERE newsletter_id = ?
		ORDER BY order_index, id
	`, newsletterID)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()
	return collectFeeds(rows)
}

func (s *Store) feedsByNewsletter(ctx context.Context) (map[string][]domain.Feed, error) {
	rows, err := s.query(ctx, `
		SELECT id, newsletter_id, url, title, category, enabled, order_index
		FROM feeds ORDER BY newsletter_id, order_index, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	feeds, err := collectFeeds(rows)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]domain.Feed)
	for _, f := range feeds {
		grouped[f.NewsletterID] = append(grouped[f.NewsletterID], f)
	}
	return grouped, nil
}

func collectFeeds(rows *sql.Rows) ([]domain.Feed, error) {
	var out []domain.Feed
	for rows.Next() {
		var f domain.Feed
		if err := rows.Scan(&f.ID, &f.NewsletterID, &f.URL, &f.Title, &f.Category,
			&f.Enabled, &f.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read feeds: %w", err)
	}
	return out, nil
}

// replaceFeedsTx swaps a newsletter's feed set for the given list.
// Duplicate URLs keep their first occurrence; order indexes follow list
// position.
func (s *Store) replaceFeedsTx(ctx context.Context, tx *sql.Tx, newsletterID string, feeds []domain.Feed) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM feeds WHERE newsletter_id = ?`), newsletterID); err != nil {
		return fmt.Errorf("clear feeds: %w", err)
	}

	ins := s.rebind(`
		INSERT INTO feeds (newsletter_id, url, title, category, enabled, order_index)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	seen := make(map[string]bool, len(feeds))
	idx := 0
	for _, f := range feeds {
		url := strings.TrimSpace(f.URL)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		if _, err := tx.ExecContext(ctx, ins, newsletterID, url, f.Title, f.Category, f.Enabled, idx); err != nil {
			return fmt.Errorf("insert feed: %w", err)
		}
		idx++
	}
	return nil
}

// ListWatchlist returns a newsletter's tracked symbols sorted
// alphabetically.
func (s *Store) ListWatchlist(ctx context.Context, newsletterID string) ([]string, error) {
	rows, err := s.query(ctx, `
		SELECT symbol FROM watchlist_symbols WHERE newsletter_id = ? ORDER BY symbol
	`, newsletterID)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	return out, nil
}

func (s *Store) watchlistByNewsletter(ctx context.Context) (map[string][]string, error) {
	rows, err := s.query(ctx, `
		SELECT newsletter_id, symbol FROM watchlist_symbols ORDER BY newsletter_id, symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]string)
	for rows.Next() {
		var id, sym string
		if err := rows.Scan(&id, &sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		grouped[id] = append(grouped[id], sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	return grouped, nil
}

func (s *Store) replaceWatchlistTx(ctx context.Context, tx *sql.Tx, newsletterID string, symbols []string) error {
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM watchlist_symbols WHERE newsletter_id = ?`), newsletterID); err != nil {
		return fmt.Errorf("clear watchlist: %w", err)
	}
	ins := s.rebind(`INSERT INTO watchlist_symbols (newsletter_id, symbol) VALUES (?, ?)`)
	for _, sym := range symbols {
		if _, err := tx.ExecContext(ctx, ins, newsletterID, sym); err != nil {
			return fmt.Errorf("insert symbol: %w", err)
		}
	}
	return nil
}
