package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jsnider89/ai-news-digest/internal/domain"
)

// maxSlugAttempts bounds the -1, -2, ... suffix search when a slug is
// taken.
const maxSlugAttempts = 100

const newsletterColumns = `id, slug, name, timezone, schedule_times, active,
	include_watchlist, newsletter_type, verbosity, custom_prompt, created_at, updated_at`

// CreateNewsletter inserts a newsletter together with its feeds and
// watchlist in one transaction. A missing slug is derived from the name
// and uniquified with numeric suffixes on collision.
func (s *Store) CreateNewsletter(ctx context.Context, n *domain.Newsletter) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Slug == "" {
		n.Slug = domain.Slugify(n.Name)
	}
	if n.Type == "" {
		n.Type = domain.DefaultNewsletterType
	}
	if n.Verbosity == "" {
		n.Verbosity = domain.VerbosityMedium
	}
	normalizeWatchlist(n)
	if err := n.Validate(); err != nil {
		return err
	}

	slug, err := s.uniqueSlug(ctx, n.Slug, "")
	if err != nil {
		return err
	}
	n.Slug = slug

	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	times, err := marshalTimes(n.ScheduleTimes)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO newsletters (`+newsletterColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), n.ID, n.Slug, n.Name, n.Timezone, times, n.Active, n.IncludeWatchlist,
			n.Type, string(n.Verbosity), n.CustomPrompt, n.CreatedAt, n.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert newsletter: %w", err)
		}
		if err := s.replaceFeedsTx(ctx, tx, n.ID, n.Feeds); err != nil {
			return err
		}
		return s.replaceWatchlistTx(ctx, tx, n.ID, n.Watchlist)
	})
}

// UpdateNewsletter writes the full newsletter row plus feeds and
// watchlist. The slug is re-uniquified in case the caller changed it.
func (s *Store) UpdateNewsletter(ctx context.Context, n *domain.Newsletter) error {
	if n.Slug == "" {
		n.Slug = domain.Slugify(n.Name)
	}
	normalizeWatchlist(n)
	if err := n.Validate(); err != nil {
		return err
	}

	slug, err := s.uniqueSlug(ctx, n.Slug, n.ID)
	if err != nil {
		return err
	}
	n.Slug = slug
	n.UpdatedAt = time.Now().UTC()

	times, err := marshalTimes(n.ScheduleTimes)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE newsletters
			SET slug = ?, name = ?, timezone = ?, schedule_times = ?, active = ?,
			    include_watchlist = ?, newsletter_type = ?, verbosity = ?,
			    custom_prompt = ?, updated_at = ?
			WHERE id = ?
		`), n.Slug, n.Name, n.Timezone, times, n.Active, n.IncludeWatchlist,
			n.Type, string(n.Verbosity), n.CustomPrompt, n.UpdatedAt, n.ID)
		if err != nil {
			return fmt.Errorf("update newsletter: %w", err)
		}
		if count, _ := res.RowsAffected(); count == 0 {
			return ErrNotFound
		}
		if err := s.replaceFeedsTx(ctx, tx, n.ID, n.Feeds); err != nil {
			return err
		}
		return s.replaceWatchlistTx(ctx, tx, n.ID, n.Watchlist)
	})
}

// DeleteNewsletter removes a newsletter, its feeds, watchlist, and seen
// hashes. Run history is kept for audit.
func (s *Store) DeleteNewsletter(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM seen_hashes WHERE newsletter_id = ?`,
			`DELETE FROM watchlist_symbols WHERE newsletter_id = ?`,
			`DELETE FROM feeds WHERE newsletter_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, s.rebind(q), id); err != nil {
				return fmt.Errorf("delete newsletter children: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM newsletters WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete newsletter: %w", err)
		}
		if count, _ := res.RowsAffected(); count == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetNewsletter loads one newsletter with feeds and watchlist attached.
func (s *Store) GetNewsletter(ctx context.Context, id string) (*domain.Newsletter, error) {
	return s.getNewsletterWhere(ctx, `id = ?`, id)
}

// GetNewsletterBySlug loads one newsletter by its unique slug.
func (s *Store) GetNewsletterBySlug(ctx context.Context, slug string) (*domain.Newsletter, error) {
	return s.getNewsletterWhere(ctx, `slug = ?`, slug)
}

func (s *Store) getNewsletterWhere(ctx context.Context, where string, arg interface{}) (*domain.Newsletter, error) {
	row := s.queryRow(ctx, `SELECT `+newsletterColumns+` FROM newsletters WHERE `+where, arg)
	n, err := scanNewsletter(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get newsletter: %w", err)
	}
	if n.Feeds, err = s.ListFeeds(ctx, n.ID); err != nil {
		return nil, err
	}
	if n.Watchlist, err = s.ListWatchlist(ctx, n.ID); err != nil {
		return nil, err
	}
	return n, nil
}

// ListNewsletters returns newsletters with feeds and watchlists
// attached, oldest first. With activeOnly set, disabled newsletters are
// skipped; the scheduler uses that form.
func (s *Store) ListNewsletters(ctx context.Context, activeOnly bool) ([]domain.Newsletter, error) {
	q := `SELECT ` + newsletterColumns + ` FROM newsletters`
	if activeOnly {
		q += ` WHERE active`
	}
	q += ` ORDER BY created_at, id`

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list newsletters: %w", err)
	}
	defer rows.Close()

	var out []domain.Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan newsletter: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list newsletters: %w", err)
	}

	feeds, err := s.feedsByNewsletter(ctx)
	if err != nil {
		return nil, err
	}
	symbols, err := s.watchlistByNewsletter(ctx)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Feeds = feeds[out[i].ID]
		out[i].Watchlist = symbols[out[i].ID]
	}
	return out, nil
}

// uniqueSlug walks base, base-1, base-2, ... until a free slug is
// found. excludeID lets an update keep its own slug.
func (s *Store) uniqueSlug(ctx context.Context, base, excludeID string) (string, error) {
	slug := base
	for i := 1; ; i++ {
		var id string
		err := s.queryRow(ctx, `SELECT id FROM newsletters WHERE slug = ?`, slug).Scan(&id)
		if err == sql.ErrNoRows {
			return slug, nil
		}
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if excludeID != "" && id == excludeID {
			return slug, nil
		}
		if i > maxSlugAttempts {
			return "", fmt.Errorf("no free slug for %q after %d attempts", base, maxSlugAttempts)
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNewsletter(row rowScanner) (*domain.Newsletter, error) {
	var n domain.Newsletter
	var times string
	var verbosity string
	if err := row.Scan(&n.ID, &n.Slug, &n.Name, &n.Timezone, &times, &n.Active,
		&n.IncludeWatchlist, &n.Type, &verbosity, &n.CustomPrompt,
		&n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Verbosity = domain.Verbosity(verbosity)
	if times != "" {
		if err := json.Unmarshal([]byte(times), &n.ScheduleTimes); err != nil {
			return nil, fmt.Errorf("decode schedule times: %w", err)
		}
	}
	return &n, nil
}

func marshalTimes(times []string) (string, error) {
	if times == nil {
		times = []string{}
	}
	raw, err := json.Marshal(times)
	if err != nil {
		return "", fmt.Errorf("encode schedule times: %w", err)
	}
	return string(raw), nil
}

func normalizeWatchlist(n *domain.Newsletter) {
	seen := make(map[string]bool, len(n.Watchlist))
	out := n.Watchlist[:0]
	for _, sym := range n.Watchlist {
		sym = domain.NormalizeSymbol(sym)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	n.Watchlist = out
}
