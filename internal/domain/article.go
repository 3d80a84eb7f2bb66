package domain

import "time"

// Item is a normalized feed entry flowing through a single run: parsed,
// canonicalized, hashed, not yet deduped. Items missing a title or link
// never reach this type.
type Item struct {
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	CanonicalURL string     `json:"canonical_url"`
	Source       string     `json:"source"` // lowercased hostname
	FeedTitle    string     `json:"feed_title,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ContentHash  string     `json:"content_hash"` // hex SHA-256
}

// Article is the persisted form of an item: created on first sighting,
// never mutated. content_hash is unique.
type Article struct {
	ID           int64      `json:"id" db:"id"`
	ContentHash  string     `json:"content_hash" db:"content_hash"`
	Source       string     `json:"source" db:"source"`
	Title        string     `json:"title" db:"title"`
	CanonicalURL string     `json:"canonical_url" db:"canonical_url"`
	PublishedAt  *time.Time `json:"published_at,omitempty" db:"published_at"`
}

// SeenHash marks a content hash as already processed for a newsletter.
// Rows are eligible for windowed deletion via reset-seen.
type SeenHash struct {
	ContentHash  string    `json:"content_hash" db:"content_hash"`
	NewsletterID string    `json:"newsletter_id" db:"newsletter_id"`
	FirstSeenAt  time.Time `json:"first_seen_at" db:"first_seen_at"`
}

// MarketQuote is one watchlist symbol's snapshot captured during a run.
type MarketQuote struct {
	RunID         string    `json:"run_id" db:"run_id"`
	Symbol        string    `json:"symbol" db:"symbol"`
	Price         float64   `json:"price" db:"price"`
	ChangeAmount  float64   `json:"change_amount" db:"change_amount"`
	ChangePercent float64   `json:"change_percent" db:"change_percent"`
	CapturedAt    time.Time `json:"captured_at" db:"captured_at"`
}
