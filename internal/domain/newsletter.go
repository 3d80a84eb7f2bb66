package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Verbosity controls how expansive the AI summary should be.
type Verbosity string

const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

// Valid reports whether v is a known verbosity level.
func (v Verbosity) Valid() bool {
	switch v {
	case VerbosityLow, VerbosityMedium, VerbosityHigh:
		return true
	}
	return false
}

// DefaultNewsletterType is applied when a newsletter does not pick one.
const DefaultNewsletterType = "general_business"

var (
	slugRegex   = regexp.MustCompile(`^[a-z0-9-]+$`)
	symbolRegex = regexp.MustCompile(`^[A-Z0-9.]+$`)
	timeRegex   = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// Newsletter is a configured digest: its feeds, schedule, watchlist,
// and prompt shaping. Soft-disabled by toggling Active; the engine
// never deletes one implicitly.
type Newsletter struct {
	ID               string    `json:"id" db:"id"`
	Slug             string    `json:"slug" db:"slug"`
	Name             string    `json:"name" db:"name"`
	Timezone         string    `json:"timezone" db:"timezone"`
	ScheduleTimes    []string  `json:"schedule_times"`
	Active           bool      `json:"active" db:"active"`
	IncludeWatchlist bool      `json:"include_watchlist" db:"include_watchlist"`
	Type             string    `json:"newsletter_type" db:"newsletter_type"`
	Verbosity        Verbosity `json:"verbosity_level" db:"verbosity_level"`
	CustomPrompt     string    `json:"custom_prompt" db:"custom_prompt"`
	Feeds            []Feed    `json:"feeds"`
	Watchlist        []string  `json:"watchlist_symbols"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// EnabledFeeds returns the feeds the fetcher should visit, in order.
func (n *Newsletter) EnabledFeeds() []Feed {
	out := make([]Feed, 0, len(n.Feeds))
	for _, f := range n.Feeds {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the invariants that hold for every stored newsletter.
func (n *Newsletter) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return fmt.Errorf("newsletter name is required")
	}
	if !slugRegex.MatchString(n.Slug) {
		return fmt.Errorf("invalid slug %q: must match [a-z0-9-]+", n.Slug)
	}
	if _, err := time.LoadLocation(n.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", n.Timezone, err)
	}
	for _, ts := range n.ScheduleTimes {
		if !timeRegex.MatchString(ts) {
			return fmt.Errorf("invalid schedule time %q: want HH:MM (24h)", ts)
		}
	}
	if n.Verbosity != "" && !n.Verbosity.Valid() {
		return fmt.Errorf("invalid verbosity %q", n.Verbosity)
	}
	for _, s := range n.Watchlist {
		if !symbolRegex.MatchString(s) {
			return fmt.Errorf("invalid watchlist symbol %q: must match [A-Z0-9.]+", s)
		}
	}
	return nil
}

// ValidHHMM reports whether s is a well-formed 24-hour HH:MM wall time.
func ValidHHMM(s string) bool {
	return timeRegex.MatchString(s)
}

// Slugify derives a URL-safe slug from a display name: lowercase with
// spaces and underscores collapsed to dashes. Uniquification against
// the store (-1, -2, ... suffixes) is the caller's job.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	out = strings.Trim(out, "-")
	if out == "" {
		out = "newsletter"
	}
	return out
}

// NormalizeSymbol uppercases and trims a watchlist ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Feed is one RSS/Atom source attached to a newsletter.
// (newsletter_id, url) is unique; disabled feeds are skipped by the
// fetcher but retained.
type Feed struct {
	ID           int64  `json:"id" db:"id"`
	NewsletterID string `json:"newsletter_id" db:"newsletter_id"`
	URL          string `json:"url" db:"url"`
	Title        string `json:"title,omitempty" db:"title"`
	Category     string `json:"category,omitempty" db:"category"`
	Enabled      bool   `json:"enabled" db:"enabled"`
	OrderIndex   int    `json:"order_index" db:"order_index"`
}
