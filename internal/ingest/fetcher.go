// Package ingest fetches and parses the RSS/Atom feeds configured for a
// newsletter. Fetches run concurrently under a fixed in-flight bound and
// are all-settled: one broken feed never aborts the others.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/domain"
)

const (
	// acceptHeader advertises feed formats; plain XML is accepted at a
	// lower preference for servers that mislabel their feeds.
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml;q=0.9"

	userAgent = "ai-news-digest/1.0 (+https://github.com/jsnider89/ai-news-digest)"

	// maxFeedBody caps how much of a feed response is read. Real feeds
	// are well under this; it guards against a misconfigured URL pointing
	// at something huge.
	maxFeedBody = 8 << 20
)

// FeedResult is the settled outcome of fetching one configured feed.
// Exactly one of Items/Err carries the result.
type FeedResult struct {
	Feed  domain.Feed
	Title string // display title: configured title, else parsed feed title, else URL
	Items []domain.Item
	Err   error
}

// OK reports whether the feed was fetched and parsed successfully.
func (r FeedResult) OK() bool { return r.Err == nil }

// Outcome renders the per-feed run-log line.
func (r FeedResult) Outcome() string {
	if r.Err != nil {
		return fmt.Sprintf("❌ %s: %v", r.Title, r.Err)
	}
	return fmt.Sprintf("✅ %s (%d articles)", r.Title, len(r.Items))
}

// Fetcher retrieves feeds over HTTP with a per-request timeout and a
// bound on concurrent fetches.
type Fetcher struct {
	client         *http.Client
	timeout        time.Duration
	maxConcurrency int
}

// Option overrides a Fetcher default.
type Option func(*Fetcher)

// WithClient substitutes the HTTP client (tests point it at a stub).
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// NewFetcher builds a Fetcher. timeout <= 0 defaults to 10s and
// maxConcurrency <= 0 defaults to 6.
func NewFetcher(timeout time.Duration, maxConcurrency int, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 6
	}
	f := &Fetcher{
		// Redirects are followed by default; the timeout covers the
		// whole exchange including redirect hops.
		client:         &http.Client{Timeout: timeout},
		timeout:        timeout,
		maxConcurrency: maxConcurrency,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll fetches every feed concurrently, at most maxConcurrency in
// flight, and returns one FeedResult per input feed in input order.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []domain.Feed) []FeedResult {
	results := make([]FeedResult, len(feeds))
	sem := make(chan struct{}, f.maxConcurrency)
	var wg sync.WaitGroup

	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed domain.Feed) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = FeedResult{Feed: feed, Title: displayTitle(feed, ""), Err: ctx.Err()}
				return
			}
			results[i] = f.fetchOne(ctx, feed)
		}(i, feed)
	}
	wg.Wait()
	return results
}

// fetchOne retrieves and parses a single feed. Any failure is captured
// in the result rather than returned.
func (f *Fetcher) fetchOne(ctx context.Context, feed domain.Feed) FeedResult {
	res := FeedResult{Feed: feed, Title: displayTitle(feed, "")}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, feed.URL, nil)
	if err != nil {
		res.Err = fmt.Errorf("invalid feed url: %w", err)
		return res
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("fetch failed: %w", err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		res.Err = fmt.Errorf("fetch failed: HTTP %d", resp.StatusCode)
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		res.Err = fmt.Errorf("read failed: %w", err)
		return res
	}

	parsed, err := ParseFeed(body, feed)
	if err != nil {
		res.Err = err
		return res
	}
	res.Title = displayTitle(feed, parsed.Title)
	res.Items = parsed.Items
	return res
}

// displayTitle picks the name used in logs and prompt source groups:
// the configured title wins, then the parsed feed title, then the URL.
func displayTitle(feed domain.Feed, parsedTitle string) string {
	if feed.Title != "" {
		return feed.Title
	}
	if parsedTitle != "" {
		return parsedTitle
	}
	return feed.URL
}
