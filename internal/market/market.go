// Package market looks up equity quotes for a newsletter's watchlist.
// Lookups are sequential to stay inside vendor rate limits, and any
// failure skips the symbol rather than failing the run.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/pkg/httpretry"
	"github.com/jsnider89/ai-news-digest/internal/pkg/logger"
)

// Client fetches quotes from a Finnhub-compatible endpoint:
// GET {base}/quote?symbol=X&token=KEY -> {"c": price, "d": change, "dp": percent}.
type Client struct {
	baseURL string
	apiKey  string
	http    *httpretry.RetryClient
}

// quoteResponse mirrors the vendor payload. Pointers distinguish a
// missing field from a zero.
type quoteResponse struct {
	Current       *float64 `json:"c"`
	Change        *float64 `json:"d"`
	PercentChange *float64 `json:"dp"`
}

// NewClient builds a quote client. Timeout <= 0 defaults to 10s.
func NewClient(cfg config.MarketConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2),
	}
}

// Enabled reports whether quote lookups are configured at all.
func (c *Client) Enabled() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// FetchQuotes looks up each unique symbol in order and returns whatever
// succeeded. Per-symbol failures are logged and skipped.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string, capturedAt time.Time) []domain.MarketQuote {
	if !c.Enabled() || len(symbols) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(symbols))
	quotes := make([]domain.MarketQuote, 0, len(symbols))
	for _, symbol := range symbols {
		symbol = domain.NormalizeSymbol(symbol)
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}

		quote, err := c.fetchQuote(ctx, symbol)
		if err != nil {
			logger.Warn("market quote lookup failed", "symbol", symbol, "error", err.Error())
			continue
		}
		quote.CapturedAt = capturedAt
		quotes = append(quotes, quote)
	}
	return quotes
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (domain.MarketQuote, error) {
	var zero domain.MarketQuote

	endpoint := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		c.baseURL, url.QueryEscape(symbol), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return zero, fmt.Errorf("failed to build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return zero, fmt.Errorf("quote request failed: HTTP %d", resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return zero, fmt.Errorf("failed to decode quote: %w", err)
	}

	if !finite(body.Current) || !finite(body.Change) || !finite(body.PercentChange) {
		return zero, fmt.Errorf("incomplete quote data")
	}

	return domain.MarketQuote{
		Symbol:        symbol,
		Price:         *body.Current,
		ChangeAmount:  *body.Change,
		ChangePercent: *body.PercentChange,
	}, nil
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
