package ingest

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/jsnider89/ai-news-digest/internal/canon"
	"github.com/jsnider89/ai-news-digest/internal/domain"
)

// snippetLen caps how much of an item description survives into the
// prompt context.
const snippetLen = 220

// ParsedFeed is the output of parsing one feed body.
type ParsedFeed struct {
	Title string
	Items []domain.Item
}

// ParseFeed parses an RSS 2.0 or Atom 1.0 body into canonicalized items.
// Items missing a title or link are dropped, as are items whose link
// cannot be canonicalized.
func ParseFeed(body []byte, feed domain.Feed) (*ParsedFeed, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse failed: %w", err)
	}

	out := &ParsedFeed{Title: strings.TrimSpace(parsed.Title)}
	feedTitle := displayTitle(feed, out.Title)

	for _, item := range parsed.Items {
		converted, ok := convertItem(item, feedTitle)
		if !ok {
			continue
		}
		out.Items = append(out.Items, converted)
	}
	return out, nil
}

// convertItem maps one gofeed item to a domain.Item, computing the
// canonical URL and content hash. ok is false when the item is dropped.
func convertItem(item *gofeed.Item, feedTitle string) (domain.Item, bool) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if link == "" && item.GUID != "" && looksLikeURL(item.GUID) {
		link = strings.TrimSpace(item.GUID)
	}
	if title == "" || link == "" {
		return domain.Item{}, false
	}

	canonical, host, err := canon.CanonicalURL(link)
	if err != nil {
		return domain.Item{}, false
	}

	published := publishedAt(item)
	titleNorm := canon.NormalizeTitle(title)
	hash := canon.ContentHash(titleNorm, canonical, canon.DateOnly(published), host)

	return domain.Item{
		Title:        title,
		Description:  Snippet(item.Description, snippetLen),
		CanonicalURL: canonical,
		Source:       host,
		FeedTitle:    feedTitle,
		PublishedAt:  published,
		ContentHash:  hash,
	}, true
}

// publishedAt resolves the item timestamp: published, else updated,
// else nil. A nil timestamp still hashes (empty date component) but
// earns no freshness score.
func publishedAt(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		return &t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		return &t
	}
	return nil
}

func looksLikeURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Snippet strips HTML tags and entities from a description and
// truncates to max runes on a word boundary where possible.
func Snippet(input string, max int) string {
	text := tagPattern.ReplaceAllString(input, "")
	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := string(runes[:max])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
