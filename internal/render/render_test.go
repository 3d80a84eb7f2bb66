package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsnider89/ai-news-digest/internal/domain"
)

func TestToHTMLHeadingsAndParagraphs(t *testing.T) {
	out := ToHTML("## Top Stories\n\nMarkets rallied today.\n\n### Tech\n\nChips led the move.")

	assert.Contains(t, out, ">Top Stories</h2>")
	assert.Contains(t, out, ">Tech</h3>")
	assert.Contains(t, out, ">Markets rallied today.</p>")
	assert.Contains(t, out, ">Chips led the move.</p>")
}

func TestToHTMLLists(t *testing.T) {
	out := ToHTML("- first\n- second\n\n1. alpha\n2. beta")

	assert.Equal(t, 1, strings.Count(out, "<ul"))
	assert.Equal(t, 1, strings.Count(out, "<ol"))
	assert.Equal(t, 4, strings.Count(out, "<li"))
	assert.Contains(t, out, ">first</li>")
	assert.Contains(t, out, ">alpha</li>")

	// blank line closes the list before the next block
	ulEnd := strings.Index(out, "</ul>")
	olStart := strings.Index(out, "<ol")
	require.Greater(t, olStart, ulEnd)
}

func TestToHTMLListSwitchWithoutBlankLine(t *testing.T) {
	out := ToHTML("- bullet\n1. numbered")

	ulEnd := strings.Index(out, "</ul>")
	olStart := strings.Index(out, "<ol")
	require.NotEqual(t, -1, ulEnd)
	require.Greater(t, olStart, ulEnd)
}

func TestToHTMLStarBullets(t *testing.T) {
	out := ToHTML("* one\n* two")

	assert.Equal(t, 1, strings.Count(out, "<ul"))
	assert.Contains(t, out, ">one</li>")
	assert.Contains(t, out, ">two</li>")
}

func TestToHTMLInlineEmphasis(t *testing.T) {
	out := ToHTML("**bold** and *leaning* text")

	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, "<em>leaning</em>")
}

func TestToHTMLLinks(t *testing.T) {
	out := ToHTML("[Reuters](https://reuters.com/a) [https://example.com/b] and https://example.com/c.")

	assert.Contains(t, out, `<a href="https://reuters.com/a"`)
	assert.Contains(t, out, ">Reuters</a>")
	assert.Contains(t, out, `<a href="https://example.com/b"`)
	// bare URL keeps trailing punctuation outside the anchor
	assert.Contains(t, out, `<a href="https://example.com/c"`)
	assert.Contains(t, out, "</a>.")
	assert.Contains(t, out, `target="_blank"`)
	assert.Contains(t, out, `rel="noopener noreferrer"`)
}

func TestToHTMLMarkdownLinkNotDoubleLinkified(t *testing.T) {
	out := ToHTML("[read](https://example.com/story)")

	assert.Equal(t, 1, strings.Count(out, "<a href="))
	assert.Equal(t, 1, strings.Count(out, "https://example.com/story"))
}

func TestToHTMLEscapesRawHTML(t *testing.T) {
	out := ToHTML(`<script>alert("x")</script> & friends`)

	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "&amp; friends")
}

func TestToHTMLBoldInsideListItem(t *testing.T) {
	out := ToHTML("- **Apple** beat estimates")

	assert.Contains(t, out, "<strong>Apple</strong> beat estimates</li>")
}

func newsletter(name string, watchlist ...string) domain.Newsletter {
	return domain.Newsletter{Name: name, Watchlist: watchlist}
}

func renderTime(t *testing.T) time.Time {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// Tuesday, a regular trading day
	return time.Date(2025, 6, 3, 7, 30, 0, 0, ny)
}

func TestRenderSubjectAndBadge(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(Input{
		Newsletter: newsletter("Morning Markets"),
		Summary:    "## Headlines\n\n- quiet day",
		Now:        renderTime(t),
	})
	require.NoError(t, err)

	assert.Equal(t, "Morning Markets — Tuesday, Jun 3", out.Subject)
	assert.Contains(t, out.HTML, "Morning Markets")
	assert.Contains(t, out.HTML, "Market Day")
	assert.Contains(t, out.HTML, "Tuesday, Jun 03")
}

func TestRenderClosedBadgeOnWeekend(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	sunday := time.Date(2025, 6, 1, 7, 30, 0, 0, ny)

	out, err := r.Render(Input{
		Newsletter: newsletter("Weekend Reader"),
		Summary:    "calm",
		Now:        sunday,
	})
	require.NoError(t, err)

	assert.Contains(t, out.HTML, "Market Closed")
	assert.Contains(t, out.HTML, closedBadgeBg)
	assert.NotContains(t, out.HTML, "Market Snapshot")
}

func TestRenderMarketTable(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(Input{
		Newsletter: newsletter("Digest", "aapl", "msft"),
		Summary:    "moves",
		Quotes: []domain.MarketQuote{
			{Symbol: "AAPL", Price: 187.44, ChangeAmount: 1.22, ChangePercent: 0.66},
			{Symbol: "MSFT", Price: 402.10, ChangeAmount: -3.05, ChangePercent: -0.75},
		},
		Now: renderTime(t),
	})
	require.NoError(t, err)

	assert.Contains(t, out.HTML, "Market Snapshot")
	assert.Contains(t, out.HTML, "$187.44")
	assert.Contains(t, out.HTML, "+1.22")
	assert.Contains(t, out.HTML, "+0.66%")
	assert.Contains(t, out.HTML, "-3.05")
	assert.Contains(t, out.HTML, gainColor)
	assert.Contains(t, out.HTML, lossColor)
	assert.Contains(t, out.HTML, "Tracking: AAPL, MSFT")
}

func TestRenderEscapesNewsletterName(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(Input{
		Newsletter: newsletter("News <&> Views"),
		Summary:    "fine",
		Now:        renderTime(t),
	})
	require.NoError(t, err)

	assert.Contains(t, out.HTML, "News &lt;&amp;&gt; Views")
	assert.NotContains(t, out.HTML, "<&>")
	// subject and text stay unescaped
	assert.Contains(t, out.Subject, "News <&> Views")
}

func TestRenderPlainText(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(Input{
		Newsletter: newsletter("Digest", "AAPL"),
		Summary:    "## Top\n\n- **Apple** [story](https://x.com/a)\n\nWrap up.",
		Quotes: []domain.MarketQuote{
			{Symbol: "AAPL", Price: 187.44, ChangeAmount: 1.22, ChangePercent: 0.66},
		},
		Now: renderTime(t),
	})
	require.NoError(t, err)

	assert.NotContains(t, out.Text, "<")
	assert.Contains(t, out.Text, "Digest")
	assert.Contains(t, out.Text, "- AAPL: $187.44 (+1.22, +0.66%)")
	assert.Contains(t, out.Text, "Top")
	assert.Contains(t, out.Text, "- Apple story")
	assert.Contains(t, out.Text, "Wrap up.")
	assert.Contains(t, out.Text, "Tracking: AAPL")
}

func TestStripTagsKeepsStructure(t *testing.T) {
	text := StripTags(`<h2 style="x">Head</h2>` + "\n" + `<p style="x">One &amp; two</p>`)

	// block boundaries collapse to a single blank line
	assert.Equal(t, "Head\n\nOne & two", text)
}

func TestWatchlistSymbolsNormalized(t *testing.T) {
	got := watchlistSymbols([]string{" msft ", "aapl", "MSFT", ""})

	assert.Equal(t, []string{"AAPL", "MSFT"}, got)
}
