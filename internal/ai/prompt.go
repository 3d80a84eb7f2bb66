package ai

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/market"
)

// Limits on how much article context reaches the model.
const (
	topStoriesLimit     = 10
	perSourceGroupLimit = 5
)

const systemPrompt = `You are a professional financial market analyst. Produce comprehensive analysis using strict Markdown formatting:

- Use ## for main sections and ### for subsections
- Use **bold** for emphasis and important terms
- Use - for bullet lists and 1. 2. 3. for numbered lists
- Separate sections with blank lines
- Use | tables when presenting market data

Maintain this exact formatting structure in every response.`

const basePrompt = `Analyze the following market data and news articles to create a comprehensive daily briefing. Identify patterns, assess market sentiment, and determine the most significant developments.

When creating the briefing:
1. Identify recurring themes across multiple news sources; stories covered by several sources are especially important
2. Assess overall market sentiment from both price movements and news tone
3. Weigh newer stories above older ones
4. Note any divergence between market performance and news sentiment`

const marketInstructions = `This briefing tracks an equity watchlist. Treat the market-performance section as a summary of the session: describe overall direction using the supplied price table, call out notable movers, and connect price action to the day's reporting. Never invent prices or percentages.`

const noMarketDataNotice = `No direct market performance data was supplied for this briefing. Do not fabricate price tables or refer to watchlist tickers unless they are explicitly provided.`

// typeInstructions adds per-newsletter-type emphasis. Unknown types get
// no extra section.
var typeInstructions = map[string]string{
	"general_business": `Audience: business readers who want one complete daily read. Balance market coverage with broader business, policy, and world news. Plain language; explain jargon on first use.`,
	"markets": `Audience: active market watchers. Weight the briefing toward price action, central-bank and macro data, earnings, and sector rotation. General news earns a place only when it moves markets.`,
	"tech": `Audience: technology industry readers. Weight the briefing toward product launches, platform shifts, chips, AI, and startup funding. Market coverage stays brief unless tech names drive it.`,
}

// verbosityInstructions maps the newsletter's verbosity level to an
// instruction level for story depth.
var verbosityInstructions = map[domain.Verbosity]string{
	domain.VerbosityLow:    "Keep each story to one or two tight sentences.",
	domain.VerbosityMedium: "Give each story a short paragraph: what happened and why it matters.",
	domain.VerbosityHigh:   "Give each story a full paragraph covering what happened, context, and implications.",
}

// PromptInput gathers everything the builder needs for one run.
// Selected is in rank order; Now is already in the newsletter's
// timezone.
type PromptInput struct {
	Newsletter domain.Newsletter
	Selected   []domain.Item
	Quotes     []domain.MarketQuote
	Now        time.Time
}

// BuildPrompt assembles the system and user messages: base analyst
// instructions, type instructions, market instructions and data (when a
// watchlist exists), the briefing context, article context, watchlist
// focus, the newsletter's custom prompt, and the format contract.
func BuildPrompt(in PromptInput) Prompt {
	n := in.Newsletter
	watchlist := normalizeWatchlist(n.Watchlist)

	sections := []string{basePrompt}

	if inst, ok := typeInstructions[n.Type]; ok {
		sections = append(sections, inst)
	}
	if len(watchlist) > 0 {
		sections = append(sections, marketInstructions)
	}

	sections = append(sections, contextBlock(in, watchlist))

	switch {
	case len(in.Quotes) > 0:
		sections = append(sections, "## Market Data\n"+marketTable(in.Quotes))
	case len(watchlist) > 0:
		sections = append(sections, noMarketDataNotice)
	}

	sections = append(sections, articleContext(in.Selected))

	if len(watchlist) > 0 {
		sections = append(sections, "Focus especially on these watchlist tickers: "+strings.Join(watchlist, ", ")+".")
	}
	if custom := strings.TrimSpace(n.CustomPrompt); custom != "" {
		sections = append(sections, custom)
	}

	sections = append(sections, formatInstructions(in.Now, n.Verbosity))

	return Prompt{
		System:    systemPrompt,
		User:      strings.Join(sections, "\n\n"),
		Verbosity: string(n.Verbosity),
	}
}

// contextBlock states the run's local date, the market-status hint, and
// the tracked tickers, plus the literal-date rule.
func contextBlock(in PromptInput, watchlist []string) string {
	var b strings.Builder
	b.WriteString("## Briefing Context\n\n")
	fmt.Fprintf(&b, "- Date: %s\n", in.Now.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&b, "- US markets: %s\n", market.Status(in.Now))
	if len(watchlist) > 0 {
		fmt.Fprintf(&b, "- Tracked tickers: %s\n", strings.Join(watchlist, ", "))
	}
	b.WriteString("\nUse the literal dates above wherever a date is needed. Never emit placeholder tokens such as [Today] or [Date].")
	return b.String()
}

// marketTable renders quotes as the markdown table the model reads.
// The sign of the dollar change carries to the percent column.
func marketTable(quotes []domain.MarketQuote) string {
	var b strings.Builder
	b.WriteString("| Symbol | Price | Change | % |\n| --- | ---: | ---: | ---: |")
	for _, q := range quotes {
		sign := "+"
		if q.ChangeAmount < 0 {
			sign = "-"
		}
		fmt.Fprintf(&b, "\n| %s | $%.2f | %s%.2f | %s%.2f%% |",
			q.Symbol, q.Price, sign, math.Abs(q.ChangeAmount), sign, math.Abs(q.ChangePercent))
	}
	return b.String()
}

// articleContext lists the ranked headlines, then groups the selection
// by feed with snippets.
func articleContext(items []domain.Item) string {
	if len(items) == 0 {
		return "## Articles\n\nNo articles were retrieved from the configured feeds."
	}

	var b strings.Builder
	b.WriteString("## Articles\n\n")
	b.WriteString("## Top stories (prioritized by recency & cross-feed mentions)\n")
	for i, item := range items {
		if i >= topStoriesLimit {
			break
		}
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, item.Title, item.CanonicalURL)
	}

	groups, order := groupBySource(items)
	for _, source := range order {
		group := groups[source]
		fmt.Fprintf(&b, "\n### %s (%d articles)\n", source, len(group))
		for i, item := range group {
			if i >= perSourceGroupLimit {
				break
			}
			fmt.Fprintf(&b, "- **%s**\n", item.Title)
			if item.Description != "" {
				fmt.Fprintf(&b, "  %s\n", item.Description)
			}
			fmt.Fprintf(&b, "  Source: %s\n", item.CanonicalURL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// groupBySource buckets items by feed title (hostname when the feed has
// none), keeping first-appearance order and sorting each bucket newest
// first.
func groupBySource(items []domain.Item) (map[string][]domain.Item, []string) {
	groups := make(map[string][]domain.Item)
	var order []string
	for _, item := range items {
		source := item.FeedTitle
		if source == "" {
			source = item.Source
		}
		if _, seen := groups[source]; !seen {
			order = append(order, source)
		}
		groups[source] = append(groups[source], item)
	}
	for _, source := range order {
		group := groups[source]
		sort.SliceStable(group, func(a, b int) bool {
			ta, tb := group[a].PublishedAt, group[b].PublishedAt
			switch {
			case ta == nil:
				return false
			case tb == nil:
				return true
			default:
				return ta.After(*tb)
			}
		})
	}
	return groups, order
}

// formatInstructions pins the output contract: exact section headings,
// story counts, linking, and tomorrow's literal date.
func formatInstructions(now time.Time, verbosity domain.Verbosity) string {
	tomorrow := now.AddDate(0, 0, 1).Format("Monday, January 2, 2006")

	var b strings.Builder
	b.WriteString("Structure the briefing using exactly these Markdown headings:\n\n")
	b.WriteString("## SECTION 1 - MARKET PERFORMANCE\n")
	b.WriteString("Summarize the session from the market data above. Give the overarching picture; do not recap every symbol one by one.\n\n")
	b.WriteString("## SECTION 2 - TOP MARKET & ECONOMY STORIES (5 stories)\n")
	b.WriteString("The five most significant market or economy stories. Prefer stories corroborated across sources, central-bank and economic-data news, and major financial institutions.\n\n")
	b.WriteString("## SECTION 3 - GENERAL NEWS STORIES (10 stories)\n")
	b.WriteString("The ten most important non-financial stories, judged the same way.\n\n")
	b.WriteString("### LOOKING AHEAD (Tomorrow)\n")
	fmt.Fprintf(&b, "Events scheduled for %s and themes to monitor, with times when the articles name them.\n\n", tomorrow)
	b.WriteString("Every story needs a **bold headline**, an explanation of what happened and why it matters, and a [source](url) link taken from the articles above. Number the stories within each section. Cover every story completely; never refer the reader elsewhere or truncate a section.")

	if inst, ok := verbosityInstructions[verbosity]; ok {
		b.WriteString(" ")
		b.WriteString(inst)
	}
	return b.String()
}

func normalizeWatchlist(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	var out []string
	for _, s := range symbols {
		s = domain.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
