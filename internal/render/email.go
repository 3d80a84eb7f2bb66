package render

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/market"
)

// emailShell is the outer HTML document every digest ships in. A single
// centered column with inline styles; the summary and market rows are
// injected pre-rendered.
const emailShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{ newsletter_name }}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f5f7;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color:#f4f5f7;">
<tr><td align="center" style="padding:24px 12px;">
<table role="presentation" width="720" cellpadding="0" cellspacing="0" style="width:100%;max-width:720px;background-color:#ffffff;border-radius:8px;overflow:hidden;font-family:system-ui,-apple-system,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;">
<tr><td style="padding:28px 32px 20px;border-bottom:1px solid #e5e7eb;">
<h1 style="margin:0 0 10px;font-size:24px;line-height:1.2;color:#111827;">{{ newsletter_name }}</h1>
<span style="display:inline-block;padding:4px 12px;border-radius:9999px;font-size:13px;font-weight:600;background-color:{{ badge_bg }};color:{{ badge_fg }};border:1px solid {{ badge_border }};">{{ date_badge }}</span>
</td></tr>
{% if market_rows != "" %}
<tr><td style="padding:24px 32px 0;">
<h2 style="margin:0 0 12px;font-size:18px;color:#111827;">Market Snapshot</h2>
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="border-collapse:collapse;font-size:14px;">
<tr style="border-bottom:2px solid #e5e7eb;">
<th align="left" style="padding:8px 12px;color:#6b7280;font-weight:600;">Symbol</th>
<th align="right" style="padding:8px 12px;color:#6b7280;font-weight:600;">Price</th>
<th align="right" style="padding:8px 12px;color:#6b7280;font-weight:600;">Change</th>
<th align="right" style="padding:8px 12px;color:#6b7280;font-weight:600;">%</th>
</tr>
{{ market_rows }}
</table>
</td></tr>
{% endif %}
<tr><td style="padding:24px 32px;">
{{ summary_html }}
</td></tr>
<tr><td style="padding:16px 32px 28px;border-top:1px solid #e5e7eb;color:#6b7280;font-size:12px;line-height:1.6;">
{% if footer_symbols != "" %}<p style="margin:0 0 6px;">Tracking: {{ footer_symbols }}</p>{% endif %}
<p style="margin:0;">Generated {{ generated_at }}</p>
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`

// Badge palettes follow the header pill colors in the web UI.
const (
	openBadgeBg       = "#dcfce7"
	openBadgeFg       = "#065f46"
	openBadgeBorder   = "#bbf7d0"
	closedBadgeBg     = "#fee2e2"
	closedBadgeFg     = "#991b1b"
	closedBadgeBorder = "#fecaca"

	gainColor = "#059669"
	lossColor = "#dc2626"
	flatColor = "#374151"
)

// Input carries everything a digest render needs. Now must already be
// in the newsletter's timezone.
type Input struct {
	Newsletter domain.Newsletter
	Summary    string
	Quotes     []domain.MarketQuote
	Now        time.Time
}

// Output is the rendered email.
type Output struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer binds digest content into the email shell.
type Renderer struct {
	shell *liquid.Template
}

func NewRenderer() (*Renderer, error) {
	tpl, err := liquid.NewEngine().ParseString(emailShell)
	if err != nil {
		return nil, fmt.Errorf("parse email shell: %w", err)
	}
	return &Renderer{shell: tpl}, nil
}

// Render produces the subject, HTML body, and plain-text alternative.
func (r *Renderer) Render(in Input) (*Output, error) {
	summaryHTML := ToHTML(in.Summary)
	badge := market.Badge(in.Now)

	bg, fg, border := openBadgeBg, openBadgeFg, openBadgeBorder
	if market.Closed(in.Now) {
		bg, fg, border = closedBadgeBg, closedBadgeFg, closedBadgeBorder
	}

	htmlBody, err := r.shell.RenderString(map[string]interface{}{
		"newsletter_name": html.EscapeString(in.Newsletter.Name),
		"date_badge":      html.EscapeString(dateBadge(in.Now, badge)),
		"badge_bg":        bg,
		"badge_fg":        fg,
		"badge_border":    border,
		"market_rows":     marketRows(in.Quotes),
		"summary_html":    summaryHTML,
		"footer_symbols":  html.EscapeString(strings.Join(watchlistSymbols(in.Newsletter.Watchlist), ", ")),
		"generated_at":    in.Now.Format("Jan 2, 2006 3:04 PM MST"),
	})
	if err != nil {
		return nil, fmt.Errorf("render email shell: %w", err)
	}

	return &Output{
		Subject: Subject(in.Newsletter.Name, in.Now),
		HTML:    htmlBody,
		Text:    plainText(in, badge, summaryHTML),
	}, nil
}

// Subject formats the email subject in the newsletter's local date.
func Subject(name string, now time.Time) string {
	return fmt.Sprintf("%s — %s", name, now.Format("Monday, Jan 2"))
}

func dateBadge(now time.Time, badge string) string {
	return fmt.Sprintf("%s • %s", now.Format("Monday, Jan 02"), badge)
}

// marketRows builds the quote table body. Gains render green, losses
// red, sign applied to both change columns.
func marketRows(quotes []domain.MarketQuote) string {
	if len(quotes) == 0 {
		return ""
	}
	var b strings.Builder
	for _, q := range quotes {
		color := flatColor
		switch {
		case q.ChangeAmount > 0:
			color = gainColor
		case q.ChangeAmount < 0:
			color = lossColor
		}
		fmt.Fprintf(&b,
			`<tr style="border-bottom:1px solid #f3f4f6;">`+
				`<td style="padding:8px 12px;font-weight:600;color:#111827;">%s</td>`+
				`<td align="right" style="padding:8px 12px;color:#111827;">$%.2f</td>`+
				`<td align="right" style="padding:8px 12px;color:%s;">%+.2f</td>`+
				`<td align="right" style="padding:8px 12px;color:%s;">%+.2f%%</td>`+
				"</tr>\n",
			html.EscapeString(q.Symbol), q.Price, color, q.ChangeAmount, color, q.ChangePercent)
	}
	return strings.TrimRight(b.String(), "\n")
}

// plainText assembles the text/plain alternative: header lines, a
// bulletized quote list, then the summary with tags stripped.
func plainText(in Input, badge string, summaryHTML string) string {
	var b strings.Builder
	b.WriteString(in.Newsletter.Name + "\n")
	b.WriteString(dateBadge(in.Now, badge) + "\n\n")

	if len(in.Quotes) > 0 {
		b.WriteString("Market Snapshot:\n")
		for _, q := range in.Quotes {
			fmt.Fprintf(&b, "- %s: $%.2f (%+.2f, %+.2f%%)\n", q.Symbol, q.Price, q.ChangeAmount, q.ChangePercent)
		}
		b.WriteString("\n")
	}

	b.WriteString(StripTags(summaryHTML))

	if symbols := watchlistSymbols(in.Newsletter.Watchlist); len(symbols) > 0 {
		b.WriteString("\n\nTracking: " + strings.Join(symbols, ", "))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

var (
	blockEnd = strings.NewReplacer(
		"</p>", "\n", "</h2>", "\n", "</h3>", "\n",
		"</li>", "\n", "</ul>", "\n", "</ol>", "\n",
		"<br>", "\n", "<br/>", "\n",
	)
	tagPattern = regexp.MustCompile(`<[^>]*>`)
)

// StripTags flattens rendered HTML into readable text, keeping block
// boundaries as newlines and list items as dashes.
func StripTags(input string) string {
	s := blockEnd.Replace(input)
	s = strings.ReplaceAll(s, "<li ", "- <li ")
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

// watchlistSymbols returns the normalized, sorted tracked symbols.
func watchlistSymbols(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		sym := domain.NormalizeSymbol(s)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
