// Package render turns the model's Markdown into the HTML email and its
// plain-text alternative. Only the narrow Markdown subset the format
// contract asks for is supported; everything else falls through as an
// escaped paragraph.
package render

import (
	"html"
	"regexp"
	"strings"
)

const anchorAttrs = ` target="_blank" rel="noopener noreferrer"`

// Inline styles keep the output renderable in mail clients that drop
// style blocks.
const (
	h2Style   = `margin:24px 0 12px;font-size:20px;line-height:1.3;color:#111827;`
	h3Style   = `margin:20px 0 10px;font-size:16px;line-height:1.3;color:#111827;`
	pStyle    = `margin:0 0 14px;font-size:15px;line-height:1.6;color:#374151;`
	listStyle = `margin:0 0 14px;padding-left:24px;font-size:15px;line-height:1.6;color:#374151;`
	liStyle   = `margin:0 0 6px;`
	aStyle    = `color:#2563eb;text-decoration:underline;`
)

var (
	orderedItem = regexp.MustCompile(`^\d+\.\s+(.*)$`)

	// inlinePattern matches, in priority order: [text](url), [bare-url],
	// bare URLs, bold, italics. One left-to-right scan so substitutions
	// never rescan each other's output. It runs on escaped text.
	inlinePattern = regexp.MustCompile(
		`\[([^\]]+)\]\((https?://[^)\s]+)\)` +
			`|\[(https?://[^\]\s]+)\]` +
			`|(https?://[^\s<>"')\]]+)` +
			`|\*\*([^*]+)\*\*` +
			`|\*([^*\s][^*]*)\*`)
)

type listState int

const (
	listNone listState = iota
	listUnordered
	listOrdered
)

// ToHTML converts the supported Markdown subset line by line. Input is
// HTML-escaped before emphasis and link substitution.
func ToHTML(markdown string) string {
	var b strings.Builder
	state := listNone

	closeList := func() {
		switch state {
		case listUnordered:
			b.WriteString("</ul>\n")
		case listOrdered:
			b.WriteString("</ol>\n")
		}
		state = listNone
	}

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			closeList()

		case strings.HasPrefix(trimmed, "### "):
			closeList()
			b.WriteString(`<h3 style="` + h3Style + `">` + inline(strings.TrimPrefix(trimmed, "### ")) + "</h3>\n")

		case strings.HasPrefix(trimmed, "## "):
			closeList()
			b.WriteString(`<h2 style="` + h2Style + `">` + inline(strings.TrimPrefix(trimmed, "## ")) + "</h2>\n")

		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			if state != listUnordered {
				closeList()
				b.WriteString(`<ul style="` + listStyle + `">` + "\n")
				state = listUnordered
			}
			b.WriteString(`<li style="` + liStyle + `">` + inline(trimmed[2:]) + "</li>\n")

		case orderedItem.MatchString(trimmed):
			if state != listOrdered {
				closeList()
				b.WriteString(`<ol style="` + listStyle + `">` + "\n")
				state = listOrdered
			}
			b.WriteString(`<li style="` + liStyle + `">` + inline(orderedItem.FindStringSubmatch(trimmed)[1]) + "</li>\n")

		default:
			closeList()
			b.WriteString(`<p style="` + pStyle + `">` + inline(trimmed) + "</p>\n")
		}
	}
	closeList()
	return strings.TrimRight(b.String(), "\n")
}

// inline escapes a line and applies link, bold, and italic substitution.
func inline(text string) string {
	escaped := html.EscapeString(text)
	return inlinePattern.ReplaceAllStringFunc(escaped, func(m string) string {
		sub := inlinePattern.FindStringSubmatch(m)
		switch {
		case sub[2] != "":
			return anchor(sub[2], sub[1])
		case sub[3] != "":
			return anchor(sub[3], sub[3])
		case sub[4] != "":
			url, tail := trimTrailingPunct(sub[4])
			return anchor(url, url) + tail
		case sub[5] != "":
			return "<strong>" + sub[5] + "</strong>"
		default:
			return "<em>" + sub[6] + "</em>"
		}
	})
}

func anchor(href, text string) string {
	return `<a href="` + href + `" style="` + aStyle + `"` + anchorAttrs + `>` + text + `</a>`
}

// trimTrailingPunct keeps sentence punctuation out of bare-URL anchors.
func trimTrailingPunct(url string) (string, string) {
	i := len(url)
	for i > 0 {
		switch url[i-1] {
		case '.', ',', ';', ':', '!', '?':
			i--
		default:
			return url[:i], url[i:]
		}
	}
	return url[:i], url[i:]
}
