package ai

import (
	"fmt"
	"strings"

	"github.com/jsnider89/ai-news-digest/internal/domain"
)

// HeadlinesLabel marks a digest produced without any model.
const HeadlinesLabel = "headlines-only"

// maxHeadlines bounds the degenerate fallback body.
const maxHeadlines = 12

// Headlines synthesizes the deterministic digest used when the cascade
// is exhausted: the top selected items as a linked headline list.
func Headlines(items []domain.Item) *Result {
	var b strings.Builder
	b.WriteString("### Headlines\n\n")
	if len(items) == 0 {
		b.WriteString("No fresh articles were available for this edition.\n")
	}
	for i, item := range items {
		if i >= maxHeadlines {
			break
		}
		fmt.Fprintf(&b, "- **%s** — [%s](%s)\n", item.Title, item.Source, item.CanonicalURL)
	}
	return &Result{Markdown: b.String(), Label: HeadlinesLabel, Degenerate: true}
}
