package rank

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsnider89/ai-news-digest/internal/domain"
)

func itemAt(title, source string, age time.Duration, now time.Time) domain.Item {
	t := now.Add(-age)
	return domain.Item{Title: title, Source: source, CanonicalURL: "https://" + source + "/x", PublishedAt: &t}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  []string
	}{
		{"uppercases and splits", "Fed holds rates", []string{"FED", "HOLDS", "RATES"}},
		{"drops short tokens", "AI up 5%", []string{}},
		{"drops stopwords", "The New US Stocks Are Over Before the Bell", []string{"STOCKS", "BELL"}},
		{"non-alphanumerics become spaces", "stocks,rally:today[live]", []string{"STOCKS", "RALLY", "TODAY", "LIVE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.title)
			assert.Len(t, got, len(tt.want))
			for _, tok := range tt.want {
				_, ok := got[tok]
				assert.True(t, ok, "missing token %s", tok)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	a := Tokenize("Apple earnings beat expectations")
	b := Tokenize("Apple earnings crush expectations")
	c := Tokenize("Oil prices slide sharply")

	assert.InDelta(t, 0.6, jaccard(a, b), 0.0001, "3 shared of 5 union")
	assert.Equal(t, 0.0, jaccard(a, c))
	assert.Equal(t, 0.0, jaccard(a, map[string]struct{}{}))
}

func TestScoreFreshness(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"brand new", 0, 2*12 + 24},
		{"six hours old", 6 * time.Hour, 2*6 + 18},
		{"twelve hours loses the primary bonus", 12 * time.Hour, 12},
		{"day old scores nothing", 24 * time.Hour, 0},
		{"future timestamps clamp to zero age", -2 * time.Hour, 2*12 + 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := itemAt("some unique headline words", "a.com", tt.age, now)
			assert.InDelta(t, tt.want, score(item, now, 1), 0.0001)
		})
	}

	t.Run("no timestamp means no freshness", func(t *testing.T) {
		item := domain.Item{Title: "undated story", Source: "a.com"}
		assert.Equal(t, 0.0, score(item, now, 1))
	})

	t.Run("cluster boost", func(t *testing.T) {
		item := domain.Item{Title: "undated story", Source: "a.com"}
		assert.Equal(t, 12.0, score(item, now, 3))
	})
}

func TestClusterBoostLiftsCoveredStory(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

	// Three outlets covering the same story, published 20h ago, vs one
	// fresh unrelated item. Cluster boost 6*2=12 beats the small
	// freshness gap.
	items := []domain.Item{
		itemAt("Regulators approve landmark merger deal", "a.com", 20*time.Hour, now),
		itemAt("Landmark merger deal wins regulators approval", "b.com", 20*time.Hour, now),
		itemAt("Merger deal approved, regulators say", "c.com", 20*time.Hour, now),
		itemAt("Quiet trading session drifts sideways", "d.com", 18*time.Hour, now),
	}

	selected := Select(items, now, 10, 25)
	require.Len(t, selected, 4)
	topSources := map[string]bool{}
	for _, s := range selected[:3] {
		topSources[s.Item.Source] = true
	}
	assert.True(t, topSources["a.com"] && topSources["b.com"] && topSources["c.com"],
		"clustered story outranks the lone fresher item")
	assert.Equal(t, "d.com", selected[3].Item.Source)
}

func TestSelectStableTieBreak(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	items := []domain.Item{
		itemAt("first distinct alpha headline", "a.com", 3*time.Hour, now),
		itemAt("second distinct bravo headline", "b.com", 3*time.Hour, now),
		itemAt("third distinct charlie headline", "c.com", 3*time.Hour, now),
	}

	selected := Select(items, now, 10, 25)
	require.Len(t, selected, 3)
	assert.Equal(t, "a.com", selected[0].Item.Source)
	assert.Equal(t, "b.com", selected[1].Item.Source)
	assert.Equal(t, "c.com", selected[2].Item.Source)
	assert.Equal(t, []int{1, 2, 3}, []int{selected[0].Rank, selected[1].Rank, selected[2].Rank})
}

func TestSelectPerSourceCap(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

	var items []domain.Item
	// Five fresh items from one source, then older singles elsewhere.
	for i := 0; i < 5; i++ {
		items = append(items, itemAt(fmt.Sprintf("flood headline variant %d unique%d", i, i), "flood.com", time.Duration(i)*time.Minute, now))
	}
	items = append(items,
		itemAt("independent story from elsewhere", "x.com", 20*time.Hour, now),
		itemAt("another independent take entirely", "y.com", 21*time.Hour, now),
	)

	selected := Select(items, now, 2, 25)
	require.Len(t, selected, 4)

	var flood int
	for _, s := range selected {
		if s.Item.Source == "flood.com" {
			flood++
		}
	}
	assert.Equal(t, 2, flood, "source capped at 2")
}

func TestSelectMaxForAI(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	var items []domain.Item
	for i := 0; i < 40; i++ {
		items = append(items, itemAt(fmt.Sprintf("headline number%d token%d word%d", i, i*7, i*13),
			fmt.Sprintf("s%d.com", i), time.Hour, now))
	}

	selected := Select(items, now, 10, 25)
	assert.Len(t, selected, 25)
	assert.Equal(t, 1, selected[0].Rank)
	assert.Equal(t, 25, selected[24].Rank)
}

func TestSelectEmpty(t *testing.T) {
	assert.Nil(t, Select(nil, time.Now(), 10, 25))
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(0, 1)
	uf.union(1, 2)
	uf.union(3, 4)

	assert.Equal(t, uf.find(0), uf.find(2))
	assert.Equal(t, uf.find(3), uf.find(4))
	assert.NotEqual(t, uf.find(0), uf.find(3))
}
