// Package rank scores freshly-ingested items and selects the slice that
// goes to the model: freshness-weighted, cluster-boosted, capped per
// source so one outlet cannot dominate the digest.
package rank

import (
	"sort"
	"strings"
	"time"

	"github.com/jsnider89/ai-news-digest/internal/domain"
)

// Selection caps used when the caller passes zero values.
const (
	DefaultPerSourceCap = 10
	DefaultMaxForAI     = 25
)

// jaccardThreshold is the minimum title-token similarity for two items
// to share a topic cluster.
const jaccardThreshold = 0.4

// stopwords are dropped from title token sets before comparison.
var stopwords = map[string]struct{}{
	"THE": {}, "A": {}, "AN": {}, "OF": {}, "IN": {}, "ON": {}, "AND": {},
	"OR": {}, "TO": {}, "FOR": {}, "WITH": {}, "AT": {}, "BY": {},
	"FROM": {}, "ABOUT": {}, "OVER": {}, "AFTER": {}, "BEFORE": {},
	"IS": {}, "ARE": {}, "WAS": {}, "WERE": {}, "AS": {}, "NEW": {}, "US": {},
}

// Scored pairs an item with its computed score and, once selected, its
// 1-based rank.
type Scored struct {
	Item  domain.Item
	Score float64
	Rank  int
}

// Select scores every item and returns the accepted slice in rank order.
// Items arrive in ingestion order; ties keep that order (stable sort).
func Select(items []domain.Item, now time.Time, perSourceCap, maxForAI int) []Scored {
	if perSourceCap <= 0 {
		perSourceCap = DefaultPerSourceCap
	}
	if maxForAI <= 0 {
		maxForAI = DefaultMaxForAI
	}
	if len(items) == 0 {
		return nil
	}

	clusterSizes := clusterSizes(items)

	scored := make([]Scored, len(items))
	for i, item := range items {
		scored[i] = Scored{Item: item, Score: score(item, now, clusterSizes[i])}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})

	perSource := make(map[string]int)
	selected := make([]Scored, 0, maxForAI)
	for _, s := range scored {
		if perSource[s.Item.Source] >= perSourceCap {
			continue
		}
		perSource[s.Item.Source]++
		s.Rank = len(selected) + 1
		selected = append(selected, s)
		if len(selected) >= maxForAI {
			break
		}
	}
	return selected
}

// score computes freshness plus cluster boost for one item. Items with
// no parseable timestamp earn no freshness points.
func score(item domain.Item, now time.Time, clusterSize int) float64 {
	var total float64
	if item.PublishedAt != nil {
		h := now.Sub(*item.PublishedAt).Hours()
		if h < 0 {
			h = 0
		}
		if h < 12 {
			total += 2 * (12 - h)
		}
		if h < 24 {
			total += 24 - h
		}
	}
	if clusterSize > 1 {
		total += 6 * float64(clusterSize-1)
	}
	return total
}

// clusterSizes unions items whose title token sets overlap at or above
// the Jaccard threshold and returns each item's final cluster size.
func clusterSizes(items []domain.Item) []int {
	tokens := make([]map[string]struct{}, len(items))
	for i, item := range items {
		tokens[i] = Tokenize(item.Title)
	}

	uf := newUnionFind(len(items))
	for i := 0; i < len(items); i++ {
		if len(tokens[i]) == 0 {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			if len(tokens[j]) == 0 {
				continue
			}
			if jaccard(tokens[i], tokens[j]) >= jaccardThreshold {
				uf.union(i, j)
			}
		}
	}

	counts := make(map[int]int)
	for i := range items {
		counts[uf.find(i)]++
	}
	sizes := make([]int, len(items))
	for i := range items {
		sizes[i] = counts[uf.find(i)]
	}
	return sizes
}

// Tokenize builds the comparison token set for a title: uppercase,
// non-alphanumerics become spaces, tokens shorter than 3 runes and
// stopwords are dropped.
func Tokenize(title string) map[string]struct{} {
	upper := strings.ToUpper(title)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	set := make(map[string]struct{})
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	var inter int
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// unionFind is a weighted union-find with path compression.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
