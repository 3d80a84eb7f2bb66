//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/domain"
	"github.com/jsnider89/ai-news-digest/internal/store"
)

// Seeds a working demo newsletter so a fresh install has something to
// run. Safe to re-run: a slug collision just gets a numeric suffix.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run scripts/seed_demo_newsletter.go
//	DATA_DIR=./data go run scripts/seed_demo_newsletter.go   (sqlite)
func main() {
	dbCfg := config.DatabaseConfig{
		URL:     os.Getenv("DATABASE_URL"),
		DataDir: os.Getenv("DATA_DIR"),
	}
	if dbCfg.URL == "" && dbCfg.DataDir == "" {
		dbCfg.DataDir = "./data"
	}

	st, err := store.Open(dbCfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	n := &domain.Newsletter{
		Name:             "Morning Markets Brief",
		Timezone:         "America/New_York",
		ScheduleTimes:    []string{"06:30", "17:30"},
		Active:           true,
		IncludeWatchlist: true,
		Type:             "financial_markets",
		Verbosity:        domain.VerbosityMedium,
		Feeds: []domain.Feed{
			{URL: "https://feeds.bbci.co.uk/news/business/rss.xml", Title: "BBC Business", Category: "business", Enabled: true, OrderIndex: 0},
			{URL: "https://www.ft.com/markets?format=rss", Title: "FT Markets", Category: "markets", Enabled: true, OrderIndex: 1},
			{URL: "https://feeds.marketwatch.com/marketwatch/topstories/", Title: "MarketWatch Top Stories", Category: "markets", Enabled: true, OrderIndex: 2},
		},
		Watchlist: []string{"SPY", "QQQ", "AAPL", "MSFT"},
	}

	if err := st.CreateNewsletter(ctx, n); err != nil {
		log.Fatalf("Failed to create newsletter: %v", err)
	}

	fmt.Printf("Created newsletter %q (id=%s, slug=%s)\n", n.Name, n.ID, n.Slug)
	fmt.Printf("  schedule: %v %s\n", n.ScheduleTimes, n.Timezone)
	fmt.Printf("  feeds: %d, watchlist: %v\n", len(n.Feeds), n.Watchlist)
	fmt.Println("Trigger a run with: curl -X POST localhost:8080/api/newsletters/" + n.ID + "/run")
}
