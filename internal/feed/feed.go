// Package feed generates the demo news headlines and AI-style insights the
// dashboard shows next to the quotes. Everything here is canned template
// data; the randomness stays behind the Generator so nothing else in the
// server owns mutable stub state.
package feed

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/models"
)

type Generator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	tickers []string
}

func NewGenerator(tickers []string, seed int64) *Generator {
	if len(tickers) == 0 {
		tickers = []string{"AAPL", "TSLA", "SPY", "MSFT"}
	}
	return &Generator{
		rng:     rand.New(rand.NewSource(seed)),
		tickers: tickers,
	}
}

var headlineTemplates = []string{
	"%s beats quarterly revenue estimates",
	"Analysts raise price targets on %s after product event",
	"%s slides as sector rotation continues",
	"Institutional buyers accumulate %s ahead of earnings",
	"%s announces expanded buyback program",
	"Options activity in %s hits three-month high",
	"Supply chain update lifts outlook for %s",
	"%s downgraded on valuation concerns",
}

var sources = []string{"MarketWatch Demo", "FinSage Wire", "Street Signals", "The Daily Ticker"}

// News returns n randomized demo headlines with timestamps spread over the
// trailing hours.
func (g *Generator) News(n int) []models.NewsItem {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	items := make([]models.NewsItem, 0, n)
	for i := 0; i < n; i++ {
		ticker := g.tickers[g.rng.Intn(len(g.tickers))]
		template := headlineTemplates[g.rng.Intn(len(headlineTemplates))]
		items = append(items, models.NewsItem{
			ID:          uuid.NewString(),
			Ticker:      ticker,
			Headline:    fmt.Sprintf(template, ticker),
			Source:      sources[g.rng.Intn(len(sources))],
			PublishedAt: now.Add(-time.Duration(g.rng.Intn(8*60)) * time.Minute),
		})
	}
	return items
}

var stances = []string{"bullish", "bearish", "neutral"}

var insightTemplates = map[string][]string{
	"bullish": {
		"Momentum and breadth both favor %s; dips remain buyable while the trend holds.",
		"%s screens cheap against peers on forward earnings; positioning is not yet crowded.",
	},
	"bearish": {
		"%s looks extended versus its moving averages; risk/reward favors trimming.",
		"Earnings revisions for %s have rolled over; expect multiple compression.",
	},
	"neutral": {
		"%s is rangebound; wait for a close outside the recent band before adding.",
		"Signals on %s are mixed; hold current exposure and revisit after the print.",
	},
}

// Insights returns one canned AI-style take per requested ticker.
func (g *Generator) Insights(tickers []string) []models.Insight {
	if len(tickers) == 0 {
		tickers = g.tickers
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	items := make([]models.Insight, 0, len(tickers))
	for _, ticker := range tickers {
		stance := stances[g.rng.Intn(len(stances))]
		pool := insightTemplates[stance]
		items = append(items, models.Insight{
			ID:          uuid.NewString(),
			Ticker:      ticker,
			Stance:      stance,
			Summary:     fmt.Sprintf(pool[g.rng.Intn(len(pool))], ticker),
			Confidence:  0.5 + g.rng.Float64()*0.45,
			GeneratedAt: now,
		})
	}
	return items
}
