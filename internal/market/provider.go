// Package market serves ticker quotes. Two providers implement the same
// contract: a stub random-walk generator seeded from the configured universe
// (the default for the demo) and a live provider pulling Yahoo Finance and
// CoinGecko. The rebalance engine never sees either; it only receives price
// snapshots assembled by the API layer.
package market

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/config"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/models"
)

// StubProvider walks each universe ticker randomly around its base price.
// All randomness lives here, behind the Provider contract.
type StubProvider struct {
	mu      sync.RWMutex
	rng     *rand.Rand
	order   []string
	entries map[string]config.UniverseEntry
	quotes  map[string]models.Quote
}

func NewStubProvider(universe config.Universe, seed int64) *StubProvider {
	p := &StubProvider{
		rng:     rand.New(rand.NewSource(seed)),
		entries: make(map[string]config.UniverseEntry, len(universe.Entries)),
		quotes:  make(map[string]models.Quote, len(universe.Entries)),
	}
	now := time.Now().UTC()
	for _, e := range universe.Entries {
		ticker := strings.ToUpper(strings.TrimSpace(e.Ticker))
		p.order = append(p.order, ticker)
		p.entries[ticker] = e
		p.quotes[ticker] = models.Quote{
			Ticker:    ticker,
			Name:      e.Name,
			Price:     e.Base,
			UpdatedAt: now,
		}
	}
	return p
}

// Refresh advances the random walk one step. Tickers outside the universe
// are ignored; they simply have no quote, which downstream consumers treat
// as "cannot price".
func (p *StubProvider) Refresh(_ context.Context, _ []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	for _, ticker := range p.order {
		entry := p.entries[ticker]
		q := p.quotes[ticker]

		vol := entry.Vol
		if vol <= 0 {
			vol = 0.01
		}
		step := (p.rng.Float64()*2 - 1) * vol * q.Price
		price := q.Price + step
		// Keep the walk from collapsing through zero.
		if floor := entry.Base * 0.2; price < floor {
			price = floor
		}

		q.Change = round2(price - entry.Base)
		q.ChangePct = 0
		if entry.Base > 0 {
			q.ChangePct = round2((price - entry.Base) / entry.Base * 100)
		}
		q.Price = round2(price)
		q.UpdatedAt = now
		p.quotes[ticker] = q
	}
	return nil
}

func (p *StubProvider) Quotes() []models.Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Quote, 0, len(p.order))
	for _, ticker := range p.order {
		out = append(out, p.quotes[ticker])
	}
	return out
}

func (p *StubProvider) Price(ticker string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[strings.ToUpper(strings.TrimSpace(ticker))]
	if !ok {
		return 0, false
	}
	return q.Price, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
