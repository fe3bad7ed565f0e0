package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/config"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/models"
)

// LiveProvider pulls quotes from Yahoo Finance (stocks/ETFs) and CoinGecko
// (crypto). Upstream calls are throttled so the demo never hammers either
// API.
type LiveProvider struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	mu         sync.RWMutex
	order      []string
	names      map[string]string
	quotes     map[string]models.Quote
}

func NewLiveProvider(universe config.Universe) *LiveProvider {
	p := &LiveProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 4),
		names:      make(map[string]string, len(universe.Entries)),
		quotes:     make(map[string]models.Quote),
	}
	for _, e := range universe.Entries {
		ticker := strings.ToUpper(strings.TrimSpace(e.Ticker))
		p.order = append(p.order, ticker)
		p.names[ticker] = e.Name
	}
	return p
}

// Refresh fetches fresh prices for the universe plus any extra tickers
// (e.g. persisted positions outside the universe). Per-ticker fetch
// failures are skipped so one bad symbol cannot starve the rest.
func (p *LiveProvider) Refresh(ctx context.Context, extra []string) error {
	stocks := make([]string, 0)
	cryptos := make([]string, 0)
	seen := map[string]bool{}

	want := append(append([]string(nil), p.order...), extra...)
	for _, raw := range want {
		ticker := strings.ToUpper(strings.TrimSpace(raw))
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		if id, ok := coinGeckoIDs[ticker]; ok {
			cryptos = append(cryptos, id)
		} else {
			stocks = append(stocks, ticker)
		}
	}

	updates := make(map[string]float64)
	if len(stocks) > 0 {
		stockUpdates, err := p.fetchYahooQuotes(ctx, stocks)
		if err != nil {
			return err
		}
		for k, v := range stockUpdates {
			updates[k] = v
		}
	}

	if len(cryptos) > 0 {
		cryptoUpdates, err := p.fetchCoinGeckoPrices(ctx, cryptos)
		if err != nil {
			return err
		}
		for k, v := range cryptoUpdates {
			updates[k] = v
		}
	}

	now := time.Now().UTC()
	p.mu.Lock()
	for ticker, price := range updates {
		if math.IsNaN(price) || price <= 0 {
			continue
		}
		q, ok := p.quotes[ticker]
		if !ok {
			q = models.Quote{Ticker: ticker, Name: p.names[ticker]}
			if !contains(p.order, ticker) {
				p.order = append(p.order, ticker)
			}
		} else if q.Price > 0 {
			q.Change = round2(price - q.Price)
			q.ChangePct = round2((price - q.Price) / q.Price * 100)
		}
		q.Price = round2(price)
		q.UpdatedAt = now
		p.quotes[ticker] = q
	}
	p.mu.Unlock()

	return nil
}

func (p *LiveProvider) Quotes() []models.Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Quote, 0, len(p.order))
	for _, ticker := range p.order {
		if q, ok := p.quotes[ticker]; ok {
			out = append(out, q)
		}
	}
	return out
}

func (p *LiveProvider) Price(ticker string) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[strings.ToUpper(strings.TrimSpace(ticker))]
	if !ok {
		return 0, false
	}
	return q.Price, true
}

func (p *LiveProvider) fetchYahooQuotes(ctx context.Context, symbols []string) (map[string]float64, error) {
	updates := make(map[string]float64)

	for _, symbol := range symbols {
		if err := p.limiter.Wait(ctx); err != nil {
			return updates, err
		}

		endpoint := fmt.Sprintf("https://query2.finance.yahoo.com/v8/finance/chart/%s?interval=1d&range=1d", url.PathEscape(symbol))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}

		var payload struct {
			Chart struct {
				Result []struct {
					Meta struct {
						Symbol             string  `json:"symbol"`
						RegularMarketPrice float64 `json:"regularMarketPrice"`
					} `json:"meta"`
				} `json:"result"`
			} `json:"chart"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			resp.Body.Close()
			continue
		}
		resp.Body.Close()

		if len(payload.Chart.Result) > 0 {
			meta := payload.Chart.Result[0].Meta
			updates[strings.ToUpper(meta.Symbol)] = meta.RegularMarketPrice
		}
	}

	return updates, nil
}

func (p *LiveProvider) fetchCoinGeckoPrices(ctx context.Context, ids []string) (map[string]float64, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("ids", strings.Join(ids, ","))
	values.Set("vs_currencies", "usd")
	endpoint := "https://api.coingecko.com/api/v3/simple/price?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create coingecko request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch coingecko prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coingecko status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode coingecko prices: %w", err)
	}

	updates := make(map[string]float64)
	for ticker, id := range coinGeckoIDs {
		if val, ok := payload[id]; ok {
			updates[ticker] = val.USD
		}
	}
	return updates, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

var coinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"DOGE": "dogecoin",
	"ADA":  "cardano",
	"XRP":  "ripple",
	"DOT":  "polkadot",
	"AVAX": "avalanche-2",
	"LINK": "chainlink",
}
