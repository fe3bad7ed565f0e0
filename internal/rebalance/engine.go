// Package rebalance computes single-pass rebalancing plans for a portfolio
// snapshot. Given current positions, free cash and target allocation weights
// it proposes the trades needed to move the portfolio toward target, then
// simulates applying them under a shared cash constraint and reports the
// resulting drift.
//
// The engine is pure: it never mutates its inputs, performs no I/O, and the
// same inputs always produce the same plan.
package rebalance

import (
	"math"
	"sort"
	"strings"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is a single line of the portfolio snapshot handed to Simulate.
// Quantity is shares held, Price the last known price per share.
type Position struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"qty"`
	Price    float64 `json:"price"`
}

// Settings tunes trade generation and simulated execution.
type Settings struct {
	// MinTradeValue suppresses any trade whose notional is below this
	// many dollars.
	MinTradeValue float64 `json:"minTradeValue"`
	// TxCostBps is the transaction cost in basis points of trade notional.
	TxCostBps float64 `json:"txCostBps"`
}

// Trade is a proposed order. The trades list is a proposal: a BUY may still
// be dropped during simulation if cash runs out, so callers wanting the
// achievable outcome must read NewPortfolio and CashEnd instead.
type Trade struct {
	Ticker string `json:"ticker"`
	Side   Side   `json:"side"`
	// Quantity is whole shares for whole-share holdings; ideal counts are
	// floored, so it is only fractional when the held quantity itself is.
	Quantity float64 `json:"qty"`
	EstValue float64 `json:"estValue"`
}

// DriftItem is one row of the post-trade drift table, percentages rounded
// to two decimals.
type DriftItem struct {
	Ticker      string  `json:"ticker"`
	CurrentPct  float64 `json:"current_pct"`
	NextPct     float64 `json:"next_pct"`
	TargetPct   float64 `json:"target_pct"`
	ResidualPct float64 `json:"residual_pct"`
}

// Inputs echoes the (sanitized) request back in the plan.
type Inputs struct {
	Portfolio []Position         `json:"portfolio"`
	Cash      float64            `json:"cash"`
	Targets   map[string]float64 `json:"targets"`
	Settings  Settings           `json:"settings"`
}

type Summary struct {
	EquityValue     float64 `json:"equityValue"`
	TotalValue      float64 `json:"totalValue"`
	NewEquity       float64 `json:"newEquity"`
	NewTotal        float64 `json:"newTotal"`
	CashStart       float64 `json:"cashStart"`
	CashEnd         float64 `json:"cashEnd"`
	OverallDriftPct float64 `json:"overallDriftPct"`
}

// Plan is the full engine output: echoed inputs, before/after summary, the
// trade proposal, the simulated resulting portfolio and the drift table.
type Plan struct {
	Inputs       Inputs      `json:"inputs"`
	Summary      Summary     `json:"summary"`
	Trades       []Trade     `json:"trades"`
	NewPortfolio []Position  `json:"newPortfolio"`
	Drift        []DriftItem `json:"drift"`
}

// DefaultTargets is the demo allocation used when the caller omits targets.
func DefaultTargets() map[string]float64 {
	return map[string]float64{
		"AAPL": 0.20,
		"TSLA": 0.22,
		"SPY":  0.35,
		"MSFT": 0.23,
	}
}

// DefaultSettings returns the default trade suppression floor and fee rate.
func DefaultSettings() Settings {
	return Settings{MinTradeValue: 200, TxCostBps: 2}
}

// Simulate computes a rebalancing plan for the given snapshot. A nil targets
// map selects DefaultTargets. Malformed numeric input degrades rather than
// errors: non-finite values are treated as 0, negative settings as 0, and a
// ticker with no positive price is simply not traded this pass.
func Simulate(portfolio []Position, cash float64, targets map[string]float64, settings Settings) Plan {
	cash = sanitize(cash)
	settings.MinTradeValue = sanitizeNonNeg(settings.MinTradeValue)
	settings.TxCostBps = sanitizeNonNeg(settings.TxCostBps)
	if targets == nil {
		targets = DefaultTargets()
	}

	// Internal copy of the snapshot: tickers normalized, numerics
	// sanitized, insertion order preserved. A repeated ticker replaces the
	// earlier entry.
	order := make([]string, 0, len(portfolio))
	qty := make(map[string]float64, len(portfolio))
	price := make(map[string]float64, len(portfolio))
	for _, p := range portfolio {
		ticker := strings.ToUpper(strings.TrimSpace(p.Ticker))
		if ticker == "" {
			continue
		}
		if _, seen := qty[ticker]; !seen {
			order = append(order, ticker)
		}
		qty[ticker] = sanitize(p.Quantity)
		price[ticker] = sanitize(p.Price)
	}

	weights := make(map[string]float64, len(targets))
	for raw, w := range targets {
		ticker := strings.ToUpper(strings.TrimSpace(raw))
		if ticker == "" {
			continue
		}
		weights[ticker] = sanitize(w)
	}

	// Union of portfolio and target tickers: portfolio tickers first in
	// insertion order, then target-only tickers alphabetically. Portfolio
	// tickers missing from targets get an implicit weight of 0.
	union := append([]string(nil), order...)
	extra := make([]string, 0, len(weights))
	for ticker := range weights {
		if _, held := qty[ticker]; !held {
			extra = append(extra, ticker)
		}
	}
	sort.Strings(extra)
	union = append(union, extra...)
	for _, ticker := range order {
		if _, ok := weights[ticker]; !ok {
			weights[ticker] = 0
		}
	}

	equity := 0.0
	for _, ticker := range order {
		equity += qty[ticker] * price[ticker]
	}
	total := equity + cash

	currentWeight := make(map[string]float64, len(union))
	if equity > 0 {
		for _, ticker := range order {
			currentWeight[ticker] = qty[ticker] * price[ticker] / equity
		}
	}

	// Ideal share counts. A ticker without a positive price cannot be
	// sized, so it is excluded from trading for this pass. That also means
	// a freshly targeted ticker with no existing position never gets
	// bought in; sizing it would need a price lookup the engine does not
	// have.
	ideal := make(map[string]float64, len(union))
	for _, ticker := range union {
		if p := price[ticker]; p > 0 {
			ideal[ticker] = math.Floor(weights[ticker] * total / p)
		}
	}

	trades := make([]Trade, 0)
	for _, ticker := range union {
		p := price[ticker]
		if p <= 0 {
			continue
		}
		delta := ideal[ticker] - qty[ticker]
		notional := math.Abs(delta) * p
		if notional < settings.MinTradeValue || delta == 0 {
			continue
		}
		side := SideBuy
		if delta < 0 {
			side = SideSell
		}
		trades = append(trades, Trade{
			Ticker:   ticker,
			Side:     side,
			Quantity: math.Abs(delta),
			EstValue: notional,
		})
	}

	// Apply trades in the order they were produced. They only interact
	// through the shared cash balance; no reordering by value or side.
	simQty := make(map[string]float64, len(qty))
	for k, v := range qty {
		simQty[k] = v
	}
	simCash := cash
	for _, tr := range trades {
		p := price[tr.Ticker]
		notional := tr.Quantity * p
		fee := settings.TxCostBps / 10000 * notional
		if tr.Side == SideBuy {
			// Dropped from the simulation when cash is short; the
			// proposal entry above still stands.
			if simCash >= notional+fee {
				simCash -= notional + fee
				simQty[tr.Ticker] += tr.Quantity
			}
		} else {
			executed := math.Min(simQty[tr.Ticker], tr.Quantity)
			simCash += executed*p - fee
			simQty[tr.Ticker] -= executed
		}
	}

	newEquity := 0.0
	for _, ticker := range union {
		newEquity += simQty[ticker] * price[ticker]
	}
	newTotal := newEquity + simCash

	newWeight := make(map[string]float64, len(union))
	if newEquity > 0 {
		for _, ticker := range union {
			newWeight[ticker] = simQty[ticker] * price[ticker] / newEquity
		}
	}

	drift := make([]DriftItem, 0, len(union))
	residualSum := 0.0
	for _, ticker := range union {
		row := DriftItem{
			Ticker:     ticker,
			CurrentPct: round2(currentWeight[ticker] * 100),
			NextPct:    round2(newWeight[ticker] * 100),
			TargetPct:  round2(weights[ticker] * 100),
		}
		row.ResidualPct = round2(row.NextPct - row.TargetPct)
		residualSum += math.Abs(row.ResidualPct)
		drift = append(drift, row)
	}
	overallDrift := 0.0
	if len(drift) > 0 {
		overallDrift = round2(residualSum / float64(len(drift)))
	}

	echo := make([]Position, 0, len(order))
	newPortfolio := make([]Position, 0, len(order))
	for _, ticker := range order {
		echo = append(echo, Position{Ticker: ticker, Quantity: qty[ticker], Price: price[ticker]})
		newPortfolio = append(newPortfolio, Position{Ticker: ticker, Quantity: simQty[ticker], Price: price[ticker]})
	}

	for i := range trades {
		trades[i].EstValue = round2(trades[i].EstValue)
	}

	return Plan{
		Inputs: Inputs{
			Portfolio: echo,
			Cash:      round2(cash),
			Targets:   weights,
			Settings:  settings,
		},
		Summary: Summary{
			EquityValue:     round2(equity),
			TotalValue:      round2(total),
			NewEquity:       round2(newEquity),
			NewTotal:        round2(newTotal),
			CashStart:       round2(cash),
			CashEnd:         round2(simCash),
			OverallDriftPct: overallDrift,
		},
		Trades:       trades,
		NewPortfolio: newPortfolio,
		Drift:        drift,
	}
}

// sanitize maps NaN and infinities to 0 so malformed numeric input degrades
// instead of poisoning every downstream figure.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sanitizeNonNeg(v float64) float64 {
	v = sanitize(v)
	if v < 0 {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
