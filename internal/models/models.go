package models

import "time"

// Position is a persisted portfolio line item.
type Position struct {
	ID        int64     `json:"id"`
	Ticker    string    `json:"ticker"`
	Quantity  float64   `json:"quantity"`
	AvgCost   float64   `json:"avgCost"`
	CreatedAt time.Time `json:"createdAt"`
}

// Quote is a single ticker price as served by the quote provider.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name,omitempty"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"changePct"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PositionWithPrice struct {
	Position
	Price       float64 `json:"price"`
	MarketValue float64 `json:"marketValue"`
	CostBasis   float64 `json:"costBasis"`
	PnL         float64 `json:"pnl"`
	PnLPct      float64 `json:"pnlPct"`
}

type PortfolioSnapshot struct {
	Positions  []PositionWithPrice `json:"positions"`
	TotalValue float64             `json:"totalValue"`
	TotalCost  float64             `json:"totalCost"`
	TotalPnL   float64             `json:"totalPnl"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// NewsItem is a demo headline served by the feed generator.
type NewsItem struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker,omitempty"`
	Headline    string    `json:"headline"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Insight is a canned AI-style take on a ticker.
type Insight struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker"`
	Stance      string    `json:"stance"` // bullish, bearish, neutral
	Summary     string    `json:"summary"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generatedAt"`
}
