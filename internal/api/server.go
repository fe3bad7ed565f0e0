// Package api wires the HTTP surface of the dashboard: quote/news/insight
// feeds, the persisted portfolio, the risk scorer and the rebalance engine.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/feed"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/models"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/realtime"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/rebalance"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/risk"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/store"
)

// QuoteProvider is the market data contract the server depends on. Both the
// stub random-walk provider and the live Yahoo/CoinGecko provider satisfy it.
type QuoteProvider interface {
	Refresh(ctx context.Context, extra []string) error
	Quotes() []models.Quote
	Price(ticker string) (float64, bool)
}

type Server struct {
	store    store.Store
	market   QuoteProvider
	hub      *realtime.Hub
	feed     *feed.Generator
	scorer   *risk.Scorer
	targets  map[string]float64
	log      zerolog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(s store.Store, p QuoteProvider, hub *realtime.Hub, gen *feed.Generator, scorer *risk.Scorer, targets map[string]float64, log zerolog.Logger) *Server {
	server := &Server{
		store:   s,
		market:  p,
		hub:     hub,
		feed:    gen,
		scorer:  scorer,
		targets: targets,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/api/health", server.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/quotes", server.handleQuotes).Methods(http.MethodGet)
	r.HandleFunc("/api/news", server.handleNews).Methods(http.MethodGet)
	r.HandleFunc("/api/insights", server.handleInsights).Methods(http.MethodGet)
	r.HandleFunc("/api/targets", server.handleTargets).Methods(http.MethodGet)
	r.HandleFunc("/api/risk/score", server.handleRiskScore).Methods(http.MethodPost)
	r.HandleFunc("/api/positions", server.handleListPositions).Methods(http.MethodGet)
	r.HandleFunc("/api/positions", server.handleCreatePosition).Methods(http.MethodPost)
	r.HandleFunc("/api/positions/{id}", server.handleDeletePosition).Methods(http.MethodDelete)
	r.HandleFunc("/api/portfolio", server.handlePortfolioSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/rebalance", server.handleRebalance).Methods(http.MethodPost)
	r.HandleFunc("/api/portfolio/rebalance", server.handlePortfolioRebalance).Methods(http.MethodPost)
	r.HandleFunc("/ws", server.handleWebSocket).Methods(http.MethodGet)

	// Serve the dashboard SPA (catch-all, must be last).
	spa := spaHandler{staticPath: "web/dist", indexPath: "index.html"}
	r.PathPrefix("/").Handler(spa)

	server.router = r
	return server
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticPath, r.URL.Path)
	fi, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && fi.IsDir()) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// StartPolling periodically refreshes quotes and broadcasts them to
// websocket clients until ctx is cancelled.
func (s *Server) StartPolling(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.refreshAndBroadcast(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAndBroadcast(ctx)
		}
	}
}

func (s *Server) refreshAndBroadcast(ctx context.Context) {
	extra := make([]string, 0)
	if positions, err := s.store.ListPositions(ctx); err == nil {
		for _, p := range positions {
			extra = append(extra, p.Ticker)
		}
	}

	if err := s.market.Refresh(ctx, extra); err != nil {
		s.log.Warn().Err(err).Msg("quote refresh failed")
		return
	}

	s.hub.BroadcastJSON(map[string]any{
		"type":      "quotes",
		"quotes":    s.market.Quotes(),
		"updatedAt": time.Now().UTC(),
	})
}

// BuildSnapshot marks the persisted positions to current provider prices.
// A position the provider cannot price keeps a zero price, mirroring how the
// rebalance engine treats unknown prices.
func (s *Server) BuildSnapshot(ctx context.Context) (models.PortfolioSnapshot, error) {
	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return models.PortfolioSnapshot{}, err
	}

	out := models.PortfolioSnapshot{
		Positions: make([]models.PositionWithPrice, 0, len(positions)),
		UpdatedAt: time.Now().UTC(),
	}

	for _, p := range positions {
		price, _ := s.market.Price(p.Ticker)
		marketValue := p.Quantity * price
		costBasis := p.Quantity * p.AvgCost
		pnl := marketValue - costBasis
		pnlPct := 0.0
		if costBasis > 0 {
			pnlPct = (pnl / costBasis) * 100
		}

		out.Positions = append(out.Positions, models.PositionWithPrice{
			Position:    p,
			Price:       round2(price),
			MarketValue: round2(marketValue),
			CostBasis:   round2(costBasis),
			PnL:         round2(pnl),
			PnLPct:      round2(pnlPct),
		})

		out.TotalValue += marketValue
		out.TotalCost += costBasis
	}

	out.TotalPnL = round2(out.TotalValue - out.TotalCost)
	out.TotalValue = round2(out.TotalValue)
	out.TotalCost = round2(out.TotalCost)

	return out, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	quotes := s.market.Quotes()

	if raw := r.URL.Query().Get("symbols"); raw != "" {
		want := map[string]bool{}
		for _, sym := range strings.Split(raw, ",") {
			want[strings.ToUpper(strings.TrimSpace(sym))] = true
		}
		filtered := make([]models.Quote, 0, len(quotes))
		for _, q := range quotes {
			if want[q.Ticker] {
				filtered = append(filtered, q)
			}
		}
		quotes = filtered
	}

	writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	limit := 8
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.feed.News(limit))
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var tickers []string
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		for _, sym := range strings.Split(raw, ",") {
			if t := strings.ToUpper(strings.TrimSpace(sym)); t != "" {
				tickers = append(tickers, t)
			}
		}
	}
	writeJSON(w, http.StatusOK, s.feed.Insights(tickers))
}

func (s *Server) handleTargets(w http.ResponseWriter, _ *http.Request) {
	targets := s.targets
	if len(targets) == 0 {
		targets = rebalance.DefaultTargets()
	}
	writeJSON(w, http.StatusOK, targets)
}

func (s *Server) handleRiskScore(w http.ResponseWriter, r *http.Request) {
	var features risk.Features
	if err := json.NewDecoder(r.Body).Decode(&features); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	features.Ticker = strings.ToUpper(strings.TrimSpace(features.Ticker))
	if features.Ticker == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticker is required"})
		return
	}
	writeJSON(w, http.StatusOK, s.scorer.Score(features))
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListPositions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker   string  `json:"ticker"`
		Quantity float64 `json:"quantity"`
		AvgCost  float64 `json:"avgCost"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	if req.Ticker == "" || req.Quantity <= 0 || req.AvgCost < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid position payload"})
		return
	}

	created, err := s.store.UpsertPosition(r.Context(), models.Position{
		Ticker:   req.Ticker,
		Quantity: req.Quantity,
		AvgCost:  req.AvgCost,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.store.DeletePosition(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "position not found"})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePortfolioSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.BuildSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type rebalanceSettings struct {
	MinTradeValue *float64 `json:"minTradeValue"`
	TxCostBps     *float64 `json:"txCostBps"`
}

func (rs *rebalanceSettings) resolve() rebalance.Settings {
	settings := rebalance.DefaultSettings()
	if rs == nil {
		return settings
	}
	if rs.MinTradeValue != nil {
		settings.MinTradeValue = *rs.MinTradeValue
	}
	if rs.TxCostBps != nil {
		settings.TxCostBps = *rs.TxCostBps
	}
	return settings
}

type planResponse struct {
	Status string `json:"status"`
	rebalance.Plan
}

// handleRebalance is the boundary in front of the engine: the payload must
// be a JSON object whose portfolio field is an array. Everything past that
// is the engine's lenient coercion, not a request error.
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Portfolio *[]rebalance.Position `json:"portfolio"`
		Cash      float64               `json:"cash"`
		Targets   map[string]float64    `json:"targets"`
		Settings  *rebalanceSettings    `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if req.Portfolio == nil {
		writeInvalidRequest(w, "portfolio must be an array")
		return
	}

	plan := rebalance.Simulate(*req.Portfolio, req.Cash, req.Targets, req.Settings.resolve())
	writeJSON(w, http.StatusOK, planResponse{Status: "ok", Plan: plan})
}

// handlePortfolioRebalance runs the engine against the persisted positions
// marked to current provider prices, so the dashboard can preview a
// rebalance without re-posting its holdings.
func (s *Server) handlePortfolioRebalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cash     float64            `json:"cash"`
		Targets  map[string]float64 `json:"targets"`
		Settings *rebalanceSettings `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}

	positions, err := s.store.ListPositions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	portfolio := make([]rebalance.Position, 0, len(positions))
	for _, p := range positions {
		price, _ := s.market.Price(p.Ticker)
		portfolio = append(portfolio, rebalance.Position{
			Ticker:   p.Ticker,
			Quantity: p.Quantity,
			Price:    price,
		})
	}

	targets := req.Targets
	if targets == nil && len(s.targets) > 0 {
		targets = s.targets
	}

	plan := rebalance.Simulate(portfolio, req.Cash, targets, req.Settings.resolve())
	writeJSON(w, http.StatusOK, planResponse{Status: "ok", Plan: plan})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Send the initial snapshot before joining the hub: once registered,
	// the polling loop may broadcast on this connection, and concurrent
	// writes on one websocket are fatal.
	_ = conn.WriteJSON(map[string]any{
		"type":      "quotes",
		"quotes":    s.market.Quotes(),
		"updatedAt": time.Now().UTC(),
	})
	s.hub.AddClient(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.RemoveClient(conn)
			return
		}
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeInvalidRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
