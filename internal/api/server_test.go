package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/db"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/feed"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/models"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/realtime"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/rebalance"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/risk"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/store"
)

type fakeMarket struct {
	prices map[string]float64
}

func (f *fakeMarket) Refresh(_ context.Context, _ []string) error { return nil }

func (f *fakeMarket) Quotes() []models.Quote {
	out := make([]models.Quote, 0, len(f.prices))
	for ticker, price := range f.prices {
		out = append(out, models.Quote{Ticker: ticker, Price: price})
	}
	return out
}

func (f *fakeMarket) Price(ticker string) (float64, bool) {
	price, ok := f.prices[ticker]
	return price, ok
}

func setupServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "api.db")
	sqlDB, err := db.Open(dbFile)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	st := store.NewSQLiteStore(sqlDB)
	fm := &fakeMarket{prices: map[string]float64{"AAPL": 200, "MSFT": 400}}
	log := zerolog.Nop()
	server := NewServer(
		st, fm, realtime.NewHub(log),
		feed.NewGenerator([]string{"AAPL", "MSFT"}, 1),
		risk.NewScorer(1),
		map[string]float64{"AAPL": 0.5, "MSFT": 0.5},
		log,
	)
	return server, sqlDB
}

func TestCreateListDeletePositionHandlers(t *testing.T) {
	server, sqlDB := setupServer(t)
	defer sqlDB.Close()

	payload := map[string]any{
		"ticker":   "aapl",
		"quantity": 2,
		"avgCost":  100,
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/api/positions", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", resp.Code, resp.Body.String())
	}

	var created models.Position
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created position: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	resp = httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var positions []models.Position
	if err := json.Unmarshal(resp.Body.Bytes(), &positions); err != nil {
		t.Fatalf("decode positions list: %v", err)
	}
	if len(positions) != 1 || positions[0].Ticker != "AAPL" {
		t.Fatalf("unexpected positions response: %+v", positions)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/positions/"+itoa(created.ID), nil)
	resp = httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestPortfolioSnapshotHandler(t *testing.T) {
	server, sqlDB := setupServer(t)
	defer sqlDB.Close()

	createReq := httptest.NewRequest(http.MethodPost, "/api/positions", bytes.NewReader([]byte(`{"ticker":"AAPL","quantity":2,"avgCost":100}`)))
	createResp := httptest.NewRecorder()
	server.Handler().ServeHTTP(createResp, createReq)
	if createResp.Code != http.StatusCreated {
		t.Fatalf("create position failed: %d", createResp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
	resp := httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var snapshot models.PortfolioSnapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.TotalValue != 400 || snapshot.TotalCost != 200 || snapshot.TotalPnL != 200 {
		t.Fatalf("unexpected totals: %+v", snapshot)
	}
}

func TestRebalanceHandler(t *testing.T) {
	server, sqlDB := setupServer(t)
	defer sqlDB.Close()

	body := []byte(`{
		"portfolio": [{"ticker": "AAPL", "qty": 100, "price": 150}],
		"cash": 10000
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rebalance", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", resp.Code, resp.Body.String())
	}

	var out struct {
		Status  string            `json:"status"`
		Summary rebalance.Summary `json:"summary"`
		Trades  []rebalance.Trade `json:"trades"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if out.Status != "ok" {
		t.Fatalf("unexpected status: %s", out.Status)
	}
	// Default targets sell AAPL down from 100 to 33 shares.
	if len(out.Trades) != 1 || out.Trades[0].Side != rebalance.SideSell || out.Trades[0].Quantity != 67 {
		t.Fatalf("unexpected trades: %+v", out.Trades)
	}
	// sell proceeds 10050 minus the 2.01 fee land on the 10000 cash start.
	if out.Summary.CashEnd != 20047.99 {
		t.Fatalf("unexpected cash end: %v", out.Summary.CashEnd)
	}
}

func TestRebalanceHandlerInvalidRequest(t *testing.T) {
	server, sqlDB := setupServer(t)
	defer sqlDB.Close()

	for name, body := range map[string]string{
		"missing portfolio":   `{"cash": 1000}`,
		"portfolio not array": `{"portfolio": "AAPL", "cash": 1000}`,
		"not json":            `portfolio=AAPL`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/rebalance", bytes.NewReader([]byte(body)))
		resp := httptest.NewRecorder()
		server.Handler().ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.Code)
		}

		var out map[string]string
		if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s: decode error body: %v", name, err)
		}
		if out["status"] != "error" {
			t.Fatalf("%s: unexpected error body: %+v", name, out)
		}
	}
}

func TestPortfolioRebalanceHandler(t *testing.T) {
	server, sqlDB := setupServer(t)
	defer sqlDB.Close()

	createReq := httptest.NewRequest(http.MethodPost, "/api/positions", bytes.NewReader([]byte(`{"ticker":"AAPL","quantity":10,"avgCost":150}`)))
	createResp := httptest.NewRecorder()
	server.Handler().ServeHTTP(createResp, createReq)
	if createResp.Code != http.StatusCreated {
		t.Fatalf("create position failed: %d", createResp.Code)
	}

	// fake market prices AAPL at 200; server targets are 50/50 AAPL/MSFT.
	req := httptest.NewRequest(http.MethodPost, "/api/portfolio/rebalance", bytes.NewReader([]byte(`{"cash": 2000}`)))
	resp := httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", resp.Code, resp.Body.String())
	}

	var out struct {
		Status string              `json:"status"`
		Inputs rebalance.Inputs    `json:"inputs"`
		Drift  []rebalance.DriftItem `json:"drift"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if out.Status != "ok" {
		t.Fatalf("unexpected status: %s", out.Status)
	}
	if len(out.Inputs.Portfolio) != 1 || out.Inputs.Portfolio[0].Price != 200 {
		t.Fatalf("expected marked-to-market portfolio, got %+v", out.Inputs.Portfolio)
	}
	if len(out.Drift) != 2 {
		t.Fatalf("expected drift rows for AAPL and MSFT, got %+v", out.Drift)
	}
}

func TestQuotesAndFeedHandlers(t *testing.T) {
	server, sqlDB := setupServer(t)
	defer sqlDB.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/quotes?symbols=aapl", nil)
	resp := httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	var quotes []models.Quote
	if err := json.Unmarshal(resp.Body.Bytes(), &quotes); err != nil {
		t.Fatalf("decode quotes: %v", err)
	}
	if len(quotes) != 1 || quotes[0].Ticker != "AAPL" {
		t.Fatalf("unexpected quotes: %+v", quotes)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/news?limit=3", nil)
	resp = httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	var news []models.NewsItem
	if err := json.Unmarshal(resp.Body.Bytes(), &news); err != nil {
		t.Fatalf("decode news: %v", err)
	}
	if len(news) != 3 {
		t.Fatalf("expected 3 headlines, got %d", len(news))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/insights?symbols=AAPL,MSFT", nil)
	resp = httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	var insights []models.Insight
	if err := json.Unmarshal(resp.Body.Bytes(), &insights); err != nil {
		t.Fatalf("decode insights: %v", err)
	}
	if len(insights) != 2 {
		t.Fatalf("expected 2 insights, got %d", len(insights))
	}
}

func TestRiskScoreHandler(t *testing.T) {
	server, sqlDB := setupServer(t)
	defer sqlDB.Close()

	body := []byte(`{"ticker":"nvda","rsi":80,"pe":45,"sentiment":0.8}`)
	req := httptest.NewRequest(http.MethodPost, "/api/risk/score", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var score risk.Score
	if err := json.Unmarshal(resp.Body.Bytes(), &score); err != nil {
		t.Fatalf("decode score: %v", err)
	}
	if score.Ticker != "NVDA" || score.RiskScore < 0 || score.RiskScore > 1 {
		t.Fatalf("unexpected score: %+v", score)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/risk/score", bytes.NewReader([]byte(`{}`)))
	resp = httptest.NewRecorder()
	server.Handler().ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing ticker, got %d", resp.Code)
	}
}

func TestWebSocketSendsSnapshotBeforeJoiningHub(t *testing.T) {
	server, sqlDB := setupServer(t)
	defer sqlDB.Close()

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	// The very first frame must be the quote snapshot, written before the
	// connection is registered for broadcasts.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first struct {
		Type   string         `json:"type"`
		Quotes []models.Quote `json:"quotes"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if first.Type != "quotes" || len(first.Quotes) == 0 {
		t.Fatalf("unexpected initial frame: %+v", first)
	}
}

func itoa(v int64) string {
	return fmt.Sprintf("%d", v)
}
