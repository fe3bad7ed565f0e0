package feed

import "testing"

func TestNewsGeneratesRequestedCount(t *testing.T) {
	g := NewGenerator([]string{"AAPL", "TSLA"}, 3)

	items := g.News(5)
	if len(items) != 5 {
		t.Fatalf("expected 5 headlines, got %d", len(items))
	}
	for _, item := range items {
		if item.ID == "" || item.Headline == "" || item.Source == "" {
			t.Fatalf("incomplete news item: %+v", item)
		}
		if item.Ticker != "AAPL" && item.Ticker != "TSLA" {
			t.Fatalf("headline for unknown ticker: %+v", item)
		}
	}
}

func TestInsightsCoverRequestedTickers(t *testing.T) {
	g := NewGenerator(nil, 3)

	items := g.Insights([]string{"SPY", "NVDA"})
	if len(items) != 2 {
		t.Fatalf("expected 2 insights, got %d", len(items))
	}
	for i, ticker := range []string{"SPY", "NVDA"} {
		item := items[i]
		if item.Ticker != ticker {
			t.Fatalf("expected insight for %s, got %+v", ticker, item)
		}
		if item.Stance != "bullish" && item.Stance != "bearish" && item.Stance != "neutral" {
			t.Fatalf("unexpected stance: %s", item.Stance)
		}
		if item.Confidence < 0.5 || item.Confidence > 0.95 {
			t.Fatalf("confidence out of range: %v", item.Confidence)
		}
	}
}

func TestInsightsFallBackToUniverse(t *testing.T) {
	g := NewGenerator([]string{"AAPL"}, 3)
	items := g.Insights(nil)
	if len(items) != 1 || items[0].Ticker != "AAPL" {
		t.Fatalf("expected universe fallback, got %+v", items)
	}
}
