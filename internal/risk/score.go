// Package risk implements the heuristic risk scorer behind
// POST /api/risk/score. The score blends how stretched RSI is, how rich the
// P/E multiple is, and how sour sentiment runs, each normalized to [0,1],
// then adds a small random jitter so repeated demo calls look alive.
package risk

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const ModelVersion = "v0.1"

// Features are the per-ticker inputs to the scorer. Zero values are filled
// with the documented defaults before scoring.
type Features struct {
	Ticker    string  `json:"ticker"`
	RSI       float64 `json:"rsi"`
	PE        float64 `json:"pe"`
	PEG       float64 `json:"peg"`
	Sentiment float64 `json:"sentiment"`
	ATR       float64 `json:"atr"`
}

type Score struct {
	Ticker       string  `json:"ticker"`
	RiskScore    float64 `json:"risk_score"`
	Timestamp    float64 `json:"timestamp"`
	LatencyMs    int     `json:"latency_ms"`
	ModelVersion string  `json:"model_version"`
}

type Scorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewScorer(seed int64) *Scorer {
	return &Scorer{rng: rand.New(rand.NewSource(seed))}
}

// Defaults fills unset feature fields with the scorer's neutral defaults.
func (f Features) Defaults() Features {
	if f.RSI == 0 {
		f.RSI = 50
	}
	if f.PE == 0 {
		f.PE = 20
	}
	if f.PEG == 0 {
		f.PEG = 1.0
	}
	if f.ATR == 0 {
		f.ATR = 1.0
	}
	return f
}

// BaseRisk is the deterministic part of the score: the mean of the RSI
// stretch, the P/E richness and inverted sentiment, capped at 1.
func BaseRisk(f Features) float64 {
	rsiTerm := math.Abs(f.RSI-50) / 50
	peTerm := f.PE / 100
	sentimentTerm := 1 - (f.Sentiment+1)/2
	return math.Min(1, (rsiTerm+peTerm+sentimentTerm)/3)
}

// Score computes the jittered risk score for the given features.
func (s *Scorer) Score(f Features) Score {
	f = f.Defaults()

	s.mu.Lock()
	jitter := (s.rng.Float64()*2 - 1) * 0.05
	latency := 10 + s.rng.Intn(21)
	s.mu.Unlock()

	value := BaseRisk(f) + jitter
	value = math.Max(0, math.Min(1, value))

	return Score{
		Ticker:       f.Ticker,
		RiskScore:    round3(value),
		Timestamp:    float64(time.Now().UnixNano()) / 1e9,
		LatencyMs:    latency,
		ModelVersion: ModelVersion,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
