// Package config loads server configuration from environment variables and
// an optional YAML universe file describing the demo tickers.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	Addr         string
	DBPath       string
	LogLevel     string
	DevMode      bool
	QuoteMode    string // "stub" or "live"
	PollInterval time.Duration
	Universe     Universe
}

// UniverseEntry seeds one ticker of the stub quote generator.
type UniverseEntry struct {
	Ticker string  `yaml:"ticker"`
	Name   string  `yaml:"name"`
	Base   float64 `yaml:"base"` // starting price for the random walk
	Vol    float64 `yaml:"vol"`  // max per-step move as a fraction of price
}

// Universe is the set of demo tickers plus an optional default target
// allocation served to the dashboard.
type Universe struct {
	Entries []UniverseEntry    `yaml:"tickers"`
	Targets map[string]float64 `yaml:"targets"`
}

const (
	QuoteModeStub = "stub"
	QuoteModeLive = "live"
)

// Load reads configuration from the environment (.env file honored) and,
// when UNIVERSE_FILE is set, the YAML universe file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:         getEnv("ADDR", ":8080"),
		DBPath:       getEnv("DB_PATH", "./finsage.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		QuoteMode:    getEnv("QUOTE_MODE", QuoteModeStub),
		PollInterval: time.Duration(getEnvAsInt("POLL_INTERVAL_SECONDS", 30)) * time.Second,
		Universe:     DefaultUniverse(),
	}

	if cfg.QuoteMode != QuoteModeStub && cfg.QuoteMode != QuoteModeLive {
		return nil, fmt.Errorf("QUOTE_MODE must be %q or %q, got %q", QuoteModeStub, QuoteModeLive, cfg.QuoteMode)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}

	if path := getEnv("UNIVERSE_FILE", ""); path != "" {
		universe, err := LoadUniverse(path)
		if err != nil {
			return nil, err
		}
		cfg.Universe = universe
	}

	return cfg, nil
}

// LoadUniverse parses a YAML universe file.
func LoadUniverse(path string) (Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Universe{}, fmt.Errorf("read universe file: %w", err)
	}

	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return Universe{}, fmt.Errorf("parse universe file %s: %w", path, err)
	}
	if len(u.Entries) == 0 {
		return Universe{}, fmt.Errorf("universe file %s lists no tickers", path)
	}
	for i, e := range u.Entries {
		if e.Ticker == "" {
			return Universe{}, fmt.Errorf("universe file %s: entry %d has no ticker", path, i)
		}
		if e.Base <= 0 {
			return Universe{}, fmt.Errorf("universe file %s: %s has non-positive base price", path, e.Ticker)
		}
	}
	return u, nil
}

// DefaultUniverse is the built-in demo universe used when no universe file
// is configured.
func DefaultUniverse() Universe {
	return Universe{
		Entries: []UniverseEntry{
			{Ticker: "AAPL", Name: "Apple Inc.", Base: 187.50, Vol: 0.012},
			{Ticker: "TSLA", Name: "Tesla Inc.", Base: 244.10, Vol: 0.030},
			{Ticker: "SPY", Name: "SPDR S&P 500 ETF", Base: 512.80, Vol: 0.007},
			{Ticker: "MSFT", Name: "Microsoft Corp.", Base: 415.20, Vol: 0.011},
			{Ticker: "NVDA", Name: "NVIDIA Corp.", Base: 903.30, Vol: 0.028},
			{Ticker: "BTC", Name: "Bitcoin", Base: 64200.00, Vol: 0.022},
		},
		Targets: map[string]float64{
			"AAPL": 0.20,
			"TSLA": 0.22,
			"SPY":  0.35,
			"MSFT": 0.23,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
