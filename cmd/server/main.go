package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/api"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/config"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/db"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/feed"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/logger"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/market"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/realtime"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/risk"
	"github.com/Aniridh/dont-be-stupid-with-your-money-sub001/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	sqlDB, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database init failed")
	}
	defer sqlDB.Close()

	tickers := make([]string, 0, len(cfg.Universe.Entries))
	for _, e := range cfg.Universe.Entries {
		tickers = append(tickers, e.Ticker)
	}

	var provider api.QuoteProvider
	switch cfg.QuoteMode {
	case config.QuoteModeLive:
		provider = market.NewLiveProvider(cfg.Universe)
	default:
		provider = market.NewStubProvider(cfg.Universe, time.Now().UnixNano())
	}

	st := store.NewSQLiteStore(sqlDB)
	hub := realtime.NewHub(log.With().Str("component", "realtime").Logger())
	gen := feed.NewGenerator(tickers, time.Now().UnixNano())
	scorer := risk.NewScorer(time.Now().UnixNano())
	apiServer := api.NewServer(st, provider, hub, gen, scorer, cfg.Universe.Targets,
		log.With().Str("component", "api").Logger())

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go apiServer.StartPolling(ctx, cfg.PollInterval)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	log.Info().
		Str("addr", cfg.Addr).
		Str("quote_mode", cfg.QuoteMode).
		Int("universe", len(tickers)).
		Msg("finsage backend listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
