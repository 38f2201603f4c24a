package main

import (
	"flag"
	"os"

	"github.com/gin-gonic/gin"

	"portfolio-backtest/internal/api"
	"portfolio-backtest/internal/backtest"
	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/config"
	"portfolio-backtest/internal/data"
	"portfolio-backtest/internal/fetch"
	"portfolio-backtest/internal/store"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("BACKTEST_CONFIG"), "Path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		common.NewLogger("info").Fatal().Err(err).Msg("load config")
	}
	logger := common.NewLogger(cfg.Log.Level)

	if cfg.Server.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	src, err := data.NewSource(cfg.Source, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build price source")
	}
	fetcher := fetch.New(src, append(fetch.FromConfig(cfg), fetch.WithLogger(logger))...)

	// Instruments are kept so clients can ask for them per request.
	engine := backtest.New(fetcher, append(backtest.FromConfig(cfg.Backtest),
		backtest.WithInstruments(true),
		backtest.WithLogger(logger),
	)...)

	st, err := store.Open(cfg.Store)
	if err != nil {
		logger.Fatal().Err(err).Msg("open portfolio store")
	}
	defer st.Close()

	var names data.NameResolver
	if nr, ok := src.(data.NameResolver); ok {
		names = nr
	}

	router := api.NewRouter(api.Deps{
		Runner:         engine,
		Store:          st,
		Names:          names,
		Benchmark:      cfg.Backtest.Benchmark,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	addr := ":" + cfg.Server.Port
	logger.Info().
		Str("addr", addr).
		Str("provider", cfg.Source.Provider).
		Str("benchmark", cfg.Backtest.Benchmark).
		Msg("starting API server")
	if err := router.Run(addr); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		st.Close()
		os.Exit(1)
	}
}
