// Package cmd implements the backtester command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-backtest/internal/backtest"
	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/config"
	"portfolio-backtest/internal/data"
	"portfolio-backtest/internal/fetch"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "backtester",
	Short: "Backtest a weighted stock portfolio against a benchmark",
	Long: `Backtester fetches daily adjusted closes for every holding and the
benchmark, aligns them on common trading days, and reports performance
statistics for a buy-and-hold portfolio.

Weights are given in percent on the command line and in weights files
(Ticker, Company Name, Weight (%)).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func loadConfig() (*config.Config, *common.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, common.NewLogger(cfg.Log.Level), nil
}

// newEngine builds the source, fetcher and engine from cfg.
func newEngine(cfg *config.Config, logger *common.Logger) (*backtest.Engine, error) {
	src, err := data.NewSource(cfg.Source, logger)
	if err != nil {
		return nil, err
	}
	f := fetch.New(src, append(fetch.FromConfig(cfg), fetch.WithLogger(logger))...)
	return backtest.New(f, append(backtest.FromConfig(cfg.Backtest), backtest.WithLogger(logger))...), nil
}
