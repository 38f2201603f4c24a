package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"portfolio-backtest/internal/config"
	"portfolio-backtest/internal/model"
	"portfolio-backtest/internal/report"
	"portfolio-backtest/internal/store"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a buy-and-hold backtest against a benchmark",
	Long: `Backtest fetches history for every holding and the benchmark and prints
the portfolio, any warnings, the key metrics and the detailed statistics.

Holdings come from --tickers/--allocations (percent) or, when no tickers
are given, from --weights or the config's portfolio_file.

Example:
  backtester backtest --tickers AAPL,MSFT --allocations 60,40 --benchmark SPY --out report.csv`,
	RunE: runBacktest,
}

var (
	btTickers     []string
	btAllocations []float64
	btWeights     string
	btBenchmark   string
	btStartDate   string
	btRiskFree    float64
	btOut         string
	btChart       string
	btSave        bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringSliceVarP(&btTickers, "tickers", "t", nil, "comma separated ticker symbols")
	backtestCmd.Flags().Float64SliceVarP(&btAllocations, "allocations", "a", nil, "comma separated weights in percent, one per ticker")
	backtestCmd.Flags().StringVarP(&btWeights, "weights", "w", "", "weights CSV to backtest instead of --tickers")
	backtestCmd.Flags().StringVarP(&btBenchmark, "benchmark", "b", "", "benchmark symbol (default from config)")
	backtestCmd.Flags().StringVarP(&btStartDate, "start-date", "s", "", "start date YYYY-MM-DD (default: latest common start)")
	backtestCmd.Flags().Float64Var(&btRiskFree, "risk-free", 0, "annual risk-free rate as a fraction (default from config)")
	backtestCmd.Flags().StringVarP(&btOut, "out", "o", "", "write the CSV report to this path")
	backtestCmd.Flags().StringVar(&btChart, "chart", "", "write a PNG performance chart to this path")
	backtestCmd.Flags().BoolVar(&btSave, "save", false, "remember the portfolio in the recent-portfolio store")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Backtest = backtestOverrides(cmd, cfg.Backtest)

	p, err := cliPortfolio(cfg)
	if err != nil {
		return err
	}
	var start time.Time
	if btStartDate != "" {
		if start, err = model.ParseDate(btStartDate); err != nil {
			return fmt.Errorf("--start-date must be YYYY-MM-DD: %w", err)
		}
	}

	engine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	r, err := engine.Run(ctx, p, cfg.Backtest.Benchmark, start)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	out := cmd.OutOrStdout()
	printReport(out, r)

	if btOut != "" {
		doc, err := r.Document()
		if err != nil {
			return err
		}
		if err := os.WriteFile(btOut, doc, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(out, "\nWrote report to %s\n", btOut)
	}
	if btChart != "" {
		png, err := report.RenderChart(r)
		if err != nil {
			return err
		}
		if err := os.WriteFile(btChart, png, 0o644); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		fmt.Fprintf(out, "Wrote chart to %s\n", btChart)
	}
	if btSave {
		if err := saveRecent(ctx, cfg.Store, btStartDate, r); err != nil {
			return err
		}
	}
	return nil
}

// backtestOverrides applies the command-line flags to the config section.
// A zero --risk-free is an explicit choice, so it counts whenever it was set.
func backtestOverrides(cmd *cobra.Command, c config.BacktestConfig) config.BacktestConfig {
	c = config.MergeBacktest(c, config.BacktestConfig{Benchmark: strings.TrimSpace(btBenchmark)})
	if cmd.Flags().Changed("risk-free") {
		c.RiskFreeRate = btRiskFree
	}
	return c
}

// cliPortfolio resolves holdings from flags, a weights file, or config.
func cliPortfolio(cfg *config.Config) (model.Portfolio, error) {
	if len(btTickers) > 0 {
		return model.FromPercentages(btTickers, btAllocations)
	}
	path := btWeights
	if path == "" {
		path = cfg.PortfolioFile
	}
	if path == "" {
		return model.Portfolio{}, fmt.Errorf("no holdings: pass --tickers and --allocations, --weights, or set portfolio_file")
	}
	return readWeights(path)
}

func readWeights(path string) (model.Portfolio, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Portfolio{}, err
	}
	defer f.Close()
	p, err := report.ParseWeights(f)
	if err != nil {
		return model.Portfolio{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func saveRecent(ctx context.Context, cfg config.StoreConfig, startDate string, r *report.Report) error {
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open portfolio store: %w", err)
	}
	defer st.Close()
	_, err = st.Save(ctx, store.Entry{
		Benchmark: r.Benchmark,
		StartDate: startDate,
		Portfolio: model.Portfolio{Holdings: r.Holdings},
	})
	return err
}

func printReport(w io.Writer, r *report.Report) {
	fmt.Fprintf(w, "Backtest %s to %s (%d trading days), benchmark %s\n\n",
		model.FormatDate(r.Start), model.FormatDate(r.End), r.Portfolio.Len(), r.Benchmark)

	fmt.Fprintln(w, "PORTFOLIO")
	fmt.Fprintf(w, "%-8s %-32s %8s\n", "ticker", "company", "weight")
	for _, h := range r.Holdings {
		fmt.Fprintf(w, "%-8s %-32s %7.2f%%\n", h.Symbol, h.Name, h.Weight*100)
	}
	if r.InvestedWeight < 1 {
		fmt.Fprintf(w, "%-8s %-32s %7.2f%%\n", "(cash)", "", (1-r.InvestedWeight)*100)
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\nWARNINGS")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  %s\n", warn.Message)
		}
	}

	fmt.Fprintln(w, "\nKEY METRICS")
	fmt.Fprintf(w, "%-32s %12s %12s\n", "metric", "portfolio", r.Benchmark)
	for _, m := range r.KeyMetrics() {
		fmt.Fprintf(w, "%-32s %12s %12s\n", m.Metric, m.Portfolio, m.Benchmark)
	}

	fmt.Fprintln(w, "\nDETAILED STATISTICS")
	fmt.Fprintf(w, "%-24s %14s %14s\n", "metric", "portfolio", r.Benchmark)
	for _, row := range r.Detailed() {
		fmt.Fprintf(w, "%-24s %14s %14s\n", row.Key,
			row.Portfolio.Format(6, report.NotAvailable),
			row.Benchmark.Format(6, report.NotAvailable))
	}
}
