package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfolio-backtest/internal/store"
)

var portfoliosCmd = &cobra.Command{
	Use:   "portfolios",
	Short: "Inspect recently backtested portfolios",
}

var portfoliosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent portfolios, most recent first",
	Long: `List reads the recent-portfolio store configured under store.path.
Without a path the store lives in memory and is always empty here.`,
	RunE: runPortfoliosList,
}

func init() {
	rootCmd.AddCommand(portfoliosCmd)
	portfoliosCmd.AddCommand(portfoliosListCmd)
}

func runPortfoliosList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open portfolio store: %w", err)
	}
	defer st.Close()

	entries, err := st.Recent(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "no recent portfolios")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %s\n", e.ID, e.Label())
		for _, h := range e.Portfolio.Holdings {
			fmt.Fprintf(out, "    %-8s %6.2f%%\n", h.Symbol, h.Weight*100)
		}
		if e.Benchmark != "" || e.StartDate != "" {
			fmt.Fprintf(out, "    benchmark %s, start %s\n", e.Benchmark, orDefault(e.StartDate, "auto"))
		}
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
