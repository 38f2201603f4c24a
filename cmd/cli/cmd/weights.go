package cmd

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"

	"portfolio-backtest/internal/data"
	"portfolio-backtest/internal/model"
	"portfolio-backtest/internal/report"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Export, check and template portfolio weights files",
}

var weightsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write holdings as a weights CSV",
	Long: `Export writes Ticker, Company Name and Weight (%) rows.

Example:
  backtester weights export --tickers AAPL,MSFT --allocations 60,40 --names "Apple Inc.,Microsoft" --out portfolio.csv`,
	RunE: runWeightsExport,
}

var weightsSampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Write the sample weights file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeWeights(cmd.OutOrStdout(), wOut, report.SampleWeights())
	},
}

var weightsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse a weights file and report its holdings",
	RunE:  runWeightsCheck,
}

var (
	wTickers     []string
	wAllocations []float64
	wNames       []string
	wResolve     bool
	wOut         string
	wFile        string
)

func init() {
	rootCmd.AddCommand(weightsCmd)
	weightsCmd.AddCommand(weightsExportCmd, weightsSampleCmd, weightsCheckCmd)

	weightsExportCmd.Flags().StringSliceVarP(&wTickers, "tickers", "t", nil, "comma separated ticker symbols (required)")
	weightsExportCmd.Flags().Float64SliceVarP(&wAllocations, "allocations", "a", nil, "comma separated weights in percent (required)")
	weightsExportCmd.Flags().StringSliceVar(&wNames, "names", nil, "comma separated company names, one per ticker")
	weightsExportCmd.Flags().BoolVar(&wResolve, "resolve-names", false, "look up missing company names from the price source")
	weightsExportCmd.MarkFlagRequired("tickers")
	weightsExportCmd.MarkFlagRequired("allocations")

	for _, c := range []*cobra.Command{weightsExportCmd, weightsSampleCmd} {
		c.Flags().StringVarP(&wOut, "out", "o", "", "output path (default stdout)")
	}

	weightsCheckCmd.Flags().StringVarP(&wFile, "file", "f", "", "weights CSV to check (required)")
	weightsCheckCmd.MarkFlagRequired("file")
}

func runWeightsExport(cmd *cobra.Command, args []string) error {
	p, err := model.FromPercentages(wTickers, wAllocations)
	if err != nil {
		return err
	}
	if len(wNames) > 0 && len(wNames) != len(p.Holdings) {
		return fmt.Errorf("%d tickers but %d names", len(p.Holdings), len(wNames))
	}
	for i, name := range wNames {
		p.Holdings[i].Name = data.TruncateName(name)
	}

	if wResolve {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		src, err := data.NewSource(cfg.Source, logger)
		if err != nil {
			return err
		}
		if names, ok := src.(data.NameResolver); ok {
			for i := range p.Holdings {
				if p.Holdings[i].Name != "" {
					continue
				}
				name, err := names.CompanyName(cmd.Context(), p.Holdings[i].Symbol)
				if err != nil {
					logger.Warn().Err(err).Str("symbol", p.Holdings[i].Symbol).Msg("company name lookup failed")
					continue
				}
				p.Holdings[i].Name = name
			}
		}
	}
	return writeWeights(cmd.OutOrStdout(), wOut, p)
}

func runWeightsCheck(cmd *cobra.Command, args []string) error {
	p, err := readWeights(wFile)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-8s %-32s %8s\n", "ticker", "company", "weight")
	for _, h := range p.Holdings {
		fmt.Fprintf(out, "%-8s %-32s %7.2f%%\n", h.Symbol, h.Name, h.Weight*100)
	}
	total := p.TotalWeight()
	fmt.Fprintf(out, "%d holdings, total %.2f%%\n", len(p.Holdings), total*100)
	if math.Abs(total-1) > model.WeightTolerance {
		fmt.Fprintf(out, "warning: total weight is %.2f%%, not 100%%\n", total*100)
	}
	return nil
}

// writeWeights renders p to path, or to w when path is empty.
func writeWeights(w io.Writer, path string, p model.Portfolio) error {
	if path == "" {
		return report.ExportWeights(p, w)
	}
	var buf bytes.Buffer
	if err := report.ExportWeights(p, &buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	fmt.Fprintf(w, "Wrote %d holdings to %s\n", len(p.Holdings), path)
	return nil
}
