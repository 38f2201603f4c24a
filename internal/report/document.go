package report

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"

	"portfolio-backtest/internal/model"
	"portfolio-backtest/internal/stats"
)

// Section titles of the comprehensive document.
const (
	TitleTimeSeries = "PORTFOLIO PERFORMANCE TIME SERIES"
	TitleKeyMetrics = "KEY PERFORMANCE METRICS"
	TitleDetailed   = "DETAILED STATISTICS"
)

// WriteDocument renders the three-section document. The output depends
// only on the report contents.
func (r *Report) WriteDocument(w io.Writer) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)

	section := func(title string, first bool) error {
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		if !first {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		_, err := bw.WriteString(title + "\n\n")
		return err
	}

	if err := section(TitleTimeSeries, true); err != nil {
		return err
	}
	header := []string{"Date", "Portfolio Value (Base=100)", "Benchmark " + r.Benchmark + " (Base=100)"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, d := range r.Portfolio.Dates {
		row := []string{
			model.FormatDate(d),
			fmtValue(r.Portfolio.Values[i]),
			fmtValue(r.BenchmarkValues.Values[i]),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	if err := section(TitleKeyMetrics, false); err != nil {
		return err
	}
	if err := cw.Write([]string{"Metric", "Portfolio", "Benchmark"}); err != nil {
		return err
	}
	for _, m := range r.KeyMetrics() {
		if err := cw.Write([]string{m.Metric, m.Portfolio, m.Benchmark}); err != nil {
			return err
		}
	}

	if err := section(TitleDetailed, false); err != nil {
		return err
	}
	if err := cw.Write([]string{"Metric", "Portfolio", "Benchmark"}); err != nil {
		return err
	}
	for _, s := range r.Detailed() {
		row := []string{
			string(s.Key),
			s.Portfolio.Format(6, NotAvailable),
			s.Benchmark.Format(6, NotAvailable),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// Document returns the rendered document.
func (r *Report) Document() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteDocument(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fmtValue(x float64) string {
	return stats.Float(x).Format(2, NotAvailable)
}
