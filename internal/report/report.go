// Package report assembles a finished backtest into a Report and renders
// its exportable documents.
package report

import (
	"fmt"
	"math"
	"time"

	"portfolio-backtest/internal/model"
	"portfolio-backtest/internal/stats"
)

// Markers used in rendered tables.
const (
	NotApplicable = "-"
	NotAvailable  = "N/A"
)

// Input is everything the pipeline produced for one run.
type Input struct {
	Window          *model.AlignedWindow
	Benchmark       string
	Holdings        []model.Holding
	Portfolio       model.ValueSeries
	BenchmarkValues model.ValueSeries
	Instruments     map[string]model.ValueSeries
	PortfolioStats  stats.Table
	BenchmarkStats  stats.Table
	Correlation     stats.Value
	Warnings        []model.Warning
	InvestedWeight  float64
}

// Report is the immutable result of one backtest.
type Report struct {
	Benchmark            string                       `json:"benchmark"`
	Start                time.Time                    `json:"start"`
	End                  time.Time                    `json:"end"`
	Holdings             []model.Holding              `json:"holdings"`
	InvestedWeight       float64                      `json:"invested_weight"`
	Portfolio            model.ValueSeries            `json:"portfolio"`
	BenchmarkValues      model.ValueSeries            `json:"benchmark_values"`
	Instruments          map[string]model.ValueSeries `json:"instruments,omitempty"`
	PortfolioStats       stats.Table                  `json:"portfolio_stats"`
	BenchmarkStats       stats.Table                  `json:"benchmark_stats"`
	Correlation          stats.Value                  `json:"correlation"`
	BenchmarkCorrelation stats.Value                  `json:"benchmark_correlation"`
	Warnings             []model.Warning              `json:"warnings,omitempty"`
}

// KeyMetric is one row of the summary table, already formatted.
type KeyMetric struct {
	Metric    string `json:"metric"`
	Portfolio string `json:"portfolio"`
	Benchmark string `json:"benchmark"`
}

// StatRow is one row of the detailed table.
type StatRow struct {
	Key       stats.Key   `json:"key"`
	Portfolio stats.Value `json:"portfolio"`
	Benchmark stats.Value `json:"benchmark"`
}

// Compose checks that the series agree with each other and the window,
// then builds the report. It does no computation on the values.
func Compose(in Input) (*Report, error) {
	if in.Window == nil {
		return nil, inconsistent("no aligned window")
	}
	n := len(in.Window.Dates)
	if n == 0 {
		return nil, inconsistent("aligned window has no dates")
	}
	if err := checkSeries("portfolio", in.Portfolio, in.Window.Dates); err != nil {
		return nil, err
	}
	if err := checkSeries("benchmark", in.BenchmarkValues, in.Window.Dates); err != nil {
		return nil, err
	}
	for sym, v := range in.Instruments {
		if err := checkSeries(sym, v, in.Window.Dates); err != nil {
			return nil, err
		}
	}

	r := &Report{
		Benchmark:            in.Benchmark,
		Start:                in.Window.Start,
		End:                  in.Window.End,
		Holdings:             append([]model.Holding(nil), in.Holdings...),
		InvestedWeight:       in.InvestedWeight,
		Portfolio:            in.Portfolio,
		BenchmarkValues:      in.BenchmarkValues,
		Instruments:          in.Instruments,
		PortfolioStats:       in.PortfolioStats,
		BenchmarkStats:       in.BenchmarkStats,
		Correlation:          in.Correlation,
		BenchmarkCorrelation: stats.SelfCorrelation(in.BenchmarkValues),
		Warnings:             append([]model.Warning(nil), in.Warnings...),
	}
	return r, nil
}

func checkSeries(name string, v model.ValueSeries, dates []time.Time) error {
	if len(v.Values) != len(dates) || len(v.Dates) != len(dates) {
		return inconsistent(fmt.Sprintf("%s series has %d values for %d dates", name, len(v.Values), len(dates)))
	}
	for i := range dates {
		if !v.Dates[i].Equal(dates[i]) {
			return inconsistent(fmt.Sprintf("%s series date %s does not match window date %s",
				name, model.FormatDate(v.Dates[i]), model.FormatDate(dates[i])))
		}
		if math.IsNaN(v.Values[i]) || math.IsInf(v.Values[i], 0) {
			return inconsistent(fmt.Sprintf("%s series has a non-finite value on %s", name, model.FormatDate(dates[i])))
		}
	}
	return nil
}

func inconsistent(msg string) error {
	return model.NewBacktestError(model.KindInternalConsistency, "inconsistent report input: "+msg)
}

// KeyMetrics is the summary table in display order.
func (r *Report) KeyMetrics() []KeyMetric {
	p, b := r.PortfolioStats, r.BenchmarkStats
	return []KeyMetric{
		{"Annualized Return", percent(p.Get(stats.AnnualizedReturn)), percent(b.Get(stats.AnnualizedReturn))},
		{"Relative Return (vs Benchmark)", relative(p.Get(stats.AnnualizedReturn), b.Get(stats.AnnualizedReturn)), NotApplicable},
		{"Volatility", percent(p.Get(stats.Volatility)), percent(b.Get(stats.Volatility))},
		{"Correlation", r.Correlation.Format(4, NotAvailable), r.BenchmarkCorrelation.Format(4, NotAvailable)},
		{"Best Year", percent(p.Get(stats.BestYear)), percent(b.Get(stats.BestYear))},
		{"Worst Year", percent(p.Get(stats.WorstYear)), percent(b.Get(stats.WorstYear))},
	}
}

// Detailed is the full vocabulary for both series, correlation last.
func (r *Report) Detailed() []StatRow {
	rows := make([]StatRow, 0, len(stats.Keys)+1)
	for _, k := range stats.Keys {
		rows = append(rows, StatRow{k, r.PortfolioStats.Get(k), r.BenchmarkStats.Get(k)})
	}
	return append(rows, StatRow{stats.CorrelationKey, r.Correlation, r.BenchmarkCorrelation})
}

// Dropped lists the symbols excluded during alignment.
func (r *Report) Dropped() []string {
	var out []string
	for _, w := range r.Warnings {
		if w.Kind == model.KindPartialInstrumentDrop {
			out = append(out, w.Symbol)
		}
	}
	return out
}

func percent(v stats.Value) string {
	x, ok := v.Float64()
	if !ok {
		return NotAvailable
	}
	return stats.Float(x*100).Format(2, NotAvailable) + "%"
}

func relative(p, b stats.Value) string {
	px, pok := p.Float64()
	bx, bok := b.Float64()
	if !pok || !bok {
		return NotAvailable
	}
	s := stats.Float((px-bx)*100).Format(2, NotAvailable)
	if s[0] != '-' {
		s = "+" + s
	}
	return s + "%"
}
