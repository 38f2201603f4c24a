// Package backtest runs a buy-and-hold portfolio against a benchmark:
// fetch, align, compose, measure, report.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portfolio-backtest/internal/align"
	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/config"
	"portfolio-backtest/internal/fetch"
	"portfolio-backtest/internal/model"
	"portfolio-backtest/internal/report"
	"portfolio-backtest/internal/stats"
)

// Epoch is where automatic-start fetches begin.
var Epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// Engine runs backtests. It keeps no state between runs.
type Engine struct {
	fetcher      *fetch.Fetcher
	timeout      time.Duration
	lookbackDays int
	riskFree     float64
	instruments  bool
	logger       *common.Logger
	now          func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithTimeout bounds a whole run. Zero disables the budget.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithLookbackDays sets how far before an explicit start date to fetch,
// so a start on a non-trading day has a prior close to carry forward.
func WithLookbackDays(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.lookbackDays = n
		}
	}
}

// WithRiskFreeRate sets the annual rate used by Sharpe and Sortino.
func WithRiskFreeRate(rf float64) Option {
	return func(e *Engine) {
		e.riskFree = rf
	}
}

// WithInstruments keeps per-instrument normalized series in the report.
func WithInstruments(keep bool) Option {
	return func(e *Engine) {
		e.instruments = keep
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.With("backtest")
		}
	}
}

// WithClock replaces time.Now, which decides "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// FromConfig applies the backtest section.
func FromConfig(c config.BacktestConfig) []Option {
	return []Option{
		WithTimeout(c.Timeout),
		WithLookbackDays(c.LookbackDays),
		WithRiskFreeRate(c.RiskFreeRate),
	}
}

func New(f *fetch.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher:      f,
		lookbackDays: 14,
		logger:       common.NewSilentLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run backtests p against benchmark. A zero startDate selects the latest
// common start of all instruments and drops holdings that have no price
// on it; an explicit startDate must be covered by every instrument.
//
// Errors are *model.BacktestError values; use model.KindOf or errors.Is
// with the model sentinels to tell them apart.
func (e *Engine) Run(ctx context.Context, p model.Portfolio, benchmark string, startDate time.Time) (*report.Report, error) {
	p = p.Normalized()
	benchmark = model.NormalizeSymbol(benchmark)
	if benchmark == "" {
		return nil, model.NewInvalidPortfolio("benchmark symbol is empty")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	today := model.Date(e.now())
	from := Epoch
	if !startDate.IsZero() {
		startDate = model.Date(startDate)
		if startDate.After(today) {
			return nil, model.NewBacktestError(model.KindEmptyIntersection,
				fmt.Sprintf("start date %s is in the future", model.FormatDate(startDate)))
		}
		from = startDate.AddDate(0, 0, -e.lookbackDays)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	symbols := distinct(append(p.Symbols(), benchmark))
	began := e.now()
	e.logger.Debug().
		Strs("symbols", symbols).
		Str("from", model.FormatDate(from)).
		Str("to", model.FormatDate(today)).
		Msg("fetching histories")

	outcomes := e.fetcher.FetchAll(ctx, symbols, from, today)
	if failures := fetch.Failures(outcomes); len(failures) > 0 {
		err := model.FromFailures(failures)
		e.logger.Warn().Err(err).Strs("symbols", err.Symbols()).Msg("backtest aborted")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, budgetError(err)
	}

	series := make(map[string]model.PriceSeries, len(outcomes))
	for _, o := range outcomes {
		series[o.Symbol] = o.Series
	}

	window, err := align.Align(series, startDate, benchmark)
	if err != nil {
		return nil, err
	}
	var warnings []model.Warning
	for _, d := range window.Dropped {
		e.logger.Warn().Str("symbol", d.Symbol).Str("reason", d.Reason).Msg("instrument dropped")
		warnings = append(warnings, model.Warning{
			Kind:    model.KindPartialInstrumentDrop,
			Symbol:  d.Symbol,
			Message: d.Reason,
		})
	}

	comp, err := Compose(window, p.Weights())
	if err != nil {
		return nil, err
	}
	bench, err := ComposeBenchmark(window, benchmark)
	if err != nil {
		return nil, err
	}

	opts := stats.Options{RiskFreeRate: e.riskFree}
	in := report.Input{
		Window:          window,
		Benchmark:       benchmark,
		Holdings:        p.Holdings,
		Portfolio:       comp.Portfolio,
		BenchmarkValues: bench,
		PortfolioStats:  stats.Compute(comp.Portfolio, opts),
		BenchmarkStats:  stats.Compute(bench, opts),
		Correlation:     stats.Correlation(comp.Portfolio, bench),
		Warnings:        warnings,
		InvestedWeight:  comp.InvestedWeight,
	}
	if e.instruments {
		in.Instruments = comp.Instruments
	}
	r, err := report.Compose(in)
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("benchmark", benchmark).
		Int("holdings", len(p.Holdings)).
		Str("start", model.FormatDate(window.Start)).
		Str("end", model.FormatDate(window.End)).
		Int("dates", len(window.Dates)).
		Int("dropped", len(window.Dropped)).
		Dur("elapsed", e.now().Sub(began)).
		Msg("backtest complete")
	return r, nil
}

func budgetError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewBacktestError(model.KindBacktestTimeout, "backtest time budget exceeded")
	}
	return model.NewBacktestError(model.KindCanceled, "backtest canceled")
}

func distinct(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
