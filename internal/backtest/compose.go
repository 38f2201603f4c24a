package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"portfolio-backtest/internal/model"
)

// Base is the normalized value of every series on the window start.
const Base = 100.0

// Composition is a buy-and-hold portfolio over one aligned window.
//
// Weights are the initial allocation only. Positions drift with their
// prices and are never rebalanced. Weight that is not invested (dropped
// instruments, or slack in a sum that is within tolerance of 1) is held
// as cash at its starting value rather than spread over the holdings.
type Composition struct {
	Portfolio      model.ValueSeries
	Instruments    map[string]model.ValueSeries
	InvestedWeight float64
}

// Normalize rescales symbol's aligned closes so the window start is Base.
func Normalize(w *model.AlignedWindow, symbol string) (model.ValueSeries, error) {
	prices, ok := w.Series[symbol]
	if !ok {
		return model.ValueSeries{}, model.NewBacktestError(model.KindInternalConsistency,
			fmt.Sprintf("%s is not part of the aligned window", symbol))
	}
	if len(prices) != len(w.Dates) || len(prices) == 0 {
		return model.ValueSeries{}, model.NewBacktestError(model.KindInternalConsistency,
			fmt.Sprintf("%s has %d values for %d dates", symbol, len(prices), len(w.Dates)))
	}
	first := prices[0]
	if !(first > 0) || math.IsInf(first, 0) {
		return model.ValueSeries{}, model.NewBacktestError(model.KindInternalConsistency,
			fmt.Sprintf("%s has a non-positive start price %g", symbol, first))
	}

	out := model.ValueSeries{
		Dates:  cloneDates(w.Dates),
		Values: make([]float64, len(prices)),
	}
	for i, p := range prices {
		out.Values[i] = Base * (p / first)
	}
	out.Values[0] = Base
	return out, nil
}

// Compose builds the portfolio value path from weights. Holdings missing
// from the window contribute cash. At least one holding must be present.
func Compose(w *model.AlignedWindow, weights map[string]float64) (*Composition, error) {
	symbols := make([]string, 0, len(weights))
	for s := range weights {
		if w.Has(s) {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return nil, model.NewBacktestError(model.KindEmptyIntersection,
			"no portfolio holding has data on the window start")
	}
	// Fixed summation order keeps repeated runs bit-identical.
	sort.Strings(symbols)

	c := &Composition{
		Portfolio: model.ValueSeries{
			Dates:  cloneDates(w.Dates),
			Values: make([]float64, len(w.Dates)),
		},
		Instruments: make(map[string]model.ValueSeries, len(symbols)),
	}
	for _, s := range symbols {
		norm, err := Normalize(w, s)
		if err != nil {
			return nil, err
		}
		c.Instruments[s] = norm
		c.InvestedWeight += weights[s]
		for i, v := range norm.Values {
			c.Portfolio.Values[i] += weights[s] * v
		}
	}

	cash := Base * (1 - c.InvestedWeight)
	for i := range c.Portfolio.Values {
		c.Portfolio.Values[i] += cash
	}
	c.Portfolio.Values[0] = Base
	return c, nil
}

// ComposeBenchmark is the benchmark held at weight 1 over the same window.
func ComposeBenchmark(w *model.AlignedWindow, symbol string) (model.ValueSeries, error) {
	return Normalize(w, symbol)
}

func cloneDates(in []time.Time) []time.Time {
	out := make([]time.Time, len(in))
	copy(out, in)
	return out
}
