package model

import (
	"fmt"
	"math"
	"strings"
)

// WeightTolerance is how far the weight sum may stray from 1.0.
const WeightTolerance = 0.01

// Holding is one instrument in a portfolio.
// Weight is a fraction of the initial allocation in [0,1].
type Holding struct {
	Symbol string  `json:"symbol" yaml:"symbol"`
	Weight float64 `json:"weight" yaml:"weight"`
	Name   string  `json:"name,omitempty" yaml:"name,omitempty"`
}

// Portfolio is an ordered set of holdings.
type Portfolio struct {
	Holdings []Holding `json:"holdings" yaml:"holdings"`
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Normalized returns a copy with case-normalized symbols. Order is kept.
func (p Portfolio) Normalized() Portfolio {
	out := Portfolio{Holdings: make([]Holding, len(p.Holdings))}
	for i, h := range p.Holdings {
		h.Symbol = NormalizeSymbol(h.Symbol)
		h.Name = strings.TrimSpace(h.Name)
		out.Holdings[i] = h
	}
	return out
}

// Symbols returns the holding symbols in portfolio order.
func (p Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		out = append(out, h.Symbol)
	}
	return out
}

// Weights returns symbol -> weight.
func (p Portfolio) Weights() map[string]float64 {
	out := make(map[string]float64, len(p.Holdings))
	for _, h := range p.Holdings {
		out[h.Symbol] += h.Weight
	}
	return out
}

// TotalWeight sums all holding weights.
func (p Portfolio) TotalWeight() float64 {
	total := 0.0
	for _, h := range p.Holdings {
		total += h.Weight
	}
	return total
}

// Validate checks the portfolio invariants. Symbols are compared after
// normalization, so "aapl" and "AAPL" count as duplicates.
// Every problem found is reported, not just the first.
func (p Portfolio) Validate() error {
	if len(p.Holdings) == 0 {
		return NewInvalidPortfolio("portfolio has no holdings")
	}

	var problems []string
	seen := make(map[string]bool, len(p.Holdings))
	for i, h := range p.Holdings {
		sym := NormalizeSymbol(h.Symbol)
		if sym == "" {
			problems = append(problems, fmt.Sprintf("holding %d has an empty symbol", i+1))
			continue
		}
		if seen[sym] {
			problems = append(problems, fmt.Sprintf("duplicate symbol %s", sym))
		}
		seen[sym] = true
		if math.IsNaN(h.Weight) || h.Weight < 0 || h.Weight > 1 {
			problems = append(problems, fmt.Sprintf("weight for %s must be in [0, 1], got %g", sym, h.Weight))
		}
	}

	total := p.TotalWeight()
	if math.IsNaN(total) || math.Abs(total-1) > WeightTolerance {
		problems = append(problems, fmt.Sprintf("weights must sum to 1.0 (±%.2f), got %.4f", WeightTolerance, total))
	}

	if len(problems) > 0 {
		return NewInvalidPortfolio(strings.Join(problems, "; "))
	}
	return nil
}

// FromPercentages builds a portfolio from parallel ticker/percentage lists,
// the shape the command line and upload forms use.
func FromPercentages(symbols []string, percents []float64) (Portfolio, error) {
	if len(symbols) != len(percents) {
		return Portfolio{}, NewInvalidPortfolio(fmt.Sprintf("%d tickers but %d allocations", len(symbols), len(percents)))
	}
	p := Portfolio{Holdings: make([]Holding, 0, len(symbols))}
	for i, s := range symbols {
		p.Holdings = append(p.Holdings, Holding{
			Symbol: NormalizeSymbol(s),
			Weight: percents[i] / 100,
		})
	}
	return p, nil
}
