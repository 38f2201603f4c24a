package model

import (
	"time"
)

// DateLayout is the wire and document format for calendar dates.
const DateLayout = "2006-01-02"

// Date truncates t to a UTC calendar date. The wall-clock date of t in
// its own location is kept.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// PricePoint is one adjusted close.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is a date-ascending close history for one symbol.
// It is not modified once a source has returned it.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

func (s PriceSeries) Len() int { return len(s.Points) }

func (s PriceSeries) Empty() bool { return len(s.Points) == 0 }

// First returns the first observation date.
func (s PriceSeries) First() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].Date
}

// Last returns the last observation date.
func (s PriceSeries) Last() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}

// ValueSeries is a normalized value path, 100 on its first date.
type ValueSeries struct {
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

func (v ValueSeries) Len() int { return len(v.Values) }

// Returns gives the simple period-over-period returns.
func (v ValueSeries) Returns() []float64 {
	if len(v.Values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(v.Values)-1)
	for i := 1; i < len(v.Values); i++ {
		out = append(out, v.Values[i]/v.Values[i-1]-1)
	}
	return out
}

// Drop records an instrument excluded during alignment.
type Drop struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// AlignedWindow is the common date grid after alignment. Every entry in
// Series has exactly len(Dates) finite prices.
type AlignedWindow struct {
	Start   time.Time            `json:"start"`
	End     time.Time            `json:"end"`
	Dates   []time.Time          `json:"dates"`
	Series  map[string][]float64 `json:"series"`
	Dropped []Drop               `json:"dropped,omitempty"`
}

// Has reports whether symbol survived alignment.
func (w *AlignedWindow) Has(symbol string) bool {
	_, ok := w.Series[symbol]
	return ok
}
