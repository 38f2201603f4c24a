// Package align puts independently fetched price series onto one
// gap-free date grid.
package align

import (
	"fmt"
	"math"
	"sort"
	"time"

	"portfolio-backtest/internal/model"
)

// MinDates is the shortest usable window; one date has no return.
const MinDates = 2

// Align computes the effective window for seriesBySymbol.
//
// With a zero requestedStart the window opens on the latest first
// observation across all series. A series that has no bar on that exact
// date is dropped and reported in Dropped, unless it is listed in
// required, in which case the whole alignment fails.
//
// With an explicit requestedStart every series must already have data on
// or before it. The window opens on the first trading date at or after
// requestedStart, and a series without a bar on that date carries its
// previous close in.
//
// The window closes on the earliest last observation. Gaps inside the
// window are forward-filled from the prior trading date.
func Align(seriesBySymbol map[string]model.PriceSeries, requestedStart time.Time, required ...string) (*model.AlignedWindow, error) {
	if len(seriesBySymbol) == 0 {
		return nil, model.NewBacktestError(model.KindEmptyIntersection, "no series to align")
	}

	symbols := make([]string, 0, len(seriesBySymbol))
	for sym := range seriesBySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var empty []*model.SymbolError
	for _, sym := range symbols {
		if seriesBySymbol[sym].Empty() {
			empty = append(empty, model.NewSymbolError(model.KindNoDataInRange, sym, nil))
		}
	}
	if len(empty) > 0 {
		return nil, model.NewBacktestError(model.KindEmptyIntersection, "cannot align series without observations", empty...)
	}

	end := seriesBySymbol[symbols[0]].Last()
	latestFirst := seriesBySymbol[symbols[0]].First()
	for _, sym := range symbols[1:] {
		s := seriesBySymbol[sym]
		if s.Last().Before(end) {
			end = s.Last()
		}
		if s.First().After(latestFirst) {
			latestFirst = s.First()
		}
	}

	var (
		start time.Time
		err   error
	)
	explicit := !requestedStart.IsZero()
	if explicit {
		start, err = explicitStart(seriesBySymbol, symbols, model.Date(requestedStart), end)
	} else {
		start = latestFirst
	}
	if err != nil {
		return nil, err
	}

	if start.After(end) {
		var short []*model.SymbolError
		for _, sym := range symbols {
			if seriesBySymbol[sym].Last().Before(start) {
				short = append(short, model.NewSymbolError(model.KindEmptyIntersection, sym,
					fmt.Errorf("history ends %s, before window start %s", model.FormatDate(seriesBySymbol[sym].Last()), model.FormatDate(start))))
			}
		}
		return nil, model.NewBacktestError(model.KindEmptyIntersection,
			fmt.Sprintf("no overlapping history: window start %s is after end %s", model.FormatDate(start), model.FormatDate(end)), short...)
	}

	w := &model.AlignedWindow{
		Start:  start,
		End:    end,
		Series: make(map[string][]float64, len(symbols)),
	}

	kept := symbols
	if !explicit {
		kept, w.Dropped = dropMissingAtStart(seriesBySymbol, symbols, start)
		isRequired := make(map[string]bool, len(required))
		for _, r := range required {
			isRequired[r] = true
		}
		var fatal []*model.SymbolError
		for _, d := range w.Dropped {
			if isRequired[d.Symbol] {
				fatal = append(fatal, model.NewSymbolError(model.KindEmptyIntersection, d.Symbol, fmt.Errorf("%s", d.Reason)))
			}
		}
		if len(fatal) > 0 {
			return nil, model.NewBacktestError(model.KindEmptyIntersection, "a required series has no observation at the window start", fatal...)
		}
		if len(kept) == 0 {
			return nil, model.NewBacktestError(model.KindEmptyIntersection, "every series was dropped at the window start")
		}
	}

	w.Dates = dateGrid(seriesBySymbol, kept, start, end)
	if len(w.Dates) < MinDates {
		return nil, model.NewBacktestError(model.KindEmptyIntersection,
			fmt.Sprintf("window %s..%s has %d trading date(s), need at least %d", model.FormatDate(start), model.FormatDate(end), len(w.Dates), MinDates))
	}

	for _, sym := range kept {
		w.Series[sym] = forwardFill(seriesBySymbol[sym], w.Dates)
	}
	if err := Check(w); err != nil {
		return nil, err
	}
	return w, nil
}

func explicitStart(seriesBySymbol map[string]model.PriceSeries, symbols []string, requested, end time.Time) (time.Time, error) {
	var short []*model.SymbolError
	for _, sym := range symbols {
		s := seriesBySymbol[sym]
		if s.First().After(requested) {
			short = append(short, model.NewSymbolError(model.KindInsufficientHistory, sym,
				fmt.Errorf("history starts %s, after requested start %s", model.FormatDate(s.First()), model.FormatDate(requested))))
		}
	}
	if len(short) > 0 {
		return time.Time{}, model.NewBacktestError(model.KindInsufficientHistory,
			fmt.Sprintf("not every instrument has data back to %s", model.FormatDate(requested)), short...)
	}

	var start time.Time
	for _, sym := range symbols {
		pts := seriesBySymbol[sym].Points
		i := sort.Search(len(pts), func(i int) bool { return !pts[i].Date.Before(requested) })
		if i < len(pts) && (start.IsZero() || pts[i].Date.Before(start)) {
			start = pts[i].Date
		}
	}
	if start.IsZero() {
		return time.Time{}, model.NewBacktestError(model.KindEmptyIntersection,
			fmt.Sprintf("no observations on or after %s", model.FormatDate(requested)))
	}
	return start, nil
}

func dropMissingAtStart(seriesBySymbol map[string]model.PriceSeries, symbols []string, start time.Time) ([]string, []model.Drop) {
	kept := make([]string, 0, len(symbols))
	var dropped []model.Drop
	for _, sym := range symbols {
		if hasDate(seriesBySymbol[sym], start) {
			kept = append(kept, sym)
			continue
		}
		dropped = append(dropped, model.Drop{
			Symbol: sym,
			Reason: fmt.Sprintf("no observation on window start %s", model.FormatDate(start)),
		})
	}
	return kept, dropped
}

func hasDate(s model.PriceSeries, d time.Time) bool {
	i := sort.Search(len(s.Points), func(i int) bool { return !s.Points[i].Date.Before(d) })
	return i < len(s.Points) && s.Points[i].Date.Equal(d)
}

// dateGrid is the sorted union of the kept series' dates in [start, end].
func dateGrid(seriesBySymbol map[string]model.PriceSeries, symbols []string, start, end time.Time) []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	// The start always belongs to the grid, even when it is only carried in.
	seen[start] = true
	dates = append(dates, start)
	for _, sym := range symbols {
		for _, p := range seriesBySymbol[sym].Points {
			if p.Date.Before(start) || p.Date.After(end) || seen[p.Date] {
				continue
			}
			seen[p.Date] = true
			dates = append(dates, p.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// forwardFill samples s on dates using the last close on or before each date.
// Callers guarantee s has an observation on or before dates[0].
func forwardFill(s model.PriceSeries, dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	j := -1
	for i, d := range dates {
		for j+1 < len(s.Points) && !s.Points[j+1].Date.After(d) {
			j++
		}
		if j < 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = s.Points[j].Close
	}
	return out
}

// Check verifies the window invariant: every series covers every date
// with a finite positive price.
func Check(w *model.AlignedWindow) error {
	for sym, vals := range w.Series {
		if len(vals) != len(w.Dates) {
			return model.NewBacktestError(model.KindInternalConsistency,
				fmt.Sprintf("aligned series %s has %d values for %d dates", sym, len(vals), len(w.Dates)))
		}
		for i, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return model.NewBacktestError(model.KindInternalConsistency,
					fmt.Sprintf("aligned series %s has invalid price %v on %s", sym, v, model.FormatDate(w.Dates[i])))
			}
		}
	}
	return nil
}
