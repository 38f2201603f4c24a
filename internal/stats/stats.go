// Package stats derives return, risk and drawdown metrics from a
// normalized value series.
package stats

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"portfolio-backtest/internal/model"
)

const (
	TradingDaysPerYear = 252
	MonthsPerYear      = 12
	daysPerYear        = 365.25

	// Standard deviations below this are treated as zero.
	epsilon = 1e-12
)

// Options tunes the computation.
type Options struct {
	// RiskFreeRate is annual, as a fraction. It is converted to a
	// per-period rate for each return frequency.
	RiskFreeRate float64
}

type point struct {
	date  time.Time
	value float64
}

type freqKeys struct {
	sharpe, sortino, mean, vol, skew, kurt, best, worst Key
}

var (
	dailyKeys   = freqKeys{DailySharpe, DailySortino, DailyMean, DailyVol, DailySkew, DailyKurtosis, BestDay, WorstDay}
	monthlyKeys = freqKeys{MonthlySharpe, MonthlySortino, MonthlyMean, MonthlyVol, MonthlySkew, MonthlyKurtosis, BestMonth, WorstMonth}
	yearlyKeys  = freqKeys{YearlySharpe, YearlySortino, YearlyMean, YearlyVol, YearlySkew, YearlyKurtosis, BestYear, WorstYear}
)

// Compute fills every key in Keys for v. Anything that cannot be
// computed from the available history is NA.
func Compute(v model.ValueSeries, opts Options) Table {
	t := make(Table, len(Keys))
	for _, k := range Keys {
		t[k] = NA
	}
	n := len(v.Values)
	if n < 2 || len(v.Dates) != n {
		return t
	}

	pts := make([]point, n)
	for i := range v.Values {
		pts[i] = point{date: v.Dates[i], value: v.Values[i]}
	}
	first, last := pts[0], pts[n-1]
	daily := v.Returns()

	t[TotalReturn] = Float(last.value/first.value - 1)
	cagr := annualize(first, last)
	t[CAGR] = cagr
	t[SinceInception] = cagr
	t[AnnualizedReturn] = annualizedMean(daily)
	t[Volatility] = scaledStd(daily, TradingDaysPerYear)

	mdd := maxDrawdown(v.Values)
	t[MaxDrawdown] = Float(mdd)
	if c, ok := cagr.Float64(); ok && mdd < 0 {
		t[Calmar] = Float(c / -mdd)
	}

	end := last.date
	monthStart := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	yearStart := time.Date(end.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	t[MTD] = since(pts, monthStart.AddDate(0, 0, -1))
	t[YTD] = since(pts, yearStart.AddDate(0, 0, -1))
	t[ThreeMonth] = since(pts, end.AddDate(0, -3, 0))
	t[SixMonth] = since(pts, end.AddDate(0, -6, 0))
	t[OneYear] = since(pts, end.AddDate(-1, 0, 0))
	t[ThreeYear] = sinceAnnualized(pts, end.AddDate(-3, 0, 0))
	t[FiveYear] = sinceAnnualized(pts, end.AddDate(-5, 0, 0))
	t[TenYear] = sinceAnnualized(pts, end.AddDate(-10, 0, 0))

	monthEnds := periodEnds(pts, monthKey)
	monthly := returnsOf(monthEnds)
	// The first, partial year only serves as the base.
	yearly := returnsOf(periodCloses(pts, yearKey))

	rf := opts.RiskFreeRate
	setFrequency(t, daily, TradingDaysPerYear, rf, dailyKeys)
	setFrequency(t, monthly, MonthsPerYear, rf, monthlyKeys)
	setFrequency(t, yearly, 1, rf, yearlyKeys)

	if eps := drawdownEpisodes(pts); len(eps) > 0 {
		depth, days := 0.0, 0.0
		for _, e := range eps {
			depth += e.depth
			days += e.end.Sub(e.start).Hours() / 24
		}
		t[AvgDrawdown] = Float(depth / float64(len(eps)))
		t[AvgDrawdownDays] = Float(days / float64(len(eps)))
	}

	var up, down []float64
	for _, r := range monthly {
		if r > 0 {
			up = append(up, r)
		} else {
			down = append(down, r)
		}
	}
	t[AvgUpMonth] = mean(up)
	t[AvgDownMonth] = mean(down)

	if len(yearly) > 0 {
		t[WinYearPercentage] = Float(winShare(yearly))
	}
	t[TwelveMonthWinPercentage] = rollingWinShare(monthEnds, 12)

	return t
}

// Correlation is the Pearson correlation of a's and b's period returns.
// It is NA when the series differ in length or either one is flat.
func Correlation(a, b model.ValueSeries) Value {
	ra, rb := a.Returns(), b.Returns()
	if len(ra) < 2 || len(ra) != len(rb) {
		return NA
	}
	if stat.StdDev(ra, nil) < epsilon || stat.StdDev(rb, nil) < epsilon {
		return NA
	}
	return Float(stat.Correlation(ra, rb, nil))
}

// SelfCorrelation is 1 for a series that moves, NA for a flat one.
func SelfCorrelation(v model.ValueSeries) Value {
	r := v.Returns()
	if len(r) < 2 || stat.StdDev(r, nil) < epsilon {
		return NA
	}
	return Float(1)
}

func annualize(from, to point) Value {
	years := to.date.Sub(from.date).Hours() / 24 / daysPerYear
	if years <= 0 || from.value <= 0 {
		return NA
	}
	return Float(math.Pow(to.value/from.value, 1/years) - 1)
}

func annualizedMean(rs []float64) Value {
	if len(rs) == 0 {
		return NA
	}
	return Float(math.Pow(1+stat.Mean(rs, nil), TradingDaysPerYear) - 1)
}

func scaledStd(rs []float64, periodsPerYear float64) Value {
	if len(rs) < 2 {
		return NA
	}
	return Float(stat.StdDev(rs, nil) * math.Sqrt(periodsPerYear))
}

func mean(xs []float64) Value {
	if len(xs) == 0 {
		return NA
	}
	return Float(stat.Mean(xs, nil))
}

func maxDrawdown(values []float64) float64 {
	peak, worst := values[0], 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if dd := v/peak - 1; dd < worst {
			worst = dd
		}
	}
	return worst
}

// asOf returns the index of the last point on or before d, or -1.
func asOf(pts []point, d time.Time) int {
	idx := -1
	for i, p := range pts {
		if p.date.After(d) {
			break
		}
		idx = i
	}
	return idx
}

func since(pts []point, base time.Time) Value {
	i := asOf(pts, base)
	if i < 0 {
		return NA
	}
	return Float(pts[len(pts)-1].value/pts[i].value - 1)
}

func sinceAnnualized(pts []point, base time.Time) Value {
	i := asOf(pts, base)
	if i < 0 {
		return NA
	}
	return annualize(pts[i], pts[len(pts)-1])
}

func monthKey(t time.Time) int { return t.Year()*12 + int(t.Month()) }

func yearKey(t time.Time) int { return t.Year() }

// periodEnds is the first point followed by the last point of each
// period. The first period's return is measured from the first point.
func periodEnds(pts []point, key func(time.Time) int) []point {
	return append([]point{pts[0]}, periodCloses(pts[1:], key)...)
}

// periodCloses is the last point of each period, the final one possibly
// partial.
func periodCloses(pts []point, key func(time.Time) int) []point {
	var out []point
	for i := range pts {
		if i == len(pts)-1 || key(pts[i+1].date) != key(pts[i].date) {
			out = append(out, pts[i])
		}
	}
	return out
}

func returnsOf(pts []point) []float64 {
	if len(pts) < 2 {
		return nil
	}
	out := make([]float64, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		out = append(out, pts[i].value/pts[i-1].value-1)
	}
	return out
}

func setFrequency(t Table, rs []float64, periodsPerYear, riskFree float64, k freqKeys) {
	if len(rs) == 0 {
		return
	}
	t[k.mean] = Float(stat.Mean(rs, nil) * periodsPerYear)
	t[k.vol] = scaledStd(rs, periodsPerYear)
	t[k.best] = Float(floats.Max(rs))
	t[k.worst] = Float(floats.Min(rs))

	rfPeriod := math.Pow(1+riskFree, 1/periodsPerYear) - 1
	excess := make([]float64, len(rs))
	for i, r := range rs {
		excess[i] = r - rfPeriod
	}
	t[k.sharpe] = sharpe(excess, periodsPerYear)
	t[k.sortino] = sortino(excess, periodsPerYear)

	logs := make([]float64, len(rs))
	for i, r := range rs {
		logs[i] = math.Log1p(r)
	}
	if len(logs) >= 3 {
		t[k.skew] = Float(stat.Skew(logs, nil))
	}
	if len(logs) >= 4 {
		t[k.kurt] = Float(stat.ExKurtosis(logs, nil))
	}
}

func sharpe(excess []float64, periodsPerYear float64) Value {
	if len(excess) < 2 {
		return NA
	}
	sd := stat.StdDev(excess, nil)
	if sd < epsilon {
		return NA
	}
	return Float(stat.Mean(excess, nil) / sd * math.Sqrt(periodsPerYear))
}

func sortino(excess []float64, periodsPerYear float64) Value {
	if len(excess) < 2 {
		return NA
	}
	sum := 0.0
	for _, e := range excess {
		if e < 0 {
			sum += e * e
		}
	}
	dd := math.Sqrt(sum / float64(len(excess)))
	if dd < epsilon {
		return NA
	}
	return Float(stat.Mean(excess, nil) / dd * math.Sqrt(periodsPerYear))
}

type episode struct {
	start, end time.Time
	depth      float64
}

// drawdownEpisodes finds each maximal run below the running peak. An
// episode lasts from its first underwater date to the recovery date, or
// to the last date when it never recovers.
func drawdownEpisodes(pts []point) []episode {
	var (
		eps  []episode
		cur  *episode
		peak = pts[0].value
	)
	for _, p := range pts {
		if p.value >= peak {
			peak = p.value
			if cur != nil {
				cur.end = p.date
				eps = append(eps, *cur)
				cur = nil
			}
			continue
		}
		dd := p.value/peak - 1
		if cur == nil {
			cur = &episode{start: p.date, depth: dd}
		} else if dd < cur.depth {
			cur.depth = dd
		}
	}
	if cur != nil {
		cur.end = pts[len(pts)-1].date
		eps = append(eps, *cur)
	}
	return eps
}

func winShare(rs []float64) float64 {
	wins := 0
	for _, r := range rs {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(rs))
}

func rollingWinShare(ends []point, window int) Value {
	if len(ends) <= window {
		return NA
	}
	wins, total := 0, 0
	for i := window; i < len(ends); i++ {
		total++
		if ends[i].value/ends[i-window].value-1 > 0 {
			wins++
		}
	}
	return Float(float64(wins) / float64(total))
}
