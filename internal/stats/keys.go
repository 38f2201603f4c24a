package stats

// Key names a metric. The set is closed; Keys lists it in report order.
type Key string

const (
	TotalReturn      Key = "total_return"
	CAGR             Key = "cagr"
	AnnualizedReturn Key = "annualized_return"
	Volatility       Key = "volatility"
	MaxDrawdown      Key = "max_drawdown"
	Calmar           Key = "calmar"

	MTD            Key = "mtd"
	ThreeMonth     Key = "three_month"
	SixMonth       Key = "six_month"
	YTD            Key = "ytd"
	OneYear        Key = "one_year"
	ThreeYear      Key = "three_year"
	FiveYear       Key = "five_year"
	TenYear        Key = "ten_year"
	SinceInception Key = "since_inception"

	DailySharpe   Key = "daily_sharpe"
	DailySortino  Key = "daily_sortino"
	DailyMean     Key = "daily_mean"
	DailyVol      Key = "daily_vol"
	DailySkew     Key = "daily_skew"
	DailyKurtosis Key = "daily_kurtosis"
	BestDay       Key = "best_day"
	WorstDay      Key = "worst_day"

	MonthlySharpe   Key = "monthly_sharpe"
	MonthlySortino  Key = "monthly_sortino"
	MonthlyMean     Key = "monthly_mean"
	MonthlyVol      Key = "monthly_vol"
	MonthlySkew     Key = "monthly_skew"
	MonthlyKurtosis Key = "monthly_kurtosis"
	BestMonth       Key = "best_month"
	WorstMonth      Key = "worst_month"

	YearlySharpe   Key = "yearly_sharpe"
	YearlySortino  Key = "yearly_sortino"
	YearlyMean     Key = "yearly_mean"
	YearlyVol      Key = "yearly_vol"
	YearlySkew     Key = "yearly_skew"
	YearlyKurtosis Key = "yearly_kurtosis"
	BestYear       Key = "best_year"
	WorstYear      Key = "worst_year"

	AvgDrawdown              Key = "avg_drawdown"
	AvgDrawdownDays          Key = "avg_drawdown_days"
	AvgUpMonth               Key = "avg_up_month"
	AvgDownMonth             Key = "avg_down_month"
	WinYearPercentage        Key = "win_year_percentage"
	TwelveMonthWinPercentage Key = "twelve_month_win_percentage"

	// CorrelationKey is cross-series; it is not part of a per-series Table.
	CorrelationKey Key = "correlation"
)

// Definition documents one metric.
type Definition struct {
	Key         Key    `json:"key"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

var definitions = []Definition{
	{TotalReturn, "Last value over first value, minus one", "fraction"},
	{CAGR, "Compound annual growth rate over the window (365.25-day years)", "fraction"},
	{AnnualizedReturn, "Mean daily return compounded over 252 trading days", "fraction"},
	{Volatility, "Daily return standard deviation scaled by sqrt(252)", "fraction"},
	{MaxDrawdown, "Deepest fall from a running peak, between -1 and 0", "fraction"},
	{Calmar, "CAGR divided by the absolute max drawdown", "ratio"},

	{MTD, "Return since the last close of the previous month", "fraction"},
	{ThreeMonth, "Return over the trailing three months", "fraction"},
	{SixMonth, "Return over the trailing six months", "fraction"},
	{YTD, "Return since the last close of the previous year", "fraction"},
	{OneYear, "Return over the trailing twelve months", "fraction"},
	{ThreeYear, "Annualized return over the trailing three years", "fraction"},
	{FiveYear, "Annualized return over the trailing five years", "fraction"},
	{TenYear, "Annualized return over the trailing ten years", "fraction"},
	{SinceInception, "Annualized return over the whole window", "fraction"},

	{DailySharpe, "Annualized Sharpe ratio of daily returns", "ratio"},
	{DailySortino, "Annualized Sortino ratio of daily returns", "ratio"},
	{DailyMean, "Mean daily return times 252", "fraction"},
	{DailyVol, "Daily standard deviation times sqrt(252)", "fraction"},
	{DailySkew, "Skewness of daily log returns", "ratio"},
	{DailyKurtosis, "Excess kurtosis of daily log returns", "ratio"},
	{BestDay, "Best daily return", "fraction"},
	{WorstDay, "Worst daily return", "fraction"},

	{MonthlySharpe, "Annualized Sharpe ratio of monthly returns", "ratio"},
	{MonthlySortino, "Annualized Sortino ratio of monthly returns", "ratio"},
	{MonthlyMean, "Mean monthly return times 12", "fraction"},
	{MonthlyVol, "Monthly standard deviation times sqrt(12)", "fraction"},
	{MonthlySkew, "Skewness of monthly log returns", "ratio"},
	{MonthlyKurtosis, "Excess kurtosis of monthly log returns", "ratio"},
	{BestMonth, "Best monthly return", "fraction"},
	{WorstMonth, "Worst monthly return", "fraction"},

	{YearlySharpe, "Sharpe ratio of yearly returns", "ratio"},
	{YearlySortino, "Sortino ratio of yearly returns", "ratio"},
	{YearlyMean, "Mean yearly return", "fraction"},
	{YearlyVol, "Standard deviation of yearly returns", "fraction"},
	{YearlySkew, "Skewness of yearly log returns", "ratio"},
	{YearlyKurtosis, "Excess kurtosis of yearly log returns", "ratio"},
	{BestYear, "Best calendar-year return", "fraction"},
	{WorstYear, "Worst calendar-year return", "fraction"},

	{AvgDrawdown, "Mean depth of drawdown episodes", "fraction"},
	{AvgDrawdownDays, "Mean length of drawdown episodes in calendar days", "days"},
	{AvgUpMonth, "Mean of positive monthly returns", "fraction"},
	{AvgDownMonth, "Mean of non-positive monthly returns", "fraction"},
	{WinYearPercentage, "Share of calendar years with a positive return", "fraction"},
	{TwelveMonthWinPercentage, "Share of rolling twelve-month windows with a positive return", "fraction"},
}

// Keys lists the per-series vocabulary in report order.
var Keys = func() []Key {
	out := make([]Key, len(definitions))
	for i, d := range definitions {
		out[i] = d.Key
	}
	return out
}()

// Definitions returns the vocabulary with descriptions, correlation last.
func Definitions() []Definition {
	out := make([]Definition, 0, len(definitions)+1)
	out = append(out, definitions...)
	return append(out, Definition{CorrelationKey, "Pearson correlation of daily returns against the benchmark", "ratio"})
}
