package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-backtest/internal/config"
	"portfolio-backtest/internal/report"
)

func resetFlags() {
	cfgFile, logLevel = "", "disabled"
	btTickers, btAllocations, btWeights, btBenchmark, btStartDate = nil, nil, "", "", ""
	btRiskFree, btOut, btChart, btSave = 0, "", "", false
	wTickers, wAllocations, wNames, wResolve, wOut, wFile = nil, nil, nil, false, "", ""
	backtestCmd.Flags().Lookup("risk-free").Changed = false
}

// execute runs the root command with fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// chartServer answers every chart request with the same three sessions
// (2024-01-02..04), scaled per symbol. Unknown symbols get a 404.
func chartServer(t *testing.T, prices map[string][3]float64) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := filepath.Base(r.URL.Path)
		p, ok := prices[symbol]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
			return
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"symbol":%q,"gmtoffset":-18000},
"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"close":[%g,%g,%g]}],"adjclose":[{"adjclose":[%g,%g,%g]}]}}],"error":null}}`,
			symbol, p[0], p[1], p[2], p[0], p[1], p[2])
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) (string, string) {
	dir := t.TempDir()
	db := filepath.Join(dir, "portfolios.db")
	cfg := fmt.Sprintf(`source:
  provider: yahoo
  base_url: %s
  rate_limit: 100
fetch:
  max_attempts: 2
  base_delay: 1ms
  max_delay: 2ms
  concurrency: 4
backtest:
  benchmark: SPY
  timeout: 10s
store:
  path: %s
log:
  level: disabled
`, baseURL, db)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, dir
}

func TestWeightsSample(t *testing.T) {
	out, err := execute(t, "weights", "sample")
	require.NoError(t, err)

	want, err := report.WeightsDocument(report.SampleWeights())
	require.NoError(t, err)
	assert.Equal(t, string(want), out)
}

func TestWeightsExportThenCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.csv")

	out, err := execute(t, "weights", "export",
		"--tickers", "aapl,MSFT", "--allocations", "60,40",
		"--names", "Apple Inc.,Microsoft Corporation", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 holdings")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Ticker,Company Name,Weight (%)\nAAPL,Apple Inc.,60.00\nMSFT,Microsoft Corporation,40.00\n", string(raw))

	out, err = execute(t, "weights", "check", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 holdings, total 100.00%")
	assert.NotContains(t, out, "warning")
}

func TestWeightsCheckWarnsOnTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "half.csv")
	require.NoError(t, os.WriteFile(path, []byte("Ticker,Weight (%)\nAAPL,30\nMSFT,20\n"), 0o644))

	out, err := execute(t, "weights", "check", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "warning: total weight is 50.00%")
}

func TestWeightsCheckRejectsMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Symbol,Weight (%)\nAAPL,100\n"), 0o644))

	_, err := execute(t, "weights", "check", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ticker")
}

func TestBacktestCommand(t *testing.T) {
	srv := chartServer(t, map[string][3]float64{
		"AAPL": {100, 110, 121},
		"MSFT": {50, 50, 55},
		"SPY":  {400, 404, 408},
	})
	cfg, dir := writeConfig(t, srv.URL)
	reportPath := filepath.Join(dir, "report.csv")

	out, err := execute(t, "backtest", "--config", cfg,
		"--tickers", "AAPL,MSFT", "--allocations", "60,40",
		"--out", reportPath, "--save")
	require.NoError(t, err)

	assert.Contains(t, out, "Backtest 2024-01-02 to 2024-01-04 (3 trading days), benchmark SPY")
	assert.Contains(t, out, "KEY METRICS")
	assert.Contains(t, out, "DETAILED STATISTICS")
	assert.Contains(t, out, "Annualized Return")
	assert.Contains(t, out, "Wrote report to "+reportPath)

	doc, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	lines := strings.Split(string(doc), "\n")
	require.Greater(t, len(lines), 4)
	assert.Equal(t, report.TitleTimeSeries, lines[0])
	assert.Equal(t, "Date,Portfolio Value (Base=100),Benchmark SPY (Base=100)", lines[2])
	assert.Equal(t, "2024-01-02,100.00,100.00", lines[3])
	// 0.6*121 + 0.4*110 = 116.6; SPY 408/400 = 102.
	assert.Contains(t, string(doc), "2024-01-04,116.60,102.00")

	out, err = execute(t, "portfolios", "list", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL, MSFT")
	assert.Contains(t, out, "benchmark SPY, start auto")
}

func TestBacktestCommandNamesUnknownSymbol(t *testing.T) {
	srv := chartServer(t, map[string][3]float64{
		"AAPL": {100, 110, 121},
		"SPY":  {400, 404, 408},
	})
	cfg, _ := writeConfig(t, srv.URL)

	_, err := execute(t, "backtest", "--config", cfg, "--tickers", "AAPL,NOPE", "--allocations", "50,50")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOPE")
}

func TestBacktestCommandNeedsHoldings(t *testing.T) {
	_, err := execute(t, "backtest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no holdings")
}

func TestPortfoliosListEmptyInMemory(t *testing.T) {
	out, err := execute(t, "portfolios", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no recent portfolios")
}

func TestBacktestOverrides(t *testing.T) {
	base := config.BacktestConfig{Benchmark: "SPY", RiskFreeRate: 0.05, LookbackDays: 14}

	resetFlags()
	t.Cleanup(resetFlags)
	got := backtestOverrides(backtestCmd, base)
	assert.Equal(t, base, got, "nothing set on the command line")

	require.NoError(t, backtestCmd.Flags().Set("risk-free", "0"))
	require.NoError(t, backtestCmd.Flags().Set("benchmark", " qqq "))
	got = backtestOverrides(backtestCmd, base)
	assert.Equal(t, 0.0, got.RiskFreeRate, "an explicit zero replaces the configured rate")
	assert.Equal(t, "qqq", got.Benchmark)
	assert.Equal(t, 14, got.LookbackDays)
}
