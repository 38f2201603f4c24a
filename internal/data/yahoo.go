package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/model"
)

var defaultYahooHosts = []string{
	"https://query1.finance.yahoo.com",
	"https://query2.finance.yahoo.com",
}

const yahooUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"

// Yahoo reads daily bars from the Yahoo Finance v8 chart endpoint.
// No API key is needed. Each call tries the hosts in order and moves on
// when one throttles or returns garbage.
type Yahoo struct {
	hosts      []string
	httpClient *http.Client
	logger     *common.Logger
}

// YahooOption configures the client
type YahooOption func(*Yahoo)

// WithYahooBaseURL replaces the host list with a single base URL.
func WithYahooBaseURL(baseURL string) YahooOption {
	return func(y *Yahoo) {
		y.hosts = []string{strings.TrimRight(baseURL, "/")}
	}
}

// WithYahooHTTPClient sets the HTTP client.
func WithYahooHTTPClient(c *http.Client) YahooOption {
	return func(y *Yahoo) {
		y.httpClient = c
	}
}

// WithYahooTimeout sets the HTTP timeout. Zero keeps the default.
func WithYahooTimeout(timeout time.Duration) YahooOption {
	return func(y *Yahoo) {
		if timeout > 0 {
			y.httpClient.Timeout = timeout
		}
	}
}

// WithYahooLogger sets the logger
func WithYahooLogger(logger *common.Logger) YahooOption {
	return func(y *Yahoo) {
		if logger != nil {
			y.logger = logger.With("yahoo")
		}
	}
}

// NewYahoo creates a Yahoo chart client.
func NewYahoo(opts ...YahooOption) *Yahoo {
	y := &Yahoo{
		hosts:      append([]string(nil), defaultYahooHosts...),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

type yahooChartResp struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GmtOffset int64  `json:"gmtoffset"`
				Timezone  string `json:"timezone"`
				LongName  string `json:"longName"`
				ShortName string `json:"shortName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History implements Source.
func (y *Yahoo) History(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	if symbol == "" {
		return model.PriceSeries{}, fmt.Errorf("symbol is required")
	}
	start, end = model.Date(start), model.Date(end)
	if start.After(end) {
		return model.PriceSeries{}, fmt.Errorf("start %s is after end %s", model.FormatDate(start), model.FormatDate(end))
	}

	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	// period2 is exclusive.
	q.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "div,splits")
	q.Set("includeAdjustedClose", "true")

	yc, err := y.chart(ctx, symbol, q)
	if err != nil {
		return model.PriceSeries{}, err
	}
	if len(yc.Chart.Result) == 0 {
		return model.PriceSeries{Symbol: symbol}, nil
	}

	r := yc.Chart.Result[0]
	var closes, adj []*float64
	if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	points := make([]model.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		px := pick(adj, i)
		if px == nil {
			px = pick(closes, i)
		}
		if px == nil || *px <= 0 {
			continue
		}
		// Shift into the exchange's zone so the bar lands on its trading date.
		day := model.Date(time.Unix(ts+r.Meta.GmtOffset, 0).UTC())
		points = append(points, model.PricePoint{Date: day, Close: *px})
	}

	series := clip(symbol, points, start, end)
	y.logger.Debug().
		Str("symbol", symbol).
		Int("bars", series.Len()).
		Msg("yahoo history")
	return series, nil
}

// CompanyName implements NameResolver.
func (y *Yahoo) CompanyName(ctx context.Context, symbol string) (string, error) {
	q := url.Values{}
	q.Set("range", "5d")
	q.Set("interval", "1d")
	yc, err := y.chart(ctx, symbol, q)
	if err != nil {
		return "", err
	}
	if len(yc.Chart.Result) == 0 {
		return symbol, nil
	}
	meta := yc.Chart.Result[0].Meta
	switch {
	case meta.LongName != "":
		return TruncateName(meta.LongName), nil
	case meta.ShortName != "":
		return TruncateName(meta.ShortName), nil
	}
	return symbol, nil
}

func pick(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

// chart walks the host list. Not-found answers stop immediately; every
// other failure falls through to the next host and the last one is returned.
func (y *Yahoo) chart(ctx context.Context, symbol string, q url.Values) (*yahooChartResp, error) {
	var lastErr error
	for _, host := range y.hosts {
		yc, err := y.chartOnce(ctx, host, symbol, q)
		if err == nil {
			return yc, nil
		}
		if IsNotFound(err) || IsPermanent(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (y *Yahoo) chartOnce(ctx context.Context, host, symbol string, q url.Values) (*yahooChartResp, error) {
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", host, url.PathEscape(symbol), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	started := time.Now()
	resp, err := y.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SourceError{Provider: "yahoo", Code: "NETWORK_ERROR", Message: err.Error(), Err: ErrTransient}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SourceError{Provider: "yahoo", StatusCode: resp.StatusCode, Code: "TRUNCATED_RESPONSE", Message: err.Error(), Err: ErrTransient}
	}

	y.logger.Debug().
		Str("symbol", symbol).
		Str("host", host).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("yahoo response")

	trimmed := strings.TrimSpace(string(body))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || strings.HasPrefix(trimmed, "Edge: Too Many Requests"):
		return nil, &SourceError{
			Provider:   "yahoo",
			StatusCode: resp.StatusCode,
			Code:       "RATE_LIMIT_EXCEEDED",
			Message:    "rate limit exceeded",
			RetryAfter: resp.Header.Get("Retry-After"),
			Err:        ErrTransient,
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &SourceError{Provider: "yahoo", StatusCode: resp.StatusCode, Code: "NOT_FOUND", Message: "no such symbol " + symbol, Err: ErrNotFound}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Yahoo answers 401 on crumb/cookie hiccups, which clear up on their own.
		return nil, &SourceError{Provider: "yahoo", StatusCode: resp.StatusCode, Code: "UNAUTHORIZED", Message: preview(body), Err: ErrTransient}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		// The request itself is wrong; asking again will not help.
		return nil, &SourceError{Provider: "yahoo", StatusCode: resp.StatusCode, Code: "BAD_REQUEST", Message: preview(body), Err: ErrPermanent}
	case resp.StatusCode != http.StatusOK:
		return nil, &SourceError{Provider: "yahoo", StatusCode: resp.StatusCode, Code: "UPSTREAM_ERROR", Message: preview(body), Err: ErrTransient}
	case strings.HasPrefix(trimmed, "<") || strings.HasPrefix(trimmed, "Edge:"):
		return nil, &SourceError{Provider: "yahoo", StatusCode: resp.StatusCode, Code: "NON_JSON_RESPONSE", Message: "non-json body: " + preview(body), Err: ErrTransient}
	}

	var yc yahooChartResp
	if err := json.Unmarshal(body, &yc); err != nil {
		return nil, &SourceError{Provider: "yahoo", StatusCode: resp.StatusCode, Code: "BAD_RESPONSE", Message: fmt.Sprintf("failed to parse json: %v", err), Err: ErrTransient}
	}
	if e := yc.Chart.Error; e != nil {
		if strings.EqualFold(e.Code, "Not Found") {
			return nil, &SourceError{Provider: "yahoo", StatusCode: resp.StatusCode, Code: "NOT_FOUND", Message: e.Description, Err: ErrNotFound}
		}
		return nil, &SourceError{Provider: "yahoo", StatusCode: resp.StatusCode, Code: "API_ERROR", Message: e.Code + ": " + e.Description, Err: ErrTransient}
	}
	return &yc, nil
}
