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

const (
	DefaultEODHDBaseURL  = "https://eodhd.com/api"
	DefaultEODHDExchange = "US"
)

// EODHD reads end-of-day bars from eodhd.com.
type EODHD struct {
	baseURL    string
	apiKey     string
	exchange   string
	httpClient *http.Client
	logger     *common.Logger
}

// EODHDOption configures the client
type EODHDOption func(*EODHD)

// WithEODHDBaseURL sets the base URL
func WithEODHDBaseURL(baseURL string) EODHDOption {
	return func(c *EODHD) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithEODHDExchange sets the suffix appended to bare tickers ("AAPL" -> "AAPL.US").
func WithEODHDExchange(exchange string) EODHDOption {
	return func(c *EODHD) {
		c.exchange = exchange
	}
}

// WithEODHDTimeout sets the HTTP timeout. Zero keeps the default.
func WithEODHDTimeout(timeout time.Duration) EODHDOption {
	return func(c *EODHD) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithEODHDLogger sets the logger
func WithEODHDLogger(logger *common.Logger) EODHDOption {
	return func(c *EODHD) {
		if logger != nil {
			c.logger = logger.With("eodhd")
		}
	}
}

// NewEODHD creates a new EODHD client
func NewEODHD(apiKey string, opts ...EODHDOption) *EODHD {
	c := &EODHD{
		baseURL:    DefaultEODHDBaseURL,
		apiKey:     apiKey,
		exchange:   DefaultEODHDExchange,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	*f = 0
	return nil
}

type eodBarResponse struct {
	Date          string      `json:"date"`
	Close         flexFloat64 `json:"close"`
	AdjustedClose flexFloat64 `json:"adjusted_close"`
}

func (c *EODHD) ticker(symbol string) string {
	if c.exchange == "" || strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + "." + c.exchange
}

// History implements Source.
func (c *EODHD) History(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	if symbol == "" {
		return model.PriceSeries{}, fmt.Errorf("symbol is required")
	}
	start, end = model.Date(start), model.Date(end)
	if start.After(end) {
		return model.PriceSeries{}, fmt.Errorf("start %s is after end %s", model.FormatDate(start), model.FormatDate(end))
	}

	params := url.Values{}
	params.Set("from", model.FormatDate(start))
	params.Set("to", model.FormatDate(end))
	params.Set("period", "d")
	params.Set("order", "a")

	var bars []eodBarResponse
	if err := c.get(ctx, "/eod/"+url.PathEscape(c.ticker(symbol)), params, &bars); err != nil {
		return model.PriceSeries{}, err
	}

	points := make([]model.PricePoint, 0, len(bars))
	for _, bar := range bars {
		day, err := model.ParseDate(bar.Date)
		if err != nil {
			continue
		}
		px := float64(bar.AdjustedClose)
		if px <= 0 {
			px = float64(bar.Close)
		}
		if px <= 0 {
			continue
		}
		points = append(points, model.PricePoint{Date: day, Close: px})
	}
	return clip(symbol, points, start, end), nil
}

// CompanyName implements NameResolver.
func (c *EODHD) CompanyName(ctx context.Context, symbol string) (string, error) {
	params := url.Values{}
	params.Set("filter", "General::Name")
	var name string
	if err := c.get(ctx, "/fundamentals/"+url.PathEscape(c.ticker(symbol)), params, &name); err != nil {
		return "", err
	}
	if name == "" {
		return symbol, nil
	}
	return TruncateName(name), nil
}

func (c *EODHD) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &SourceError{Provider: "eodhd", Code: "NETWORK_ERROR", Message: err.Error(), Err: ErrTransient}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SourceError{Provider: "eodhd", StatusCode: resp.StatusCode, Code: "TRUNCATED_RESPONSE", Message: err.Error(), Err: ErrTransient}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return &SourceError{Provider: "eodhd", StatusCode: resp.StatusCode, Code: "NOT_FOUND", Message: "ticker not found: " + path, Err: ErrNotFound}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &SourceError{Provider: "eodhd", StatusCode: resp.StatusCode, Code: "INVALID_API_KEY", Message: "invalid API key or insufficient permissions", Err: ErrPermanent}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return &SourceError{Provider: "eodhd", StatusCode: resp.StatusCode, Code: "BAD_REQUEST", Message: preview(body), Err: ErrPermanent}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &SourceError{
			Provider:   "eodhd",
			StatusCode: resp.StatusCode,
			Code:       "RATE_LIMIT_EXCEEDED",
			Message:    "rate limit exceeded",
			RetryAfter: resp.Header.Get("Retry-After"),
			Err:        ErrTransient,
		}
	default:
		return &SourceError{Provider: "eodhd", StatusCode: resp.StatusCode, Code: "UPSTREAM_ERROR", Message: preview(body), Err: ErrTransient}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &SourceError{Provider: "eodhd", StatusCode: resp.StatusCode, Code: "BAD_RESPONSE", Message: fmt.Sprintf("failed to decode response: %v", err), Err: ErrTransient}
	}
	return nil
}
