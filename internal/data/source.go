package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/config"
	"portfolio-backtest/internal/model"
)

// Source provides daily adjusted closes for one symbol over [start, end]
// (calendar dates, inclusive). A symbol that exists but has no bars in
// range yields an empty series and a nil error.
type Source interface {
	History(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error)
}

// NameResolver is implemented by sources that can look up display names.
type NameResolver interface {
	CompanyName(ctx context.Context, symbol string) (string, error)
}

var (
	// ErrNotFound marks a definitive "no such symbol" answer from upstream.
	ErrNotFound = errors.New("symbol not found")
	// ErrTransient marks failures worth retrying: throttling, 5xx, garbage bodies.
	ErrTransient = errors.New("transient upstream failure")
	// ErrPermanent marks failures that will not improve on retry (bad credentials).
	ErrPermanent = errors.New("permanent upstream failure")
)

// SourceError represents an error response from a market data provider.
type SourceError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	RetryAfter string // For rate limit errors
	Err        error  // ErrNotFound, ErrTransient or ErrPermanent
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a definitive unknown-symbol answer.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// MaxNameLength is the longest company name kept verbatim.
const MaxNameLength = 30

// TruncateName shortens long company names to 27 characters plus "...".
func TruncateName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= MaxNameLength {
		return name
	}
	r := []rune(name)
	return string(r[:MaxNameLength-3]) + "..."
}

// clip keeps points within [start, end], sorted by date with one point
// per date (the last one wins).
func clip(symbol string, points []model.PricePoint, start, end time.Time) model.PriceSeries {
	start, end = model.Date(start), model.Date(end)
	byDate := make(map[time.Time]float64, len(points))
	for _, p := range points {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		byDate[p.Date] = p.Close
	}
	out := model.PriceSeries{Symbol: symbol, Points: make([]model.PricePoint, 0, len(byDate))}
	for d, c := range byDate {
		out.Points = append(out.Points, model.PricePoint{Date: d, Close: c})
	}
	sort.Slice(out.Points, func(i, j int) bool { return out.Points[i].Date.Before(out.Points[j].Date) })
	return out
}

const previewLen = 120

// preview clips body to at most previewLen bytes without splitting a rune.
func preview(body []byte) string {
	s := string(body)
	if len(s) <= previewLen {
		return s
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// NewSource builds the configured provider, optionally behind the
// development response cache.
func NewSource(cfg config.SourceConfig, logger *common.Logger) (Source, error) {
	var src Source
	switch strings.ToLower(cfg.Provider) {
	case "", "yahoo":
		opts := []YahooOption{WithYahooLogger(logger), WithYahooTimeout(cfg.Timeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithYahooBaseURL(cfg.BaseURL))
		}
		src = NewYahoo(opts...)
	case "eodhd":
		opts := []EODHDOption{WithEODHDLogger(logger), WithEODHDTimeout(cfg.Timeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithEODHDBaseURL(cfg.BaseURL))
		}
		src = NewEODHD(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unsupported source provider: %s", cfg.Provider)
	}
	if cfg.Cache {
		src = NewCachedSource(src, cfg.CacheTTL, logger)
	}
	return src, nil
}
