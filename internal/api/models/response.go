package models

import (
	"time"

	"portfolio-backtest/internal/model"
	"portfolio-backtest/internal/report"
	"portfolio-backtest/internal/stats"
	"portfolio-backtest/internal/store"
)

// BacktestResponse represents the response from a backtest run
type BacktestResponse struct {
	ID             string               `json:"id,omitempty"` // recent-portfolio entry
	Benchmark      string               `json:"benchmark"`
	Window         DateWindow           `json:"window"`
	Holdings       []model.Holding      `json:"holdings"`
	InvestedWeight float64              `json:"invested_weight"`
	Series         []SeriesPoint        `json:"series"`
	Instruments    map[string][]float64 `json:"instruments,omitempty"`
	KeyMetrics     []report.KeyMetric   `json:"key_metrics"`
	Statistics     []report.StatRow     `json:"statistics"`
	Warnings       []model.Warning      `json:"warnings,omitempty"`
}

// DateWindow is the effective backtest range.
type DateWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"trading_days"`
}

// SeriesPoint is one row of the performance time series.
type SeriesPoint struct {
	Date      string  `json:"date"`
	Portfolio float64 `json:"portfolio"`
	Benchmark float64 `json:"benchmark"`
}

// NewBacktestResponse flattens a report for JSON clients.
func NewBacktestResponse(r *report.Report, id string, includeInstruments bool) BacktestResponse {
	resp := BacktestResponse{
		ID:        id,
		Benchmark: r.Benchmark,
		Window: DateWindow{
			Start: model.FormatDate(r.Start),
			End:   model.FormatDate(r.End),
			Days:  r.Portfolio.Len(),
		},
		Holdings:       r.Holdings,
		InvestedWeight: r.InvestedWeight,
		Series:         make([]SeriesPoint, r.Portfolio.Len()),
		KeyMetrics:     r.KeyMetrics(),
		Statistics:     r.Detailed(),
		Warnings:       r.Warnings,
	}
	for i, d := range r.Portfolio.Dates {
		resp.Series[i] = SeriesPoint{
			Date:      model.FormatDate(d),
			Portfolio: r.Portfolio.Values[i],
			Benchmark: r.BenchmarkValues.Values[i],
		}
	}
	if includeInstruments && len(r.Instruments) > 0 {
		resp.Instruments = make(map[string][]float64, len(r.Instruments))
		for sym, v := range r.Instruments {
			resp.Instruments[sym] = v.Values
		}
	}
	return resp
}

// ImportResponse is the parsed content of an uploaded weights file.
type ImportResponse struct {
	Holdings    []model.Holding `json:"holdings"`
	TotalWeight float64         `json:"total_weight"`
	Warning     string          `json:"warning,omitempty"`
}

// PortfolioSummary is one recent-portfolio entry.
type PortfolioSummary struct {
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	SavedAt   time.Time       `json:"saved_at"`
	Benchmark string          `json:"benchmark,omitempty"`
	StartDate string          `json:"start_date,omitempty"`
	Holdings  []model.Holding `json:"holdings"`
}

// NewPortfolioSummary converts a store entry.
func NewPortfolioSummary(e store.Entry) PortfolioSummary {
	return PortfolioSummary{
		ID:        e.ID,
		Label:     e.Label(),
		SavedAt:   e.SavedAt,
		Benchmark: e.Benchmark,
		StartDate: e.StartDate,
		Holdings:  e.Portfolio.Holdings,
	}
}

// MetricsResponse lists the statistics vocabulary.
type MetricsResponse struct {
	Metrics []stats.Definition `json:"metrics"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
