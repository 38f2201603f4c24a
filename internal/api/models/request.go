package models

import (
	"strings"
	"time"

	"portfolio-backtest/internal/model"
)

// HoldingInput is one portfolio line as sent by clients.
type HoldingInput struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"` // fraction in [0,1]
	Name   string  `json:"name,omitempty"`
}

// BacktestRequest represents the request body for running a backtest
type BacktestRequest struct {
	Holdings  []HoldingInput  `json:"holdings" binding:"required"`
	Benchmark string          `json:"benchmark,omitempty"`  // default from server config
	StartDate string          `json:"start_date,omitempty"` // YYYY-MM-DD; empty = latest common start
	Options   BacktestOptions `json:"options,omitempty"`
}

// BacktestOptions contains optional backtest parameters
type BacktestOptions struct {
	IncludeInstruments bool `json:"include_instruments,omitempty"` // default: false
}

// PortfolioRequest carries holdings for the weights export.
type PortfolioRequest struct {
	Holdings []HoldingInput `json:"holdings" binding:"required"`
}

// Portfolio converts the request holdings.
func Portfolio(in []HoldingInput) model.Portfolio {
	p := model.Portfolio{Holdings: make([]model.Holding, 0, len(in))}
	for _, h := range in {
		p.Holdings = append(p.Holdings, model.Holding{Symbol: h.Symbol, Weight: h.Weight, Name: h.Name})
	}
	return p
}

// ParseStartDate reads the optional start date. Empty means automatic.
func (r BacktestRequest) ParseStartDate() (time.Time, error) {
	s := strings.TrimSpace(r.StartDate)
	if s == "" {
		return time.Time{}, nil
	}
	return model.ParseDate(s)
}
