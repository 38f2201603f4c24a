package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"portfolio-backtest/internal/model"
)

// Weights document columns.
const (
	ColTicker = "Ticker"
	ColName   = "Company Name"
	ColWeight = "Weight (%)"
)

var (
	hundred = decimal.NewFromInt(100)

	sample = model.Portfolio{Holdings: []model.Holding{
		{Symbol: "AAPL", Name: "Apple Inc.", Weight: 0.30},
		{Symbol: "GOOGL", Name: "Alphabet Inc.", Weight: 0.25},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Weight: 0.25},
		{Symbol: "AMZN", Name: "Amazon.com Inc.", Weight: 0.20},
	}}
)

// ExportWeights writes one row per holding with the weight as a
// two-decimal percentage. Unresolved names are left blank.
func ExportWeights(p model.Portfolio, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColTicker, ColName, ColWeight}); err != nil {
		return err
	}
	for _, h := range p.Holdings {
		pct := decimal.NewFromFloat(h.Weight).Mul(hundred).StringFixed(2)
		if err := cw.Write([]string{h.Symbol, h.Name, pct}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WeightsDocument returns the exported weights.
func WeightsDocument(p model.Portfolio) ([]byte, error) {
	var buf bytes.Buffer
	if err := ExportWeights(p, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SampleWeights is the template offered to new users.
func SampleWeights() model.Portfolio {
	out := model.Portfolio{Holdings: make([]model.Holding, len(sample.Holdings))}
	copy(out.Holdings, sample.Holdings)
	return out
}

// ParseWeights reads a weights document. Ticker and Weight (%) are
// required, Company Name is optional. Rows without a ticker are skipped
// and a repeated ticker keeps its last weight. The weight sum is not
// checked here; callers validate the portfolio before running it.
func ParseWeights(r io.Reader) (model.Portfolio, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return model.Portfolio{}, model.NewInvalidPortfolio("weights file is empty")
	}
	if err != nil {
		return model.Portfolio{}, model.NewInvalidPortfolio(fmt.Sprintf("reading weights: %v", err))
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	tickerCol, okT := cols[ColTicker]
	weightCol, okW := cols[ColWeight]
	if !okT || !okW {
		return model.Portfolio{}, model.NewInvalidPortfolio(
			fmt.Sprintf("weights file must contain columns: %s, %s", ColTicker, ColWeight))
	}
	nameCol, hasName := cols[ColName]

	var (
		p     model.Portfolio
		index = map[string]int{}
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.Portfolio{}, model.NewInvalidPortfolio(fmt.Sprintf("reading weights: %v", err))
		}
		ticker := model.NormalizeSymbol(field(rec, tickerCol))
		if ticker == "" || ticker == "NAN" {
			continue
		}

		raw := field(rec, weightCol)
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			return model.Portfolio{}, model.NewInvalidPortfolio(
				fmt.Sprintf("invalid weight value for %s on line %d: %q", ticker, line, raw))
		}
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return model.Portfolio{}, model.NewInvalidPortfolio(
				fmt.Sprintf("weight for %s must be between 0 and 100%%", ticker))
		}

		h := model.Holding{Symbol: ticker, Weight: pct.Div(hundred).InexactFloat64()}
		if hasName {
			if name := field(rec, nameCol); name != "" && name != NotAvailable && !strings.EqualFold(name, "nan") {
				h.Name = name
			}
		}
		if i, seen := index[ticker]; seen {
			p.Holdings[i] = h
			continue
		}
		index[ticker] = len(p.Holdings)
		p.Holdings = append(p.Holdings, h)
	}

	if len(p.Holdings) == 0 {
		return model.Portfolio{}, model.NewInvalidPortfolio("no valid ticker rows found in weights file")
	}
	return p, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
