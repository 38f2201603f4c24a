package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-backtest/internal/model"
)

func TestExportWeights(t *testing.T) {
	doc, err := WeightsDocument(model.Portfolio{Holdings: []model.Holding{
		{Symbol: "AAPL", Name: "Apple Inc.", Weight: 0.3},
		{Symbol: "BRK-B", Name: "Berkshire Hathaway, Inc.", Weight: 0.123456},
		{Symbol: "XYZ", Weight: 0.576544},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Ticker,Company Name,Weight (%)\n"+
		"AAPL,Apple Inc.,30.00\n"+
		"BRK-B,\"Berkshire Hathaway, Inc.\",12.35\n"+
		"XYZ,,57.65\n", string(doc))
}

func TestWeightsRoundTrip(t *testing.T) {
	in := model.Portfolio{Holdings: []model.Holding{
		{Symbol: "AAPL", Name: "Apple Inc.", Weight: 0.333},
		{Symbol: "MSFT", Weight: 0.3337},
		{Symbol: "GOOGL", Name: "Alphabet Inc.", Weight: 0.3333},
	}}
	doc, err := WeightsDocument(in)
	require.NoError(t, err)

	out, err := ParseWeights(strings.NewReader(string(doc)))
	require.NoError(t, err)
	require.Len(t, out.Holdings, len(in.Holdings))
	for i, h := range in.Holdings {
		assert.Equal(t, h.Symbol, out.Holdings[i].Symbol)
		assert.Equal(t, h.Name, out.Holdings[i].Name)
		assert.InDelta(t, h.Weight, out.Holdings[i].Weight, 0.00005)
	}
}

func TestSampleWeights(t *testing.T) {
	s := SampleWeights()
	require.NoError(t, s.Validate())
	assert.Equal(t, []string{"AAPL", "GOOGL", "MSFT", "AMZN"}, s.Symbols())

	s.Holdings[0].Weight = 1
	assert.Equal(t, 0.30, SampleWeights().Holdings[0].Weight, "sample is copied")

	doc, err := WeightsDocument(SampleWeights())
	require.NoError(t, err)
	assert.Contains(t, string(doc), "MSFT,Microsoft Corporation,25.00\n")
}

func TestParseWeights(t *testing.T) {
	p, err := ParseWeights(strings.NewReader(
		"\ufeffTicker, Company Name ,Weight (%)\n" +
			" aapl ,N/A,40\n" +
			",,\n" +
			"nan,,10\n" +
			"msft,Microsoft Corporation, 60.5\n" +
			"AAPL,Apple Inc.,39.5\n"))
	require.NoError(t, err)
	assert.Equal(t, []model.Holding{
		{Symbol: "AAPL", Name: "Apple Inc.", Weight: 0.395},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Weight: 0.605},
	}, p.Holdings)

	noName, err := ParseWeights(strings.NewReader("Ticker,Weight (%)\nSPY,100\n"))
	require.NoError(t, err)
	assert.Equal(t, []model.Holding{{Symbol: "SPY", Weight: 1}}, noName.Holdings)
}

func TestParseWeightsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty"},
		{"missing weight column", "Ticker,Company Name\nAAPL,Apple\n", "must contain columns"},
		{"bad number", "Ticker,Weight (%)\nAAPL,thirty\n", "invalid weight value for AAPL"},
		{"negative", "Ticker,Weight (%)\nAAPL,-5\n", "between 0 and 100%"},
		{"over 100", "Ticker,Weight (%)\nAAPL,100.01\n", "between 0 and 100%"},
		{"no rows", "Ticker,Weight (%)\n,\n", "no valid ticker rows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWeights(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidPortfolio)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
