package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-backtest/internal/config"
	"portfolio-backtest/internal/model"
)

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) History(_ context.Context, symbol string, start, _ time.Time) (model.PriceSeries, error) {
	s.calls++
	if s.err != nil {
		return model.PriceSeries{}, s.err
	}
	return model.PriceSeries{Symbol: symbol, Points: []model.PricePoint{{Date: start, Close: 1}}}, nil
}

func TestCachedSourceHitsAndExpiry(t *testing.T) {
	next := &countingSource{}
	c := NewCachedSource(next, time.Minute, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := c.History(ctx, "AAPL", day("2024-01-01"), day("2024-02-01"))
	require.NoError(t, err)
	_, err = c.History(ctx, "AAPL", day("2024-01-01"), day("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	_, err = c.History(ctx, "AAPL", day("2024-01-02"), day("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls, "different range is a different key")

	now = now.Add(2 * time.Minute)
	_, err = c.History(ctx, "AAPL", day("2024-01-01"), day("2024-02-01"))
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, 1, c.Len(), "expired entries are swept on write")
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	next := &countingSource{err: errors.New("boom")}
	c := NewCachedSource(next, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := c.History(context.Background(), "AAPL", day("2024-01-01"), day("2024-02-01"))
		assert.Error(t, err)
	}
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 0, c.Len())
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(config.SourceConfig{Provider: "yahoo"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Yahoo{}, src)

	src, err = NewSource(config.SourceConfig{Provider: "eodhd", APIKey: "k", Cache: true}, nil)
	require.NoError(t, err)
	cached, ok := src.(*CachedSource)
	require.True(t, ok)
	assert.IsType(t, &EODHD{}, cached.next)

	_, err = NewSource(config.SourceConfig{Provider: "bloomberg"}, nil)
	assert.Error(t, err)
}
