package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-backtest/internal/data"
	"portfolio-backtest/internal/model"
)

var (
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

func series(symbol string) model.PriceSeries {
	return model.PriceSeries{Symbol: symbol, Points: []model.PricePoint{
		{Date: start, Close: 10},
		{Date: start.AddDate(0, 0, 1), Close: 11},
	}}
}

// scriptedSource replays a per-symbol list of errors before succeeding.
type scriptedSource struct {
	mu       sync.Mutex
	failures map[string][]error
	empty    map[string]bool
	calls    map[string]int
	delay    time.Duration

	inFlight    int
	maxInFlight int
}

func newScripted() *scriptedSource {
	return &scriptedSource{failures: map[string][]error{}, empty: map[string]bool{}, calls: map[string]int{}}
}

func (s *scriptedSource) History(ctx context.Context, symbol string, _, _ time.Time) (model.PriceSeries, error) {
	s.mu.Lock()
	s.calls[symbol]++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	var err error
	if q := s.failures[symbol]; len(q) > 0 {
		err = q[0]
		s.failures[symbol] = q[1:]
	}
	empty := s.empty[symbol]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return model.PriceSeries{}, ctx.Err()
		}
	}
	if err != nil {
		return model.PriceSeries{}, err
	}
	if empty {
		return model.PriceSeries{Symbol: symbol}, nil
	}
	return series(symbol), nil
}

func (s *scriptedSource) callCount(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[symbol]
}

func transient(msg string) error {
	return &data.SourceError{Provider: "test", StatusCode: 503, Message: msg, Err: data.ErrTransient}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 4*time.Second, p.Delay(1))
	assert.Equal(t, 8*time.Second, p.Delay(2))
	assert.Equal(t, 10*time.Second, p.Delay(3))
	assert.Equal(t, 10*time.Second, p.Delay(4))
	// Pure: asking twice gives the same answer.
	assert.Equal(t, p.Delay(2), p.Delay(2))

	assert.True(t, p.Retryable(4))
	assert.False(t, p.Retryable(5))
}

func TestPolicyBackOffStopsAtMaxAttempts(t *testing.T) {
	b := newPolicyBackOff(context.Background(), fastPolicy(), time.Now)
	var waits []time.Duration
	for i := 0; i < 10; i++ {
		d := b.NextBackOff()
		if d < 0 {
			break
		}
		waits = append(waits, d)
	}
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}, waits)
	assert.False(t, b.overBudget)
}

func TestPolicyBackOffRefusesRetryPastDeadline(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithDeadline(context.Background(), now.Add(3*time.Second))
	defer cancel()

	b := newPolicyBackOff(ctx, DefaultPolicy(), func() time.Time { return now })
	assert.Less(t, b.NextBackOff(), time.Duration(0), "a 4s wait cannot fit in a 3s budget")
	assert.True(t, b.overBudget)
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	src := newScripted()
	src.failures["AAPL"] = []error{transient("flaky"), transient("flaky again")}

	f := New(src, WithPolicy(fastPolicy()))
	o := f.fetch(context.Background(), "AAPL", start, end)

	assert.Equal(t, StateSucceeded, o.State)
	assert.Equal(t, 3, o.Attempts)
	assert.Nil(t, o.Err)
	assert.Equal(t, 2, o.Series.Len())
}

func TestFetchExhaustsRetries(t *testing.T) {
	src := newScripted()
	src.failures["FLAKY"] = []error{transient("1"), transient("2"), transient("3"), transient("4"), transient("5"), transient("6")}

	f := New(src, WithPolicy(fastPolicy()))
	_, err := f.Fetch(context.Background(), "FLAKY", start, end)

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDataUnavailable)
	assert.Equal(t, model.KindDataUnavailable, model.KindOf(err))
	assert.Contains(t, err.Error(), "FLAKY")
	assert.Contains(t, err.Error(), "after 5 attempt(s)")
	assert.Equal(t, 5, src.callCount("FLAKY"))
}

func TestFetchNonRetryableOutcomes(t *testing.T) {
	notFound := &data.SourceError{Provider: "test", StatusCode: 404, Message: "nope", Err: data.ErrNotFound}
	denied := &data.SourceError{Provider: "test", StatusCode: 401, Message: "bad key", Err: data.ErrPermanent}

	tests := []struct {
		name  string
		setup func(*scriptedSource)
		kind  model.Kind
	}{
		{name: "unknown symbol", setup: func(s *scriptedSource) { s.failures["ZZZZ"] = []error{notFound} }, kind: model.KindUnknownSymbol},
		{name: "empty range", setup: func(s *scriptedSource) { s.empty["ZZZZ"] = true }, kind: model.KindNoDataInRange},
		{name: "bad credentials", setup: func(s *scriptedSource) { s.failures["ZZZZ"] = []error{denied} }, kind: model.KindDataUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newScripted()
			tt.setup(src)

			o := New(src, WithPolicy(fastPolicy())).fetch(context.Background(), "ZZZZ", start, end)
			assert.Equal(t, StateFailed, o.State)
			require.NotNil(t, o.Err)
			assert.Equal(t, tt.kind, o.Err.Kind)
			assert.Equal(t, "ZZZZ", o.Err.Symbol)
			assert.Equal(t, 1, o.Attempts, "no retry budget consumed")
		})
	}
}

func TestFetchStopsWhenBudgetCannotCoverRetry(t *testing.T) {
	src := newScripted()
	src.failures["SLOW"] = []error{transient("1"), transient("2")}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	f := New(src, WithPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second, Multiplier: 2}))
	began := time.Now()
	o := f.fetch(ctx, "SLOW", start, end)

	assert.Less(t, time.Since(began), 150*time.Millisecond, "must not sleep into a retry that cannot finish")
	require.NotNil(t, o.Err)
	assert.Equal(t, model.KindBacktestTimeout, o.Err.Kind)
	assert.Equal(t, 1, o.Attempts)
}

func TestFetchHonorsCancellation(t *testing.T) {
	src := newScripted()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(src).fetch(ctx, "AAPL", start, end)
	require.NotNil(t, o.Err)
	assert.Equal(t, model.KindCanceled, o.Err.Kind)
	assert.Equal(t, 0, o.Attempts)
	assert.Equal(t, 0, src.callCount("AAPL"))
}

func TestFetchRejectsBadArguments(t *testing.T) {
	src := newScripted()
	f := New(src)

	_, err := f.Fetch(context.Background(), "", start, end)
	assert.ErrorIs(t, err, model.ErrInvalidPortfolio)
	_, err = f.Fetch(context.Background(), "AAPL", end, start)
	assert.ErrorIs(t, err, model.ErrInvalidPortfolio)
	assert.Equal(t, 0, src.callCount("AAPL"))
}

func TestFetchAllCollectsEveryOutcome(t *testing.T) {
	src := newScripted()
	src.failures["ZZZZ"] = []error{&data.SourceError{Provider: "test", StatusCode: 404, Err: data.ErrNotFound}}
	src.failures["MSFT"] = []error{transient("blip")}

	f := New(src, WithPolicy(fastPolicy()))
	outcomes := f.FetchAll(context.Background(), []string{"AAPL", "ZZZZ", "MSFT"}, start, end)

	require.Len(t, outcomes, 3)
	assert.Equal(t, "AAPL", outcomes[0].Symbol)
	assert.Equal(t, StateSucceeded, outcomes[0].State)
	assert.Equal(t, StateFailed, outcomes[1].State)
	assert.Equal(t, StateSucceeded, outcomes[2].State)
	assert.Equal(t, 2, outcomes[2].Attempts)

	failures := Failures(outcomes)
	require.Len(t, failures, 1)
	assert.Equal(t, "ZZZZ", failures[0].Symbol)
}

func TestFetchAllRespectsConcurrencyCap(t *testing.T) {
	src := newScripted()
	src.delay = 20 * time.Millisecond

	symbols := make([]string, 12)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%02d", i)
	}

	f := New(src, WithConcurrency(3))
	outcomes := f.FetchAll(context.Background(), symbols, start, end)

	assert.Empty(t, Failures(outcomes))
	assert.LessOrEqual(t, src.maxInFlight, 3)
	assert.Greater(t, src.maxInFlight, 1, "fetches should overlap")
}

func TestWithConcurrencyClamps(t *testing.T) {
	assert.Equal(t, 10, New(nil, WithConcurrency(50)).concurrency)
	assert.Equal(t, 1, New(nil, WithConcurrency(0)).concurrency)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "retrying", StateRetrying.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.True(t, errors.Is(fmt.Errorf("x: %w", errEmptySeries), errEmptySeries))
}
