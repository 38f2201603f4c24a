// Package fetch loads price histories for many symbols concurrently,
// retrying transient upstream failures per symbol.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/config"
	"portfolio-backtest/internal/data"
	"portfolio-backtest/internal/model"
)

// State is where a symbol's fetch currently stands.
type State int

const (
	StatePending State = iota
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is the settled result for one symbol.
type Outcome struct {
	Symbol   string
	State    State
	Attempts int
	Series   model.PriceSeries
	Err      *model.SymbolError
}

var errEmptySeries = errors.New("source returned no observations")

// Fetcher retrieves histories from a Source. It holds no data between
// calls; the rate limiter only spaces requests out.
type Fetcher struct {
	source      data.Source
	policy      RetryPolicy
	concurrency int
	limiter     *rate.Limiter
	logger      *common.Logger
	now         func() time.Time
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithPolicy sets the retry policy
func WithPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) {
		f.policy = p
	}
}

// WithConcurrency sets the fan-out width, clamped to [1, config.MaxConcurrency].
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		f.concurrency = clampConcurrency(n)
	}
}

// WithRateLimit spaces outbound requests. Non-positive disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger.With("fetch")
		}
	}
}

// FromConfig applies the fetch and source sections.
func FromConfig(c *config.Config) []Option {
	return []Option{
		WithPolicy(PolicyFromConfig(c.Fetch)),
		WithConcurrency(c.Fetch.Concurrency),
		WithRateLimit(c.Source.RateLimit),
	}
}

// New creates a Fetcher over src.
func New(src data.Source, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:      src,
		policy:      DefaultPolicy(),
		concurrency: 8,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		logger:      common.NewSilentLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func clampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > config.MaxConcurrency {
		return config.MaxConcurrency
	}
	return n
}

// Fetch loads one symbol, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	o := f.fetch(ctx, symbol, start, end)
	if o.Err != nil {
		return model.PriceSeries{}, o.Err
	}
	return o.Series, nil
}

// FetchAll loads every symbol and waits until each one has settled.
// Outcomes are returned in the order of symbols.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string, start, end time.Time) []Outcome {
	outcomes := make([]Outcome, len(symbols))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			outcomes[i] = f.fetch(ctx, sym, start, end)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Failures collects the errors of failed outcomes, in order.
func Failures(outcomes []Outcome) []*model.SymbolError {
	var out []*model.SymbolError
	for _, o := range outcomes {
		if o.State == StateFailed && o.Err != nil {
			out = append(out, o.Err)
		}
	}
	return out
}

func (f *Fetcher) fetch(ctx context.Context, symbol string, start, end time.Time) Outcome {
	out := Outcome{Symbol: symbol, State: StatePending}
	fail := func(kind model.Kind, cause error) Outcome {
		out.State = StateFailed
		out.Err = model.NewSymbolError(kind, symbol, cause)
		return out
	}

	if symbol == "" {
		return fail(model.KindInvalidPortfolio, errors.New("symbol is required"))
	}
	if start.After(end) {
		return fail(model.KindInvalidPortfolio, fmt.Errorf("start %s is after end %s", model.FormatDate(start), model.FormatDate(end)))
	}

	var series model.PriceSeries
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if err := f.limiter.Wait(ctx); err != nil {
			// Wait refuses early when the deadline is too close.
			if ctx.Err() == nil {
				err = context.DeadlineExceeded
			}
			return backoff.Permanent(err)
		}
		out.Attempts++
		s, err := f.source.History(ctx, symbol, start, end)
		switch {
		case err != nil && (data.IsNotFound(err) || data.IsPermanent(err) || ctx.Err() != nil):
			return backoff.Permanent(err)
		case err != nil:
			return err
		case s.Empty():
			return backoff.Permanent(errEmptySeries)
		}
		series = s
		return nil
	}

	pb := newPolicyBackOff(ctx, f.policy, f.now)
	notify := func(err error, wait time.Duration) {
		out.State = StateRetrying
		f.logger.Warn().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", out.Attempts).
			Dur("wait", wait).
			Msg("transient fetch failure, retrying")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(pb, ctx), notify)
	if err == nil {
		out.State = StateSucceeded
		out.Series = series
		f.logger.Debug().Str("symbol", symbol).Int("attempts", out.Attempts).Int("bars", series.Len()).Msg("fetched")
		return out
	}

	switch {
	case pb.overBudget, errors.Is(err, context.DeadlineExceeded):
		return fail(model.KindBacktestTimeout, err)
	case errors.Is(err, context.Canceled):
		return fail(model.KindCanceled, err)
	case data.IsNotFound(err):
		return fail(model.KindUnknownSymbol, err)
	case errors.Is(err, errEmptySeries):
		return fail(model.KindNoDataInRange, fmt.Errorf("no observations between %s and %s", model.FormatDate(start), model.FormatDate(end)))
	}
	f.logger.Error().Err(err).Str("symbol", symbol).Int("attempts", out.Attempts).Msg("fetch failed")
	return fail(model.KindDataUnavailable, fmt.Errorf("after %d attempt(s): %w", out.Attempts, err))
}
