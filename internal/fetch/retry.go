package fetch

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"portfolio-backtest/internal/config"
)

// RetryPolicy bounds how often and how patiently a symbol is re-fetched.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultPolicy waits 4s, 8s, 10s, 10s between five attempts.
func DefaultPolicy() RetryPolicy {
	return PolicyFromConfig(config.Default().Fetch)
}

// PolicyFromConfig maps the fetch config section onto a policy.
func PolicyFromConfig(c config.FetchConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		Multiplier:  c.Multiplier,
	}
}

// Delay is the wait after the given failed attempt (1-based):
// BaseDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Retryable reports whether another attempt is allowed after attempt.
func (p RetryPolicy) Retryable(attempt int) bool {
	return attempt < p.MaxAttempts
}

// policyBackOff drives backoff.RetryNotify from a RetryPolicy. It stops
// when attempts run out, or when the next wait would end past the
// context deadline, since that retry could not finish in time.
type policyBackOff struct {
	policy RetryPolicy
	ctx    context.Context
	now    func() time.Time

	attempt    int
	overBudget bool
}

var _ backoff.BackOff = (*policyBackOff)(nil)

func newPolicyBackOff(ctx context.Context, p RetryPolicy, now func() time.Time) *policyBackOff {
	return &policyBackOff{policy: p, ctx: ctx, now: now}
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	if !b.policy.Retryable(b.attempt) {
		return backoff.Stop
	}
	d := b.policy.Delay(b.attempt)
	if deadline, ok := b.ctx.Deadline(); ok && !b.now().Add(d).Before(deadline) {
		b.overBudget = true
		return backoff.Stop
	}
	return d
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
	b.overBudget = false
}
