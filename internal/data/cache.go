package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"portfolio-backtest/internal/common"
	"portfolio-backtest/internal/model"
)

// CacheEntry is one cached history response.
type CacheEntry struct {
	Series    model.PriceSeries
	ExpiresAt time.Time
}

// CachedSource memoizes History responses for a fixed TTL.
//
// WARNING: this is for LOCAL DEVELOPMENT ONLY. Check the data provider's
// terms before caching responses anywhere else. Only successful responses
// are stored; errors always go back upstream on the next call.
type CachedSource struct {
	next   Source
	ttl    time.Duration
	logger *common.Logger
	now    func() time.Time

	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewCachedSource wraps next. A non-positive ttl defaults to one hour.
func NewCachedSource(next Source, ttl time.Duration, logger *common.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &CachedSource{
		next:   next,
		ttl:    ttl,
		logger: logger.With("cache"),
		now:    time.Now,
		store:  make(map[string]*CacheEntry),
	}
}

// History implements Source.
func (c *CachedSource) History(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	key := GenerateCacheKey(symbol, start, end)
	if s, ok := c.Get(key); ok {
		c.logger.Debug().Str("symbol", symbol).Int("bars", s.Len()).Msg("cache hit")
		return s, nil
	}
	s, err := c.next.History(ctx, symbol, start, end)
	if err != nil {
		return s, err
	}
	c.Set(key, s)
	return s, nil
}

// CompanyName passes through when the wrapped source resolves names.
func (c *CachedSource) CompanyName(ctx context.Context, symbol string) (string, error) {
	if r, ok := c.next.(NameResolver); ok {
		return r.CompanyName(ctx, symbol)
	}
	return symbol, nil
}

// Get retrieves a cached response if available and not expired
func (c *CachedSource) Get(key string) (model.PriceSeries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.store[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return model.PriceSeries{}, false
	}
	return entry.Series, true
}

// Set stores a response and sweeps expired entries.
func (c *CachedSource) Set(key string, s model.PriceSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, entry := range c.store {
		if now.After(entry.ExpiresAt) {
			delete(c.store, k)
		}
	}
	c.store[key] = &CacheEntry{Series: s, ExpiresAt: now.Add(c.ttl)}
}

// Len returns the number of stored entries, expired or not.
func (c *CachedSource) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Clear removes all entries from the cache
func (c *CachedSource) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*CacheEntry)
}

// GenerateCacheKey creates a cache key from query parameters
func GenerateCacheKey(symbol string, start, end time.Time) string {
	keyStr := fmt.Sprintf("%s:%s:%s", symbol, model.FormatDate(start), model.FormatDate(end))
	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:])
}
