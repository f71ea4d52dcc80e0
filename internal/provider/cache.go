package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

type cacheEntry struct {
	series    *types.PriceSeries
	fetchedAt time.Time
}

// Cached wraps a Provider with a TTL cache and a concurrency bound.
// A fresh cache hit skips the upstream entirely; when the upstream fails
// and an expired entry exists, the entry is served marked stale. Stale
// data with a flag beats no data.
type Cached struct {
	logger   *zap.Logger
	upstream Provider
	ttl      time.Duration
	sem      chan struct{}

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCached wraps upstream with caching and fetch bounding.
func NewCached(logger *zap.Logger, upstream Provider, cfg config.ProviderConfig) *Cached {
	max := cfg.MaxConcurrentFetches
	if max < 1 {
		max = 1
	}
	return &Cached{
		logger:   logger.Named("provider"),
		upstream: upstream,
		ttl:      cfg.CacheTTL,
		sem:      make(chan struct{}, max),
		entries:  make(map[string]cacheEntry),
	}
}

// FetchSeries serves from cache when fresh, otherwise fetches upstream
// under the concurrency bound. Upstream failure falls back to the last
// cached series with Stale set; with no cached copy the error propagates.
func (c *Cached) FetchSeries(ctx context.Context, symbol string, tf types.Timeframe, bars int) (*types.PriceSeries, error) {
	key := fmt.Sprintf("%s|%s|%d", symbol, tf, bars)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.series, nil
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	series, err := c.upstream.FetchSeries(ctx, symbol, tf, bars)
	if err != nil {
		if ok {
			c.logger.Warn("upstream fetch failed, serving stale cache",
				zap.String("symbol", symbol),
				zap.String("timeframe", string(tf)),
				zap.Duration("age", time.Since(entry.fetchedAt)),
				zap.Error(err),
			)
			stale := *entry.series
			stale.Stale = true
			return &stale, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{series: series, fetchedAt: time.Now()}
	c.mu.Unlock()

	return series, nil
}

// LatestQuote delegates upstream under the fetch bound. Quotes are never
// cached; an error is preferable to a stale price presented as live.
func (c *Cached) LatestQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
	return c.upstream.LatestQuote(ctx, symbol)
}
