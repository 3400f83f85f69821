package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"forex-signal-engine/internal/cache"
	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
)

// ErrNoData is returned by a source that has no candles for a symbol and timeframe
var ErrNoData = errors.New("no candle data")

// DefaultLimit is the number of candles requested per timeframe
const DefaultLimit = 300

// Source supplies candle history
type Source interface {
	Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) (market.Series, error)
}

// RemoteCache is a shared cache tier, typically Redis
type RemoteCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CandleCache provides in-process caching for candle data
type CandleCache struct {
	data map[string]*CacheEntry
	mu   sync.RWMutex
	now  func() time.Time
}

// CacheEntry represents a cached candle dataset
type CacheEntry struct {
	Candles   market.Series
	ExpiresAt time.Time
}

// NewCandleCache creates a new candle cache
func NewCandleCache() *CandleCache {
	return &CandleCache{
		data: make(map[string]*CacheEntry),
		now:  time.Now,
	}
}

// Get retrieves cached candles if not expired
func (c *CandleCache) Get(key string) market.Series {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return nil
	}
	return entry.Candles
}

// Set stores candles in cache with expiration
func (c *CandleCache) Set(key string, candles market.Series, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &CacheEntry{
		Candles:   candles,
		ExpiresAt: c.now().Add(ttl),
	}
}

// Prune removes expired entries from cache
func (c *CandleCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.data {
		if now.After(entry.ExpiresAt) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached datasets, expired or not
func (c *CandleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Provider fetches candles through a memory cache, an optional remote cache and the source
type Provider struct {
	source Source
	cache  *CandleCache
	remote RemoteCache
	limit  int
	logger *logging.Logger
}

// NewProvider creates a provider. remote may be nil.
func NewProvider(source Source, remote RemoteCache) *Provider {
	return &Provider{
		source: source,
		cache:  NewCandleCache(),
		remote: remote,
		limit:  DefaultLimit,
		logger: logging.WithComponent("marketdata"),
	}
}

// CacheTTL returns how long candles of a timeframe stay fresh
func CacheTTL(tf market.Timeframe) time.Duration {
	switch tf {
	case market.M15:
		return 5 * time.Minute
	case market.M30:
		return 10 * time.Minute
	case market.H1:
		return 30 * time.Minute
	case market.H4:
		return 2 * time.Hour
	case market.D1:
		return 12 * time.Hour
	case market.W1:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func cacheKey(symbol string, tf market.Timeframe, limit int) string {
	return cache.CandlesKey(symbol, string(tf), limit)
}

// GetSeries fetches candles with caching
func (p *Provider) GetSeries(ctx context.Context, symbol string, tf market.Timeframe, limit int) (market.Series, error) {
	symbol = strings.ToUpper(symbol)
	if !tf.Valid() {
		return nil, fmt.Errorf("unknown timeframe %q", tf)
	}
	if limit <= 0 {
		limit = p.limit
	}
	key := cacheKey(symbol, tf, limit)

	if cached := p.cache.Get(key); cached != nil {
		return cached, nil
	}

	ttl := CacheTTL(tf)
	if p.remote != nil {
		var remote market.Series
		if err := p.remote.GetJSON(ctx, key, &remote); err == nil && len(remote) > 0 {
			p.cache.Set(key, remote, ttl)
			return remote, nil
		}
	}

	candles, err := p.source.Candles(ctx, symbol, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s: %w", symbol, tf, err)
	}
	if err := candles.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s %s series: %w", symbol, tf, err)
	}

	p.cache.Set(key, candles, ttl)
	if p.remote != nil {
		if err := p.remote.SetJSON(ctx, key, candles, ttl); err != nil {
			p.logger.Debug("Remote candle cache unavailable", "key", key, "error", err)
		}
	}
	return candles, nil
}

// GetMultiTimeframe fetches every requested timeframe in parallel. Timeframes the source has no
// data for are left out so the analyzers treat them as unavailable; any other failure aborts.
func (p *Provider) GetMultiTimeframe(ctx context.Context, symbol string, timeframes []market.Timeframe, limit int) (market.MultiTimeframeSeries, error) {
	if len(timeframes) == 0 {
		timeframes = market.Timeframes
	}

	var mu sync.Mutex
	result := make(market.MultiTimeframeSeries, len(timeframes))

	g, gctx := errgroup.WithContext(ctx)
	for _, tf := range timeframes {
		tf := tf
		g.Go(func() error {
			candles, err := p.GetSeries(gctx, symbol, tf, limit)
			if errors.Is(err, ErrNoData) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			result[tf] = candles
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}
	return result, nil
}

// PruneCache drops expired in-process entries
func (p *Provider) PruneCache() int {
	return p.cache.Prune()
}
