package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"forex-signal-engine/internal/market"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type countingSource struct {
	mu    sync.Mutex
	calls map[market.Timeframe]int
	inner Source
	fail  map[market.Timeframe]error
}

func (c *countingSource) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) (market.Series, error) {
	c.mu.Lock()
	c.calls[tf]++
	err := c.fail[tf]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.inner.Candles(ctx, symbol, tf, limit)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]market.Series
	sets int
}

func (m *mapCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[key]
	if !ok {
		return errors.New("miss")
	}
	*(dest.(*market.Series)) = s
	return nil
}

func (m *mapCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(market.Series)
	m.sets++
	return nil
}

func newCounting(inner Source) *countingSource {
	return &countingSource{calls: map[market.Timeframe]int{}, inner: inner, fail: map[market.Timeframe]error{}}
}

func TestGetSeriesCachesInMemory(t *testing.T) {
	mem := NewMemorySource()
	mem.Set("EURUSD", market.H4, market.TrendSeries(200, 1.1, 0.0005, market.H4, epoch))
	src := newCounting(mem)
	p := NewProvider(src, nil)

	for i := 0; i < 3; i++ {
		s, err := p.GetSeries(context.Background(), "eurusd", market.H4, 150)
		if err != nil {
			t.Fatalf("GetSeries: %v", err)
		}
		if len(s) != 150 {
			t.Fatalf("len = %d, want 150", len(s))
		}
	}
	if src.calls[market.H4] != 1 {
		t.Errorf("source calls = %d, want 1", src.calls[market.H4])
	}
}

func TestGetSeriesExpiry(t *testing.T) {
	mem := NewMemorySource()
	mem.Set("EURUSD", market.M15, market.TrendSeries(50, 1.1, 0.0001, market.M15, epoch))
	src := newCounting(mem)
	p := NewProvider(src, nil)

	now := epoch
	p.cache.now = func() time.Time { return now }

	if _, err := p.GetSeries(context.Background(), "EURUSD", market.M15, 50); err != nil {
		t.Fatal(err)
	}
	now = now.Add(CacheTTL(market.M15) + time.Second)
	if _, err := p.GetSeries(context.Background(), "EURUSD", market.M15, 50); err != nil {
		t.Fatal(err)
	}
	if src.calls[market.M15] != 2 {
		t.Errorf("source calls = %d, want 2 after expiry", src.calls[market.M15])
	}
	if removed := p.PruneCache(); removed != 0 {
		t.Errorf("pruned %d fresh entries", removed)
	}
}

func TestGetSeriesRemoteTier(t *testing.T) {
	mem := NewMemorySource()
	mem.Set("GBPUSD", market.H1, market.TrendSeries(120, 1.25, -0.0003, market.H1, epoch))
	remote := &mapCache{data: map[string]market.Series{}}

	first := NewProvider(newCounting(mem), remote)
	if _, err := first.GetSeries(context.Background(), "GBPUSD", market.H1, 100); err != nil {
		t.Fatal(err)
	}
	if remote.sets != 1 {
		t.Fatalf("remote sets = %d, want 1", remote.sets)
	}

	src := newCounting(mem)
	second := NewProvider(src, remote)
	s, err := second.GetSeries(context.Background(), "GBPUSD", market.H1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 100 {
		t.Errorf("len = %d, want 100", len(s))
	}
	if src.calls[market.H1] != 0 {
		t.Errorf("source was hit despite a remote cache entry")
	}
}

func TestGetSeriesErrors(t *testing.T) {
	p := NewProvider(NewMemorySource(), nil)

	if _, err := p.GetSeries(context.Background(), "EURUSD", market.Timeframe("H2"), 10); err == nil {
		t.Error("expected an error for an unknown timeframe")
	}
	if _, err := p.GetSeries(context.Background(), "EURUSD", market.H1, 10); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestGetMultiTimeframe(t *testing.T) {
	mem := NewMemorySource()
	for _, tf := range []market.Timeframe{market.H1, market.H4, market.D1} {
		mem.Set("XAUUSD", tf, market.TrendSeries(120, 2000, 0.5, tf, epoch))
	}
	p := NewProvider(mem, nil)

	mtf, err := p.GetMultiTimeframe(context.Background(), "XAUUSD", nil, 100)
	if err != nil {
		t.Fatalf("GetMultiTimeframe: %v", err)
	}
	if len(mtf) != 3 {
		t.Errorf("timeframes = %d, want 3 (missing ones skipped)", len(mtf))
	}
	if len(mtf[market.H4]) != 100 {
		t.Errorf("H4 len = %d", len(mtf[market.H4]))
	}

	if _, err := p.GetMultiTimeframe(context.Background(), "NOPE", nil, 100); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestGetMultiTimeframeAbortsOnSourceFailure(t *testing.T) {
	mem := NewDemoSource([]string{"EURUSD"}, 60, epoch)
	src := newCounting(mem)
	src.fail[market.D1] = errors.New("connection reset")
	p := NewProvider(src, nil)

	if _, err := p.GetMultiTimeframe(context.Background(), "EURUSD", nil, 60); err == nil {
		t.Fatal("expected the source failure to surface")
	}
}

func TestDemoSource(t *testing.T) {
	src := NewDemoSource([]string{"EURUSD", "usdjpy", "XAUUSD"}, 120, epoch)
	if got := len(src.Symbols()); got != 3 {
		t.Fatalf("symbols = %d, want 3", got)
	}
	for _, tf := range market.Timeframes {
		s, err := src.Candles(context.Background(), "USDJPY", tf, 0)
		if err != nil {
			t.Fatalf("%s: %v", tf, err)
		}
		if err := s.Validate(); err != nil {
			t.Errorf("%s: invalid series: %v", tf, err)
		}
		if s[0].Open < 100 {
			t.Errorf("%s: JPY pair priced at %.3f", tf, s[0].Open)
		}
	}
}
