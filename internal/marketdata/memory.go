package marketdata

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"forex-signal-engine/internal/market"
)

// MemorySource serves candles held in memory
type MemorySource struct {
	mu   sync.RWMutex
	data map[string]market.MultiTimeframeSeries
}

// NewMemorySource creates an empty in-memory source
func NewMemorySource() *MemorySource {
	return &MemorySource{data: make(map[string]market.MultiTimeframeSeries)}
}

// Set replaces the series of one symbol and timeframe
func (m *MemorySource) Set(symbol string, tf market.Timeframe, s market.Series) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	if m.data[symbol] == nil {
		m.data[symbol] = make(market.MultiTimeframeSeries)
	}
	m.data[symbol][tf] = s
}

// Candles returns the last limit candles
func (m *MemorySource) Candles(_ context.Context, symbol string, tf market.Timeframe, limit int) (market.Series, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.data[strings.ToUpper(symbol)][tf]
	if len(s) == 0 {
		return nil, ErrNoData
	}
	if limit > 0 {
		s = s.Tail(limit)
	}
	out := make(market.Series, len(s))
	copy(out, s)
	return out, nil
}

// Symbols returns the symbols with at least one series
func (m *MemorySource) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for s := range m.data {
		out = append(out, s)
	}
	return out
}

// basePrice gives a plausible price level per instrument class
func basePrice(symbol string) float64 {
	switch {
	case strings.HasPrefix(symbol, "XAU"):
		return 2000
	case strings.HasPrefix(symbol, "XAG"):
		return 25
	case strings.Contains(symbol, "JPY"):
		return 150
	case market.CategoryOf(symbol) == market.CategoryIndices:
		return 18000
	default:
		return 1.1
	}
}

// NewDemoSource fills a memory source with deterministic trending series for every symbol
// and timeframe, ending at `end`. Each symbol gets its own drift so scans produce a spread of scores.
func NewDemoSource(symbols []string, bars int, end time.Time) *MemorySource {
	src := NewMemorySource()
	for _, symbol := range symbols {
		symbol = strings.ToUpper(symbol)
		h := fnv.New32a()
		_, _ = h.Write([]byte(symbol))
		seed := h.Sum32()

		base := basePrice(symbol)
		drift := (float64(seed%9) - 4) / 4000
		if drift == 0 {
			drift = 1.0 / 8000
		}
		for _, tf := range market.Timeframes {
			from := end.Add(-time.Duration(bars) * tf.Duration())
			step := base * drift * tf.Weight()
			src.Set(symbol, tf, market.TrendSeries(bars, base, step, tf, from))
		}
	}
	return src
}
