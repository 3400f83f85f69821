package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"forex-signal-engine/internal/logging"
)

// FeedConfig holds sentiment feed configuration
type FeedConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	FearGreedEnabled bool          `json:"fear_greed_enabled" yaml:"fear_greed_enabled"`
	FearGreedURL     string        `json:"fear_greed_url" yaml:"fear_greed_url" default:"https://api.alternative.me/fng/?limit=1"`
	UpdateInterval   time.Duration `json:"update_interval" yaml:"update_interval" default:"15m"`
	MaxNewsPerSymbol int           `json:"max_news_per_symbol" yaml:"max_news_per_symbol" default:"50"`
}

// DefaultFeedConfig returns default configuration
func DefaultFeedConfig() *FeedConfig {
	return &FeedConfig{
		Enabled:          true,
		FearGreedEnabled: true,
		FearGreedURL:     "https://api.alternative.me/fng/?limit=1",
		UpdateInterval:   15 * time.Minute,
		MaxNewsPerSymbol: 50,
	}
}

// fearGreedResponse from alternative.me API
type fearGreedResponse struct {
	Name string `json:"name"`
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

// Feed collects externally supplied sentiment inputs and hands out per-symbol snapshots
type Feed struct {
	config     *FeedConfig
	httpClient *http.Client
	logger     *logging.Logger

	mu          sync.RWMutex
	fearGreed   *int
	positioning map[string]RetailPositioning
	news        map[string][]NewsItem
}

// NewFeed creates a new sentiment feed
func NewFeed(config *FeedConfig) *Feed {
	if config == nil {
		config = DefaultFeedConfig()
	}
	return &Feed{
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:      logging.WithComponent("sentiment"),
		positioning: make(map[string]RetailPositioning),
		news:        make(map[string][]NewsItem),
	}
}

// Start refreshes the fear/greed index until ctx is cancelled
func (f *Feed) Start(ctx context.Context) {
	if !f.config.Enabled || !f.config.FearGreedEnabled {
		return
	}

	go func() {
		f.refresh(ctx)

		ticker := time.NewTicker(f.config.UpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				f.refresh(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (f *Feed) refresh(ctx context.Context) {
	value, label, err := f.FetchFearGreedIndex(ctx)
	if err != nil {
		f.logger.Warn("Fear/greed refresh failed", "error", err)
		return
	}
	f.SetFearGreed(value)
	f.logger.Debug("Fear/greed updated", "value", value, "label", label)
}

// FetchFearGreedIndex fetches the Fear & Greed Index
func (f *Feed) FetchFearGreedIndex(ctx context.Context) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.config.FearGreedURL, nil)
	if err != nil {
		return 50, "Neutral", fmt.Errorf("failed to build fear/greed request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 50, "Neutral", fmt.Errorf("failed to fetch fear/greed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 50, "Neutral", fmt.Errorf("fear/greed returned status %d", resp.StatusCode)
	}

	var fgResp fearGreedResponse
	if err := json.NewDecoder(resp.Body).Decode(&fgResp); err != nil {
		return 50, "Neutral", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(fgResp.Data) == 0 {
		return 50, "Neutral", fmt.Errorf("no data in response")
	}

	value, err := strconv.Atoi(fgResp.Data[0].Value)
	if err != nil {
		return 50, "Neutral", fmt.Errorf("invalid fear/greed value %q: %w", fgResp.Data[0].Value, err)
	}
	return value, fgResp.Data[0].ValueClassification, nil
}

// SetFearGreed stores the latest fear/greed reading
func (f *Feed) SetFearGreed(v int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fearGreed = &v
}

// SetPositioning stores the retail long share for a symbol
func (f *Feed) SetPositioning(symbol string, longPercent float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positioning[strings.ToUpper(symbol)] = RetailPositioning{LongPercent: longPercent}
}

// AddNews appends scored news for a symbol, keeping the newest items
func (f *Feed) AddNews(symbol string, items ...NewsItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToUpper(symbol)
	all := append(f.news[key], items...)
	if max := f.config.MaxNewsPerSymbol; max > 0 && len(all) > max {
		all = all[len(all)-max:]
	}
	f.news[key] = all
}

// GetRecentNews returns up to limit of the newest news items for a symbol
func (f *Feed) GetRecentNews(symbol string, limit int) []NewsItem {
	f.mu.RLock()
	defer f.mu.RUnlock()

	items := f.news[strings.ToUpper(symbol)]
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]NewsItem, len(items))
	copy(out, items)
	return out
}

// Snapshot returns an immutable copy of the inputs known for a symbol, or nil when none are
func (f *Feed) Snapshot(symbol string, now time.Time) *Data {
	f.mu.RLock()
	defer f.mu.RUnlock()

	key := strings.ToUpper(symbol)
	pos, hasPos := f.positioning[key]
	news := f.news[key]
	if !hasPos && len(news) == 0 && f.fearGreed == nil {
		return nil
	}

	d := &Data{AsOf: now}
	if hasPos {
		d.Retail = &pos
	}
	if len(news) > 0 {
		d.News = make([]NewsItem, len(news))
		copy(d.News, news)
	}
	if f.fearGreed != nil {
		fg := *f.fearGreed
		d.FearGreed = &fg
	}
	return d
}
