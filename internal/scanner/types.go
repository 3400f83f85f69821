package scanner

import (
	"errors"
	"time"

	"forex-signal-engine/internal/confluence"
	"forex-signal-engine/internal/market"
)

// ErrScanInProgress is returned when a scan is requested while another is still running
var ErrScanInProgress = errors.New("scan already in progress")

// Heat map color classes
const (
	ColorStrongBullish = "strong-bullish"
	ColorBullish       = "bullish"
	ColorNeutral       = "neutral"
	ColorBearish       = "bearish"
	ColorStrongBearish = "strong-bearish"
)

// Opportunity is one ranked symbol from a scan
type Opportunity struct {
	Symbol       string           `json:"symbol"`
	Category     market.Category  `json:"category"`
	Score        float64          `json:"score"`
	Grade        confluence.Grade `json:"grade"`
	Direction    market.Bias      `json:"direction"`
	Confidence   float64          `json:"confidence"`
	CurrentPrice float64          `json:"currentPrice"`
	Change24h    float64          `json:"change24h"`
	Trend        string           `json:"trend"`
	Reason       string           `json:"reason"`
	ScannedAt    time.Time        `json:"scannedAt"`
}

// maxReasons caps the confluence reasons summarised per opportunity
const maxReasons = 2

// ErrorEntry records a symbol that could not be scored
type ErrorEntry struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// HeatmapCell is the per-symbol tile of the heat map
type HeatmapCell struct {
	Score      float64     `json:"score"`
	Direction  market.Bias `json:"direction"`
	Change24h  float64     `json:"change24h"`
	ColorClass string      `json:"colorClass"`
}

// Heatmap groups cells by category then symbol
type Heatmap map[market.Category]map[string]HeatmapCell

// ScanResult aggregates one pass over the universe
type ScanResult struct {
	ScanID         string        `json:"scanId"`
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime"`
	Duration       time.Duration `json:"duration"`
	SymbolsScanned int           `json:"symbolsScanned"`
	Opportunities  []Opportunity `json:"opportunities"`
	Watchlist      []Opportunity `json:"watchlist"`
	Errors         []ErrorEntry  `json:"errors"`
	Heatmap        Heatmap       `json:"heatmap"`
}

// Config holds scanner configuration
type Config struct {
	Enabled          bool          `yaml:"enabled" json:"enabled" default:"true"`
	Interval         time.Duration `yaml:"interval" json:"interval" default:"5m" validate:"min=1000000000"`
	BatchSize        int           `yaml:"batch_size" json:"batchSize" default:"5" validate:"min=1,max=50"`
	OpportunityScore float64       `yaml:"opportunity_score" json:"opportunityScore" default:"70" validate:"gtfield=WatchlistScore"`
	WatchlistScore   float64       `yaml:"watchlist_score" json:"watchlistScore" default:"60" validate:"min=0"`
	CandleLimit      int           `yaml:"candle_limit" json:"candleLimit" default:"300" validate:"min=100"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout" default:"2m"`
	DailyResetSpec   string        `yaml:"daily_reset_spec" json:"dailyResetSpec" default:"0 0 * * *"`
}

// DefaultConfig returns the scanner defaults
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		Interval:         5 * time.Minute,
		BatchSize:        5,
		OpportunityScore: 70,
		WatchlistScore:   60,
		CandleLimit:      300,
		Timeout:          2 * time.Minute,
		DailyResetSpec:   "0 0 * * *",
	}
}

// ColorClass maps a score and direction onto a heat map class
func ColorClass(score float64, direction market.Bias, strongScore float64) string {
	switch direction {
	case market.Bullish:
		if score >= strongScore {
			return ColorStrongBullish
		}
		return ColorBullish
	case market.Bearish:
		if score >= strongScore {
			return ColorStrongBearish
		}
		return ColorBearish
	default:
		return ColorNeutral
	}
}
