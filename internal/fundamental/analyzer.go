package fundamental

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"forex-signal-engine/internal/market"
)

// Event impact levels
const (
	ImpactHigh   = "HIGH"
	ImpactMedium = "MEDIUM"
	ImpactLow    = "LOW"
)

// Scoring constants
const (
	COTBullishPct     = 60.0 // non-commercial long share above which positioning is bullish
	COTBearishPct     = 40.0
	COTWeight         = 0.5 // points per percent beyond 50
	COTMomentumPoints = 5.0
	StrengthWeight    = 2.0 // points per unit of strength divergence
	StrengthMinDiff   = 1.0
	RateWeight        = 6.0 // points per percentage point of rate differential
	RateMinDiff       = 0.25
	MaxDeviation      = 45.0
	NeutralDeviation  = 5.0
	EventWindow       = 24 * time.Hour
	EventDamping      = 0.5
)

// COT is the latest commitment-of-traders positioning for a currency or instrument
type COT struct {
	NonCommercialLong  float64 `json:"nonCommercialLong"`
	NonCommercialShort float64 `json:"nonCommercialShort"`
	PrevNetPosition    float64 `json:"prevNetPosition"`
}

// NetPosition returns longs minus shorts
func (c COT) NetPosition() float64 {
	return c.NonCommercialLong - c.NonCommercialShort
}

// LongPercent returns the long share of non-commercial positions
func (c COT) LongPercent() float64 {
	total := c.NonCommercialLong + c.NonCommercialShort
	if total <= 0 {
		return 50
	}
	return c.NonCommercialLong / total * 100
}

// Event is a scheduled economic calendar release
type Event struct {
	Currency string    `json:"currency"`
	Title    string    `json:"title"`
	Impact   string    `json:"impact"`
	Time     time.Time `json:"time"`
}

// Data is the externally supplied fundamental input for one symbol
type Data struct {
	COT              *COT               `json:"cot,omitempty"`
	Events           []Event            `json:"events,omitempty"`
	CurrencyStrength map[string]float64 `json:"currencyStrength,omitempty"`
	InterestRates    map[string]float64 `json:"interestRates,omitempty"`
}

// Analyzer scores positioning, calendar risk, currency strength and rate differentials
type Analyzer struct{}

// NewAnalyzer creates a new fundamental analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze produces the fundamental lane. Nil data yields the neutral lane.
func (a *Analyzer) Analyze(symbol string, data *Data, now time.Time) market.LaneScore {
	if data == nil {
		return market.NeutralLane(market.LaneFundamental)
	}

	base, quote, isPair := market.Currencies(symbol)
	details := make(map[string]interface{})
	var warnings []string
	deviation := 0.0

	// 1. Positioning
	if data.COT != nil {
		longPct := data.COT.LongPercent()
		details["cotLongPct"] = market.Round(longPct, 2)
		if longPct >= COTBullishPct || longPct <= COTBearishPct {
			deviation += (longPct - 50) * COTWeight
		}
		if data.COT.PrevNetPosition != 0 {
			switch net := data.COT.NetPosition(); {
			case net > data.COT.PrevNetPosition:
				deviation += COTMomentumPoints
				details["cotMomentum"] = "rising"
			case net < data.COT.PrevNetPosition:
				deviation -= COTMomentumPoints
				details["cotMomentum"] = "falling"
			}
		}
	}

	// 2. Currency strength divergence
	if isPair && data.CurrencyStrength != nil {
		bs, okBase := data.CurrencyStrength[base]
		qs, okQuote := data.CurrencyStrength[quote]
		if okBase && okQuote {
			diff := bs - qs
			details["strengthDiff"] = market.Round(diff, 2)
			if math.Abs(diff) >= StrengthMinDiff {
				deviation += diff * StrengthWeight
			}
		}
	}

	// 3. Interest rate differential
	if isPair && data.InterestRates != nil {
		br, okBase := data.InterestRates[base]
		qr, okQuote := data.InterestRates[quote]
		if okBase && okQuote {
			diff := br - qr
			details["rateDiff"] = market.Round(diff, 2)
			if math.Abs(diff) >= RateMinDiff {
				deviation += diff * RateWeight
			}
		}
	}

	deviation = market.Clamp(deviation, -MaxDeviation, MaxDeviation)

	// 4. Calendar de-rating
	if ev, ok := nextHighImpact(data.Events, symbol, base, quote, now); ok {
		deviation *= EventDamping
		warnings = append(warnings, fmt.Sprintf("high-impact %s event %q in %s",
			ev.Currency, ev.Title, ev.Time.Sub(now).Round(time.Minute)))
		details["upcomingEvent"] = ev.Title
	}

	bias := market.Neutral
	switch {
	case deviation >= NeutralDeviation:
		bias = market.Bullish
	case deviation <= -NeutralDeviation:
		bias = market.Bearish
	}
	score := market.Round(market.Clamp(50+math.Abs(deviation), 0, 100), 2)
	details["deviation"] = market.Round(deviation, 2)

	return market.LaneScore{
		Lane:       market.LaneFundamental,
		Score:      score,
		Bias:       bias,
		Confidence: market.ConfidenceFromScore(score),
		Details:    details,
		Warnings:   warnings,
	}
}

// nextHighImpact returns the earliest high-impact event for the symbol's currencies within the window
func nextHighImpact(events []Event, symbol, base, quote string, now time.Time) (Event, bool) {
	var best Event
	found := false
	for _, ev := range events {
		if !strings.EqualFold(ev.Impact, ImpactHigh) {
			continue
		}
		cur := strings.ToUpper(ev.Currency)
		if cur != base && cur != quote && cur != strings.ToUpper(symbol) {
			continue
		}
		if ev.Time.Before(now) || ev.Time.Sub(now) > EventWindow {
			continue
		}
		if !found || ev.Time.Before(best.Time) {
			best = ev
			found = true
		}
	}
	return best, found
}

// Store holds the latest fundamental data per symbol, shared between the API and the engine
type Store struct {
	mu   sync.RWMutex
	data map[string]*Data
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{data: make(map[string]*Data)}
}

// Set replaces the data for a symbol
func (s *Store) Set(symbol string, d *Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[strings.ToUpper(symbol)] = d
}

// Get returns the data for a symbol, or nil
func (s *Store) Get(symbol string) *Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[strings.ToUpper(symbol)]
}
