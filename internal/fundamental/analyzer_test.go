package fundamental

import (
	"strings"
	"testing"
	"time"

	"forex-signal-engine/internal/market"
)

var now = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func TestAnalyzeNilData(t *testing.T) {
	lane := NewAnalyzer().Analyze("EURUSD", nil, now)
	if lane.Score != 50 || lane.Bias != market.Neutral {
		t.Errorf("expected neutral 50 lane, got %.2f %s", lane.Score, lane.Bias)
	}
	if lane.Lane != market.LaneFundamental {
		t.Errorf("expected fundamental lane, got %s", lane.Lane)
	}
}

func TestAnalyzeBullishFundamentals(t *testing.T) {
	data := &Data{
		COT:              &COT{NonCommercialLong: 70000, NonCommercialShort: 30000, PrevNetPosition: 30000},
		CurrencyStrength: map[string]float64{"EUR": 6, "USD": 3},
		InterestRates:    map[string]float64{"EUR": 4.5, "USD": 4.0},
	}
	lane := NewAnalyzer().Analyze("EURUSD", data, now)

	// COT: (70-50)*0.5 = 10, momentum +5, strength 3*2 = 6, rates 0.5*6 = 3
	if lane.Bias != market.Bullish {
		t.Fatalf("expected bullish bias, got %s", lane.Bias)
	}
	if lane.Score != 74 {
		t.Errorf("expected score 74, got %.2f", lane.Score)
	}
	if len(lane.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", lane.Warnings)
	}
}

func TestAnalyzeBearishRateDifferential(t *testing.T) {
	data := &Data{
		InterestRates: map[string]float64{"USD": 5.25, "JPY": 0.1},
	}
	lane := NewAnalyzer().Analyze("JPYUSD", data, now)
	if lane.Bias != market.Bearish {
		t.Errorf("expected bearish bias for a negative carry, got %s", lane.Bias)
	}
	// (0.1 - 5.25) * 6 = -30.9
	if lane.Score != 80.9 {
		t.Errorf("expected score 80.9, got %.2f", lane.Score)
	}
}

func TestHighImpactEventHalvesDeviation(t *testing.T) {
	data := &Data{
		COT: &COT{NonCommercialLong: 80, NonCommercialShort: 20},
	}
	a := NewAnalyzer()

	before := a.Analyze("GBPUSD", data, now)

	data.Events = []Event{
		{Currency: "USD", Title: "Non-Farm Payrolls", Impact: ImpactHigh, Time: now.Add(6 * time.Hour)},
	}
	after := a.Analyze("GBPUSD", data, now)

	if before.Score != 65 {
		t.Fatalf("expected score 65 without event, got %.2f", before.Score)
	}
	if after.Score != 57.5 {
		t.Errorf("expected score 57.5 with event, got %.2f", after.Score)
	}
	if len(after.Warnings) != 1 || !strings.Contains(after.Warnings[0], "Non-Farm Payrolls") {
		t.Errorf("expected event warning, got %v", after.Warnings)
	}
}

func TestEventFilter(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"high impact quote currency", Event{Currency: "USD", Impact: ImpactHigh, Time: now.Add(time.Hour)}, true},
		{"lowercase impact", Event{Currency: "eur", Impact: "high", Time: now.Add(time.Hour)}, true},
		{"medium impact", Event{Currency: "USD", Impact: ImpactMedium, Time: now.Add(time.Hour)}, false},
		{"unrelated currency", Event{Currency: "JPY", Impact: ImpactHigh, Time: now.Add(time.Hour)}, false},
		{"already released", Event{Currency: "USD", Impact: ImpactHigh, Time: now.Add(-time.Hour)}, false},
		{"beyond window", Event{Currency: "USD", Impact: ImpactHigh, Time: now.Add(25 * time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := nextHighImpact([]Event{tt.event}, "EURUSD", "EUR", "USD", now)
			if got != tt.want {
				t.Errorf("nextHighImpact() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNeutralPositioningIgnored(t *testing.T) {
	data := &Data{COT: &COT{NonCommercialLong: 55, NonCommercialShort: 45}}
	lane := NewAnalyzer().Analyze("EURUSD", data, now)
	if lane.Bias != market.Neutral || lane.Score != 50 {
		t.Errorf("expected neutral lane, got %.2f %s", lane.Score, lane.Bias)
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	if s.Get("EURUSD") != nil {
		t.Fatal("expected empty store")
	}
	d := &Data{InterestRates: map[string]float64{"EUR": 4}}
	s.Set("eurusd", d)
	if s.Get("EURUSD") != d {
		t.Error("expected symbol lookup to be case insensitive")
	}
}
