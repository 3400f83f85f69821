package analysis

import (
	"testing"
	"time"

	"forex-signal-engine/internal/market"
)

func TestVolumeShortSeries(t *testing.T) {
	result := NewVolumeAnalyzer(20).Analyze(market.TrendSeries(10, 1.1, 0.001, market.H1, testStart))

	if result.Available {
		t.Error("Expected volume analysis to be unavailable under 20 bars")
	}
	lane := result.LaneScore()
	if lane.Score != 50 || lane.Bias != market.Neutral || lane.Lane != market.LaneVolume {
		t.Errorf("Expected neutral volume lane, got %+v", lane)
	}
}

func TestVolumeConfirmsUptrend(t *testing.T) {
	candles := market.TrendSeries(150, 1.1000, 0.0010, market.H4, testStart)

	result := NewVolumeAnalyzer(20).Analyze(candles)

	if !result.Available {
		t.Fatal("Expected volume analysis to be available")
	}
	if result.PriceDirection != market.Bullish {
		t.Errorf("Expected bullish price direction, got %s", result.PriceDirection)
	}
	if !result.Confirmed {
		t.Errorf("Expected volume confirmation, checks %v", result.Checks)
	}
	if result.Bias != market.Bullish {
		t.Errorf("Expected bullish volume bias, got %s", result.Bias)
	}
	if result.Score < 80 || result.Score > 100 {
		t.Errorf("Expected a strong volume score, got %.2f", result.Score)
	}
	if result.MFI.Value != 100 {
		t.Errorf("Expected MFI 100 with only positive flow, got %.2f", result.MFI.Value)
	}
}

func TestVolumeProfile(t *testing.T) {
	candles := impulseSeries(120)
	profile := NewVolumeAnalyzer(20).BuildProfile(candles)

	if len(profile.Bins) != VolumeProfileBins {
		t.Fatalf("Expected %d bins, got %d", VolumeProfileBins, len(profile.Bins))
	}
	if profile.ValueAreaLow > profile.POC || profile.POC > profile.ValueAreaHigh {
		t.Errorf("POC %.5f should sit inside the value area %.5f-%.5f", profile.POC, profile.ValueAreaLow, profile.ValueAreaHigh)
	}
	if profile.ValueAreaRatio < ValueAreaPercent {
		t.Errorf("Value area should cover at least 70%% of volume, got %.4f", profile.ValueAreaRatio)
	}

	total := 0.0
	for _, c := range candles {
		total += c.Vol()
	}
	binned := 0.0
	for _, b := range profile.Bins {
		binned += b.Volume
	}
	if binned != total {
		t.Errorf("Profile volume %.0f should equal total volume %.0f", binned, total)
	}
}

func TestVolumeProfileFlatRange(t *testing.T) {
	candles := make(market.Series, 25)
	for i := range candles {
		candles[i] = market.Candle{Time: testStart.Add(time.Duration(i) * time.Hour), Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1, Volume: 100}
	}
	profile := NewVolumeAnalyzer(20).BuildProfile(candles)
	if profile.POC != 1.1 || profile.ValueAreaRatio != 1 {
		t.Errorf("Expected a single level profile, got %+v", profile)
	}
}

func TestOBVDivergence(t *testing.T) {
	// First half rises on volume, second half sells off on volume and makes a new high on almost none
	closes := []float64{1.00, 1.01, 1.02, 1.03, 1.04, 1.05, 1.06, 1.07, 1.08, 1.09,
		1.085, 1.08, 1.075, 1.07, 1.065, 1.06, 1.055, 1.05, 1.10, 1.11}
	candles := market.SeriesFromCloses(closes, 0.001, market.H1, testStart)
	candles[18].Volume = 10
	candles[19].Volume = 10

	if got := DetectOBVDivergence(candles, 20); got != market.Bearish {
		t.Errorf("Expected bearish OBV divergence, got %s", got)
	}

	// Without the divergence the same window is neutral
	trend := market.TrendSeries(20, 1.0, 0.01, market.H1, testStart)
	if got := DetectOBVDivergence(trend, 20); got != market.Neutral {
		t.Errorf("Expected no divergence in a clean trend, got %s", got)
	}
}

func TestAverageVolume(t *testing.T) {
	candles := market.Series{
		{Volume: 100}, {Volume: 200}, {Volume: 0}, {Volume: 300},
	}
	analyzer := NewVolumeAnalyzer(3)
	// Zero volume counts as 1
	want := (200.0 + 1 + 300) / 3
	if got := analyzer.CalculateAverageVolume(candles); got != want {
		t.Errorf("Expected %.4f, got %.4f", want, got)
	}
}
