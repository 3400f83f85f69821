package patterns

import (
	"testing"

	"forex-signal-engine/internal/market"
)

func TestBullishGartley(t *testing.T) {
	// X=1.0000 A=1.0100 B=0.618 retrace C=0.618 of AB D=0.786 retrace of XA
	mids := legs(1.0050, []float64{1.0000, 1.0100, 1.00382, 1.00764, 1.00214, 1.0050}, []int{6, 6, 6, 6, 6, 6})
	result := NewPatternDetector().Detect(pathSeries(mids, 0.00005))

	harmonics := result.Filter(CategoryHarmonic)
	if len(harmonics) != 1 {
		t.Fatalf("Expected exactly one harmonic pattern, got %+v", harmonics)
	}
	p := harmonics[0]
	if p.Name != Gartley {
		t.Errorf("Expected Gartley, got %s", p.Name)
	}
	if p.Direction != market.Bullish {
		t.Errorf("Expected bullish Gartley, got %s", p.Direction)
	}
	if p.CandleIndex != 30 {
		t.Errorf("Expected D at candle 30, got %d", p.CandleIndex)
	}
	if p.Target == nil || *p.Target <= 1.00214 {
		t.Errorf("Expected target above D, got %v", p.Target)
	}
}

func TestHarmonicRatioMismatch(t *testing.T) {
	// AB retraces only 30% of XA
	mids := legs(1.0050, []float64{1.0000, 1.0100, 1.0070, 1.0090, 1.0030, 1.0050}, []int{6, 6, 6, 6, 6, 6})
	result := NewPatternDetector().Detect(pathSeries(mids, 0.00005))

	if got := result.Filter(CategoryHarmonic); len(got) != 0 {
		t.Errorf("Expected no harmonic pattern, got %+v", got)
	}
}

func TestRatioRange(t *testing.T) {
	tests := []struct {
		r    ratioRange
		v    float64
		want bool
	}{
		{exactly(0.618), 0.618, true},
		{exactly(0.618), 0.66, true},
		{exactly(0.618), 0.70, false},
		{ratioRange{0.382, 0.886}, 0.35, true},
		{ratioRange{0.382, 0.886}, 0.95, false},
	}
	for _, tt := range tests {
		if got := tt.r.contains(tt.v); got != tt.want {
			t.Errorf("%+v contains %.3f: got %v, want %v", tt.r, tt.v, got, tt.want)
		}
	}
}
