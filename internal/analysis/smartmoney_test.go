package analysis

import (
	"errors"
	"reflect"
	"testing"

	"forex-signal-engine/internal/market"
)

func TestSmartMoneyInsufficientData(t *testing.T) {
	analyzer := NewSmartMoneyAnalyzer()

	_, err := analyzer.Analyze(impulseSeries(99))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Expected ErrInsufficientData, got %v", err)
	}

	if _, err := analyzer.Analyze(impulseSeries(100)); err != nil {
		t.Fatalf("Expected 100 candles to be enough, got %v", err)
	}
}

func TestStructureBreaks(t *testing.T) {
	// Higher highs and higher lows, then a close below the last swing low
	candles := zigzag(1.0000, []float64{1.0100, 1.0050, 1.0150, 1.0100, 1.0200, 1.0080}, []int{5, 5, 5, 5, 5, 6}, 0.0002)

	structure := NewTrendAnalyzer(SwingLookback).AnalyzeStructure(candles)

	if len(structure.SwingHighs) != 3 || len(structure.SwingLows) != 2 {
		t.Fatalf("Expected 3 swing highs and 2 swing lows, got %d and %d", len(structure.SwingHighs), len(structure.SwingLows))
	}
	if structure.Trend != market.Bullish {
		t.Errorf("Expected bullish structure, got %s", structure.Trend)
	}
	if structure.HigherHighs != 2 || structure.HigherLows != 1 {
		t.Errorf("Expected 2 higher highs and 1 higher low, got %d and %d", structure.HigherHighs, structure.HigherLows)
	}

	want := []struct {
		typ   StructureEventType
		bias  market.Bias
		swing int
	}{
		{EventBOS, market.Bullish, 5},
		{EventBOS, market.Bullish, 15},
		{EventCHoCH, market.Bearish, 20},
	}
	if len(structure.Events) != len(want) {
		t.Fatalf("Expected %d events, got %+v", len(want), structure.Events)
	}
	for i, w := range want {
		ev := structure.Events[i]
		if ev.Type != w.typ || ev.Bias != w.bias || ev.SwingIndex != w.swing {
			t.Errorf("Event %d: got %s %s @%d, want %s %s @%d", i, ev.Type, ev.Bias, ev.SwingIndex, w.typ, w.bias, w.swing)
		}
	}

	last, ok := structure.LastEvent()
	if !ok || last.Type != EventCHoCH {
		t.Errorf("Expected the last event to be a CHoCH, got %+v", last)
	}
	if len(structure.CHoCH) != 1 || len(structure.BOS) != 2 {
		t.Errorf("Expected 2 BOS and 1 CHoCH, got %d and %d", len(structure.BOS), len(structure.CHoCH))
	}
}

func TestEachSwingBreaksOnce(t *testing.T) {
	candles := impulseSeries(200)
	structure := NewTrendAnalyzer(SwingLookback).AnalyzeStructure(candles)

	type swingKey struct {
		bias  market.Bias
		index int
	}
	seen := make(map[swingKey]bool)
	for _, ev := range structure.Events {
		key := swingKey{ev.Bias, ev.SwingIndex}
		if seen[key] {
			t.Fatalf("Swing at %d fired more than once", ev.SwingIndex)
		}
		seen[key] = true
		if ev.CandleIndex <= ev.SwingIndex {
			t.Errorf("Break at %d precedes its swing at %d", ev.CandleIndex, ev.SwingIndex)
		}
	}
}

func TestDetermineTrend(t *testing.T) {
	ta := NewTrendAnalyzer(SwingLookback)
	sp := func(prices ...float64) []market.SwingPoint {
		out := make([]market.SwingPoint, len(prices))
		for i, p := range prices {
			out[i] = market.SwingPoint{Price: p, CandleIndex: i * 10}
		}
		return out
	}

	tests := []struct {
		name  string
		highs []market.SwingPoint
		lows  []market.SwingPoint
		want  market.Bias
	}{
		{"rising", sp(1.10, 1.12), sp(1.08, 1.09), market.Bullish},
		{"falling", sp(1.12, 1.10), sp(1.09, 1.08), market.Bearish},
		{"mixed", sp(1.10, 1.12), sp(1.09, 1.08), market.Neutral},
		{"too few", sp(1.10), sp(1.08, 1.09), market.Neutral},
	}
	for _, tt := range tests {
		if got := ta.DetermineTrend(tt.highs, tt.lows); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestOrderBlockDetection(t *testing.T) {
	candles := market.Series{
		k(1.1000, 1.1010, 1.0990, 1.1005),
		k(1.1005, 1.1012, 1.0995, 1.1000),
		k(1.1000, 1.1008, 1.0992, 1.0995), // last bearish candle before the move
		k(1.0995, 1.1040, 1.0994, 1.1038),
		k(1.1038, 1.1070, 1.1036, 1.1068),
		k(1.1068, 1.1090, 1.1066, 1.1088),
		k(1.1088, 1.1095, 1.1080, 1.1090),
	}

	detector := NewOrderBlockDetector()
	blocks := detector.Detect(candles)
	if len(blocks) != 1 {
		t.Fatalf("Expected 1 order block, got %+v", blocks)
	}
	ob := blocks[0]
	if ob.Bias != market.Bullish || ob.CandleIndex != 2 {
		t.Errorf("Expected bullish block at 2, got %s at %d", ob.Bias, ob.CandleIndex)
	}
	if ob.Mitigated {
		t.Error("Block should not be mitigated yet")
	}

	// A later wick back into the block mitigates it
	candles = append(candles, k(1.1090, 1.1092, 1.1000, 1.1010))
	blocks = detector.Detect(candles)
	if len(blocks) != 1 || !blocks[0].Mitigated || blocks[0].MitigatedIndex != 7 {
		t.Errorf("Expected block mitigated at 7, got %+v", blocks)
	}
}

// TestMitigationMonotonic checks that flags set on a prefix stay set on the full history
func TestMitigationMonotonic(t *testing.T) {
	full := impulseSeries(160)
	prefix := full[:120]

	obDetector := NewOrderBlockDetector()
	fvgDetector := NewFVGDetector(FVGMinGapMultiple)

	fullBlocks := make(map[int]OrderBlock)
	for _, ob := range obDetector.Detect(full) {
		fullBlocks[ob.CandleIndex] = ob
	}
	mitigated := 0
	for _, ob := range obDetector.Detect(prefix) {
		if !ob.Mitigated {
			continue
		}
		mitigated++
		later, ok := fullBlocks[ob.CandleIndex]
		if !ok || !later.Mitigated || later.MitigatedIndex != ob.MitigatedIndex {
			t.Errorf("Order block at %d lost its mitigation on the longer history", ob.CandleIndex)
		}
	}
	if mitigated == 0 {
		t.Fatal("Expected mitigated order blocks in the prefix")
	}

	fullGaps := make(map[int]FVG)
	for _, f := range fvgDetector.DetectFVGs(full) {
		fullGaps[f.CandleIndex] = f
	}
	for _, f := range fvgDetector.DetectFVGs(prefix) {
		if f.Filled && !fullGaps[f.CandleIndex].Filled {
			t.Errorf("FVG at %d lost its fill on the longer history", f.CandleIndex)
		}
	}
}

func TestPremiumDiscount(t *testing.T) {
	up := market.TrendSeries(60, 1.1000, 0.0010, market.H4, testStart)
	if pd := CalculatePremiumDiscount(up, PremiumDiscountLookback); pd.Zone != ZonePremium || pd.Bias != market.Bearish {
		t.Errorf("Expected premium/bearish at the top of an uptrend, got %s/%s", pd.Zone, pd.Bias)
	}

	down := market.TrendSeries(60, 1.1000, -0.0010, market.H4, testStart)
	if pd := CalculatePremiumDiscount(down, PremiumDiscountLookback); pd.Zone != ZoneDiscount || pd.Bias != market.Bullish {
		t.Errorf("Expected discount/bullish at the bottom of a downtrend, got %s/%s", pd.Zone, pd.Bias)
	}

	if pd := CalculatePremiumDiscount(nil, PremiumDiscountLookback); pd.Zone != ZoneEquilibrium {
		t.Errorf("Expected equilibrium for empty input, got %s", pd.Zone)
	}
}

func TestLiquidityZones(t *testing.T) {
	candles := zigzag(1.0000, []float64{1.0100, 1.0050, 1.0100, 1.0040, 1.0070}, []int{5, 5, 5, 5, 5}, 0.0002)
	highs := market.FindSwingHighs(candles, SwingLookback)
	lows := market.FindSwingLows(candles, SwingLookback)

	zones := FindLiquidityZones(candles, highs, lows)

	foundEqualHighs := false
	for i, z := range zones {
		if z.Kind == LiquidityEqualHighs {
			foundEqualHighs = true
			if z.Touches != 2 || z.Side != "buy_side" {
				t.Errorf("Unexpected equal highs zone %+v", z)
			}
		}
		if i > 0 && zones[i-1].Distance > z.Distance {
			t.Error("Zones should be sorted by distance")
		}
	}
	if !foundEqualHighs {
		t.Errorf("Expected an equal highs cluster, got %+v", zones)
	}
}

func TestSmartMoneyDeterministic(t *testing.T) {
	analyzer := NewSmartMoneyAnalyzer()
	candles := impulseSeries(150)

	a, err := analyzer.Analyze(candles)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := analyzer.Analyze(candles)
	if !reflect.DeepEqual(a, b) {
		t.Error("Repeated analysis of the same candles should be identical")
	}
	if a.Score < 0 || a.Score > 100 {
		t.Errorf("Score out of range: %.2f", a.Score)
	}
	lane := a.LaneScore()
	if lane.Lane != market.LaneSmartMoney || lane.Bias != a.Bias {
		t.Errorf("Unexpected lane %+v", lane)
	}
}
