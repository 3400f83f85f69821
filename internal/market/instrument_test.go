package market

import "testing"

func TestUniverseLookups(t *testing.T) {
	custom := Universe{
		CategoryIndices: {"jp225", "SPX500"},
		CategoryMetals:  {"XPTUSD"},
	}
	tests := []struct {
		universe Universe
		symbol   string
		category Category
		pip      float64
	}{
		{DefaultUniverse, "EURUSD", CategoryForex, 0.0001},
		{DefaultUniverse, "usdjpy", CategoryForex, 0.01},
		{DefaultUniverse, "XAUUSD", CategoryMetals, 0.1},
		{DefaultUniverse, "US500", CategoryIndices, 1},
		{DefaultUniverse, "JP225", CategoryForex, 0.0001},
		{custom, "JP225", CategoryIndices, 1},
		{custom, "XPTUSD", CategoryMetals, 0.0001},
		{custom, "XAGUSD", CategoryMetals, 0.01},
		{custom, "GBPUSD", CategoryForex, 0.0001},
	}
	for _, tt := range tests {
		if got := tt.universe.CategoryOf(tt.symbol); got != tt.category {
			t.Errorf("CategoryOf(%s) = %s, want %s", tt.symbol, got, tt.category)
		}
		if got := tt.universe.PipSize(tt.symbol); got != tt.pip {
			t.Errorf("PipSize(%s) = %v, want %v", tt.symbol, got, tt.pip)
		}
	}
	if CategoryOf("NAS100") != CategoryIndices || PipSize("GER40") != 1 {
		t.Error("package lookups should use the default universe")
	}
}
