package risk

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"forex-signal-engine/internal/market"
)

func TestCalculatePositionSize(t *testing.T) {
	tests := []struct {
		name     string
		balance  float64
		symbol   string
		entry    float64
		stop     float64
		wantLots float64
		wantPips float64
	}{
		{"EURUSD 50 pips", 10000, "EURUSD", 1.1000, 1.0950, 0.20, 50},
		{"USDJPY 50 pips", 10000, "USDJPY", 150.00, 149.50, 0.20, 50},
		{"XAUUSD 100 pips", 10000, "XAUUSD", 2000, 1990, 0.10, 100},
		{"rounds down to lot step", 10000, "EURUSD", 1.1000, 1.0970, 0.33, 30},
		{"minimum lot", 1000, "EURUSD", 1.1000, 1.0900, 0.01, 100},
		{"minimum lot above budget", 100, "EURUSD", 1.1000, 1.0950, 0, 50},
		{"short stop above entry", 10000, "GBPUSD", 1.2500, 1.2525, 0.40, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AccountBalance = tt.balance
			s := NewManager(cfg).CalculatePositionSize(tt.symbol, tt.entry, tt.stop)
			if s.Lots != tt.wantLots {
				t.Errorf("Lots = %v, want %v", s.Lots, tt.wantLots)
			}
			if s.StopLossPips != tt.wantPips {
				t.Errorf("StopLossPips = %v, want %v", s.StopLossPips, tt.wantPips)
			}
			if s.RiskAmount != tt.balance/100 {
				t.Errorf("RiskAmount = %v, want %v", s.RiskAmount, tt.balance/100)
			}
		})
	}
}

func TestPositionSizeZeroDistance(t *testing.T) {
	s := NewManager(DefaultConfig()).CalculatePositionSize("EURUSD", 1.1, 1.1)
	if s.Lots != 0 || s.StopLossPips != 0 {
		t.Errorf("expected zero sizing, got %+v", s)
	}
}

func TestPipValueOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PipValues = map[string]float64{"US30": 1}
	m := NewManager(cfg)
	if m.PipValue("us30") != 1 {
		t.Errorf("expected override, got %v", m.PipValue("us30"))
	}
	if m.PipValue("EURUSD") != 10 {
		t.Errorf("expected default pip value, got %v", m.PipValue("EURUSD"))
	}
}

func TestLadderTakeProfits(t *testing.T) {
	buy := LadderTakeProfits(market.Buy, 1.1000, 1.0950, [3]float64{})
	if buy != [3]float64{1.11, 1.115, 1.125} {
		t.Errorf("buy ladder = %v", buy)
	}

	sell := LadderTakeProfits(market.Sell, 1.1000, 1.1050, [3]float64{})
	if sell != [3]float64{1.09, 1.085, 1.075} {
		t.Errorf("sell ladder = %v", sell)
	}

	partial := LadderTakeProfits(market.Buy, 1.1000, 1.0950, [3]float64{1.112, 0, 0})
	if partial[0] != 1.112 || partial[1] != 1.115 {
		t.Errorf("provided levels must be kept: %v", partial)
	}

	none := LadderTakeProfits(market.Buy, 1.1, 1.1, [3]float64{})
	if none != [3]float64{} {
		t.Errorf("zero risk cannot be laddered: %v", none)
	}
}

func TestRiskReward(t *testing.T) {
	if rr := RiskReward(1.1000, 1.0950, 1.1100); rr != 2 {
		t.Errorf("RiskReward = %v, want 2", rr)
	}
	if rr := RiskReward(1.1000, 1.1000, 1.1100); rr != 0 {
		t.Errorf("zero risk should give 0, got %v", rr)
	}
	if rr := RiskReward(1.1000, 1.0950, 0); rr != 0 {
		t.Errorf("unset target should give 0, got %v", rr)
	}
}

func TestAssess(t *testing.T) {
	a := NewManager(DefaultConfig()).Assess("EURUSD", market.Buy, 1.1000, 1.0950, [3]float64{})
	if a.Lots != 0.2 {
		t.Errorf("Lots = %v", a.Lots)
	}
	if a.RiskReward != [3]float64{2, 3, 5} {
		t.Errorf("RiskReward = %v", a.RiskReward)
	}
	if a.Drawdown.Blocked {
		t.Error("fresh manager should not be blocked")
	}
}

func req(id, symbol string) Request {
	return Request{ID: id, Symbol: symbol, Direction: market.Buy, Entry: 1.1, StopLoss: 1.095}
}

func TestAdmitDrawdownGate(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordPnL(-299)
	if d := m.Admit(req("t1", "EURUSD")); !d.Allowed {
		t.Fatalf("expected admission below the limit, got %s", d.Reason)
	}

	m.RecordPnL(-1)
	d := m.Admit(req("t2", "USDJPY"))
	if d.Allowed || d.Gate != GateDrawdown {
		t.Fatalf("expected drawdown block, got %+v", d)
	}

	m.ResetDaily()
	if d := m.Admit(req("t3", "USDJPY")); !d.Allowed {
		t.Errorf("expected admission after reset, got %s", d.Reason)
	}
}

func TestAdmitMaxOpenTrades(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenTrades = 2
	m := NewManager(cfg)

	for i, sym := range []string{"EURUSD", "USDJPY"} {
		if d := m.Admit(req(fmt.Sprintf("t%d", i), sym)); !d.Allowed {
			t.Fatalf("trade %d rejected: %s", i, d.Reason)
		}
	}
	d := m.Admit(req("t3", "AUDJPY"))
	if d.Allowed || d.Gate != GateMaxOpenTrades {
		t.Errorf("expected max open trades block, got %+v", d)
	}

	if err := m.CloseTrade("t0", 25); err != nil {
		t.Fatalf("CloseTrade: %v", err)
	}
	if d := m.Admit(req("t3", "AUDJPY")); !d.Allowed {
		t.Errorf("expected admission after a close, got %s", d.Reason)
	}
}

func TestAdmitCorrelationGate(t *testing.T) {
	m := NewManager(DefaultConfig())

	if d := m.Admit(req("t1", "EURUSD")); !d.Allowed {
		t.Fatal(d.Reason)
	}
	// 0.85 with EURUSD: two correlated trades is the limit
	if d := m.Admit(req("t2", "GBPUSD")); !d.Allowed {
		t.Fatal(d.Reason)
	}
	// Negative correlation does not count
	if d := m.Admit(req("t3", "USDCHF")); !d.Allowed {
		t.Fatalf("inverse correlation should be admitted: %s", d.Reason)
	}

	d := m.Admit(req("t4", "EURUSD"))
	if d.Allowed || d.Gate != GateCorrelation {
		t.Fatalf("expected correlation block, got %+v", d)
	}
	if len(m.OpenTrades()) != 3 {
		t.Errorf("rejected trade must not be registered, open = %d", len(m.OpenTrades()))
	}
}

func TestAdmitRiskBudgetGate(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		stop    float64
		allowed bool
		minRisk float64
	}{
		{"min lot within budget", 1000, 1.0900, true, 0},
		{"min lot exactly at budget", 500, 1.0950, true, 0},
		{"min lot above budget", 100, 1.0950, false, 5},
		{"wide stop on small account", 1000, 1.0500, false, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AccountBalance = tt.balance
			m := NewManager(cfg)
			d := m.Admit(Request{ID: "t1", Symbol: "EURUSD", Direction: market.Buy, Entry: 1.1000, StopLoss: tt.stop})
			if d.Allowed != tt.allowed {
				t.Fatalf("Allowed = %v (%s)", d.Allowed, d.Reason)
			}
			if d.Sizing.MinLotRisk != tt.minRisk {
				t.Errorf("MinLotRisk = %v, want %v", d.Sizing.MinLotRisk, tt.minRisk)
			}
			if tt.allowed {
				if d.Sizing.Lots < cfg.MinLot {
					t.Errorf("admitted below the minimum lot: %+v", d.Sizing)
				}
				return
			}
			if d.Gate != GateRiskBudget || d.Sizing.Lots != 0 || len(m.OpenTrades()) != 0 {
				t.Errorf("decision = %+v", d)
			}
		})
	}
}

func TestAdmitInvalidRequests(t *testing.T) {
	m := NewManager(DefaultConfig())

	tests := []Request{
		{Symbol: "EURUSD", Entry: 1.1, StopLoss: 1.09},
		{ID: "x", Entry: 1.1, StopLoss: 1.09},
		{ID: "x", Symbol: "EURUSD", Entry: 1.1, StopLoss: 1.1},
		{ID: "x", Symbol: "EURUSD", StopLoss: 1.09},
	}
	for i, r := range tests {
		if d := m.Admit(r); d.Allowed || d.Gate != GateInvalid {
			t.Errorf("case %d: expected invalid, got %+v", i, d)
		}
	}

	if d := m.Admit(req("dup", "EURUSD")); !d.Allowed {
		t.Fatal(d.Reason)
	}
	if d := m.Admit(req("dup", "USDJPY")); d.Allowed || d.Gate != GateInvalid {
		t.Errorf("expected duplicate rejection, got %+v", d)
	}
}

func TestConcurrentAdmissionsRespectLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOpenTrades = 100
	m := NewManager(cfg)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if d := m.Admit(req(fmt.Sprintf("c%d", i), "EURUSD")); d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if admitted != cfg.MaxCorrelatedTrades {
		t.Errorf("admitted %d correlated trades, want %d", admitted, cfg.MaxCorrelatedTrades)
	}
}

func TestCloseTrade(t *testing.T) {
	m := NewManager(DefaultConfig())

	err := m.CloseTrade("missing", 10)
	if !errors.Is(err, ErrTradeNotFound) {
		t.Fatalf("expected ErrTradeNotFound, got %v", err)
	}

	m.Admit(req("t1", "EURUSD"))
	if err := m.CloseTrade("t1", -100); err != nil {
		t.Fatal(err)
	}

	metrics := m.Metrics()
	if metrics.DailyPnL != -100 || metrics.AccountBalance != 9900 || metrics.OpenTrades != 0 {
		t.Errorf("unexpected metrics %+v", metrics)
	}
	if metrics.DailyDrawdownPct != 1 {
		t.Errorf("expected 1%% drawdown, got %v", metrics.DailyDrawdownPct)
	}
	if !metrics.CanTrade {
		t.Error("expected trading to remain allowed")
	}
}

func TestIsolatedInstances(t *testing.T) {
	a := NewManager(DefaultConfig())
	b := NewManager(DefaultConfig())

	a.RecordPnL(-500)
	if b.Metrics().DailyPnL != 0 {
		t.Error("managers must not share state")
	}
	if a.Metrics().CanTrade {
		t.Error("expected a to be blocked")
	}
}

func TestCorrelation(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"EURUSD", "GBPUSD", 0.85},
		{"GBPUSD", "EURUSD", 0.85},
		{"eurusd", "usdchf", -0.92},
		{"EURUSD", "EURUSD", 1},
		{"EURUSD", "US30", 0},
	}
	for _, tt := range tests {
		if got := Correlation(tt.a, tt.b); got != tt.want {
			t.Errorf("Correlation(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
