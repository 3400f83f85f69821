package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
)

// Gate names reported when a trade is rejected
const (
	GateInvalid       = "invalid"
	GateDrawdown      = "daily_drawdown"
	GateMaxOpenTrades = "max_open_trades"
	GateCorrelation   = "correlation"
	GateRiskBudget    = "risk_budget"
)

var (
	// ErrTradeNotFound is returned when closing an unknown trade
	ErrTradeNotFound = errors.New("trade not found")
	// ErrDuplicateTrade is returned when a trade id is admitted twice
	ErrDuplicateTrade = errors.New("trade already open")
)

// Config holds risk management configuration
type Config struct {
	AccountBalance       float64            `json:"account_balance" yaml:"account_balance" default:"10000" validate:"gt=0"`
	RiskPercent          float64            `json:"risk_percent" yaml:"risk_percent" default:"1" validate:"gt=0,lte=10"`
	MaxDailyDrawdown     float64            `json:"max_daily_drawdown" yaml:"max_daily_drawdown" default:"3" validate:"gt=0,lte=100"`
	MaxOpenTrades        int                `json:"max_open_trades" yaml:"max_open_trades" default:"5" validate:"gte=1"`
	MaxCorrelatedTrades  int                `json:"max_correlated_trades" yaml:"max_correlated_trades" default:"2" validate:"gte=1"`
	CorrelationThreshold float64            `json:"correlation_threshold" yaml:"correlation_threshold" default:"0.7" validate:"gt=0,lte=1"`
	MinRiskReward        float64            `json:"min_risk_reward" yaml:"min_risk_reward" default:"2" validate:"gt=0"`
	PipValuePerLot       float64            `json:"pip_value_per_lot" yaml:"pip_value_per_lot" default:"10" validate:"gt=0"`
	PipValues            map[string]float64 `json:"pip_values" yaml:"pip_values"`
	LotStep              float64            `json:"lot_step" yaml:"lot_step" default:"0.01" validate:"gt=0"`
	MinLot               float64            `json:"min_lot" yaml:"min_lot" default:"0.01" validate:"gt=0"`
}

// DefaultConfig returns the default risk configuration
func DefaultConfig() Config {
	return Config{
		AccountBalance:       10000,
		RiskPercent:          1,
		MaxDailyDrawdown:     3,
		MaxOpenTrades:        5,
		MaxCorrelatedTrades:  2,
		CorrelationThreshold: 0.7,
		MinRiskReward:        2,
		PipValuePerLot:       10,
		LotStep:              0.01,
		MinLot:               0.01,
	}
}

// TakeProfitMultiples are the R multiples used to fill omitted take-profit levels
var TakeProfitMultiples = [3]float64{2, 3, 5}

// Trade is an open position registered with the manager
type Trade struct {
	ID        string           `json:"id"`
	Symbol    string           `json:"symbol"`
	Direction market.Direction `json:"direction"`
	Entry     float64          `json:"entry"`
	StopLoss  float64          `json:"stopLoss"`
	Lots      float64          `json:"lots"`
	OpenedAt  time.Time        `json:"openedAt"`
}

// Sizing is the outcome of position sizing for one trade
type Sizing struct {
	Lots             float64 `json:"lots"`
	RiskAmount       float64 `json:"riskAmount"`
	StopLossDistance float64 `json:"stopLossDistance"`
	StopLossPips     float64 `json:"stopLossPips"`
	PipValue         float64 `json:"pipValue"`

	// MinLotRisk is set when even MinLot would lose more than RiskAmount at the stop; Lots is zero then
	MinLotRisk float64 `json:"minLotRisk,omitempty"`
}

// DrawdownState reports realised daily loss against the limit
type DrawdownState struct {
	DailyPnL      float64 `json:"dailyPnL"`
	LimitAmount   float64 `json:"limitAmount"`
	DrawdownPct   float64 `json:"drawdownPct"`
	Blocked       bool    `json:"blocked"`
	LastResetTime string  `json:"lastReset"`
}

// Assessment is the risk view of a proposed trade
type Assessment struct {
	Sizing
	TakeProfits [3]float64    `json:"takeProfits"`
	RiskReward  [3]float64    `json:"riskReward"`
	Drawdown    DrawdownState `json:"drawdown"`
}

// Request asks the manager to admit a trade
type Request struct {
	ID        string
	Symbol    string
	Direction market.Direction
	Entry     float64
	StopLoss  float64
}

// Decision is the outcome of Admit
type Decision struct {
	Allowed bool   `json:"allowed"`
	Gate    string `json:"gate,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Sizing  Sizing `json:"sizing"`
	Trade   *Trade `json:"trade,omitempty"`
}

// Metrics is a point-in-time view of the manager state
type Metrics struct {
	AccountBalance   float64 `json:"accountBalance"`
	DailyPnL         float64 `json:"dailyPnL"`
	DailyDrawdownPct float64 `json:"dailyDrawdownPct"`
	MaxDailyDrawdown float64 `json:"maxDailyDrawdown"`
	OpenTrades       int     `json:"openTrades"`
	MaxOpenTrades    int     `json:"maxOpenTrades"`
	RiskPercent      float64 `json:"riskPercent"`
	CanTrade         bool    `json:"canTrade"`
	LastReset        string  `json:"lastReset"`
}

// Manager owns the engine-lifetime risk state: balance, daily P&L and open trades.
// Every method is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	config    Config
	balance   float64
	dailyPnL  float64
	lastReset time.Time
	open      map[string]Trade
	now       func() time.Time
	logger    *logging.Logger
}

// NewManager creates a new risk manager
func NewManager(config Config) *Manager {
	return &Manager{
		config:    config,
		balance:   config.AccountBalance,
		open:      make(map[string]Trade),
		now:       time.Now,
		lastReset: time.Now().UTC(),
		logger:    logging.WithComponent("risk"),
	}
}

// Config returns the configuration the manager was built with
func (m *Manager) Config() Config {
	return m.config
}

// SetBalance updates the account balance used for sizing and the drawdown limit
func (m *Manager) SetBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = balance
}

// Balance returns the current account balance
func (m *Manager) Balance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

// PipValue returns the account-currency value of one pip per standard lot
func (m *Manager) PipValue(symbol string) float64 {
	if v, ok := m.config.PipValues[strings.ToUpper(symbol)]; ok && v > 0 {
		return v
	}
	return m.config.PipValuePerLot
}

// CalculatePositionSize sizes a trade so that hitting the stop loses RiskPercent of the balance.
// Lots are rounded down to the lot step. A stop too wide to trade MinLot within the budget
// yields zero lots and reports the risk of MinLot.
func (m *Manager) CalculatePositionSize(symbol string, entry, stop float64) Sizing {
	m.mu.Lock()
	balance := m.balance
	m.mu.Unlock()
	return m.size(symbol, entry, stop, balance)
}

func (m *Manager) size(symbol string, entry, stop, balance float64) Sizing {
	s := Sizing{
		RiskAmount: market.Round(balance*m.config.RiskPercent/100, 2),
		PipValue:   m.PipValue(symbol),
	}
	distance := math.Abs(entry - stop)
	if entry <= 0 || stop <= 0 || distance == 0 {
		return s
	}

	s.StopLossDistance = market.Round(distance, 5)
	s.StopLossPips = market.Round(distance/market.PipSize(symbol), 1)
	if s.StopLossPips <= 0 || s.PipValue <= 0 {
		return s
	}

	lots := s.RiskAmount / (s.StopLossPips * s.PipValue)
	step := m.config.LotStep
	lots = math.Floor(lots/step+1e-9) * step
	if lots < m.config.MinLot-1e-9 {
		s.MinLotRisk = market.Round(m.config.MinLot*s.StopLossPips*s.PipValue, 2)
		return s
	}
	s.Lots = market.Round(lots, 2)
	return s
}

// RiskReward returns the reward-to-risk ratio of one take-profit level
func RiskReward(entry, stop, target float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 || target == 0 {
		return 0
	}
	return market.Round(math.Abs(target-entry)/risk, 2)
}

// LadderTakeProfits fills omitted (zero) take-profit levels at 2R, 3R and 5R from entry
func LadderTakeProfits(direction market.Direction, entry, stop float64, tps [3]float64) [3]float64 {
	risk := math.Abs(entry - stop)
	sign := 1.0
	if direction == market.Sell {
		sign = -1
	}
	for i := range tps {
		if tps[i] == 0 && risk > 0 {
			tps[i] = market.Round(entry+sign*risk*TakeProfitMultiples[i], 5)
		}
	}
	return tps
}

// Assess sizes a proposed trade and reports reward ratios without changing any state
func (m *Manager) Assess(symbol string, direction market.Direction, entry, stop float64, tps [3]float64) Assessment {
	m.mu.Lock()
	balance := m.balance
	dd := m.drawdownLocked()
	m.mu.Unlock()

	a := Assessment{
		Sizing:      m.size(symbol, entry, stop, balance),
		TakeProfits: LadderTakeProfits(direction, entry, stop, tps),
		Drawdown:    dd,
	}
	for i, tp := range a.TakeProfits {
		a.RiskReward[i] = RiskReward(entry, stop, tp)
	}
	return a
}

// Admit runs the drawdown, open-trade and correlation gates and registers the trade
// in one critical section, so concurrent admissions never overshoot a limit.
func (m *Manager) Admit(req Request) Decision {
	symbol := strings.ToUpper(req.Symbol)
	if req.ID == "" || symbol == "" || req.Entry <= 0 || req.StopLoss <= 0 || req.Entry == req.StopLoss {
		return Decision{Gate: GateInvalid, Reason: "trade request is missing id, symbol, entry or stop"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sizing := m.size(symbol, req.Entry, req.StopLoss, m.balance)
	decision := Decision{Sizing: sizing}

	if _, exists := m.open[req.ID]; exists {
		decision.Gate = GateInvalid
		decision.Reason = ErrDuplicateTrade.Error()
		return decision
	}

	// 1. Daily drawdown
	if dd := m.drawdownLocked(); dd.Blocked {
		decision.Gate = GateDrawdown
		decision.Reason = fmt.Sprintf("daily drawdown limit reached (%.2f%% of %.2f%%)", dd.DrawdownPct, m.config.MaxDailyDrawdown)
		return decision
	}

	// 2. Open trade cap
	if len(m.open) >= m.config.MaxOpenTrades {
		decision.Gate = GateMaxOpenTrades
		decision.Reason = fmt.Sprintf("max open trades reached (%d/%d)", len(m.open), m.config.MaxOpenTrades)
		return decision
	}

	// 3. Correlation
	var correlated []string
	for _, t := range m.open {
		if Correlation(symbol, t.Symbol) > m.config.CorrelationThreshold {
			correlated = append(correlated, t.Symbol)
		}
	}
	if len(correlated)+1 > m.config.MaxCorrelatedTrades {
		sort.Strings(correlated)
		decision.Gate = GateCorrelation
		decision.Reason = fmt.Sprintf("%s would exceed %d correlated trades (open: %s)",
			symbol, m.config.MaxCorrelatedTrades, strings.Join(correlated, ", "))
		return decision
	}

	// 4. Per-trade risk budget
	if sizing.Lots <= 0 {
		decision.Gate = GateRiskBudget
		decision.Reason = fmt.Sprintf("minimum lot %.2f risks %.2f, above the %.2f per-trade budget",
			m.config.MinLot, sizing.MinLotRisk, sizing.RiskAmount)
		return decision
	}

	trade := Trade{
		ID:        req.ID,
		Symbol:    symbol,
		Direction: req.Direction,
		Entry:     req.Entry,
		StopLoss:  req.StopLoss,
		Lots:      sizing.Lots,
		OpenedAt:  m.now(),
	}
	m.open[req.ID] = trade
	decision.Allowed = true
	decision.Trade = &trade

	logging.RiskContext(symbol, m.config.RiskPercent, sizing.Lots).Info("Trade admitted",
		"trade_id", req.ID, "open_trades", len(m.open))
	return decision
}

// CloseTrade removes an open trade and books its realised P&L
func (m *Manager) CloseTrade(id string, pnl float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.open[id]
	if !ok {
		return fmt.Errorf("failed to close trade %s: %w", id, ErrTradeNotFound)
	}
	delete(m.open, id)
	m.dailyPnL += pnl
	m.balance += pnl

	m.logger.Info("Trade closed", "trade_id", id, "symbol", t.Symbol, "pnl", pnl, "daily_pnl", m.dailyPnL)
	return nil
}

// RecordPnL books realised P&L that is not tied to a registered trade
func (m *Manager) RecordPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL += pnl
	m.balance += pnl
}

// ResetDaily clears the daily P&L accumulator; open trades are kept
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.dailyPnL
	m.dailyPnL = 0
	m.lastReset = m.now().UTC()
	m.logger.Info("Daily risk reset", "previous_daily_pnl", prev)
}

// OpenTrades returns the open trades ordered by open time
func (m *Manager) OpenTrades() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	trades := make([]Trade, 0, len(m.open))
	for _, t := range m.open {
		trades = append(trades, t)
	}
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].OpenedAt.Equal(trades[j].OpenedAt) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].OpenedAt.Before(trades[j].OpenedAt)
	})
	return trades
}

// Metrics returns current risk metrics
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	dd := m.drawdownLocked()
	return Metrics{
		AccountBalance:   market.Round(m.balance, 2),
		DailyPnL:         market.Round(m.dailyPnL, 2),
		DailyDrawdownPct: dd.DrawdownPct,
		MaxDailyDrawdown: m.config.MaxDailyDrawdown,
		OpenTrades:       len(m.open),
		MaxOpenTrades:    m.config.MaxOpenTrades,
		RiskPercent:      m.config.RiskPercent,
		CanTrade:         !dd.Blocked && len(m.open) < m.config.MaxOpenTrades,
		LastReset:        m.lastReset.Format(time.RFC3339),
	}
}

// drawdownLocked must be called with mu held
func (m *Manager) drawdownLocked() DrawdownState {
	// Measured against the balance at the start of the day
	dayStart := m.balance - m.dailyPnL
	limit := dayStart * m.config.MaxDailyDrawdown / 100
	state := DrawdownState{
		DailyPnL:      market.Round(m.dailyPnL, 2),
		LimitAmount:   market.Round(limit, 2),
		LastResetTime: m.lastReset.Format(time.RFC3339),
	}
	if dayStart > 0 && m.dailyPnL < 0 {
		state.DrawdownPct = market.Round(-m.dailyPnL/dayStart*100, 2)
	}
	state.Blocked = m.dailyPnL < 0 && -m.dailyPnL >= limit
	return state
}
