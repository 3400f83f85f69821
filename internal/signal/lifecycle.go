package signal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
)

// ErrSignalNotFound is returned for unknown signal ids
var ErrSignalNotFound = errors.New("signal not found")

var statusRank = map[SignalStatus]int{
	SignalActive: 0,
	SignalTP1Hit: 1,
	SignalTP2Hit: 2,
	SignalTP3Hit: 3,
}

// Transition returns the status a signal moves to when price trades at the given level.
// Longs stop out at or below the stop and hit targets at or above them; shorts mirror that.
// Targets only move the status forward and STOPPED_OUT and TP3_HIT are final.
func Transition(s Signal, price float64) SignalStatus {
	current := s.Status
	if current == "" {
		current = SignalActive
	}
	if current.IsTerminal() || price <= 0 {
		return current
	}

	sign := 1.0
	if s.Direction == market.Sell {
		sign = -1
	}
	reached := func(level float64) bool {
		return level > 0 && (price-level)*sign >= 0
	}

	if s.StopLoss > 0 && (s.StopLoss-price)*sign >= 0 {
		return SignalStoppedOut
	}

	next := current
	tps := s.TakeProfits()
	for i := len(tps) - 1; i >= 0; i-- {
		if reached(tps[i]) {
			candidate := []SignalStatus{SignalTP1Hit, SignalTP2Hit, SignalTP3Hit}[i]
			if statusRank[candidate] > statusRank[next] {
				next = candidate
			}
			break
		}
	}
	return next
}

// Change records one status transition applied by the registry
type Change struct {
	SignalID string       `json:"signalId"`
	Symbol   string       `json:"symbol"`
	From     SignalStatus `json:"from"`
	To       SignalStatus `json:"to"`
	Price    float64      `json:"price"`
}

// Repository persists signals beyond the process lifetime
type Repository interface {
	SaveSignal(ctx context.Context, s *Signal) error
	UpdateSignalStatus(ctx context.Context, id string, status SignalStatus, price float64, at time.Time) error
}

// TradeCloser releases the risk slot of a finished signal
type TradeCloser interface {
	CloseTrade(id string, pnl float64) error
}

// Registry keeps emitted signals in memory and applies price updates to them
type Registry struct {
	mu      sync.RWMutex
	signals map[string]*Signal
	repo    Repository
	closer  TradeCloser
	events  events.Publisher
	now     func() time.Time
	logger  *logging.Logger
}

// NewRegistry creates a registry. repo, closer and publisher are optional.
func NewRegistry(repo Repository, closer TradeCloser, publisher events.Publisher) *Registry {
	return &Registry{
		signals: make(map[string]*Signal),
		repo:    repo,
		closer:  closer,
		events:  publisher,
		now:     time.Now,
		logger:  logging.WithComponent("signal-registry"),
	}
}

// Add stores a new signal and persists it when a repository is configured
func (r *Registry) Add(ctx context.Context, s *Signal) error {
	if s == nil || s.ID == "" {
		return errors.New("signal id is required")
	}
	r.mu.Lock()
	stored := *s
	r.signals[s.ID] = &stored
	r.mu.Unlock()

	if r.repo != nil {
		if err := r.repo.SaveSignal(ctx, &stored); err != nil {
			return fmt.Errorf("failed to persist signal %s: %w", s.ID, err)
		}
	}
	return nil
}

// Restore loads previously persisted signals without writing them back
func (r *Registry) Restore(signals []Signal) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range signals {
		if signals[i].ID == "" {
			continue
		}
		s := signals[i]
		r.signals[s.ID] = &s
		n++
	}
	return n
}

// Get returns a copy of one signal
func (r *Registry) Get(id string) (Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signals[id]
	if !ok {
		return Signal{}, fmt.Errorf("%s: %w", id, ErrSignalNotFound)
	}
	return *s, nil
}

// List returns signals newest first, optionally filtered by symbol and status
func (r *Registry) List(symbol string, status SignalStatus) []Signal {
	symbol = strings.ToUpper(symbol)
	r.mu.RLock()
	out := make([]Signal, 0, len(r.signals))
	for _, s := range r.signals {
		if symbol != "" && s.Symbol != symbol {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UpdatePrice applies a price to every live signal of the symbol and returns the transitions.
// Signals reaching a final status release their risk slot with the realised R multiple.
func (r *Registry) UpdatePrice(ctx context.Context, symbol string, price float64) []Change {
	symbol = strings.ToUpper(symbol)
	now := r.now()

	type closed struct {
		id  string
		pnl float64
	}
	var changes []Change
	var toClose []closed

	r.mu.Lock()
	for _, s := range r.signals {
		if s.Symbol != symbol || s.Status.IsTerminal() {
			continue
		}
		s.LastPrice = price
		next := Transition(*s, price)
		if next == s.Status {
			continue
		}
		from := s.Status
		changes = append(changes, Change{SignalID: s.ID, Symbol: s.Symbol, From: from, To: next, Price: price})
		s.Status = next
		s.UpdatedAt = now
		if next.IsTerminal() {
			toClose = append(toClose, closed{id: s.ID, pnl: realisedPnL(s, from, next)})
		}
	}
	r.mu.Unlock()

	sort.Slice(changes, func(i, j int) bool { return changes[i].SignalID < changes[j].SignalID })

	for _, c := range changes {
		if r.repo != nil {
			if err := r.repo.UpdateSignalStatus(ctx, c.SignalID, c.To, c.Price, now); err != nil {
				r.logger.WithError(err).Warn("Failed to persist signal status", "signal_id", c.SignalID)
			}
		}
		if r.events != nil {
			r.events.Publish(events.Event{
				Type:   events.EventSignalStatusChanged,
				Symbol: c.Symbol,
				Data: map[string]interface{}{
					"signal_id": c.SignalID,
					"from":      string(c.From),
					"to":        string(c.To),
					"price":     c.Price,
				},
			})
		}
	}
	if r.closer != nil {
		for _, c := range toClose {
			if err := r.closer.CloseTrade(c.id, c.pnl); err != nil {
				r.logger.WithError(err).Warn("Failed to release risk slot", "signal_id", c.id)
			}
		}
	}
	return changes
}

// partialClose is the share of the position closed at each target
const partialClose = 1.0 / 3

// realisedPnL books one third of the position at each target reached before the final
// status. A stop closes what is still open at -1R.
func realisedPnL(s *Signal, from, to SignalStatus) float64 {
	var hit int
	switch to {
	case SignalTP3Hit:
		hit = 3
	case SignalStoppedOut:
		hit = statusRank[from]
	default:
		return 0
	}

	r := 0.0
	for i := 0; i < hit; i++ {
		r += partialClose * s.RiskRewards[i]
	}
	if to == SignalStoppedOut {
		r -= 1 - float64(hit)*partialClose
	}
	return market.Round(s.Sizing.RiskAmount*r, 2)
}
