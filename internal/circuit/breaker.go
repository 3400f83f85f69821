package circuit

import (
	"fmt"
	"sync"
	"time"

	"forex-signal-engine/internal/events"
)

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"    // Calls pass through
	StateOpen     State = "open"      // Calls are short-circuited
	StateHalfOpen State = "half_open" // One trial call allowed
)

// Config holds circuit breaker configuration
type Config struct {
	Enabled             bool          `yaml:"enabled" json:"enabled" default:"true"`
	MaxConsecutiveFails int           `yaml:"max_consecutive_fails" json:"maxConsecutiveFails" default:"3" validate:"gte=1"`
	Cooldown            time.Duration `yaml:"cooldown" json:"cooldown" default:"5m"`
}

// Stats is a snapshot of the breaker
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	TotalTrips       int       `json:"totalTrips"`
	TripReason       string    `json:"tripReason,omitempty"`
	LastTripTime     time.Time `json:"lastTripTime,omitempty"`
}

// Breaker stops calling a failing dependency for a cooldown after
// MaxConsecutiveFails failures, then lets a single trial call through.
type Breaker struct {
	name   string
	config Config
	events events.Publisher
	now    func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	totalTrips       int
	trialInFlight    bool
	lastTripTime     time.Time
	tripReason       string
}

// Option configures a Breaker
type Option func(*Breaker)

// WithEvents publishes trips and recoveries as ERROR events
func WithEvents(p events.Publisher) Option {
	return func(b *Breaker) { b.events = p }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a closed breaker
func New(name string, config Config, opts ...Option) *Breaker {
	if config.MaxConsecutiveFails < 1 {
		config.MaxConsecutiveFails = 1
	}
	b := &Breaker{name: name, config: config, state: StateClosed, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed. When it returns false the reason says why.
func (b *Breaker) Allow() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.now().Sub(b.lastTripTime)
		if elapsed < b.config.Cooldown {
			return false, fmt.Sprintf("%s circuit open, cooldown remaining: %v (reason: %s)",
				b.name, (b.config.Cooldown - elapsed).Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return true, ""
	case StateHalfOpen:
		if b.trialInFlight {
			return false, fmt.Sprintf("%s circuit half-open, trial call in flight", b.name)
		}
		b.trialInFlight = true
	}
	return true, ""
}

// RecordSuccess closes the breaker and clears the failure streak
func (b *Breaker) RecordSuccess() {
	if !b.config.Enabled {
		return
	}
	b.mu.Lock()
	recovered := b.state != StateClosed
	b.state = StateClosed
	b.consecutiveFails = 0
	b.trialInFlight = false
	b.tripReason = ""
	b.mu.Unlock()

	if recovered {
		b.publish("recovered", "")
	}
}

// RecordFailure counts a failure. A failed trial call reopens the breaker immediately.
func (b *Breaker) RecordFailure(err error) {
	if !b.config.Enabled {
		return
	}
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}

	b.mu.Lock()
	b.consecutiveFails++
	b.trialInFlight = false
	tripped := false
	if b.state == StateHalfOpen || b.consecutiveFails >= b.config.MaxConsecutiveFails {
		if b.state != StateOpen {
			b.totalTrips++
			tripped = true
		}
		b.state = StateOpen
		b.lastTripTime = b.now()
		b.tripReason = reason
	}
	b.mu.Unlock()

	if tripped {
		b.publish("tripped", reason)
	}
}

// Abort releases a call that ended without a verdict, such as one whose caller went away.
// An abandoned trial call puts the breaker back to open without restarting the cooldown,
// so the next Allow starts a new trial.
func (b *Breaker) Abort() {
	if !b.config.Enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.trialInFlight {
		b.state = StateOpen
	}
	b.trialInFlight = false
}

// Trip opens the breaker immediately, as after a failed startup probe
func (b *Breaker) Trip(err error) {
	if !b.config.Enabled {
		return
	}
	b.mu.Lock()
	b.consecutiveFails = b.config.MaxConsecutiveFails - 1
	b.mu.Unlock()
	b.RecordFailure(err)
}

// Reset closes the breaker manually
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.state = StateClosed
	b.consecutiveFails = 0
	b.trialInFlight = false
	b.tripReason = ""
	b.mu.Unlock()
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:             b.name,
		State:            b.state,
		ConsecutiveFails: b.consecutiveFails,
		TotalTrips:       b.totalTrips,
		TripReason:       b.tripReason,
		LastTripTime:     b.lastTripTime,
	}
}

func (b *Breaker) publish(action, reason string) {
	if b.events == nil {
		return
	}
	message := fmt.Sprintf("%s circuit %s", b.name, action)
	if reason != "" {
		message += ": " + reason
	}
	b.events.Publish(events.Event{
		Type: events.EventError,
		Data: map[string]interface{}{
			"source":  "circuit",
			"message": message,
			"breaker": b.name,
			"action":  action,
		},
	})
}
