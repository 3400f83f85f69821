package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/logging"
)

// Kind represents the type of notification
type Kind string

const (
	KindSignal Kind = "signal"
	KindStatus Kind = "status"
	KindError  Kind = "error"
)

// Notification represents an alert message
type Notification struct {
	Kind      Kind
	Title     string
	Message   string
	Symbol    string
	Price     float64
	Positive  bool
	Timestamp time.Time
}

// Notifier is one delivery channel
type Notifier interface {
	Send(ctx context.Context, n *Notification) error
	Name() string
}

// Config holds alerting configuration
type Config struct {
	Enabled       bool           `yaml:"enabled" json:"enabled"`
	StatusChanges bool           `yaml:"status_changes" json:"statusChanges" default:"true"`
	Errors        bool           `yaml:"errors" json:"errors"`
	Timeout       time.Duration  `yaml:"timeout" json:"timeout" default:"10s"`
	MaxRetries    uint64         `yaml:"max_retries" json:"maxRetries" default:"2"`
	Telegram      TelegramConfig `yaml:"telegram" json:"telegram"`
	Discord       DiscordConfig  `yaml:"discord" json:"discord"`
}

// Manager fans notifications out to every configured channel
type Manager struct {
	config    Config
	notifiers []Notifier
	logger    *logging.Logger
}

// NewManager creates a manager with the channels enabled in cfg
func NewManager(cfg Config) *Manager {
	m := &Manager{config: cfg, logger: logging.WithComponent("notification")}
	if cfg.Timeout <= 0 {
		m.config.Timeout = 10 * time.Second
	}
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		m.AddNotifier(NewTelegramNotifier(cfg.Telegram))
	}
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		m.AddNotifier(NewDiscordNotifier(cfg.Discord))
	}
	return m
}

// AddNotifier adds a delivery channel
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Channels returns the names of the configured channels
func (m *Manager) Channels() []string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Send delivers to every channel, retrying each with exponential backoff.
// The returned error joins the failures of all channels.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.config.MaxRetries), ctx)
		err := backoff.Retry(func() error {
			return notifier.Send(ctx, n)
		}, policy)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Attach subscribes the manager to the bus events it alerts on
func (m *Manager) Attach(bus *events.EventBus) {
	if len(m.notifiers) == 0 {
		return
	}
	bus.Subscribe(events.EventSignalGenerated, m.Handle)
	if m.config.StatusChanges {
		bus.Subscribe(events.EventSignalStatusChanged, m.Handle)
	}
	if m.config.Errors {
		bus.Subscribe(events.EventError, m.Handle)
	}
}

// Handle converts an event and delivers it. Failures are logged.
func (m *Manager) Handle(ev events.Event) {
	n, ok := FromEvent(ev)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()
	if err := m.Send(ctx, n); err != nil {
		m.logger.WithError(err).Warn("Failed to deliver notification", "type", ev.Type, "symbol", ev.Symbol)
	}
}

// FromEvent builds the alert for a bus event. Events without an alert return false.
func FromEvent(ev events.Event) (*Notification, bool) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	switch ev.Type {
	case events.EventSignalGenerated:
		direction := str(ev.Data["direction"])
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s @ %s\n", direction, ev.Symbol, price(ev.Data["entry"]))
		fmt.Fprintf(&b, "SL: %s | TP1: %s\n", price(ev.Data["stop_loss"]), price(ev.Data["take_profit_1"]))
		fmt.Fprintf(&b, "Grade %s, confluence %.1f", str(ev.Data["grade"]), num(ev.Data["confluence"]))
		return &Notification{
			Kind:      KindSignal,
			Title:     fmt.Sprintf("%s signal: %s", direction, ev.Symbol),
			Message:   b.String(),
			Symbol:    ev.Symbol,
			Price:     num(ev.Data["entry"]),
			Positive:  direction == "BUY",
			Timestamp: ts,
		}, true

	case events.EventSignalStatusChanged:
		to := str(ev.Data["to"])
		return &Notification{
			Kind:      KindStatus,
			Title:     fmt.Sprintf("%s %s", ev.Symbol, to),
			Message:   fmt.Sprintf("Signal %s moved %s -> %s at %s", str(ev.Data["signal_id"]), str(ev.Data["from"]), to, price(ev.Data["price"])),
			Symbol:    ev.Symbol,
			Price:     num(ev.Data["price"]),
			Positive:  to != "STOPPED_OUT",
			Timestamp: ts,
		}, true

	case events.EventError:
		return &Notification{
			Kind:      KindError,
			Title:     "Error in " + str(ev.Data["source"]),
			Message:   str(ev.Data["message"]),
			Timestamp: ts,
		}, true
	}
	return nil, false
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func num(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func price(v interface{}) string {
	p := num(v)
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%.5f", p)
}
