package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"forex-signal-engine/internal/logging"
)

// KafkaConfig configures the outbound event stream
type KafkaConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Brokers      []string      `json:"brokers" yaml:"brokers" validate:"required_if=Enabled true"`
	Topic        string        `json:"topic" yaml:"topic" default:"forex.signals"`
	Compression  string        `json:"compression" yaml:"compression" default:"gzip"`
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout" default:"1s"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" default:"10s"`
}

// messageWriter is the subset of kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards bus events to a Kafka topic, keyed by symbol
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *logging.Logger
}

// NewKafkaPublisher creates a publisher writing to the configured brokers
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  3,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaPublisher(writer, cfg.Topic, cfg.WriteTimeout), nil
}

func newKafkaPublisher(w messageWriter, topic string, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaPublisher{
		writer:  w,
		topic:   topic,
		timeout: timeout,
		logger:  logging.WithComponent("kafka"),
	}
}

// Attach subscribes the publisher to the given event types, or to every event when none are given
func (k *KafkaPublisher) Attach(bus *EventBus, types ...EventType) {
	if len(types) == 0 {
		bus.SubscribeAll(k.Handle)
		return
	}
	for _, t := range types {
		bus.Subscribe(t, k.Handle)
	}
}

// Handle writes one event. Failures are logged; delivery is best effort.
func (k *KafkaPublisher) Handle(ev Event) {
	if err := k.Write(context.Background(), ev); err != nil {
		k.logger.WithError(err).Warn("Failed to publish event", "type", string(ev.Type), "symbol", ev.Symbol)
	}
}

// Write marshals and writes one event under the publisher timeout
func (k *KafkaPublisher) Write(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: payload,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
