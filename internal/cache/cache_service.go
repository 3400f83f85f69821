// Package cache mirrors candles and scan results into Redis. Callers treat every error
// as a miss and fall back to the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"forex-signal-engine/internal/circuit"
	"forex-signal-engine/internal/logging"
)

var (
	// ErrUnavailable is returned while the Redis breaker is open
	ErrUnavailable = errors.New("redis unavailable")
	// ErrMiss is returned when a key is not cached
	ErrMiss = errors.New("cache miss")
)

// Config holds Redis connection settings
type Config struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Address  string        `json:"address" yaml:"address" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password string        `json:"-" yaml:"password"`
	DB       int           `json:"db" yaml:"db" validate:"gte=0"`
	PoolSize int           `json:"pool_size" yaml:"pool_size" default:"10" validate:"gte=1"`
	Retry    time.Duration `json:"retry" yaml:"retry" default:"30s"`
}

const (
	keyCandles     = "candles:%s:%s:%d"
	// KeyLastScan holds the most recent scan result
	KeyLastScan    = "scan:latest"
	// DefaultScanTTL outlives three default scan intervals
	DefaultScanTTL = 15 * time.Minute
)

// CandlesKey is the key of one candle request
func CandlesKey(symbol, timeframe string, limit int) string {
	return fmt.Sprintf(keyCandles, symbol, timeframe, limit)
}

// CacheService wraps a Redis client behind a circuit breaker. Three consecutive
// failures open it; after Retry one probe call is let through.
type CacheService struct {
	client  *redis.Client
	config  Config
	breaker *circuit.Breaker
	logger  *logging.Logger
}

// NewCacheService connects to Redis. An unreachable server is not an error: the service
// starts with the breaker open and recovers on its own.
func NewCacheService(cfg Config) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 30 * time.Second
	}

	cs := &CacheService{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: 2,
			MaxRetries:   1,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		}),
		config:  cfg,
		breaker: circuit.New("redis", circuit.Config{Enabled: true, MaxConsecutiveFails: 3, Cooldown: cfg.Retry}),
		logger:  logging.WithComponent("cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.breaker.Trip(err)
		cs.logger.WithError(err).Warn("Redis unreachable, candle cache runs in memory only", "address", cfg.Address)
		return cs, nil
	}
	cs.logger.Info("Redis connected", "address", cfg.Address)
	return cs, nil
}

// IsHealthy is false while the breaker is open
func (cs *CacheService) IsHealthy() bool {
	return cs.breaker.State() != circuit.StateOpen
}

// do runs op through the breaker. redis.Nil is a miss and counts as a healthy round trip.
func (cs *CacheService) do(op func() error) error {
	if ok, _ := cs.breaker.Allow(); !ok {
		return ErrUnavailable
	}
	err := op()
	switch {
	case err == nil, errors.Is(err, redis.Nil):
		if cs.breaker.State() == circuit.StateHalfOpen {
			cs.logger.Info("Redis recovered")
		}
		cs.breaker.RecordSuccess()
	default:
		cs.breaker.RecordFailure(err)
	}
	return err
}

// GetJSON decodes the value at key into dest
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	var raw []byte
	err := cs.do(func() error {
		var err error
		raw, err = cs.client.Get(ctx, key).Bytes()
		return err
	})
	switch {
	case errors.Is(err, redis.Nil):
		return ErrMiss
	case errors.Is(err, ErrUnavailable):
		return err
	case err != nil:
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return nil
}

// SetJSON stores value as JSON with a TTL
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	err = cs.do(func() error {
		return cs.client.Set(ctx, key, data, ttl).Err()
	})
	if err != nil && !errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return err
}

// Ping checks connectivity directly and updates the breaker; used by the health endpoint
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.breaker.RecordFailure(err)
		return err
	}
	cs.breaker.RecordSuccess()
	return nil
}

// Stats reports the breaker state for monitoring
func (cs *CacheService) Stats() circuit.Stats {
	return cs.breaker.Stats()
}

// Close closes the Redis connection
func (cs *CacheService) Close() error {
	return cs.client.Close()
}
