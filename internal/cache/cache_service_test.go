package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"forex-signal-engine/internal/circuit"
)

func TestNewCacheServiceDisabled(t *testing.T) {
	if _, err := NewCacheService(Config{}); err == nil {
		t.Error("expected error when redis is disabled")
	}
}

func TestCacheServiceDegradedMode(t *testing.T) {
	// Nothing listens on port 1, so the initial ping fails fast
	cs, err := NewCacheService(Config{Enabled: true, Address: "127.0.0.1:1", PoolSize: 1, Retry: time.Hour})
	if err != nil {
		t.Fatalf("degraded mode should not be an error: %v", err)
	}
	defer cs.Close()

	if cs.IsHealthy() {
		t.Fatal("service should start unhealthy")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := cs.SetJSON(ctx, KeyLastScan, map[string]int{"a": 1}, time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Errorf("SetJSON: expected ErrUnavailable, got %v", err)
	}
	var dest map[string]int
	if err := cs.GetJSON(ctx, KeyLastScan, &dest); !errors.Is(err, ErrUnavailable) {
		t.Errorf("GetJSON: expected ErrUnavailable, got %v", err)
	}

	stats := cs.Stats()
	if stats.State != circuit.StateOpen || stats.Name != "redis" || stats.TripReason == "" {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestPingFailureKeepsBreakerOpen(t *testing.T) {
	cs, err := NewCacheService(Config{Enabled: true, Address: "127.0.0.1:1", PoolSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := cs.Ping(ctx); err == nil {
		t.Fatal("expected ping to fail")
	}
	if cs.IsHealthy() {
		t.Error("breaker should stay open")
	}
}

func TestCandlesKey(t *testing.T) {
	if got := CandlesKey("EURUSD", "H4", 200); got != "candles:EURUSD:H4:200" {
		t.Errorf("CandlesKey = %q", got)
	}
}
