package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"forex-signal-engine/internal/events"
)

func dialHub(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.server.Router())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev events.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func waitForClients(t *testing.T, hub *WSHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.server.Hub().Run(ctx)

	conn := dialHub(t, env, "")
	if ev := readEvent(t, conn); ev.Type != "CONNECTED" {
		t.Fatalf("first message = %s", ev.Type)
	}
	waitForClients(t, env.server.Hub(), 1)

	env.bus.Publish(events.Event{
		Type:   events.EventSignalGenerated,
		Symbol: "EURUSD",
		Data:   map[string]interface{}{"signal_id": "abc"},
	})
	ev := readEvent(t, conn)
	if ev.Type != events.EventSignalGenerated || ev.Data["signal_id"] != "abc" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestWebSocketSymbolFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.server.Hub().Run(ctx)

	conn := dialHub(t, env, "?symbols=xauusd")
	readEvent(t, conn)
	waitForClients(t, env.server.Hub(), 1)

	hub := env.server.Hub()
	hub.BroadcastEvent(events.Event{Type: events.EventSignalGenerated, Symbol: "EURUSD"})
	hub.BroadcastEvent(events.Event{Type: events.EventSignalGenerated, Symbol: "XAUUSD"})
	hub.BroadcastEvent(events.Event{Type: events.EventScanCompleted})

	if ev := readEvent(t, conn); ev.Symbol != "XAUUSD" {
		t.Errorf("filtered client received %s", ev.Symbol)
	}
	// Events without a symbol reach every client
	if ev := readEvent(t, conn); ev.Type != events.EventScanCompleted {
		t.Errorf("expected scan event, got %s", ev.Type)
	}
}

func TestWebSocketHubShutdown(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	go env.server.Hub().Run(ctx)

	conn := dialHub(t, env, "")
	readEvent(t, conn)
	waitForClients(t, env.server.Hub(), 1)

	cancel()
	waitForClients(t, env.server.Hub(), 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed after hub shutdown")
	}
}

func TestParseSymbols(t *testing.T) {
	got := parseSymbols(" eurusd, XAUUSD ,,")
	if len(got) != 2 || !got["EURUSD"] || !got["XAUUSD"] {
		t.Errorf("parseSymbols = %v", got)
	}
	if len(parseSymbols("")) != 0 {
		t.Error("empty filter should match everything")
	}
}
