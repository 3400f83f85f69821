package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"forex-signal-engine/internal/events"
)

func signalEvent() events.Event {
	return events.Event{
		Type:      events.EventSignalGenerated,
		Symbol:    "EURUSD",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Data: map[string]interface{}{
			"signal_id":     "sig-1",
			"direction":     "BUY",
			"grade":         "A",
			"confluence":    78.5,
			"entry":         1.0850,
			"stop_loss":     1.0800,
			"take_profit_1": 1.0950,
		},
	}
}

func TestFromEvent(t *testing.T) {
	tests := []struct {
		name     string
		event    events.Event
		ok       bool
		kind     Kind
		title    string
		contains string
		positive bool
	}{
		{"signal", signalEvent(), true, KindSignal, "BUY signal: EURUSD", "SL: 1.08000 | TP1: 1.09500", true},
		{
			name:  "stopped out",
			event: events.Event{Type: events.EventSignalStatusChanged, Symbol: "GBPUSD", Data: map[string]interface{}{
				"signal_id": "sig-2", "from": "ACTIVE", "to": "STOPPED_OUT", "price": 1.2611,
			}},
			ok: true, kind: KindStatus, title: "GBPUSD STOPPED_OUT", contains: "ACTIVE -> STOPPED_OUT at 1.26110",
		},
		{
			name:  "target hit",
			event: events.Event{Type: events.EventSignalStatusChanged, Symbol: "GBPUSD", Data: map[string]interface{}{
				"signal_id": "sig-2", "from": "ACTIVE", "to": "TP1_HIT", "price": 1.27,
			}},
			ok: true, kind: KindStatus, title: "GBPUSD TP1_HIT", contains: "sig-2", positive: true,
		},
		{
			name:  "error",
			event: events.Event{Type: events.EventError, Data: map[string]interface{}{"source": "scanner", "message": "scheduled scan failed"}},
			ok:    true, kind: KindError, title: "Error in scanner", contains: "scheduled scan failed",
		},
		{name: "scan completed", event: events.Event{Type: events.EventScanCompleted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := FromEvent(tt.event)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if n.Kind != tt.kind || n.Title != tt.title {
				t.Errorf("got %s %q", n.Kind, n.Title)
			}
			if !strings.Contains(n.Message, tt.contains) {
				t.Errorf("message %q does not contain %q", n.Message, tt.contains)
			}
			if n.Positive != tt.positive {
				t.Errorf("positive = %v", n.Positive)
			}
			if n.Timestamp.IsZero() {
				t.Error("timestamp should be set")
			}
		})
	}
}

func TestTelegramNotifier(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken-1/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(TelegramConfig{BotToken: "token-1", ChatID: "99", BaseURL: srv.URL + "/"})
	n := &Notification{Title: "BUY <EURUSD>", Message: "R&R 3"}
	if err := tg.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "99" || got["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", got)
	}
	if got["text"] != "<b>BUY &lt;EURUSD&gt;</b>\n\nR&amp;R 3" {
		t.Errorf("text = %q", got["text"])
	}
}

func TestDiscordNotifier(t *testing.T) {
	var got struct {
		Embeds []struct {
			Title  string `json:"title"`
			Color  int    `json:"color"`
			Fields []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"fields"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(DiscordConfig{WebhookURL: srv.URL})
	n := &Notification{Title: "SELL signal: USDJPY", Symbol: "USDJPY", Price: 151.2, Timestamp: time.Now()}
	if err := d.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %+v", got.Embeds)
	}
	embed := got.Embeds[0]
	if embed.Color != 0xE74C3C {
		t.Errorf("color = %x", embed.Color)
	}
	if len(embed.Fields) != 2 || embed.Fields[1].Value != "151.20000" {
		t.Errorf("fields = %+v", embed.Fields)
	}
}

func TestManagerRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	m := NewManager(Config{
		MaxRetries: 2,
		Telegram:   TelegramConfig{Enabled: true, BotToken: "t", ChatID: "1", BaseURL: srv.URL},
	})
	if err := m.Send(context.Background(), &Notification{Title: "x"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestManagerClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewManager(Config{
		MaxRetries: 3,
		Telegram:   TelegramConfig{Enabled: true, BotToken: "t", ChatID: "1", BaseURL: srv.URL},
		Discord:    DiscordConfig{Enabled: true, WebhookURL: srv.URL},
	})
	if got := m.Channels(); len(got) != 2 {
		t.Fatalf("channels = %v", got)
	}
	err := m.Send(context.Background(), &Notification{Title: "x"})
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"telegram", "discord", "chat not found"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want one per channel", n)
	}
}

func TestAttachDeliversBusEvents(t *testing.T) {
	texts := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		texts <- body["text"].(string)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	bus := events.NewEventBus()
	m := NewManager(Config{
		Enabled:  true,
		Timeout:  time.Second,
		Telegram: TelegramConfig{Enabled: true, BotToken: "t", ChatID: "1", BaseURL: srv.URL},
	})
	m.Attach(bus)

	if n := bus.SubscriberCount(events.EventSignalStatusChanged); n != 0 {
		t.Errorf("status changes are off, got %d subscribers", n)
	}

	bus.Publish(events.Event{Type: events.EventScanCompleted})
	bus.Publish(signalEvent())

	select {
	case text := <-texts:
		if !strings.Contains(text, "BUY signal: EURUSD") {
			t.Errorf("text = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}
	select {
	case text := <-texts:
		t.Errorf("unexpected second message %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAttachWithoutChannels(t *testing.T) {
	bus := events.NewEventBus()
	NewManager(Config{Enabled: true, StatusChanges: true}).Attach(bus)
	if n := bus.SubscriberCount(events.EventSignalGenerated); n != 0 {
		t.Errorf("subscribers = %d", n)
	}
}
