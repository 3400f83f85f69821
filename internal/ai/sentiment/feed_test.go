package sentiment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchFearGreedIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Fear and Greed Index","data":[{"value":"27","value_classification":"Fear","timestamp":"1714521600"}]}`))
	}))
	defer srv.Close()

	cfg := DefaultFeedConfig()
	cfg.FearGreedURL = srv.URL
	f := NewFeed(cfg)

	value, label, err := f.FetchFearGreedIndex(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 27 || label != "Fear" {
		t.Errorf("got %d %q, want 27 Fear", value, label)
	}
}

func TestFetchFearGreedErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, ``},
		{"empty data", http.StatusOK, `{"data":[]}`},
		{"bad value", http.StatusOK, `{"data":[{"value":"high"}]}`},
		{"malformed", http.StatusOK, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cfg := DefaultFeedConfig()
			cfg.FearGreedURL = srv.URL
			value, _, err := NewFeed(cfg).FetchFearGreedIndex(context.Background())
			if err == nil {
				t.Fatal("expected an error")
			}
			if value != 50 {
				t.Errorf("expected neutral fallback 50, got %d", value)
			}
		})
	}
}

func TestFeedSnapshot(t *testing.T) {
	f := NewFeed(nil)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if f.Snapshot("EURUSD", now) != nil {
		t.Fatal("expected nil snapshot with no inputs")
	}

	f.SetPositioning("eurusd", 78)
	f.AddNews("EURUSD", NewsItem{Title: "ECB hawkish", Sentiment: 0.6})
	f.SetFearGreed(40)

	snap := f.Snapshot("EURUSD", now)
	if snap == nil || snap.Retail == nil || snap.Retail.LongPercent != 78 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(snap.News) != 1 || *snap.FearGreed != 40 || !snap.AsOf.Equal(now) {
		t.Errorf("unexpected snapshot contents %+v", snap)
	}

	// Snapshots are copies
	snap.News[0].Title = "changed"
	if f.GetRecentNews("EURUSD", 10)[0].Title != "ECB hawkish" {
		t.Error("snapshot mutation leaked into the feed")
	}

	other := f.Snapshot("GBPUSD", now)
	if other == nil || other.Retail != nil || other.FearGreed == nil {
		t.Errorf("expected only the global fear/greed for GBPUSD, got %+v", other)
	}
}

func TestAddNewsKeepsNewest(t *testing.T) {
	cfg := DefaultFeedConfig()
	cfg.MaxNewsPerSymbol = 2
	f := NewFeed(cfg)

	f.AddNews("USDJPY", NewsItem{Title: "a"}, NewsItem{Title: "b"}, NewsItem{Title: "c"})
	got := f.GetRecentNews("USDJPY", 10)
	if len(got) != 2 || got[0].Title != "b" || got[1].Title != "c" {
		t.Errorf("unexpected news %+v", got)
	}
}
