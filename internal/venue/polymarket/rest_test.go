package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchMarket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/0xcond" {
			t.Errorf("path = %q, want /markets/0xcond", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"condition_id": "0xcond",
			"question": "Will it rain tomorrow?",
			"active": true,
			"closed": false,
			"minimum_tick_size": 0.01,
			"tokens": [
				{"token_id": "tok-yes", "outcome": "Yes"},
				{"token_id": "tok-no", "outcome": "No"}
			]
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	m, err := c.FetchMarket(context.Background(), "0xcond")
	if err != nil {
		t.Fatalf("FetchMarket failed: %v", err)
	}

	if m.ID != "0xcond" {
		t.Errorf("ID = %q", m.ID)
	}
	if m.Question != "Will it rain tomorrow?" {
		t.Errorf("Question = %q", m.Question)
	}
	if !m.Active {
		t.Error("Active = false, want true")
	}
	if m.TickSize != 0.01 {
		t.Errorf("TickSize = %v", m.TickSize)
	}
	if len(m.TokenIDs) != 2 || m.TokenIDs[0] != "tok-yes" || m.TokenIDs[1] != "tok-no" {
		t.Errorf("TokenIDs = %v", m.TokenIDs)
	}
	if !m.Binary() {
		t.Error("Binary() = false for a two-token market")
	}
}

func TestFetchMarketClosedIsInactive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"condition_id": "0xcond",
			"active": true,
			"closed": true,
			"tokens": [{"token_id": "tok-yes", "outcome": "Yes"}]
		}`))
	}))
	defer server.Close()

	c := NewClient(server.URL)
	m, err := c.FetchMarket(context.Background(), "0xcond")
	if err != nil {
		t.Fatalf("FetchMarket failed: %v", err)
	}
	if m.Active {
		t.Error("closed market reported active")
	}
}

func TestFetchMarketErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `{"error": "not found"}`},
		{"missing condition_id", http.StatusOK, `{"question": "?"}`},
		{"no tokens", http.StatusOK, `{"condition_id": "0xcond", "tokens": []}`},
		{"garbage body", http.StatusOK, `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient(server.URL)
			if _, err := c.FetchMarket(context.Background(), "0xcond"); err == nil {
				t.Error("FetchMarket succeeded, want error")
			}
		})
	}
}
