package predictfun

import (
	"encoding/json"
	"testing"

	"github.com/rvaughn/predfeed/internal/book"
	"github.com/rvaughn/predfeed/internal/model"
)

func TestSubscribeFrames(t *testing.T) {
	p := NewProtocol("", "", nil)

	frames, err := p.SubscribeFrames("42")
	if err != nil {
		t.Fatalf("SubscribeFrames failed: %v", err)
	}
	want := `{"method":"subscribe","requestId":1,"params":["predictOrderbook/42"]}`
	if string(frames[0]) != want {
		t.Errorf("subscribe frame = %s, want %s", frames[0], want)
	}

	// Request ids are monotonic across frames.
	frames, _ = p.SubscribeFrames("43")
	want = `{"method":"subscribe","requestId":2,"params":["predictOrderbook/43"]}`
	if string(frames[0]) != want {
		t.Errorf("second subscribe frame = %s, want %s", frames[0], want)
	}

	frames, _ = p.UnsubscribeFrames("42", nil)
	want = `{"method":"unsubscribe","requestId":3,"params":["predictOrderbook/42"]}`
	if string(frames[0]) != want {
		t.Errorf("unsubscribe frame = %s, want %s", frames[0], want)
	}
}

func TestSubscribeFramesNamespacedKey(t *testing.T) {
	p := NewProtocol("", "", nil)

	frames, err := p.SubscribeFrames("predictWalletEvents/jwt-token")
	if err != nil {
		t.Fatalf("SubscribeFrames failed: %v", err)
	}
	want := `{"method":"subscribe","requestId":1,"params":["predictWalletEvents/jwt-token"]}`
	if string(frames[0]) != want {
		t.Errorf("wallet subscribe frame = %s, want %s", frames[0], want)
	}
}

func TestDialHeader(t *testing.T) {
	p := NewProtocol("", "", nil)
	if h := p.DialHeader(); h != nil {
		t.Errorf("DialHeader without api key = %v, want nil", h)
	}

	p = NewProtocol("", "key123", nil)
	if got := p.DialHeader().Get("x-api-key"); got != "key123" {
		t.Errorf("x-api-key header = %q, want key123", got)
	}
}

func TestParseHeartbeat(t *testing.T) {
	p := NewProtocol("", "", nil)

	ev, err := p.Parse([]byte(`{"type":"M","topic":"heartbeat","data":1755}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := `{"method":"heartbeat","data":1755}`
	if string(ev.Reply) != want {
		t.Errorf("heartbeat reply = %s, want %s", ev.Reply, want)
	}
	if len(ev.Books) != 0 || len(ev.Trades) != 0 {
		t.Error("heartbeat produced book or trade output")
	}
}

func TestParseOrderbookArrayLevels(t *testing.T) {
	p := NewProtocol("", "", nil)

	ev, err := p.Parse([]byte(`{
		"type": "M",
		"topic": "predictOrderbook/42",
		"data": {
			"bids": [[0.48, 100], [0.52, 30]],
			"asks": [[0.55, 50], [0.54, 10]],
			"timestamp": 1700000000123
		}
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(ev.Books) != 1 {
		t.Fatalf("got %d books, want 1", len(ev.Books))
	}

	u := ev.Books[0]
	if u.Kind != book.Snapshot {
		t.Errorf("kind = %q, want snapshot", u.Kind)
	}
	if u.MarketID != "42" || u.AssetID != "42" {
		t.Errorf("ids = (%q, %q), want market id on both", u.MarketID, u.AssetID)
	}
	if u.Timestamp != 1700000000123 {
		t.Errorf("timestamp = %d", u.Timestamp)
	}
	if u.Bids[0].Price != 0.52 || u.Bids[1].Price != 0.48 {
		t.Errorf("bids = %v, want descending", u.Bids)
	}
	if u.Asks[0].Price != 0.54 || u.Asks[1].Price != 0.55 {
		t.Errorf("asks = %v, want ascending", u.Asks)
	}
}

func TestParseOrderbookObjectLevels(t *testing.T) {
	p := NewProtocol("", "", nil)

	ev, err := p.Parse([]byte(`{
		"type": "M",
		"topic": "predictOrderbook/42",
		"data": {
			"bids": [{"price": 0.5, "size": 7}],
			"asks": [{"price": 0.6, "size": 3}]
		}
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	u := ev.Books[0]
	if u.Bids[0] != (book.PriceLevel{Price: 0.5, Size: 7}) {
		t.Errorf("bid = %v", u.Bids[0])
	}
	if u.Asks[0] != (book.PriceLevel{Price: 0.6, Size: 3}) {
		t.Errorf("ask = %v", u.Asks[0])
	}
	// Missing timestamp defaults to receive time.
	if u.Timestamp == 0 {
		t.Error("timestamp not defaulted")
	}
}

func TestParseOrderbookDropsNonPositivePrices(t *testing.T) {
	p := NewProtocol("", "", nil)

	ev, err := p.Parse([]byte(`{
		"type": "M",
		"topic": "predictOrderbook/42",
		"data": {"bids": [[0, 5], [0.4, 1]], "asks": []}
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(ev.Books[0].Bids) != 1 {
		t.Errorf("bids = %v, want only the positive price", ev.Books[0].Bids)
	}
}

func TestParseWalletEventTrade(t *testing.T) {
	p := NewProtocol("", "", nil)

	ev, err := p.Parse([]byte(`{
		"type": "M",
		"topic": "predictWalletEvents/jwt",
		"data": {
			"eventType": "orderTransactionSuccess",
			"orderId": "ord-1",
			"marketId": "42",
			"fee": 0.01,
			"transactionHash": "0xdead",
			"timestamp": 1700000002000,
			"order": {"tokenId": 7, "side": 1, "price": 0.52, "size": 25}
		}
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(ev.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(ev.Trades))
	}

	tr := ev.Trades[0]
	if tr.OrderID != "ord-1" || tr.MarketID != "42" || tr.AssetID != "7" {
		t.Errorf("trade ids = %+v", tr)
	}
	if tr.Side != model.TradeSell {
		t.Errorf("side = %q, want sell", tr.Side)
	}
	if tr.Price != 0.52 || tr.Size != 25 || tr.Fee != 0.01 {
		t.Errorf("trade = %+v", tr)
	}
	if tr.TransactionHash != "0xdead" {
		t.Errorf("tx hash = %q", tr.TransactionHash)
	}
}

func TestParseWalletEventLifecycleIgnored(t *testing.T) {
	p := NewProtocol("", "", nil)

	for _, et := range []string{"orderAccepted", "orderCancelled", "orderExpired"} {
		ev, err := p.Parse([]byte(`{
			"type": "M",
			"topic": "predictWalletEvents/jwt",
			"data": {"eventType": "` + et + `", "orderId": "o"}
		}`))
		if err != nil {
			t.Fatalf("Parse of %s failed: %v", et, err)
		}
		if len(ev.Trades) != 0 {
			t.Errorf("%s produced a trade", et)
		}
	}
}

func TestParseResponseFrames(t *testing.T) {
	p := NewProtocol("", "", nil)

	ev, err := p.Parse([]byte(`{"type":"R","requestId":1,"success":true}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !ev.Empty() {
		t.Error("ack frame produced output")
	}

	// Failures are logged but never fatal.
	if _, err := p.Parse([]byte(`{"type":"R","requestId":2,"success":false,"error":"bad topic"}`)); err != nil {
		t.Errorf("failed ack returned error: %v", err)
	}
}

func TestParseBareKeepalives(t *testing.T) {
	p := NewProtocol("", "", nil)

	for _, raw := range []string{"", "PING", "PONG", " PONG "} {
		ev, err := p.Parse([]byte(raw))
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", raw, err)
		}
		if !ev.Empty() {
			t.Errorf("Parse(%q) produced output", raw)
		}
	}
}

func TestParseUnknownType(t *testing.T) {
	p := NewProtocol("", "", nil)

	if _, err := p.Parse([]byte(`{"type":"X"}`)); err == nil {
		t.Error("Parse accepted an unknown frame type")
	}
	if _, err := p.Parse([]byte(`{{{`)); err == nil {
		t.Error("Parse accepted invalid JSON")
	}
}

func TestHeartbeatNonceVerbatim(t *testing.T) {
	p := NewProtocol("", "", nil)

	// Non-integer nonces round-trip untouched.
	ev, err := p.Parse([]byte(`{"type":"M","topic":"heartbeat","data":"n-17"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var reply struct {
		Method string          `json:"method"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(ev.Reply, &reply); err != nil {
		t.Fatalf("reply is not valid JSON: %v", err)
	}
	if string(reply.Data) != `"n-17"` {
		t.Errorf("nonce = %s, want \"n-17\" verbatim", reply.Data)
	}
}
