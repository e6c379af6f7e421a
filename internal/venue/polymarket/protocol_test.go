package polymarket

import (
	"testing"

	"github.com/rvaughn/predfeed/internal/book"
	"github.com/rvaughn/predfeed/internal/model"
)

func TestSubscribeFrames(t *testing.T) {
	p := NewProtocol("", nil)

	frames, err := p.SubscribeFrames("tok1")
	if err != nil {
		t.Fatalf("SubscribeFrames failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}

	want := `{"markets":[],"assets_ids":["tok1"],"type":"market"}`
	if string(frames[0]) != want {
		t.Errorf("subscribe frame = %s, want %s", frames[0], want)
	}
}

func TestUnsubscribeFramesResendMembership(t *testing.T) {
	p := NewProtocol("", nil)

	frames, err := p.UnsubscribeFrames("tok2", []string{"tok1", "tok3"})
	if err != nil {
		t.Fatalf("UnsubscribeFrames failed: %v", err)
	}
	want := `{"markets":[],"assets_ids":["tok1","tok3"],"type":"market"}`
	if string(frames[0]) != want {
		t.Errorf("unsubscribe frame = %s, want %s", frames[0], want)
	}

	// Removing the last key resends an empty membership, not null.
	frames, err = p.UnsubscribeFrames("tok1", nil)
	if err != nil {
		t.Fatalf("UnsubscribeFrames failed: %v", err)
	}
	want = `{"markets":[],"assets_ids":[],"type":"market"}`
	if string(frames[0]) != want {
		t.Errorf("empty membership frame = %s, want %s", frames[0], want)
	}
}

func TestParseBook(t *testing.T) {
	p := NewProtocol("", nil)

	data := []byte(`{
		"event_type": "book",
		"asset_id": "tok1",
		"market": "0xcond",
		"timestamp": "1700000000123",
		"hash": "abc123",
		"bids": [{"price": "0.48", "size": "100"}, {"price": "0.52", "size": "30"}],
		"asks": [{"price": "0.55", "size": "50"}, {"price": "0.54", "size": "10"}]
	}`)

	ev, err := p.Parse(data)
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
	if u.AssetID != "tok1" || u.MarketID != "0xcond" {
		t.Errorf("ids = (%q, %q)", u.AssetID, u.MarketID)
	}
	if u.Timestamp != 1700000000123 {
		t.Errorf("timestamp = %d", u.Timestamp)
	}
	if u.Hash != "abc123" {
		t.Errorf("hash = %q", u.Hash)
	}
	// Sorted: bids descending, asks ascending.
	if u.Bids[0].Price != 0.52 || u.Bids[1].Price != 0.48 {
		t.Errorf("bids = %v, want descending", u.Bids)
	}
	if u.Asks[0].Price != 0.54 || u.Asks[1].Price != 0.55 {
		t.Errorf("asks = %v, want ascending", u.Asks)
	}
}

func TestParseBookDropsBadLevels(t *testing.T) {
	p := NewProtocol("", nil)

	data := []byte(`{
		"event_type": "book",
		"asset_id": "tok1",
		"market": "0xcond",
		"timestamp": 1,
		"bids": [{"price": "0", "size": "5"}, {"price": "0.4", "size": "0"}, {"price": "bogus", "size": "1"}, {"price": "0.45", "size": "2"}],
		"asks": []
	}`)

	ev, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	u := ev.Books[0]
	if len(u.Bids) != 1 || u.Bids[0].Price != 0.45 {
		t.Errorf("bids = %v, want only (0.45, 2)", u.Bids)
	}
}

func TestParseBookMissingAssetID(t *testing.T) {
	p := NewProtocol("", nil)

	_, err := p.Parse([]byte(`{"event_type": "book", "market": "0xcond", "bids": [], "asks": []}`))
	if err == nil {
		t.Error("Parse accepted a book event without asset_id")
	}
}

func TestParsePriceChange(t *testing.T) {
	p := NewProtocol("", nil)

	data := []byte(`{
		"event_type": "price_change",
		"market": "0xcond",
		"timestamp": "1700000000500",
		"price_changes": [{
			"asset_id": "tok1",
			"price": "0.51",
			"size": "10",
			"side": "BUY",
			"hash": "h1",
			"best_bid": "0.51",
			"best_ask": "0.53"
		}]
	}`)

	ev, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(ev.Books) != 1 {
		t.Fatalf("got %d books, want 1", len(ev.Books))
	}

	u := ev.Books[0]
	if u.Kind != book.Delta {
		t.Errorf("kind = %q, want delta", u.Kind)
	}
	// Best quotes carry no depth: size zero placeholders.
	if len(u.Bids) != 1 || u.Bids[0].Price != 0.51 || u.Bids[0].Size != 0 {
		t.Errorf("bids = %v, want [(0.51, 0)]", u.Bids)
	}
	if len(u.Asks) != 1 || u.Asks[0].Price != 0.53 || u.Asks[0].Size != 0 {
		t.Errorf("asks = %v, want [(0.53, 0)]", u.Asks)
	}
}

func TestParsePriceChangeEmpty(t *testing.T) {
	p := NewProtocol("", nil)

	ev, err := p.Parse([]byte(`{"event_type": "price_change", "market": "0xcond", "price_changes": []}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(ev.Books) != 0 {
		t.Errorf("empty price_change produced %d updates", len(ev.Books))
	}
}

func TestParseBatch(t *testing.T) {
	p := NewProtocol("", nil)

	data := []byte(`[
		{"event_type": "book", "asset_id": "tok1", "market": "0xcond", "timestamp": 1, "bids": [{"price": "0.5", "size": "1"}], "asks": []},
		{"event_type": "book", "market": "0xcond", "bids": [], "asks": []},
		{"event_type": "book", "asset_id": "tok2", "market": "0xcond", "timestamp": 2, "bids": [], "asks": [{"price": "0.6", "size": "2"}]}
	]`)

	ev, err := p.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	// The malformed middle event is skipped, not fatal.
	if len(ev.Books) != 2 {
		t.Fatalf("got %d books from batch, want 2", len(ev.Books))
	}
	if ev.Books[0].AssetID != "tok1" || ev.Books[1].AssetID != "tok2" {
		t.Errorf("batch order = %q, %q", ev.Books[0].AssetID, ev.Books[1].AssetID)
	}
}

func TestParseTickSizeChange(t *testing.T) {
	p := NewProtocol("", nil)

	_, err := p.Parse([]byte(`{"event_type": "tick_size_change", "asset_id": "tok1", "new_tick_size": "0.001"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	tick, ok := p.TickSize("tok1")
	if !ok || tick != 0.001 {
		t.Errorf("TickSize = (%v, %v), want (0.001, true)", tick, ok)
	}
	if _, ok := p.TickSize("unknown"); ok {
		t.Error("TickSize reported a value for an unknown asset")
	}
}

func TestParseLastTradePrice(t *testing.T) {
	p := NewProtocol("", nil)

	ev, err := p.Parse([]byte(`{
		"event_type": "last_trade_price",
		"asset_id": "tok1",
		"market": "0xcond",
		"price": "0.52",
		"size": "25",
		"side": "SELL",
		"timestamp": "1700000001000"
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(ev.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(ev.Trades))
	}

	tr := ev.Trades[0]
	if tr.Side != model.TradeSell {
		t.Errorf("side = %q, want sell", tr.Side)
	}
	if tr.Price != 0.52 || tr.Size != 25 {
		t.Errorf("trade = %+v", tr)
	}
	if tr.EventID == (model.Trade{}).EventID {
		t.Error("trade has zero event id")
	}
}

func TestParseUnknownEventIgnored(t *testing.T) {
	p := NewProtocol("", nil)

	ev, err := p.Parse([]byte(`{"event_type": "something_new", "foo": 1}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !ev.Empty() {
		t.Error("unknown event produced output")
	}
}

func TestParseMalformed(t *testing.T) {
	p := NewProtocol("", nil)

	if _, err := p.Parse([]byte(`{not json`)); err == nil {
		t.Error("Parse accepted invalid JSON")
	}
	if _, err := p.Parse([]byte(`[{not json`)); err == nil {
		t.Error("Parse accepted an invalid batch")
	}
}

func TestFlexIntForms(t *testing.T) {
	p := NewProtocol("", nil)

	for _, ts := range []string{`1700000000001`, `"1700000000001"`, `"1700000000001.5"`} {
		ev, err := p.Parse([]byte(`{"event_type": "book", "asset_id": "tok1", "market": "m", "timestamp": ` + ts + `, "bids": [], "asks": []}`))
		if err != nil {
			t.Fatalf("Parse with timestamp %s failed: %v", ts, err)
		}
		if ev.Books[0].Timestamp != 1700000000001 {
			t.Errorf("timestamp %s parsed to %d", ts, ev.Books[0].Timestamp)
		}
	}
}
