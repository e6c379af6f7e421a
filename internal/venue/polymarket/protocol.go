package polymarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/rvaughn/predfeed/internal/book"
	"github.com/rvaughn/predfeed/internal/model"
	"github.com/rvaughn/predfeed/internal/stream"
)

// DefaultWSURL is the CLOB market channel endpoint.
const DefaultWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// Event types on the market channel.
const (
	eventBook           = "book"
	eventPriceChange    = "price_change"
	eventTickSizeChange = "tick_size_change"
	eventLastTradePrice = "last_trade_price"
)

// Protocol implements stream.Protocol for the Polymarket market channel.
type Protocol struct {
	wsURL  string
	logger *slog.Logger

	// Venue-published tick sizes observed on the stream.
	tickMu sync.RWMutex
	ticks  map[string]float64
}

// NewProtocol creates the market-channel protocol. An empty wsURL uses
// DefaultWSURL.
func NewProtocol(wsURL string, logger *slog.Logger) *Protocol {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{
		wsURL:  wsURL,
		logger: logger,
		ticks:  make(map[string]float64),
	}
}

func (p *Protocol) Name() string { return "polymarket" }

func (p *Protocol) URL() string { return p.wsURL }

// DialHeader is empty: the market channel is public.
func (p *Protocol) DialHeader() http.Header { return nil }

// subscribeFrame is the market-channel subscription message. Field
// order matters on the wire: markets, assets_ids, type.
type subscribeFrame struct {
	Markets  []string `json:"markets"`
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// SubscribeFrames subscribes one asset id on the market channel.
func (p *Protocol) SubscribeFrames(key string) ([][]byte, error) {
	return p.membershipFrame([]string{key})
}

// UnsubscribeFrames resends the full remaining membership: the market
// channel has no per-key unsubscribe.
func (p *Protocol) UnsubscribeFrames(key string, remaining []string) ([][]byte, error) {
	return p.membershipFrame(remaining)
}

func (p *Protocol) membershipFrame(assetIDs []string) ([][]byte, error) {
	if assetIDs == nil {
		assetIDs = []string{}
	}
	data, err := json.Marshal(subscribeFrame{
		Markets:  []string{},
		AssetIDs: assetIDs,
		Type:     "market",
	})
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

// Parse normalizes one market-channel frame. The venue batches events
// into JSON arrays; single objects also occur. A malformed item inside
// an array is logged and skipped so one bad event cannot take down the
// rest of the batch.
func (p *Protocol) Parse(data []byte) (*stream.Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &stream.Event{}, nil
	}

	ev := &stream.Event{}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("event batch: %w", err)
		}
		for _, item := range items {
			if err := p.parseItem(item, ev); err != nil {
				p.logger.Warn("skipping malformed event in batch", "error", err)
			}
		}
		return ev, nil
	}

	if err := p.parseItem(trimmed, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (p *Protocol) parseItem(data []byte, ev *stream.Event) error {
	var env struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("event envelope: %w", err)
	}

	switch env.EventType {
	case eventBook:
		u, err := p.parseBook(data)
		if err != nil {
			return err
		}
		ev.Books = append(ev.Books, u)
	case eventPriceChange:
		u, ok, err := p.parsePriceChange(data)
		if err != nil {
			return err
		}
		if ok {
			ev.Books = append(ev.Books, u)
		}
	case eventTickSizeChange:
		return p.recordTickSize(data)
	case eventLastTradePrice:
		tr, err := p.parseTrade(data)
		if err != nil {
			return err
		}
		ev.Trades = append(ev.Trades, tr)
	default:
		// Subscription acks and other chatter.
	}
	return nil
}

// wireLevel is a price level as the venue sends it: decimal strings.
type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookMsg struct {
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Timestamp flexInt     `json:"timestamp"`
	Hash      string      `json:"hash"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
}

// parseBook handles a full orderbook snapshot.
func (p *Protocol) parseBook(data []byte) (book.Update, error) {
	var msg bookMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return book.Update{}, fmt.Errorf("book event: %w", err)
	}

	u := book.Update{
		MarketID:  msg.Market,
		AssetID:   msg.AssetID,
		Timestamp: int64(msg.Timestamp),
		Hash:      msg.Hash,
		Kind:      book.Snapshot,
		Bids:      coerceLevels(msg.Bids),
		Asks:      coerceLevels(msg.Asks),
	}
	if u.AssetID == "" {
		return book.Update{}, fmt.Errorf("book event: missing asset_id")
	}
	u.SortSides()
	return u, nil
}

// coerceLevels converts wire levels to floats, dropping non-positive
// prices and sizes.
func coerceLevels(levels []wireLevel) []book.PriceLevel {
	out := make([]book.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil || size <= 0 {
			continue
		}
		out = append(out, book.PriceLevel{Price: price, Size: size})
	}
	return out
}

type priceChangeMsg struct {
	Market       string  `json:"market"`
	Timestamp    flexInt `json:"timestamp"`
	PriceChanges []struct {
		AssetID string `json:"asset_id"`
		Price   string `json:"price"`
		Size    string `json:"size"`
		Side    string `json:"side"`
		Hash    string `json:"hash"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	} `json:"price_changes"`
}

// parsePriceChange handles an incremental update. The venue carries the
// new best bid/ask without depth, so the delta's levels use size zero
// as an "unknown depth" placeholder. ok is false when the event carried
// no usable change.
func (p *Protocol) parsePriceChange(data []byte) (book.Update, bool, error) {
	var msg priceChangeMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return book.Update{}, false, fmt.Errorf("price_change event: %w", err)
	}
	if len(msg.PriceChanges) == 0 {
		return book.Update{}, false, nil
	}

	// Venue sends one change per message in practice.
	change := msg.PriceChanges[0]
	u := book.Update{
		MarketID:  msg.Market,
		AssetID:   change.AssetID,
		Timestamp: int64(msg.Timestamp),
		Hash:      change.Hash,
		Kind:      book.Delta,
	}
	if u.AssetID == "" {
		return book.Update{}, false, fmt.Errorf("price_change event: missing asset_id")
	}

	if bid, err := strconv.ParseFloat(change.BestBid, 64); err == nil && bid > 0 {
		u.Bids = append(u.Bids, book.PriceLevel{Price: bid, Size: 0})
	}
	if ask, err := strconv.ParseFloat(change.BestAsk, 64); err == nil && ask > 0 {
		u.Asks = append(u.Asks, book.PriceLevel{Price: ask, Size: 0})
	}
	if len(u.Bids) == 0 && len(u.Asks) == 0 {
		return book.Update{}, false, nil
	}
	return u, true, nil
}

type tickSizeChangeMsg struct {
	AssetID     string `json:"asset_id"`
	NewTickSize string `json:"new_tick_size"`
}

func (p *Protocol) recordTickSize(data []byte) error {
	var msg tickSizeChangeMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("tick_size_change event: %w", err)
	}
	tick, err := strconv.ParseFloat(msg.NewTickSize, 64)
	if err != nil || tick <= 0 || msg.AssetID == "" {
		return fmt.Errorf("tick_size_change event: bad tick %q", msg.NewTickSize)
	}

	p.tickMu.Lock()
	p.ticks[msg.AssetID] = tick
	p.tickMu.Unlock()

	p.logger.Debug("tick size changed", "asset", msg.AssetID, "tick", tick)
	return nil
}

// TickSize returns the last tick size announced on the stream for the
// asset.
func (p *Protocol) TickSize(assetID string) (float64, bool) {
	p.tickMu.RLock()
	defer p.tickMu.RUnlock()
	tick, ok := p.ticks[assetID]
	return tick, ok
}

type lastTradePriceMsg struct {
	AssetID   string  `json:"asset_id"`
	Market    string  `json:"market"`
	Price     string  `json:"price"`
	Size      string  `json:"size"`
	Side      string  `json:"side"`
	Timestamp flexInt `json:"timestamp"`
}

func (p *Protocol) parseTrade(data []byte) (model.Trade, error) {
	var msg lastTradePriceMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.Trade{}, fmt.Errorf("last_trade_price event: %w", err)
	}

	price, _ := strconv.ParseFloat(msg.Price, 64)
	size, _ := strconv.ParseFloat(msg.Size, 64)

	side := model.TradeBuy
	if msg.Side == "SELL" {
		side = model.TradeSell
	}

	return model.Trade{
		EventID:   uuid.New(),
		MarketID:  msg.Market,
		AssetID:   msg.AssetID,
		Side:      side,
		Price:     price,
		Size:      size,
		Timestamp: int64(msg.Timestamp),
	}, nil
}

// flexInt accepts both JSON numbers and numeric strings; the venue is
// inconsistent about timestamp encoding.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// Some venues send fractional epoch strings.
			fv, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return err
			}
			*f = flexInt(fv)
			return nil
		}
		*f = flexInt(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}
