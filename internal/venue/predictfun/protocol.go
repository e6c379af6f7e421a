package predictfun

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rvaughn/predfeed/internal/book"
	"github.com/rvaughn/predfeed/internal/model"
	"github.com/rvaughn/predfeed/internal/stream"
)

// DefaultWSURL is the predict.fun WebSocket endpoint.
const DefaultWSURL = "wss://ws.predict.fun/ws"

// Topic namespaces.
const (
	orderbookTopic    = "predictOrderbook/"
	walletEventsTopic = "predictWalletEvents/"
	heartbeatTopic    = "heartbeat"
)

// Envelope types.
const (
	typeMessage  = "M"
	typeResponse = "R"
)

// Wallet event type names relevant to trade relay.
const eventOrderTransactionSuccess = "orderTransactionSuccess"

// Protocol implements the predict.fun side of a stream connection.
// Subscription keys are market ids; every book frame is a full snapshot
// for one market.
type Protocol struct {
	wsURL     string
	apiKey    string
	logger    *slog.Logger
	requestID atomic.Int64
}

// NewProtocol creates a predict.fun protocol. An empty wsURL uses
// DefaultWSURL. apiKey, when set, is sent as the x-api-key handshake
// header.
func NewProtocol(wsURL, apiKey string, logger *slog.Logger) *Protocol {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{
		wsURL:  wsURL,
		apiKey: apiKey,
		logger: logger.With("venue", "predictfun"),
	}
}

// Name implements stream.Protocol.
func (p *Protocol) Name() string { return "predictfun" }

// URL implements stream.Protocol.
func (p *Protocol) URL() string { return p.wsURL }

// DialHeader implements stream.Protocol.
func (p *Protocol) DialHeader() http.Header {
	if p.apiKey == "" {
		return nil
	}
	h := http.Header{}
	h.Set("x-api-key", p.apiKey)
	return h
}

// requestFrame is the client control frame shape shared by subscribe
// and unsubscribe.
type requestFrame struct {
	Method    string   `json:"method"`
	RequestID int64    `json:"requestId"`
	Params    []string `json:"params"`
}

func (p *Protocol) controlFrame(method, topic string) ([]byte, error) {
	frame := requestFrame{
		Method:    method,
		RequestID: p.requestID.Add(1),
		Params:    []string{topic},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal %s frame: %w", method, err)
	}
	return data, nil
}

// topicFor maps a subscription key to its wire topic. Bare keys are
// market ids on the orderbook namespace; keys that already carry a
// namespace (wallet event streams) pass through unchanged.
func topicFor(key string) string {
	if strings.ContainsRune(key, '/') {
		return key
	}
	return orderbookTopic + key
}

// SubscribeFrames implements stream.Protocol. key is a market id.
func (p *Protocol) SubscribeFrames(key string) ([][]byte, error) {
	data, err := p.controlFrame("subscribe", topicFor(key))
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

// UnsubscribeFrames implements stream.Protocol. The venue supports
// per-topic unsubscribe, so remaining is ignored.
func (p *Protocol) UnsubscribeFrames(key string, _ []string) ([][]byte, error) {
	data, err := p.controlFrame("unsubscribe", topicFor(key))
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

// envelope is the server frame wrapper. Data stays raw until the topic
// determines its shape; the heartbeat nonce in particular is echoed
// back without reinterpretation.
type envelope struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
	RequestID int64           `json:"requestId"`
	Success   bool            `json:"success"`
	Error     string          `json:"error"`
}

// heartbeatReply mirrors the server nonce. Data is the raw nonce bytes
// so integer nonces round-trip bit-exact.
type heartbeatReply struct {
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data"`
}

// Parse implements stream.Protocol.
func (p *Protocol) Parse(data []byte) (*stream.Event, error) {
	// Bare keepalive tokens arrive outside the JSON envelope.
	switch strings.TrimSpace(string(data)) {
	case "", "PING", "PONG":
		return &stream.Event{}, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Type {
	case typeMessage:
		return p.parseMessage(&env)
	case typeResponse:
		if !env.Success {
			p.logger.Warn("request failed",
				"request_id", env.RequestID,
				"error", env.Error,
			)
		}
		return &stream.Event{}, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", env.Type)
	}
}

func (p *Protocol) parseMessage(env *envelope) (*stream.Event, error) {
	switch {
	case env.Topic == heartbeatTopic:
		reply, err := json.Marshal(heartbeatReply{
			Method: "heartbeat",
			Data:   env.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal heartbeat echo: %w", err)
		}
		return &stream.Event{Reply: reply}, nil

	case strings.HasPrefix(env.Topic, orderbookTopic):
		u, err := p.parseOrderbook(env.Topic, env.Data)
		if err != nil {
			return nil, err
		}
		return &stream.Event{Books: []book.Update{u}}, nil

	case strings.HasPrefix(env.Topic, walletEventsTopic):
		trade, ok, err := p.parseWalletEvent(env.Data)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &stream.Event{}, nil
		}
		return &stream.Event{Trades: []model.Trade{trade}}, nil

	default:
		p.logger.Debug("ignoring topic", "topic", env.Topic)
		return &stream.Event{}, nil
	}
}

// level accepts both wire encodings the venue emits: positional
// [price, size] arrays and {"price": p, "size": s} objects.
type level struct {
	Price float64
	Size  float64
}

func (l *level) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) < 2 {
			return fmt.Errorf("level array has %d elements, want 2", len(arr))
		}
		l.Price, l.Size = arr[0], arr[1]
		return nil
	}
	var obj struct {
		Price float64 `json:"price"`
		Size  float64 `json:"size"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("level is neither array nor object: %w", err)
	}
	l.Price, l.Size = obj.Price, obj.Size
	return nil
}

type orderbookData struct {
	Bids      []level `json:"bids"`
	Asks      []level `json:"asks"`
	Timestamp int64   `json:"timestamp"`
}

// parseOrderbook normalizes one snapshot frame. The market id doubles
// as the book asset id because the venue keys books by market, not by
// outcome token; the resolver fans the update out per token.
func (p *Protocol) parseOrderbook(topic string, data json.RawMessage) (book.Update, error) {
	marketID := strings.TrimPrefix(topic, orderbookTopic)
	if marketID == "" {
		return book.Update{}, fmt.Errorf("orderbook topic %q missing market id", topic)
	}

	var wire orderbookData
	if err := json.Unmarshal(data, &wire); err != nil {
		return book.Update{}, fmt.Errorf("decode orderbook for %s: %w", marketID, err)
	}

	u := book.Update{
		MarketID:  marketID,
		AssetID:   marketID,
		Timestamp: wire.Timestamp,
		Kind:      book.Snapshot,
	}
	if u.Timestamp == 0 {
		u.Timestamp = time.Now().UnixMilli()
	}
	for _, l := range wire.Bids {
		if l.Price > 0 {
			u.Bids = append(u.Bids, book.PriceLevel{Price: l.Price, Size: l.Size})
		}
	}
	for _, l := range wire.Asks {
		if l.Price > 0 {
			u.Asks = append(u.Asks, book.PriceLevel{Price: l.Price, Size: l.Size})
		}
	}
	u.SortSides()
	return u, nil
}

type walletEventData struct {
	EventType       string  `json:"eventType"`
	OrderID         string  `json:"orderId"`
	OrderHash       string  `json:"orderHash"`
	MarketID        string  `json:"marketId"`
	Fee             float64 `json:"fee"`
	TransactionHash string  `json:"transactionHash"`
	Timestamp       int64   `json:"timestamp"`
	Order           struct {
		TokenID json.Number `json:"tokenId"`
		Side    int         `json:"side"`
		Price   float64     `json:"price"`
		Size    float64     `json:"size"`
	} `json:"order"`
}

// parseWalletEvent decodes a wallet event, relaying only successful
// fills as trades. Other lifecycle events (accepted, cancelled,
// expired) carry no fill and are dropped.
func (p *Protocol) parseWalletEvent(data json.RawMessage) (model.Trade, bool, error) {
	var wire walletEventData
	if err := json.Unmarshal(data, &wire); err != nil {
		return model.Trade{}, false, fmt.Errorf("decode wallet event: %w", err)
	}
	if wire.EventType != eventOrderTransactionSuccess {
		p.logger.Debug("wallet event", "event_type", wire.EventType, "order_id", wire.OrderID)
		return model.Trade{}, false, nil
	}

	orderID := wire.OrderID
	if orderID == "" {
		orderID = wire.OrderHash
	}
	side := model.TradeBuy
	if wire.Order.Side != 0 {
		side = model.TradeSell
	}
	ts := wire.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	return model.Trade{
		EventID:         uuid.New(),
		OrderID:         orderID,
		MarketID:        wire.MarketID,
		AssetID:         wire.Order.TokenID.String(),
		Side:            side,
		Price:           wire.Order.Price,
		Size:            wire.Order.Size,
		Fee:             wire.Fee,
		TransactionHash: wire.TransactionHash,
		Timestamp:       ts,
	}, true, nil
}
