package model

import "github.com/google/uuid"

// Market describes a tradeable prediction market and the outcome tokens
// behind it. One binary market carries exactly two complementary tokens
// whose prices sum to 1.
type Market struct {
	ID       string   // Venue market identifier (condition id, market id, ticker)
	Question string   // Display question/title
	Outcomes []string // Outcome names, index-aligned with TokenIDs
	TokenIDs []string // Asset/token ids, one per outcome
	TickSize float64  // Venue-published price increment (e.g. 0.01)
	Active   bool     // Whether the market is open for trading
}

// Binary reports whether the market has exactly two complementary outcomes.
func (m Market) Binary() bool {
	return len(m.TokenIDs) == 2
}

// TradeSide is the taker side of an executed trade.
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// Trade is an executed fill decoded from a venue event stream. The stream
// layer relays trades verbatim to the registered callback; it does not
// interpret fill semantics.
type Trade struct {
	EventID         uuid.UUID // Locally assigned, stable across relays
	OrderID         string    // Venue order identifier, if provided
	MarketID        string    // Venue market identifier
	AssetID         string    // Outcome token the fill executed on
	Side            TradeSide
	Price           float64
	Size            float64
	Fee             float64
	TransactionHash string // On-chain hash for settlement venues, else empty
	Timestamp       int64  // Venue timestamp, ms since epoch
}
