package book

import (
	"math"
	"sort"
)

// Kind classifies an Update.
type Kind string

const (
	// Snapshot replaces all cached state for the asset.
	Snapshot Kind = "snapshot"

	// Delta merges into cached state level by level.
	Delta Kind = "delta"
)

// PriceLevel is one resting price point on a side of the book.
// A size of zero inside a delta means the level is gone; inside a
// best-quote delta it means the depth at that price is unknown.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Update is a normalized orderbook message from any venue.
type Update struct {
	MarketID  string
	AssetID   string
	Bids      []PriceLevel // Sorted descending by price
	Asks      []PriceLevel // Sorted ascending by price
	Timestamp int64        // Venue timestamp, ms since epoch
	Hash      string       // Venue de-duplication token, optional
	Kind      Kind
}

// SortSides enforces the ordering invariant in place.
func (u *Update) SortSides() {
	SortBids(u.Bids)
	SortAsks(u.Asks)
}

// BestBid returns the highest bid, if any.
func (u Update) BestBid() (PriceLevel, bool) {
	if len(u.Bids) == 0 {
		return PriceLevel{}, false
	}
	return u.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (u Update) BestAsk() (PriceLevel, bool) {
	if len(u.Asks) == 0 {
		return PriceLevel{}, false
	}
	return u.Asks[0], true
}

// SortBids sorts bid levels descending by price.
func SortBids(levels []PriceLevel) {
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Price > levels[j].Price
	})
}

// SortAsks sorts ask levels ascending by price.
func SortAsks(levels []PriceLevel) {
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Price < levels[j].Price
	})
}

// DefaultTickSize is assumed when a venue did not publish one.
const DefaultTickSize = 0.0001

// RoundToTick rounds p to the nearest multiple of tick.
func RoundToTick(p, tick float64) float64 {
	if tick <= 0 {
		tick = DefaultTickSize
	}
	return math.Round(p/tick) * tick
}

// Complement derives the book for the second outcome of a binary market
// from the first outcome's book: sides swap and each price p maps to 1-p,
// rounded to the venue tick. A bid for YES at p is an ask for NO at 1-p.
// The result is re-sorted, since swap-and-invert reverses each side's order.
func Complement(u Update, tick float64) Update {
	bids := make([]PriceLevel, 0, len(u.Asks))
	for _, l := range u.Asks {
		bids = append(bids, PriceLevel{Price: RoundToTick(1-l.Price, tick), Size: l.Size})
	}
	asks := make([]PriceLevel, 0, len(u.Bids))
	for _, l := range u.Bids {
		asks = append(asks, PriceLevel{Price: RoundToTick(1-l.Price, tick), Size: l.Size})
	}

	out := Update{
		MarketID:  u.MarketID,
		Bids:      bids,
		Asks:      asks,
		Timestamp: u.Timestamp,
		Kind:      u.Kind,
	}
	out.SortSides()
	return out
}
