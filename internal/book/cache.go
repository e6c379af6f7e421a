package book

import (
	"sync"

	"github.com/google/btree"
)

// btree degree for price-level trees. Books on binary markets rarely
// exceed a few hundred levels.
const treeDegree = 16

func lessBidDesc(a, b PriceLevel) bool { return a.Price > b.Price }
func lessAskAsc(a, b PriceLevel) bool  { return a.Price < b.Price }

// entry is the cached state for one asset. Depth trees hold only levels
// with positive size; best-quote markers can outrun the trees when a
// delta carried top-of-book prices without depth.
type entry struct {
	bids *btree.BTreeG[PriceLevel]
	asks *btree.BTreeG[PriceLevel]

	bestBid, bestAsk float64
	haveBid, haveAsk bool
	timestamp        int64
	marketID, hash   string
}

func newEntry() *entry {
	return &entry{
		bids: btree.NewG(treeDegree, lessBidDesc),
		asks: btree.NewG(treeDegree, lessAskAsc),
	}
}

// Cache stores the last-applied book state per asset id. It is written
// only by the owning connection's dispatch path and read concurrently by
// consumer goroutines; all access goes through the RWMutex, and no lock
// is ever held across a network operation.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Apply merges or replaces the cached state for u.AssetID. Updates whose
// timestamp is older than the cached one are discarded and Apply reports
// false; equal timestamps are applied (venues batch multiple messages
// into one tick).
func (c *Cache) Apply(u Update) bool {
	if u.AssetID == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[u.AssetID]
	if !ok {
		e = newEntry()
		c.entries[u.AssetID] = e
	} else if u.Timestamp < e.timestamp {
		return false
	}

	switch u.Kind {
	case Snapshot:
		e.bids.Clear(false)
		e.asks.Clear(false)
		for _, l := range u.Bids {
			if l.Size > 0 {
				e.bids.ReplaceOrInsert(l)
			}
		}
		for _, l := range u.Asks {
			if l.Size > 0 {
				e.asks.ReplaceOrInsert(l)
			}
		}
		e.haveBid, e.haveAsk = false, false
	default: // Delta
		for _, l := range u.Bids {
			mergeLevel(e.bids, l)
		}
		for _, l := range u.Asks {
			mergeLevel(e.asks, l)
		}
	}

	// Best quotes track the tree tops, except when a delta carried a
	// top-of-book price with unknown depth (size zero placeholder).
	refreshBest(e)
	if u.Kind == Delta {
		if l, ok := u.BestBid(); ok && l.Size == 0 {
			e.bestBid, e.haveBid = l.Price, true
		}
		if l, ok := u.BestAsk(); ok && l.Size == 0 {
			e.bestAsk, e.haveAsk = l.Price, true
		}
	}

	e.timestamp = u.Timestamp
	if u.MarketID != "" {
		e.marketID = u.MarketID
	}
	if u.Hash != "" {
		e.hash = u.Hash
	}
	return true
}

// mergeLevel applies one delta level: positive size sets the absolute
// size at that price, zero size removes the level if present.
func mergeLevel(tree *btree.BTreeG[PriceLevel], l PriceLevel) {
	if l.Size <= 0 {
		tree.Delete(PriceLevel{Price: l.Price})
		return
	}
	tree.ReplaceOrInsert(l)
}

func refreshBest(e *entry) {
	if l, ok := e.bids.Min(); ok {
		e.bestBid, e.haveBid = l.Price, true
	} else {
		e.haveBid = false
	}
	if l, ok := e.asks.Min(); ok {
		e.bestAsk, e.haveAsk = l.Price, true
	} else {
		e.haveAsk = false
	}
}

// BestBidAsk returns the top of book for the asset. ok is false when the
// cache holds no data for the asset or the side is empty; callers must
// not treat absence as a zero price.
func (c *Cache) BestBidAsk(assetID string) (bid, ask float64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.entries[assetID]
	if !found || !e.haveBid || !e.haveAsk {
		return 0, 0, false
	}
	return e.bestBid, e.bestAsk, true
}

// Get materializes the current book for the asset: bids descending, asks
// ascending, with the last-applied timestamp.
func (c *Cache) Get(assetID string) (Update, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, found := c.entries[assetID]
	if !found {
		return Update{}, false
	}

	u := Update{
		MarketID:  e.marketID,
		AssetID:   assetID,
		Timestamp: e.timestamp,
		Hash:      e.hash,
		Kind:      Snapshot,
		Bids:      make([]PriceLevel, 0, e.bids.Len()),
		Asks:      make([]PriceLevel, 0, e.asks.Len()),
	}
	e.bids.Ascend(func(l PriceLevel) bool {
		u.Bids = append(u.Bids, l)
		return true
	})
	e.asks.Ascend(func(l PriceLevel) bool {
		u.Asks = append(u.Asks, l)
		return true
	})
	return u, true
}

// HasAll reports whether the cache holds data for every given asset.
// Used as a readiness gate before a strategy starts consuming prices.
func (c *Cache) HasAll(assetIDs []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range assetIDs {
		if _, ok := c.entries[id]; !ok {
			return false
		}
	}
	return true
}

// Invalidate drops all cached state for the asset.
func (c *Cache) Invalidate(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, assetID)
}

// Assets returns the asset ids currently cached, in no particular order.
func (c *Cache) Assets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of cached assets.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
