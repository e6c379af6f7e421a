package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rvaughn/predfeed/internal/book"
	"github.com/rvaughn/predfeed/internal/model"
	"github.com/rvaughn/predfeed/internal/stream"
)

// Fetcher resolves a market id to its metadata. The polymarket REST
// client satisfies this; venues without a metadata endpoint can supply
// a static fetcher built from configuration.
type Fetcher interface {
	FetchMarket(ctx context.Context, id string) (model.Market, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id string) (model.Market, error)

func (f FetcherFunc) FetchMarket(ctx context.Context, id string) (model.Market, error) {
	return f(ctx, id)
}

// StaticFetcher serves markets from a fixed set, keyed by id. Used for
// venues whose subscription key is the market id itself and no token
// resolution is needed.
func StaticFetcher(markets ...model.Market) Fetcher {
	byID := make(map[string]model.Market, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
	}
	return FetcherFunc(func(_ context.Context, id string) (model.Market, error) {
		m, ok := byID[id]
		if !ok {
			return model.Market{}, fmt.Errorf("unknown market %s", id)
		}
		return m, nil
	})
}

// Watcher is the slice of a stream connection the resolver drives.
type Watcher interface {
	Watch(key string, cb stream.Callback) error
	Cache() *book.Cache
}

// Resolver caches market metadata and attaches resolved markets to a
// stream connection.
type Resolver struct {
	fetcher      Fetcher
	logger       *slog.Logger
	subscribeKey func(model.Market) string

	mu      sync.RWMutex
	markets map[string]model.Market
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithSubscribeKey overrides how a market maps to its venue
// subscription key. The default subscribes by the first outcome token;
// venues that key subscriptions by market id pass the id through.
func WithSubscribeKey(fn func(model.Market) string) ResolverOption {
	return func(r *Resolver) {
		r.subscribeKey = fn
	}
}

// NewResolver creates a market resolver backed by fetcher.
func NewResolver(fetcher Fetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		logger:  slog.Default(),
		markets: make(map[string]model.Market),
		subscribeKey: func(m model.Market) string {
			if len(m.TokenIDs) > 0 {
				return m.TokenIDs[0]
			}
			return m.ID
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the market for id, fetching and caching it on first
// use.
func (r *Resolver) Resolve(ctx context.Context, id string) (model.Market, error) {
	r.mu.RLock()
	m, ok := r.markets[id]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := r.fetcher.FetchMarket(ctx, id)
	if err != nil {
		return model.Market{}, fmt.Errorf("resolve market %s: %w", id, err)
	}

	r.mu.Lock()
	r.markets[id] = m
	r.mu.Unlock()
	return m, nil
}

// Lookup returns a previously resolved market without fetching.
func (r *Resolver) Lookup(id string) (model.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	return m, ok
}

// WatchMarket resolves id and subscribes w to its book feed. For
// binary markets the callback also maintains the complementary NO-side
// book in the connection cache, keyed by the second outcome token, so
// both sides are quotable even when the venue publishes only one.
func (r *Resolver) WatchMarket(ctx context.Context, w Watcher, id string, cb stream.Callback) (model.Market, error) {
	m, err := r.Resolve(ctx, id)
	if err != nil {
		return model.Market{}, err
	}
	if !m.Active {
		r.logger.Warn("watching inactive market", "market", m.ID)
	}

	key := r.subscribeKey(m)
	wrapped := r.bookCallback(m, w.Cache(), cb)
	if err := w.Watch(key, wrapped); err != nil {
		return model.Market{}, fmt.Errorf("watch market %s: %w", id, err)
	}

	r.logger.Info("watching market",
		"market", m.ID,
		"key", key,
		"tokens", len(m.TokenIDs),
	)
	return m, nil
}

func (r *Resolver) bookCallback(m model.Market, cache *book.Cache, cb stream.Callback) stream.Callback {
	if !m.Binary() {
		return cb
	}

	tick := m.TickSize
	if tick <= 0 {
		tick = book.DefaultTickSize
	}
	yesToken, noToken := m.TokenIDs[0], m.TokenIDs[1]

	return func(key string, u book.Update) {
		// Venues that key books by market id deliver the YES side under
		// the market id; re-key it so lookups by token work uniformly.
		if u.AssetID == m.ID && u.AssetID != yesToken {
			yes := u
			yes.AssetID = yesToken
			cache.Apply(yes)
		}
		if u.AssetID == yesToken || u.AssetID == m.ID {
			no := book.Complement(u, tick)
			no.AssetID = noToken
			cache.Apply(no)
		}
		if cb != nil {
			cb(key, u)
		}
	}
}
