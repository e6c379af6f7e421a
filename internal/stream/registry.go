package stream

import (
	"sync"

	"github.com/rvaughn/predfeed/internal/book"
)

// Callback receives every applied orderbook update for a subscribed key.
// It runs on the connection's dispatch path: keep it fast, hand off
// heavy work to another goroutine.
type Callback func(key string, u book.Update)

// Registry tracks active subscriptions in insertion order so that
// replay after a reconnect resends subscribe frames deterministically.
// Entries survive disconnects and Closed state until removed.
type Registry struct {
	mu    sync.Mutex
	order []string
	subs  map[string]Callback
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]Callback)}
}

// Set inserts or overwrites the callback for key. Re-subscribing an
// existing key replaces the callback in place, keeping its replay
// position; there is never duplicate fan-out for one key.
func (r *Registry) Set(key string, cb Callback) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[key]; ok {
		r.subs[key] = cb
		return true
	}
	r.subs[key] = cb
	r.order = append(r.order, key)
	return false
}

// Remove deletes the subscription for key. Removing an unknown key is a
// no-op and reports false.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[key]; !ok {
		return false
	}
	delete(r.subs, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the callback registered for key.
func (r *Registry) Get(key string) (Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.subs[key]
	return cb, ok
}

// Keys returns the subscribed keys in insertion order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
