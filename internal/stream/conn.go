package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rvaughn/predfeed/internal/book"
	"github.com/rvaughn/predfeed/internal/model"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnConfig configures a Conn.
type ConnConfig struct {
	Policy        ReconnectPolicy
	AutoReconnect bool
	Transport     TransportConfig // URL and Header are taken from the Protocol
}

// DefaultConnConfig returns sensible defaults.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		Policy:        DefaultReconnectPolicy(),
		AutoReconnect: true,
		Transport:     DefaultTransportConfig(),
	}
}

// TradeFunc receives relayed fill events.
type TradeFunc func(model.Trade)

// BookFunc observes every applied orderbook update, regardless of key.
type BookFunc func(book.Update)

// ConnStats is a point-in-time snapshot of connection health.
type ConnStats struct {
	Venue         string
	State         State
	Attempts      int
	Subscriptions int
	CachedAssets  int
}

// Conn owns exactly one transport connection to one venue and drives
// its receive loop. All inbound frames flow transport -> Parse ->
// cache.Apply -> registered callback on a single goroutine; Watch,
// Unwatch and Close are safe from any goroutine.
type Conn struct {
	proto    Protocol
	cfg      ConnConfig
	cache    *book.Cache
	registry *Registry
	logger   *slog.Logger

	mu          sync.Mutex
	state       State
	transport   Transport
	attempts    int
	closed      bool
	loopRunning bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	onTrade TradeFunc
	onBook  BookFunc
}

// NewConn creates a connection for the given venue protocol. The Conn
// owns its cache; consumers poll it through Cache().
func NewConn(proto Protocol, cfg ConnConfig, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		proto:    proto,
		cfg:      cfg,
		cache:    book.NewCache(),
		registry: NewRegistry(),
		logger:   logger.With("venue", proto.Name()),
		done:     make(chan struct{}),
	}
}

// Cache returns the orderbook cache fed by this connection.
func (c *Conn) Cache() *book.Cache { return c.cache }

// OnTrade registers the trade relay callback. Set before Start.
func (c *Conn) OnTrade(fn TradeFunc) { c.onTrade = fn }

// OnBook registers a tap invoked for every applied update. Set before
// Start.
func (c *Conn) OnBook(fn BookFunc) { c.onBook = fn }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of connection health.
func (c *Conn) Stats() ConnStats {
	c.mu.Lock()
	state := c.state
	attempts := c.attempts
	c.mu.Unlock()

	return ConnStats{
		Venue:         c.proto.Name(),
		State:         state,
		Attempts:      attempts,
		Subscriptions: c.registry.Len(),
		CachedAssets:  c.cache.Len(),
	}
}

// Subscriptions returns the active keys in replay order.
func (c *Conn) Subscriptions() []string { return c.registry.Keys() }

// Connect opens the transport and replays every registered
// subscription in registry order. It is a no-op when already connected.
// A rejected handshake is returned as *HandshakeError and is never
// retried automatically. Callers may Connect again after reconnect
// attempts were exhausted; subscriptions survive and are replayed.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateConnected, StateConnecting:
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting

	tcfg := c.cfg.Transport
	tcfg.URL = c.proto.URL()
	tcfg.Header = c.proto.DialHeader()
	t := NewTransport(tcfg, c.logger)
	c.mu.Unlock()

	if err := t.Connect(ctx); err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()

		var he *HandshakeError
		if errors.As(err, &he) {
			he.Venue = c.proto.Name()
			return he
		}
		return fmt.Errorf("%s: connect: %w", c.proto.Name(), err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		t.Close()
		return ErrClosed
	}
	old := c.transport
	c.transport = t
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	keys := c.registry.Keys()
	for _, key := range keys {
		if err := c.sendSubscribe(t, key); err != nil {
			c.logger.Warn("subscription replay failed", "key", key, "error", err)
		}
	}

	c.logger.Info("connected", "subscriptions", len(keys))
	return nil
}

// Start connects and launches the receive loop. The returned Conn is
// the owned handle for the background worker; Close takes it back.
func (c *Conn) Start(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.loopRunning {
		c.mu.Unlock()
		return nil
	}
	c.loopRunning = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.loopRunning = false
			c.mu.Unlock()
		}()
		c.run(ctx)
	}()
	return nil
}

// Wait blocks until the receive loop has exited.
func (c *Conn) Wait() { c.wg.Wait() }

// Close transitions to Closed, disables auto-reconnect, cancels any
// pending reconnect wait immediately and closes the transport.
// Idempotent; Closed is terminal. Subscriptions stay registered so a
// later inspection can still list them.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateClosed
	t := c.transport
	c.transport = nil
	c.mu.Unlock()

	if t != nil {
		t.Close()
	}
	c.logger.Info("closed")
	return nil
}

// Watch subscribes to orderbook updates for key. Subscribing an
// already-watched key replaces the callback; exactly one callback is
// ever active per key. When disconnected the entry is queued and
// replayed on the next successful connect.
func (c *Conn) Watch(key string, cb Callback) error {
	c.registry.Set(key, cb)

	t, connected := c.liveTransport()
	if !connected {
		return nil
	}
	return c.sendSubscribe(t, key)
}

// Unwatch removes the subscription for key. Unknown keys are a no-op.
func (c *Conn) Unwatch(key string) error {
	if !c.registry.Remove(key) {
		return nil
	}

	t, connected := c.liveTransport()
	if !connected {
		return nil
	}

	frames, err := c.proto.UnsubscribeFrames(key, c.registry.Keys())
	if err != nil {
		return fmt.Errorf("%s: unsubscribe %s: %w", c.proto.Name(), key, err)
	}
	for _, f := range frames {
		if err := t.Send(f); err != nil {
			return fmt.Errorf("%s: unsubscribe %s: %w", c.proto.Name(), key, err)
		}
	}
	return nil
}

func (c *Conn) liveTransport() (Transport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.transport == nil {
		return nil, false
	}
	return c.transport, true
}

func (c *Conn) sendSubscribe(t Transport, key string) error {
	frames, err := c.proto.SubscribeFrames(key)
	if err != nil {
		return fmt.Errorf("%s: subscribe %s: %w", c.proto.Name(), key, err)
	}
	for _, f := range frames {
		if err := t.Send(f); err != nil {
			return fmt.Errorf("%s: subscribe %s: %w", c.proto.Name(), key, err)
		}
	}
	return nil
}

// run is the receive loop. It exits when the connection is Closed,
// the context is cancelled, or — with auto-reconnect off — the
// transport fails.
func (c *Conn) run(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		t := c.transport
		state := c.state
		c.mu.Unlock()

		if state == StateClosed {
			return
		}

		if t == nil || !t.IsConnected() {
			if !c.cfg.AutoReconnect {
				return
			}
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case err := <-t.Errors():
			c.logger.Warn("transport error", "error", err)
			// A stale link can leave the socket open with IsConnected
			// still true; tear it down so the next iteration reconnects.
			t.Close()
			c.mu.Lock()
			if c.state == StateConnected {
				c.state = StateDisconnected
			}
			c.mu.Unlock()
		case f, ok := <-t.Frames():
			if !ok {
				continue
			}
			c.dispatch(t, f)
		}
	}
}

// reconnect runs one iteration of the reconnect procedure. It reports
// false when the loop must stop: connection closed, handshake rejected,
// or attempts exhausted (state goes to Closed; subscriptions remain
// registered for a caller-initiated resume).
func (c *Conn) reconnect(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if !c.cfg.Policy.ShouldRetry(c.attempts) {
		c.logger.Error("reconnect attempts exhausted", "attempts", c.attempts)
		c.state = StateClosed
		c.mu.Unlock()
		return false
	}
	c.state = StateReconnecting
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	delay := c.cfg.Policy.NextDelay(attempt)
	c.logger.Info("reconnecting",
		"attempt", attempt,
		"max_attempts", c.cfg.Policy.MaxAttempts,
		"delay", delay,
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	if err := c.Connect(ctx); err != nil {
		var he *HandshakeError
		if errors.As(err, &he) {
			c.logger.Error("handshake rejected, giving up", "error", err)
			c.mu.Lock()
			c.state = StateClosed
			c.mu.Unlock()
			return false
		}
		c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
	}
	return true
}

// dispatch normalizes one frame and applies its updates. Undecodable
// frames are logged and dropped; the stream continues.
func (c *Conn) dispatch(t Transport, f Frame) {
	ev, err := c.proto.Parse(f.Data)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", "error", err)
		return
	}
	if ev.Empty() {
		return
	}

	// Control replies (heartbeat echoes) go out before the next frame
	// is processed; venues enforce this on pain of disconnect.
	if ev.Reply != nil {
		if err := t.Send(ev.Reply); err != nil {
			c.logger.Warn("control reply failed", "error", err)
		}
	}

	for _, u := range ev.Books {
		if !c.cache.Apply(u) {
			c.logger.Debug("stale update discarded",
				"asset", u.AssetID,
				"timestamp", u.Timestamp,
			)
			continue
		}
		if c.onBook != nil {
			c.onBook(u)
		}
		if key, cb, ok := c.lookup(u); ok && cb != nil {
			cb(key, u)
		}
	}

	for _, tr := range ev.Trades {
		if c.onTrade != nil {
			c.onTrade(tr)
		}
	}
}

// lookup resolves the subscription callback for an update, preferring
// the asset id over the market id as key.
func (c *Conn) lookup(u book.Update) (string, Callback, bool) {
	if u.AssetID != "" {
		if cb, ok := c.registry.Get(u.AssetID); ok {
			return u.AssetID, cb, true
		}
	}
	if u.MarketID != "" {
		if cb, ok := c.registry.Get(u.MarketID); ok {
			return u.MarketID, cb, true
		}
	}
	return "", nil, false
}
