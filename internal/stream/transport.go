package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one raw inbound message with its local receive timestamp.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// TransportConfig configures a single WebSocket transport.
type TransportConfig struct {
	URL              string
	Header           http.Header   // Handshake headers (nil for public channels)
	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Per-write deadline
	PingInterval     time.Duration // Client keepalive ping cadence
	PingTimeout      time.Duration // Max silence before the link counts as stale
	BufferSize       int           // Inbound frame channel capacity
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		BufferSize:       1024,
	}
}

// Transport is a single-use WebSocket connection. A reconnect creates a
// fresh Transport; Close is terminal.
type Transport interface {
	// Connect performs the handshake and starts the read/keepalive loops.
	Connect(ctx context.Context) error

	// Close sends a close frame and tears the connection down. Idempotent.
	Close() error

	// Send writes one text frame. Writes are serialized internally and
	// safe from any goroutine.
	Send(data []byte) error

	// Frames returns the inbound frame channel.
	Frames() <-chan Frame

	// Errors returns the transport failure channel (capacity 1).
	Errors() <-chan error

	// IsConnected reports the live state.
	IsConnected() bool
}

// transport implements Transport over gorilla/websocket.
type transport struct {
	cfg    TransportConfig
	logger *slog.Logger

	conn *websocket.Conn

	frames chan Frame
	errs   chan error
	done   chan struct{}

	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
	lastPong  time.Time
}

// NewTransport creates an unconnected transport.
func NewTransport(cfg TransportConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &transport{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.BufferSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (t *transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil &&
			(resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return &HandshakeError{Venue: t.cfg.URL, Err: err}
		}
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.lastPong = time.Now()
	t.mu.Unlock()

	// Venue-side keepalive: answer pings, note pongs.
	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})

	go t.readLoop()
	go t.keepaliveLoop()

	t.logger.Debug("websocket connected", "url", t.cfg.URL)
	return nil
}

func (t *transport) touch() {
	t.mu.Lock()
	t.lastPong = time.Now()
	t.mu.Unlock()
}

func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	conn := t.conn
	t.mu.Unlock()

	close(t.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}

func (t *transport) Send(data []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	conn := t.conn
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *transport) Frames() <-chan Frame { return t.frames }

func (t *transport) Errors() <-chan error { return t.errs }

func (t *transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// readLoop pumps inbound frames into the frames channel until the
// connection fails or Close is called.
func (t *transport) readLoop() {
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Errors after Close are expected teardown noise.
			select {
			case <-t.done:
			default:
				select {
				case t.errs <- err:
				default:
				}
			}
			return
		}

		select {
		case t.frames <- Frame{Data: data, ReceivedAt: receivedAt}:
		case <-t.done:
			return
		default:
			t.logger.Warn("frame buffer full, dropping frame")
		}
	}
}

// keepaliveLoop sends client pings and flags the link stale when the
// venue stops answering.
func (t *transport) keepaliveLoop() {
	if t.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.RLock()
			conn := t.conn
			last := t.lastPong
			t.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(t.cfg.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					t.logger.Debug("ping failed", "error", err)
				}
			}

			if t.cfg.PingTimeout > 0 && time.Since(last) > t.cfg.PingTimeout {
				t.logger.Warn("no pong received, connection stale", "last", last)
				t.mu.Lock()
				t.connected = false
				t.mu.Unlock()
				select {
				case t.errs <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
