package stream

import (
	"net/http"

	"github.com/rvaughn/predfeed/internal/book"
	"github.com/rvaughn/predfeed/internal/model"
)

// Event is the normalized result of parsing one inbound frame.
// A frame may legitimately produce nothing (control chatter), one or
// more book updates (some venues batch events into arrays), a trade
// relay, or a Reply that must go back onto the wire.
type Event struct {
	// Books are normalized orderbook updates, in frame order.
	Books []book.Update

	// Reply, when non-nil, is a control frame the connection MUST write
	// before processing the next inbound frame (heartbeat echo). Venues
	// that require it drop the connection when the echo is late.
	Reply []byte

	// Trades are decoded fill events, relayed verbatim to the trade
	// callback without interpretation.
	Trades []model.Trade
}

// Empty reports whether the event carries nothing actionable.
func (e *Event) Empty() bool {
	return e == nil || (len(e.Books) == 0 && e.Reply == nil && len(e.Trades) == 0)
}

// Protocol is the venue-specific half of a connection: endpoint,
// handshake material, subscription wire frames, and frame normalization.
// One Protocol instance belongs to one Conn; dispatch is static.
//
// Parse returns an error for undecodable or schema-violating frames.
// The connection logs and drops those without unwinding the receive
// loop; publishers are unreliable and one bad frame must not collapse
// the stream.
type Protocol interface {
	// Name identifies the venue in logs and errors.
	Name() string

	// URL is the WebSocket endpoint.
	URL() string

	// DialHeader returns headers injected at handshake time. Empty for
	// public channels; token/key material for private ones.
	DialHeader() http.Header

	// SubscribeFrames returns the wire frames that establish the
	// subscription for key.
	SubscribeFrames(key string) ([][]byte, error)

	// UnsubscribeFrames returns the wire frames that tear down the
	// subscription for key. Venues without per-key unsubscribe resend a
	// full-membership subscribe listing the remaining keys instead.
	UnsubscribeFrames(key string, remaining []string) ([][]byte, error)

	// Parse normalizes one raw frame.
	Parse(data []byte) (*Event, error)
}
