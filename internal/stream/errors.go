package stream

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrClosed          = errors.New("connection closed")
	ErrStaleConnection = errors.New("connection stale (no ping)")
)

// HandshakeError reports an authentication or upgrade rejection at
// connect time. It is fatal: the reconnect loop never retries it, the
// caller decides what to do.
type HandshakeError struct {
	Venue string
	Err   error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%s: handshake rejected: %v", e.Venue, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
