// Package stream implements the real-time market-data synchronization
// layer: one Conn owns one WebSocket transport and its receive loop,
// multiplexes orderbook subscriptions over it, normalizes venue frames
// through a Protocol, and feeds the book cache.
//
// Lifecycle: Disconnected -> Connecting -> Connected, with transport
// failures driving Reconnecting under an exponential-backoff policy and
// Close (or exhausted retries) ending in Closed. Subscriptions persist
// across reconnects until explicitly removed.
package stream
