// Package polymarket implements the Polymarket CLOB market channel:
// the WebSocket protocol for the public orderbook stream and a minimal
// REST client for resolving markets to token ids and tick sizes.
//
// The market channel is public (no handshake auth). Subscriptions are
// keyed by asset (token) id; the venue has no per-key unsubscribe, so
// removal resends a full-membership subscribe frame.
package polymarket
