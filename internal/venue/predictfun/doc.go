// Package predictfun implements the predict.fun WebSocket protocol.
//
// The venue wraps every server message in a type envelope: "M" frames
// carry topic data (orderbooks, wallet events and the heartbeat nonce),
// "R" frames acknowledge requests. Orderbook subscriptions are keyed by
// market id on the predictOrderbook/<id> topic and always deliver full
// snapshots. The server periodically sends a heartbeat nonce that must
// be echoed back verbatim or the connection is dropped.
package predictfun
