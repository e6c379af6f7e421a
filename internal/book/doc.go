// Package book implements the normalized orderbook model and the
// per-asset cache fed by the stream dispatch path.
//
// Invariants:
//   - Bids are strictly descending, asks strictly ascending, everywhere.
//   - An update older than the cached timestamp for its asset is discarded.
//   - Snapshots replace cache state wholesale; deltas merge level-wise,
//     with size zero removing an existing level.
package book
