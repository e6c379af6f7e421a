// Package model defines shared data types used across venues.
//
// Conventions:
//   - Prices: float64 in [0, 1] (binary-market probability space)
//   - Timestamps: int64 milliseconds since Unix epoch
//   - IDs: venue-assigned strings; locally assigned event IDs are uuid.UUID
package model
