// Package store persists normalized book snapshots and trade fills to
// PostgreSQL. Writes are decoupled from the receive path by a bounded
// buffer and batched with pgx; a slow or unavailable database never
// blocks frame processing.
package store
