// Package recorder implements batch persistence for live-data streams.
//
// Recorders:
//   - Quote recorder (TimescaleDB)
//   - Signal recorder (TimescaleDB)
//
// All recorders use append-only semantics (never update, only insert) and
// drop events rather than block the dispatch path when the buffer fills.
package recorder
