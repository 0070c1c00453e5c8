// Package model defines the typed domain events carried by the live-data
// streams.
//
// Conventions:
//   - Prices and monetary values: float64, as delivered on the wire
//   - Timestamps: int64 seconds since Unix epoch
//   - IDs: strings (server-assigned); locally generated IDs are uuids
package model
