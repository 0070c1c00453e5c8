// Package database manages the TimescaleDB connection pool used by the
// stream recorders.
package database
