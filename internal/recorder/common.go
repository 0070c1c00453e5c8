package recorder

import "time"

// Config configures a recorder.
type Config struct {
	BatchSize     int           // Rows per database batch
	FlushInterval time.Duration // Max time a row waits before being flushed
	BufferSize    int           // Input channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 1 * time.Second,
		BufferSize:    10000,
	}
}

// Metrics contains recorder counters.
type Metrics struct {
	Inserts   int64 // Rows written
	Conflicts int64 // Rows skipped by ON CONFLICT
	Errors    int64 // Failed batch writes
	Flushes   int64 // Completed flushes
	Dropped   int64 // Events dropped because the buffer was full
}
