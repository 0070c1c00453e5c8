package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrStaleConnection    = errors.New("connection stale (no inbound activity)")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// State describes the lifecycle of a Conn.
//
// A Conn moves None → Connecting → Open, drops to Closed on any failure,
// and re-enters Connecting when the reconnect timer fires. Closing is only
// observable during an explicit Disconnect.
type State int

const (
	StateNone State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures a Conn.
type Config struct {
	URL                  string        // WebSocket URL (e.g., ws://localhost:8000/ws/market)
	ReconnectBaseDelay   time.Duration // First reconnect delay (doubles per attempt)
	ReconnectMaxDelay    time.Duration // Delay plateau
	MaxReconnectAttempts int           // 0 = retry forever
	HeartbeatInterval    time.Duration // Application-level ping cadence while open
	InactivityTimeout    time.Duration // Max time without inbound traffic before forced reconnect
	HandshakeTimeout     time.Duration // Dial timeout
	WriteTimeout         time.Duration // Write deadline for sends
	SendQueueSize        int           // Max queued outbound messages while not open (oldest dropped)
}

// DefaultConfig returns sensible defaults. URL must still be set.
func DefaultConfig() Config {
	return Config{
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		HeartbeatInterval:  25 * time.Second,
		InactivityTimeout:  60 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       5 * time.Second,
		SendQueueSize:      256,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.InactivityTimeout == 0 {
		cfg.InactivityTimeout = def.InactivityTimeout
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendQueueSize == 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	return cfg
}

// heartbeat is the application-level ping frame sent while open.
type heartbeat struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

// Stats provides counters for monitoring a Conn.
type Stats struct {
	State             State
	QueueLen          int
	QueueDropped      int64
	ReconnectAttempts int
}
