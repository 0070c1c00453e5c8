package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultBaseURL            = "ws://localhost:8000"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultHeartbeatInterval  = 25 * time.Second
	DefaultInactivityTimeout  = 60 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultSendQueueSize      = 256
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultRecorderBatchSize  = 500
	DefaultRecorderFlush      = 1 * time.Second
	DefaultRecorderBufferSize = 10000
	DefaultHealthPort         = 8080
)

// DefaultChannelNames lists the channels dialed when none are configured.
// Sentiment is reserved and intentionally absent.
var DefaultChannelNames = []string{
	"market", "news", "alerts", "signals", "portfolio", "charts",
}

func (c *FeedConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = uuid.NewString()
	}

	// Stream defaults
	if c.Stream.BaseURL == "" {
		c.Stream.BaseURL = DefaultBaseURL
	}
	if len(c.Stream.Channels) == 0 {
		c.Stream.Channels = append([]string{}, DefaultChannelNames...)
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.HeartbeatInterval == 0 {
		c.Stream.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Stream.InactivityTimeout == 0 {
		c.Stream.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = DefaultWriteTimeout
	}
	if c.Stream.SendQueueSize == 0 {
		c.Stream.SendQueueSize = DefaultSendQueueSize
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultRecorderBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultRecorderFlush
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultRecorderBufferSize
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
