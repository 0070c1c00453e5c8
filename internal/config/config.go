package config

import "time"

// FeedConfig is the root configuration for a feed daemon instance.
type FeedConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Stream   StreamConfig   `yaml:"stream"`
	Database DBConfig       `yaml:"database"`
	Recorder RecorderConfig `yaml:"recorder"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds the live-data transport settings.
type StreamConfig struct {
	// BaseURL is the stream origin. ws/wss are used as-is; http/https are
	// upgraded to the matching socket scheme. Empty = ws://localhost:8000.
	BaseURL  string   `yaml:"base_url"`
	Channels []string `yaml:"channels"`

	// Symbols to subscribe on the market channel at startup. The
	// subscription is queued, so it survives a slow first dial.
	Symbols []string `yaml:"symbols"`

	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"` // 0 = retry forever
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	InactivityTimeout    time.Duration `yaml:"inactivity_timeout"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	SendQueueSize        int           `yaml:"send_queue_size"`
}

// DBConfig holds the TimescaleDB connection used by the recorder.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds stream persistence settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
