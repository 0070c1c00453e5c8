package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-feed
stream:
  base_url: wss://stream.example.com
  channels: [market, news]
  reconnect_base_delay: 2s
database:
  host: localhost
  port: 5432
  name: test_db
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-feed" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-feed")
	}
	if cfg.Stream.BaseURL != "wss://stream.example.com" {
		t.Errorf("Stream.BaseURL = %q, want %q", cfg.Stream.BaseURL, "wss://stream.example.com")
	}
	if len(cfg.Stream.Channels) != 2 || cfg.Stream.Channels[0] != "market" {
		t.Errorf("Stream.Channels = %v, want [market news]", cfg.Stream.Channels)
	}
	if cfg.Stream.ReconnectBaseDelay != 2*time.Second {
		t.Errorf("Stream.ReconnectBaseDelay = %v, want 2s", cfg.Stream.ReconnectBaseDelay)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-feed
database:
  host: localhost
  name: test_db
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-feed
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Stream.BaseURL != DefaultBaseURL {
		t.Errorf("Stream.BaseURL = %q, want default %q", cfg.Stream.BaseURL, DefaultBaseURL)
	}
	if cfg.Stream.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Stream.ReconnectBaseDelay = %v, want default %v", cfg.Stream.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Stream.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("Stream.HeartbeatInterval = %v, want default %v", cfg.Stream.HeartbeatInterval, DefaultHeartbeatInterval)
	}
	if cfg.Stream.InactivityTimeout != DefaultInactivityTimeout {
		t.Errorf("Stream.InactivityTimeout = %v, want default %v", cfg.Stream.InactivityTimeout, DefaultInactivityTimeout)
	}
	if len(cfg.Stream.Channels) != len(DefaultChannelNames) {
		t.Errorf("Stream.Channels = %v, want defaults %v", cfg.Stream.Channels, DefaultChannelNames)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want default %d", cfg.Health.Port, DefaultHealthPort)
	}
}

func TestLoadWithDefaults_GeneratesInstanceID(t *testing.T) {
	path := writeTempFile(t, "stream:\n  base_url: ws://localhost:9000\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Instance.ID == "" {
		t.Error("Instance.ID should be generated when missing")
	}
}

func TestValidate(t *testing.T) {
	validStream := StreamConfig{
		BaseURL:            DefaultBaseURL,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		HeartbeatInterval:  25 * time.Second,
		InactivityTimeout:  60 * time.Second,
		SendQueueSize:      256,
	}

	tests := []struct {
		name    string
		cfg     FeedConfig
		wantErr string
	}{
		{
			name:    "missing instance id",
			cfg:     FeedConfig{},
			wantErr: "instance.id is required",
		},
		{
			name: "zero base delay",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test"},
			},
			wantErr: "stream.reconnect_base_delay must be positive",
		},
		{
			name: "max delay below base delay",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test"},
				Stream: StreamConfig{
					ReconnectBaseDelay: 10 * time.Second,
					ReconnectMaxDelay:  time.Second,
				},
			},
			wantErr: "stream.reconnect_max_delay (1s) cannot be less than reconnect_base_delay (10s)",
		},
		{
			name: "recorder enabled without database host",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test"},
				Stream:   validStream,
				Recorder: RecorderConfig{Enabled: true, BatchSize: 100, BufferSize: 100},
				Health:   HealthConfig{Port: 8080},
			},
			wantErr: "database.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test"},
				Stream:   validStream,
				Database: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10},
				Recorder: RecorderConfig{Enabled: true, BatchSize: 100, BufferSize: 100},
				Health:   HealthConfig{Port: 8080},
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "valid config without recorder",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test"},
				Stream:   validStream,
				Health:   HealthConfig{Port: 8080},
			},
			wantErr: "",
		},
		{
			name: "valid config with recorder",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test"},
				Stream:   validStream,
				Database: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2},
				Recorder: RecorderConfig{Enabled: true, BatchSize: 500, BufferSize: 10000, FlushInterval: time.Second},
				Health:   HealthConfig{Port: 8080},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
