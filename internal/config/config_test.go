package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
host:
  url: wss://panel.example.com/ws
session:
  participant_id: reviewer-7
  connect_timeout: 4s
queues:
  live_bound: 50
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Host.URL != "wss://panel.example.com/ws" {
		t.Errorf("Host.URL = %q, want %q", cfg.Host.URL, "wss://panel.example.com/ws")
	}
	if cfg.Session.ParticipantID != "reviewer-7" {
		t.Errorf("Session.ParticipantID = %q, want %q", cfg.Session.ParticipantID, "reviewer-7")
	}
	if cfg.Session.ConnectTimeout != 4*time.Second {
		t.Errorf("Session.ConnectTimeout = %v, want %v", cfg.Session.ConnectTimeout, 4*time.Second)
	}
	if cfg.Queues.LiveBound != 50 {
		t.Errorf("Queues.LiveBound = %d, want 50", cfg.Queues.LiveBound)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_WIRELINK_URL", "ws://10.0.0.5:8137/ws")

	yaml := `
host:
  url: ${TEST_WIRELINK_URL}
session:
  participant_id: tester
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Host.URL != "ws://10.0.0.5:8137/ws" {
		t.Errorf("Host.URL = %q, want %q", cfg.Host.URL, "ws://10.0.0.5:8137/ws")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
session:
  participant_id: tester
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Host.URL != DefaultHostURL {
		t.Errorf("Host.URL = %q, want default %q", cfg.Host.URL, DefaultHostURL)
	}
	if cfg.Session.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Session.ConnectTimeout = %v, want default %v", cfg.Session.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.Heartbeat.Interval != DefaultPingInterval {
		t.Errorf("Heartbeat.Interval = %v, want default %v", cfg.Heartbeat.Interval, DefaultPingInterval)
	}
	if cfg.Reconnect.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Reconnect.MaxAttempts = %d, want default %d", cfg.Reconnect.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Queues.LiveBound != DefaultLiveBound {
		t.Errorf("Queues.LiveBound = %d, want default %d", cfg.Queues.LiveBound, DefaultLiveBound)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestLoadKeepsPartialOverrides(t *testing.T) {
	yaml := `
session:
  participant_id: tester
reconnect:
  max_attempts: 3
  base_delay: 250ms
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Reconnect.MaxAttempts != 3 {
		t.Errorf("Reconnect.MaxAttempts = %d, want 3", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Reconnect.BaseDelay != 250*time.Millisecond {
		t.Errorf("Reconnect.BaseDelay = %v, want 250ms", cfg.Reconnect.BaseDelay)
	}
	if cfg.Reconnect.MaxDelay != DefaultMaxDelay {
		t.Errorf("Reconnect.MaxDelay = %v, want default %v", cfg.Reconnect.MaxDelay, DefaultMaxDelay)
	}
}

func TestValidate(t *testing.T) {
	valid := func() ClientConfig {
		cfg := ClientConfig{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*ClientConfig) {},
			wantErr: "",
		},
		{
			name:    "missing host url",
			mutate:  func(c *ClientConfig) { c.Host.URL = "" },
			wantErr: "host.url is required",
		},
		{
			name:    "http scheme rejected",
			mutate:  func(c *ClientConfig) { c.Host.URL = "http://127.0.0.1:8137/ws" },
			wantErr: `host.url scheme must be ws or wss, got "http"`,
		},
		{
			name:    "missing participant id",
			mutate:  func(c *ClientConfig) { c.Session.ParticipantID = "" },
			wantErr: "session.participant_id is required",
		},
		{
			name: "heartbeat timeout too long",
			mutate: func(c *ClientConfig) {
				c.Heartbeat.Interval = 10 * time.Second
				c.Heartbeat.Timeout = 15 * time.Second
			},
			wantErr: "heartbeat.timeout (15s) must be shorter than heartbeat.interval (10s)",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *ClientConfig) { c.Reconnect.MaxAttempts = -1 },
			wantErr: "reconnect.max_attempts must be >= 1",
		},
		{
			name: "max delay below base delay",
			mutate: func(c *ClientConfig) {
				c.Reconnect.BaseDelay = 10 * time.Second
				c.Reconnect.MaxDelay = 5 * time.Second
			},
			wantErr: "reconnect.max_delay (5s) cannot be shorter than base_delay (10s)",
		},
		{
			name:    "jitter out of range",
			mutate:  func(c *ClientConfig) { c.Reconnect.JitterRatio = 1.5 },
			wantErr: "reconnect.jitter_ratio must be between 0 and 1, got 1.5",
		},
		{
			name:    "zero live bound",
			mutate:  func(c *ClientConfig) { c.Queues.LiveBound = -1 },
			wantErr: "queues.live_bound must be >= 1",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *ClientConfig) { c.Log.Level = "trace" },
			wantErr: `log.level must be debug, info, warn, or error, got "trace"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
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

func TestLoadAndValidateRejectsBadConfig(t *testing.T) {
	yaml := `
host:
  url: http://not-a-socket.example.com
session:
  participant_id: tester
`
	path := writeTempFile(t, yaml)

	if _, err := LoadAndValidate(path); err == nil {
		t.Fatal("LoadAndValidate accepted an http:// host URL")
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
