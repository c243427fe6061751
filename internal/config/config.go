package config

import "time"

// ClientConfig is the root configuration for a wirelink instance.
type ClientConfig struct {
	Host      HostConfig      `yaml:"host"`
	Session   SessionConfig   `yaml:"session"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Queues    QueuesConfig    `yaml:"queues"`
	Typing    TypingConfig    `yaml:"typing"`
	Log       LogConfig       `yaml:"log"`
}

// HostConfig locates the host process.
type HostConfig struct {
	URL        string `yaml:"url"`         // WebSocket URL the client dials
	ListenAddr string `yaml:"listen_addr"` // address the loopback dev host serves on
}

// SessionConfig holds per-session client settings.
type SessionConfig struct {
	ParticipantID  string        `yaml:"participant_id"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	EventBuffer    int           `yaml:"event_buffer"`
}

// HeartbeatConfig holds health monitor settings.
type HeartbeatConfig struct {
	Interval       time.Duration `yaml:"interval"`
	WideInterval   time.Duration `yaml:"wide_interval"`
	NarrowInterval time.Duration `yaml:"narrow_interval"`
	Timeout        time.Duration `yaml:"timeout"`
	SampleWindow   int           `yaml:"sample_window"`
}

// ReconnectConfig holds reconnection engine settings.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	JitterRatio float64       `yaml:"jitter_ratio"`
	OfflinePoll time.Duration `yaml:"offline_poll"`
}

// QueuesConfig holds message queue settings.
type QueuesConfig struct {
	LiveBound      int           `yaml:"live_bound"`
	OfflineBound   int           `yaml:"offline_bound"`
	FlushBatch     int           `yaml:"flush_batch"`
	FlushSpacing   time.Duration `yaml:"flush_spacing"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	PendingTTL     time.Duration `yaml:"pending_ttl"`
	StatusTTL      time.Duration `yaml:"status_ttl"`
	DedupTTL       time.Duration `yaml:"dedup_ttl"`
}

// TypingConfig holds typing indicator registry settings.
type TypingConfig struct {
	Staleness     time.Duration `yaml:"staleness"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
