package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHostURL        = "ws://127.0.0.1:8137/ws"
	DefaultListenAddr     = "127.0.0.1:8137"
	DefaultParticipantID  = "wirelink"
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultEventBuffer    = 32
	DefaultPingInterval   = 30 * time.Second
	DefaultWideInterval   = 45 * time.Second
	DefaultNarrowInterval = 15 * time.Second
	DefaultPongTimeout    = 10 * time.Second
	DefaultSampleWindow   = 20
	DefaultMaxAttempts    = 10
	DefaultBaseDelay      = 1 * time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultMultiplier     = 1.5
	DefaultJitterRatio    = 0.1
	DefaultOfflinePoll    = 5 * time.Second
	DefaultLiveBound      = 100
	DefaultOfflineBound   = 100
	DefaultFlushBatch     = 5
	DefaultFlushSpacing   = 50 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
	DefaultSweepInterval  = 2 * time.Minute
	DefaultPendingTTL     = 5 * time.Minute
	DefaultStatusTTL      = 3 * time.Minute
	DefaultDedupTTL       = 30 * time.Second
	DefaultTypingStale    = 10 * time.Second
	DefaultTypingPrune    = 5 * time.Second
	DefaultLogLevel       = "info"
)

func (c *ClientConfig) applyDefaults() {
	// Host defaults
	if c.Host.URL == "" {
		c.Host.URL = DefaultHostURL
	}
	if c.Host.ListenAddr == "" {
		c.Host.ListenAddr = DefaultListenAddr
	}

	// Session defaults
	if c.Session.ParticipantID == "" {
		c.Session.ParticipantID = DefaultParticipantID
	}
	if c.Session.ConnectTimeout == 0 {
		c.Session.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = DefaultWriteTimeout
	}
	if c.Session.EventBuffer == 0 {
		c.Session.EventBuffer = DefaultEventBuffer
	}

	// Heartbeat defaults
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = DefaultPingInterval
	}
	if c.Heartbeat.WideInterval == 0 {
		c.Heartbeat.WideInterval = DefaultWideInterval
	}
	if c.Heartbeat.NarrowInterval == 0 {
		c.Heartbeat.NarrowInterval = DefaultNarrowInterval
	}
	if c.Heartbeat.Timeout == 0 {
		c.Heartbeat.Timeout = DefaultPongTimeout
	}
	if c.Heartbeat.SampleWindow == 0 {
		c.Heartbeat.SampleWindow = DefaultSampleWindow
	}

	// Reconnect defaults
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = DefaultMultiplier
	}
	if c.Reconnect.JitterRatio == 0 {
		c.Reconnect.JitterRatio = DefaultJitterRatio
	}
	if c.Reconnect.OfflinePoll == 0 {
		c.Reconnect.OfflinePoll = DefaultOfflinePoll
	}

	// Queue defaults
	if c.Queues.LiveBound == 0 {
		c.Queues.LiveBound = DefaultLiveBound
	}
	if c.Queues.OfflineBound == 0 {
		c.Queues.OfflineBound = DefaultOfflineBound
	}
	if c.Queues.FlushBatch == 0 {
		c.Queues.FlushBatch = DefaultFlushBatch
	}
	if c.Queues.FlushSpacing == 0 {
		c.Queues.FlushSpacing = DefaultFlushSpacing
	}
	if c.Queues.RequestTimeout == 0 {
		c.Queues.RequestTimeout = DefaultRequestTimeout
	}
	if c.Queues.SweepInterval == 0 {
		c.Queues.SweepInterval = DefaultSweepInterval
	}
	if c.Queues.PendingTTL == 0 {
		c.Queues.PendingTTL = DefaultPendingTTL
	}
	if c.Queues.StatusTTL == 0 {
		c.Queues.StatusTTL = DefaultStatusTTL
	}
	if c.Queues.DedupTTL == 0 {
		c.Queues.DedupTTL = DefaultDedupTTL
	}

	// Typing defaults
	if c.Typing.Staleness == 0 {
		c.Typing.Staleness = DefaultTypingStale
	}
	if c.Typing.PruneInterval == 0 {
		c.Typing.PruneInterval = DefaultTypingPrune
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
