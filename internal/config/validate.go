package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Host.URL == "" {
		return errors.New("host.url is required")
	}
	u, err := url.Parse(c.Host.URL)
	if err != nil {
		return fmt.Errorf("host.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("host.url scheme must be ws or wss, got %q", u.Scheme)
	}

	if c.Session.ParticipantID == "" {
		return errors.New("session.participant_id is required")
	}

	if c.Heartbeat.Timeout >= c.Heartbeat.Interval {
		return fmt.Errorf("heartbeat.timeout (%v) must be shorter than heartbeat.interval (%v)",
			c.Heartbeat.Timeout, c.Heartbeat.Interval)
	}

	if c.Reconnect.MaxAttempts < 1 {
		return errors.New("reconnect.max_attempts must be >= 1")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect.max_delay (%v) cannot be shorter than base_delay (%v)",
			c.Reconnect.MaxDelay, c.Reconnect.BaseDelay)
	}
	if c.Reconnect.Multiplier <= 1 {
		return fmt.Errorf("reconnect.multiplier must be > 1, got %g", c.Reconnect.Multiplier)
	}
	if c.Reconnect.JitterRatio < 0 || c.Reconnect.JitterRatio > 1 {
		return fmt.Errorf("reconnect.jitter_ratio must be between 0 and 1, got %g", c.Reconnect.JitterRatio)
	}

	if c.Queues.LiveBound < 1 {
		return errors.New("queues.live_bound must be >= 1")
	}
	if c.Queues.OfflineBound < 1 {
		return errors.New("queues.offline_bound must be >= 1")
	}
	if c.Queues.FlushBatch < 1 {
		return errors.New("queues.flush_batch must be >= 1")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}

	return nil
}
