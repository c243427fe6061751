package reconnect

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config configures the reconnection engine.
type Config struct {
	MaxAttempts int           // attempts before giving up (default 10)
	BaseDelay   time.Duration // first backoff delay, also the floor (default 1s)
	MaxDelay    time.Duration // backoff ceiling (default 30s)
	Multiplier  float64       // backoff growth factor (default 1.5)
	JitterRatio float64       // uniform jitter as a fraction of the delay (default 0.1)
	OfflinePoll time.Duration // poll interval while the network is reported offline (default 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 10,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  1.5,
		JitterRatio: 0.1,
		OfflinePoll: 5 * time.Second,
	}
}

// Stats is a snapshot of engine state.
type Stats struct {
	Attempt   int
	Scheduled bool
	Offline   bool
}

// Engine schedules reconnection attempts with exponential backoff and
// jitter. It owns the attempt counter: the single source of truth for
// how far into an outage the client is.
//
// The engine only decides WHEN to try; the attempt callback does the
// dialing and reports the result back via Schedule (failure) or Reset
// (success).
type Engine struct {
	cfg       Config
	attempt   func()
	exhausted func()
	logger    *slog.Logger

	mu      sync.Mutex
	bo      *backoff.ExponentialBackOff
	count   int
	offline bool
	timer   *time.Timer
	gen     uint64
}

// New creates an engine. attempt fires on the engine's timer goroutine
// each time a reconnection should be tried; exhausted fires once when
// MaxAttempts is used up.
func New(cfg Config, attempt, exhausted func(), logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterRatio < 0 || cfg.JitterRatio > 1 {
		cfg.JitterRatio = def.JitterRatio
	}
	if cfg.OfflinePoll <= 0 {
		cfg.OfflinePoll = def.OfflinePoll
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.Multiplier = cfg.Multiplier
	bo.RandomizationFactor = cfg.JitterRatio
	bo.MaxInterval = cfg.MaxDelay
	bo.MaxElapsedTime = 0 // the attempt ceiling is ours, not the clock's
	bo.Reset()

	return &Engine{
		cfg:       cfg,
		attempt:   attempt,
		exhausted: exhausted,
		logger:    logger,
		bo:        bo,
	}
}

// Schedule arms the next reconnection attempt. Called after a retryable
// close and after each failed attempt. Fires exhausted instead once
// MaxAttempts attempts have been used.
func (e *Engine) Schedule() {
	e.mu.Lock()

	if e.offline {
		// No point dialing without a network; poll for it instead.
		e.armPollLocked()
		e.mu.Unlock()
		return
	}

	if e.count >= e.cfg.MaxAttempts {
		e.mu.Unlock()
		e.logger.Warn("reconnection attempts exhausted", "attempts", e.cfg.MaxAttempts)
		e.exhausted()
		return
	}

	e.count++
	delay := e.nextDelay()
	attempt := e.count
	e.armLocked(delay, e.fire)
	e.mu.Unlock()

	e.logger.Info("reconnection scheduled",
		"attempt", attempt,
		"max_attempts", e.cfg.MaxAttempts,
		"delay", delay,
	)
}

// RetryNow cancels any pending timer and attempts immediately. The
// attempt counter is untouched, so subsequent delays keep growing.
func (e *Engine) RetryNow() {
	e.mu.Lock()
	e.cancelLocked()
	e.mu.Unlock()

	e.attempt()
}

// Reset clears the attempt counter and backoff state. Called on a
// successful connection and on a manual retry out of the failed state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count = 0
	e.bo.Reset()
	e.cancelLocked()
}

// Stop cancels any pending attempt without touching the counter.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
}

// SetNetworkOnline feeds the runtime's connectivity signal. While
// offline the engine parks on a fixed poll instead of burning attempts;
// the online transition triggers an immediate attempt if one was
// parked.
func (e *Engine) SetNetworkOnline(online bool) {
	e.mu.Lock()
	was := e.offline
	e.offline = !online

	if !online {
		if e.timer != nil {
			// Swap the backoff timer for the poll.
			e.cancelLocked()
			e.armPollLocked()
		}
		e.mu.Unlock()
		return
	}

	if was && e.timer != nil {
		e.cancelLocked()
		e.mu.Unlock()
		e.logger.Info("network online, attempting immediately")
		e.attempt()
		return
	}
	e.mu.Unlock()
}

// Attempt returns the number of attempts since the last success.
func (e *Engine) Attempt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// State returns a snapshot of engine state.
func (e *Engine) State() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Attempt:   e.count,
		Scheduled: e.timer != nil,
		Offline:   e.offline,
	}
}

// nextDelay draws the next backoff delay, floored at BaseDelay. Jitter
// can push the result up to MaxDelay*(1+JitterRatio).
func (e *Engine) nextDelay() time.Duration {
	d := e.bo.NextBackOff()
	if d < e.cfg.BaseDelay {
		d = e.cfg.BaseDelay
	}
	return d
}

// armLocked schedules fn after d on a fresh generation. Stale timers
// from a cancelled generation are no-ops.
func (e *Engine) armLocked(d time.Duration, fn func(gen uint64)) {
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(d, func() { fn(gen) })
}

func (e *Engine) armPollLocked() {
	e.armLocked(e.cfg.OfflinePoll, e.poll)
}

func (e *Engine) cancelLocked() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// fire runs a scheduled attempt.
func (e *Engine) fire(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	if e.offline {
		// Went offline while waiting; park on the poll.
		e.armPollLocked()
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.attempt()
}

// poll re-checks connectivity while offline.
func (e *Engine) poll(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	if e.offline {
		e.armPollLocked()
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.attempt()
}
