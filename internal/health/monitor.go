package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wirelink-dev/wirelink/internal/protocol"
)

// Score adjustment rules. The score moves in small steps on good
// round trips and larger steps on bad ones, so a healthy connection
// recovers slowly from a rough patch.
const (
	MaxScore = 100
	MinScore = 0

	rewardBelow   = 100 * time.Millisecond
	penalizeAbove = 1000 * time.Millisecond
	scoreReward   = 1
	scorePenalty  = 5

	// ErrorPenalty is subtracted for an explicit error envelope from
	// the host.
	ErrorPenalty = 10

	widenAbove  = 90
	narrowBelow = 50

	emaWeight = 0.2 // weight of the newest sample in the latency EMA
)

// SendFunc delivers a ping envelope to the host.
type SendFunc func(protocol.Envelope) error

// Config configures the health monitor.
type Config struct {
	Interval       time.Duration // base ping interval
	WideInterval   time.Duration // interval while score > 90
	NarrowInterval time.Duration // interval while score < 50
	Timeout        time.Duration // pong deadline after each ping
	SampleWindow   int           // latency ring buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       30 * time.Second,
		WideInterval:   45 * time.Second,
		NarrowInterval: 15 * time.Second,
		Timeout:        10 * time.Second,
		SampleWindow:   20,
	}
}

// Snapshot is a point-in-time view of connection health.
type Snapshot struct {
	Score               int
	LatencyEMA          float64 // milliseconds
	SampleAverage       float64 // milliseconds, over the ring buffer
	Samples             int
	ConsecutiveTimeouts int
	LastPongAt          time.Time
	PingsSent           int64
	PongsReceived       int64
	Paused              bool
}

// Monitor probes the connection with envelope pings and keeps a 0-100
// health score. It detects a dead connection by pong timeout and
// reports it through the onTimeout callback; it never reconnects
// anything itself.
//
// The monitor runs only while the client is connected: the bridge
// starts it on connect and stops it on any disconnect. Score and
// latency EMA survive restarts so the score reflects recent quality,
// not just the current session.
type Monitor struct {
	cfg       Config
	send      SendFunc
	onTimeout func()
	logger    *slog.Logger

	mu                  sync.Mutex
	score               int
	ema                 float64
	emaSeeded           bool
	samples             []float64
	sampleNext          int
	sampleCount         int
	consecutiveTimeouts int
	lastPongAt          time.Time
	paused              bool
	running             bool
	pingID              string
	pingSentAt          time.Time
	pingsSent           int64
	pongsReceived       int64

	done   chan struct{}
	pongCh chan struct{}
	nudge  chan struct{}
	wg     sync.WaitGroup
}

// New creates a health monitor. send delivers pings; onTimeout fires
// once per missed pong deadline.
func New(cfg Config, send SendFunc, onTimeout func(), logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.WideInterval <= 0 {
		cfg.WideInterval = def.WideInterval
	}
	if cfg.NarrowInterval <= 0 {
		cfg.NarrowInterval = def.NarrowInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = def.SampleWindow
	}

	return &Monitor{
		cfg:       cfg,
		send:      send,
		onTimeout: onTimeout,
		logger:    logger,
		score:     MaxScore,
		samples:   make([]float64, cfg.SampleWindow),
		nudge:     make(chan struct{}, 1),
	}
}

// Start begins the heartbeat loop. No-op if already running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})
	m.pongCh = make(chan struct{}, 1)

	m.wg.Add(1)
	go m.run(m.done, m.pongCh)
}

// Stop halts the heartbeat loop. Score and EMA are preserved.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.pingID = ""
	done := m.done
	m.mu.Unlock()

	close(done)
	m.wg.Wait()
}

// Pause suspends pings while the hosting document is hidden.
func (m *Monitor) Pause() {
	m.mu.Lock()
	m.paused = true
	m.pingID = ""
	m.mu.Unlock()
	m.signal()
}

// Resume restarts pings after visibility is restored. The first ping
// goes out immediately.
func (m *Monitor) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	m.signal()
}

// HandlePong feeds a pong envelope back into the monitor. Pongs that do
// not match the outstanding ping id are ignored.
func (m *Monitor) HandlePong(env protocol.Envelope) {
	m.mu.Lock()
	if m.pingID == "" || env.ID != m.pingID {
		m.mu.Unlock()
		m.logger.Debug("ignoring unmatched pong", "id", env.ID)
		return
	}
	latency := time.Since(m.pingSentAt)
	m.pingID = ""
	m.pongsReceived++
	m.consecutiveTimeouts = 0
	m.lastPongAt = time.Now()
	ch := m.pongCh
	m.mu.Unlock()

	m.observe(latency)

	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Penalize lowers the health score, floored at zero. The router calls
// this for explicit error envelopes from the host.
func (m *Monitor) Penalize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.score -= n
	if m.score < MinScore {
		m.score = MinScore
	}
}

// Score returns the current health score.
func (m *Monitor) Score() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.score
}

// State returns a snapshot of the monitor.
func (m *Monitor) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum float64
	for i := 0; i < m.sampleCount; i++ {
		sum += m.samples[i]
	}
	avg := 0.0
	if m.sampleCount > 0 {
		avg = sum / float64(m.sampleCount)
	}

	return Snapshot{
		Score:               m.score,
		LatencyEMA:          m.ema,
		SampleAverage:       avg,
		Samples:             m.sampleCount,
		ConsecutiveTimeouts: m.consecutiveTimeouts,
		LastPongAt:          m.lastPongAt,
		PingsSent:           m.pingsSent,
		PongsReceived:       m.pongsReceived,
		Paused:              m.paused,
	}
}

// observe folds one round-trip latency into the EMA, the score, and
// the sample ring.
func (m *Monitor) observe(latency time.Duration) {
	ms := float64(latency) / float64(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.emaSeeded {
		m.ema = ms
		m.emaSeeded = true
	} else {
		m.ema = m.ema*(1-emaWeight) + ms*emaWeight
	}

	switch {
	case latency < rewardBelow:
		if m.score < MaxScore {
			m.score += scoreReward
		}
	case latency > penalizeAbove:
		m.score -= scorePenalty
		if m.score < MinScore {
			m.score = MinScore
		}
	}

	m.samples[m.sampleNext] = ms
	m.sampleNext = (m.sampleNext + 1) % len(m.samples)
	if m.sampleCount < len(m.samples) {
		m.sampleCount++
	}
}

// interval picks the next ping interval from the current score.
func (m *Monitor) interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.score > widenAbove:
		return m.cfg.WideInterval
	case m.score < narrowBelow:
		return m.cfg.NarrowInterval
	default:
		return m.cfg.Interval
	}
}

func (m *Monitor) isPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

func (m *Monitor) signal() {
	select {
	case m.nudge <- struct{}{}:
	default:
	}
}

// run is the heartbeat loop: wait out the interval, ping, then wait for
// the pong or the deadline. On a missed deadline it reports the timeout
// and parks until Stop.
func (m *Monitor) run(done chan struct{}, pongCh chan struct{}) {
	defer m.wg.Done()

	timer := time.NewTimer(m.interval())
	defer timer.Stop()

	for {
		select {
		case <-done:
			return
		case <-m.nudge:
			if m.isPaused() {
				if !m.waitResume(done) {
					return
				}
			}
			// Resume pings immediately.
			if !m.cycle(done, pongCh) {
				<-done
				return
			}
			resetTimer(timer, m.interval())
		case <-timer.C:
			if m.isPaused() {
				if !m.waitResume(done) {
					return
				}
			}
			if !m.cycle(done, pongCh) {
				<-done
				return
			}
			resetTimer(timer, m.interval())
		}
	}
}

// cycle sends one ping and waits for its pong. Returns false on a
// heartbeat timeout.
func (m *Monitor) cycle(done chan struct{}, pongCh chan struct{}) bool {
	for {
		m.sendPing()

		deadline := time.NewTimer(m.cfg.Timeout)

	waiting:
		for {
			select {
			case <-done:
				deadline.Stop()
				return true
			case <-pongCh:
				deadline.Stop()
				return true
			case <-m.nudge:
				if !m.isPaused() {
					continue waiting
				}
				// Hidden mid-wait: abandon this ping without penalty.
				m.clearPing()
				deadline.Stop()
				if !m.waitResume(done) {
					return true
				}
				break waiting
			case <-deadline.C:
				m.mu.Lock()
				m.consecutiveTimeouts++
				m.pingID = ""
				count := m.consecutiveTimeouts
				m.mu.Unlock()

				m.logger.Warn("heartbeat timeout",
					"timeout", m.cfg.Timeout,
					"consecutive", count,
				)
				// The callback belongs to this monitoring session: if
				// Stop has already run by the time the goroutine is
				// scheduled, the timeout is stale and must not fire.
				go func() {
					select {
					case <-done:
					default:
						m.onTimeout()
					}
				}()
				return false
			}
		}
	}
}

// waitResume parks until visibility is restored. Returns false when
// the monitor stops first.
func (m *Monitor) waitResume(done chan struct{}) bool {
	for {
		select {
		case <-done:
			return false
		case <-m.nudge:
			if !m.isPaused() {
				return true
			}
		}
	}
}

func (m *Monitor) sendPing() {
	env := protocol.NewPing()

	m.mu.Lock()
	m.pingID = env.ID
	m.pingSentAt = time.Now()
	m.pingsSent++
	m.mu.Unlock()

	if err := m.send(env); err != nil {
		// The pong deadline will catch a dead transport.
		m.logger.Debug("failed to send ping", "error", err)
	}
}

func (m *Monitor) clearPing() {
	m.mu.Lock()
	m.pingID = ""
	m.mu.Unlock()
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
