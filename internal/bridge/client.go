package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wirelink-dev/wirelink/internal/health"
	"github.com/wirelink-dev/wirelink/internal/protocol"
	"github.com/wirelink-dev/wirelink/internal/queue"
	"github.com/wirelink-dev/wirelink/internal/reconnect"
	"github.com/wirelink-dev/wirelink/internal/router"
	"github.com/wirelink-dev/wirelink/internal/sink"
	"github.com/wirelink-dev/wirelink/internal/transport"
)

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithStateSink sets the state sink that receives connection updates
// and broadcast fan-out.
func WithStateSink(s sink.State) Option {
	return func(c *Client) { c.state = s }
}

// WithNotifier sets the notifier for user-facing connection events.
func WithNotifier(n sink.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithErrorReporter sets the structured error report receiver.
func WithErrorReporter(r sink.ErrorReporter) Option {
	return func(c *Client) { c.reporter = r }
}

// WithTransportFactory replaces the WebSocket transport, for tests.
func WithTransportFactory(f transport.Factory) Option {
	return func(c *Client) { c.factory = f }
}

// Client is the resilient messaging client. It owns one transport at a
// time and coordinates the health monitor, the reconnection engine, the
// message queues, and the inbound router around it.
//
// The client is the only component that talks to more than one of the
// others: components never call each other directly, they report to the
// client through callbacks and the client decides what happens next.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	state    sink.State
	notifier sink.Notifier
	reporter sink.ErrorReporter
	factory  transport.Factory

	monitor *health.Monitor
	engine  *reconnect.Engine
	queues  *queue.Manager
	routes  router.Router

	mu      sync.Mutex
	phase   Phase
	gen     uint64 // bumped per dial; events from older transports are stale
	tr      transport.Transport
	lastErr error
	hidden  bool
	netDown bool
	warned  bool // unstable-connection notification sent for this outage
	started bool

	events           chan Event
	droppedEvents    atomic.Int64
	droppedImmediate atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a client. The returned client is idle until Start.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("host URL is required")
	}
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}

	c := &Client{
		cfg:      cfg,
		state:    sink.NopState{},
		notifier: sink.NopNotifier{},
		reporter: sink.NopReporter{},
		events:   make(chan Event, cfg.EventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "client")
	if c.factory == nil {
		c.factory = transport.New
	}

	c.queues = queue.NewManager(cfg.Queue, c.logger)
	c.monitor = health.New(cfg.Health, c.sendHeartbeat, c.onHeartbeatTimeout, c.logger)
	c.engine = reconnect.New(cfg.Reconnect, c.onRetryAttempt, c.onRetryExhausted, c.logger)
	c.routes = router.NewRouter(cfg.Router, c.monitor, c.queues, c.state, c.reporter, c.logger)
	return c, nil
}

// Start launches the background components. It does not connect; call
// Connect for that.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("client already started")
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if err := c.queues.Start(ctx); err != nil {
		return err
	}
	if err := c.routes.Start(ctx); err != nil {
		return err
	}
	c.logger.Info("client started", "url", c.cfg.URL)
	return nil
}

// Stop disconnects and shuts the client down. The client cannot be
// restarted.
func (c *Client) Stop(ctx context.Context) error {
	c.teardown(ErrClosed, "client destroyed")

	c.mu.Lock()
	c.started = false
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("client shutdown timed out: %w", ctx.Err())
	}

	if err := c.routes.Stop(ctx); err != nil {
		return err
	}
	if err := c.queues.Stop(ctx); err != nil {
		return err
	}
	c.logger.Info("client stopped")
	return nil
}

// Connect starts a session. It collapses into the attempt already in
// flight when one exists, and restarts the retry cycle from a failed
// state.
func (c *Client) Connect() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	switch c.phase {
	case PhaseConnecting, PhaseConnected, PhaseRecovering:
		c.mu.Unlock()
		return nil
	case PhaseFailed:
		c.engine.Reset()
	}
	prev := c.phase
	c.phase = PhaseConnecting
	c.lastErr = nil
	c.startDialLocked()
	c.mu.Unlock()

	c.afterTransition(prev, PhaseConnecting, 0, nil)
	return nil
}

// Close ends the current session without stopping the client. Queued
// messages are discarded and in-flight requests fail with
// ErrConnectionClosed. Safe to call in any phase.
func (c *Client) Close() {
	c.teardown(ErrConnectionClosed, "client closed")
}

func (c *Client) teardown(cause error, reason string) {
	c.mu.Lock()
	if c.phase == PhaseDisconnected && c.tr == nil {
		c.mu.Unlock()
		return
	}
	prev := c.phase
	c.gen++
	tr := c.tr
	c.tr = nil
	c.phase = PhaseDisconnected
	c.lastErr = nil
	c.warned = false
	c.mu.Unlock()

	if prev == PhaseConnected {
		c.monitor.Stop()
	}
	c.engine.Reset()
	if n := c.queues.CancelAll(cause); n > 0 {
		c.logger.Debug("cancelled in-flight requests", "count", n)
	}
	c.queues.Clear()
	if tr != nil {
		_ = tr.Close(protocol.CloseNormal, reason)
	}
	c.logger.Info("disconnected", "reason", reason)
	c.afterTransition(prev, PhaseDisconnected, 0, nil)
}

// startDialLocked builds a fresh transport and launches its event pump.
// Caller holds c.mu.
func (c *Client) startDialLocked() {
	c.gen++
	gen := c.gen
	tr := c.factory(transport.Config{
		URL:            c.cfg.URL,
		ConnectTimeout: c.cfg.ConnectTimeout,
		WriteTimeout:   c.cfg.WriteTimeout,
	}, c.logger)
	c.tr = tr

	c.wg.Add(1)
	go c.runTransport(tr, gen)
}

// runTransport dials and drains one transport's event stream. The
// stream ends with a Closed event, so the loop always terminates.
func (c *Client) runTransport(tr transport.Transport, gen uint64) {
	defer c.wg.Done()

	if err := tr.Connect(c.ctx); err != nil {
		// The Closed event carries the failure; handled below.
		c.logger.Debug("dial failed", "error", err)
	}

	for ev := range tr.Events() {
		switch ev.Kind {
		case transport.EventOpen:
			c.onOpen(tr, gen)
		case transport.EventMessage:
			c.onMessage(gen, ev.Data)
		case transport.EventClosed:
			c.onClosed(gen, ev)
		}
	}
}

func (c *Client) onOpen(tr transport.Transport, gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.phase != PhaseConnecting {
		c.mu.Unlock()
		go tr.Close(protocol.CloseNormal, "superseded")
		return
	}
	prev := c.phase
	attempt := c.engine.Attempt()
	c.engine.Reset()
	c.phase = PhaseConnected
	c.lastErr = nil
	c.warned = false
	c.netDown = false
	hidden := c.hidden
	c.mu.Unlock()

	// Reset keeps the engine's offline flag; clear it so the next
	// outage backs off instead of polling. The reset above cancelled
	// any timer, so this cannot fire an attempt.
	c.engine.SetNetworkOnline(true)

	c.monitor.Start()
	if hidden {
		c.monitor.Pause()
	}
	c.sendHandshake(tr)

	c.wg.Add(1)
	go c.flushQueues(gen)

	if attempt > 0 {
		c.notifier.Success("Connection restored", "The host is reachable again.")
	}
	c.logger.Info("connected", "url", c.cfg.URL, "attempt", attempt)
	c.afterTransition(prev, PhaseConnected, 0, nil)
}

func (c *Client) onMessage(gen uint64, data []byte) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}
	if err := c.routes.Dispatch(data); err != nil {
		c.logger.Debug("dispatch failed", "error", err)
	}
}

func (c *Client) onClosed(gen uint64, ev transport.Event) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.tr = nil
	prev := c.phase

	switch {
	case ev.Code == protocol.CloseNormal:
		// The host ended the session deliberately; do not chase it.
		c.phase = PhaseDisconnected
		c.lastErr = nil
		c.warned = false
		c.mu.Unlock()

		if prev == PhaseConnected {
			c.monitor.Stop()
		}
		c.engine.Reset()
		if n := c.queues.CancelAll(ErrConnectionClosed); n > 0 {
			c.logger.Debug("cancelled in-flight requests", "count", n)
		}
		c.queues.Clear()
		c.logger.Info("connection closed by host", "reason", ev.Reason)
		c.afterTransition(prev, PhaseDisconnected, 0, nil)

	case protocol.FatalClose(ev.Code):
		perr := &PolicyError{Code: ev.Code, Reason: ev.Reason}
		c.phase = PhaseFailed
		c.lastErr = perr
		c.mu.Unlock()

		if prev == PhaseConnected {
			c.monitor.Stop()
		}
		c.engine.Stop()
		c.queues.CancelAll(perr)
		c.reporter.Report(sink.Record{
			Type:      "connection_rejected",
			Category:  sink.CategoryPolicy,
			Message:   perr.Error(),
			Timestamp: time.Now(),
		})
		c.notifier.Error("Connection rejected", perr.Error())
		c.logger.Error("connection rejected by host", "code", ev.Code, "reason", ev.Reason)
		c.afterTransition(prev, PhaseFailed, 0, perr)

	default:
		cause := ev.Err
		if cause == nil {
			if ev.Reason != "" {
				cause = fmt.Errorf("connection lost (code %d): %s", ev.Code, ev.Reason)
			} else {
				cause = fmt.Errorf("connection lost (code %d)", ev.Code)
			}
		}
		next := PhaseRecovering
		if c.netDown {
			next = PhaseOffline
		}
		c.phase = next
		c.lastErr = cause
		attempt := c.engine.Attempt()
		c.mu.Unlock()

		if prev == PhaseConnected {
			c.monitor.Stop()
		}
		category := sink.CategoryTransport
		if ev.Reason == "heartbeat timeout" {
			category = sink.CategoryTimeout
		}
		c.reporter.Report(sink.Record{
			Type:      "connection_lost",
			Category:  category,
			Message:   cause.Error(),
			Timestamp: time.Now(),
		})
		c.logger.Warn("connection lost",
			"code", ev.Code,
			"reason", ev.Reason,
			"clean", ev.WasClean,
		)
		c.afterTransition(prev, next, attempt, cause)
		c.engine.Schedule()
		c.maybeWarnUnstable()
	}
}

// onRetryAttempt fires on the engine's timer when a reconnection is
// due.
func (c *Client) onRetryAttempt() {
	c.mu.Lock()
	if c.phase != PhaseRecovering && c.phase != PhaseOffline {
		c.mu.Unlock()
		return
	}
	prev := c.phase
	c.phase = PhaseConnecting
	c.startDialLocked()
	attempt := c.engine.Attempt()
	c.mu.Unlock()

	c.logger.Info("reconnecting", "attempt", attempt)
	c.afterTransition(prev, PhaseConnecting, attempt, nil)
}

// onRetryExhausted fires once when the engine runs out of attempts.
func (c *Client) onRetryExhausted() {
	c.mu.Lock()
	prev := c.phase
	if prev != PhaseRecovering && prev != PhaseOffline {
		c.mu.Unlock()
		return
	}
	attempts := c.engine.Attempt()
	err := fmt.Errorf("reconnection failed after %d attempts", attempts)
	c.phase = PhaseFailed
	c.lastErr = err
	c.mu.Unlock()

	c.engine.Stop()
	c.queues.CancelAll(err)
	c.reporter.Report(sink.Record{
		Type:      "retries_exhausted",
		Category:  sink.CategoryTransport,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
	c.notifier.Error("Connection failed", "The host is unreachable. Retry manually.")
	c.logger.Error("giving up on reconnection", "attempts", attempts)
	c.afterTransition(prev, PhaseFailed, attempts, err)
}

// onHeartbeatTimeout recycles a connection the monitor has declared
// dead. The transport's Closed event drives the recovery transition.
func (c *Client) onHeartbeatTimeout() {
	c.mu.Lock()
	if c.phase != PhaseConnected || c.tr == nil {
		c.mu.Unlock()
		return
	}
	tr := c.tr
	c.mu.Unlock()

	c.logger.Warn("heartbeat timed out, recycling connection")
	_ = tr.Close(protocol.CloseAbnormal, "heartbeat timeout")
}

// sendHeartbeat delivers the monitor's pings over the live transport.
func (c *Client) sendHeartbeat(env protocol.Envelope) error {
	c.mu.Lock()
	tr := c.tr
	connected := c.phase == PhaseConnected
	c.mu.Unlock()
	if !connected || tr == nil {
		return ErrNotConnected
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return tr.Send(data)
}

func (c *Client) sendHandshake(tr transport.Transport) {
	env, err := protocol.NewHandshake()
	if err != nil {
		c.logger.Warn("failed to build handshake", "error", err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		c.logger.Warn("failed to encode handshake", "error", err)
		return
	}
	if err := tr.Send(data); err != nil {
		c.logger.Warn("failed to send handshake", "error", err)
	}
}

// flushQueues drains the queues through the transport of the given
// generation. A send failure leaves the remainder queued for the next
// session.
func (c *Client) flushQueues(gen uint64) {
	defer c.wg.Done()

	send := func(it queue.Item) error {
		c.mu.Lock()
		tr := c.tr
		ok := gen == c.gen && c.phase == PhaseConnected && tr != nil
		c.mu.Unlock()
		if !ok {
			return ErrNotConnected
		}
		data, err := it.Env.Encode()
		if err != nil {
			return err
		}
		return tr.Send(data)
	}

	if err := c.queues.Flush(c.ctx, send); err != nil {
		c.logger.Debug("flush interrupted", "error", err)
	}
}

// maybeWarnUnstable notifies once per outage when reconnection is not
// succeeding quickly.
func (c *Client) maybeWarnUnstable() {
	c.mu.Lock()
	if c.warned || c.phase != PhaseRecovering || c.engine.Attempt() < 2 {
		c.mu.Unlock()
		return
	}
	c.warned = true
	c.mu.Unlock()

	c.notifier.Warning("Connection unstable", "Attempting to reconnect.")
}

// afterTransition publishes a phase change to the state sink, the event
// stream, and the log. Called with c.mu released.
func (c *Client) afterTransition(prev, next Phase, attempt int, err error) {
	hs := c.monitor.State()
	update := sink.ConnectionUpdate{
		Phase:       next.String(),
		Attempt:     attempt,
		HealthScore: hs.Score,
		LatencyEMA:  hs.LatencyEMA,
	}
	if err != nil {
		update.Error = err.Error()
	}
	c.state.UpdateConnection(update)

	ev := Event{Prev: prev, Phase: next, Attempt: attempt, Err: err, At: time.Now()}
	select {
	case c.events <- ev:
	default:
		c.droppedEvents.Add(1)
	}
	c.logger.Debug("phase transition",
		"from", prev.String(),
		"to", next.String(),
		"attempt", attempt,
	)
}

// Events returns the phase transition stream. A slow consumer loses
// events rather than blocking the client; State is always current.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns a snapshot across all components.
func (c *Client) State() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		Phase:            c.phase,
		DroppedImmediate: c.droppedImmediate.Load(),
		DroppedEvents:    c.droppedEvents.Load(),
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	c.mu.Unlock()

	snap.Attempt = c.engine.Attempt()
	snap.Health = c.monitor.State()
	snap.Reconnect = c.engine.State()
	snap.Queue = c.queues.Stats()
	snap.Router = c.routes.Stats()
	return snap
}
