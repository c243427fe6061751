package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wirelink-dev/wirelink/internal/health"
	"github.com/wirelink-dev/wirelink/internal/protocol"
	"github.com/wirelink-dev/wirelink/internal/sink"
)

// Router parses inbound frames and routes them to interceptors and
// registered handlers.
type Router interface {
	// Start launches the typing prune loop.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Register installs a handler for an envelope type. Intercepted
	// types (pong, ack, response, error, broadcast, typing) never
	// reach registered handlers.
	Register(t protocol.Type, h Handler)

	// Dispatch routes one raw inbound frame.
	Dispatch(data []byte) error

	// Typing returns the participants typing right now.
	Typing() []TypingIndicator

	// Stats returns current router statistics.
	Stats() Stats
}

// router is the internal implementation.
type router struct {
	cfg      Config
	logger   *slog.Logger
	health   HealthFeed
	pending  PendingResolver
	state    sink.State
	reporter sink.ErrorReporter

	handlerMu sync.RWMutex
	handlers  map[protocol.Type]Handler

	typingMu sync.Mutex
	typing   map[string]TypingIndicator

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	mu               sync.Mutex
	received         int64
	dispatched       int64
	unknown          int64
	protocolErrors   int64
	unmatchedReplies int64
	hostErrors       int64
}

// NewRouter creates a router wired to its collaborators. health and
// pending are required; state and reporter fall back to no-ops.
func NewRouter(cfg Config, hf HealthFeed, pending PendingResolver, state sink.State, reporter sink.ErrorReporter, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if state == nil {
		state = sink.NopState{}
	}
	if reporter == nil {
		reporter = sink.NopReporter{}
	}
	def := DefaultConfig()
	if cfg.TypingStaleness <= 0 {
		cfg.TypingStaleness = def.TypingStaleness
	}
	if cfg.TypingPrune <= 0 {
		cfg.TypingPrune = def.TypingPrune
	}

	return &router{
		cfg:      cfg,
		logger:   logger.With("component", "router"),
		health:   hf,
		pending:  pending,
		state:    state,
		reporter: reporter,
		handlers: make(map[protocol.Type]Handler),
		typing:   make(map[string]TypingIndicator),
	}
}

// Start launches the typing prune loop.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.pruneLoop()

	r.logger.Debug("router started", "typing_staleness", r.cfg.TypingStaleness)
	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("router shutdown timed out: %w", ctx.Err())
	}
}

// Register installs a handler for an envelope type.
func (r *router) Register(t protocol.Type, h Handler) {
	r.handlerMu.Lock()
	r.handlers[t] = h
	r.handlerMu.Unlock()
}

// Dispatch parses and routes a single inbound frame.
func (r *router) Dispatch(data []byte) error {
	r.count(&r.received)

	env, err := protocol.Decode(data)
	if err != nil {
		return r.protocolErr("malformed envelope", err)
	}
	return r.route(env)
}

func (r *router) route(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypePong:
		r.health.HandlePong(env)
		r.count(&r.dispatched)
		return nil

	case protocol.TypeAck, protocol.TypeResponse:
		r.handleReply(env)
		r.count(&r.dispatched)
		return nil

	case protocol.TypeError:
		r.handleHostError(env)
		r.count(&r.dispatched)
		return nil

	case protocol.TypeBroadcast:
		return r.handleBroadcast(env)

	case protocol.TypeTyping:
		return r.handleTyping(env)
	}

	r.handlerMu.RLock()
	h, ok := r.handlers[env.Type]
	r.handlerMu.RUnlock()

	if !ok {
		// Unknown types are ignored so newer hosts can speak to
		// older clients.
		r.count(&r.unknown)
		r.logger.Debug("ignoring unhandled envelope type", "type", env.Type)
		return nil
	}
	if err := h(env); err != nil {
		r.logger.Warn("handler failed", "type", env.Type, "error", err)
		return fmt.Errorf("handler %s: %w", env.Type, err)
	}
	r.count(&r.dispatched)
	return nil
}

// handleReply resolves the pending request a response or ack answers.
// Unmatched replies are dropped, not errors: the request may have
// timed out moments earlier.
func (r *router) handleReply(env protocol.Envelope) {
	if env.ID == "" {
		r.count(&r.unmatchedReplies)
		r.logger.Debug("reply without id dropped", "type", env.Type)
		return
	}
	if !r.pending.Resolve(env.ID, env.Data) {
		r.pending.MarkDelivered(env.ID)
		r.count(&r.unmatchedReplies)
		r.logger.Debug("reply matched no pending request", "type", env.Type, "id", env.ID)
	}
}

// handleHostError rejects the matching pending request, penalizes the
// health score, and reports the record whether or not anything matched.
func (r *router) handleHostError(env protocol.Envelope) {
	var p protocol.ErrorPayload
	msg := "host reported an error"
	if err := protocol.UnmarshalData(env, &p); err == nil && p.Message != "" {
		msg = p.Message
	}

	if env.ID != "" {
		err := fmt.Errorf("host error: %s", msg)
		if p.Code != "" {
			err = fmt.Errorf("host error %s: %s", p.Code, msg)
		}
		r.pending.Reject(env.ID, err)
	}

	r.health.Penalize(health.ErrorPenalty)
	r.reporter.Report(sink.Record{
		Type:      "host_error",
		Category:  sink.CategoryHost,
		Message:   msg,
		Timestamp: time.Now(),
	})
	r.count(&r.hostErrors)
	r.logger.Warn("host error", "code", p.Code, "message", msg, "id", env.ID)
}

// handleBroadcast fans a partial state update out to the sink domain
// selected by changeType.
func (r *router) handleBroadcast(env protocol.Envelope) error {
	var p protocol.BroadcastPayload
	if err := protocol.UnmarshalData(env, &p); err != nil {
		return r.protocolErr("malformed broadcast payload", err)
	}

	switch p.ChangeType {
	case protocol.ChangeGit:
		r.state.UpdateGit(p.Data)
	case protocol.ChangeFileSystem:
		r.state.UpdateFileSystem(p.Data)
	case protocol.ChangePrompt:
		r.state.UpdatePrompt(p.Data)
	case protocol.ChangeConfig:
		r.state.UpdateConfig(p.Data)
	default:
		r.count(&r.unknown)
		r.logger.Debug("ignoring unknown change type", "change_type", p.ChangeType)
		return nil
	}

	r.count(&r.dispatched)
	return nil
}

// handleTyping records who is typing where.
func (r *router) handleTyping(env protocol.Envelope) error {
	var p protocol.TypingPayload
	if err := protocol.UnmarshalData(env, &p); err != nil {
		return r.protocolErr("malformed typing payload", err)
	}
	if p.ParticipantID == "" {
		return r.protocolErr("typing signal missing participantId", nil)
	}

	r.typingMu.Lock()
	r.typing[p.ParticipantID] = TypingIndicator{
		ParticipantID: p.ParticipantID,
		Section:       p.Section,
		LastSeen:      time.Now(),
	}
	r.typingMu.Unlock()

	r.count(&r.dispatched)
	return nil
}

// Typing returns the participants typing right now, ordered by id.
func (r *router) Typing() []TypingIndicator {
	r.typingMu.Lock()
	out := make([]TypingIndicator, 0, len(r.typing))
	for _, ti := range r.typing {
		out = append(out, ti)
	}
	r.typingMu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

// Stats returns current statistics.
func (r *router) Stats() Stats {
	r.typingMu.Lock()
	active := len(r.typing)
	r.typingMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Received:         r.received,
		Dispatched:       r.dispatched,
		Unknown:          r.unknown,
		ProtocolErrors:   r.protocolErrors,
		UnmatchedReplies: r.unmatchedReplies,
		HostErrors:       r.hostErrors,
		TypingActive:     active,
	}
}

// pruneLoop drops typing entries that have gone stale. Runs for the
// router's whole life, independent of connection state.
func (r *router) pruneLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.TypingPrune)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.prune(time.Now())
		}
	}
}

func (r *router) prune(now time.Time) {
	r.typingMu.Lock()
	for id, ti := range r.typing {
		if now.Sub(ti.LastSeen) > r.cfg.TypingStaleness {
			delete(r.typing, id)
		}
	}
	r.typingMu.Unlock()
}

func (r *router) protocolErr(reason string, err error) error {
	r.count(&r.protocolErrors)
	r.logger.Warn("protocol error", "reason", reason, "error", err)
	return &ProtocolError{Reason: reason, Err: err}
}

func (r *router) count(c *int64) {
	r.mu.Lock()
	*c++
	r.mu.Unlock()
}
