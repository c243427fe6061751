package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wirelink-dev/wirelink/internal/protocol"
)

// Config holds host settings.
type Config struct {
	ListenAddr        string        // TCP address for the HTTP listener
	BroadcastInterval time.Duration // Spacing between periodic state broadcasts
	WriteTimeout      time.Duration // Write deadline for outbound frames
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        "127.0.0.1:8137",
		BroadcastInterval: 15 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// Stats is a point-in-time snapshot of host counters.
type Stats struct {
	Sessions      int    // Currently connected sessions
	Revision      uint64 // Monotonic state revision carried by broadcasts
	Broadcasts    int64  // Periodic broadcast rounds emitted
	PongsSent     int64  // Heartbeat pings answered
	Responses     int64  // Reply-expecting envelopes acked and answered
	TypingRelayed int64  // Typing indicators forwarded to peer sessions
	BadEnvelopes  int64  // Inbound frames that failed to decode
}

// Host serves the loopback development endpoint.
type Host struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	server *http.Server
	ln     net.Listener
	group  *errgroup.Group
	cancel context.CancelFunc
	wg     sync.WaitGroup // session read loops

	revision      atomic.Uint64
	broadcasts    atomic.Int64
	pongsSent     atomic.Int64
	responses     atomic.Int64
	typingRelayed atomic.Int64
	badEnvelopes  atomic.Int64
}

// New creates a host. Call Start to begin listening.
func New(cfg Config, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = def.BroadcastInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	h := &Host{
		cfg:    cfg,
		logger: logger.With("component", "host"),
		upgrader: websocket.Upgrader{
			// Development host; the panel is served from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", h.handleWS)
	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	h.router = r

	return h
}

// Handler returns the HTTP handler, for mounting on a test server.
func (h *Host) Handler() http.Handler {
	return h.router
}

// Addr returns the bound listen address. Empty before Start.
func (h *Host) Addr() string {
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

// Start binds the listener and launches the serve and broadcast
// loops.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.server != nil {
		h.mu.Unlock()
		return errors.New("host already started")
	}
	h.closed = false
	h.mu.Unlock()

	ln, err := net.Listen("tcp", h.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.cfg.ListenAddr, err)
	}
	h.ln = ln
	h.server = &http.Server{Handler: h.router}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	h.group = group

	group.Go(func() error {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		h.broadcastLoop(groupCtx)
		return nil
	})

	h.logger.Info("host listening",
		"addr", ln.Addr().String(),
		"broadcast_interval", h.cfg.BroadcastInterval,
	)
	return nil
}

// Stop closes all sessions and shuts the server down, waiting up to
// ctx for the loops to exit.
func (h *Host) Stop(ctx context.Context) error {
	if h.cancel == nil {
		return nil
	}

	h.mu.Lock()
	h.closed = true
	open := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.close(protocol.CloseGoingAway, "host shutting down")
	}

	h.cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("host shutdown timed out: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		err := h.group.Wait()
		h.wg.Wait()
		errCh <- err
	}()
	select {
	case err := <-errCh:
		h.logger.Info("host stopped")
		return err
	case <-ctx.Done():
		return fmt.Errorf("host shutdown timed out: %w", ctx.Err())
	}
}

// Stats returns a snapshot of the host counters.
func (h *Host) Stats() Stats {
	h.mu.Lock()
	sessions := len(h.sessions)
	h.mu.Unlock()

	return Stats{
		Sessions:      sessions,
		Revision:      h.revision.Load(),
		Broadcasts:    h.broadcasts.Load(),
		PongsSent:     h.pongsSent.Load(),
		Responses:     h.responses.Load(),
		TypingRelayed: h.typingRelayed.Load(),
		BadEnvelopes:  h.badEnvelopes.Load(),
	}
}

func (h *Host) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := newSession(h, conn, r.RemoteAddr)
	if !h.addSession(s) {
		s.close(protocol.CloseGoingAway, "host shutting down")
		return
	}
	defer h.removeSession(s.id)

	h.logger.Info("session opened", "session_id", s.id, "remote", r.RemoteAddr)
	s.readLoop()
	h.logger.Info("session closed", "session_id", s.id)
}

func (h *Host) handleHealthz(w http.ResponseWriter, r *http.Request) {
	stats := h.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status     string `json:"status"`
		Sessions   int    `json:"sessions"`
		Revision   uint64 `json:"revision"`
		Broadcasts int64  `json:"broadcasts"`
		Responses  int64  `json:"responses"`
	}{
		Status:     "ok",
		Sessions:   stats.Sessions,
		Revision:   stats.Revision,
		Broadcasts: stats.Broadcasts,
		Responses:  stats.Responses,
	})
}

func (h *Host) addSession(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.id] = s
	h.wg.Add(1)
	return true
}

func (h *Host) removeSession(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
	h.wg.Done()
}

// peers returns every open session except the one given.
func (h *Host) peers(except string) []*session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*session, 0, len(h.sessions))
	for id, s := range h.sessions {
		if id != except {
			out = append(out, s)
		}
	}
	return out
}

// broadcastLoop emits a state broadcast every interval, rotating
// through the change types so every state domain gets exercised.
func (h *Host) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rev := h.revision.Add(1)
			changeType := changeTypes[(rev-1)%uint64(len(changeTypes))]
			env, err := broadcastEnvelope(changeType, rev)
			if err != nil {
				h.logger.Warn("build broadcast failed", "error", err)
				continue
			}
			h.fanout(env)
			h.broadcasts.Add(1)
		}
	}
}

// fanout sends the envelope to every open session. A failed send is
// logged and skipped; the read loop notices the dead connection.
func (h *Host) fanout(env protocol.Envelope) {
	for _, s := range h.peers("") {
		if err := s.send(env); err != nil {
			h.logger.Debug("broadcast send failed", "session_id", s.id, "error", err)
		}
	}
}

var changeTypes = []string{
	protocol.ChangeGit,
	protocol.ChangeFileSystem,
	protocol.ChangePrompt,
	protocol.ChangeConfig,
}

// statePayload is the synthetic state carried by host broadcasts.
type statePayload struct {
	Revision  uint64 `json:"revision"`
	ChangedAt int64  `json:"changedAt"`
}

func broadcastEnvelope(changeType string, revision uint64) (protocol.Envelope, error) {
	raw, err := json.Marshal(statePayload{
		Revision:  revision,
		ChangedAt: protocol.NowMillis(),
	})
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.New(protocol.TypeBroadcast, protocol.BroadcastPayload{
		ChangeType: changeType,
		Data:       raw,
	})
}
