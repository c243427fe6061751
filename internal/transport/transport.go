package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wirelink-dev/wirelink/internal/protocol"
)

// socket implements Transport over gorilla/websocket.
type socket struct {
	cfg    Config
	logger *slog.Logger

	conn *websocket.Conn

	events chan Event
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	dialed    bool
	connected bool

	// localClose records a caller-initiated close so the terminal event
	// carries the caller's code instead of the read error's.
	localClose *Event
	closeOnce  sync.Once
}

// New creates a WebSocket transport. It does not dial.
func New(cfg Config, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}

	return &socket{
		cfg:    cfg,
		logger: logger,
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
}

// Connect dials the WebSocket. A transport dials at most once.
func (s *socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.dialed {
		s.mu.Unlock()
		return ErrAlreadyDialed
	}
	s.dialed = true
	s.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.ConnectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, s.cfg.URL, header)
	if err != nil {
		// Dial failures never opened a socket; finish the event stream
		// so consumers see a terminal close.
		s.terminate(Event{
			Kind:   EventClosed,
			Code:   protocol.CloseAbnormal,
			Reason: dialReason(dialCtx, err),
			Err:    &OpError{Op: "dial", Err: err},
		})
		return &OpError{Op: "dial", Err: err}
	}

	s.mu.Lock()
	if s.localClose != nil {
		// Closed while the dial was in flight.
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	s.emit(Event{Kind: EventOpen})

	go s.readLoop()

	s.logger.Debug("websocket connected", "url", s.cfg.URL)

	return nil
}

// dialReason distinguishes a connect timeout from other dial failures.
func dialReason(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return "connect timeout"
	}
	return "dial failed"
}

// Send writes raw bytes to the connection.
func (s *socket) Send(data []byte) error {
	s.mu.RLock()
	if !s.connected {
		s.mu.RUnlock()
		return ErrNotConnected
	}
	conn := s.conn
	s.mu.RUnlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &OpError{Op: "send", Err: err}
	}
	return nil
}

// Close tears the connection down. For any code except 1006 a close
// frame is written first; 1006 cannot appear on the wire, so the socket
// is dropped without a handshake and the close reported unclean.
func (s *socket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.localClose != nil {
		s.mu.Unlock()
		return nil
	}
	s.localClose = &Event{
		Kind:     EventClosed,
		Code:     code,
		Reason:   reason,
		WasClean: code != protocol.CloseAbnormal,
	}
	conn := s.conn
	s.connected = false
	s.mu.Unlock()

	// Signal the read loop to swallow the pending read error.
	close(s.done)

	if conn == nil {
		// Never dialed (or dial still in flight); nothing to close.
		s.terminate(*s.localClose)
		return nil
	}

	if code != protocol.CloseAbnormal {
		s.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
	}

	err := conn.Close()

	// The read loop may have exited already; make sure the terminal
	// event is delivered either way.
	s.terminate(*s.localClose)

	return err
}

// Events returns the ordered event stream.
func (s *socket) Events() <-chan Event {
	return s.events
}

// IsConnected reports whether the socket is open.
func (s *socket) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// readLoop reads messages until the connection dies, then emits the
// terminal close event.
func (s *socket) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			s.mu.Lock()
			s.connected = false
			local := s.localClose
			s.mu.Unlock()

			if local != nil {
				// Caller-initiated close; report the caller's code.
				s.terminate(*local)
				return
			}

			s.terminate(closeEvent(err))
			return
		}

		select {
		case s.events <- Event{Kind: EventMessage, Data: data, ReceivedAt: receivedAt}:
		case <-s.done:
			return
		default:
			s.logger.Warn("event buffer full, dropping message")
		}
	}
}

// closeEvent derives the terminal event from a read error. A close
// frame from the peer counts as clean; anything else is an abnormal
// 1006 close.
func closeEvent(err error) Event {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return Event{
			Kind:     EventClosed,
			Code:     ce.Code,
			Reason:   ce.Text,
			WasClean: true,
			Err:      err,
		}
	}
	return Event{
		Kind:     EventClosed,
		Code:     protocol.CloseAbnormal,
		Reason:   "connection lost",
		WasClean: false,
		Err:      err,
	}
}

// emit delivers a non-terminal event in order, unless the stream is done.
func (s *socket) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// terminate delivers the terminal close event exactly once and ends the
// stream.
func (s *socket) terminate(ev Event) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.events <- ev
		close(s.events)
	})
}
