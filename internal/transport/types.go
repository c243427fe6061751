package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("transport not connected")
	ErrAlreadyDialed = errors.New("transport already dialed")
	ErrClosed        = errors.New("transport closed")
)

// OpError wraps a transport open or send failure.
type OpError struct {
	Op  string // "dial" or "send"
	Err error
}

func (e *OpError) Error() string {
	return "transport " + e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// EventKind discriminates transport events.
type EventKind int

const (
	// EventOpen is emitted once, after the socket finishes connecting.
	EventOpen EventKind = iota

	// EventMessage carries one inbound wire message.
	EventMessage

	// EventClosed is emitted exactly once, when the socket is gone for
	// any reason. No events follow it.
	EventClosed
)

// Event is one entry on the ordered transport event stream.
type Event struct {
	Kind       EventKind
	Data       []byte    // EventMessage only
	ReceivedAt time.Time // EventMessage only

	// EventClosed only
	Code     int
	Reason   string
	WasClean bool
	Err      error
}

// Transport owns exactly one physical socket. Instances are single-use:
// once closed, a new Transport must be dialed.
type Transport interface {
	// Connect dials the socket. Blocks until the socket is open or the
	// connect timeout expires. Fails with ErrAlreadyDialed on reuse.
	Connect(ctx context.Context) error

	// Send writes one message. Returns ErrNotConnected when the socket
	// is not open.
	Send(data []byte) error

	// Close tears the socket down with the given close code. Code 1006
	// skips the close handshake and reports an unclean close.
	Close(code int, reason string) error

	// Events returns the ordered event stream. The channel is closed
	// after EventClosed is delivered.
	Events() <-chan Event

	// IsConnected reports whether the socket is currently open.
	IsConnected() bool
}

// Factory builds a Transport for one connection attempt. The bridge
// injects either the WebSocket implementation or a test double.
type Factory func(cfg Config, logger *slog.Logger) Transport

// Config configures a single WebSocket transport.
type Config struct {
	URL            string        // WebSocket URL (e.g., ws://localhost:8137/ws)
	ConnectTimeout time.Duration // Dial + handshake deadline
	WriteTimeout   time.Duration // Write deadline for sends
	EventBuffer    int           // Event channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		EventBuffer:    64,
	}
}
