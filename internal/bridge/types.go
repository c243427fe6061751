package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/wirelink-dev/wirelink/internal/health"
	"github.com/wirelink-dev/wirelink/internal/queue"
	"github.com/wirelink-dev/wirelink/internal/reconnect"
	"github.com/wirelink-dev/wirelink/internal/router"
)

// Phase is the connection lifecycle state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseRecovering
	PhaseOffline
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseRecovering:
		return "recovering"
	case PhaseOffline:
		return "offline"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Errors
var (
	// ErrClosed rejects pending requests when the client is torn down.
	ErrClosed = errors.New("client destroyed")

	// ErrConnectionClosed rejects pending requests when the host ends
	// the session cleanly.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotConnected is returned when an operation needs a session and
	// none exists or is being recovered.
	ErrNotConnected = errors.New("not connected")

	// ErrNotStarted is returned by Connect before Start has run.
	ErrNotStarted = errors.New("client not started")

	// ErrNotRequest is returned by Request for envelope types that do
	// not expect a reply.
	ErrNotRequest = errors.New("envelope type does not expect a reply")
)

// PolicyError is a non-retryable close: the host refused the session
// and a manual retry is required.
type PolicyError struct {
	Code   int
	Reason string
}

func (e *PolicyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connection rejected (code %d): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("connection rejected (code %d)", e.Code)
}

// Event records one phase transition.
type Event struct {
	Prev    Phase
	Phase   Phase
	Attempt int
	Err     error
	At      time.Time
}

// Snapshot is an observable view of the whole client.
type Snapshot struct {
	Phase            Phase
	Attempt          int
	LastError        string
	Health           health.Snapshot
	Reconnect        reconnect.Stats
	Queue            queue.Stats
	Router           router.Stats
	DroppedImmediate int64
	DroppedEvents    int64
}

// Config configures the client and its components.
type Config struct {
	URL            string        // host WebSocket URL (ws:// or wss://)
	ParticipantID  string        // identity attached to outbound typing signals
	ConnectTimeout time.Duration // dial deadline
	WriteTimeout   time.Duration // per-write deadline
	EventBuffer    int           // Events() channel capacity

	Health    health.Config
	Reconnect reconnect.Config
	Queue     queue.Config
	Router    router.Config
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		EventBuffer:    32,
		Health:         health.DefaultConfig(),
		Reconnect:      reconnect.DefaultConfig(),
		Queue:          queue.DefaultConfig(),
		Router:         router.DefaultConfig(),
	}
}
