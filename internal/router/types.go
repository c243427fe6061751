package router

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wirelink-dev/wirelink/internal/protocol"
)

// Handler consumes one inbound envelope of a registered type.
type Handler func(env protocol.Envelope) error

// HealthFeed is the slice of the health monitor the router drives.
type HealthFeed interface {
	HandlePong(env protocol.Envelope)
	Penalize(points int)
}

// PendingResolver is the slice of the queue manager the router drives
// when replies arrive.
type PendingResolver interface {
	Resolve(id string, data json.RawMessage) bool
	Reject(id string, err error) bool
	MarkDelivered(id string)
}

// ProtocolError reports an envelope the router could not make sense
// of. Non-fatal: the connection stays up.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TypingIndicator is one participant currently typing somewhere.
type TypingIndicator struct {
	ParticipantID string
	Section       string
	LastSeen      time.Time
}

// Config holds configuration for the router.
type Config struct {
	TypingStaleness time.Duration // typing entries older than this are dropped
	TypingPrune     time.Duration // prune loop period
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		TypingStaleness: 10 * time.Second,
		TypingPrune:     5 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Received         int64
	Dispatched       int64
	Unknown          int64
	ProtocolErrors   int64
	UnmatchedReplies int64
	HostErrors       int64
	TypingActive     int
}
