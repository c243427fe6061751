package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/wirelink-dev/wirelink/internal/protocol"
)

// Errors
var (
	ErrNeverQueued = errors.New("envelope type is never queued")
	ErrDuplicateID = errors.New("pending request id already registered")
	ErrMissingID   = errors.New("pending envelope requires an id")
)

// CapacityError reports a message dropped because a queue is full.
type CapacityError struct {
	Queue string
	Bound int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s queue full (bound %d)", e.Queue, e.Bound)
}

// TimeoutError reports a pending request that never got its reply.
type TimeoutError struct {
	ID    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return "command execution timeout"
}

// Origin tags which queue a message waited in.
type Origin string

const (
	OriginLive    Origin = "live"
	OriginOffline Origin = "offline"
)

// Item wraps an envelope waiting in a queue.
type Item struct {
	Env      protocol.Envelope
	QueuedAt time.Time
	Origin   Origin
}

// DeliveryState tracks an envelope through its lifecycle.
type DeliveryState string

const (
	StatusQueued    DeliveryState = "queued"
	StatusSent      DeliveryState = "sent"
	StatusDelivered DeliveryState = "delivered"
	StatusFailed    DeliveryState = "failed"
)

// DeliveryStatus is one entry in the delivery-status map.
type DeliveryStatus struct {
	State     DeliveryState
	UpdatedAt time.Time
}

// Config configures the message queue system.
type Config struct {
	LiveBound      int           // live queue capacity (evict-oldest)
	OfflineBound   int           // offline queue capacity (reject-new)
	FlushBatch     int           // live-queue flush batch size
	FlushSpacing   time.Duration // pause between flush batches
	RequestTimeout time.Duration // default pending-request timeout
	SweepInterval  time.Duration // maintenance sweep period
	PendingTTL     time.Duration // pending entries older than this are evicted
	StatusTTL      time.Duration // delivery-status entries older than this are evicted
	DedupTTL       time.Duration // dedup signatures expire after this
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LiveBound:      100,
		OfflineBound:   100,
		FlushBatch:     5,
		FlushSpacing:   50 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		SweepInterval:  2 * time.Minute,
		PendingTTL:     5 * time.Minute,
		StatusTTL:      3 * time.Minute,
		DedupTTL:       30 * time.Second,
	}
}

// Stats is a snapshot of queue system state.
type Stats struct {
	LiveDepth      int
	OfflineDepth   int
	PendingCount   int
	StatusCount    int
	DroppedLive    int64
	DroppedOffline int64
	Deduplicated   int64
	Flushed        int64
	ExpiredPending int64
	ExpiredStatus  int64
}
