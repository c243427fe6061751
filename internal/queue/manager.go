package queue

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wirelink-dev/wirelink/internal/protocol"
)

// SendFunc delivers one queued item to the wire. A non-nil error
// aborts the flush and leaves the item queued.
type SendFunc func(Item) error

// Manager owns the live and offline queues, the pending-request
// tracker, and the delivery-status map.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex // guards live, offline, dedup
	live    *bounded
	offline *bounded
	dedup   map[string]time.Time // signature -> expiry

	pendMu  sync.Mutex
	pending map[string]*Pending

	statusMu sync.Mutex
	status   map[string]*statusRecord

	flushMu sync.Mutex // serializes Flush calls

	droppedLive    atomic.Int64
	droppedOffline atomic.Int64
	deduplicated   atomic.Int64
	flushed        atomic.Int64
	expiredPending atomic.Int64
	expiredStatus  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a queue manager. Call Start to run the
// maintenance sweeper.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.LiveBound <= 0 {
		cfg.LiveBound = def.LiveBound
	}
	if cfg.OfflineBound <= 0 {
		cfg.OfflineBound = def.OfflineBound
	}
	if cfg.FlushBatch <= 0 {
		cfg.FlushBatch = def.FlushBatch
	}
	if cfg.FlushSpacing <= 0 {
		cfg.FlushSpacing = def.FlushSpacing
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = def.PendingTTL
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = def.StatusTTL
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = def.DedupTTL
	}

	return &Manager{
		cfg:     cfg,
		logger:  logger.With("component", "queue"),
		live:    newBounded("live", cfg.LiveBound, evictOldest),
		offline: newBounded("offline", cfg.OfflineBound, rejectNew),
		dedup:   make(map[string]time.Time),
		pending: make(map[string]*Pending),
		status:  make(map[string]*statusRecord),
	}
}

// Start launches the maintenance sweeper.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.sweepLoop()
	m.logger.Debug("queue manager started", "sweep_interval", m.cfg.SweepInterval)
	return nil
}

// Stop halts the sweeper, waiting up to ctx for it to exit.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue manager shutdown timed out: %w", ctx.Err())
	}
}

// EnqueueLive buffers an envelope in the live queue, used for brief
// gaps while a reconnect is in flight. When full the oldest entry is
// evicted to make room.
func (m *Manager) EnqueueLive(env protocol.Envelope) error {
	return m.enqueue(env, OriginLive)
}

// EnqueueOffline buffers an envelope in the offline queue. When full
// the new message is rejected with a CapacityError.
func (m *Manager) EnqueueOffline(env protocol.Envelope) error {
	return m.enqueue(env, OriginOffline)
}

func (m *Manager) enqueue(env protocol.Envelope, origin Origin) error {
	if protocol.Immediate(env.Type) {
		return ErrNeverQueued
	}
	now := time.Now()
	it := Item{Env: env, QueuedAt: now, Origin: origin}

	m.mu.Lock()
	dedupable := protocol.Dedupable(env.Type)
	var sig string
	if dedupable {
		sig = signature(env)
		if exp, ok := m.dedup[sig]; ok && now.Before(exp) {
			m.mu.Unlock()
			m.deduplicated.Add(1)
			m.logger.Debug("duplicate suppressed", "type", env.Type)
			return nil
		}
	}

	var evicted *Item
	var err error
	if origin == OriginLive {
		evicted, err = m.live.push(it)
	} else {
		evicted, err = m.offline.push(it)
	}
	if err == nil {
		if evicted != nil && protocol.Dedupable(evicted.Env.Type) {
			delete(m.dedup, signature(evicted.Env))
		}
		// Signatures track queued entries only; a rejected message
		// leaves none behind.
		if dedupable {
			m.dedup[sig] = now.Add(m.cfg.DedupTTL)
		}
	}
	m.mu.Unlock()

	if err != nil {
		m.droppedOffline.Add(1)
		m.MarkFailed(env.ID)
		m.logger.Warn("offline queue full, message rejected", "type", env.Type)
		return err
	}
	if evicted != nil {
		m.droppedLive.Add(1)
		m.MarkFailed(evicted.Env.ID)
		m.logger.Warn("live queue full, oldest evicted", "type", evicted.Env.Type)
	}
	m.MarkQueued(env.ID)
	return nil
}

// Flush drains both queues through send: the live queue first in
// spaced batches, then the offline queue in full with each envelope
// tagged as having waited offline. Items are popped only after a
// successful send, so a failure leaves the remainder queued.
func (m *Manager) Flush(ctx context.Context, send SendFunc) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	start := time.Now()
	var sent int

	for {
		n, done, err := m.flushBatch(m.live, m.cfg.FlushBatch, false, send)
		sent += n
		if err != nil {
			return err
		}
		if done {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.FlushSpacing):
		}
	}

	n, _, err := m.flushBatch(m.offline, -1, true, send)
	sent += n
	if err != nil {
		return err
	}

	if sent > 0 {
		m.logger.Info("queues flushed", "sent", sent, "elapsed", time.Since(start))
	}
	return nil
}

// flushBatch sends up to limit items from q (limit < 0 means all).
// Reports done=true once q is empty.
func (m *Manager) flushBatch(q *bounded, limit int, offline bool, send SendFunc) (int, bool, error) {
	var sent int
	for limit < 0 || sent < limit {
		m.mu.Lock()
		it, ok := q.peek()
		m.mu.Unlock()
		if !ok {
			return sent, true, nil
		}
		if offline {
			it.Env.WasOffline = true
		}
		if err := send(it); err != nil {
			return sent, false, err
		}
		m.mu.Lock()
		q.pop()
		if protocol.Dedupable(it.Env.Type) {
			delete(m.dedup, signature(it.Env))
		}
		m.mu.Unlock()
		m.MarkSent(it.Env.ID)
		m.flushed.Add(1)
		sent++
	}
	m.mu.Lock()
	empty := q.len() == 0
	m.mu.Unlock()
	return sent, empty, nil
}

// Clear drops everything queued in both queues plus the dedup index
// and returns the number of discarded items.
func (m *Manager) Clear() int {
	m.mu.Lock()
	n := m.live.clear() + m.offline.clear()
	m.dedup = make(map[string]time.Time)
	m.mu.Unlock()
	if n > 0 {
		m.logger.Debug("queues cleared", "dropped", n)
	}
	return n
}

// Depth returns the live and offline queue lengths.
func (m *Manager) Depth() (live, offline int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live.len(), m.offline.len()
}

// MarkQueued records a queued delivery state for id.
func (m *Manager) MarkQueued(id string) { m.mark(id, StatusQueued) }

// MarkSent records that the envelope reached the wire.
func (m *Manager) MarkSent(id string) { m.mark(id, StatusSent) }

// MarkDelivered records host acknowledgement.
func (m *Manager) MarkDelivered(id string) { m.mark(id, StatusDelivered) }

// MarkFailed records a terminal failure.
func (m *Manager) MarkFailed(id string) { m.mark(id, StatusFailed) }

// statusRecord is one delivery-status map entry. retries counts caller
// re-tracks of the id after failed attempts; a delivery resets it.
type statusRecord struct {
	state     DeliveryState
	updatedAt time.Time
	retries   int
}

func (m *Manager) mark(id string, state DeliveryState) {
	if id == "" {
		return
	}
	m.statusMu.Lock()
	rec, ok := m.status[id]
	if !ok {
		rec = &statusRecord{}
		m.status[id] = rec
	}
	rec.state = state
	rec.updatedAt = time.Now()
	if state == StatusDelivered {
		rec.retries = 0
	}
	m.statusMu.Unlock()
}

// bumpRetries counts one caller re-track of an id whose previous
// attempt failed. Ids without a failed attempt on record count zero.
func (m *Manager) bumpRetries(id string) int {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	rec, ok := m.status[id]
	if !ok || rec.state != StatusFailed {
		return 0
	}
	rec.retries++
	return rec.retries
}

// Status returns the delivery status recorded for id.
func (m *Manager) Status(id string) (DeliveryStatus, bool) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	rec, ok := m.status[id]
	if !ok {
		return DeliveryStatus{}, false
	}
	return DeliveryStatus{State: rec.state, UpdatedAt: rec.updatedAt}, true
}

// Stats returns a snapshot of queue system state.
func (m *Manager) Stats() Stats {
	live, offline := m.Depth()
	m.statusMu.Lock()
	statusCount := len(m.status)
	m.statusMu.Unlock()
	return Stats{
		LiveDepth:      live,
		OfflineDepth:   offline,
		PendingCount:   m.PendingCount(),
		StatusCount:    statusCount,
		DroppedLive:    m.droppedLive.Load(),
		DroppedOffline: m.droppedOffline.Load(),
		Deduplicated:   m.deduplicated.Load(),
		Flushed:        m.flushed.Load(),
		ExpiredPending: m.expiredPending.Load(),
		ExpiredStatus:  m.expiredStatus.Load(),
	}
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep evicts pending entries and delivery statuses past their TTL
// and drops expired dedup signatures.
func (m *Manager) sweep(now time.Time) {
	m.pendMu.Lock()
	var stale []string
	for id, p := range m.pending {
		if now.Sub(p.sentAt) > m.cfg.PendingTTL {
			stale = append(stale, id)
		}
	}
	m.pendMu.Unlock()
	for _, id := range stale {
		if m.Reject(id, &TimeoutError{ID: id, After: m.cfg.PendingTTL}) {
			m.expiredPending.Add(1)
		}
	}

	var statuses int
	m.statusMu.Lock()
	for id, rec := range m.status {
		if now.Sub(rec.updatedAt) > m.cfg.StatusTTL {
			delete(m.status, id)
			statuses++
		}
	}
	m.statusMu.Unlock()
	m.expiredStatus.Add(int64(statuses))

	m.mu.Lock()
	for sig, exp := range m.dedup {
		if now.After(exp) {
			delete(m.dedup, sig)
		}
	}
	m.mu.Unlock()

	if len(stale) > 0 || statuses > 0 {
		m.logger.Debug("maintenance sweep", "expired_pending", len(stale), "expired_status", statuses)
	}
}

// signature computes the dedup key for an envelope: type plus raw
// payload bytes, so identical updates collapse regardless of id.
func signature(env protocol.Envelope) string {
	h := fnv.New64a()
	h.Write([]byte(env.Type))
	h.Write([]byte{0})
	h.Write(env.Data)
	return fmt.Sprintf("%x", h.Sum64())
}
