package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wirelink-dev/wirelink/internal/protocol"
)

// Outcome is the terminal result of a pending request.
type Outcome struct {
	Data json.RawMessage
	Err  error
}

// Pending is one in-flight request awaiting a reply. Obtain one from
// Manager.Track and wait on it with Await.
type Pending struct {
	m       *Manager
	env     protocol.Envelope
	sentAt  time.Time
	retries int
	timer   *time.Timer
	done    chan Outcome
}

// ID returns the request id the reply must carry.
func (p *Pending) ID() string {
	return p.env.ID
}

// Await blocks until the request resolves, is rejected, or ctx ends.
// Cancelling ctx rejects the pending entry so it does not linger.
func (p *Pending) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case out := <-p.done:
		return out.Data, out.Err
	case <-ctx.Done():
		p.m.Reject(p.env.ID, ctx.Err())
		out := <-p.done
		return out.Data, out.Err
	}
}

// PendingInfo is an observable snapshot of one tracked request.
type PendingInfo struct {
	ID      string
	Type    protocol.Type
	SentAt  time.Time
	Retries int // caller re-tracks of this id after failed attempts
}

// Track registers an envelope that expects a reply. A zero timeout
// uses the configured default. The entry is rejected with a
// TimeoutError when no reply arrives in time. There is no automatic
// retry; tracking an id again after a failed attempt records one
// caller retry on the new entry.
func (m *Manager) Track(env protocol.Envelope, timeout time.Duration) (*Pending, error) {
	if env.ID == "" {
		return nil, ErrMissingID
	}
	if timeout <= 0 {
		timeout = m.cfg.RequestTimeout
	}

	m.pendMu.Lock()
	if _, exists := m.pending[env.ID]; exists {
		m.pendMu.Unlock()
		return nil, ErrDuplicateID
	}
	p := &Pending{
		m:       m,
		env:     env,
		sentAt:  time.Now(),
		retries: m.bumpRetries(env.ID),
		done:    make(chan Outcome, 1),
	}
	id := env.ID
	p.timer = time.AfterFunc(timeout, func() {
		m.Reject(id, &TimeoutError{ID: id, After: timeout})
	})
	m.pending[id] = p
	m.pendMu.Unlock()

	m.MarkQueued(id)
	return p, nil
}

// Resolve completes a pending request with reply data. Returns false
// when no entry with that id is tracked.
func (m *Manager) Resolve(id string, data json.RawMessage) bool {
	p, ok := m.take(id)
	if !ok {
		return false
	}
	p.timer.Stop()
	p.done <- Outcome{Data: data}
	m.MarkDelivered(id)
	return true
}

// Reject completes a pending request with an error.
func (m *Manager) Reject(id string, err error) bool {
	p, ok := m.take(id)
	if !ok {
		return false
	}
	p.timer.Stop()
	p.done <- Outcome{Err: err}
	m.MarkFailed(id)
	return true
}

// CancelAll rejects every pending request with err. Called on clean
// disconnect so no waiter blocks forever.
func (m *Manager) CancelAll(err error) int {
	m.pendMu.Lock()
	all := make([]*Pending, 0, len(m.pending))
	for _, p := range m.pending {
		all = append(all, p)
	}
	m.pending = make(map[string]*Pending)
	m.pendMu.Unlock()

	for _, p := range all {
		p.timer.Stop()
		p.done <- Outcome{Err: err}
		m.MarkFailed(p.env.ID)
	}
	return len(all)
}

// PendingCount returns the number of in-flight requests.
func (m *Manager) PendingCount() int {
	m.pendMu.Lock()
	defer m.pendMu.Unlock()
	return len(m.pending)
}

// PendingInfo returns a snapshot of one tracked request.
func (m *Manager) PendingInfo(id string) (PendingInfo, bool) {
	m.pendMu.Lock()
	defer m.pendMu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return PendingInfo{}, false
	}
	return PendingInfo{
		ID:      p.env.ID,
		Type:    p.env.Type,
		SentAt:  p.sentAt,
		Retries: p.retries,
	}, true
}

// take removes and returns the pending entry for id.
func (m *Manager) take(id string) (*Pending, bool) {
	m.pendMu.Lock()
	defer m.pendMu.Unlock()
	p, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	return p, ok
}
