package bridge

import (
	"context"
	"encoding/json"

	"github.com/wirelink-dev/wirelink/internal/protocol"
	"github.com/wirelink-dev/wirelink/internal/router"
)

// Send delivers an envelope now or queues it, depending on the phase.
// During a live-session gap the envelope goes to the live queue; while
// offline it goes to the offline queue, which rejects new entries when
// full. Perishable types (ping, typing) are never queued: they are
// dropped and counted instead.
func (c *Client) Send(env protocol.Envelope) error {
	c.mu.Lock()
	phase := c.phase
	tr := c.tr
	c.mu.Unlock()

	switch phase {
	case PhaseConnected:
		if tr == nil {
			return ErrNotConnected
		}
		data, err := env.Encode()
		if err != nil {
			return err
		}
		if err := tr.Send(data); err != nil {
			return err
		}
		c.queues.MarkSent(env.ID)
		return nil

	case PhaseConnecting, PhaseRecovering:
		if protocol.Immediate(env.Type) {
			c.droppedImmediate.Add(1)
			return nil
		}
		return c.queues.EnqueueLive(env)

	case PhaseOffline:
		if protocol.Immediate(env.Type) {
			c.droppedImmediate.Add(1)
			return nil
		}
		return c.queues.EnqueueOffline(env)

	default:
		return ErrNotConnected
	}
}

// Request sends a reply-expecting envelope and blocks until the host
// responds, the request times out, or ctx ends. An envelope id is
// assigned when missing. On a send failure the tracked request is
// released immediately so it cannot time out later.
func (c *Client) Request(ctx context.Context, env protocol.Envelope) (json.RawMessage, error) {
	if !protocol.ExpectsReply(env.Type) {
		return nil, ErrNotRequest
	}
	env.EnsureID()

	p, err := c.queues.Track(env, 0)
	if err != nil {
		return nil, err
	}
	if err := c.Send(env); err != nil {
		c.queues.Reject(env.ID, err)
		return nil, err
	}
	return p.Await(ctx)
}

// SendTyping emits a typing indicator for the given section. Typing
// signals are perishable and only go out over a live session.
func (c *Client) SendTyping(section string) error {
	env, err := protocol.New(protocol.TypeTyping, protocol.TypingPayload{
		ParticipantID: c.cfg.ParticipantID,
		Section:       section,
	})
	if err != nil {
		return err
	}
	return c.Send(env)
}

// Handle registers a handler for an inbound envelope type.
func (c *Client) Handle(t protocol.Type, h router.Handler) {
	c.routes.Register(t, h)
}

// Typing returns the participants currently typing.
func (c *Client) Typing() []router.TypingIndicator {
	return c.routes.Typing()
}

// GoOffline switches reconnection into offline mode, as when the
// runtime reports the network is gone.
func (c *Client) GoOffline() {
	c.SetNetworkOnline(false)
}

// SetNetworkOnline feeds the runtime's connectivity signal into the
// retry engine. While offline the engine polls slowly instead of
// burning backoff attempts; coming back online retries immediately.
func (c *Client) SetNetworkOnline(online bool) {
	c.mu.Lock()
	c.netDown = !online
	prev := c.phase
	next := prev
	switch {
	case !online && prev == PhaseRecovering:
		next = PhaseOffline
	case online && prev == PhaseOffline:
		next = PhaseRecovering
	}
	if next != prev {
		c.phase = next
	}
	attempt := c.engine.Attempt()
	c.mu.Unlock()

	if next != prev {
		c.logger.Info("network state changed", "online", online)
		c.afterTransition(prev, next, attempt, nil)
	}
	// May fire an attempt synchronously on the offline-to-online edge,
	// so this stays outside the lock and after the transition above.
	c.engine.SetNetworkOnline(online)
}

// RetryNow skips the current backoff delay and dials immediately. From
// the failed state it restarts the retry cycle from attempt zero.
func (c *Client) RetryNow() {
	c.mu.Lock()
	prev := c.phase
	switch prev {
	case PhaseFailed:
		c.engine.Reset()
		c.phase = PhaseRecovering
		c.lastErr = nil
		c.warned = false
	case PhaseOffline:
		c.phase = PhaseRecovering
	case PhaseRecovering:
		// Already in the cycle; just skip the wait.
	default:
		c.mu.Unlock()
		return
	}
	attempt := c.engine.Attempt()
	c.mu.Unlock()

	if prev != PhaseRecovering {
		c.afterTransition(prev, PhaseRecovering, attempt, nil)
	}
	c.logger.Info("manual retry requested")
	c.engine.RetryNow()
}

// SetVisibility pauses heartbeats while the hosting surface is hidden
// and resumes them, with an immediate ping, when it becomes visible.
func (c *Client) SetVisibility(hidden bool) {
	c.mu.Lock()
	c.hidden = hidden
	connected := c.phase == PhaseConnected
	c.mu.Unlock()

	if !connected {
		return
	}
	if hidden {
		c.monitor.Pause()
	} else {
		c.monitor.Resume()
	}
}
