package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wirelink-dev/wirelink/internal/protocol"
	"github.com/wirelink-dev/wirelink/internal/reconnect"
	"github.com/wirelink-dev/wirelink/internal/sink"
	"github.com/wirelink-dev/wirelink/internal/transport"
)

// fakeTransport is a scriptable transport for driving the client
// without sockets. Tests feed inbound envelopes with deliver and
// simulate host-side closes with drop.
type fakeTransport struct {
	dialErr error
	stall   chan struct{}

	mu     sync.Mutex
	open   bool
	closed bool
	sent   [][]byte

	events chan transport.Event
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.stall != nil {
		select {
		case <-f.stall:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.dialErr != nil {
		f.events <- transport.Event{
			Kind:   transport.EventClosed,
			Code:   protocol.CloseAbnormal,
			Reason: "dial failed",
			Err:    f.dialErr,
		}
		close(f.events)
		return f.dialErr
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return transport.ErrClosed
	}
	f.open = true
	f.mu.Unlock()
	f.events <- transport.Event{Kind: transport.EventOpen}
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open || f.closed {
		return transport.ErrNotConnected
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.open = false
	f.mu.Unlock()
	f.events <- transport.Event{
		Kind:     transport.EventClosed,
		Code:     code,
		Reason:   reason,
		WasClean: code != protocol.CloseAbnormal,
	}
	close(f.events)
	return nil
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open && !f.closed
}

// deliver pushes one inbound envelope to the client.
func (f *fakeTransport) deliver(t *testing.T, env protocol.Envelope) {
	t.Helper()
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		t.Fatalf("deliver on closed transport")
	}
	f.events <- transport.Event{Kind: transport.EventMessage, Data: data, ReceivedAt: time.Now()}
}

// drop simulates the host closing the connection with the given code.
func (f *fakeTransport) drop(code int, reason string) {
	_ = f.Close(code, reason)
}

func (f *fakeTransport) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeHost hands out fake transports and remembers every dial.
type fakeHost struct {
	mu        sync.Mutex
	trs       []*fakeTransport
	dialErrs  []error
	stallNext bool
}

func (h *fakeHost) factory(cfg transport.Config, logger *slog.Logger) transport.Transport {
	h.mu.Lock()
	defer h.mu.Unlock()
	ft := &fakeTransport{events: make(chan transport.Event, 16)}
	if len(h.dialErrs) > 0 {
		ft.dialErr = h.dialErrs[0]
		h.dialErrs = h.dialErrs[1:]
	}
	if h.stallNext {
		ft.stall = make(chan struct{})
		h.stallNext = false
	}
	h.trs = append(h.trs, ft)
	return ft
}

func (h *fakeHost) dials() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.trs)
}

// transport waits for the n-th dial (1-based) and returns its transport.
func (h *fakeHost) transport(t *testing.T, n int) *fakeTransport {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		if len(h.trs) >= n {
			ft := h.trs[n-1]
			h.mu.Unlock()
			return ft
		}
		h.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("dial %d never happened", n)
	return nil
}

type recordingState struct {
	mu      sync.Mutex
	updates []sink.ConnectionUpdate
	git     []json.RawMessage
}

func (s *recordingState) UpdateConnection(u sink.ConnectionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *recordingState) UpdateGit(d json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.git = append(s.git, d)
}

func (s *recordingState) UpdateFileSystem(json.RawMessage) {}
func (s *recordingState) UpdatePrompt(json.RawMessage)     {}
func (s *recordingState) UpdateConfig(json.RawMessage)     {}

func (s *recordingState) phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.updates))
	for i, u := range s.updates {
		out[i] = u.Phase
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles map[string][]string // level -> titles
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{titles: map[string][]string{}}
}

func (n *recordingNotifier) Success(title, _ string) { n.add("success", title) }
func (n *recordingNotifier) Warning(title, _ string) { n.add("warning", title) }
func (n *recordingNotifier) Error(title, _ string)   { n.add("error", title) }

func (n *recordingNotifier) add(level, title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles[level] = append(n.titles[level], title)
}

func (n *recordingNotifier) count(level, title string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, got := range n.titles[level] {
		if got == title {
			total++
		}
	}
	return total
}

type recordingReporter struct {
	mu      sync.Mutex
	records []sink.Record
}

func (r *recordingReporter) Report(rec sink.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingReporter) byCategory(cat string) []sink.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sink.Record
	for _, rec := range r.records {
		if rec.Category == cat {
			out = append(out, rec)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "ws://host.test/ws"
	cfg.ParticipantID = "tester"
	cfg.Reconnect = reconnect.Config{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
		Multiplier:  1.5,
		JitterRatio: 0.01,
		OfflinePoll: 15 * time.Millisecond,
	}
	cfg.Health.Interval = time.Hour
	cfg.Health.WideInterval = time.Hour
	cfg.Health.NarrowInterval = time.Hour
	cfg.Queue.FlushSpacing = time.Millisecond
	cfg.Queue.SweepInterval = time.Hour
	return cfg
}

func newTestClient(t *testing.T, host *fakeHost, cfg Config) (*Client, *recordingState, *recordingNotifier, *recordingReporter) {
	t.Helper()
	st := &recordingState{}
	nt := newRecordingNotifier()
	rp := &recordingReporter{}
	c, err := New(cfg,
		WithStateSink(st),
		WithNotifier(nt),
		WithErrorReporter(rp),
		WithTransportFactory(host.factory),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return c, st, nt, rp
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitPhase(t *testing.T, c *Client, want Phase) {
	t.Helper()
	waitFor(t, "phase "+want.String(), func() bool {
		return c.State().Phase == want
	})
}

func connectClient(t *testing.T, c *Client, host *fakeHost, n int) *fakeTransport {
	t.Helper()
	if n == 1 {
		if err := c.Connect(); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	}
	ft := host.transport(t, n)
	waitPhase(t, c, PhaseConnected)
	return ft
}

func decodeFrame(t *testing.T, data []byte) protocol.Envelope {
	t.Helper()
	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env
}

func TestConnectLifecycle(t *testing.T) {
	host := &fakeHost{}
	c, st, _, _ := newTestClient(t, host, testConfig())

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ft := host.transport(t, 1)
	waitPhase(t, c, PhaseConnected)

	// The handshake goes out before anything else.
	waitFor(t, "handshake frame", func() bool { return len(ft.frames()) >= 1 })
	first := decodeFrame(t, ft.frames()[0])
	if first.Type != protocol.TypeHandshake {
		t.Errorf("first frame type = %q, want %q", first.Type, protocol.TypeHandshake)
	}

	got := st.phases()
	want := []string{"connecting", "connected"}
	if len(got) < len(want) {
		t.Fatalf("connection updates = %v, want at least %v", got, want)
	}
	for i, phase := range want {
		if got[i] != phase {
			t.Errorf("update[%d] = %q, want %q", i, got[i], phase)
		}
	}

	c.Close()
	waitPhase(t, c, PhaseDisconnected)
	if !ftClosed(ft) {
		t.Error("transport not closed after Close")
	}
}

func ftClosed(ft *fakeTransport) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.closed
}

func TestConnectRequiresStart(t *testing.T) {
	c, err := New(testConfig(), WithTransportFactory((&fakeHost{}).factory))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Connect(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Connect error = %v, want %v", err, ErrNotStarted)
	}
}

func TestConnectCollapsesConcurrentAttempts(t *testing.T) {
	host := &fakeHost{}
	c, _, _, _ := newTestClient(t, host, testConfig())

	ft := connectClient(t, c, host, 1)
	for i := 0; i < 3; i++ {
		if err := c.Connect(); err != nil {
			t.Fatalf("repeat Connect failed: %v", err)
		}
	}
	time.Sleep(30 * time.Millisecond)
	if n := host.dials(); n != 1 {
		t.Errorf("dials = %d, want 1", n)
	}
	if !ft.IsConnected() {
		t.Error("original transport no longer connected")
	}
}

func TestCleanCloseEndsSessionWithoutRetry(t *testing.T) {
	host := &fakeHost{}
	c, _, _, _ := newTestClient(t, host, testConfig())
	ft := connectClient(t, c, host, 1)

	env, err := protocol.New(protocol.TypeCommand, map[string]string{"command": "run"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	type result struct {
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		_, err := c.Request(context.Background(), env)
		resCh <- result{err: err}
	}()
	waitFor(t, "command frame", func() bool { return len(ft.frames()) >= 2 })

	ft.drop(protocol.CloseNormal, "session ended")
	waitPhase(t, c, PhaseDisconnected)

	select {
	case res := <-resCh:
		if !errors.Is(res.err, ErrConnectionClosed) {
			t.Errorf("request error = %v, want %v", res.err, ErrConnectionClosed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request did not resolve after clean close")
	}

	// A deliberate close must not trigger reconnection.
	time.Sleep(60 * time.Millisecond)
	if n := host.dials(); n != 1 {
		t.Errorf("dials after clean close = %d, want 1", n)
	}
	snap := c.State()
	if live, offline := snap.Queue.LiveDepth, snap.Queue.OfflineDepth; live != 0 || offline != 0 {
		t.Errorf("queue depths = %d/%d, want 0/0", live, offline)
	}
}

func TestAbnormalCloseTriggersRecovery(t *testing.T) {
	host := &fakeHost{}
	c, st, nt, _ := newTestClient(t, host, testConfig())
	ft := connectClient(t, c, host, 1)

	ft.drop(protocol.CloseAbnormal, "connection reset")
	connectClient(t, c, host, 2)

	waitFor(t, "recovery updates", func() bool {
		phases := st.phases()
		return contains(phases, "recovering") && count(phases, "connected") >= 2
	})
	if got := nt.count("success", "Connection restored"); got != 1 {
		t.Errorf("restored notifications = %d, want 1", got)
	}
	if attempt := c.State().Attempt; attempt != 0 {
		t.Errorf("attempt after recovery = %d, want 0", attempt)
	}
}

func contains(list []string, want string) bool {
	return count(list, want) > 0
}

func count(list []string, want string) int {
	n := 0
	for _, got := range list {
		if got == want {
			n++
		}
	}
	return n
}

func TestPolicyCloseFailsUntilManualRetry(t *testing.T) {
	host := &fakeHost{}
	c, _, nt, rp := newTestClient(t, host, testConfig())
	ft := connectClient(t, c, host, 1)

	ft.drop(protocol.ClosePolicyViolation, "unauthorized")
	waitPhase(t, c, PhaseFailed)

	snap := c.State()
	if snap.LastError == "" {
		t.Error("failed state has no error")
	}
	time.Sleep(60 * time.Millisecond)
	if n := host.dials(); n != 1 {
		t.Errorf("dials after policy close = %d, want 1", n)
	}
	if got := nt.count("error", "Connection rejected"); got != 1 {
		t.Errorf("rejected notifications = %d, want 1", got)
	}
	if recs := rp.byCategory(sink.CategoryPolicy); len(recs) != 1 {
		t.Fatalf("policy records = %d, want 1", len(recs))
	}

	c.RetryNow()
	connectClient(t, c, host, 2)
}

func TestRetriesExhaustedEndInFailed(t *testing.T) {
	host := &fakeHost{}
	dialErr := errors.New("connection refused")
	// Initial dial plus every scheduled retry fails.
	host.dialErrs = []error{dialErr, dialErr, dialErr, dialErr}

	c, _, nt, rp := newTestClient(t, host, testConfig())
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitPhase(t, c, PhaseFailed)

	if n := host.dials(); n != 4 {
		t.Errorf("dials = %d, want 4", n)
	}
	snap := c.State()
	if snap.LastError != "reconnection failed after 3 attempts" {
		t.Errorf("last error = %q", snap.LastError)
	}
	if got := nt.count("warning", "Connection unstable"); got != 1 {
		t.Errorf("unstable notifications = %d, want 1", got)
	}
	if got := nt.count("error", "Connection failed"); got != 1 {
		t.Errorf("failed notifications = %d, want 1", got)
	}
	found := false
	for _, rec := range rp.byCategory(sink.CategoryTransport) {
		if rec.Type == "retries_exhausted" {
			found = true
		}
	}
	if !found {
		t.Error("no retries_exhausted record reported")
	}

	// Manual retry restarts the cycle from attempt zero.
	c.RetryNow()
	connectClient(t, c, host, 5)
}

func TestSupersededTransportIsDiscarded(t *testing.T) {
	host := &fakeHost{}
	host.stallNext = true
	c, _, _, _ := newTestClient(t, host, testConfig())

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	stalled := host.transport(t, 1)
	waitPhase(t, c, PhaseConnecting)

	// Abandon the in-flight dial, then connect again.
	c.Close()
	waitPhase(t, c, PhaseDisconnected)
	close(stalled.stall)

	if err := c.Connect(); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	ft := host.transport(t, 2)
	waitPhase(t, c, PhaseConnected)

	env, err := protocol.New(protocol.TypeStatus, map[string]string{"state": "ready"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if err := c.Send(env); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitFor(t, "frame on live transport", func() bool { return len(ft.frames()) >= 2 })
	if got := len(stalled.frames()); got != 0 {
		t.Errorf("abandoned transport received %d frames, want 0", got)
	}
}

func TestRequestResolvesOnResponse(t *testing.T) {
	host := &fakeHost{}
	c, _, _, _ := newTestClient(t, host, testConfig())
	ft := connectClient(t, c, host, 1)

	env, err := protocol.New(protocol.TypeCommand, map[string]string{"command": "status"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	type result struct {
		data json.RawMessage
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		data, err := c.Request(context.Background(), env)
		resCh <- result{data, err}
	}()

	waitFor(t, "command frame", func() bool { return len(ft.frames()) >= 2 })
	sentEnv := decodeFrame(t, ft.frames()[1])
	if sentEnv.ID == "" {
		t.Fatal("request went out without an id")
	}

	ft.deliver(t, protocol.Envelope{
		Type:      protocol.TypeResponse,
		ID:        sentEnv.ID,
		Data:      json.RawMessage(`{"ok":true}`),
		Timestamp: protocol.NowMillis(),
	})

	select {
	case res := <-resCh:
		if res.err != nil {
			t.Fatalf("Request failed: %v", res.err)
		}
		if string(res.data) != `{"ok":true}` {
			t.Errorf("response data = %s", res.data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request never resolved")
	}
	if n := c.State().Queue.PendingCount; n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
}

func TestRequestSendFailureReleasesPending(t *testing.T) {
	host := &fakeHost{}
	c, _, _, _ := newTestClient(t, host, testConfig())

	env, err := protocol.New(protocol.TypeCommand, map[string]string{"command": "run"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if _, err := c.Request(context.Background(), env); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Request error = %v, want %v", err, ErrNotConnected)
	}
	if n := c.State().Queue.PendingCount; n != 0 {
		t.Errorf("pending count = %d, want 0", n)
	}
}

func TestRequestRejectedOnNonRequestType(t *testing.T) {
	host := &fakeHost{}
	c, _, _, _ := newTestClient(t, host, testConfig())

	env, err := protocol.New(protocol.TypeStatus, map[string]string{"state": "idle"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if _, err := c.Request(context.Background(), env); !errors.Is(err, ErrNotRequest) {
		t.Fatalf("Request error = %v, want %v", err, ErrNotRequest)
	}
}

func TestStopRejectsInFlightRequests(t *testing.T) {
	host := &fakeHost{}
	st := &recordingState{}
	c, err := New(testConfig(),
		WithStateSink(st),
		WithTransportFactory(host.factory),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ft := connectClient(t, c, host, 1)

	env, buildErr := protocol.New(protocol.TypeCommand, map[string]string{"command": "run"})
	if buildErr != nil {
		t.Fatalf("build envelope: %v", buildErr)
	}
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), env)
		errCh <- err
	}()
	waitFor(t, "command frame", func() bool { return len(ft.frames()) >= 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("request error = %v, want %v", err, ErrClosed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("request did not resolve on Stop")
	}
}

func TestSendRequiresSession(t *testing.T) {
	host := &fakeHost{}
	c, _, _, _ := newTestClient(t, host, testConfig())

	env, err := protocol.New(protocol.TypeStatus, map[string]string{"state": "idle"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if err := c.Send(env); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send while disconnected = %v, want %v", err, ErrNotConnected)
	}
}

func TestPerishableTypesDroppedDuringRecovery(t *testing.T) {
	host := &fakeHost{}
	cfg := testConfig()
	cfg.Reconnect.BaseDelay = 50 * time.Millisecond
	c, _, _, _ := newTestClient(t, host, cfg)
	ft := connectClient(t, c, host, 1)

	ft.drop(protocol.CloseAbnormal, "connection reset")
	waitPhase(t, c, PhaseRecovering)

	if err := c.SendTyping("editor"); err != nil {
		t.Fatalf("SendTyping failed: %v", err)
	}
	if err := c.Send(protocol.NewPing()); err != nil {
		t.Fatalf("Send ping failed: %v", err)
	}

	snap := c.State()
	if snap.DroppedImmediate != 2 {
		t.Errorf("dropped immediate = %d, want 2", snap.DroppedImmediate)
	}
	if snap.Queue.LiveDepth != 0 {
		t.Errorf("live depth = %d, want 0", snap.Queue.LiveDepth)
	}
}

func TestNetworkSignalSwitchesRecoveryMode(t *testing.T) {
	host := &fakeHost{}
	cfg := testConfig()
	cfg.Reconnect.BaseDelay = 25 * time.Millisecond
	c, st, _, _ := newTestClient(t, host, cfg)
	ft := connectClient(t, c, host, 1)

	c.GoOffline()
	ft.drop(protocol.CloseAbnormal, "connection reset")
	waitPhase(t, c, PhaseOffline)

	// Parked: no dial attempts while the network is down.
	time.Sleep(80 * time.Millisecond)
	if n := host.dials(); n != 1 {
		t.Fatalf("dials while offline = %d, want 1", n)
	}

	c.SetNetworkOnline(true)
	connectClient(t, c, host, 2)

	phases := st.phases()
	if !contains(phases, "offline") {
		t.Errorf("no offline update in %v", phases)
	}
	if !contains(phases, "recovering") {
		t.Errorf("no recovering update in %v", phases)
	}
}

func TestVisibilityControlsHeartbeat(t *testing.T) {
	host := &fakeHost{}
	c, _, _, _ := newTestClient(t, host, testConfig())
	connectClient(t, c, host, 1)

	c.SetVisibility(true)
	waitFor(t, "paused monitor", func() bool { return c.State().Health.Paused })

	c.SetVisibility(false)
	waitFor(t, "resumed monitor", func() bool { return !c.State().Health.Paused })
}

func TestEventsStreamReportsTransitions(t *testing.T) {
	host := &fakeHost{}
	c, _, _, _ := newTestClient(t, host, testConfig())

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitPhase(t, c, PhaseConnected)

	var got []Phase
	for len(got) < 2 {
		select {
		case ev := <-c.Events():
			got = append(got, ev.Phase)
		case <-time.After(2 * time.Second):
			t.Fatalf("events stalled after %v", got)
		}
	}
	if got[0] != PhaseConnecting || got[1] != PhaseConnected {
		t.Errorf("event phases = %v, want [connecting connected]", got)
	}
}
