package eventbridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/transport"
	"github.com/kandev/mc-agent-core/pkg/protocol"
)

func testLogger(t *testing.T) *obslog.Logger {
	t.Helper()
	log, err := obslog.New(obslog.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func testCfg() config.AgentBridge {
	return config.AgentBridge{
		URL:                   "ws://planner.example/agent",
		ConnectTimeoutMs:      1000,
		SendTimeoutMs:         1000,
		HealthcheckIntervalMs: 1000,
		ReconnectDelayMs:      100,
		MaxRetries:            2,
		BatchIntervalMs:       50,
		BatchMaxSize:          10,
		QueueMaxSize:          3,
	}
}

func ev(kind protocol.EventKind) protocol.AgentEvent {
	return protocol.NewAgentEvent(kind, "agent-1", 0, nil)
}

// failingSession always errors on WriteMessage, used to exercise the
// flusher's requeue-on-failure path deterministically.
type failingSession struct {
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	writes    int
}

func newFailingSession() *failingSession { return &failingSession{closed: make(chan struct{})} }

func (f *failingSession) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-f.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (f *failingSession) WriteMessage(ctx context.Context, data []byte) error {
	f.mu.Lock()
	f.writes++
	f.mu.Unlock()
	return errors.New("write failed")
}

// Writes reports how many times WriteMessage has been attempted, used to
// assert the bounded retry count (spec.md §4.2).
func (f *failingSession) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *failingSession) Ping(ctx context.Context) error { return nil }
func (f *failingSession) OnPong(fn func())               {}
func (f *failingSession) RemoteAddr() string             { return "failing" }
func (f *failingSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// pingFailSession always errors on Ping, used to exercise the
// supervisor's missed-healthcheck reconnect path deterministically.
type pingFailSession struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func newPingFailSession() *pingFailSession { return &pingFailSession{closed: make(chan struct{})} }

func (p *pingFailSession) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-p.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (p *pingFailSession) WriteMessage(ctx context.Context, data []byte) error { return nil }
func (p *pingFailSession) Ping(ctx context.Context) error                     { return errors.New("ping failed") }
func (p *pingFailSession) OnPong(fn func())                                   {}
func (p *pingFailSession) RemoteAddr() string                                 { return "pingfail" }
func (p *pingFailSession) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func TestQueueEvictsOldestOnOverflow(t *testing.T) {
	q := NewQueue(3, testLogger(t), nil)
	ctx := context.Background()
	q.Enqueue(ctx, ev(protocol.EventPosition))
	q.Enqueue(ctx, ev(protocol.EventStatus))
	q.Enqueue(ctx, ev(protocol.EventPerception))
	q.Enqueue(ctx, ev(protocol.EventRoleUpdate))
	q.Enqueue(ctx, ev(protocol.EventPosition))

	assert.Equal(t, 3, q.Len())
	drained := q.Drain(10)
	require.Len(t, drained, 3)
	assert.Equal(t, protocol.EventPerception, drained[0].Event)
	assert.Equal(t, protocol.EventRoleUpdate, drained[1].Event)
	assert.Equal(t, protocol.EventPosition, drained[2].Event)
}

func TestQueueRequeuePreservesOrderAndDropsOverflow(t *testing.T) {
	q := NewQueue(2, testLogger(t), nil)
	ctx := context.Background()
	q.Enqueue(ctx, ev(protocol.EventStatus))

	failed := []protocol.AgentEvent{ev(protocol.EventPosition), ev(protocol.EventPerception), ev(protocol.EventRoleUpdate)}
	q.Requeue(ctx, failed)

	out := q.Drain(10)
	require.Len(t, out, 2)
	assert.Equal(t, protocol.EventRoleUpdate, out[0].Event, "oldest of the failed batch is dropped to fit")
	assert.Equal(t, protocol.EventStatus, out[1].Event, "previously queued event stays behind the requeued ones")
}

func TestBridgeEnqueueWithoutSessionKeepsEventsQueued(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	dialer := transport.NewFakeDialer(nil, []error{errors.New("dial failed")})
	b := New(testCfg(), dialer, clk, testLogger(t), nil)

	b.Enqueue(context.Background(), ev(protocol.EventPosition))
	clk.Advance(50 * time.Millisecond)

	assert.Equal(t, 1, b.QueueSize(), "failed dial must leave the event in the queue, never silently dropped")
	assert.False(t, b.Connected())
}

func TestBridgeFlushesOnceSessionIsAvailable(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	serverSide, clientSide := transport.FakePair()
	dialer := transport.NewFakeDialer([]transport.Session{clientSide}, nil)
	b := New(testCfg(), dialer, clk, testLogger(t), nil)

	b.Enqueue(context.Background(), ev(protocol.EventPosition))
	clk.Advance(50 * time.Millisecond) // arm -> no session -> EnsureSession connects, rearm
	clk.Advance(50 * time.Millisecond) // arm -> session connected -> drain+send

	assert.True(t, b.Connected())
	assert.Equal(t, 0, b.QueueSize())

	data, err := serverSide.ReadMessage(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(data), "agentEvent")
	assert.Contains(t, string(data), "position")
}

func TestBridgeRequeuesBatchOnSendFailure(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	fs := newFailingSession()
	dialer := transport.NewFakeDialer([]transport.Session{fs}, nil)
	cfg := testCfg()
	b := New(cfg, dialer, clk, testLogger(t), nil)

	b.Enqueue(context.Background(), ev(protocol.EventStatus))

	// Drive batch/reconnect cycles until the send budget (maxRetries+1
	// attempts, spec.md §4.2) is exhausted and the batch is surfaced back
	// to the queue. Real-time polling between fake-clock advances mirrors
	// TestSupervisorReconnectsAfterGracefulPeerClose's treatment of the
	// supervisor's async disconnect propagation.
	start := clk.Now()
	deadline := time.Now().Add(2 * time.Second)
	for b.QueueSize() == 0 && time.Now().Before(deadline) {
		clk.Advance(time.Duration(cfg.BatchIntervalMs) * time.Millisecond)
		clk.Advance(time.Duration(cfg.ReconnectDelayMs) * time.Millisecond)
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 1, b.QueueSize(), "event must survive exhausted retries, not be dropped")
	assert.GreaterOrEqual(t, fs.Writes(), cfg.MaxRetries+1, "must exhaust the full retry budget before giving up")
	// A single-failure-requeues-immediately bug would satisfy QueueSize==1
	// after the very first reconnect cycle; requiring several reconnect
	// delays of fake time to have elapsed proves retries actually spanned
	// multiple cycles instead of giving up on the first failure.
	assert.GreaterOrEqual(t, clk.Now().Sub(start), time.Duration(cfg.MaxRetries)*time.Duration(cfg.ReconnectDelayMs)*time.Millisecond)
}

func TestSupervisorReconnectsAfterGracefulPeerClose(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	serverA, clientA := transport.FakePair()
	_, clientB := transport.FakePair()
	dialer := transport.NewFakeDialer([]transport.Session{clientA, clientB}, nil)
	sup := NewSupervisor(testCfg(), dialer, clk, testLogger(t))

	sup.EnsureSession("test")
	require.Equal(t, StateConnected, sup.State())

	_ = serverA.Close()
	// The peer close is observed by the supervisor's readLoop goroutine
	// asynchronously; poll briefly for it rather than assume ordering.
	deadline := time.Now().Add(2 * time.Second)
	for sup.State() != StateDisconnected && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, StateDisconnected, sup.State())

	clk.Advance(time.Duration(testCfg().ReconnectDelayMs) * time.Millisecond)
	assert.Equal(t, StateConnected, sup.State())
}

func TestSupervisorHealthcheckReconnectsOnPingFailure(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	first := newPingFailSession()
	_, second := transport.FakePair()
	dialer := transport.NewFakeDialer([]transport.Session{first, second}, nil)
	cfg := testCfg()
	cfg.HealthcheckIntervalMs = 10
	sup := NewSupervisor(cfg, dialer, clk, testLogger(t))

	sup.EnsureSession("test")
	require.Equal(t, StateConnected, sup.State())

	clk.Advance(10 * time.Millisecond) // healthcheck tick: ping fails, disconnect scheduled inline
	assert.Equal(t, StateDisconnected, sup.State())

	clk.Advance(time.Duration(cfg.ReconnectDelayMs) * time.Millisecond)
	assert.Equal(t, StateConnected, sup.State())
}

func TestBridgeCloseStopsSession(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	_, clientSide := transport.FakePair()
	dialer := transport.NewFakeDialer([]transport.Session{clientSide}, nil)
	b := New(testCfg(), dialer, clk, testLogger(t), nil)

	b.Enqueue(context.Background(), ev(protocol.EventStatus))
	clk.Advance(50 * time.Millisecond)
	clk.Advance(50 * time.Millisecond)
	require.True(t, b.Connected())

	require.NoError(t, b.Close())
	assert.False(t, b.Connected())
}
