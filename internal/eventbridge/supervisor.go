package eventbridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/transport"
)

// State is the Agent Event Bridge session's connection lifecycle state
// (spec.md §4.2).
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Supervisor owns the single outbound duplex session to the planner: it
// dials on demand, healthchecks while connected, and reconnects after any
// loss (spec.md §4.2). Concurrent EnsureSession callers collapse onto one
// in-flight dial via singleflight.
type Supervisor struct {
	cfg    config.AgentBridge
	dialer transport.Dialer
	clk    clock.Clock
	log    *obslog.Logger
	sf     singleflight.Group

	mu             sync.Mutex
	state          State
	session        transport.Session
	lastPong       time.Time
	healthTicker   clock.Ticker
	reconnectTimer clock.Timer
	closed         bool
}

// NewSupervisor builds a Supervisor in the disconnected state.
func NewSupervisor(cfg config.AgentBridge, dialer transport.Dialer, clk clock.Clock, log *obslog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, dialer: dialer, clk: clk, log: log, state: StateDisconnected}
}

// State reports the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns the active session, or nil unless fully connected.
func (s *Supervisor) Session() transport.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return nil
	}
	return s.session
}

// EnsureSession dials a new session if currently disconnected. It is a
// no-op while connecting or connected, and blocks the caller until the
// dial attempt (success or failure) completes.
func (s *Supervisor) EnsureSession(reason string) {
	s.mu.Lock()
	if s.closed || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.log.Info("agent event bridge connecting", zap.String("reason", reason))
	_, _, _ = s.sf.Do("connect", func() (interface{}, error) {
		s.connect()
		return nil, nil
	})
}

func (s *Supervisor) connect() {
	timeout := time.Duration(s.cfg.ConnectTimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sess, err := s.dialer.Dial(ctx, s.cfg.URL)
	if err != nil || sess == nil {
		s.log.Warn("agent event bridge dial failed", zap.Error(err))
		s.onDisconnected()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sess.Close()
		return
	}
	s.session = sess
	s.state = StateConnected
	s.lastPong = s.clk.Now()
	s.healthTicker = s.clk.NewTicker(time.Duration(s.cfg.HealthcheckIntervalMs)*time.Millisecond, s.healthcheck)
	s.mu.Unlock()

	// Registered before readLoop starts consuming frames: every pong
	// control frame gorilla decodes off the wire invokes this, refreshing
	// lastPong from an actual peer response rather than from Ping's
	// send-side success (spec.md §4.2).
	sess.OnPong(func() {
		s.mu.Lock()
		if s.session == sess {
			s.lastPong = s.clk.Now()
		}
		s.mu.Unlock()
	})

	s.log.Info("agent event bridge session connected", zap.String("remote", sess.RemoteAddr()))
	go s.readLoop(sess)
}

// readLoop consumes inbound frames purely for liveness (spec.md §4.2):
// any read error, including a graceful close from the peer, is treated
// as a disconnect.
func (s *Supervisor) readLoop(sess transport.Session) {
	for {
		_, err := sess.ReadMessage(context.Background())
		if err == nil {
			continue
		}
		s.mu.Lock()
		current := s.session
		s.mu.Unlock()
		if current != sess {
			return
		}
		_ = sess.Close()
		s.onDisconnected()
		return
	}
}

func (s *Supervisor) healthcheck() {
	s.mu.Lock()
	sess := s.session
	lastPong := s.lastPong
	interval := time.Duration(s.cfg.HealthcheckIntervalMs) * time.Millisecond
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if s.clk.Now().Sub(lastPong) > 2*interval {
		s.log.Warn("agent event bridge healthcheck timed out, no pong since last probe")
		_ = sess.Close()
		s.onDisconnected()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interval)
	err := sess.Ping(ctx)
	cancel()
	if err != nil {
		s.log.Warn("agent event bridge ping failed", zap.Error(err))
		_ = sess.Close()
		s.onDisconnected()
		return
	}
	// lastPong is refreshed only by the OnPong callback firing on an
	// actual pong frame (registered in connect), never here: a
	// successful send proves nothing about the peer still listening.
}

func (s *Supervisor) onDisconnected() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.session = nil
	if s.healthTicker != nil {
		s.healthTicker.Stop()
		s.healthTicker = nil
	}
	s.mu.Unlock()
	s.scheduleReconnect()
}

func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	if s.closed || s.reconnectTimer != nil {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = s.clk.AfterFunc(time.Duration(s.cfg.ReconnectDelayMs)*time.Millisecond, func() {
		s.mu.Lock()
		s.reconnectTimer = nil
		s.mu.Unlock()
		s.EnsureSession("reconnect timer")
	})
	s.mu.Unlock()
}

// Close tears down the active session and stops all pending timers. Safe
// to call once during process shutdown.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	s.closed = true
	sess := s.session
	s.session = nil
	s.state = StateDisconnected
	if s.healthTicker != nil {
		s.healthTicker.Stop()
		s.healthTicker = nil
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.mu.Unlock()
	if sess != nil {
		return sess.Close()
	}
	return nil
}
