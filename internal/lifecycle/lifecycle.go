// Package lifecycle implements the Lifecycle Supervisor (spec.md §4.4):
// it owns at most one game-client connection, reconnects on loss after
// a configured delay, and exposes a readiness-checked accessor for the
// rest of the runtime. Grounded on the teacher's
// internal/agentctl/server/wsclient.Client reconnect/backoff idiom,
// retargeted from a WS session onto a gameclient.Client.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/roles"
)

// ClientFactory builds a fresh, unconnected gameclient.Client. Supplied
// by cmd/mc-agent-core; swapped for a fake factory in tests.
type ClientFactory func() gameclient.Client

// Registrar attaches caller-supplied callbacks to a freshly created
// client's EventHandlers, returning the full handler set to register.
// The Supervisor invokes it once per client instance (including every
// reconnect), wrapping OnDisconnect so reconnect scheduling always
// runs regardless of what the caller's own handler does.
type Registrar func(h gameclient.EventHandlers) gameclient.EventHandlers

// Supervisor owns the single game-client instance.
type Supervisor struct {
	factory        ClientFactory
	clock          clock.Clock
	log            *obslog.Logger
	reconnectDelay func() int64 // milliseconds; a func so config can change at runtime in tests

	mu            sync.Mutex
	opts          gameclient.ConnectOptions
	registrar     Registrar
	client        gameclient.Client
	reconnectTmr  clock.Timer
	roleState     roles.State
	roleEventSeq  int64

	sf singleflight.Group
}

// New builds a Supervisor. reconnectDelayMs returns the current
// reconnect delay in milliseconds, read fresh on every scheduling
// decision (so config can be tested as a live value, matching the
// teacher's config-as-snapshot pattern elsewhere).
func New(factory ClientFactory, clk clock.Clock, log *obslog.Logger, reconnectDelayMs func() int64) *Supervisor {
	return &Supervisor{
		factory:        factory,
		clock:          clk,
		log:            log.WithFields(zap.String("component", "lifecycle")),
		reconnectDelay: reconnectDelayMs,
		roleState:      roles.State{Role: roles.Generalist},
	}
}

// Start creates the first client instance, registers handlers exactly
// once via registrar, and connects. Subsequent reconnects reuse opts
// and registrar automatically.
func (s *Supervisor) Start(ctx context.Context, opts gameclient.ConnectOptions, registrar Registrar) error {
	s.mu.Lock()
	s.opts = opts
	s.registrar = registrar
	s.mu.Unlock()
	return s.spawnClient(ctx)
}

func (s *Supervisor) spawnClient(ctx context.Context) error {
	s.mu.Lock()
	opts := s.opts
	registrar := s.registrar
	s.mu.Unlock()

	c := s.factory()
	handlers := gameclient.EventHandlers{}
	if registrar != nil {
		handlers = registrar(handlers)
	}
	userDisconnect := handlers.OnDisconnect
	handlers.OnDisconnect = func(reason gameclient.DisconnectReason) {
		if userDisconnect != nil {
			userDisconnect(reason)
		}
		s.handleDisconnect(reason)
	}
	c.RegisterHandlers(handlers)

	if err := c.Connect(ctx, opts); err != nil {
		s.log.WithError(err).Warn("game client connect failed")
		s.scheduleReconnect()
		return fmt.Errorf("lifecycle: connect: %w", err)
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
	s.log.Info("game client connected", zap.String("host", opts.Host), zap.Int("port", opts.Port))
	return nil
}

// handleDisconnect drops the current instance and schedules a
// reconnect. Reconnect scheduling is idempotent: only armed if no timer
// is already pending.
func (s *Supervisor) handleDisconnect(reason gameclient.DisconnectReason) {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
	s.log.Warn("game client disconnected", zap.String("reason", string(reason)))
	s.scheduleReconnect()
}

func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	if s.reconnectTmr != nil {
		s.mu.Unlock()
		return
	}
	delayMs := s.reconnectDelay()
	s.reconnectTmr = s.clock.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		s.mu.Lock()
		s.reconnectTmr = nil
		s.mu.Unlock()
		_, _, _ = s.sf.Do("reconnect", func() (interface{}, error) {
			return nil, s.spawnClient(context.Background())
		})
	})
	s.mu.Unlock()
}

// GetActiveClient returns the current client only if it exists AND has
// completed spawn (entity materialised); otherwise nil, per spec.md
// §4.4.
func (s *Supervisor) GetActiveClient() gameclient.Client {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil || !c.Spawned() {
		return nil
	}
	return c
}

// ApplyAgentRoleUpdate normalises id, updates the current role, and
// stamps lastEventId/lastUpdatedAt (spec.md §4.4).
func (s *Supervisor) ApplyAgentRoleUpdate(id, source, reason string) roles.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleEventSeq++
	s.roleState = roles.Apply(id, source, reason, s.roleEventSeq, s.clock.Now())
	return s.roleState
}

// RoleState returns the current role assignment.
func (s *Supervisor) RoleState() roles.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roleState
}

