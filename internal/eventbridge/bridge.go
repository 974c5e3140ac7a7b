// Package eventbridge implements the Agent Event Bridge (spec.md §4.2):
// a bounded outbound queue, a batch flusher armed on enqueue, and a
// session supervisor that dials, healthchecks, and reconnects the single
// duplex session to the planner. Grounded on the teacher's
// internal/agentctl/server/wsclient (reconnect, pending-request bookkeeping)
// and internal/orchestrator/streaming/hub.go's register/broadcast shape,
// repurposed for the outbound side.
package eventbridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/telemetry"
	"github.com/kandev/mc-agent-core/internal/transport"
	"github.com/kandev/mc-agent-core/pkg/protocol"
)

// Bridge is the process-wide Agent Event Bridge. Construct one per
// runtime; Enqueue is safe for concurrent producers (perception,
// navigation, lifecycle, handlers).
type Bridge struct {
	cfg   config.AgentBridge
	queue *Queue
	sup   *Supervisor
	clk   clock.Clock
	log   *obslog.Logger
	tel   *telemetry.Context

	mu             sync.Mutex
	flushArmed     bool
	flushing       bool
	pendingBatch   []protocol.AgentEvent
	pendingAttempt int
}

// New builds a Bridge dialing cfg.URL through dialer, using clk for every
// timer (batch, reconnect, healthcheck).
func New(cfg config.AgentBridge, dialer transport.Dialer, clk clock.Clock, log *obslog.Logger, tel *telemetry.Context) *Bridge {
	return &Bridge{
		cfg:   cfg,
		queue: NewQueue(cfg.QueueMaxSize, log.WithFields(zap.String("component", "eventbridge.queue")), tel),
		sup:   NewSupervisor(cfg, dialer, clk, log.WithFields(zap.String("component", "eventbridge.supervisor"))),
		clk:   clk,
		log:   log.WithFields(zap.String("component", "eventbridge")),
		tel:   tel,
	}
}

// Enqueue adds event to the outbound queue and arms the flusher if it
// isn't already armed. Never blocks.
func (b *Bridge) Enqueue(ctx context.Context, event protocol.AgentEvent) {
	b.queue.Enqueue(ctx, event)
	b.armFlush()
}

// QueueSize reports the current outbound queue depth.
func (b *Bridge) QueueSize() int { return b.queue.Len() }

// Connected reports whether the outbound session is currently up.
func (b *Bridge) Connected() bool { return b.sup.State() == StateConnected }

// Close tears down the outbound session and stops pending timers.
func (b *Bridge) Close() error { return b.sup.Close() }

func (b *Bridge) armFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushArmed || b.flushing {
		return
	}
	b.flushArmed = true
	b.clk.AfterFunc(time.Duration(b.cfg.BatchIntervalMs)*time.Millisecond, b.flush)
}

// flush runs once per arm cycle: empty queue or no session re-arms or
// waits, otherwise a batch is drained and sent. At most one flush is in
// flight at any time (spec.md §4.2), enforced by the flushing flag below.
func (b *Bridge) flush() {
	b.mu.Lock()
	b.flushArmed = false
	b.flushing = true
	b.mu.Unlock()

	rearm := b.flushOnce()

	b.mu.Lock()
	b.flushing = false
	b.mu.Unlock()

	if rearm {
		b.armFlush()
	}
}

// flushOnce drains (or resumes) one batch and attempts to send it. A
// batch that fails to send is retried in place, across flush cycles,
// until it has been attempted maxRetries+1 times total (spec.md §4.2);
// only once that budget is exhausted is it surfaced to the queue for
// reinsertion and does a fresh batch get drained.
func (b *Bridge) flushOnce() bool {
	b.mu.Lock()
	batch := b.pendingBatch
	attempt := b.pendingAttempt
	b.mu.Unlock()

	if batch == nil {
		if b.queue.Len() == 0 {
			return false
		}
		if b.sup.Session() == nil {
			b.sup.EnsureSession("flush")
			return true
		}
		batch = b.queue.Drain(b.cfg.BatchMaxSize)
		if len(batch) == 0 {
			return false
		}
		attempt = 0
	}

	ctx := context.Background()
	if sess := b.sup.Session(); sess != nil && b.sendBatch(ctx, sess, batch) {
		if b.tel != nil {
			b.tel.Instruments.EventsSentTotal.Add(ctx, int64(len(batch)))
		}
		b.clearPendingBatch()
		return b.queue.Len() > 0
	}

	attempt++
	maxAttempts := b.cfg.MaxRetries + 1
	if attempt >= maxAttempts {
		b.log.Warn("agent event batch exhausted retries, reinserting into queue",
			zap.Int("batch_size", len(batch)), zap.Int("attempts", attempt))
		b.clearPendingBatch()
		b.queue.Requeue(ctx, batch)
	} else {
		b.setPendingBatch(batch, attempt)
	}

	b.sup.scheduleReconnect()
	b.clk.AfterFunc(time.Duration(b.cfg.ReconnectDelayMs)*time.Millisecond, func() { b.armFlush() })
	return false
}

func (b *Bridge) setPendingBatch(batch []protocol.AgentEvent, attempt int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingBatch = batch
	b.pendingAttempt = attempt
}

func (b *Bridge) clearPendingBatch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingBatch = nil
	b.pendingAttempt = 0
}

func (b *Bridge) sendBatch(ctx context.Context, sess transport.Session, batch []protocol.AgentEvent) bool {
	envelope := protocol.NewPlannerEnvelope(batch)
	data, err := protocol.Marshal(envelope)
	if err != nil {
		b.log.Error("failed to marshal agent event batch", zap.Error(err))
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, time.Duration(b.cfg.SendTimeoutMs)*time.Millisecond)
	defer cancel()
	if err := sess.WriteMessage(sendCtx, data); err != nil {
		b.log.Warn("agent event batch send failed", zap.Error(err), zap.Int("batch_size", len(batch)))
		_ = sess.Close()
		return false
	}
	return true
}
