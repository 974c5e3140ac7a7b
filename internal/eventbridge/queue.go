package eventbridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/telemetry"
	"github.com/kandev/mc-agent-core/pkg/protocol"
)

// Queue is the bounded, head-evicted FIFO backing the Agent Event Bridge
// (spec.md §3, §8 invariant 6). Enqueue never blocks.
type Queue struct {
	maxSize int
	log     *obslog.Logger
	tel     *telemetry.Context

	mu    sync.Mutex
	items []protocol.AgentEvent
}

// NewQueue builds a Queue holding at most maxSize events. A non-positive
// maxSize means unbounded.
func NewQueue(maxSize int, log *obslog.Logger, tel *telemetry.Context) *Queue {
	return &Queue{maxSize: maxSize, log: log, tel: tel}
}

// Enqueue appends event, evicting the oldest entry if at capacity.
func (q *Queue) Enqueue(ctx context.Context, event protocol.AgentEvent) {
	q.mu.Lock()
	evicted := false
	var evictedKind protocol.EventKind
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		evictedKind = q.items[0].Event
		q.items = q.items[1:]
		evicted = true
	}
	q.items = append(q.items, event)
	size := len(q.items)
	q.mu.Unlock()

	if evicted {
		q.log.Warn("agent event queue overflow, evicting oldest entry",
			zap.String("evicted_event", string(evictedKind)),
			zap.Int("queue_size", size))
		if q.tel != nil {
			q.tel.Instruments.EventsEvictedTotal.Add(ctx, 1)
		}
	}
	if q.tel != nil {
		q.tel.Instruments.EventsEnqueuedTotal.Add(ctx, 1)
	}
}

// Requeue prepends events back onto the front of the queue, preserving
// their relative order, after a failed send (spec.md §4.2). Events that
// no longer fit within maxSize are dropped from the oldest end of the
// failed batch, and the drop is logged once.
func (q *Queue) Requeue(ctx context.Context, events []protocol.AgentEvent) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	kept := events
	if q.maxSize > 0 {
		room := q.maxSize - len(q.items)
		if room < 0 {
			room = 0
		}
		if room < len(events) {
			dropped := len(events) - room
			kept = events[dropped:]
			q.mu.Unlock()
			q.log.Warn("dropping events while requeuing failed batch", zap.Int("dropped", dropped))
			q.mu.Lock()
		}
	}
	q.items = append(append([]protocol.AgentEvent(nil), kept...), q.items...)
	q.mu.Unlock()
}

// Drain removes and returns up to n events from the front of the queue.
func (q *Queue) Drain(n int) []protocol.AgentEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	out := append([]protocol.AgentEvent(nil), q.items[:n]...)
	q.items = q.items[n:]
	return out
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
