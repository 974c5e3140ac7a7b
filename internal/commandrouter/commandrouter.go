// Package commandrouter implements the Command Router (spec.md §4.3): a
// duplex listener that assigns each accepted session a client id, parses
// inbound Command Envelopes, validates their args against the per-verb
// JSON Schema, dispatches to a registered verb handler inside a span, and
// writes back exactly one Command Response per request. Grounded on the
// teacher's internal/orchestrator/streaming's Gin-upgrade-and-register
// shape and pkg/websocket/handler.go's action dispatcher.
package commandrouter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/schema"
	"github.com/kandev/mc-agent-core/internal/telemetry"
	"github.com/kandev/mc-agent-core/internal/transport"
	"github.com/kandev/mc-agent-core/pkg/protocol"
)

// HandlerFunc handles one verb's validated args for a given session and
// returns the response to write back.
type HandlerFunc func(ctx context.Context, clientID string, args map[string]any) protocol.CommandResponse

// Router accepts sessions from a transport.Listener and dispatches
// Command Envelopes arriving on each to registered verb handlers.
type Router struct {
	listener transport.Listener
	registry *schema.Registry
	tel      *telemetry.Context
	log      *obslog.Logger

	mu       sync.RWMutex
	handlers map[protocol.Verb]HandlerFunc

	wg sync.WaitGroup
}

// New builds a Router. registry may be nil, in which case args are
// accepted unvalidated (schema.Registry.Validate already treats unknown
// verbs that way; a nil registry generalises that).
func New(listener transport.Listener, registry *schema.Registry, tel *telemetry.Context, log *obslog.Logger) *Router {
	return &Router{
		listener: listener,
		registry: registry,
		tel:      tel,
		log:      log.WithFields(zap.String("component", "commandrouter")),
		handlers: make(map[protocol.Verb]HandlerFunc),
	}
}

// RegisterHandler binds fn as the handler for verb. Call before Serve.
func (r *Router) RegisterHandler(verb protocol.Verb, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[verb] = fn
}

// Serve accepts sessions until ctx is cancelled or the listener closes,
// spawning one goroutine per session. It blocks until the accept loop
// exits, but does not wait for in-flight sessions — call Close first for
// a full drain during shutdown.
func (r *Router) Serve(ctx context.Context) error {
	for {
		sess, err := r.listener.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.serveSession(ctx, sess)
		}()
	}
}

// Close stops accepting new sessions and waits for in-flight sessions to
// drain.
func (r *Router) Close() error {
	err := r.listener.Close()
	r.wg.Wait()
	return err
}

func (r *Router) serveSession(ctx context.Context, sess transport.Session) {
	clientID := uuid.New().String()
	ctx = context.WithValue(ctx, obslog.SessionIDKey, clientID)
	log := r.log.WithContext(ctx).WithFields(zap.String("remote", sess.RemoteAddr()))
	log.Info("command router session opened")
	defer func() {
		_ = sess.Close()
		log.Info("command router session closed")
	}()

	for {
		data, err := sess.ReadMessage(ctx)
		if err != nil {
			return
		}

		var env protocol.CommandEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			r.respond(ctx, sess, protocol.Fail("Invalid payload format"))
			continue
		}

		resp := r.dispatch(ctx, clientID, sess.RemoteAddr(), env)
		r.respond(ctx, sess, resp)
	}
}

func (r *Router) respond(ctx context.Context, sess transport.Session, resp protocol.CommandResponse) {
	data, err := protocol.Marshal(resp)
	if err != nil {
		r.log.WithContext(ctx).Error("failed to marshal command response", zap.Error(err))
		return
	}
	if err := sess.WriteMessage(ctx, data); err != nil {
		r.log.WithContext(ctx).Warn("failed to write command response", zap.Error(err))
	}
}

func (r *Router) dispatch(ctx context.Context, clientID, remote string, env protocol.CommandEnvelope) protocol.CommandResponse {
	if !protocol.KnownVerbs[env.Type] {
		r.log.WithContext(ctx).Warn("rejected unknown command type", zap.String("type", string(env.Type)))
		return protocol.Fail("Unknown command type")
	}

	r.mu.RLock()
	handler, ok := r.handlers[env.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.WithContext(ctx).Warn("no handler registered for command type", zap.String("type", string(env.Type)))
		return protocol.Fail("Unknown command type")
	}

	if r.registry != nil {
		if err := r.registry.Validate(env.Type, env.Args); err != nil {
			return protocol.Fail(err.Error())
		}
	}

	if r.tel == nil {
		return handler(ctx, clientID, env.Args)
	}

	spanCtx, span := r.tel.StartSpan(ctx, "command."+string(env.Type),
		attribute.String("client_id", clientID),
		attribute.String("remote", remote),
		attribute.String("verb", string(env.Type)),
		attribute.String("arg_summary", summarizeArgs(env.Args)),
	)
	defer span.End()

	resp := handler(spanCtx, clientID, env.Args)
	span.SetAttributes(attribute.Bool("ok", resp.Ok))
	if !resp.Ok {
		span.RecordError(errors.New(resp.Error))
	}
	r.tel.Instruments.CommandsTotal.Add(spanCtx, 1, metric.WithAttributes(attribute.String("verb", string(env.Type))))
	return resp
}

// summarizeArgs renders args as compact JSON, truncated for span
// attribute hygiene.
func summarizeArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
