// Package transport is the duplex transport capability spec.md §1 calls
// out as injectable: both the Command Router (inbound, server side) and
// the Agent Event Bridge (outbound, client side) talk to a Session
// instead of a concrete websocket.Conn, so tests can swap in an
// in-memory fake. Grounded on the teacher's pkg/websocket message
// envelope and internal/agentctl/server/wsclient dial/reconnect loop.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Session methods once the session has been
// closed, either locally or by the remote peer.
var ErrClosed = errors.New("transport: session closed")

// Session is one duplex connection, either accepted from the Command
// Router's listener or dialed by the Agent Event Bridge. Every verb
// exchanged over it is a JSON-encoded pkg/protocol envelope.
type Session interface {
	// ReadMessage blocks until a full message arrives, the context is
	// cancelled, or the connection fails.
	ReadMessage(ctx context.Context) ([]byte, error)
	// WriteMessage sends one message. Implementations must serialize
	// concurrent writers internally (spec.md §4.2's single writer-mutex
	// rule applies to every Session, not just the real one).
	WriteMessage(ctx context.Context, data []byte) error
	// Ping round-trips a control frame, used by the Agent Event Bridge's
	// healthcheck timer (spec.md §4.2).
	Ping(ctx context.Context) error
	// OnPong registers fn to be invoked whenever a pong control frame
	// arrives from the peer. The healthcheck timer refreshes its
	// liveness timestamp from this callback, not from Ping's send-side
	// success (spec.md §4.2: "a probe response refreshes the pong
	// timestamp").
	OnPong(fn func())
	RemoteAddr() string
	Close() error
}

// Dialer opens outbound Sessions. The Agent Event Bridge's session
// supervisor calls Dial on every reconnect attempt.
type Dialer interface {
	Dial(ctx context.Context, url string) (Session, error)
}

// Listener accepts inbound Sessions. The Command Router's HTTP handler
// upgrades one request at a time via Accept.
type Listener interface {
	Accept(ctx context.Context) (Session, error)
	Close() error
}
