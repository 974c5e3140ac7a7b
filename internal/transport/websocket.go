package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsSession wraps a gorilla websocket.Conn so both dial and accept sides
// share one Session implementation. Each ReadMessage call reads on a
// helper goroutine so ctx cancellation can return early; writes
// (including pings) are serialized through
// writeMu, matching the teacher's wsclient.Client.writeMu convention.
type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// OnPong registers fn with the gorilla connection's pong handler, the
// same pattern the teacher's streaming.Client.ReadPump uses to refresh a
// read deadline from real pong frames rather than from a ping send's
// return value.
func (s *wsSession) OnPong(fn func()) {
	s.conn.SetPongHandler(func(string) error {
		if fn != nil {
			fn()
		}
		return nil
	})
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{conn: conn}
}

func (s *wsSession) ReadMessage(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		_, data, err := s.conn.ReadMessage()
		done <- result{data, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("transport: read: %w", r.err)
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *wsSession) WriteMessage(ctx context.Context, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (s *wsSession) Ping(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("transport: ping: %w", err)
	}
	return nil
}

func (s *wsSession) RemoteAddr() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}

// WSDialer dials outbound Sessions for the Agent Event Bridge.
type WSDialer struct {
	dialer *websocket.Dialer
}

// NewWSDialer builds a dialer with the given handshake timeout.
func NewWSDialer(handshakeTimeout time.Duration) *WSDialer {
	return &WSDialer{dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout}}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Session, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return newWSSession(conn), nil
}

// WSListener upgrades inbound HTTP requests to Sessions for the Command
// Router. It is mounted as an http.Handler and hands accepted sessions
// to whoever is blocked in Accept.
type WSListener struct {
	upgrader websocket.Upgrader
	accepted chan Session
	closed   chan struct{}
	once     sync.Once
}

// NewWSListener builds a listener with a permissive CORS-less upgrader
// (the planner connects from a trusted, operator-configured origin).
func NewWSListener() *WSListener {
	return &WSListener{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		accepted: make(chan Session),
		closed:   make(chan struct{}),
	}
}

// ServeHTTP upgrades the connection and publishes it to Accept callers.
func (l *WSListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := newWSSession(conn)
	select {
	case l.accepted <- sess:
	case <-l.closed:
		_ = sess.Close()
	}
}

func (l *WSListener) Accept(ctx context.Context) (Session, error) {
	select {
	case sess := <-l.accepted:
		return sess, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *WSListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
