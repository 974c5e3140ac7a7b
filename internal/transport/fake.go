package transport

import (
	"context"
	"sync"
)

// FakePair builds two directly-connected Sessions for unit tests that
// need a real duplex channel without a socket.
func FakePair() (a, b Session) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	closeOnce := &sync.Once{}
	closed := make(chan struct{})
	sa := &fakeSession{send: ab, recv: ba, closed: closed, closeOnce: closeOnce, remote: "fake-b"}
	sb := &fakeSession{send: ba, recv: ab, closed: closed, closeOnce: closeOnce, remote: "fake-a"}
	return sa, sb
}

type fakeSession struct {
	send      chan []byte
	recv      chan []byte
	closed    chan struct{}
	closeOnce *sync.Once
	remote    string
	pings     int
	onPong    func()
	mu        sync.Mutex
}

func (f *fakeSession) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-f.recv:
		if !ok {
			return nil, ErrClosed
		}
		return data, nil
	case <-f.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSession) WriteMessage(ctx context.Context, data []byte) error {
	select {
	case f.send <- data:
		return nil
	case <-f.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping simulates an immediate loopback pong, since this fake models no
// real control-frame round trip: it invokes the registered OnPong
// callback synchronously, the same liveness signal a real pong frame
// would deliver.
func (f *fakeSession) Ping(ctx context.Context) error {
	f.mu.Lock()
	f.pings++
	onPong := f.onPong
	f.mu.Unlock()
	if onPong != nil {
		onPong()
	}
	return nil
}

// OnPong registers fn to run on every simulated pong (see Ping).
func (f *fakeSession) OnPong(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPong = fn
}

// PingCount reports how many Ping calls this side has made, for
// healthcheck-timer assertions.
func (f *fakeSession) PingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeSession) RemoteAddr() string { return f.remote }

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// FakeDialer returns a fixed Session (or error) from Dial, for tests of
// the Agent Event Bridge's reconnect loop.
type FakeDialer struct {
	mu       sync.Mutex
	sessions []Session
	errs     []error
	calls    int
}

// NewFakeDialer builds a dialer that returns the given sessions/errors
// in order on successive Dial calls, repeating the last entry once
// exhausted.
func NewFakeDialer(sessions []Session, errs []error) *FakeDialer {
	return &FakeDialer{sessions: sessions, errs: errs}
}

func (d *FakeDialer) Dial(ctx context.Context, url string) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	if i >= len(d.sessions) && i >= len(d.errs) {
		i = max(len(d.sessions), len(d.errs)) - 1
	}
	d.calls++
	var sess Session
	var err error
	if i >= 0 && i < len(d.sessions) {
		sess = d.sessions[i]
	}
	if i >= 0 && i < len(d.errs) {
		err = d.errs[i]
	}
	return sess, err
}

// Calls reports how many times Dial has been invoked.
func (d *FakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// FakeListener is an in-memory Listener for Command Router tests: Push
// hands a Session to the next Accept caller.
type FakeListener struct {
	accepted chan Session
	closed   chan struct{}
	once     sync.Once
}

// NewFakeListener builds an empty FakeListener.
func NewFakeListener() *FakeListener {
	return &FakeListener{accepted: make(chan Session), closed: make(chan struct{})}
}

// Push publishes sess to the next Accept call, blocking until it is
// consumed or the listener is closed.
func (l *FakeListener) Push(sess Session) {
	select {
	case l.accepted <- sess:
	case <-l.closed:
	}
}

func (l *FakeListener) Accept(ctx context.Context) (Session, error) {
	select {
	case sess := <-l.accepted:
		return sess, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *FakeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
