// Package clock exposes timers as an injectable capability (spec.md §9),
// so the reconnect, healthcheck, batch, and forced-move-retry timers — and
// the perception broadcast throttle — can be driven by virtual time in
// tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the capability surface every timer-driven component depends on
// instead of calling package time directly.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules fn to run once after d elapses, returning a
	// Timer that can be stopped. Equivalent to scheduleOnce in spec.md §9.
	AfterFunc(d time.Duration, fn func()) Timer
	// NewTicker schedules fn to run every d until the returned Ticker is
	// stopped. Equivalent to scheduleInterval in spec.md §9.
	NewTicker(d time.Duration, fn func()) Ticker
	// Sleep blocks the calling goroutine for d (or until ctx-less virtual
	// advance in tests). Used for playback/backoff/retry delays.
	Sleep(d time.Duration)
}

// Timer cancels a scheduled one-shot callback.
type Timer interface {
	Stop() bool
}

// Ticker cancels a scheduled recurring callback.
type Ticker interface {
	Stop()
}

// Real is the production Clock backed by the time package.
type Real struct{}

// NewReal constructs the production clock.
func NewReal() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

func (Real) NewTicker(d time.Duration, fn func()) Ticker {
	t := time.NewTicker(d)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	return &realTicker{t: t, stop: stop}
}

func (Real) Sleep(d time.Duration) { time.Sleep(d) }

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

type realTicker struct {
	t    *time.Ticker
	stop chan struct{}
	once sync.Once
}

func (r *realTicker) Stop() {
	r.once.Do(func() {
		r.t.Stop()
		close(r.stop)
	})
}
