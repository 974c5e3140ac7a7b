package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAfterFunc(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	f.AfterFunc(5*time.Second, func() { fired = true })

	f.Advance(4 * time.Second)
	assert.False(t, fired)

	f.Advance(1 * time.Second)
	assert.True(t, fired)
}

func TestFakeAfterFuncStop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	timer := f.AfterFunc(5*time.Second, func() { fired = true })

	ok := timer.Stop()
	require.True(t, ok)

	f.Advance(10 * time.Second)
	assert.False(t, fired)
}

func TestFakeTickerRecurs(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	ticker := f.NewTicker(1*time.Second, func() { count++ })

	f.Advance(3500 * time.Millisecond)
	assert.Equal(t, 3, count)

	ticker.Stop()
	f.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
}

func TestFakeSleepUnblocksOnAdvance(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		f.Sleep(2 * time.Second)
		close(done)
	}()

	// Not due yet.
	f.Advance(1 * time.Second)
	select {
	case <-done:
		t.Fatal("sleep returned early")
	case <-time.After(20 * time.Millisecond):
	}

	f.Advance(1 * time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep never returned")
	}
}

func TestFakeEventOrdering(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	var order []int
	f.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	f.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	f.AfterFunc(3*time.Second, func() { order = append(order, 3) })

	f.Advance(3 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestRealClockBasics(t *testing.T) {
	r := NewReal()
	assert.WithinDuration(t, time.Now(), r.Now(), time.Second)

	done := make(chan struct{})
	timer := r.AfterFunc(10*time.Millisecond, func() { close(done) })
	defer timer.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real AfterFunc never fired")
	}
}
