package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/gameclient"
)

func modeFn(mode config.MovementControlMode) func() config.MovementControlMode {
	return func() config.MovementControlMode { return mode }
}

func boolPtr(b bool) *bool       { return &b }
func floatPtr(f float64) *float64 { return &f }

func TestValidateSequenceRejectsEmpty(t *testing.T) {
	_, err := ValidateSequence(nil, 240)
	assert.Error(t, err)
}

func TestValidateSequenceRejectsTooLong(t *testing.T) {
	raw := make([]RawAction, 3)
	for i := range raw {
		raw[i] = RawAction{Kind: "wait"}
	}
	_, err := ValidateSequence(raw, 2)
	assert.Error(t, err)
}

func TestValidateSequenceRejectsUnknownControl(t *testing.T) {
	_, err := ValidateSequence([]RawAction{{Kind: "control", Control: "fly", State: boolPtr(true)}}, 10)
	assert.ErrorContains(t, err, "unknown control")
}

func TestValidateSequenceRejectsNonFiniteLook(t *testing.T) {
	_, err := ValidateSequence([]RawAction{{Kind: "look", Yaw: floatPtrNaN()}}, 10)
	assert.ErrorContains(t, err, "non-finite")
}

func floatPtrNaN() *float64 {
	v := nan()
	return &v
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestValidateSequenceRejectsNegativeDuration(t *testing.T) {
	_, err := ValidateSequence([]RawAction{{Kind: "wait", DurationTicks: floatPtr(-1)}}, 10)
	assert.ErrorContains(t, err, "negative")
}

func TestValidateSequenceRoundsDuration(t *testing.T) {
	seq, err := ValidateSequence([]RawAction{{Kind: "wait", DurationTicks: floatPtr(2.6)}}, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, seq[0].DurationTicks)
}

func TestEngineRejectsInCommandMode(t *testing.T) {
	e := New(clock.NewFake(time.Unix(0, 0)), modeFn(config.ControlModeCommand))
	err := e.Play(context.Background(), gameclient.NewFake(), []Action{{Kind: ActionWait}}, 50)
	assert.Equal(t, ErrDisabled, err)
}

func TestEnginePressesAndReleasesControls(t *testing.T) {
	fake := gameclient.NewFake()
	e := New(clock.NewFake(time.Unix(0, 0)), modeFn(config.ControlModeVPT))
	seq := []Action{
		{Kind: ActionControl, Control: ControlForward, State: true},
	}
	require.NoError(t, e.Play(context.Background(), fake, seq, 50))
	assert.Empty(t, fake.ControlStates, "forward control must be released at sequence end")
}

func TestEngineAppliesLook(t *testing.T) {
	fake := gameclient.NewFake()
	e := New(clock.NewFake(time.Unix(0, 0)), modeFn(config.ControlModeVPT))
	seq := []Action{{Kind: ActionLook, Yaw: 1.5, Pitch: 10}}
	require.NoError(t, e.Play(context.Background(), fake, seq, 50))
	require.Len(t, fake.LookCalls, 1)
	assert.InDelta(t, 1.5, fake.LookCalls[0].Yaw, 1e-9)
	assert.InDelta(t, 1.5707963267948966, fake.LookCalls[0].Pitch, 1e-9, "pitch clamped to +pi/2")
}

func TestEngineStopsActivePathfindingBeforeStart(t *testing.T) {
	fake := gameclient.NewFake()
	e := New(clock.NewFake(time.Unix(0, 0)), modeFn(config.ControlModeVPT))
	require.NoError(t, e.Play(context.Background(), fake, []Action{{Kind: ActionWait}}, 50))
	assert.True(t, fake.StopCalled())
}

func TestEngineRejectsConcurrentPlayback(t *testing.T) {
	fake := gameclient.NewFake()
	clk := clock.NewFake(time.Unix(0, 0))
	e := New(clk, modeFn(config.ControlModeVPT))

	var wg sync.WaitGroup
	started := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		_ = e.Play(context.Background(), fake, []Action{{Kind: ActionWait, DurationTicks: 10}}, 50)
	}()
	<-started
	// Give the goroutine time to enter Play and flip inFlight before we
	// attempt the concurrent call.
	for i := 0; i < 1000 && !e.InProgress(); i++ {
		time.Sleep(time.Millisecond)
	}
	err := e.Play(context.Background(), fake, []Action{{Kind: ActionWait}}, 50)
	assert.Equal(t, ErrAlreadyInProgress, err)

	clk.Advance(10 * 50 * time.Millisecond)
	wg.Wait()
}

func TestEngineReleasesControlsOnError(t *testing.T) {
	fake := gameclient.NewFake()
	e := New(clock.NewFake(time.Unix(0, 0)), modeFn(config.ControlModeVPT))
	seq := []Action{
		{Kind: ActionControl, Control: ControlForward, State: true},
		{Kind: ActionControl, Control: ControlSprint, State: true},
		{Kind: ActionKind("fly")},
	}
	err := e.Play(context.Background(), fake, seq, 50)
	require.Error(t, err)
	assert.Empty(t, fake.ControlStates)
	assert.Empty(t, e.Pressed())
}
