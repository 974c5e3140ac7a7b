package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/navigation"
)

func TestGatherObservationRejectsNilClient(t *testing.T) {
	e := New(clock.NewFake(time.Unix(0, 0)), modeFn(config.ControlModeCommand))
	_, err := e.GatherObservation(nil, navigation.Target{})
	assert.Error(t, err)
}

func TestGatherObservationReportsHotbarAndHeldItem(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	e := New(clk, modeFn(config.ControlModeCommand))
	client := gameclient.NewFake()
	client.SetItems([]gameclient.ItemStack{
		{Slot: 0, Name: "diamond_pickaxe", Count: 1},
		{Slot: 3, Name: "torch", Count: 12},
	})

	obs, err := e.GatherObservation(client, navigation.Target{})
	require.NoError(t, err)
	assert.Equal(t, "diamond_pickaxe", obs.HeldItem)
	assert.Equal(t, "diamond_pickaxe", obs.Hotbar[0].Name)
	assert.Equal(t, 1, obs.Hotbar[0].Count)
	assert.Equal(t, "torch", obs.Hotbar[3].Name)
	assert.Equal(t, 0, obs.Hotbar[1].Count, "unfilled slots report a zero count")
	assert.False(t, obs.Navigation.HasTarget)
}

func TestGatherObservationComputesNavigationHintFromLastTarget(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	e := New(clk, modeFn(config.ControlModeCommand))
	client := gameclient.NewFake()
	client.SetSelf(gameclient.Self{Position: gameclient.Vec3{X: 0, Y: 64, Z: 0}})

	target := navigation.Target{X: 10, Y: 70, Z: 0, Set: true}
	obs, err := e.GatherObservation(client, target)
	require.NoError(t, err)

	assert.True(t, obs.Navigation.HasTarget)
	assert.InDelta(t, 10, obs.Navigation.HorizontalDist, 0.001)
	assert.InDelta(t, 6, obs.Navigation.VerticalOffset, 0.001)
}
