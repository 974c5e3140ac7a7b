package perception

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/roles"
)

func defaultPerceptionCfg() config.Perception {
	return config.Perception{EntityRadius: 12, BlockRadius: 2, BlockHeight: 1, BroadcastIntervalMs: 1500}
}

func intPtr(i int) *int { return &i }

func TestBuildPositionFloorsCoordinates(t *testing.T) {
	fake := gameclient.NewFake()
	fake.SetSelf(gameclient.Self{Position: gameclient.Vec3{X: 1.9, Y: 64.1, Z: -2.5}})
	s := New(defaultPerceptionCfg(), clock.NewFake(time.Unix(0, 0)), nil)

	pos, err := s.GatherStatus(context.Background(), KindPosition, fake, roles.Generalist, 0)
	require.NoError(t, err)
	p := pos.(Position)
	assert.Equal(t, 1, p.X)
	assert.Equal(t, 64, p.Y)
	assert.Equal(t, -3, p.Z)
}

func TestBuildInventoryDetectsPickaxesAndTorches(t *testing.T) {
	fake := gameclient.NewFake()
	fake.SetItems([]gameclient.ItemStack{
		{Slot: 0, Name: "diamond_pickaxe", Count: 1},
		{Slot: 1, Name: "torch", Count: 4},
		{Slot: 2, Name: "torch", Count: 2},
	})
	s := New(defaultPerceptionCfg(), clock.NewFake(time.Unix(0, 0)), nil)

	inv, err := s.GatherStatus(context.Background(), KindInventory, fake, roles.Generalist, 0)
	require.NoError(t, err)
	i := inv.(Inventory)
	assert.Equal(t, 3, i.OccupiedSlots)
	require.Len(t, i.Pickaxes, 1)
	assert.Equal(t, 6, i.TorchCount)
}

func TestHazardScanDetectsLiquidAndVoid(t *testing.T) {
	fake := gameclient.NewFake()
	fake.SetSelf(gameclient.Self{Position: gameclient.Vec3{X: 0, Y: 10, Z: 0}})
	fake.SetBlock(gameclient.Vec3{X: 1, Y: 10, Z: 0}, gameclient.Block{Name: "lava", IsLiquid: true})
	fake.SetBlock(gameclient.Vec3{X: -1, Y: 9, Z: 0}, gameclient.Block{IsEmpty: true})
	fake.SetBlock(gameclient.Vec3{X: -1, Y: 8, Z: 0}, gameclient.Block{IsEmpty: true})
	s := New(defaultPerceptionCfg(), clock.NewFake(time.Unix(0, 0)), nil)

	snap := s.BuildSnapshot(context.Background(), fake)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Hazards.Liquids)
	assert.Equal(t, 1, snap.Hazards.Lava)
	assert.GreaterOrEqual(t, snap.Hazards.Voids, 1)
	assert.Contains(t, snap.Warnings, "1 liquid hazard(s) nearby")
}

func TestLightingWarningThresholdExactlySeven(t *testing.T) {
	fake := gameclient.NewFake()
	fake.SetSelf(gameclient.Self{Position: gameclient.Vec3{X: 0, Y: 0, Z: 0}})
	fake.SetBlock(gameclient.Vec3{X: 0, Y: 0, Z: 0}, gameclient.Block{SkyLight: intPtr(15), BlockLight: intPtr(7)})
	s := New(defaultPerceptionCfg(), clock.NewFake(time.Unix(0, 0)), nil)

	snap := s.BuildSnapshot(context.Background(), fake)
	require.NotNil(t, snap)
	assert.NotContains(t, snap.Warnings, "low block light")

	fake.SetBlock(gameclient.Vec3{X: 0, Y: 0, Z: 0}, gameclient.Block{SkyLight: intPtr(15), BlockLight: intPtr(6)})
	snap2 := s.BuildSnapshot(context.Background(), fake)
	require.NotNil(t, snap2)
	assert.Contains(t, snap2.Warnings, "low block light")
}

func TestEntityClassificationAndBearing(t *testing.T) {
	fake := gameclient.NewFake()
	fake.SetSelf(gameclient.Self{Position: gameclient.Vec3{X: 0, Y: 0, Z: 0}})
	fake.SetEntities([]gameclient.Entity{
		{Name: "Zombie", Kind: "hostile", Position: gameclient.Vec3{X: 0, Y: 0, Z: 5}},
		{Name: "Steve", Kind: "player", Position: gameclient.Vec3{X: -5, Y: 0, Z: 0}},
	})
	s := New(defaultPerceptionCfg(), clock.NewFake(time.Unix(0, 0)), nil)

	snap := s.BuildSnapshot(context.Background(), fake)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Entities.Total)
	assert.Equal(t, 1, snap.Entities.Hostiles)
	assert.Equal(t, 1, snap.Entities.Players)
	require.Len(t, snap.Entities.Details, 2)
}

func TestBroadcastPerceptionThrottles(t *testing.T) {
	fake := gameclient.NewFake()
	fake.SetSelf(gameclient.Self{Position: gameclient.Vec3{X: 0, Y: 0, Z: 0}})
	clk := clock.NewFake(time.Unix(0, 0))
	s := New(defaultPerceptionCfg(), clk, nil)

	var emitted int
	emit := func(Snapshot) { emitted++ }

	s.BroadcastPerception(context.Background(), fake, false, emit)
	assert.Equal(t, 1, emitted)

	s.BroadcastPerception(context.Background(), fake, false, emit)
	assert.Equal(t, 1, emitted, "throttled within interval")

	clk.Advance(2 * time.Second)
	s.BroadcastPerception(context.Background(), fake, false, emit)
	assert.Equal(t, 2, emitted)

	s.BroadcastPerception(context.Background(), fake, true, emit)
	assert.Equal(t, 3, emitted, "force bypasses throttle")
}

func TestBroadcastPositionSuppressesUnchangedCoordinate(t *testing.T) {
	fake := gameclient.NewFake()
	fake.SetSelf(gameclient.Self{Position: gameclient.Vec3{X: 1, Y: 2, Z: 3}})
	s := New(defaultPerceptionCfg(), clock.NewFake(time.Unix(0, 0)), nil)

	var emitted int
	emit := func(Position) { emitted++ }

	s.BroadcastPosition(fake, emit)
	assert.Equal(t, 1, emitted)

	s.BroadcastPosition(fake, emit)
	assert.Equal(t, 1, emitted, "unchanged coordinate suppressed")

	fake.SetSelf(gameclient.Self{Position: gameclient.Vec3{X: 1, Y: 2, Z: 4}})
	s.BroadcastPosition(fake, emit)
	assert.Equal(t, 2, emitted)
}
