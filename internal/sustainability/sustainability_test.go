package sustainability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/obslog"
)

func testLogger(t *testing.T) *obslog.Logger {
	t.Helper()
	log, err := obslog.New(obslog.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func testCfg() config.Sustainability {
	return config.Sustainability{StarvationFoodLevel: 17, HungerWarningCooldownMs: 1000}
}

func TestHandleHealthNoopsWhenFoodAboveThreshold(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	svc := New(testCfg(), clk, testLogger(t), nil)
	client := gameclient.NewFake()
	client.SetSelf(gameclient.Self{Food: 18})

	svc.HandleHealth(context.Background(), client)

	assert.Empty(t, client.ChatLog)
	assert.Zero(t, client.ConsumeCalls)
}

func TestHandleHealthConsumesFoodWhenHungry(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	svc := New(testCfg(), clk, testLogger(t), nil)
	client := gameclient.NewFake()
	client.SetSelf(gameclient.Self{Food: 5})
	client.SetItems([]gameclient.ItemStack{{Slot: 3, Name: "cooked_beef", Count: 4}})

	svc.HandleHealth(context.Background(), client)

	require.Len(t, client.EquipCalls, 1)
	assert.Equal(t, 3, client.EquipCalls[0])
	assert.Equal(t, 1, client.ConsumeCalls)
	require.Len(t, client.ChatLog, 1)
	assert.Contains(t, client.ChatLog[0], "cooked_beef")
}

func TestHandleHealthMatchesFoodCaseInsensitively(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	svc := New(testCfg(), clk, testLogger(t), nil)
	client := gameclient.NewFake()
	client.SetSelf(gameclient.Self{Food: 5})
	client.SetItems([]gameclient.ItemStack{{Slot: 0, Name: "Cooked_Beef"}})

	svc.HandleHealth(context.Background(), client)

	assert.Equal(t, 1, client.ConsumeCalls)
}

func TestHandleHealthWarnsWhenNoFoodFound(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	svc := New(testCfg(), clk, testLogger(t), nil)
	client := gameclient.NewFake()
	client.SetSelf(gameclient.Self{Food: 5})
	client.SetItems([]gameclient.ItemStack{{Slot: 0, Name: "diamond_pickaxe"}})

	svc.HandleHealth(context.Background(), client)

	require.Len(t, client.ChatLog, 1)
	assert.Zero(t, client.ConsumeCalls)
}

func TestHandleHealthWarningIsCooldownGated(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	svc := New(testCfg(), clk, testLogger(t), nil)
	client := gameclient.NewFake()
	client.SetSelf(gameclient.Self{Food: 5})

	svc.HandleHealth(context.Background(), client)
	svc.HandleHealth(context.Background(), client)
	assert.Len(t, client.ChatLog, 1, "second warning within cooldown window must be suppressed")

	clk.Advance(2 * time.Second)
	svc.HandleHealth(context.Background(), client)
	assert.Len(t, client.ChatLog, 2, "warning fires again once the cooldown elapses")
}

func TestHandleHealthNoopsOnNilClient(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	svc := New(testCfg(), clk, testLogger(t), nil)
	svc.HandleHealth(context.Background(), nil)
}
