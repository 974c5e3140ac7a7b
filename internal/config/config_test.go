package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFunc(kv map[string]string) func() []string {
	return func() []string {
		out := make([]string, 0, len(kv))
		for k, v := range kv {
			out = append(out, k+"="+v)
		}
		return out
	}
}

func TestMoveGoalToleranceClampsLow(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"MOVE_GOAL_TOLERANCE": "0"}))
	assert.Equal(t, 1, res.Config.Navigation.GoalTolerance)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "MOVE_GOAL_TOLERANCE", res.Warnings[0].Key)
}

func TestMoveGoalToleranceClampsHigh(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"MOVE_GOAL_TOLERANCE": "100"}))
	assert.Equal(t, 30, res.Config.Navigation.GoalTolerance)
}

func TestMoveGoalToleranceDefault(t *testing.T) {
	res := LoadFrom(envFunc(nil))
	assert.Equal(t, 3, res.Config.Navigation.GoalTolerance)
	assert.Empty(t, res.Warnings)
}

func TestVptTickIntervalClamps(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"VPT_TICK_INTERVAL_MS": "5"}))
	assert.Equal(t, 10, res.Config.Control.TickIntervalMs)

	res = LoadFrom(envFunc(map[string]string{"VPT_TICK_INTERVAL_MS": "999"}))
	assert.Equal(t, 250, res.Config.Control.TickIntervalMs)
}

func TestControlModeFallback(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"CONTROL_MODE": "bogus"}))
	assert.Equal(t, ControlModeCommand, res.Config.Control.Mode)
	require.Len(t, res.Warnings, 1)

	res = LoadFrom(envFunc(map[string]string{"CONTROL_MODE": "hybrid"}))
	assert.Equal(t, ControlModeHybrid, res.Config.Control.Mode)
	assert.Empty(t, res.Warnings)
}

func TestAuthModeFallback(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"AUTH_MODE": "steam"}))
	assert.Equal(t, AuthOffline, res.Config.GameServer.AuthMode)
	require.Len(t, res.Warnings, 1)
}

func TestAgentURLDefaultsNonContainer(t *testing.T) {
	res := LoadFrom(envFunc(nil))
	assert.Equal(t, "ws://127.0.0.1:9000", res.Config.AgentBridge.URL)
}

func TestAgentURLExplicitWins(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"AGENT_WS_URL": "ws://override:1234"}))
	assert.Equal(t, "ws://override:1234", res.Config.AgentBridge.URL)
}

func TestAgentURLHostPortComposition(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"AGENT_WS_HOST": "planner.example", "AGENT_WS_PORT": "9500"}))
	assert.Equal(t, "ws://planner.example:9500", res.Config.AgentBridge.URL)
}

func TestOtelSamplerClampsAndDefaultsOnInvalid(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"OTEL_TRACES_SAMPLER_ARG": "2.5"}))
	assert.Equal(t, 1.0, res.Config.Otel.SamplerRatio)

	res = LoadFrom(envFunc(map[string]string{"OTEL_TRACES_SAMPLER_ARG": "not-a-number"}))
	assert.Equal(t, 1.0, res.Config.Otel.SamplerRatio)
	require.Len(t, res.Warnings, 1)
}

func TestPerceptionDefaults(t *testing.T) {
	res := LoadFrom(envFunc(nil))
	assert.Equal(t, 12, res.Config.Perception.EntityRadius)
	assert.Equal(t, 4, res.Config.Perception.BlockRadius)
	assert.Equal(t, 2, res.Config.Perception.BlockHeight)
	assert.Equal(t, 1500, res.Config.Perception.BroadcastIntervalMs)
}

func TestPerceptionBroadcastIntervalClamps(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"PERCEPTION_BROADCAST_INTERVAL_MS": "10"}))
	assert.Equal(t, 250, res.Config.Perception.BroadcastIntervalMs)

	res = LoadFrom(envFunc(map[string]string{"PERCEPTION_BROADCAST_INTERVAL_MS": "99999"}))
	assert.Equal(t, 30000, res.Config.Perception.BroadcastIntervalMs)
}

func TestSkillHistoryPathDefault(t *testing.T) {
	res := LoadFrom(envFunc(nil))
	assert.Equal(t, "var/skills/history.ndjson", res.Config.Skills.HistoryPath)
}

func TestRouterDefaults(t *testing.T) {
	res := LoadFrom(envFunc(nil))
	assert.Equal(t, "0.0.0.0", res.Config.Router.Host)
	assert.Equal(t, 8765, res.Config.Router.Port)
}

func TestInvalidIntegerFallsBackToDefaultWithWarning(t *testing.T) {
	res := LoadFrom(envFunc(map[string]string{"MC_PORT": "not-a-port"}))
	assert.Equal(t, 25565, res.Config.GameServer.Port)
	require.Len(t, res.Warnings, 1)
}
