package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/roles"
)

func testLogger(t *testing.T) *obslog.Logger {
	t.Helper()
	log, err := obslog.New(obslog.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func TestStartConnectsAndGetActiveClientRequiresSpawn(t *testing.T) {
	fake := gameclient.NewFake()
	clk := clock.NewFake(time.Unix(0, 0))
	log := testLogger(t)

	sup := New(func() gameclient.Client { return fake }, clk, log, func() int64 { return 1000 })
	require.NoError(t, sup.Start(context.Background(), gameclient.ConnectOptions{Host: "h", Port: 1}, nil))

	assert.Nil(t, sup.GetActiveClient())
	fake.Spawn()
	assert.NotNil(t, sup.GetActiveClient())
}

func TestDisconnectSchedulesIdempotentReconnect(t *testing.T) {
	first := gameclient.NewFake()
	second := gameclient.NewFake()
	calls := 0
	factory := func() gameclient.Client {
		calls++
		if calls == 1 {
			return first
		}
		return second
	}

	clk := clock.NewFake(time.Unix(0, 0))
	log := testLogger(t)
	sup := New(factory, clk, log, func() int64 { return 5000 })

	require.NoError(t, sup.Start(context.Background(), gameclient.ConnectOptions{}, nil))
	first.Spawn()
	require.NotNil(t, sup.GetActiveClient())

	first.SignalDisconnect(gameclient.DisconnectConnectionError)
	assert.Nil(t, sup.GetActiveClient())

	// A second disconnect signal before the timer fires must not arm a
	// second reconnect timer (idempotent scheduling).
	first.SignalDisconnect(gameclient.DisconnectConnectionError)

	clk.Advance(5 * time.Second)
	assert.Equal(t, 2, calls)
	second.Spawn()
	assert.Equal(t, second, sup.GetActiveClient())
}

func TestApplyAgentRoleUpdateNormalisesAndStamps(t *testing.T) {
	clk := clock.NewFake(time.Unix(42, 0))
	log := testLogger(t)
	sup := New(func() gameclient.Client { return gameclient.NewFake() }, clk, log, func() int64 { return 1 })

	state := sup.ApplyAgentRoleUpdate("scout", "planner", "recon")
	assert.Equal(t, roles.Scout, state.Role)
	assert.Equal(t, int64(1), state.LastEventID)

	state2 := sup.ApplyAgentRoleUpdate("not-a-role", "planner", "")
	assert.Equal(t, roles.Generalist, state2.Role)
	assert.Equal(t, int64(2), state2.LastEventID)
	assert.Equal(t, state2, sup.RoleState())
}

func TestConnectFailureSchedulesReconnect(t *testing.T) {
	failing := gameclient.NewFake()
	failing.ConnectErr = assertConnErr

	succeeding := gameclient.NewFake()
	calls := 0
	factory := func() gameclient.Client {
		calls++
		if calls == 1 {
			return failing
		}
		return succeeding
	}

	clk := clock.NewFake(time.Unix(0, 0))
	log := testLogger(t)
	sup := New(factory, clk, log, func() int64 { return 2000 })

	err := sup.Start(context.Background(), gameclient.ConnectOptions{}, nil)
	assert.Error(t, err)
	assert.Nil(t, sup.GetActiveClient())

	clk.Advance(2 * time.Second)
	assert.Equal(t, 2, calls)
	succeeding.Spawn()
	assert.Equal(t, succeeding, sup.GetActiveClient())
}

var assertConnErr = errConn{}

type errConn struct{}

func (errConn) Error() string { return "connection refused" }
