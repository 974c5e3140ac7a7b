package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNoopWithoutEndpoint(t *testing.T) {
	tc, err := New(context.Background(), Options{ServiceName: "mc-agent-core"})
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.NotNil(t, tc.Tracer())
	assert.NotNil(t, tc.Instruments.CommandsTotal)

	ctx, span := tc.StartSpan(context.Background(), "command.chat")
	span.End()
	assert.NotNil(t, ctx)
}

func TestWrapOperationPropagatesError(t *testing.T) {
	tc, err := New(context.Background(), Options{})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tc.WrapOperation(context.Background(), "navigation.moveTo", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWrapOperationOk(t *testing.T) {
	tc, err := New(context.Background(), Options{})
	require.NoError(t, err)

	called := false
	err = tc.WrapOperation(context.Background(), "navigation.moveTo", func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestShutdownNoopIsSafe(t *testing.T) {
	tc, err := New(context.Background(), Options{})
	require.NoError(t, err)
	assert.NoError(t, tc.Shutdown(context.Background()))
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	assert.Equal(t, "collector:4318", stripScheme("collector:4318"))
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 1.0, clampRatio(2.5))
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 0.5, clampRatio(0.5))
}
