package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/mc-agent-core/pkg/protocol"
)

func TestNewRegistryCoversKnownVerbs(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Verbs())

	s, err := reg.SchemaFor(protocol.VerbChat)
	require.NoError(t, err)
	assert.Equal(t, "chat args", s.Title)
}

func TestValidateChatArgsRejectsMissingText(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	err = reg.Validate(protocol.VerbChat, map[string]any{})
	assert.Error(t, err)

	err = reg.Validate(protocol.VerbChat, map[string]any{"text": "hello"})
	assert.NoError(t, err)
}

func TestValidateMoveToRequiresCoordinates(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	err = reg.Validate(protocol.VerbMoveTo, map[string]any{"x": 1.0, "y": 2.0})
	assert.Error(t, err)

	err = reg.Validate(protocol.VerbMoveTo, map[string]any{"x": 1.0, "y": 2.0, "z": 3.0})
	assert.NoError(t, err)
}

func TestValidateRegisterSkillRequiresNonEmptySteps(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	err = reg.Validate(protocol.VerbRegisterSkill, map[string]any{
		"id": "s1", "title": "t", "description": "d", "steps": []any{},
	})
	assert.Error(t, err)

	err = reg.Validate(protocol.VerbRegisterSkill, map[string]any{
		"id": "s1", "title": "t", "description": "d", "steps": []any{"do thing"},
	})
	assert.NoError(t, err)
}

func TestValidateUnknownVerbIsAccepted(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.NoError(t, reg.Validate(protocol.Verb("bogus"), map[string]any{"anything": true}))
}

func TestValidateGatherStatusEnum(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	assert.NoError(t, reg.Validate(protocol.VerbGatherStatus, map[string]any{"kind": "position"}))
	assert.Error(t, reg.Validate(protocol.VerbGatherStatus, map[string]any{"kind": "nonsense"}))
}
