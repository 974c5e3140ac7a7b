// Package schema generates a JSON Schema per command verb (via
// invopop/jsonschema, grounded on julianknutsen-gascity's docgen
// package) and validates inbound Command Envelope args against it (via
// santhosh-tekuri/jsonschema/v6, grounded on goadesign-goa-ai's registry
// service). This runs before the Command Router's semantic validation —
// it catches shape errors (wrong type, missing required field) early so
// handlers only deal with well-formed args.
package schema

import (
	"fmt"

	"github.com/kandev/mc-agent-core/pkg/protocol"
)

// ChatArgs is the args shape for protocol.VerbChat.
type ChatArgs struct {
	Text string `json:"text" jsonschema:"required,minLength=1" jsonschema_description:"chat message to send through the game client"`
}

// MoveToArgs is the args shape for protocol.VerbMoveTo. X/Y/Z are typed
// as `any` here rather than float64: this schema only gates presence,
// leaving numeric-type and finiteness checking to the moveTo handler so
// a non-numeric coordinate surfaces spec.md's exact "Invalid
// coordinates" message instead of a generic schema-validation error.
type MoveToArgs struct {
	X         any  `json:"x" jsonschema:"required"`
	Y         any  `json:"y" jsonschema:"required"`
	Z         any  `json:"z" jsonschema:"required"`
	Tolerance *int `json:"tolerance,omitempty" jsonschema:"minimum=1,maximum=30"`
}

// EquipItemArgs is the args shape for protocol.VerbEquipItem.
type EquipItemArgs struct {
	ItemName string `json:"itemName" jsonschema:"required,minLength=1"`
}

// GatherStatusArgs is the args shape for protocol.VerbGatherStatus.
type GatherStatusArgs struct {
	Kind string `json:"kind" jsonschema:"required,enum=position,enum=inventory,enum=general,enum=environment"`
}

// GatherVptObservationArgs is the (empty) args shape for
// protocol.VerbGatherVptObservation.
type GatherVptObservationArgs struct{}

// MineOreArgs is the args shape for protocol.VerbMineOre.
type MineOreArgs struct {
	OreType string `json:"oreType" jsonschema:"required,minLength=1"`
	Radius  *int   `json:"radius,omitempty" jsonschema:"minimum=1,maximum=32"`
}

// SetAgentRoleArgs is the args shape for protocol.VerbSetAgentRole.
type SetAgentRoleArgs struct {
	Role   string `json:"role" jsonschema:"required,minLength=1"`
	Source string `json:"source,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// RegisterSkillArgs is the args shape for protocol.VerbRegisterSkill.
type RegisterSkillArgs struct {
	ID          string   `json:"id" jsonschema:"required,minLength=1"`
	Title       string   `json:"title" jsonschema:"required,minLength=1"`
	Description string   `json:"description" jsonschema:"required,minLength=1"`
	Steps       []string `json:"steps" jsonschema:"required,minItems=1"`
	Tags        []string `json:"tags,omitempty"`
}

// InvokeSkillArgs is the args shape for protocol.VerbInvokeSkill.
type InvokeSkillArgs struct {
	ID      string         `json:"id" jsonschema:"required,minLength=1"`
	Context map[string]any `json:"context,omitempty"`
}

// SkillExploreArgs is the args shape for protocol.VerbSkillExplore.
type SkillExploreArgs struct {
	ID          string         `json:"id" jsonschema:"required,minLength=1"`
	Description string         `json:"description" jsonschema:"required,minLength=1"`
	Context     map[string]any `json:"context,omitempty"`
}

// PlayVptAction is one element of PlayVptActionsArgs.Actions.
type PlayVptAction struct {
	Kind          string   `json:"kind" jsonschema:"required,enum=control,enum=look,enum=wait"`
	Control       string   `json:"control,omitempty"`
	State         *bool    `json:"state,omitempty"`
	DurationTicks *float64 `json:"durationTicks,omitempty" jsonschema:"minimum=0"`
	Yaw           *float64 `json:"yaw,omitempty"`
	Pitch         *float64 `json:"pitch,omitempty"`
	Relative      *bool    `json:"relative,omitempty"`
}

// PlayVptActionsArgs is the args shape for protocol.VerbPlayVptActions.
type PlayVptActionsArgs struct {
	Actions []PlayVptAction `json:"actions" jsonschema:"required"`
}

// argsPrototype returns a zero value of the Go struct backing verb's
// args shape, or nil if the verb has no schema-checked shape.
func argsPrototype(verb protocol.Verb) any {
	switch verb {
	case protocol.VerbChat:
		return &ChatArgs{}
	case protocol.VerbMoveTo:
		return &MoveToArgs{}
	case protocol.VerbEquipItem:
		return &EquipItemArgs{}
	case protocol.VerbGatherStatus:
		return &GatherStatusArgs{}
	case protocol.VerbGatherVptObservation:
		return &GatherVptObservationArgs{}
	case protocol.VerbMineOre:
		return &MineOreArgs{}
	case protocol.VerbSetAgentRole:
		return &SetAgentRoleArgs{}
	case protocol.VerbRegisterSkill:
		return &RegisterSkillArgs{}
	case protocol.VerbInvokeSkill:
		return &InvokeSkillArgs{}
	case protocol.VerbSkillExplore:
		return &SkillExploreArgs{}
	case protocol.VerbPlayVptActions:
		return &PlayVptActionsArgs{}
	default:
		return nil
	}
}

func errUnknownVerb(verb protocol.Verb) error {
	return fmt.Errorf("schema: no args shape registered for verb %q", verb)
}
