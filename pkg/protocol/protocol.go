// Package protocol defines the wire types exchanged across the Runtime
// Core's two duplex channels: the inbound Command Router and the outbound
// Agent Event Bridge.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Verb is the closed set of recognised Command Envelope types.
type Verb string

const (
	VerbChat                 Verb = "chat"
	VerbMoveTo                Verb = "moveTo"
	VerbEquipItem             Verb = "equipItem"
	VerbGatherStatus          Verb = "gatherStatus"
	VerbGatherVptObservation  Verb = "gatherVptObservation"
	VerbMineOre               Verb = "mineOre"
	VerbSetAgentRole          Verb = "setAgentRole"
	VerbRegisterSkill         Verb = "registerSkill"
	VerbInvokeSkill           Verb = "invokeSkill"
	VerbSkillExplore          Verb = "skillExplore"
	VerbPlayVptActions        Verb = "playVptActions"
)

// KnownVerbs is the full 11-verb enum from spec.md §3. spec.md's Open
// Questions note a divergent legacy {chat, moveTo} subset elsewhere in the
// source lineage; this full set is authoritative here.
var KnownVerbs = map[Verb]bool{
	VerbChat:                true,
	VerbMoveTo:               true,
	VerbEquipItem:            true,
	VerbGatherStatus:         true,
	VerbGatherVptObservation: true,
	VerbMineOre:              true,
	VerbSetAgentRole:         true,
	VerbRegisterSkill:        true,
	VerbInvokeSkill:          true,
	VerbSkillExplore:         true,
	VerbPlayVptActions:       true,
}

// CommandEnvelope is the inbound request shape (spec.md §3).
type CommandEnvelope struct {
	Type Verb                   `json:"type"`
	Args map[string]any         `json:"args"`
	Meta map[string]any         `json:"meta,omitempty"`
}

// CommandResponse is the outbound reply shape (spec.md §3). Exactly one of
// Error or Data is meaningful; Ok=false implies Error is set.
type CommandResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// OK builds a successful response, optionally carrying data.
func OK(data any) CommandResponse {
	return CommandResponse{Ok: true, Data: data}
}

// Fail builds a failed response with a descriptive message.
func Fail(message string) CommandResponse {
	return CommandResponse{Ok: false, Error: message}
}

// Failf builds a failed response with a formatted message.
func Failf(format string, args ...any) CommandResponse {
	return Fail(fmt.Sprintf(format, args...))
}

// EventChannel is always "multi-agent" per spec.md §3.
const EventChannel = "multi-agent"

// EventKind is the closed set of Agent Event kinds.
type EventKind string

const (
	EventPosition   EventKind = "position"
	EventStatus     EventKind = "status"
	EventPerception EventKind = "perception"
	EventRoleUpdate EventKind = "roleUpdate"
)

// AgentEvent is a single typed message emitted toward the planner
// (spec.md §3).
type AgentEvent struct {
	Channel   string         `json:"channel"`
	Event     EventKind      `json:"event"`
	AgentID   string         `json:"agentId"`
	Timestamp int64          `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NewAgentEvent constructs an AgentEvent stamped with the given unix-ms
// timestamp (callers supply the clock so tests stay deterministic).
func NewAgentEvent(kind EventKind, agentID string, timestampMs int64, payload map[string]any) AgentEvent {
	return AgentEvent{
		Channel:   EventChannel,
		Event:     kind,
		AgentID:   agentID,
		Timestamp: timestampMs,
		Payload:   payload,
	}
}

// PlannerEnvelopeArgs is the args payload of an envelope sent to the
// planner carrying a batch of events.
type PlannerEnvelopeArgs struct {
	Events []AgentEvent `json:"events"`
}

// PlannerEnvelope is the "envelope to planner" shape (spec.md §3): always
// type "agentEvent" wrapping a batch of events.
type PlannerEnvelope struct {
	Type string              `json:"type"`
	Args PlannerEnvelopeArgs `json:"args"`
}

// NewPlannerEnvelope batches events into a single outbound envelope.
func NewPlannerEnvelope(events []AgentEvent) PlannerEnvelope {
	return PlannerEnvelope{
		Type: "agentEvent",
		Args: PlannerEnvelopeArgs{Events: events},
	}
}

// Marshal serialises v to compact JSON, used at every send boundary.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
