// Package roles implements the Agent Role closed enum (spec.md §3):
// generalist, defender, supplier, scout, each with a label and a
// responsibility list returned by the setAgentRole command (perception
// snapshots carry only the role itself). Grounded on
// the teacher's small closed-enum-with-descriptor pattern used for task
// states in pkg/api/v1.
package roles

import "time"

// Role is one of the four recognised agent roles.
type Role string

const (
	Generalist Role = "generalist"
	Defender   Role = "defender"
	Supplier   Role = "supplier"
	Scout      Role = "scout"
)

// Descriptor is the human-facing metadata for a Role.
type Descriptor struct {
	Role             Role
	Label            string
	Responsibilities []string
}

var descriptors = map[Role]Descriptor{
	Generalist: {
		Role:  Generalist,
		Label: "Generalist",
		Responsibilities: []string{
			"Execute planner commands without a fixed specialty",
			"Gather resources opportunistically",
		},
	},
	Defender: {
		Role:  Defender,
		Label: "Defender",
		Responsibilities: []string{
			"Prioritise hostile-entity awareness",
			"Hold position near allies when threatened",
		},
	},
	Supplier: {
		Role:  Supplier,
		Label: "Supplier",
		Responsibilities: []string{
			"Gather and transport resources for the team",
			"Maintain food and tool stock",
		},
	},
	Scout: {
		Role:  Scout,
		Label: "Scout",
		Responsibilities: []string{
			"Explore unseen terrain",
			"Report hazards and points of interest",
		},
	},
}

// Normalise maps an arbitrary input id to a known Role, falling back to
// Generalist for anything unrecognised (spec.md §3, §4.4).
func Normalise(id string) Role {
	r := Role(id)
	if _, ok := descriptors[r]; ok {
		return r
	}
	return Generalist
}

// Describe returns the Descriptor for r, defaulting to Generalist's
// descriptor if r is somehow not in the closed set.
func Describe(r Role) Descriptor {
	if d, ok := descriptors[r]; ok {
		return d
	}
	return descriptors[Generalist]
}

// State is the current role assignment plus its provenance, updated via
// applyAgentRoleUpdate (spec.md §4.4).
type State struct {
	Role          Role
	Source        string
	Reason        string
	LastEventID   int64
	LastUpdatedAt time.Time
}

// Apply normalises id, builds the new State, and stamps LastEventID/
// LastUpdatedAt. eventID is an incrementing counter the caller owns
// (the Lifecycle Supervisor bumps it per update).
func Apply(id, source, reason string, eventID int64, now time.Time) State {
	return State{
		Role:          Normalise(id),
		Source:        source,
		Reason:        reason,
		LastEventID:   eventID,
		LastUpdatedAt: now,
	}
}
