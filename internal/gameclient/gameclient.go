// Package gameclient defines the external collaborator seam for the
// low-level game-protocol client and the path-finding library. Neither
// has a real implementation here: the teacher repo never embeds a
// Minecraft client either, and the spec calls both out explicitly as
// "interfaces only, not implementation." internal/lifecycle,
// internal/navigation, internal/perception, internal/playback, and
// internal/sustainability depend only on these interfaces; a
// deterministic Fake in fake.go backs their tests.
package gameclient

import (
	"context"
	"time"
)

// Dimension names the world the entity currently occupies.
type Dimension string

// AuthMode selects how the client authenticates to the game server.
type AuthMode string

const (
	AuthOffline  AuthMode = "offline"
	AuthMicrosoft AuthMode = "microsoft"
)

// ConnectOptions configures a new Client per spec.md §4.4's
// startLifecycle contract.
type ConnectOptions struct {
	Host                  string
	Port                  int
	Username              string
	AuthMode              AuthMode
	Version               string
	CustomProtocolPatches map[string]any
}

// Vec3 is an integer-or-float position; navigation and perception both
// floor it when reporting block coordinates.
type Vec3 struct {
	X, Y, Z float64
}

// Orientation is yaw/pitch in radians, the unit the game client speaks
// natively. Perception and playback convert to degrees at their edges.
type Orientation struct {
	Yaw, Pitch float64
}

// EntityKind classifies a nearby entity for perception bearing/summary
// output.
type EntityKind string

const (
	EntityPlayer  EntityKind = "player"
	EntityHostile EntityKind = "hostile"
	EntityPassive EntityKind = "passive"
	EntityOther   EntityKind = "other"
)

// Entity is any mob, player, or object the world reports.
type Entity struct {
	ID       string
	Name     string
	Type     string
	Kind     string
	Position Vec3
}

// Self is the bot's own entity state.
type Self struct {
	Position    Vec3
	Velocity    Vec3
	Orientation Orientation
	OnGround    bool
	Health      float64
	MaxHealth   float64
	Food        float64
	Saturation  float64
	Oxygen      float64
	GameMode    string
}

// ItemStack is one inventory slot's contents, or the zero value for an
// empty slot.
type ItemStack struct {
	Slot           int
	Name           string
	DisplayName    string
	Count          int
	Durability     *int
	MaxDurability  *int
	Enchantments   []string
}

// Inventory exposes slot contents and hotbar/held-item queries.
type Inventory interface {
	Items() []ItemStack
	HotbarSlots() []ItemStack
	HeldItem() *ItemStack
	FindByCanonicalName(name string) (ItemStack, bool)
	Equip(ctx context.Context, slot int) error
	Consume(ctx context.Context) error
}

// Block is one world cell, as read by hazard/lighting scans.
type Block struct {
	Name      string
	IsLiquid  bool
	IsEmpty   bool
	SkyLight  *int
	BlockLight *int
}

// Weather is the world's current weather state.
type Weather struct {
	IsRaining    bool
	RainLevel    float64
	ThunderLevel float64
}

// TimeState is the world clock.
type TimeState struct {
	Age       int64
	Day       int64
	TimeOfDay int64
}

// World exposes read-only queries into the connected game server's
// world state, used by the Perception Sampler's hazard and entity
// scans.
type World interface {
	Weather() Weather
	Time() TimeState
	BlockAt(pos Vec3) (Block, bool)
	EntitiesWithin(center Vec3, radiusMeters float64) []Entity
	Dimension() Dimension
}

// MovementGoal is a path-finding target. Per spec.md §11 (redesign
// flags), only GoalNear is produced by the Navigation Controller;
// GoalBlock exists solely so a fake PathFinder can recognise legacy
// call sites if ever exercised.
type MovementGoal struct {
	X, Y, Z   float64
	Tolerance float64
	Kind      string // "near" or "block"
}

// MovementProfile configures the path-finder's willingness to dig,
// parkour, and sprint (spec.md §4.5).
type MovementProfile struct {
	CanDig         bool
	DigCost        float64
	AllowParkour   bool
	AllowSprinting bool
}

// PathFinder drives the bot toward a goal under a movement profile.
// Goto blocks until arrival, cancellation, or a path-finding error —
// implementations report "goal changed" (forced-move) and "no path"
// failures through the returned error's text, matching the upstream
// path-finding library's untyped error convention.
type PathFinder interface {
	SetMovements(profile MovementProfile)
	Goto(ctx context.Context, goal MovementGoal) error
	Stop()
}

// EventHandlers are invoked by the Client when the underlying game
// connection reports state changes. The Lifecycle Supervisor registers
// exactly one set of handlers per spec.md §4.4, reused across
// reconnects.
type EventHandlers struct {
	OnSpawn        func()
	OnHealth       func()
	OnForcedMove   func()
	OnDisconnect   func(reason DisconnectReason)
}

// DisconnectReason narrows the game client's disconnect signal to the
// three cases the Lifecycle Supervisor reacts to.
type DisconnectReason string

const (
	DisconnectConnectionError DisconnectReason = "connection_error"
	DisconnectKicked          DisconnectReason = "kicked"
	DisconnectEnded           DisconnectReason = "ended"
)

// Client is the low-level game-protocol connection. Connect blocks
// until the TCP/protocol handshake completes; spawn (entity
// materialisation) is signalled asynchronously via EventHandlers.OnSpawn.
type Client interface {
	Connect(ctx context.Context, opts ConnectOptions) error
	RegisterHandlers(h EventHandlers)
	Disconnect() error

	Self() Self
	Inventory() Inventory
	World() World
	PathFinder() PathFinder

	Chat(ctx context.Context, message string) error
	Dig(ctx context.Context, pos Vec3) error

	// SetControlState presses or releases one control input, used by the
	// Action Playback Engine.
	SetControlState(ctx context.Context, control string, state bool) error
	// Look sets absolute yaw/pitch in radians, used by the Action
	// Playback Engine's look action.
	Look(ctx context.Context, yaw, pitch float64) error

	// Spawned reports whether the entity has materialised — the second
	// half of getActiveClient()'s readiness check (spec.md §4.4).
	Spawned() bool
}

// ConnectTimeout is a default connect deadline for Client
// implementations to apply when Connect's ctx carries none. The
// Lifecycle Supervisor passes Connect its caller's ctx
// (context.Background() on reconnect) without adding a deadline.
const ConnectTimeout = 10 * time.Second
