// Package playback implements the Action Playback Engine (spec.md §4.7):
// validation and tick-quantised execution of control/look/wait
// sequences, guarded by a single-global-sequence invariant. Grounded on
// the teacher's internal/orchestrator/queue single-consumer drain
// pattern, adapted from a priority queue to a strictly sequential
// action list with a test-and-set "in progress" flag.
package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/navigation"
)

// ActionKind is the closed set of playback action kinds.
type ActionKind string

const (
	ActionControl ActionKind = "control"
	ActionLook    ActionKind = "look"
	ActionWait    ActionKind = "wait"
)

// Control is the closed set of controllable inputs.
type Control string

const (
	ControlForward Control = "forward"
	ControlBack    Control = "back"
	ControlLeft    Control = "left"
	ControlRight   Control = "right"
	ControlJump    Control = "jump"
	ControlSprint  Control = "sprint"
	ControlSneak   Control = "sneak"
	ControlAttack  Control = "attack"
	ControlUse     Control = "use"
)

var knownControls = map[Control]bool{
	ControlForward: true, ControlBack: true, ControlLeft: true, ControlRight: true,
	ControlJump: true, ControlSprint: true, ControlSneak: true, ControlAttack: true, ControlUse: true,
}

// Action is one element of a playback sequence, as decoded from the
// wire shape (internal/schema.PlayVptAction) into validated, typed
// form.
type Action struct {
	Kind          ActionKind
	Control       Control
	State         bool
	DurationTicks int
	Yaw           float64
	Pitch         float64
	Relative      bool
}

// ValidateSequence applies spec.md §4.7's validation rules, returning
// the validated, duration-rounded sequence or a descriptive error.
func ValidateSequence(raw []RawAction, maxLength int) ([]Action, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("sequence must be a non-empty array")
	}
	if len(raw) > maxLength {
		return nil, fmt.Errorf("sequence length %d exceeds maximum %d", len(raw), maxLength)
	}
	out := make([]Action, 0, len(raw))
	for i, r := range raw {
		a, err := validateOne(r)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// RawAction is the untyped shape a playback action arrives in before
// validation (mirrors internal/schema.PlayVptAction's decoded form).
type RawAction struct {
	Kind          string
	Control       string
	State         *bool
	DurationTicks *float64
	Yaw           *float64
	Pitch         *float64
	Relative      *bool
}

func validateOne(r RawAction) (Action, error) {
	if r.Kind == "" {
		return Action{}, fmt.Errorf("missing kind")
	}
	switch ActionKind(r.Kind) {
	case ActionControl:
		if !knownControls[Control(r.Control)] {
			return Action{}, fmt.Errorf("unknown control %q", r.Control)
		}
		if r.State == nil {
			return Action{}, fmt.Errorf("state must be boolean")
		}
		ticks, err := roundDuration(r.DurationTicks)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionControl, Control: Control(r.Control), State: *r.State, DurationTicks: ticks}, nil
	case ActionLook:
		yaw := derefF(r.Yaw)
		pitch := derefF(r.Pitch)
		if !finite(yaw) || !finite(pitch) {
			return Action{}, fmt.Errorf("non-finite yaw/pitch")
		}
		ticks := 0
		if r.DurationTicks != nil {
			var err error
			ticks, err = roundDuration(r.DurationTicks)
			if err != nil {
				return Action{}, err
			}
		}
		return Action{Kind: ActionLook, Yaw: yaw, Pitch: pitch, Relative: derefB(r.Relative), DurationTicks: ticks}, nil
	case ActionWait:
		ticks, err := roundDuration(r.DurationTicks)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionWait, DurationTicks: ticks}, nil
	default:
		return Action{}, fmt.Errorf("unknown action kind %q", r.Kind)
	}
}

func roundDuration(v *float64) (int, error) {
	if v == nil {
		return 0, nil
	}
	if !finite(*v) {
		return 0, fmt.Errorf("non-finite durationTicks")
	}
	rounded := int(math.Round(*v))
	if rounded < 0 {
		return 0, fmt.Errorf("negative durationTicks")
	}
	return rounded, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
func derefF(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
func derefB(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}

// ErrAlreadyInProgress is returned when a sequence is requested while
// another is executing (spec.md §8 invariant 4).
var ErrAlreadyInProgress = fmt.Errorf("Another VPT playback is already in progress")

// ErrDisabled is returned when CONTROL_MODE=command.
var ErrDisabled = fmt.Errorf("playback is disabled in command control mode")

// Engine executes validated sequences against an active game client.
type Engine struct {
	clk   clock.Clock
	mode  func() config.MovementControlMode
	inFlight atomic.Bool
	mu    sync.Mutex
	pressed map[Control]bool
}

// New builds an Engine. modeFn reads the live control mode so tests and
// runtime config changes are both honoured.
func New(clk clock.Clock, modeFn func() config.MovementControlMode) *Engine {
	return &Engine{clk: clk, mode: modeFn, pressed: make(map[Control]bool)}
}

// Play executes an already-validated seq (see ValidateSequence) against
// client, after checking the control mode and the single-sequence
// guard. tickIntervalMs
// converts DurationTicks to real (or virtual-clock) sleep time.
func (e *Engine) Play(ctx context.Context, client gameclient.Client, seq []Action, tickIntervalMs int) error {
	if e.mode() == config.ControlModeCommand {
		return ErrDisabled
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrAlreadyInProgress
	}
	defer e.inFlight.Store(false)
	defer e.releaseAll(ctx, client)

	if client != nil {
		client.PathFinder().Stop()
	}
	e.releaseAll(ctx, client)

	for _, a := range seq {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.execute(ctx, client, a, tickIntervalMs); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, client gameclient.Client, a Action, tickIntervalMs int) error {
	switch a.Kind {
	case ActionControl:
		if client != nil {
			if err := client.SetControlState(ctx, string(a.Control), a.State); err != nil {
				return fmt.Errorf("playback: set control state: %w", err)
			}
		}
		e.setPressed(a.Control, a.State)
		e.sleepTicks(a.DurationTicks, tickIntervalMs)
		return nil
	case ActionLook:
		yaw, pitch := a.Yaw, a.Pitch
		if a.Relative && client != nil {
			self := client.Self()
			yaw += self.Orientation.Yaw
			pitch += self.Orientation.Pitch
		}
		if pitch > math.Pi/2 {
			pitch = math.Pi / 2
		}
		if pitch < -math.Pi/2 {
			pitch = -math.Pi / 2
		}
		if client != nil {
			if err := client.Look(ctx, yaw, pitch); err != nil {
				return fmt.Errorf("playback: look: %w", err)
			}
		}
		e.sleepTicks(a.DurationTicks, tickIntervalMs)
		return nil
	case ActionWait:
		e.sleepTicks(a.DurationTicks, tickIntervalMs)
		return nil
	default:
		return fmt.Errorf("unsupported action kind %q", a.Kind)
	}
}

func (e *Engine) sleepTicks(ticks, tickIntervalMs int) {
	if ticks <= 0 {
		return
	}
	e.clk.Sleep(time.Duration(ticks*tickIntervalMs) * time.Millisecond)
}

func (e *Engine) setPressed(c Control, state bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state {
		e.pressed[c] = true
	} else {
		delete(e.pressed, c)
	}
}

// releaseAll releases every pressed control on any exit path (success,
// error, or cancellation), matching spec.md §4.7's unconditional
// release rule.
func (e *Engine) releaseAll(ctx context.Context, client gameclient.Client) {
	e.mu.Lock()
	pressed := e.pressed
	e.pressed = make(map[Control]bool)
	e.mu.Unlock()
	if client == nil {
		return
	}
	for c := range pressed {
		_ = client.SetControlState(ctx, string(c), false)
	}
}

// Pressed returns the currently pressed control set, for tests.
func (e *Engine) Pressed() map[Control]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[Control]bool, len(e.pressed))
	for k, v := range e.pressed {
		out[k] = v
	}
	return out
}

// InProgress reports whether a sequence is currently executing.
func (e *Engine) InProgress() bool {
	return e.inFlight.Load()
}

// HotbarSlot is one entry in Observation's 9-slot hotbar snapshot.
// Empty slots are reported with a zero count rather than omitted.
type HotbarSlot struct {
	Slot  int    `json:"slot"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// NavigationHint summarises the gap to the last recorded movement
// target, or the zero value if no target has been recorded yet.
type NavigationHint struct {
	HasTarget        bool    `json:"hasTarget"`
	TargetYawDegrees float64 `json:"targetYawDegrees,omitempty"`
	HorizontalDist   float64 `json:"horizontalDistance,omitempty"`
	VerticalOffset   float64 `json:"verticalOffset,omitempty"`
}

// Observation is the single-frame snapshot returned by
// gatherVptObservation (spec.md §4.7's "Observation counterpart").
type Observation struct {
	Position    gameclient.Vec3 `json:"position"`
	Velocity    gameclient.Vec3 `json:"velocity"`
	YawDegrees  float64         `json:"yawDegrees"`
	PitchDegrees float64        `json:"pitchDegrees"`
	Health      float64         `json:"health"`
	Food        float64         `json:"food"`
	Saturation  float64         `json:"saturation"`
	OnGround    bool            `json:"onGround"`
	Hotbar      [9]HotbarSlot   `json:"hotbar"`
	HeldItem    string          `json:"heldItem"`
	Navigation  NavigationHint  `json:"navigation"`
	TimestampMs int64           `json:"timestampMs"`
	TickAge     int64           `json:"tickAge"`
	Dimension   string          `json:"dimension"`
}

// GatherObservation builds an Observation for the currently active
// client. target is the Navigation Controller's last recorded moveTo
// goal, used to compute the navigation hint.
func (e *Engine) GatherObservation(client gameclient.Client, target navigation.Target) (Observation, error) {
	if client == nil {
		return Observation{}, fmt.Errorf("Bot is not connected to the Minecraft server yet")
	}

	self := client.Self()
	ts := client.World().Time()

	obs := Observation{
		Position:     self.Position,
		Velocity:     self.Velocity,
		YawDegrees:   degrees(self.Orientation.Yaw),
		PitchDegrees: degrees(self.Orientation.Pitch),
		Health:       math.Round(self.Health),
		Food:         math.Round(self.Food),
		Saturation:   math.Round(self.Saturation*10) / 10,
		OnGround:     self.OnGround,
		TimestampMs:  e.clk.Now().UnixMilli(),
		TickAge:      ts.Age,
		Dimension:    string(client.World().Dimension()),
	}

	for i := range obs.Hotbar {
		obs.Hotbar[i] = HotbarSlot{Slot: i}
	}
	for _, item := range client.Inventory().HotbarSlots() {
		if item.Slot >= 0 && item.Slot < len(obs.Hotbar) {
			obs.Hotbar[item.Slot] = HotbarSlot{Slot: item.Slot, Name: item.Name, Count: item.Count}
		}
	}
	if held := client.Inventory().HeldItem(); held != nil {
		obs.HeldItem = held.Name
	}

	if target.Set {
		dx := target.X - self.Position.X
		dz := target.Z - self.Position.Z
		obs.Navigation = NavigationHint{
			HasTarget:        true,
			TargetYawDegrees: degrees(math.Atan2(-dx, dz)),
			HorizontalDist:   math.Hypot(dx, dz),
			VerticalOffset:   target.Y - self.Position.Y,
		}
	}

	return obs, nil
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
