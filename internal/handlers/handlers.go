// Package handlers provides the thin Command Handlers layer (spec.md
// §2 L3): adapters binding each Command Router verb to the Lifecycle
// Supervisor, Navigation Controller, Perception Sampler, Action
// Playback Engine, Skill Registry, and Agent Event Bridge. Grounded on
// the teacher's internal/orchestrator/handlers.Handlers (thin struct
// binding a dispatcher action to a service method, RegisterHandlers
// wiring every action up front).
package handlers

import (
	"context"
	"math"
	"strings"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/commandrouter"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/eventbridge"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/lifecycle"
	"github.com/kandev/mc-agent-core/internal/navigation"
	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/perception"
	"github.com/kandev/mc-agent-core/internal/playback"
	"github.com/kandev/mc-agent-core/internal/roles"
	"github.com/kandev/mc-agent-core/internal/skills"
	"github.com/kandev/mc-agent-core/internal/sustainability"
	"github.com/kandev/mc-agent-core/pkg/protocol"
)

// errNotConnected is the precondition-not-ready message spec.md's S3
// scenario and §7 error-kind table require verbatim for any verb that
// needs an active, spawned game client.
const errNotConnected = "Bot is not connected to the Minecraft server yet"

// defaultMineRadius is used when mineOre's optional radius arg is
// omitted; the schema rejects a supplied value outside [1, 32].
const defaultMineRadius = 16

// Handlers binds every recognised verb (pkg/protocol.KnownVerbs) to the
// Runtime Core components that implement it.
type Handlers struct {
	agentID string
	cfg     config.Config

	supervisor *lifecycle.Supervisor
	nav        *navigation.Controller
	perception *perception.Sampler
	playback   *playback.Engine
	skillsReg  *skills.Registry
	sustain    *sustainability.Service
	bridge     *eventbridge.Bridge
	clk        clock.Clock
	log        *obslog.Logger
}

// New builds a Handlers bound to the given runtime components.
func New(
	agentID string,
	cfg config.Config,
	supervisor *lifecycle.Supervisor,
	nav *navigation.Controller,
	sampler *perception.Sampler,
	engine *playback.Engine,
	skillsReg *skills.Registry,
	sustain *sustainability.Service,
	bridge *eventbridge.Bridge,
	clk clock.Clock,
	log *obslog.Logger,
) *Handlers {
	return &Handlers{
		agentID:    agentID,
		cfg:        cfg,
		supervisor: supervisor,
		nav:        nav,
		perception: sampler,
		playback:   engine,
		skillsReg:  skillsReg,
		sustain:    sustain,
		bridge:     bridge,
		clk:        clk,
		log:        log,
	}
}

// Register binds every verb handler onto router. Call before
// router.Serve.
func (h *Handlers) Register(router *commandrouter.Router) {
	router.RegisterHandler(protocol.VerbChat, h.chat)
	router.RegisterHandler(protocol.VerbMoveTo, h.moveTo)
	router.RegisterHandler(protocol.VerbEquipItem, h.equipItem)
	router.RegisterHandler(protocol.VerbGatherStatus, h.gatherStatus)
	router.RegisterHandler(protocol.VerbGatherVptObservation, h.gatherVptObservation)
	router.RegisterHandler(protocol.VerbMineOre, h.mineOre)
	router.RegisterHandler(protocol.VerbSetAgentRole, h.setAgentRole)
	router.RegisterHandler(protocol.VerbRegisterSkill, h.registerSkill)
	router.RegisterHandler(protocol.VerbInvokeSkill, h.invokeSkill)
	router.RegisterHandler(protocol.VerbSkillExplore, h.skillExplore)
	router.RegisterHandler(protocol.VerbPlayVptActions, h.playVptActions)
}

// emit wraps bridge.Enqueue with the agent-id/timestamp stamping every
// Agent Event needs (spec.md §3).
func (h *Handlers) emit(ctx context.Context, kind protocol.EventKind, payload map[string]any) {
	h.bridge.Enqueue(ctx, protocol.NewAgentEvent(kind, h.agentID, h.clk.Now().UnixMilli(), payload))
}

func (h *Handlers) chat(ctx context.Context, _ string, args map[string]any) protocol.CommandResponse {
	client := h.supervisor.GetActiveClient()
	if client == nil {
		return protocol.Fail(errNotConnected)
	}
	text, ok := args["text"].(string)
	if !ok || text == "" {
		return protocol.Fail("text must be a non-empty string")
	}
	if err := client.Chat(ctx, text); err != nil {
		return protocol.Failf("chat failed: %v", err)
	}
	return protocol.OK(nil)
}

func (h *Handlers) moveTo(ctx context.Context, _ string, args map[string]any) protocol.CommandResponse {
	x, xok := asFiniteFloat(args["x"])
	y, yok := asFiniteFloat(args["y"])
	z, zok := asFiniteFloat(args["z"])
	if !xok || !yok || !zok {
		return protocol.Fail("Invalid coordinates")
	}

	tolerance := h.cfg.Navigation.GoalTolerance
	if raw, ok := args["tolerance"]; ok {
		if t, ok := asFiniteFloat(raw); ok {
			tolerance = int(math.Round(t))
		}
	}

	client := h.supervisor.GetActiveClient()
	if err := h.nav.MoveTo(ctx, client, x, y, z, tolerance); err != nil {
		return protocol.Fail(err.Error())
	}
	h.perception.BroadcastPosition(client, func(pos perception.Position) {
		h.emit(ctx, protocol.EventPosition, map[string]any{
			"x": pos.X, "y": pos.Y, "z": pos.Z, "dimension": pos.Dimension, "summary": pos.Summary,
		})
	})
	return protocol.OK(nil)
}

func (h *Handlers) equipItem(ctx context.Context, _ string, args map[string]any) protocol.CommandResponse {
	client := h.supervisor.GetActiveClient()
	if client == nil {
		return protocol.Fail(errNotConnected)
	}
	name, ok := args["itemName"].(string)
	if !ok || name == "" {
		return protocol.Fail("itemName must be a non-empty string")
	}
	item, found := client.Inventory().FindByCanonicalName(name)
	if !found {
		return protocol.Failf("item %q not found in inventory", name)
	}
	if err := client.Inventory().Equip(ctx, item.Slot); err != nil {
		return protocol.Failf("equip failed: %v", err)
	}
	return protocol.OK(nil)
}

func (h *Handlers) gatherStatus(ctx context.Context, _ string, args map[string]any) protocol.CommandResponse {
	kindStr, _ := args["kind"].(string)
	client := h.supervisor.GetActiveClient()
	role := h.supervisor.RoleState().Role
	data, err := h.perception.GatherStatus(ctx, perception.Kind(kindStr), client, role, h.bridge.QueueSize())
	if err != nil {
		return protocol.Fail(err.Error())
	}
	return protocol.OK(data)
}

func (h *Handlers) gatherVptObservation(_ context.Context, _ string, _ map[string]any) protocol.CommandResponse {
	client := h.supervisor.GetActiveClient()
	obs, err := h.playback.GatherObservation(client, h.nav.LastTarget())
	if err != nil {
		return protocol.Fail(err.Error())
	}
	return protocol.OK(obs)
}

// oreBlockNames maps a recognised ore type to the set of block names
// that count as an occurrence of it, including the deepslate variant.
// A requested ore type outside this closed set is a domain-unknown
// error (spec.md §7) rather than a silent empty search.
var oreBlockNames = map[string][]string{
	"coal":      {"coal_ore", "deepslate_coal_ore"},
	"iron":      {"iron_ore", "deepslate_iron_ore"},
	"gold":      {"gold_ore", "deepslate_gold_ore", "nether_gold_ore"},
	"copper":    {"copper_ore", "deepslate_copper_ore"},
	"redstone":  {"redstone_ore", "deepslate_redstone_ore"},
	"lapis":     {"lapis_ore", "deepslate_lapis_ore"},
	"diamond":   {"diamond_ore", "deepslate_diamond_ore"},
	"emerald":   {"emerald_ore", "deepslate_emerald_ore"},
	"quartz":    {"nether_quartz_ore"},
	"netherite": {"ancient_debris"},
}

func (h *Handlers) mineOre(ctx context.Context, _ string, args map[string]any) protocol.CommandResponse {
	client := h.supervisor.GetActiveClient()
	if client == nil {
		return protocol.Fail(errNotConnected)
	}
	oreType, _ := args["oreType"].(string)
	names, known := oreBlockNames[strings.ToLower(strings.TrimSpace(oreType))]
	if !known {
		recognised := make([]string, 0, len(oreBlockNames))
		for k := range oreBlockNames {
			recognised = append(recognised, k)
		}
		return protocol.Failf("unrecognised ore type %q; recognised types: %s", oreType, strings.Join(recognised, ", "))
	}

	radius := defaultMineRadius
	if raw, ok := asFiniteFloat(args["radius"]); ok {
		radius = int(math.Round(raw))
	}

	self := client.Self().Position
	floored := gameclient.Vec3{X: math.Floor(self.X), Y: math.Floor(self.Y), Z: math.Floor(self.Z)}
	target, found := h.findNearestOre(client.World(), floored, names, radius)
	if !found {
		return protocol.Failf("no %s found within %d blocks", oreType, radius)
	}

	if err := h.nav.MoveTo(ctx, client, target.X, target.Y, target.Z, 1); err != nil {
		return protocol.Fail(err.Error())
	}
	if err := client.Dig(ctx, target); err != nil {
		return protocol.Failf("mining failed: %v", err)
	}
	return protocol.OK(map[string]any{"oreType": oreType, "position": target})
}

func (h *Handlers) findNearestOre(world gameclient.World, center gameclient.Vec3, names []string, radius int) (gameclient.Vec3, bool) {
	matches := func(name string) bool {
		for _, n := range names {
			if name == n {
				return true
			}
		}
		return false
	}

	best := gameclient.Vec3{}
	found := false
	bestDist := math.MaxFloat64
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				pos := gameclient.Vec3{X: center.X + float64(dx), Y: center.Y + float64(dy), Z: center.Z + float64(dz)}
				block, ok := world.BlockAt(pos)
				if !ok || !matches(strings.ToLower(block.Name)) {
					continue
				}
				dist := math.Sqrt(float64(dx*dx + dy*dy + dz*dz))
				if dist < bestDist {
					bestDist = dist
					best = pos
					found = true
				}
			}
		}
	}
	return best, found
}

func (h *Handlers) setAgentRole(ctx context.Context, _ string, args map[string]any) protocol.CommandResponse {
	roleID, _ := args["role"].(string)
	source, _ := args["source"].(string)
	reason, _ := args["reason"].(string)

	state := h.supervisor.ApplyAgentRoleUpdate(roleID, source, reason)
	descriptor := roles.Describe(state.Role)

	h.emit(ctx, protocol.EventRoleUpdate, map[string]any{
		"role":          string(state.Role),
		"label":         descriptor.Label,
		"source":        state.Source,
		"reason":        state.Reason,
		"lastEventId":   state.LastEventID,
		"lastUpdatedAt": state.LastUpdatedAt.UnixMilli(),
	})
	return protocol.OK(map[string]any{
		"role":             string(state.Role),
		"label":            descriptor.Label,
		"responsibilities": descriptor.Responsibilities,
		"lastEventId":      state.LastEventID,
	})
}

func (h *Handlers) registerSkill(_ context.Context, _ string, args map[string]any) protocol.CommandResponse {
	id, _ := args["id"].(string)
	title, _ := args["title"].(string)
	description, _ := args["description"].(string)
	steps := asStringSlice(args["steps"])
	tags := asStringSlice(args["tags"])

	skill, err := h.skillsReg.RegisterSkill(id, title, description, steps, tags)
	if err != nil {
		return protocol.Fail(err.Error())
	}
	return protocol.OK(skill)
}

func (h *Handlers) invokeSkill(ctx context.Context, _ string, args map[string]any) protocol.CommandResponse {
	id, _ := args["id"].(string)
	skillCtx, _ := args["context"].(map[string]any)
	client := h.supervisor.GetActiveClient()

	steps, err := h.skillsReg.InvokeSkill(ctx, client, id, skillCtx)
	if err != nil {
		return protocol.Fail(err.Error())
	}
	return protocol.OK(map[string]any{"steps": steps})
}

func (h *Handlers) skillExplore(ctx context.Context, _ string, args map[string]any) protocol.CommandResponse {
	id, _ := args["id"].(string)
	description, _ := args["description"].(string)
	skillCtx, _ := args["context"].(map[string]any)
	client := h.supervisor.GetActiveClient()

	h.skillsReg.SkillExplore(ctx, client, id, description, skillCtx)
	return protocol.OK(nil)
}

func (h *Handlers) playVptActions(ctx context.Context, _ string, args map[string]any) protocol.CommandResponse {
	if h.cfg.Control.Mode == config.ControlModeCommand {
		return protocol.Fail(playback.ErrDisabled.Error())
	}

	raw, ok := args["actions"].([]any)
	if !ok {
		return protocol.Fail("actions must be an array")
	}
	rawActions := make([]playback.RawAction, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return protocol.Fail("each action must be an object")
		}
		rawActions = append(rawActions, decodeRawAction(m))
	}

	seq, err := playback.ValidateSequence(rawActions, h.cfg.Control.MaxSequenceLength)
	if err != nil {
		return protocol.Fail(err.Error())
	}

	client := h.supervisor.GetActiveClient()
	if err := h.playback.Play(ctx, client, seq, h.cfg.Control.TickIntervalMs); err != nil {
		return protocol.Fail(err.Error())
	}
	return protocol.OK(nil)
}

func decodeRawAction(m map[string]any) playback.RawAction {
	r := playback.RawAction{}
	r.Kind, _ = m["kind"].(string)
	r.Control, _ = m["control"].(string)
	if v, ok := m["state"].(bool); ok {
		r.State = &v
	}
	if v, ok := asFiniteFloat(m["durationTicks"]); ok {
		r.DurationTicks = &v
	}
	if v, ok := asFiniteFloat(m["yaw"]); ok {
		r.Yaw = &v
	}
	if v, ok := asFiniteFloat(m["pitch"]); ok {
		r.Pitch = &v
	}
	if v, ok := m["relative"].(bool); ok {
		r.Relative = &v
	}
	return r
}

// asFiniteFloat extracts a finite float64 from a decoded JSON value.
// Non-numeric types (a string such as "nan", bools, nil) and
// non-finite numbers both report ok=false, so callers surface the same
// "Invalid coordinates"-style rejection for either case.
func asFiniteFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
