// Package perception implements the Perception/Status Sampler (spec.md
// §4.6): four snapshot kinds, hazard scanning, nearby-entity
// classification, and broadcast throttling. Grounded on the teacher's
// internal/orchestrator/streaming/hub.go broadcast-fan-out shape,
// retargeted from client fan-out to snapshot-kind dispatch, plus
// golang.org/x/sync/errgroup (used nowhere in the teacher, adopted here
// per SPEC_FULL's domain stack) to build the environment snapshot's
// sub-parts concurrently.
package perception

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/roles"
	"github.com/kandev/mc-agent-core/internal/telemetry"
)

// Kind is one of the four snapshot kinds gatherStatus accepts.
type Kind string

const (
	KindPosition    Kind = "position"
	KindInventory   Kind = "inventory"
	KindGeneral     Kind = "general"
	KindEnvironment Kind = "environment"
)

// Position is the position snapshot kind.
type Position struct {
	X, Y, Z   int
	Dimension string
	Summary   string
}

// ItemDetail is one occupied inventory slot.
type ItemDetail struct {
	Slot           int
	CanonicalName  string
	DisplayName    string
	Count          int
	Enchantments   []string
	Durability     *int
}

// Inventory is the inventory snapshot kind.
type Inventory struct {
	OccupiedSlots int
	TotalSlots    int
	Items         []ItemDetail
	Pickaxes      []ItemDetail
	TorchCount    int
	Summary       string
}

// DigPermission is the general snapshot's dig-permission triad.
type DigPermission struct {
	Allowed                    bool
	GameMode                   string
	FallbackMovementInitialized bool
	Reason                     string
}

// General is the general snapshot kind.
type General struct {
	Health       float64
	MaxHealth    float64
	Food         float64
	Saturation   float64
	Oxygen       float64
	DigPermission DigPermission
	Perception   *Snapshot
	Role         roles.Role
}

// Environment is the environment snapshot kind.
type Environment struct {
	Perception Snapshot
	Role       roles.Role
	QueueSize  int
}

// Bearing is one of 8 compass labels.
type Bearing string

const (
	BearingN  Bearing = "N"
	BearingNE Bearing = "NE"
	BearingE  Bearing = "E"
	BearingSE Bearing = "SE"
	BearingS  Bearing = "S"
	BearingSW Bearing = "SW"
	BearingW  Bearing = "W"
	BearingNW Bearing = "NW"
)

// EntityDetail is one of the top-5 nearby entities kept in a snapshot.
type EntityDetail struct {
	Name     string
	Kind     gameclient.EntityKind
	Distance float64
	Bearing  Bearing
	X, Y, Z  int
}

// NearbyEntities summarises the entity scan.
type NearbyEntities struct {
	Total    int
	Hostiles int
	Players  int
	Details  []EntityDetail
}

// Hazards summarises the block-box scan.
type Hazards struct {
	Liquids      int
	Lava         int
	Magmas       int
	Voids        int
	ClosestLiquid *[3]int
	ClosestVoid   *[3]int
}

// Weather is the weather snapshot field.
type Weather struct {
	IsRaining    bool
	RainLevel    float64
	ThunderLevel float64
	Label        string
}

// TimeOfDay is the time snapshot field.
type TimeOfDay struct {
	Age       int64
	Day       int64
	TimeOfDay int64
	IsDay     bool
}

// Lighting is nil if unavailable.
type Lighting struct {
	Sky   int
	Block int
}

// Snapshot is the Perception Snapshot record (spec.md §3).
type Snapshot struct {
	Position Position
	Weather  Weather
	Time     TimeOfDay
	Lighting *Lighting
	Hazards  Hazards
	Entities NearbyEntities
	Warnings []string
	Summary  string
	BuiltAt  time.Time
}

// Sampler builds snapshots and throttles broadcasts.
type Sampler struct {
	cfg config.Perception
	clk clock.Clock
	tel *telemetry.Context

	mu               sync.Mutex
	lastSnapshot     *Snapshot
	throttle         *rate.Limiter
	lastPositionSent *[3]int
}

// New builds a Sampler. The broadcast throttle is a one-token
// rate.Limiter keyed by cfg.BroadcastIntervalMs, driven through clk via
// AllowN/ReserveN's explicit now parameter rather than rate's internal
// wall clock, so fake-clock tests stay deterministic.
func New(cfg config.Perception, clk clock.Clock, tel *telemetry.Context) *Sampler {
	interval := time.Duration(cfg.BroadcastIntervalMs) * time.Millisecond
	return &Sampler{
		cfg:      cfg,
		clk:      clk,
		tel:      tel,
		throttle: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// GatherStatus builds the requested snapshot kind. client may be nil;
// every kind degrades to its zero-ish value when the game client is not
// ready rather than failing; only an unrecognised kind returns an error.
func (s *Sampler) GatherStatus(ctx context.Context, kind Kind, client gameclient.Client, role roles.Role, queueSize int) (any, error) {
	switch kind {
	case KindPosition:
		return s.buildPosition(client), nil
	case KindInventory:
		return s.buildInventory(client), nil
	case KindGeneral:
		return s.buildGeneral(ctx, client, role), nil
	case KindEnvironment:
		snap := s.BuildSnapshot(ctx, client)
		if snap == nil {
			snap = &Snapshot{}
		}
		return Environment{Perception: *snap, Role: role, QueueSize: queueSize}, nil
	default:
		return nil, fmt.Errorf("perception: unknown status kind %q", kind)
	}
}

func (s *Sampler) buildPosition(client gameclient.Client) Position {
	if client == nil {
		return Position{Summary: "position unavailable"}
	}
	pos := client.Self().Position
	x, y, z := int(math.Floor(pos.X)), int(math.Floor(pos.Y)), int(math.Floor(pos.Z))
	dim := string(client.World().Dimension())
	return Position{
		X: x, Y: y, Z: z, Dimension: dim,
		Summary: fmt.Sprintf("at (%d, %d, %d) in %s", x, y, z, dim),
	}
}

func (s *Sampler) buildInventory(client gameclient.Client) Inventory {
	if client == nil {
		return Inventory{Summary: "inventory unavailable"}
	}
	items := client.Inventory().Items()
	inv := Inventory{TotalSlots: 36}
	for _, it := range items {
		if it.Count == 0 {
			continue
		}
		inv.OccupiedSlots++
		detail := ItemDetail{
			Slot: it.Slot, CanonicalName: it.Name, DisplayName: it.DisplayName,
			Count: it.Count, Enchantments: it.Enchantments, Durability: it.Durability,
		}
		inv.Items = append(inv.Items, detail)
		if strings.HasSuffix(it.Name, "_pickaxe") {
			inv.Pickaxes = append(inv.Pickaxes, detail)
		}
		if strings.Contains(it.Name, "torch") {
			inv.TorchCount += it.Count
		}
	}
	inv.Summary = fmt.Sprintf("%d/%d slots occupied, %d torches", inv.OccupiedSlots, inv.TotalSlots, inv.TorchCount)
	return inv
}

func (s *Sampler) buildGeneral(ctx context.Context, client gameclient.Client, role roles.Role) General {
	if client == nil {
		return General{Role: role}
	}
	self := client.Self()
	snap := s.BuildSnapshot(ctx, client)
	gameMode := self.GameMode
	gameModeOK := gameMode != "adventure" && gameMode != "spectator"
	// The dig-permissive movement profile is built from config by the
	// Navigation Controller on each fallback and always carries
	// CanDig=true by construction, so it is reported ready whenever a
	// client is active.
	fallbackReady := true
	fallbackCanDig := true
	allowed := gameModeOK && fallbackReady && fallbackCanDig
	return General{
		Health:     math.Round(self.Health),
		MaxHealth:  math.Round(self.MaxHealth),
		Food:       math.Round(self.Food),
		Saturation: math.Round(self.Saturation*10) / 10,
		Oxygen:     self.Oxygen,
		DigPermission: DigPermission{
			Allowed:                     allowed,
			GameMode:                    gameMode,
			FallbackMovementInitialized: fallbackReady,
			Reason:                      digPermissionReason(allowed, gameMode),
		},
		Perception: snap,
		Role:       role,
	}
}

func digPermissionReason(allowed bool, gameMode string) string {
	if allowed {
		return "dig-permissive profile available"
	}
	return fmt.Sprintf("game mode %q disallows digging", gameMode)
}

// BuildSnapshot constructs the full Perception Snapshot, instrumented
// per spec.md §4.6 (histogram by reason+dimension; error counter;
// substitute previous snapshot on failure). Returns nil only if no
// client is active and no previous snapshot exists.
func (s *Sampler) BuildSnapshot(ctx context.Context, client gameclient.Client) *Snapshot {
	start := s.clk.Now()
	snap, err := s.buildSnapshotInner(ctx, client)
	if s.tel != nil {
		s.tel.Instruments.SnapshotBuildDuration.Record(ctx, float64(s.clk.Now().Sub(start).Milliseconds()))
		if err != nil {
			s.tel.Instruments.SnapshotErrorsTotal.Add(ctx, 1)
		}
	}
	if err != nil {
		s.mu.Lock()
		prev := s.lastSnapshot
		s.mu.Unlock()
		if prev == nil {
			return nil
		}
		cloned := *prev
		return &cloned
	}
	return snap
}

func (s *Sampler) buildSnapshotInner(ctx context.Context, client gameclient.Client) (*Snapshot, error) {
	if client == nil {
		return nil, fmt.Errorf("perception: no active client")
	}
	self := client.Self()
	world := client.World()
	floored := [3]int{int(math.Floor(self.Position.X)), int(math.Floor(self.Position.Y)), int(math.Floor(self.Position.Z))}

	var (
		weather  Weather
		tod      TimeOfDay
		lighting *Lighting
		hazards  Hazards
		entities NearbyEntities
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		w := world.Weather()
		label := "clear"
		if w.ThunderLevel > 0 {
			label = "thunder"
		} else if w.IsRaining {
			label = "rain"
		}
		weather = Weather{IsRaining: w.IsRaining, RainLevel: w.RainLevel, ThunderLevel: w.ThunderLevel, Label: label}
		return nil
	})
	g.Go(func() error {
		ts := world.Time()
		tod = TimeOfDay{Age: ts.Age, Day: ts.Day, TimeOfDay: ts.TimeOfDay, IsDay: ts.TimeOfDay >= 0 && ts.TimeOfDay < 12000}
		return nil
	})
	g.Go(func() error {
		block, ok := world.BlockAt(gameclient.Vec3{X: float64(floored[0]), Y: float64(floored[1]), Z: float64(floored[2])})
		if ok && block.SkyLight != nil && block.BlockLight != nil {
			lighting = &Lighting{Sky: *block.SkyLight, Block: *block.BlockLight}
		}
		return nil
	})
	g.Go(func() error {
		hazards = s.scanHazards(world, floored)
		return nil
	})
	g.Go(func() error {
		entities = s.scanEntities(world, self.Position)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	warnings := buildWarnings(hazards, lighting, entities)
	snap := &Snapshot{
		Position: s.buildPosition(client),
		Weather:  weather,
		Time:     tod,
		Lighting: lighting,
		Hazards:  hazards,
		Entities: entities,
		Warnings: warnings,
		BuiltAt:  s.clk.Now(),
	}
	snap.Summary = buildSummary(hazards, entities, weather, lighting)

	s.mu.Lock()
	s.lastSnapshot = snap
	s.mu.Unlock()
	return snap, nil
}

func (s *Sampler) scanHazards(world gameclient.World, floored [3]int) Hazards {
	var h Hazards
	closestLiquidDist := math.MaxFloat64
	closestVoidDist := math.MaxFloat64
	for dx := -s.cfg.BlockRadius; dx <= s.cfg.BlockRadius; dx++ {
		for dy := -s.cfg.BlockHeight; dy <= s.cfg.BlockHeight; dy++ {
			for dz := -s.cfg.BlockRadius; dz <= s.cfg.BlockRadius; dz++ {
				pos := gameclient.Vec3{X: float64(floored[0] + dx), Y: float64(floored[1] + dy), Z: float64(floored[2] + dz)}
				block, ok := world.BlockAt(pos)
				if !ok {
					continue
				}
				dist := math.Sqrt(float64(dx*dx + dy*dy + dz*dz))
				name := strings.ToLower(block.Name)
				if block.IsLiquid || strings.Contains(name, "water") || strings.Contains(name, "lava") {
					h.Liquids++
					if strings.Contains(name, "lava") {
						h.Lava++
					}
					if dist < closestLiquidDist {
						closestLiquidDist = dist
						coord := [3]int{floored[0] + dx, floored[1] + dy, floored[2] + dz}
						h.ClosestLiquid = &coord
					}
				}
				if name == "magma_block" {
					h.Magmas++
				}
				if dy < 0 && block.IsEmpty {
					below, ok := world.BlockAt(gameclient.Vec3{X: pos.X, Y: pos.Y - 1, Z: pos.Z})
					if ok && below.IsEmpty {
						h.Voids++
						if dist < closestVoidDist {
							closestVoidDist = dist
							coord := [3]int{floored[0] + dx, floored[1] + dy, floored[2] + dz}
							h.ClosestVoid = &coord
						}
					}
				}
			}
		}
	}
	return h
}

func (s *Sampler) scanEntities(world gameclient.World, self gameclient.Vec3) NearbyEntities {
	raw := world.EntitiesWithin(self, float64(s.cfg.EntityRadius))
	var out NearbyEntities
	type scored struct {
		e    gameclient.Entity
		dist float64
	}
	var candidates []scored
	for _, e := range raw {
		dx := e.Position.X - self.X
		dz := e.Position.Z - self.Z
		dy := e.Position.Y - self.Y
		dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
		kind := classifyEntity(e)
		out.Total++
		switch kind {
		case gameclient.EntityHostile:
			out.Hostiles++
		case gameclient.EntityPlayer:
			out.Players++
		}
		candidates = append(candidates, scored{e: e, dist: dist})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	limit := 5
	if len(candidates) < limit {
		limit = len(candidates)
	}
	for _, c := range candidates[:limit] {
		dx := c.e.Position.X - self.X
		dz := c.e.Position.Z - self.Z
		out.Details = append(out.Details, EntityDetail{
			Name:     c.e.Name,
			Kind:     classifyEntity(c.e),
			Distance: c.dist,
			Bearing:  bearingFor(dx, dz),
			X:        int(math.Floor(c.e.Position.X)),
			Y:        int(math.Floor(c.e.Position.Y)),
			Z:        int(math.Floor(c.e.Position.Z)),
		})
	}
	return out
}

func classifyEntity(e gameclient.Entity) gameclient.EntityKind {
	switch e.Kind {
	case string(gameclient.EntityPlayer), string(gameclient.EntityHostile), string(gameclient.EntityPassive):
		return gameclient.EntityKind(e.Kind)
	}
	if e.Type == "player" {
		return gameclient.EntityPlayer
	}
	return gameclient.EntityOther
}

func bearingFor(dx, dz float64) Bearing {
	angle := math.Atan2(-dx, dz)
	deg := angle * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	labels := []Bearing{BearingN, BearingNE, BearingE, BearingSE, BearingS, BearingSW, BearingW, BearingNW}
	idx := int(math.Round(deg/45)) % 8
	return labels[idx]
}

func buildWarnings(h Hazards, lighting *Lighting, entities NearbyEntities) []string {
	var warnings []string
	if h.Liquids > 0 {
		warnings = append(warnings, fmt.Sprintf("%d liquid hazard(s) nearby", h.Liquids))
	}
	if h.Voids > 0 {
		warnings = append(warnings, fmt.Sprintf("%d void hazard(s) nearby", h.Voids))
	}
	if lighting != nil && lighting.Block < 7 {
		warnings = append(warnings, "low block light")
	}
	if entities.Hostiles > 0 {
		names := make([]string, 0, 3)
		count := 0
		for _, d := range entities.Details {
			if d.Kind == gameclient.EntityHostile && count < 3 {
				names = append(names, d.Name)
				count++
			}
		}
		warnings = append(warnings, fmt.Sprintf("hostiles nearby: %s", strings.Join(names, ", ")))
	}
	return warnings
}

func buildSummary(h Hazards, entities NearbyEntities, w Weather, lighting *Lighting) string {
	parts := []string{
		fmt.Sprintf("hostiles:%d", entities.Hostiles),
		fmt.Sprintf("liquids:%d", h.Liquids),
		fmt.Sprintf("voids:%d", h.Voids),
		fmt.Sprintf("weather:%s", w.Label),
	}
	if lighting != nil {
		parts = append(parts, fmt.Sprintf("light:%d", lighting.Block))
	}
	return strings.Join(parts, "/")
}

// BroadcastPerception enqueues an event via emit only if force or the
// throttle interval has elapsed (spec.md §4.6). The reservation is made
// against s.throttle before the (possibly expensive) snapshot build so a
// forced broadcast still restarts the cooldown from this call, matching
// "mutates lastBroadcastAt ... on each successful build" for both forced
// and natural broadcasts.
func (s *Sampler) BroadcastPerception(ctx context.Context, client gameclient.Client, force bool, emit func(Snapshot)) {
	now := s.clk.Now()
	s.mu.Lock()
	rsv := s.throttle.ReserveN(now, 1)
	due := force || rsv.DelayFrom(now) <= 0
	if !due {
		rsv.CancelAt(now)
	}
	s.mu.Unlock()
	if !due {
		return
	}

	snap := s.BuildSnapshot(ctx, client)
	if snap == nil {
		return
	}
	emit(*snap)
}

// BroadcastPosition enqueues a position event only when the floored
// coordinate differs from the last one sent.
func (s *Sampler) BroadcastPosition(client gameclient.Client, emit func(Position)) {
	if client == nil {
		return
	}
	pos := s.buildPosition(client)
	coord := [3]int{pos.X, pos.Y, pos.Z}
	s.mu.Lock()
	unchanged := s.lastPositionSent != nil && *s.lastPositionSent == coord
	s.lastPositionSent = &coord
	s.mu.Unlock()
	if unchanged {
		return
	}
	emit(pos)
}
