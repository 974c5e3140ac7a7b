package gameclient

import (
	"context"
	"strings"
	"sync"
)

// Fake is a deterministic in-memory Client/World/Inventory/PathFinder
// used across internal/lifecycle, internal/navigation,
// internal/perception, internal/playback, and internal/sustainability
// tests. World and self state is set through the Set* methods; the
// exported fields let tests inject errors (GotoErr, GotoErrSeq,
// ConnectErr) and inspect recorded calls (ChatLog, DigCalls, EquipCalls,
// ConsumeCalls, ControlStates, LookCalls).
type Fake struct {
	mu sync.Mutex

	connected bool
	spawned   bool
	self      Self
	items     []ItemStack
	weather   Weather
	timeState TimeState
	blocks    map[Vec3]Block
	entities  []Entity
	dimension Dimension

	handlers EventHandlers

	ChatLog   []string
	DigCalls  []Vec3
	EquipCalls []int
	ConsumeCalls int
	ControlStates map[string]bool
	LookCalls     []Orientation

	goals       []MovementGoal
	GotoErr     error
	GotoErrSeq  []error // if set, consumed in order across successive Goto calls
	profile     MovementProfile
	stopCalled  bool

	ConnectErr error
}

// NewFake builds a fake with a sensible default self/world state.
func NewFake() *Fake {
	return &Fake{
		self:          Self{GameMode: "survival", Health: 20, MaxHealth: 20, Food: 20},
		blocks:        make(map[Vec3]Block),
		dimension:     "overworld",
		ControlStates: make(map[string]bool),
	}
}

func (f *Fake) Connect(ctx context.Context, opts ConnectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

func (f *Fake) RegisterHandlers(h EventHandlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
}

func (f *Fake) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.spawned = false
	return nil
}

// Spawn marks the entity as materialised and invokes OnSpawn, mirroring
// the real client's async spawn signal.
func (f *Fake) Spawn() {
	f.mu.Lock()
	f.spawned = true
	h := f.handlers.OnSpawn
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

// SignalDisconnect invokes OnDisconnect as if the server dropped the
// connection, used to exercise internal/lifecycle's reconnect path.
func (f *Fake) SignalDisconnect(reason DisconnectReason) {
	f.mu.Lock()
	f.connected = false
	f.spawned = false
	h := f.handlers.OnDisconnect
	f.mu.Unlock()
	if h != nil {
		h(reason)
	}
}

// SignalHealth invokes OnHealth, used to exercise
// internal/sustainability's hunger monitor.
func (f *Fake) SignalHealth() {
	f.mu.Lock()
	h := f.handlers.OnHealth
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

func (f *Fake) Spawned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spawned
}

func (f *Fake) Self() Self {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.self
}

// SetSelf replaces the reported self state, used by tests to drive
// hunger/health/position scenarios.
func (f *Fake) SetSelf(s Self) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.self = s
}

func (f *Fake) SetItems(items []ItemStack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

func (f *Fake) SetWeather(w Weather) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weather = w
}

func (f *Fake) SetTime(ts TimeState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeState = ts
}

func (f *Fake) SetBlock(pos Vec3, b Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[pos] = b
}

func (f *Fake) SetEntities(entities []Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities = entities
}

func (f *Fake) Inventory() Inventory { return (*fakeInventory)(f) }
func (f *Fake) World() World         { return (*fakeWorld)(f) }
func (f *Fake) PathFinder() PathFinder { return (*fakePathFinder)(f) }

func (f *Fake) Chat(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChatLog = append(f.ChatLog, message)
	return nil
}

func (f *Fake) Dig(ctx context.Context, pos Vec3) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DigCalls = append(f.DigCalls, pos)
	return nil
}

func (f *Fake) SetControlState(ctx context.Context, control string, state bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state {
		f.ControlStates[control] = true
	} else {
		delete(f.ControlStates, control)
	}
	return nil
}

func (f *Fake) Look(ctx context.Context, yaw, pitch float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.self.Orientation = Orientation{Yaw: yaw, Pitch: pitch}
	f.LookCalls = append(f.LookCalls, f.self.Orientation)
	return nil
}

type fakeInventory Fake

func (i *fakeInventory) f() *Fake { return (*Fake)(i) }

func (i *fakeInventory) Items() []ItemStack {
	f := i.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ItemStack(nil), f.items...)
}

func (i *fakeInventory) HotbarSlots() []ItemStack {
	f := i.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ItemStack, 9)
	for _, it := range f.items {
		if it.Slot >= 0 && it.Slot < 9 {
			out[it.Slot] = it
		}
	}
	return out
}

func (i *fakeInventory) HeldItem() *ItemStack {
	f := i.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.Slot == 0 {
			cp := it
			return &cp
		}
	}
	return nil
}

func (i *fakeInventory) FindByCanonicalName(name string) (ItemStack, bool) {
	f := i.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return ItemStack{}, false
}

func (i *fakeInventory) Equip(ctx context.Context, slot int) error {
	f := i.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EquipCalls = append(f.EquipCalls, slot)
	return nil
}

func (i *fakeInventory) Consume(ctx context.Context) error {
	f := i.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConsumeCalls++
	return nil
}

type fakeWorld Fake

func (w *fakeWorld) f() *Fake { return (*Fake)(w) }

func (w *fakeWorld) Weather() Weather {
	f := w.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.weather
}

func (w *fakeWorld) Time() TimeState {
	f := w.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeState
}

func (w *fakeWorld) BlockAt(pos Vec3) (Block, bool) {
	f := w.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[pos]
	if !ok {
		return Block{IsEmpty: true}, true
	}
	return b, true
}

func (w *fakeWorld) EntitiesWithin(center Vec3, radiusMeters float64) []Entity {
	f := w.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Entity
	for _, e := range f.entities {
		dx := e.Position.X - center.X
		dy := e.Position.Y - center.Y
		dz := e.Position.Z - center.Z
		dist2 := dx*dx + dy*dy + dz*dz
		if dist2 <= radiusMeters*radiusMeters {
			out = append(out, e)
		}
	}
	return out
}

func (w *fakeWorld) Dimension() Dimension {
	f := w.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dimension
}

type fakePathFinder Fake

func (p *fakePathFinder) f() *Fake { return (*Fake)(p) }

func (p *fakePathFinder) SetMovements(profile MovementProfile) {
	f := p.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = profile
}

func (p *fakePathFinder) Goto(ctx context.Context, goal MovementGoal) error {
	f := p.f()
	f.mu.Lock()
	f.goals = append(f.goals, goal)
	var err error
	if len(f.GotoErrSeq) > 0 {
		err = f.GotoErrSeq[0]
		f.GotoErrSeq = f.GotoErrSeq[1:]
	} else {
		err = f.GotoErr
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.SetSelf(selfAt(f.Self(), goal))
	return nil
}

func (p *fakePathFinder) Stop() {
	f := p.f()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalled = true
}

// Goals returns every goal passed to Goto, in call order.
func (f *Fake) Goals() []MovementGoal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MovementGoal(nil), f.goals...)
}

// StopCalled reports whether PathFinder.Stop was ever invoked.
func (f *Fake) StopCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalled
}

// ActiveProfile returns the most recently set movement profile.
func (f *Fake) ActiveProfile() MovementProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile
}

func selfAt(self Self, goal MovementGoal) Self {
	self.Position = Vec3{X: goal.X, Y: goal.Y, Z: goal.Z}
	return self
}
