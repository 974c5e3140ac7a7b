// Package navigation implements the Navigation Controller (spec.md
// §4.5): movement profiles, tolerance policy, forced-move retry, and
// the primary moveTo path. Grounded on the teacher's retry-with-
// rate-limited-logging idiom in internal/orchestrator/scheduler, applied
// to path-finding attempts instead of task dispatch.
package navigation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/telemetry"
)

// Target records the last requested navigation goal, consumed by
// playback's navigation-hint computation (spec.md §4.7).
type Target struct {
	X, Y, Z float64
	Set     bool
}

// Controller orchestrates moveTo requests against an active
// gameclient.Client.
type Controller struct {
	cfg   config.PathFinder
	fm    config.ForcedMove
	clock clock.Clock
	log   *obslog.Logger
	tel   *telemetry.Context

	mu              sync.Mutex
	lastTarget      Target
	lastForcedMove  time.Time
	haveForcedMove  bool
}

// New builds a Controller.
func New(pf config.PathFinder, fm config.ForcedMove, clk clock.Clock, log *obslog.Logger, tel *telemetry.Context) *Controller {
	return &Controller{
		cfg:   pf,
		fm:    fm,
		clock: clk,
		log:   log,
		tel:   tel,
	}
}

func cautiousProfile(cfg config.PathFinder) gameclient.MovementProfile {
	digCost := cfg.DigCostDisabled
	return gameclient.MovementProfile{
		CanDig:         false,
		DigCost:        float64(digCost),
		AllowParkour:   cfg.AllowParkour,
		AllowSprinting: cfg.AllowSprinting,
	}
}

func digPermissiveProfile(cfg config.PathFinder) gameclient.MovementProfile {
	return gameclient.MovementProfile{
		CanDig:         true,
		DigCost:        float64(cfg.DigCostEnabled),
		AllowParkour:   cfg.AllowParkour,
		AllowSprinting: cfg.AllowSprinting,
	}
}

// LastTarget returns the most recently recorded moveTo target.
func (c *Controller) LastTarget() Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTarget
}

// RecordForcedMove timestamps a server-issued movement correction,
// rate-limiting the accompanying log line to once per second.
func (c *Controller) RecordForcedMove(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.haveForcedMove && now.Sub(c.lastForcedMove) < time.Second {
		c.lastForcedMove = now
		return
	}
	c.lastForcedMove = now
	c.haveForcedMove = true
	c.log.Info("forced move recorded")
}

func (c *Controller) lastForcedMoveAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastForcedMove, c.haveForcedMove
}

// resolveTolerance tightens the configured tolerance when the target is
// more than 2 blocks above/below current position (spec.md §4.5).
func resolveTolerance(configured int, currentY, targetY float64) int {
	if math.Abs(targetY-currentY) > 2 {
		t := configured
		if t > 1 {
			t = 1
		}
		if t < 1 {
			t = 1
		}
		return t
	}
	return configured
}

// MoveTo executes the primary navigation path (spec.md §4.5).
func (c *Controller) MoveTo(ctx context.Context, client gameclient.Client, x, y, z float64, configuredTolerance int) error {
	if c.tel != nil {
		c.tel.Instruments.NavigationAttempts.Add(ctx, 1)
	}
	if !finite(x) || !finite(y) || !finite(z) {
		return fmt.Errorf("Invalid coordinates")
	}
	if client == nil {
		return fmt.Errorf("Bot is not connected to the Minecraft server yet")
	}

	c.mu.Lock()
	c.lastTarget = Target{X: x, Y: y, Z: z, Set: true}
	c.mu.Unlock()

	currentY := client.Self().Position.Y
	tolerance := resolveTolerance(configuredTolerance, currentY, y)
	goal := gameclient.MovementGoal{X: x, Y: y, Z: z, Tolerance: float64(tolerance), Kind: "near"}

	pf := client.PathFinder()
	active := cautiousProfile(c.cfg)
	pf.SetMovements(active)
	defer pf.SetMovements(active)

	attempts := 0
	usedFallback := false
	for {
		err := pf.Goto(ctx, goal)
		if err == nil {
			return nil
		}

		if c.isForcedMoveCorrection(err) && attempts < c.fm.MaxRetries {
			c.clock.Sleep(time.Duration(c.fm.RetryDelayMs) * time.Millisecond)
			attempts++
			continue
		}
		if !usedFallback && strings.Contains(strings.ToLower(err.Error()), "no path") {
			usedFallback = true
			active = digPermissiveProfile(c.cfg)
			pf.SetMovements(active)
			continue
		}
		return fmt.Errorf("Pathfinding failed")
	}
}

func (c *Controller) isForcedMoveCorrection(err error) bool {
	if err == nil {
		return false
	}
	if !strings.Contains(strings.ToLower(err.Error()), "goal") || !strings.Contains(strings.ToLower(err.Error()), "changed") {
		return false
	}
	last, ok := c.lastForcedMoveAt()
	if !ok {
		return false
	}
	return c.clock.Now().Sub(last) <= time.Duration(c.fm.RetryWindowMs)*time.Millisecond
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
