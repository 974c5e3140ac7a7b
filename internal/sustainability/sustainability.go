// Package sustainability implements the Sustainability Service (spec.md
// §4.8): a hunger monitor that reacts to game-client "health" events,
// auto-consuming food from inventory when the bot's food level drops to
// or below a configured threshold, and otherwise warning through chat
// on a cooldown. Grounded on the teacher's internal/orchestrator/
// scheduler retry-with-rate-limited-logging idiom (reused here for the
// chat-warning cooldown) and internal/navigation's call-with-client
// shape, since the bot's inventory is exclusively owned by the
// Lifecycle Supervisor's active client just like path-finding is.
package sustainability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/time/rate"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/telemetry"
)

// foodNames is the canonical food dictionary: a fixed, built-in list of
// item names, case-folded once at package init so every lookup is a
// plain set membership test. It is not loaded from game data; food items
// outside this list are never consumed.
var foodNames = buildFoodDictionary()

func buildFoodDictionary() map[string]struct{} {
	fold := cases.Fold()
	names := []string{
		"apple", "bread", "baked_potato", "carrot", "melon_slice",
		"sweet_berries", "beetroot", "pumpkin_pie", "cookie",
		"cooked_beef", "cooked_porkchop", "cooked_chicken", "cooked_mutton",
		"cooked_rabbit", "cooked_cod", "cooked_salmon",
		"mushroom_stew", "rabbit_stew", "beetroot_soup", "golden_apple",
		"golden_carrot", "dried_kelp", "honey_bottle",
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[fold.String(n)] = struct{}{}
	}
	return out
}

func isFood(name string) bool {
	_, ok := foodNames[cases.Fold().String(name)]
	return ok
}

// Service watches for hunger and auto-consumes food, or warns through
// chat when none is available.
type Service struct {
	cfg config.Sustainability
	clk clock.Clock
	log *obslog.Logger
	tel *telemetry.Context

	warnLimiter *rate.Limiter

	mu        sync.Mutex
	consuming bool
}

// New builds a Service. cfg.HungerWarningCooldownMs gates how often the
// no-food chat warning can fire.
func New(cfg config.Sustainability, clk clock.Clock, log *obslog.Logger, tel *telemetry.Context) *Service {
	cooldown := clampCooldown(cfg.HungerWarningCooldownMs)
	return &Service{
		cfg:         cfg,
		clk:         clk,
		log:         log.WithFields(zap.String("component", "sustainability")),
		tel:         tel,
		warnLimiter: rate.NewLimiter(rate.Every(cooldown), 1),
	}
}

func clampCooldown(ms int) time.Duration {
	if ms <= 0 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// HandleHealth is invoked by the Lifecycle Supervisor's OnHealth
// handler with the currently active client. It never returns an error:
// every failure path is either a no-op or a user-visible chat warning,
// per spec.md §4.8.
func (s *Service) HandleHealth(ctx context.Context, client gameclient.Client) {
	if client == nil {
		return
	}

	self := client.Self()
	if self.Food > float64(s.cfg.StarvationFoodLevel) {
		return
	}

	s.mu.Lock()
	if s.consuming {
		s.mu.Unlock()
		return
	}
	s.consuming = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.consuming = false
		s.mu.Unlock()
	}()

	item, ok := findFood(client.Inventory())
	if !ok {
		s.warnNoFood(ctx, client)
		return
	}

	if err := client.Inventory().Equip(ctx, item.Slot); err != nil {
		s.log.WithError(err).Warn("failed to equip food item")
		return
	}
	if err := client.Inventory().Consume(ctx); err != nil {
		s.log.WithError(err).Warn("failed to consume food item")
		return
	}
	if err := client.Chat(ctx, "ate "+item.Name+" to stave off hunger"); err != nil {
		s.log.WithError(err).Warn("failed to send hunger chat")
	}
}

// findFood returns the first inventory slot whose canonical name
// appears in the food dictionary.
func findFood(inv gameclient.Inventory) (gameclient.ItemStack, bool) {
	for _, item := range inv.Items() {
		if isFood(item.Name) {
			return item, true
		}
	}
	return gameclient.ItemStack{}, false
}

func (s *Service) warnNoFood(ctx context.Context, client gameclient.Client) {
	if !s.warnLimiter.AllowN(s.clk.Now(), 1) {
		return
	}
	if s.tel != nil {
		s.tel.Instruments.HungerWarningsTotal.Add(ctx, 1)
	}
	if err := client.Chat(ctx, "getting hungry and out of food"); err != nil {
		s.log.WithError(err).Warn("failed to send hunger warning chat")
	}
}
