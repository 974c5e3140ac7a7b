// Package main is the Runtime Core's process entry point: it resolves
// configuration, boots logging/telemetry, wires every L0-L3 component
// from spec.md §2 together, starts the inbound Command Router and the
// outbound Agent Event Bridge, and waits for SIGTERM/SIGINT to shut
// down gracefully. Grounded on cmd/orchestrator/main.go's bootstrap
// ordering (config → logger → telemetry → components → listeners →
// signal wait → graceful shutdown), CLI surface upgraded to Cobra per
// julianknutsen-gascity's cmd/gc.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kandev/mc-agent-core/internal/clock"
	"github.com/kandev/mc-agent-core/internal/commandrouter"
	"github.com/kandev/mc-agent-core/internal/config"
	"github.com/kandev/mc-agent-core/internal/eventbridge"
	"github.com/kandev/mc-agent-core/internal/gameclient"
	"github.com/kandev/mc-agent-core/internal/handlers"
	"github.com/kandev/mc-agent-core/internal/lifecycle"
	"github.com/kandev/mc-agent-core/internal/navigation"
	"github.com/kandev/mc-agent-core/internal/obslog"
	"github.com/kandev/mc-agent-core/internal/perception"
	"github.com/kandev/mc-agent-core/internal/playback"
	"github.com/kandev/mc-agent-core/internal/schema"
	"github.com/kandev/mc-agent-core/internal/skills"
	"github.com/kandev/mc-agent-core/internal/sustainability"
	"github.com/kandev/mc-agent-core/internal/telemetry"
	"github.com/kandev/mc-agent-core/internal/transport"
	"github.com/kandev/mc-agent-core/pkg/protocol"
)

// statusBroadcastInterval is the cadence the background sampler loop
// ticks at. The Perception Sampler's own throttle (spec.md §4.6)
// decides whether a given tick actually produces an event, so this only
// needs to be comfortably shorter than the configured broadcast
// interval to keep latency low.
const statusBroadcastInterval = 200 * time.Millisecond

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mc-agent-core",
		Short: "Runtime core for the automated game-agent adapter",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newValidateConfigCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the command router, event bridge, and lifecycle supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

// newValidateConfigCmd resolves the environment and prints every
// warning the Config Resolver raised, plus the per-verb JSON Schema
// registry it would compile — a dry run an operator can use before
// deploying a new environment.
func newValidateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Resolve configuration from the environment and report warnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := config.Load()
			for _, w := range result.Warnings {
				fmt.Fprintln(cmd.OutOrStdout(), w.String())
			}
			if len(result.Warnings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "configuration resolved with no warnings")
			}
			reg, err := schema.NewRegistry()
			if err != nil {
				return fmt.Errorf("compile schema registry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d verb schemas compiled\n", len(reg.Verbs()))
			return nil
		},
	}
}

func run() error {
	cfgResult := config.Load()

	log, err := obslog.New(obslog.Config{Level: "info", Format: "json", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()
	obslog.SetDefault(log)

	for _, w := range cfgResult.Warnings {
		log.Warn("config warning", zap.String("key", w.Key), zap.String("reason", w.Reason),
			zap.String("original", w.Original), zap.String("resolved", w.Resolved))
	}
	cfg := cfgResult.Config

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := telemetry.New(ctx, telemetry.Options{
		Endpoint:     cfg.Otel.Endpoint,
		ServiceName:  cfg.Otel.ServiceName,
		Environment:  cfg.Otel.Environment,
		SamplerRatio: cfg.Otel.SamplerRatio,
	})
	if err != nil {
		// Telemetry startup is the sole fatal-adjacent path spec.md §7
		// names; it is logged and swallowed rather than aborting boot.
		log.WithError(err).Warn("telemetry startup failed, continuing without it")
		tel = nil
	}

	clk := clock.NewReal()
	reg, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("compile schema registry: %w", err)
	}

	skillsReg := skills.New(cfg.Skills.HistoryPath, clk, log)
	nav := navigation.New(cfg.PathFinder, cfg.ForcedMove, clk, log, tel)
	sampler := perception.New(cfg.Perception, clk, tel)
	sustain := sustainability.New(cfg.Sustainability, clk, log, tel)
	engine := playback.New(clk, func() config.MovementControlMode { return cfg.Control.Mode })

	dialer := transport.NewWSDialer(time.Duration(cfg.AgentBridge.ConnectTimeoutMs) * time.Millisecond)
	bridge := eventbridge.New(cfg.AgentBridge, dialer, clk, log, tel)
	defer bridge.Close()

	// The low-level Minecraft protocol client is an explicit external
	// collaborator (spec.md §1): this repo only defines its interface
	// (internal/gameclient.Client). gameclient.Fake stands in as the
	// bootstrap factory, the same role cmd/mock-agent plays for the
	// teacher's agent-launcher stack, until a real client is vendored in.
	factory := func() gameclient.Client { return gameclient.NewFake() }
	supervisor := lifecycle.New(factory, clk, log, func() int64 { return int64(cfg.GameServer.ReconnectDelayMs) })

	h := handlers.New(cfg.GameServer.BotUsername, cfg, supervisor, nav, sampler, engine, skillsReg, sustain, bridge, clk, log)

	registrar := func(eh gameclient.EventHandlers) gameclient.EventHandlers {
		eh.OnSpawn = func() {
			log.Info("game entity spawned")
		}
		eh.OnHealth = func() {
			sustain.HandleHealth(ctx, supervisor.GetActiveClient())
		}
		eh.OnForcedMove = func() {
			nav.RecordForcedMove(clk.Now())
		}
		return eh
	}

	opts := gameclient.ConnectOptions{
		Host:     cfg.GameServer.Host,
		Port:     cfg.GameServer.Port,
		Username: cfg.GameServer.BotUsername,
		AuthMode: gameclient.AuthMode(cfg.GameServer.AuthMode),
		Version:  cfg.GameServer.Version,
	}
	if err := supervisor.Start(ctx, opts, registrar); err != nil {
		log.WithError(err).Warn("initial game client connect failed, will retry on schedule")
	}

	listener := transport.NewWSListener()
	router := commandrouter.New(listener, reg, tel, log)
	h.Register(router)

	gin.SetMode(gin.ReleaseMode)
	engineHTTP := gin.New()
	engineHTTP.Any("/", gin.WrapH(listener))
	engineHTTP.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engineHTTP.GET("/readyz", func(c *gin.Context) {
		if supervisor.GetActiveClient() == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": true})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Router.Host, cfg.Router.Port),
		Handler: engineHTTP,
	}

	go func() {
		if err := router.Serve(ctx); err != nil {
			log.WithError(err).Error("command router accept loop exited")
		}
	}()

	go func() {
		log.Info("command router listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("command router HTTP server failed")
		}
	}()

	stopBroadcast := startBroadcastLoop(ctx, clk, cfg.GameServer.BotUsername, supervisor, sampler, bridge)
	defer stopBroadcast()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit
	log.Info("shutting down")

	cancel()
	_ = router.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	if tel != nil {
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("telemetry shutdown failed")
		}
	}
	return nil
}

// startBroadcastLoop periodically offers the Perception Sampler a
// chance to build and broadcast position/perception snapshots; the
// sampler's own throttle (spec.md §4.6) decides whether any given tick
// actually enqueues an event.
func startBroadcastLoop(ctx context.Context, clk clock.Clock, agentID string, supervisor *lifecycle.Supervisor, sampler *perception.Sampler, bridge *eventbridge.Bridge) func() {
	ticker := clk.NewTicker(statusBroadcastInterval, func() {
		client := supervisor.GetActiveClient()
		if client == nil {
			return
		}
		sampler.BroadcastPosition(client, func(pos perception.Position) {
			bridge.Enqueue(ctx, protocol.NewAgentEvent(protocol.EventPosition, agentID, clk.Now().UnixMilli(), map[string]any{
				"x": pos.X, "y": pos.Y, "z": pos.Z, "dimension": pos.Dimension, "summary": pos.Summary,
			}))
		})
		sampler.BroadcastPerception(ctx, client, false, func(snap perception.Snapshot) {
			bridge.Enqueue(ctx, protocol.NewAgentEvent(protocol.EventPerception, agentID, clk.Now().UnixMilli(), map[string]any{
				"position": snap.Position,
				"weather":  snap.Weather,
				"time":     snap.Time,
				"hazards":  snap.Hazards,
				"entities": snap.Entities,
				"warnings": snap.Warnings,
				"summary":  snap.Summary,
			}))
		})
	})
	return ticker.Stop
}
