// Package config implements the Config Resolver (spec.md §4.1): it reads
// process environment variables into a plain map, then applies per-key
// clamping, enum-fallback, and container-aware host rewriting, emitting a
// structured Warning for every value it had to adjust. Nothing here is
// ever fatal — every input resolves to something usable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MovementControlMode is the tri-state CONTROL_MODE gate (spec.md §4.7/§9).
type MovementControlMode string

const (
	ControlModeCommand MovementControlMode = "command"
	ControlModeVPT      MovementControlMode = "vpt"
	ControlModeHybrid   MovementControlMode = "hybrid"
)

// AuthMode is the game-server authentication mode (spec.md §6).
type AuthMode string

const (
	AuthOffline   AuthMode = "offline"
	AuthMicrosoft AuthMode = "microsoft"
)

// GameServer holds connection/identity options for the Lifecycle
// Supervisor's game-client.
type GameServer struct {
	Host              string
	Port              int
	Version           string // empty means auto-detect
	ReconnectDelayMs  int
	BotUsername       string
	AuthMode          AuthMode
}

// Router holds the Command Router's bind address.
type Router struct {
	Host string
	Port int
}

// AgentBridge holds Agent Event Bridge tuning (spec.md §4.2).
type AgentBridge struct {
	URL                     string
	ConnectTimeoutMs        int
	SendTimeoutMs           int
	HealthcheckIntervalMs   int
	ReconnectDelayMs        int
	MaxRetries              int
	BatchIntervalMs         int
	BatchMaxSize            int
	QueueMaxSize            int
}

// Navigation holds the Navigation Controller's tolerance.
type Navigation struct {
	GoalTolerance int
}

// Control holds the Action Playback Engine's tick/gate configuration.
type Control struct {
	Mode                MovementControlMode
	TickIntervalMs      int
	MaxSequenceLength   int
}

// Perception holds the Perception Sampler's scan radii and throttle.
type Perception struct {
	EntityRadius        int
	BlockRadius          int
	BlockHeight          int
	BroadcastIntervalMs  int
}

// PathFinder holds the Navigation Controller's movement-profile knobs.
type PathFinder struct {
	AllowParkour    bool
	AllowSprinting  bool
	DigCostEnabled  int
	DigCostDisabled int
}

// ForcedMove holds forced-move retry tuning (spec.md §4.5).
type ForcedMove struct {
	RetryWindowMs int
	MaxRetries    int
	RetryDelayMs  int
}

// Otel holds observability exporter configuration (spec.md §6).
type Otel struct {
	Endpoint      string
	ServiceName   string
	Environment   string
	SamplerRatio  float64
}

// Skills holds the skill-history log path (spec.md §4.9).
type Skills struct {
	HistoryPath string
}

// Sustainability holds the hunger monitor's starvation threshold and
// warning cooldown (spec.md §4.8).
type Sustainability struct {
	StarvationFoodLevel     int
	HungerWarningCooldownMs int
}

// Config is the fully-resolved, clamped configuration.
type Config struct {
	GameServer     GameServer
	Router         Router
	AgentBridge    AgentBridge
	Navigation     Navigation
	Control        Control
	Perception     Perception
	PathFinder     PathFinder
	ForcedMove     ForcedMove
	Otel           Otel
	Skills         Skills
	Sustainability Sustainability
}

// Warning describes one value the resolver had to adjust away from the raw
// input: a clamp, an enum fallback, or a container-aware host rewrite.
type Warning struct {
	Key      string
	Reason   string
	Original string
	Resolved string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%q -> %q)", w.Key, w.Reason, w.Original, w.Resolved)
}

// Result is the resolved config plus every warning raised while resolving
// it (spec.md §8's boundary-behaviour tests assert against these).
type Result struct {
	Config   Config
	Warnings []Warning
}

// resolver accumulates warnings while reading/clamping env-sourced values.
// It reads from a plain map rather than viper: every recognised key
// (spec.md §4.1) is already the literal env var name, so there is no
// camelCase-to-SNAKE_CASE translation for viper's BindEnv to earn its
// keep on, and viper's AutomaticEnv path reads directly from the real
// process environment with no hook to substitute a synthetic one — which
// would break LoadFrom's environ()-injection contract that every test in
// config_test.go depends on for deterministic clamp/fallback assertions.
type resolver struct {
	env      map[string]string
	warnings []Warning
}

// Load resolves configuration from the process environment.
func Load() Result {
	return LoadFrom(os.Environ)
}

// LoadFrom resolves configuration from a supplied environ() function,
// letting tests substitute a controlled environment instead of the real
// process one.
func LoadFrom(environ func() []string) Result {
	env := make(map[string]string)
	for _, kv := range environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	r := &resolver{env: env}
	return r.resolve()
}

func (r *resolver) getString(key, def string) string {
	if v, ok := r.env[key]; ok && v != "" {
		return v
	}
	return def
}

func (r *resolver) getStringOk(key string) (string, bool) {
	v, ok := r.env[key]
	return v, ok && v != ""
}

func (r *resolver) getBool(key string, def bool) bool {
	raw, ok := r.getStringOk(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.warn(key, "invalid boolean, using default", raw, strconv.FormatBool(def))
		return def
	}
	return b
}

func (r *resolver) getInt(key string, def int) int {
	raw, ok := r.getStringOk(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.warn(key, "invalid integer, using default", raw, strconv.Itoa(def))
		return def
	}
	return n
}

func (r *resolver) getFloat(key string, def float64) float64 {
	raw, ok := r.getStringOk(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.warn(key, "invalid float, using default", raw, strconv.FormatFloat(def, 'f', -1, 64))
		return def
	}
	return f
}

// clampInt clamps an already-parsed int into [lo, hi], warning if it moved.
func (r *resolver) clampInt(key string, val, lo, hi int) int {
	if val < lo {
		r.warn(key, fmt.Sprintf("below minimum %d, clamped", lo), strconv.Itoa(val), strconv.Itoa(lo))
		return lo
	}
	if val > hi {
		r.warn(key, fmt.Sprintf("above maximum %d, clamped", hi), strconv.Itoa(val), strconv.Itoa(hi))
		return hi
	}
	return val
}

func (r *resolver) clampFloat(key string, val, lo, hi float64) float64 {
	if val < lo {
		r.warn(key, fmt.Sprintf("below minimum %v, clamped", lo), fmt.Sprintf("%v", val), fmt.Sprintf("%v", lo))
		return lo
	}
	if val > hi {
		r.warn(key, fmt.Sprintf("above maximum %v, clamped", hi), fmt.Sprintf("%v", val), fmt.Sprintf("%v", hi))
		return hi
	}
	return val
}

func (r *resolver) warn(key, reason, original, resolved string) {
	r.warnings = append(r.warnings, Warning{Key: key, Reason: reason, Original: original, Resolved: resolved})
}

func (r *resolver) resolveEnumAuth(key string, def AuthMode) AuthMode {
	raw, ok := r.getStringOk(key)
	if !ok {
		return def
	}
	switch AuthMode(raw) {
	case AuthOffline, AuthMicrosoft:
		return AuthMode(raw)
	default:
		r.warn(key, "unrecognised auth mode, using default", raw, string(def))
		return def
	}
}

func (r *resolver) resolveControlMode(key string, def MovementControlMode) MovementControlMode {
	raw, ok := r.getStringOk(key)
	if !ok {
		return def
	}
	switch MovementControlMode(raw) {
	case ControlModeCommand, ControlModeVPT, ControlModeHybrid:
		return MovementControlMode(raw)
	default:
		r.warn(key, "unrecognised control mode, using default", raw, string(def))
		return def
	}
}

func (r *resolver) resolve() Result {
	cfg := Config{}

	cfg.GameServer = r.resolveGameServer()
	cfg.Router = r.resolveRouter()
	cfg.AgentBridge = r.resolveAgentBridge()
	cfg.Navigation = Navigation{GoalTolerance: r.clampInt("MOVE_GOAL_TOLERANCE", r.getInt("MOVE_GOAL_TOLERANCE", 3), 1, 30)}
	cfg.Control = r.resolveControl()
	cfg.Perception = r.resolvePerception()
	cfg.PathFinder = r.resolvePathFinder()
	cfg.ForcedMove = ForcedMove{
		RetryWindowMs: r.getInt("FORCED_MOVE_RETRY_WINDOW_MS", 2000),
		MaxRetries:    r.getInt("FORCED_MOVE_MAX_RETRIES", 2),
		RetryDelayMs:  r.getInt("FORCED_MOVE_RETRY_DELAY_MS", 300),
	}
	cfg.Otel = r.resolveOtel()
	cfg.Skills = Skills{HistoryPath: r.getString("SKILL_HISTORY_PATH", "var/skills/history.ndjson")}
	cfg.Sustainability = Sustainability{
		StarvationFoodLevel:     r.clampInt("HUNGER_STARVATION_FOOD_LEVEL", r.getInt("HUNGER_STARVATION_FOOD_LEVEL", 17), 0, 20),
		HungerWarningCooldownMs: r.getInt("HUNGER_WARNING_COOLDOWN_MS", 30000),
	}

	return Result{Config: cfg, Warnings: r.warnings}
}

func (r *resolver) resolveGameServer() GameServer {
	return GameServer{
		Host:             r.getString("MC_HOST", "localhost"),
		Port:             r.getInt("MC_PORT", 25565),
		Version:          r.getString("MC_VERSION", ""),
		ReconnectDelayMs: r.getInt("MC_RECONNECT_DELAY_MS", 5000),
		BotUsername:      r.getString("BOT_USERNAME", "agent"),
		AuthMode:         r.resolveEnumAuth("AUTH_MODE", AuthOffline),
	}
}

func (r *resolver) resolveRouter() Router {
	host := r.getString("WS_HOST", "0.0.0.0")
	port := r.getInt("WS_PORT", 8765)
	return Router{Host: host, Port: port}
}

// resolveAgentBridge implements the AGENT_WS_URL | (HOST, PORT) precedence
// and the container-aware host default/rewrite from spec.md §4.1.
func (r *resolver) resolveAgentBridge() AgentBridge {
	connectTimeout := r.getInt("AGENT_WS_CONNECT_TIMEOUT_MS", 5000)
	sendTimeout := r.getInt("AGENT_WS_SEND_TIMEOUT_MS", 5000)
	healthcheck := r.getInt("AGENT_WS_HEALTHCHECK_INTERVAL_MS", 15000)
	reconnectDelay := r.getInt("AGENT_WS_RECONNECT_DELAY_MS", 3000)
	maxRetries := r.getInt("AGENT_WS_MAX_RETRIES", 3)
	batchInterval := r.getInt("AGENT_EVENT_BATCH_INTERVAL_MS", 250)
	batchMaxSize := r.getInt("AGENT_EVENT_BATCH_MAX_SIZE", 20)
	queueMaxSize := r.getInt("AGENT_EVENT_QUEUE_MAX_SIZE", 500)

	url := r.resolveAgentURL()

	return AgentBridge{
		URL:                   url,
		ConnectTimeoutMs:      connectTimeout,
		SendTimeoutMs:         sendTimeout,
		HealthcheckIntervalMs: healthcheck,
		ReconnectDelayMs:      reconnectDelay,
		MaxRetries:            maxRetries,
		BatchIntervalMs:       batchInterval,
		BatchMaxSize:          batchMaxSize,
		QueueMaxSize:          queueMaxSize,
	}
}

func (r *resolver) resolveAgentURL() string {
	if explicit, ok := r.getStringOk("AGENT_WS_URL"); ok {
		return explicit
	}

	host, hostSet := r.getStringOk("AGENT_WS_HOST")
	port := r.getInt("AGENT_WS_PORT", 9000)

	inContainer := detectContainerRuntime()

	if !hostSet {
		if inContainer {
			host = "python-agent"
		} else {
			host = "127.0.0.1"
		}
	} else if inContainer && isLoopbackLiteral(host) {
		original := host
		host = "python-agent"
		r.warn("AGENT_WS_HOST", "loopback literal rewritten to container-gateway alias", original, host)
	}

	return fmt.Sprintf("ws://%s:%d", host, port)
}

func isLoopbackLiteral(host string) bool {
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return true
	default:
		return false
	}
}

// detectContainerRuntime implements spec.md §4.1's recognition rule:
// presence of /.dockerenv OR the init process's cgroup file containing
// "docker" or "kubepods".
func detectContainerRuntime() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") || strings.Contains(content, "kubepods")
}

func (r *resolver) resolveControl() Control {
	return Control{
		Mode:              r.resolveControlMode("CONTROL_MODE", ControlModeCommand),
		TickIntervalMs:    r.clampInt("VPT_TICK_INTERVAL_MS", r.getInt("VPT_TICK_INTERVAL_MS", 50), 10, 250),
		MaxSequenceLength: r.clampInt("VPT_MAX_SEQUENCE_LENGTH", r.getInt("VPT_MAX_SEQUENCE_LENGTH", 240), 1, 2000),
	}
}

func (r *resolver) resolvePerception() Perception {
	return Perception{
		EntityRadius:        r.clampInt("PERCEPTION_ENTITY_RADIUS", r.getInt("PERCEPTION_ENTITY_RADIUS", 12), 1, 64),
		BlockRadius:          r.clampInt("PERCEPTION_BLOCK_RADIUS", r.getInt("PERCEPTION_BLOCK_RADIUS", 4), 1, 16),
		BlockHeight:          r.clampInt("PERCEPTION_BLOCK_HEIGHT", r.getInt("PERCEPTION_BLOCK_HEIGHT", 2), 1, 12),
		BroadcastIntervalMs:  r.clampInt("PERCEPTION_BROADCAST_INTERVAL_MS", r.getInt("PERCEPTION_BROADCAST_INTERVAL_MS", 1500), 250, 30000),
	}
}

func (r *resolver) resolvePathFinder() PathFinder {
	digEnabled := r.getInt("PATHFINDER_DIG_COST_ENABLED", 1)
	digDisabled := r.getInt("PATHFINDER_DIG_COST_DISABLED", 96)
	return PathFinder{
		AllowParkour:    r.getBool("PATHFINDER_ALLOW_PARKOUR", true),
		AllowSprinting:  r.getBool("PATHFINDER_ALLOW_SPRINTING", true),
		DigCostEnabled:  digEnabled,
		DigCostDisabled: digDisabled,
	}
}

func (r *resolver) resolveOtel() Otel {
	return Otel{
		Endpoint:     r.getString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  r.getString("OTEL_SERVICE_NAME", "mc-agent-core"),
		Environment:  r.getString("OTEL_ENVIRONMENT", "development"),
		SamplerRatio: r.clampFloat("OTEL_TRACES_SAMPLER_ARG", r.getFloat("OTEL_TRACES_SAMPLER_ARG", 1.0), 0.0, 1.0),
	}
}
