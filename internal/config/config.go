// Package config provides application configuration for both Jamie processes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BotConfig holds configuration for the Discord-facing bot process.
type BotConfig struct {
	DiscordToken string

	// Automation controller endpoint.
	CUAEndpoint string
	CUATimeout  time.Duration

	// Status webhook listener.
	WebhookHost       string
	WebhookPort       string
	WebhookPublicBase string

	// Stream history archive.
	HistoryDBPath string

	// Stale session sweeping.
	SweepInterval time.Duration
	SessionMaxAge time.Duration

	// Live status feed over websocket.
	StatusFeedEnabled bool
}

// AgentConfig holds configuration for the automation controller process.
type AgentConfig struct {
	// Discord credentials for the automated web login.
	DiscordEmail    string
	DiscordPassword string

	// Vision model.
	AnthropicAPIKey string
	Model           string

	// Per-session limits.
	MaxBudgetPerSession float64
	MaxIterations       int
	StartTimeout        time.Duration
	PollInterval        time.Duration

	// Sandbox parameters.
	SandboxImage      string
	DisplayResolution string
	SandboxMemoryMB   int64
	SandboxCPUs       int64

	// HTTP bind.
	Host string
	Port string
}

// ObsConfig holds observability settings shared by both processes.
type ObsConfig struct {
	LogLevel       string
	LogJSON        bool
	MetricsEnabled bool
}

// LoadBot reads bot configuration from JAMIE_BOT_* environment variables.
func LoadBot() (*BotConfig, error) {
	cfg := &BotConfig{
		DiscordToken:      getEnv("JAMIE_BOT_DISCORD_TOKEN", ""),
		CUAEndpoint:       getEnv("JAMIE_BOT_CUA_ENDPOINT", "http://localhost:8000"),
		CUATimeout:        time.Duration(getEnvInt("JAMIE_BOT_CUA_TIMEOUT_SECONDS", 30)) * time.Second,
		WebhookHost:       getEnv("JAMIE_BOT_WEBHOOK_HOST", "0.0.0.0"),
		WebhookPort:       getEnv("JAMIE_BOT_WEBHOOK_PORT", "8080"),
		WebhookPublicBase: getEnv("JAMIE_BOT_WEBHOOK_PUBLIC_BASE", "http://localhost:8080"),
		HistoryDBPath:     getEnv("JAMIE_BOT_HISTORY_DB_PATH", "./data/jamie.db"),
		SweepInterval:     time.Duration(getEnvInt("JAMIE_BOT_SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
		SessionMaxAge:     time.Duration(getEnvInt("JAMIE_BOT_SESSION_MAX_AGE_SECONDS", 3600)) * time.Second,
		StatusFeedEnabled: getEnvBool("JAMIE_BOT_STATUS_FEED_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bot configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required bot configuration fields are set.
func (c *BotConfig) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("JAMIE_BOT_DISCORD_TOKEN cannot be empty")
	}
	if c.CUAEndpoint == "" {
		return fmt.Errorf("JAMIE_BOT_CUA_ENDPOINT cannot be empty")
	}
	if c.WebhookPort == "" {
		return fmt.Errorf("JAMIE_BOT_WEBHOOK_PORT cannot be empty")
	}
	if c.WebhookPublicBase == "" {
		return fmt.Errorf("JAMIE_BOT_WEBHOOK_PUBLIC_BASE cannot be empty")
	}
	if c.HistoryDBPath == "" {
		return fmt.Errorf("JAMIE_BOT_HISTORY_DB_PATH cannot be empty")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("JAMIE_BOT_SWEEP_INTERVAL_SECONDS must be > 0")
	}
	return nil
}

// WebhookURL returns the externally reachable status webhook endpoint.
func (c *BotConfig) WebhookURL() string {
	return strings.TrimRight(c.WebhookPublicBase, "/") + "/webhook/status"
}

// LoadAgent reads agent configuration from JAMIE_AGENT_* environment variables.
func LoadAgent() (*AgentConfig, error) {
	cfg := &AgentConfig{
		DiscordEmail:        getEnv("JAMIE_AGENT_DISCORD_EMAIL", ""),
		DiscordPassword:     getEnv("JAMIE_AGENT_DISCORD_PASSWORD", ""),
		AnthropicAPIKey:     getEnv("JAMIE_AGENT_ANTHROPIC_API_KEY", ""),
		Model:               getEnv("JAMIE_AGENT_MODEL", "anthropic/claude-sonnet-4-5-20250929"),
		MaxBudgetPerSession: getEnvFloat("JAMIE_AGENT_MAX_BUDGET_PER_SESSION", 2.0),
		MaxIterations:       getEnvInt("JAMIE_AGENT_MAX_ITERATIONS", 50),
		StartTimeout:        time.Duration(getEnvInt("JAMIE_AGENT_START_TIMEOUT_SECONDS", 600)) * time.Second,
		PollInterval:        time.Duration(getEnvInt("JAMIE_AGENT_POLL_INTERVAL_SECONDS", 5)) * time.Second,
		SandboxImage:        getEnv("JAMIE_AGENT_SANDBOX_IMAGE", "trycua/cua-xfce:latest"),
		DisplayResolution:   getEnv("JAMIE_AGENT_DISPLAY_RESOLUTION", "1024x768"),
		SandboxMemoryMB:     int64(getEnvInt("JAMIE_AGENT_SANDBOX_MEMORY_MB", 4096)),
		SandboxCPUs:         int64(getEnvInt("JAMIE_AGENT_SANDBOX_CPUS", 2)),
		Host:                getEnv("JAMIE_AGENT_HOST", "0.0.0.0"),
		Port:                getEnv("JAMIE_AGENT_PORT", "8000"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required agent configuration fields are set.
func (c *AgentConfig) Validate() error {
	if c.DiscordEmail == "" {
		return fmt.Errorf("JAMIE_AGENT_DISCORD_EMAIL cannot be empty")
	}
	if c.DiscordPassword == "" {
		return fmt.Errorf("JAMIE_AGENT_DISCORD_PASSWORD cannot be empty")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("JAMIE_AGENT_ANTHROPIC_API_KEY cannot be empty")
	}
	if c.MaxBudgetPerSession <= 0 {
		return fmt.Errorf("JAMIE_AGENT_MAX_BUDGET_PER_SESSION must be > 0")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("JAMIE_AGENT_MAX_ITERATIONS must be > 0")
	}
	if c.StartTimeout <= 0 {
		return fmt.Errorf("JAMIE_AGENT_START_TIMEOUT_SECONDS must be > 0")
	}
	if c.SandboxImage == "" {
		return fmt.Errorf("JAMIE_AGENT_SANDBOX_IMAGE cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("JAMIE_AGENT_PORT cannot be empty")
	}
	return nil
}

// LoadObs reads observability configuration from JAMIE_OBS_* environment
// variables. All fields have defaults, so loading never fails.
func LoadObs() *ObsConfig {
	return &ObsConfig{
		LogLevel:       getEnv("JAMIE_OBS_LOG_LEVEL", "info"),
		LogJSON:        getEnvBool("JAMIE_OBS_LOG_JSON", true),
		MetricsEnabled: getEnvBool("JAMIE_OBS_METRICS_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
