package config

import (
	"strings"
	"testing"
	"time"
)

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"1", false, true},
		{"true", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"0", true, false},
		{"false", true, false},
		{"off", true, false},
		{"garbage", true, true},
		{"garbage", false, false},
	}
	for _, tt := range tests {
		t.Setenv("JAMIE_TEST_BOOL", tt.value)
		if got := getEnvBool("JAMIE_TEST_BOOL", tt.fallback); got != tt.want {
			t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.fallback, got, tt.want)
		}
	}

	if got := getEnvBool("JAMIE_TEST_BOOL_UNSET", true); !got {
		t.Error("getEnvBool should fall back when the variable is unset")
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"42", 42},
		{" 42 ", 42},
		{"-5", -5},
		{"4.2", 7},
		{"abc", 7},
		{"", 7},
	}
	for _, tt := range tests {
		t.Setenv("JAMIE_TEST_INT", tt.value)
		if got := getEnvInt("JAMIE_TEST_INT", 7); got != tt.want {
			t.Errorf("getEnvInt(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}

	if got := getEnvInt("JAMIE_TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("getEnvInt unset = %d, want fallback 7", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"2.5", 2.5},
		{" 2.5 ", 2.5},
		{"3", 3},
		{"abc", 1.5},
	}
	for _, tt := range tests {
		t.Setenv("JAMIE_TEST_FLOAT", tt.value)
		if got := getEnvFloat("JAMIE_TEST_FLOAT", 1.5); got != tt.want {
			t.Errorf("getEnvFloat(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestLoadBotDefaults(t *testing.T) {
	t.Setenv("JAMIE_BOT_DISCORD_TOKEN", "token-123")

	cfg, err := LoadBot()
	if err != nil {
		t.Fatalf("LoadBot failed: %v", err)
	}
	if cfg.WebhookPort != "8080" {
		t.Errorf("WebhookPort = %q, want 8080", cfg.WebhookPort)
	}
	if cfg.CUATimeout != 30*time.Second {
		t.Errorf("CUATimeout = %v, want 30s", cfg.CUATimeout)
	}
	if cfg.SweepInterval != 300*time.Second {
		t.Errorf("SweepInterval = %v, want 300s", cfg.SweepInterval)
	}
	if !cfg.StatusFeedEnabled {
		t.Error("StatusFeedEnabled should default to true")
	}
	if got := cfg.WebhookURL(); got != "http://localhost:8080/webhook/status" {
		t.Errorf("WebhookURL = %q", got)
	}
}

func TestLoadBotRequiresToken(t *testing.T) {
	t.Setenv("JAMIE_BOT_DISCORD_TOKEN", "")

	if _, err := LoadBot(); err == nil || !strings.Contains(err.Error(), "DISCORD_TOKEN") {
		t.Errorf("LoadBot without a token = %v, want token error", err)
	}
}

func TestLoadAgentDefaults(t *testing.T) {
	t.Setenv("JAMIE_AGENT_DISCORD_EMAIL", "jamie@example.com")
	t.Setenv("JAMIE_AGENT_DISCORD_PASSWORD", "hunter2")
	t.Setenv("JAMIE_AGENT_ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("JAMIE_AGENT_MAX_ITERATIONS", "not-a-number")

	cfg, err := LoadAgent()
	if err != nil {
		t.Fatalf("LoadAgent failed: %v", err)
	}
	if cfg.MaxBudgetPerSession != 2.0 {
		t.Errorf("MaxBudgetPerSession = %v, want 2.0", cfg.MaxBudgetPerSession)
	}
	// Malformed overrides fall back to the default.
	if cfg.MaxIterations != 50 {
		t.Errorf("MaxIterations = %d, want 50", cfg.MaxIterations)
	}
	if cfg.StartTimeout != 600*time.Second {
		t.Errorf("StartTimeout = %v, want 600s", cfg.StartTimeout)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
}

func TestAgentConfigValidate(t *testing.T) {
	base := func() *AgentConfig {
		return &AgentConfig{
			DiscordEmail:        "jamie@example.com",
			DiscordPassword:     "hunter2",
			AnthropicAPIKey:     "sk-test",
			MaxBudgetPerSession: 2.0,
			MaxIterations:       50,
			StartTimeout:        time.Minute,
			SandboxImage:        "trycua/cua-xfce:latest",
			Port:                "8000",
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*AgentConfig)
		want   string
	}{
		{"missing email", func(c *AgentConfig) { c.DiscordEmail = "" }, "DISCORD_EMAIL"},
		{"missing password", func(c *AgentConfig) { c.DiscordPassword = "" }, "DISCORD_PASSWORD"},
		{"missing api key", func(c *AgentConfig) { c.AnthropicAPIKey = "" }, "ANTHROPIC_API_KEY"},
		{"zero budget", func(c *AgentConfig) { c.MaxBudgetPerSession = 0 }, "MAX_BUDGET"},
		{"zero iterations", func(c *AgentConfig) { c.MaxIterations = 0 }, "MAX_ITERATIONS"},
		{"zero start timeout", func(c *AgentConfig) { c.StartTimeout = 0 }, "START_TIMEOUT"},
		{"missing image", func(c *AgentConfig) { c.SandboxImage = "" }, "SANDBOX_IMAGE"},
		{"missing port", func(c *AgentConfig) { c.Port = "" }, "PORT"},
	}
	for _, tt := range tests {
		cfg := base()
		tt.mutate(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Validate = %v, want error mentioning %s", tt.name, err, tt.want)
		}
	}
}

func TestBotConfigValidate(t *testing.T) {
	base := func() *BotConfig {
		return &BotConfig{
			DiscordToken:      "token-123",
			CUAEndpoint:       "http://localhost:8000",
			WebhookPort:       "8080",
			WebhookPublicBase: "http://localhost:8080",
			HistoryDBPath:     "./data/jamie.db",
			SweepInterval:     time.Minute,
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*BotConfig)
		want   string
	}{
		{"missing token", func(c *BotConfig) { c.DiscordToken = "" }, "DISCORD_TOKEN"},
		{"missing endpoint", func(c *BotConfig) { c.CUAEndpoint = "" }, "CUA_ENDPOINT"},
		{"missing port", func(c *BotConfig) { c.WebhookPort = "" }, "WEBHOOK_PORT"},
		{"missing public base", func(c *BotConfig) { c.WebhookPublicBase = "" }, "WEBHOOK_PUBLIC_BASE"},
		{"missing db path", func(c *BotConfig) { c.HistoryDBPath = "" }, "HISTORY_DB_PATH"},
		{"zero sweep interval", func(c *BotConfig) { c.SweepInterval = 0 }, "SWEEP_INTERVAL"},
	}
	for _, tt := range tests {
		cfg := base()
		tt.mutate(cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: Validate = %v, want error mentioning %s", tt.name, err, tt.want)
		}
	}
}

func TestBotWebhookURLTrimsTrailingSlash(t *testing.T) {
	c := &BotConfig{WebhookPublicBase: "https://jamie.example.com/"}
	if got := c.WebhookURL(); got != "https://jamie.example.com/webhook/status" {
		t.Errorf("WebhookURL = %q", got)
	}
}
