// ABOUTME: Configuration loading and parsing for coven-chat
// ABOUTME: YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// minJWTSecretLen is the shortest accepted auth.jwt_secret.
const minJWTSecretLen = 32

// Config represents the complete coven-chat configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Providers ProvidersConfig `yaml:"providers" toml:"providers"`
	Skills    SkillsConfig    `yaml:"skills" toml:"skills"`
	Realtime  RealtimeConfig  `yaml:"realtime" toml:"realtime"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout,omitempty" toml:"shutdown_timeout,omitempty"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname,omitempty" toml:"hostname,omitempty"`
	AuthKey   string `yaml:"auth_key,omitempty" toml:"auth_key,omitempty"`
	StateDir  string `yaml:"state_dir,omitempty" toml:"state_dir,omitempty"`
	Ephemeral bool   `yaml:"ephemeral,omitempty" toml:"ephemeral,omitempty"`
	HTTPS     bool   `yaml:"https,omitempty" toml:"https,omitempty"`
	Funnel    bool   `yaml:"funnel,omitempty" toml:"funnel,omitempty"` // public Funnel, implies HTTPS
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration. An empty secret disables
// auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret,omitempty" toml:"jwt_secret,omitempty"`
}

// ProvidersConfig maps selections to backends.
type ProvidersConfig struct {
	Primary   ProviderConfig `yaml:"primary" toml:"primary"`
	Secondary ProviderConfig `yaml:"secondary,omitempty" toml:"secondary,omitempty"`
	Tertiary  ProviderConfig `yaml:"tertiary,omitempty" toml:"tertiary,omitempty"`
	// Critic overrides the default critic, which is primary at low
	// temperature without streaming.
	Critic ProviderConfig `yaml:"critic,omitempty" toml:"critic,omitempty"`
}

// ProviderConfig describes one model backend.
type ProviderConfig struct {
	Kind        string   `yaml:"kind,omitempty" toml:"kind,omitempty"`
	Model       string   `yaml:"model,omitempty" toml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	Streaming   bool     `yaml:"streaming,omitempty" toml:"streaming,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
}

// IsZero reports whether the provider is unset.
func (p ProviderConfig) IsZero() bool {
	return p.Kind == "" && p.Model == ""
}

// SkillsConfig points at a directory of markdown skills.
type SkillsConfig struct {
	Dir string `yaml:"dir,omitempty" toml:"dir,omitempty"`
}

// RealtimeConfig tunes WebSocket connections.
type RealtimeConfig struct {
	WriteTimeout time.Duration `yaml:"-" toml:"-"`
	PingInterval time.Duration `yaml:"-" toml:"-"`
	DedupeWindow time.Duration `yaml:"-" toml:"-"`
	SendBuffer   int           `yaml:"send_buffer,omitempty" toml:"send_buffer,omitempty"`

	// Raw string values for unmarshaling
	WriteTimeoutRaw string `yaml:"write_timeout,omitempty" toml:"write_timeout,omitempty"`
	PingIntervalRaw string `yaml:"ping_interval,omitempty" toml:"ping_interval,omitempty"`
	DedupeWindowRaw string `yaml:"dedupe_window,omitempty" toml:"dedupe_window,omitempty"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level,omitempty"`
	Format string `yaml:"format,omitempty" toml:"format,omitempty"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// DefaultPath returns the config file location: $COVEN_CHAT_CONFIG, then
// $XDG_CONFIG_HOME/coven/chat.yaml, then ~/.config/coven/chat.yaml.
func DefaultPath() string {
	if p := os.Getenv("COVEN_CHAT_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coven", "chat.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "coven", "chat.yaml")
	}
	return filepath.Join(home, ".config", "coven", "chat.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML(path) {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Save writes cfg to path in the format implied by its extension. Parent
// directories are created. The file is private to the owner since it may
// hold secrets.
func Save(path string, cfg *Config) error {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLen)
	}

	if c.Providers.Primary.IsZero() {
		return fmt.Errorf("providers.primary is required")
	}
	providers := []struct {
		name string
		cfg  ProviderConfig
	}{
		{"primary", c.Providers.Primary},
		{"secondary", c.Providers.Secondary},
		{"tertiary", c.Providers.Tertiary},
		{"critic", c.Providers.Critic},
	}
	for _, p := range providers {
		if p.cfg.IsZero() {
			continue
		}
		if err := p.cfg.validate("providers." + p.name); err != nil {
			return err
		}
	}

	if c.Realtime.SendBuffer < 0 {
		return fmt.Errorf("realtime.send_buffer must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

func (p ProviderConfig) validate(prefix string) error {
	switch p.Kind {
	case "openai", "anthropic", "gemini":
	case "":
		return fmt.Errorf("%s.kind is required", prefix)
	default:
		return fmt.Errorf("%s.kind %q is not one of openai, anthropic, gemini", prefix, p.Kind)
	}
	if p.Model == "" {
		return fmt.Errorf("%s.model is required", prefix)
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return fmt.Errorf("%s.temperature must be between 0 and 2", prefix)
	}
	if p.MaxTokens < 0 {
		return fmt.Errorf("%s.max_tokens must not be negative", prefix)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"realtime.write_timeout", cfg.Realtime.WriteTimeoutRaw, &cfg.Realtime.WriteTimeout},
		{"realtime.ping_interval", cfg.Realtime.PingIntervalRaw, &cfg.Realtime.PingInterval},
		{"realtime.dedupe_window", cfg.Realtime.DedupeWindowRaw, &cfg.Realtime.DedupeWindow},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", f.name)
		}
		*f.dst = d
	}
	return nil
}
